package service

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corvusHold/mailrelay/internal/config"
	edomain "github.com/corvusHold/mailrelay/internal/email/domain"
	sdomain "github.com/corvusHold/mailrelay/internal/settings/domain"
)

// Ensure SMTP implements domain.Sender
var _ edomain.Sender = (*SMTP)(nil)

// SMTP relays through a plain SMTP server, upgrading with STARTTLS when
// offered. Certificate checks are skipped when SMTPInsecureSkipVerify is set
// (local Postfix with a self-signed certificate).
type SMTP struct {
	cfg      config.Config
	settings sdomain.Service
	dialer   net.Dialer
}

func NewSMTP(settings sdomain.Service, cfg config.Config) *SMTP {
	return &SMTP{settings: settings, cfg: cfg}
}

func (s *SMTP) Send(ctx context.Context, clientID uuid.UUID, msg edomain.Message) (string, error) {
	host, _ := s.settings.GetString(ctx, sdomain.KeySMTPHost, &clientID, s.cfg.SMTPHost)
	port, _ := s.settings.GetInt(ctx, sdomain.KeySMTPPort, &clientID, s.cfg.SMTPPort)
	username, _ := s.settings.GetString(ctx, sdomain.KeySMTPUsername, &clientID, s.cfg.SMTPUsername)
	password, _ := s.settings.GetString(ctx, sdomain.KeySMTPPassword, &clientID, s.cfg.SMTPPassword)

	messageID := NewMessageID(msg.From)
	body := BuildMIME(msg, messageID, time.Now())

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return "", fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		tlsCfg := &tls.Config{ServerName: host, InsecureSkipVerify: s.cfg.SMTPInsecureSkipVerify} //nolint:gosec // opt-in for self-signed relays
		if err := c.StartTLS(tlsCfg); err != nil {
			return "", fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if username != "" {
		if err := c.Auth(smtp.PlainAuth("", username, password, host)); err != nil {
			return "", fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(addressOnly(msg.From)); err != nil {
		return "", fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(addressOnly(msg.To)); err != nil {
		return "", fmt.Errorf("smtp RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return "", fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("smtp end data: %w", err)
	}
	if err := c.Quit(); err != nil {
		return "", fmt.Errorf("smtp quit: %w", err)
	}
	return messageID, nil
}

// NewMessageID builds an RFC 5322 Message-ID under the sender's domain.
func NewMessageID(from string) string {
	host := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		host = strings.Trim(from[at+1:], "> ")
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), host)
}

// BuildMIME renders an HTML message with CRLF line endings.
func BuildMIME(msg edomain.Message, messageID string, date time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", sanitizeHeader(msg.From))
	fmt.Fprintf(&b, "To: %s\r\n", sanitizeHeader(msg.To))
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(msg.Subject))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(msg.HTML, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// sanitizeHeader strips CR/LF to prevent header injection.
func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}

// addressOnly extracts the bare address from "Name <addr>" forms.
func addressOnly(v string) string {
	if i := strings.LastIndex(v, "<"); i >= 0 {
		if j := strings.LastIndex(v, ">"); j > i {
			return v[i+1 : j]
		}
	}
	return strings.TrimSpace(v)
}
