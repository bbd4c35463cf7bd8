package service

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvusHold/mailrelay/internal/config"
	edomain "github.com/corvusHold/mailrelay/internal/email/domain"
)

// fakeSMTP accepts one session without STARTTLS or AUTH and captures the
// envelope and DATA payload.
type fakeSMTP struct {
	ln   net.Listener
	from string
	rcpt string
	data string
	done chan struct{}
}

func startFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeSMTP{ln: ln, done: make(chan struct{})}
	t.Cleanup(func() { _ = ln.Close() })
	go f.serve()
	return f
}

func (f *fakeSMTP) port() int { return f.ln.Addr().(*net.TCPAddr).Port }

func (f *fakeSMTP) serve() {
	defer close(f.done)
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	write := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }
	write("220 fake ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(cmd)
		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			write("250 fake")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			f.from = strings.Trim(cmd[len("MAIL FROM:"):], "<>")
			write("250 ok")
		case strings.HasPrefix(upper, "RCPT TO:"):
			f.rcpt = strings.Trim(cmd[len("RCPT TO:"):], "<>")
			write("250 ok")
		case upper == "DATA":
			write("354 go ahead")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			f.data = b.String()
			write("250 queued")
		case upper == "QUIT":
			write("221 bye")
			return
		default:
			write("250 ok")
		}
	}
}

func TestSMTP_Send(t *testing.T) {
	srv := startFakeSMTP(t)
	cfg := config.Config{SMTPHost: "127.0.0.1", SMTPPort: srv.port()}
	s := NewSMTP(mockSettings{}, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id, err := s.Send(ctx, uuid.New(), testMessage())
	require.NoError(t, err)
	<-srv.done

	assert.True(t, strings.HasSuffix(id, "@acme.io>"))
	assert.Equal(t, "noreply@acme.io", srv.from)
	assert.Equal(t, "u@x.com", srv.rcpt)
	assert.Contains(t, srv.data, "Subject: Hi\r\n")
	assert.Contains(t, srv.data, "Message-ID: "+id+"\r\n")
	assert.Contains(t, srv.data, "Content-Type: text/html; charset=utf-8")
	assert.Contains(t, srv.data, "<p>hi</p>")
}

func TestSMTP_UsesClientPortOverride(t *testing.T) {
	srv := startFakeSMTP(t)
	ms := overrideSettings{port: srv.port()}
	s := NewSMTP(ms, config.Config{SMTPHost: "127.0.0.1", SMTPPort: 1})

	_, err := s.Send(context.Background(), uuid.New(), testMessage())
	require.NoError(t, err)
}

func TestSMTP_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	s := NewSMTP(mockSettings{}, config.Config{SMTPHost: "127.0.0.1", SMTPPort: port})
	_, err = s.Send(context.Background(), uuid.New(), testMessage())
	assert.ErrorContains(t, err, "smtp dial")
}

func TestBuildMIME_StripsHeaderInjection(t *testing.T) {
	msg := edomain.Message{From: "a@b.io", To: "c@d.io\r\nBcc: evil@x.io", Subject: "s", HTML: "l1\nl2"}
	out := string(BuildMIME(msg, "<m@b.io>", time.Unix(0, 0).UTC()))
	assert.Contains(t, out, "To: c@d.ioBcc: evil@x.io\r\n")
	assert.NotContains(t, out, "\r\nBcc:")
	assert.Contains(t, out, "l1\r\nl2\r\n")
}

func TestAddressOnly(t *testing.T) {
	assert.Equal(t, "a@b.io", addressOnly("Alice <a@b.io>"))
	assert.Equal(t, "a@b.io", addressOnly(" a@b.io "))
}

type overrideSettings struct {
	mockSettings
	port int
}

func (o overrideSettings) GetInt(ctx context.Context, key string, clientID *uuid.UUID, def int) (int, error) {
	if o.port != 0 {
		return o.port, nil
	}
	return def, nil
}
