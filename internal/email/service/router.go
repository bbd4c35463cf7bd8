package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corvusHold/mailrelay/internal/config"
	edomain "github.com/corvusHold/mailrelay/internal/email/domain"
	sdomain "github.com/corvusHold/mailrelay/internal/settings/domain"
)

// Ensure Router implements domain.Sender
var _ edomain.Sender = (*Router)(nil)

// Router picks the transport per client (settings override, then config) and
// bounds each send with the configured timeout.
type Router struct {
	cfg      config.Config
	settings sdomain.Service
	smtp     edomain.Sender
	ses      edomain.Sender
}

// NewRouter wires the SMTP sender; ses may be nil when SES is not configured.
func NewRouter(settings sdomain.Service, cfg config.Config, ses edomain.Sender) *Router {
	return &Router{cfg: cfg, settings: settings, smtp: NewSMTP(settings, cfg), ses: ses}
}

func (r *Router) Send(ctx context.Context, clientID uuid.UUID, msg edomain.Message) (string, error) {
	if timeout := r.Timeout(ctx, clientID); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	prov, _ := r.settings.GetString(ctx, sdomain.KeyEmailProvider, &clientID, r.cfg.EmailProvider)
	switch strings.ToLower(prov) {
	case "ses":
		if r.ses == nil {
			return "", fmt.Errorf("email provider ses selected but not configured")
		}
		return r.ses.Send(ctx, clientID, msg)
	default:
		return r.smtp.Send(ctx, clientID, msg)
	}
}

// Timeout reports the effective per-send timeout for a client.
func (r *Router) Timeout(ctx context.Context, clientID uuid.UUID) time.Duration {
	d, _ := r.settings.GetDuration(ctx, sdomain.KeySendTimeout, &clientID, r.cfg.SendTimeout)
	return d
}
