package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/corvusHold/mailrelay/internal/events/domain"
)

// Logger is a Publisher that writes events to a structured logger.
type Logger struct{ log zerolog.Logger }

func NewLogger(l zerolog.Logger) *Logger { return &Logger{log: l} }

func (l *Logger) Publish(ctx context.Context, e domain.Event) error {
	lg := l.log
	if ctxLog := zerolog.Ctx(ctx); ctxLog.GetLevel() != zerolog.Disabled {
		lg = *ctxLog
	}
	lg.Info().
		Str("type", e.Type).
		Str("client_id", e.ClientID.String()).
		Fields(map[string]any{"meta": e.Meta}).
		Time("ts", e.Time).
		Msg("event")
	return nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, domain.Event) error { return nil }
