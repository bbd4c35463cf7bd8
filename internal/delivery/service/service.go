package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	adomain "github.com/corvusHold/mailrelay/internal/audit/domain"
	"github.com/corvusHold/mailrelay/internal/delivery/domain"
	edomain "github.com/corvusHold/mailrelay/internal/email/domain"
	evdomain "github.com/corvusHold/mailrelay/internal/events/domain"
	evsvc "github.com/corvusHold/mailrelay/internal/events/service"
	"github.com/corvusHold/mailrelay/internal/metrics"
)

const metricsMode = "sync"

// ErrNotRecorded is returned by SendNow when the message was delivered but
// the audit entry could not be written.
var ErrNotRecorded = errors.New("email sent but audit record failed")

type Service struct {
	sender   edomain.Sender
	recorder adomain.Recorder
	queue    domain.Enqueuer
	pub      evdomain.Publisher
	log      zerolog.Logger
}

func New(sender edomain.Sender, recorder adomain.Recorder, queue domain.Enqueuer) *Service {
	return &Service{sender: sender, recorder: recorder, queue: queue, pub: evsvc.Nop{}, log: zerolog.Nop()}
}

var _ domain.Service = (*Service)(nil)

// SetPublisher allows tests or callers to override the event publisher.
func (s *Service) SetPublisher(p evdomain.Publisher) { s.pub = p }

// SetLogger allows injection of a structured logger.
func (s *Service) SetLogger(l zerolog.Logger) { s.log = l }

// SendNow transmits job on the caller's goroutine and records it. Transport
// failures come back as *domain.TransportError; nothing is recorded for them.
func (s *Service) SendNow(ctx context.Context, job domain.Job) (domain.Receipt, error) {
	if job.ClientID == uuid.Nil {
		return domain.Receipt{}, fmt.Errorf("send: client id is required")
	}
	start := time.Now()
	id, err := s.sender.Send(ctx, job.ClientID, job.Message())
	metrics.ObserveDelivery(metricsMode, time.Since(start).Seconds())
	if err != nil {
		metrics.IncDelivery(metricsMode, "failed")
		s.log.Warn().Err(err).Str("client_id", job.ClientID.String()).Str("to", job.To).Msg("send failed")
		_ = s.pub.Publish(ctx, evdomain.Event{
			Type:     evdomain.TypeEmailFailed,
			ClientID: job.ClientID,
			Meta:     map[string]string{"to": job.To, "mode": metricsMode, "error": err.Error()},
			Time:     time.Now(),
		})
		return domain.Receipt{}, &domain.TransportError{Err: err}
	}
	metrics.IncDelivery(metricsMode, "sent")
	_ = s.pub.Publish(ctx, evdomain.Event{
		Type:     evdomain.TypeEmailSent,
		ClientID: job.ClientID,
		Meta:     map[string]string{"to": job.To, "mode": metricsMode, "message_id": id},
		Time:     time.Now(),
	})

	entry, err := s.recorder.Record(context.WithoutCancel(ctx), job.ClientID, job.From, job.To, job.Subject, job.HTML)
	if err != nil {
		metrics.IncAuditRecordFailure()
		s.log.Error().Err(err).Str("client_id", job.ClientID.String()).Str("message_id", id).Msg("email delivered but audit record failed")
		return domain.Receipt{MessageID: id}, fmt.Errorf("%w: %w", ErrNotRecorded, err)
	}
	return domain.Receipt{MessageID: id, AuditID: entry.ID}, nil
}

// Enqueue hands job to the delivery queue and returns immediately.
func (s *Service) Enqueue(ctx context.Context, job domain.Job) error {
	if job.ClientID == uuid.Nil {
		return fmt.Errorf("enqueue: client id is required")
	}
	s.queue.Enqueue(job)
	return nil
}
