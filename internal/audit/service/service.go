package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	domain "github.com/corvusHold/mailrelay/internal/audit/domain"
	evdomain "github.com/corvusHold/mailrelay/internal/events/domain"
	evsvc "github.com/corvusHold/mailrelay/internal/events/service"
	"github.com/corvusHold/mailrelay/internal/metrics"
)

// DefaultRecent is the dashboard page size.
const DefaultRecent = 20

type Service struct {
	repo domain.Repository
	pub  evdomain.Publisher
	log  zerolog.Logger
	now  func() time.Time
}

func New(repo domain.Repository) *Service {
	return &Service{repo: repo, pub: evsvc.Nop{}, log: zerolog.Nop(), now: time.Now}
}

var _ domain.Service = (*Service)(nil)

func (s *Service) SetPublisher(p evdomain.Publisher) { s.pub = p }
func (s *Service) SetLogger(l zerolog.Logger)        { s.log = l }

// Record appends one entry. Storage errors are returned unchanged.
func (s *Service) Record(ctx context.Context, clientID uuid.UUID, from, to, subject, body string) (domain.Entry, error) {
	if clientID == uuid.Nil {
		return domain.Entry{}, errors.New("audit: client id is required")
	}
	return s.repo.Insert(ctx, domain.Entry{
		ClientID: clientID,
		From:     from,
		To:       to,
		Subject:  subject,
		Body:     body,
	})
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Entry, error) {
	return s.repo.Get(ctx, id)
}

// PurgeOlderThan removes entries strictly older than now-age. A non-positive
// age purges everything.
func (s *Service) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		return s.PurgeAll(ctx)
	}
	cutoff := s.now().Add(-age)
	n, err := s.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.purged(ctx, n, map[string]string{"cutoff": cutoff.UTC().Format(time.RFC3339)})
	return n, nil
}

func (s *Service) PurgeAll(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.purged(ctx, n, map[string]string{"cutoff": "all"})
	return n, nil
}

func (s *Service) purged(ctx context.Context, n int64, meta map[string]string) {
	metrics.AddPurged(n)
	s.log.Info().Int64("removed", n).Str("cutoff", meta["cutoff"]).Msg("purged email logs")
	_ = s.pub.Publish(ctx, evdomain.Event{Type: evdomain.TypeLogsPurged, Meta: meta, Time: s.now()})
}

func (s *Service) Stats(ctx context.Context, window time.Duration) (domain.Stats, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	inWindow, err := s.repo.CountSince(ctx, s.now().Add(-window))
	if err != nil {
		return domain.Stats{}, err
	}
	clients, err := s.repo.CountClients(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	return domain.Stats{TotalEmails: total, WindowEmails: inWindow, Window: window, TotalClients: clients}, nil
}

func (s *Service) Recent(ctx context.Context, n int) ([]domain.Entry, error) {
	if n <= 0 || n > 100 {
		n = DefaultRecent
	}
	return s.repo.Recent(ctx, n)
}
