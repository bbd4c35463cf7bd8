package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	domain "github.com/corvusHold/mailrelay/internal/clients/domain"
	evdomain "github.com/corvusHold/mailrelay/internal/events/domain"
	evsvc "github.com/corvusHold/mailrelay/internal/events/service"
)

// apiKeyBytes is the entropy of a generated API key before hex encoding.
const apiKeyBytes = 32

// maxKeyAttempts bounds regeneration after an api_key uniqueness violation.
const maxKeyAttempts = 3

type Service struct {
	repo   domain.Repository
	pub    evdomain.Publisher
	log    zerolog.Logger
	keygen func() (string, error)
	now    func() time.Time
}

func New(repo domain.Repository) *Service {
	return &Service{
		repo:   repo,
		pub:    evsvc.Nop{},
		log:    zerolog.Nop(),
		keygen: GenerateAPIKey,
		now:    time.Now,
	}
}

var _ domain.Service = (*Service)(nil)

// SetPublisher allows tests or callers to override the event publisher.
func (s *Service) SetPublisher(p evdomain.Publisher) { s.pub = p }

// SetLogger allows injection of a structured logger.
func (s *Service) SetLogger(l zerolog.Logger) { s.log = l }

// GenerateAPIKey returns a hex-encoded key drawn from crypto/rand.
func GenerateAPIKey() (string, error) {
	raw := make([]byte, apiKeyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

func (s *Service) CreateClient(ctx context.Context, name string) (domain.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Client{}, domain.ErrNameRequired
	}
	var lastErr error
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := s.keygen()
		if err != nil {
			return domain.Client{}, err
		}
		c, err := s.repo.CreateClient(ctx, uuid.New(), name, key)
		if errors.Is(err, domain.ErrDuplicateAPIKey) {
			s.log.Warn().Int("attempt", attempt+1).Msg("api key collision, regenerating")
			lastErr = err
			continue
		}
		if err != nil {
			return domain.Client{}, err
		}
		_ = s.pub.Publish(ctx, evdomain.Event{
			Type:     evdomain.TypeClientCreated,
			ClientID: c.ID,
			Meta:     map[string]string{"name": c.Name},
			Time:     s.now(),
		})
		return c, nil
	}
	return domain.Client{}, lastErr
}

func (s *Service) GetClient(ctx context.Context, id uuid.UUID) (domain.Client, error) {
	return s.repo.GetClient(ctx, id)
}

func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.repo.ListClients(ctx)
}

func (s *Service) DeleteClient(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteClient(ctx, id); err != nil {
		return err
	}
	_ = s.pub.Publish(ctx, evdomain.Event{Type: evdomain.TypeClientDeleted, ClientID: id, Time: s.now()})
	return nil
}

func (s *Service) FindClientByAPIKey(ctx context.Context, apiKey string) (domain.Client, error) {
	if apiKey == "" {
		return domain.Client{}, domain.ErrClientNotFound
	}
	return s.repo.GetClientByAPIKey(ctx, apiKey)
}

// NormalizeDomain lower-cases and trims a domain name, dropping a trailing dot.
func NormalizeDomain(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
}

func (s *Service) AddDomain(ctx context.Context, clientID uuid.UUID, name string) (domain.Domain, error) {
	name = NormalizeDomain(name)
	if name == "" {
		return domain.Domain{}, domain.ErrDomainRequired
	}
	d, err := s.repo.CreateDomain(ctx, uuid.New(), clientID, name)
	if err != nil {
		return domain.Domain{}, err
	}
	_ = s.pub.Publish(ctx, evdomain.Event{
		Type:     evdomain.TypeDomainAdded,
		ClientID: clientID,
		Meta:     map[string]string{"domain": d.Name},
		Time:     s.now(),
	})
	return d, nil
}

func (s *Service) GetDomain(ctx context.Context, clientID, domainID uuid.UUID) (domain.Domain, error) {
	return s.repo.GetDomain(ctx, clientID, domainID)
}

func (s *Service) ListDomains(ctx context.Context, clientID uuid.UUID) ([]domain.Domain, error) {
	return s.repo.ListDomains(ctx, clientID)
}

func (s *Service) ListVerifiedDomains(ctx context.Context, clientID uuid.UUID) ([]string, error) {
	names, err := s.repo.ListVerifiedDomains(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (s *Service) MarkDomainVerified(ctx context.Context, domainID uuid.UUID) error {
	return s.repo.MarkDomainVerified(ctx, domainID, s.now())
}
