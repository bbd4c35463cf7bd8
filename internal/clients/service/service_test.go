package service

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/corvusHold/mailrelay/internal/clients/domain"
	evdomain "github.com/corvusHold/mailrelay/internal/events/domain"
)

type mockRepo struct {
	createErrs  []error
	createdKeys []string
	lastDomain  string
	verified    []string
	verifiedErr error
	markedID    uuid.UUID
	deleted     []uuid.UUID
	byKey       map[string]domain.Client
}

func (m *mockRepo) CreateClient(ctx context.Context, id uuid.UUID, name, apiKey string) (domain.Client, error) {
	m.createdKeys = append(m.createdKeys, apiKey)
	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		if err != nil {
			return domain.Client{}, err
		}
	}
	return domain.Client{ID: id, Name: name, APIKey: apiKey}, nil
}
func (m *mockRepo) GetClient(ctx context.Context, id uuid.UUID) (domain.Client, error) {
	return domain.Client{ID: id}, nil
}
func (m *mockRepo) GetClientByAPIKey(ctx context.Context, apiKey string) (domain.Client, error) {
	if c, ok := m.byKey[apiKey]; ok {
		return c, nil
	}
	return domain.Client{}, domain.ErrClientNotFound
}
func (m *mockRepo) ListClients(ctx context.Context) ([]domain.Client, error) { return nil, nil }
func (m *mockRepo) DeleteClient(ctx context.Context, id uuid.UUID) error {
	m.deleted = append(m.deleted, id)
	return nil
}
func (m *mockRepo) CreateDomain(ctx context.Context, id, clientID uuid.UUID, name string) (domain.Domain, error) {
	m.lastDomain = name
	return domain.Domain{ID: id, ClientID: clientID, Name: name}, nil
}
func (m *mockRepo) GetDomain(ctx context.Context, clientID, domainID uuid.UUID) (domain.Domain, error) {
	return domain.Domain{}, domain.ErrDomainNotFound
}
func (m *mockRepo) ListDomains(ctx context.Context, clientID uuid.UUID) ([]domain.Domain, error) {
	return nil, nil
}
func (m *mockRepo) ListVerifiedDomains(ctx context.Context, clientID uuid.UUID) ([]string, error) {
	return m.verified, m.verifiedErr
}
func (m *mockRepo) MarkDomainVerified(ctx context.Context, domainID uuid.UUID, at time.Time) error {
	m.markedID = domainID
	return nil
}

type publisherFunc func(ctx context.Context, e evdomain.Event) error

func (f publisherFunc) Publish(ctx context.Context, e evdomain.Event) error { return f(ctx, e) }

func TestCreateClient_GeneratesRandomKey(t *testing.T) {
	m := &mockRepo{}
	s := New(m)
	var events []string
	s.SetPublisher(publisherFunc(func(ctx context.Context, e evdomain.Event) error {
		events = append(events, e.Type)
		return nil
	}))

	c1, err := s.CreateClient(context.Background(), "  Acme  ")
	require.NoError(t, err)
	c2, err := s.CreateClient(context.Background(), "Globex")
	require.NoError(t, err)

	assert.Equal(t, "Acme", c1.Name)
	assert.Len(t, c1.APIKey, apiKeyBytes*2)
	_, err = hex.DecodeString(c1.APIKey)
	assert.NoError(t, err)
	assert.NotEqual(t, c1.APIKey, c2.APIKey)
	assert.Equal(t, []string{evdomain.TypeClientCreated, evdomain.TypeClientCreated}, events)
}

func TestCreateClient_RequiresName(t *testing.T) {
	s := New(&mockRepo{})
	_, err := s.CreateClient(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrNameRequired)
}

func TestCreateClient_DuplicateNamePropagates(t *testing.T) {
	m := &mockRepo{createErrs: []error{domain.ErrDuplicateName}}
	s := New(m)
	_, err := s.CreateClient(context.Background(), "Acme")
	assert.ErrorIs(t, err, domain.ErrDuplicateName)
	assert.Len(t, m.createdKeys, 1)
}

func TestCreateClient_RetriesOnKeyCollision(t *testing.T) {
	m := &mockRepo{createErrs: []error{domain.ErrDuplicateAPIKey, nil}}
	s := New(m)
	keys := []string{"k1", "k2"}
	s.keygen = func() (string, error) {
		k := keys[0]
		keys = keys[1:]
		return k, nil
	}

	c, err := s.CreateClient(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, "k2", c.APIKey)
	assert.Equal(t, []string{"k1", "k2"}, m.createdKeys)
}

func TestCreateClient_GivesUpAfterRepeatedCollisions(t *testing.T) {
	m := &mockRepo{createErrs: []error{domain.ErrDuplicateAPIKey, domain.ErrDuplicateAPIKey, domain.ErrDuplicateAPIKey}}
	s := New(m)
	_, err := s.CreateClient(context.Background(), "Acme")
	assert.ErrorIs(t, err, domain.ErrDuplicateAPIKey)
	assert.Len(t, m.createdKeys, maxKeyAttempts)
}

func TestCreateClient_KeygenFailure(t *testing.T) {
	s := New(&mockRepo{})
	s.keygen = func() (string, error) { return "", errors.New("entropy exhausted") }
	_, err := s.CreateClient(context.Background(), "Acme")
	assert.EqualError(t, err, "entropy exhausted")
}

func TestAddDomain_Normalizes(t *testing.T) {
	m := &mockRepo{}
	s := New(m)
	d, err := s.AddDomain(context.Background(), uuid.New(), " Acme.COM. ")
	require.NoError(t, err)
	assert.Equal(t, "acme.com", d.Name)
	assert.False(t, d.Verified)
	assert.Equal(t, "acme.com", m.lastDomain)
}

func TestAddDomain_RequiresName(t *testing.T) {
	s := New(&mockRepo{})
	_, err := s.AddDomain(context.Background(), uuid.New(), "")
	assert.ErrorIs(t, err, domain.ErrDomainRequired)
}

func TestListVerifiedDomains_EmptySet(t *testing.T) {
	s := New(&mockRepo{})
	names, err := s.ListVerifiedDomains(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestFindClientByAPIKey(t *testing.T) {
	c := domain.Client{ID: uuid.New(), Name: "Acme", APIKey: "K"}
	s := New(&mockRepo{byKey: map[string]domain.Client{"K": c}})

	got, err := s.FindClientByAPIKey(context.Background(), "K")
	require.NoError(t, err)
	assert.Equal(t, c, got)

	_, err = s.FindClientByAPIKey(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrClientNotFound)
	_, err = s.FindClientByAPIKey(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrClientNotFound)
}

func TestDeleteClient_Delegates(t *testing.T) {
	m := &mockRepo{}
	s := New(m)
	id := uuid.New()
	require.NoError(t, s.DeleteClient(context.Background(), id))
	require.NoError(t, s.DeleteClient(context.Background(), id))
	assert.Equal(t, []uuid.UUID{id, id}, m.deleted)
}

func TestMarkDomainVerified_UsesClock(t *testing.T) {
	m := &mockRepo{}
	s := New(m)
	id := uuid.New()
	require.NoError(t, s.MarkDomainVerified(context.Background(), id))
	assert.Equal(t, id, m.markedID)
}
