// Package memstore is an in-process storage engine honoring the relational
// constraints of the relay schema: unique client names and keys, unique
// (client, domain) pairs, and cascading client deletes. It backs tests and
// the api binary's STORAGE=memory mode.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	adomain "github.com/corvusHold/mailrelay/internal/audit/domain"
	cdomain "github.com/corvusHold/mailrelay/internal/clients/domain"
	sdomain "github.com/corvusHold/mailrelay/internal/settings/domain"
)

type Store struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]cdomain.Client
	domains map[uuid.UUID]cdomain.Domain
	logs    []adomain.Entry
	// settings keyed by client (uuid.Nil for global) then key.
	settings map[uuid.UUID]map[string]setting
	nextLog  int64
	now      func() time.Time
}

func New() *Store {
	return &Store{
		clients:  map[uuid.UUID]cdomain.Client{},
		domains:  map[uuid.UUID]cdomain.Domain{},
		settings: map[uuid.UUID]map[string]setting{},
		nextLog:  1,
		now:      time.Now,
	}
}

// SetClock overrides the timestamp source used for created_at and sent_at.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Clients returns the tenant-directory view of the store.
func (s *Store) Clients() cdomain.Repository { return clientRepo{s} }

// Audit returns the audit-log view of the store.
func (s *Store) Audit() adomain.Repository { return auditRepo{s} }

// Settings returns the app-settings view of the store.
func (s *Store) Settings() sdomain.Repository { return settingsRepo{s} }

type clientRepo struct{ s *Store }

func (r clientRepo) CreateClient(ctx context.Context, id uuid.UUID, name, apiKey string) (cdomain.Client, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.Name == name {
			return cdomain.Client{}, cdomain.ErrDuplicateName
		}
		if c.APIKey == apiKey {
			return cdomain.Client{}, cdomain.ErrDuplicateAPIKey
		}
	}
	c := cdomain.Client{ID: id, Name: name, APIKey: apiKey, CreatedAt: s.now()}
	s.clients[id] = c
	return c, nil
}

func (r clientRepo) GetClient(ctx context.Context, id uuid.UUID) (cdomain.Client, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.clients[id]
	if !ok {
		return cdomain.Client{}, cdomain.ErrClientNotFound
	}
	return c, nil
}

func (r clientRepo) GetClientByAPIKey(ctx context.Context, apiKey string) (cdomain.Client, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.clients {
		if c.APIKey == apiKey {
			return c, nil
		}
	}
	return cdomain.Client{}, cdomain.ErrClientNotFound
}

func (r clientRepo) ListClients(ctx context.Context) ([]cdomain.Client, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]cdomain.Client, 0, len(r.s.clients))
	for _, c := range r.s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteClient removes the client, its domains and its log entries under one
// lock, mirroring ON DELETE CASCADE.
func (r clientRepo) DeleteClient(ctx context.Context, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[id]; !ok {
		return nil
	}
	delete(s.clients, id)
	delete(s.settings, id)
	for did, d := range s.domains {
		if d.ClientID == id {
			delete(s.domains, did)
		}
	}
	kept := s.logs[:0]
	for _, e := range s.logs {
		if e.ClientID != id {
			kept = append(kept, e)
		}
	}
	s.logs = kept
	return nil
}

func (r clientRepo) CreateDomain(ctx context.Context, id, clientID uuid.UUID, name string) (cdomain.Domain, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[clientID]; !ok {
		return cdomain.Domain{}, cdomain.ErrClientNotFound
	}
	for _, d := range s.domains {
		if d.ClientID == clientID && d.Name == name {
			return cdomain.Domain{}, cdomain.ErrDuplicateDomain
		}
	}
	d := cdomain.Domain{ID: id, ClientID: clientID, Name: name, CreatedAt: s.now()}
	s.domains[id] = d
	return d, nil
}

func (r clientRepo) GetDomain(ctx context.Context, clientID, domainID uuid.UUID) (cdomain.Domain, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.domains[domainID]
	if !ok || d.ClientID != clientID {
		return cdomain.Domain{}, cdomain.ErrDomainNotFound
	}
	return d, nil
}

func (r clientRepo) ListDomains(ctx context.Context, clientID uuid.UUID) ([]cdomain.Domain, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []cdomain.Domain{}
	for _, d := range r.s.domains {
		if d.ClientID == clientID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r clientRepo) ListVerifiedDomains(ctx context.Context, clientID uuid.UUID) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []string{}
	for _, d := range r.s.domains {
		if d.ClientID == clientID && d.Verified {
			out = append(out, d.Name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r clientRepo) MarkDomainVerified(ctx context.Context, domainID uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.domains[domainID]
	if !ok {
		return cdomain.ErrDomainNotFound
	}
	if !d.Verified {
		d.Verified = true
		d.VerifiedAt = &at
		r.s.domains[domainID] = d
	}
	return nil
}

type auditRepo struct{ s *Store }

func (r auditRepo) Insert(ctx context.Context, e adomain.Entry) (adomain.Entry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[e.ClientID]
	if !ok {
		return adomain.Entry{}, cdomain.ErrClientNotFound
	}
	e.ID = s.nextLog
	s.nextLog++
	e.SentAt = s.now()
	e.ClientName = ""
	s.logs = append(s.logs, e)
	e.ClientName = c.Name
	return e, nil
}

func (r auditRepo) withName(e adomain.Entry) adomain.Entry {
	e.ClientName = r.s.clients[e.ClientID].Name
	return e
}

func (r auditRepo) Get(ctx context.Context, id int64) (adomain.Entry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, e := range r.s.logs {
		if e.ID == id {
			return r.withName(e), nil
		}
	}
	return adomain.Entry{}, adomain.ErrEntryNotFound
}

func (r auditRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	kept := s.logs[:0]
	for _, e := range s.logs {
		if e.SentAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.logs = kept
	return removed, nil
}

func (r auditRepo) DeleteAll(ctx context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := int64(len(r.s.logs))
	r.s.logs = nil
	return n, nil
}

func (r auditRepo) Count(ctx context.Context) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.logs)), nil
}

func (r auditRepo) CountSince(ctx context.Context, since time.Time) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var n int64
	for _, e := range r.s.logs {
		if !e.SentAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r auditRepo) CountClients(ctx context.Context) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.clients)), nil
}

func (r auditRepo) Recent(ctx context.Context, limit int) ([]adomain.Entry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []adomain.Entry{}
	for i := len(r.s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.withName(r.s.logs[i]))
	}
	return out, nil
}

type setting struct {
	value  string
	secret bool
}

type settingsRepo struct{ s *Store }

func (r settingsRepo) Get(ctx context.Context, key string, clientID *uuid.UUID) (string, bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if clientID != nil {
		if v, ok := r.s.settings[*clientID][key]; ok {
			return v.value, true, nil
		}
	}
	v, ok := r.s.settings[uuid.Nil][key]
	return v.value, ok, nil
}

func (r settingsRepo) Upsert(ctx context.Context, key string, clientID *uuid.UUID, value string, secret bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	owner := uuid.Nil
	if clientID != nil {
		if _, ok := r.s.clients[*clientID]; !ok {
			return cdomain.ErrClientNotFound
		}
		owner = *clientID
	}
	if r.s.settings[owner] == nil {
		r.s.settings[owner] = map[string]setting{}
	}
	r.s.settings[owner][key] = setting{value: value, secret: secret}
	return nil
}

func (r settingsRepo) List(ctx context.Context, clientID *uuid.UUID) ([]sdomain.Setting, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	owner := uuid.Nil
	if clientID != nil {
		owner = *clientID
	}
	out := make([]sdomain.Setting, 0, len(r.s.settings[owner]))
	for k, v := range r.s.settings[owner] {
		out = append(out, sdomain.Setting{Key: k, ClientID: clientID, Value: v.value, Secret: v.secret})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
