package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Client is a tenant of the relay, identified by its API key.
type Client struct {
	ID        uuid.UUID
	Name      string
	APIKey    string
	CreatedAt time.Time
}

// Domain is a sender domain claimed by a client. DKIMSelector and
// DKIMPublicKey are reserved for signing and are not read by the send path.
type Domain struct {
	ID            uuid.UUID
	ClientID      uuid.UUID
	Name          string
	Verified      bool
	VerifiedAt    *time.Time
	DKIMSelector  string
	DKIMPublicKey string
	CreatedAt     time.Time
}

var (
	ErrNameRequired    = errors.New("client name is required")
	ErrDomainRequired  = errors.New("domain name is required")
	ErrDuplicateName   = errors.New("client name already exists")
	ErrDuplicateDomain = errors.New("domain already exists for this client")
	ErrClientNotFound  = errors.New("client not found")
	ErrDomainNotFound  = errors.New("domain not found")
	// ErrDuplicateAPIKey is returned by repositories when a generated key
	// collides; the service regenerates and retries.
	ErrDuplicateAPIKey = errors.New("api key collision")
)

// Repository abstracts persistence for clients and their domains.
// Not-found conditions are reported as ErrClientNotFound / ErrDomainNotFound.
type Repository interface {
	CreateClient(ctx context.Context, id uuid.UUID, name, apiKey string) (Client, error)
	GetClient(ctx context.Context, id uuid.UUID) (Client, error)
	GetClientByAPIKey(ctx context.Context, apiKey string) (Client, error)
	ListClients(ctx context.Context) ([]Client, error)
	// DeleteClient removes the client; domains and audit entries cascade at
	// the storage layer. Deleting an absent client is not an error.
	DeleteClient(ctx context.Context, id uuid.UUID) error

	CreateDomain(ctx context.Context, id, clientID uuid.UUID, name string) (Domain, error)
	GetDomain(ctx context.Context, clientID, domainID uuid.UUID) (Domain, error)
	ListDomains(ctx context.Context, clientID uuid.UUID) ([]Domain, error)
	ListVerifiedDomains(ctx context.Context, clientID uuid.UUID) ([]string, error)
	MarkDomainVerified(ctx context.Context, domainID uuid.UUID, at time.Time) error
}

// Service encapsulates the tenant directory.
type Service interface {
	CreateClient(ctx context.Context, name string) (Client, error)
	GetClient(ctx context.Context, id uuid.UUID) (Client, error)
	ListClients(ctx context.Context) ([]Client, error)
	DeleteClient(ctx context.Context, id uuid.UUID) error
	FindClientByAPIKey(ctx context.Context, apiKey string) (Client, error)

	AddDomain(ctx context.Context, clientID uuid.UUID, name string) (Domain, error)
	GetDomain(ctx context.Context, clientID, domainID uuid.UUID) (Domain, error)
	ListDomains(ctx context.Context, clientID uuid.UUID) ([]Domain, error)
	ListVerifiedDomains(ctx context.Context, clientID uuid.UUID) ([]string, error)
	MarkDomainVerified(ctx context.Context, domainID uuid.UUID) error
}
