package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event represents an administrative or delivery audit event.
// Type examples: "client.created", "domain.verified", "email.failed".
// Meta may contain domain, recipient, outcome, etc.
type Event struct {
	Type     string
	ClientID uuid.UUID
	Meta     map[string]string
	Time     time.Time
}

// Event types published by the relay.
const (
	TypeClientCreated  = "client.created"
	TypeClientDeleted  = "client.deleted"
	TypeDomainAdded    = "domain.added"
	TypeDomainVerified = "domain.verified"
	TypeEmailSent      = "email.sent"
	TypeEmailFailed    = "email.failed"
	TypeLogsPurged     = "logs.purged"
)

// Publisher publishes events to an external system (log, queue, etc.).
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
