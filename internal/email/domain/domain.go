package domain

import (
	"context"

	"github.com/google/uuid"
)

// Message is one outbound email. HTML is sent as the text/html body.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Sender is the transport collaborator. clientID selects per-client overrides;
// use uuid.Nil for global settings. Implementations must not retry.
type Sender interface {
	Send(ctx context.Context, clientID uuid.UUID, msg Message) (messageID string, err error)
}
