package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service provides typed access to global settings with per-client override.
type Service interface {
	GetString(ctx context.Context, key string, clientID *uuid.UUID, def string) (string, error)
	GetDuration(ctx context.Context, key string, clientID *uuid.UUID, def time.Duration) (time.Duration, error)
	GetInt(ctx context.Context, key string, clientID *uuid.UUID, def int) (int, error)
}

// Repository abstracts storage of app settings.
type Repository interface {
	// Get returns (value, found, err) for an exact key, preferring the client
	// override and falling back to the global row.
	Get(ctx context.Context, key string, clientID *uuid.UUID) (string, bool, error)
	// Upsert stores a key for an optional client.
	Upsert(ctx context.Context, key string, clientID *uuid.UUID, value string, secret bool) error
	// List returns the rows owned by clientID (global rows when nil), sorted by key.
	List(ctx context.Context, clientID *uuid.UUID) ([]Setting, error)
}

// Setting is one stored row.
type Setting struct {
	Key      string     `json:"key"`
	ClientID *uuid.UUID `json:"client_id,omitempty"`
	Value    string     `json:"value"`
	Secret   bool       `json:"is_secret"`
}

// Masked replaces secret values in displayed settings.
const Masked = "********"

// Common keys
const (
	KeyEmailProvider = "email.provider" // smtp | ses
	KeySMTPHost      = "email.smtp.host"
	KeySMTPPort      = "email.smtp.port"
	KeySMTPUsername  = "email.smtp.username"
	KeySMTPPassword  = "email.smtp.password"
	KeySendTimeout   = "email.send_timeout"
)

// Keys lists every recognised key; the admin API rejects anything else.
var Keys = []string{KeyEmailProvider, KeySMTPHost, KeySMTPPort, KeySMTPUsername, KeySMTPPassword, KeySendTimeout}

// IsSecret reports whether values for key must be masked when displayed.
func IsSecret(key string) bool { return key == KeySMTPPassword }
