package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Entry is an immutable record of one successfully delivered email.
type Entry struct {
	ID         int64
	ClientID   uuid.UUID
	ClientName string // populated by joined reads only
	SentAt     time.Time
	From       string
	To         string
	Subject    string
	Body       string
}

// Stats summarizes the log for the admin dashboard.
type Stats struct {
	TotalEmails  int64
	WindowEmails int64
	Window       time.Duration
	TotalClients int64
}

var ErrEntryNotFound = errors.New("email log not found")

// Repository abstracts audit persistence. SentAt is assigned by the storage
// engine at insert time.
type Repository interface {
	Insert(ctx context.Context, e Entry) (Entry, error)
	Get(ctx context.Context, id int64) (Entry, error)
	// DeleteBefore removes entries whose sent_at is strictly before cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	CountClients(ctx context.Context) (int64, error)
	// Recent returns the newest entries first, joined with the client name.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Recorder is the write side consumed by delivery.
type Recorder interface {
	Record(ctx context.Context, clientID uuid.UUID, from, to, subject, body string) (Entry, error)
}

// Service is the audit log and retention surface.
type Service interface {
	Recorder
	Get(ctx context.Context, id int64) (Entry, error)
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
	PurgeAll(ctx context.Context) (int64, error)
	Stats(ctx context.Context, window time.Duration) (Stats, error)
	Recent(ctx context.Context, n int) ([]Entry, error)
}
