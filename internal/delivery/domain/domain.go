package domain

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	edomain "github.com/corvusHold/mailrelay/internal/email/domain"
)

// Job is one accepted send request. It lives only in memory.
type Job struct {
	ClientID uuid.UUID
	From     string
	To       string
	Subject  string
	HTML     string
}

// Message converts the job into a transport message.
func (j Job) Message() edomain.Message {
	return edomain.Message{From: j.From, To: j.To, Subject: j.Subject, HTML: j.HTML}
}

// Receipt is returned by a successful synchronous send.
type Receipt struct {
	MessageID string `json:"message_id"`
	AuditID   int64  `json:"audit_id"`
}

// TransportError wraps a transport failure on the synchronous path.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// Enqueuer accepts jobs for asynchronous delivery.
type Enqueuer interface {
	Enqueue(job Job)
}

// Service offers both delivery modes. Authorization happens before either.
type Service interface {
	SendNow(ctx context.Context, job Job) (Receipt, error)
	Enqueue(ctx context.Context, job Job) error
}
