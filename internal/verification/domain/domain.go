package domain

import (
	"context"

	cdomain "github.com/corvusHold/mailrelay/internal/clients/domain"
)

// TokenPrefix precedes the bare domain name in the TXT record that proves
// DNS control.
const TokenPrefix = "my-email-service-verification="

// ExpectedToken returns the TXT substring that verifies name.
func ExpectedToken(name string) string { return TokenPrefix + name }

// Outcome is the non-fatal result of one verification attempt.
type Outcome string

const (
	Verified         Outcome = "verified"
	NotVerifiedYet   Outcome = "not_verified_yet"
	ResolutionFailed Outcome = "resolution_failed"
)

// Result reports a verification attempt. Detail carries the resolver error
// text for ResolutionFailed.
type Result struct {
	Outcome Outcome        `json:"outcome"`
	Domain  cdomain.Domain `json:"domain"`
	Detail  string         `json:"detail,omitempty"`
}

// Resolver returns the TXT strings published for name.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}
