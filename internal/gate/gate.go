// Package gate authorizes send requests: the API key must belong to a client
// and the sender's domain must be one of that client's verified domains.
package gate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	cdomain "github.com/corvusHold/mailrelay/internal/clients/domain"
	"github.com/corvusHold/mailrelay/internal/metrics"
)

// Kind classifies an authorization failure.
type Kind string

const (
	MissingCredential Kind = "missing_credential"
	InvalidCredential Kind = "invalid_credential"
	InvalidSender     Kind = "invalid_sender"
	UnverifiedDomain  Kind = "unverified_domain"
)

// AuthError is returned for every rejected request. Domain is set for
// UnverifiedDomain.
type AuthError struct {
	Kind   Kind
	Domain string
}

func (e *AuthError) Error() string {
	switch e.Kind {
	case MissingCredential:
		return "api key is missing"
	case InvalidCredential:
		return "invalid api key"
	case InvalidSender:
		return "sender address has no domain"
	case UnverifiedDomain:
		return fmt.Sprintf("domain <%s> is not verified for this client", e.Domain)
	}
	return string(e.Kind)
}

// IsKind reports whether err is an *AuthError of kind k.
func IsKind(err error, k Kind) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Kind == k
}

// Principal is an authorized client with the verified-domain snapshot the
// decision was made against.
type Principal struct {
	Client          cdomain.Client
	VerifiedDomains []string
}

// Directory is the slice of the tenant directory the gate reads.
type Directory interface {
	FindClientByAPIKey(ctx context.Context, apiKey string) (cdomain.Client, error)
	ListVerifiedDomains(ctx context.Context, clientID uuid.UUID) ([]string, error)
}

type Gate struct {
	dir Directory
	log zerolog.Logger
}

func New(dir Directory) *Gate { return &Gate{dir: dir, log: zerolog.Nop()} }

// SetLogger allows injection of a structured logger.
func (g *Gate) SetLogger(l zerolog.Logger) { g.log = l }

// Authorize runs Authenticate then CheckSender.
func (g *Gate) Authorize(ctx context.Context, apiKey, sender string) (Principal, error) {
	p, err := g.Authenticate(ctx, apiKey)
	if err != nil {
		return Principal{}, err
	}
	return g.CheckSender(p, sender)
}

// Authenticate resolves the API key and loads the client's verified domains.
// Storage failures are returned unwrapped, never as an AuthError.
func (g *Gate) Authenticate(ctx context.Context, apiKey string) (Principal, error) {
	if strings.TrimSpace(apiKey) == "" {
		return Principal{}, g.reject(&AuthError{Kind: MissingCredential})
	}
	c, err := g.dir.FindClientByAPIKey(ctx, apiKey)
	if errors.Is(err, cdomain.ErrClientNotFound) {
		return Principal{}, g.reject(&AuthError{Kind: InvalidCredential})
	}
	if err != nil {
		return Principal{}, err
	}
	domains, err := g.dir.ListVerifiedDomains(ctx, c.ID)
	if err != nil {
		return Principal{}, err
	}
	return Principal{Client: c, VerifiedDomains: domains}, nil
}

// CheckSender confirms the sender's domain is in p's verified set.
func (g *Gate) CheckSender(p Principal, sender string) (Principal, error) {
	d := SenderDomain(sender)
	if d == "" {
		return Principal{}, g.reject(&AuthError{Kind: InvalidSender})
	}
	if !slices.Contains(p.VerifiedDomains, d) {
		return Principal{}, g.reject(&AuthError{Kind: UnverifiedDomain, Domain: d})
	}
	return p, nil
}

// SenderDomain returns the lower-cased text after the last '@', or "" when
// there is none. A trailing '>' from "Name <addr>" forms is dropped.
func SenderDomain(sender string) string {
	at := strings.LastIndex(sender, "@")
	if at < 0 {
		return ""
	}
	d := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sender[at+1:]), ">"))
	return strings.ToLower(d)
}

func (g *Gate) reject(e *AuthError) error {
	metrics.IncAuthRejection(string(e.Kind))
	g.log.Debug().Str("reason", string(e.Kind)).Str("domain", e.Domain).Msg("send rejected")
	return e
}
