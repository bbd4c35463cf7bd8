package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	cdomain "github.com/corvusHold/mailrelay/internal/clients/domain"
	evdomain "github.com/corvusHold/mailrelay/internal/events/domain"
	evsvc "github.com/corvusHold/mailrelay/internal/events/service"
	"github.com/corvusHold/mailrelay/internal/metrics"
	vdomain "github.com/corvusHold/mailrelay/internal/verification/domain"
)

// Directory is the slice of the tenant directory the verifier needs.
type Directory interface {
	GetDomain(ctx context.Context, clientID, domainID uuid.UUID) (cdomain.Domain, error)
	MarkDomainVerified(ctx context.Context, domainID uuid.UUID) error
}

type Verifier struct {
	dir      Directory
	resolver vdomain.Resolver
	pub      evdomain.Publisher
	log      zerolog.Logger
}

func New(dir Directory, resolver vdomain.Resolver) *Verifier {
	return &Verifier{dir: dir, resolver: resolver, pub: evsvc.Nop{}, log: zerolog.Nop()}
}

// SetPublisher allows tests or callers to override the event publisher.
func (v *Verifier) SetPublisher(p evdomain.Publisher) { v.pub = p }

// SetLogger allows injection of a structured logger.
func (v *Verifier) SetLogger(l zerolog.Logger) { v.log = l }

// Verify checks the domain's TXT records for its token and marks it verified
// on a match. DNS failures and misses are reported through Result; only a
// missing domain or a storage failure returns an error.
func (v *Verifier) Verify(ctx context.Context, clientID, domainID uuid.UUID) (vdomain.Result, error) {
	d, err := v.dir.GetDomain(ctx, clientID, domainID)
	if err != nil {
		return vdomain.Result{}, err
	}
	if d.Verified {
		metrics.IncVerification(string(vdomain.Verified))
		return vdomain.Result{Outcome: vdomain.Verified, Domain: d}, nil
	}

	records, err := v.resolver.LookupTXT(ctx, d.Name)
	if err != nil {
		v.log.Info().Err(err).Str("domain", d.Name).Msg("verification lookup failed")
		metrics.IncVerification(string(vdomain.ResolutionFailed))
		return vdomain.Result{Outcome: vdomain.ResolutionFailed, Domain: d, Detail: err.Error()}, nil
	}
	if !containsToken(records, vdomain.ExpectedToken(d.Name)) {
		metrics.IncVerification(string(vdomain.NotVerifiedYet))
		return vdomain.Result{Outcome: vdomain.NotVerifiedYet, Domain: d}, nil
	}

	if err := v.dir.MarkDomainVerified(ctx, d.ID); err != nil {
		return vdomain.Result{}, err
	}
	// Re-read so VerifiedAt reflects the stored value.
	if fresh, err := v.dir.GetDomain(ctx, clientID, domainID); err == nil {
		d = fresh
	} else {
		d.Verified = true
	}
	metrics.IncVerification(string(vdomain.Verified))
	_ = v.pub.Publish(ctx, evdomain.Event{
		Type:     evdomain.TypeDomainVerified,
		ClientID: clientID,
		Meta:     map[string]string{"domain": d.Name},
		Time:     timeOf(d),
	})
	return vdomain.Result{Outcome: vdomain.Verified, Domain: d}, nil
}

func containsToken(records []string, token string) bool {
	for _, r := range records {
		if strings.Contains(r, token) {
			return true
		}
	}
	return false
}

func timeOf(d cdomain.Domain) (t time.Time) {
	if d.VerifiedAt != nil {
		return *d.VerifiedAt
	}
	return time.Now()
}
