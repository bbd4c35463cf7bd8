package service

import (
	"context"
	"net"
	"time"

	vdomain "github.com/corvusHold/mailrelay/internal/verification/domain"
)

var _ vdomain.Resolver = (*NetResolver)(nil)

// NetResolver queries DNS through net.Resolver, bounding each lookup.
type NetResolver struct {
	r       *net.Resolver
	timeout time.Duration
}

func NewNetResolver(timeout time.Duration) *NetResolver {
	return &NetResolver{r: net.DefaultResolver, timeout: timeout}
}

func (n *NetResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	return n.r.LookupTXT(ctx, name)
}
