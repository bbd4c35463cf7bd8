package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/corvusHold/mailrelay/internal/gate"
	"github.com/corvusHold/mailrelay/internal/metrics"
)

// Policy defines a fixed-window rate limit: Limit requests per Window per key.
type Policy struct {
	// Name identifies the limited endpoint in logs and metrics (e.g. "send").
	Name   string
	Window time.Duration
	Limit  int
	// Key builds the bucket key for this request.
	Key func(echo.Context) string
}

// Store is a shared fixed-window counter.
type Store interface {
	// Allow counts one request against key. When not allowed, retryAfter is
	// the time until the window resets.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error)
}

// Middleware enforces p against s. Store errors fail open.
func Middleware(p Policy, s Store, log zerolog.Logger) echo.MiddlewareFunc {
	if p.Window <= 0 {
		p.Window = time.Minute
	}
	if p.Limit <= 0 {
		p.Limit = 60
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := p.Name + ":global"
			if p.Key != nil {
				key = p.Key(c)
			}
			allowed, retryAfter, err := s.Allow(c.Request().Context(), key, p.Limit, p.Window)
			if err != nil {
				log.Warn().Err(err).Str("endpoint", p.Name).Msg("rate limit store unavailable; allowing request")
				return next(c)
			}
			if allowed {
				return next(c)
			}
			src := "ip"
			if strings.Contains(key, ":client:") {
				src = "client"
			}
			metrics.IncRateLimitExceeded(p.Name, src)
			secs := int((retryAfter + time.Second - 1) / time.Second)
			log.Warn().Str("endpoint", p.Name).Str("key", key).Int("limit", p.Limit).
				Dur("window", p.Window).Int("retry_after_s", secs).Msg("rate limit exceeded")
			if secs > 0 {
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
			}
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		}
	}
}

// KeyIP keys on the caller's IP. Use it for limits that run before
// authentication.
func KeyIP(prefix string) func(echo.Context) string {
	return func(c echo.Context) string {
		return prefix + ":ip:" + c.RealIP()
	}
}

// KeyClientOrIP keys on the authenticated client when the gate middleware
// ran first, otherwise on the caller's IP.
func KeyClientOrIP(prefix string) func(echo.Context) string {
	byIP := KeyIP(prefix)
	return func(c echo.Context) string {
		if p, ok := gate.PrincipalFrom(c); ok {
			return prefix + ":client:" + p.Client.ID.String()
		}
		return byIP(c)
	}
}

// MemoryStore is a process-local Store for single-instance or test use.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	start time.Time
	count int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: map[string]*bucket{}, now: time.Now}
}

func (m *MemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[key]
	if !ok || now.Sub(b.start) >= window {
		m.buckets[key] = &bucket{start: now, count: 1}
		return true, 0, nil
	}
	if b.count < limit {
		b.count++
		return true, 0, nil
	}
	return false, window - now.Sub(b.start), nil
}
