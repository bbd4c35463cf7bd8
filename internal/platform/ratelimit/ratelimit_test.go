package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cdomain "github.com/corvusHold/mailrelay/internal/clients/domain"
	"github.com/corvusHold/mailrelay/internal/gate"
)

func TestMemoryStore_FixedWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewMemoryStore()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _, err := m.Allow(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, retry, err := m.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, retry)

	ok, _, _ = m.Allow(ctx, "other", 3, time.Minute)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, _, _ = m.Allow(ctx, "k", 3, time.Minute)
	assert.True(t, ok)
}

func TestRedisStore_Miniredis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rc.Close()

	s := NewRedisStore(rc)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		ok, _, err := s.Allow(ctx, "send:client:a", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, retry, err := s.Allow(ctx, "send:client:a", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))
	assert.True(t, mr.Exists("rl:send:client:a"))

	mr.FastForward(time.Minute + time.Second)
	ok, _, err = s.Allow(ctx, "send:client:a", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (bool, time.Duration, error) {
	return false, 0, errors.New("redis down")
}

func newEcho(p Policy, s Store) *echo.Echo {
	e := echo.New()
	e.POST("/send", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, Middleware(p, s, zerolog.Nop()))
	return e
}

func do(e *echo.Echo) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/send", nil))
	return rec
}

func TestMiddleware_BlocksOverLimit(t *testing.T) {
	e := newEcho(Policy{Name: "send", Limit: 1, Window: time.Minute, Key: KeyClientOrIP("send")}, NewMemoryStore())
	assert.Equal(t, http.StatusOK, do(e).Code)
	rec := do(e)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestMiddleware_FailsOpen(t *testing.T) {
	e := newEcho(Policy{Name: "send", Limit: 1}, failingStore{})
	assert.Equal(t, http.StatusOK, do(e).Code)
	assert.Equal(t, http.StatusOK, do(e).Code)
}

func TestKeyIP_IgnoresPrincipal(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	gate.SetPrincipal(c, gate.Principal{Client: cdomain.Client{ID: uuid.New()}})
	assert.Equal(t, "send_ip:ip:192.0.2.1", KeyIP("send_ip")(c))
}

func TestKeyClientOrIP(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	assert.Equal(t, "send:ip:192.0.2.1", KeyClientOrIP("send")(c))

	id := uuid.New()
	gate.SetPrincipal(c, gate.Principal{Client: cdomain.Client{ID: id}})
	assert.Equal(t, "send:client:"+id.String(), KeyClientOrIP("send")(c))
}
