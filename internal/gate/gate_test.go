package gate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cdomain "github.com/corvusHold/mailrelay/internal/clients/domain"
)

type fakeDir struct {
	clients  map[string]cdomain.Client
	verified map[uuid.UUID][]string
	err      error
}

func (f *fakeDir) FindClientByAPIKey(ctx context.Context, apiKey string) (cdomain.Client, error) {
	if f.err != nil {
		return cdomain.Client{}, f.err
	}
	c, ok := f.clients[apiKey]
	if !ok {
		return cdomain.Client{}, cdomain.ErrClientNotFound
	}
	return c, nil
}

func (f *fakeDir) ListVerifiedDomains(ctx context.Context, clientID uuid.UUID) ([]string, error) {
	return f.verified[clientID], nil
}

func newDir() (*fakeDir, cdomain.Client) {
	c := cdomain.Client{ID: uuid.New(), Name: "Acme", APIKey: "k1"}
	return &fakeDir{
		clients:  map[string]cdomain.Client{"k1": c},
		verified: map[uuid.UUID][]string{c.ID: {"acme.com"}},
	}, c
}

func TestAuthorize(t *testing.T) {
	dir, acme := newDir()
	g := New(dir)

	cases := []struct {
		name   string
		key    string
		sender string
		kind   Kind
		domain string
	}{
		{"ok", "k1", "x@acme.com", "", ""},
		{"ok mixed case", "k1", "X@ACME.com", "", ""},
		{"ok display name", "k1", "Acme <x@acme.com>", "", ""},
		{"missing key", "", "x@acme.com", MissingCredential, ""},
		{"blank key", "  ", "x@acme.com", MissingCredential, ""},
		{"unknown key", "nope", "x@acme.com", InvalidCredential, ""},
		{"no at", "k1", "acme.com", InvalidSender, ""},
		{"empty domain", "k1", "x@", InvalidSender, ""},
		{"unverified", "k1", "x@other.com", UnverifiedDomain, "other.com"},
		{"last at wins", "k1", "a@acme.com@evil.io", UnverifiedDomain, "evil.io"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := g.Authorize(context.Background(), tc.key, tc.sender)
			if tc.kind == "" {
				require.NoError(t, err)
				assert.Equal(t, acme.ID, p.Client.ID)
				assert.Equal(t, []string{"acme.com"}, p.VerifiedDomains)
				return
			}
			var ae *AuthError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tc.kind, ae.Kind)
			assert.Equal(t, tc.domain, ae.Domain)
			assert.True(t, IsKind(err, tc.kind))
		})
	}
}

func TestAuthorize_StorageErrorIsNotAuthError(t *testing.T) {
	dir, _ := newDir()
	dir.err = errors.New("connection refused")
	_, err := New(dir).Authorize(context.Background(), "k1", "x@acme.com")
	require.Error(t, err)
	var ae *AuthError
	assert.False(t, errors.As(err, &ae))
}

func TestUnverifiedDomainMessage(t *testing.T) {
	err := &AuthError{Kind: UnverifiedDomain, Domain: "foo.io"}
	assert.Equal(t, "domain <foo.io> is not verified for this client", err.Error())
}

func TestRequireAPIKey(t *testing.T) {
	dir, acme := newDir()
	g := New(dir)
	e := echo.New()
	e.POST("/send", func(c echo.Context) error {
		p, ok := PrincipalFrom(c)
		require.True(t, ok)
		return c.String(http.StatusOK, p.Client.ID.String())
	}, RequireAPIKey(g))

	cases := []struct {
		key  string
		code int
	}{
		{"", http.StatusUnauthorized},
		{"bad", http.StatusUnauthorized},
		{"k1", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/send", nil)
		if tc.key != "" {
			req.Header.Set(HeaderAPIKey, tc.key)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, tc.code, rec.Code, "key %q", tc.key)
		if tc.code == http.StatusOK {
			assert.Equal(t, acme.ID.String(), rec.Body.String())
		}
	}
}

func TestWriteError_Statuses(t *testing.T) {
	e := echo.New()
	cases := map[error]int{
		&AuthError{Kind: InvalidSender}:                     http.StatusBadRequest,
		&AuthError{Kind: UnverifiedDomain, Domain: "x.com"}: http.StatusForbidden,
		errors.New("db down"):                               http.StatusInternalServerError,
	}
	for err, code := range cases {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
		require.NoError(t, WriteError(c, err))
		assert.Equal(t, code, rec.Code)
	}
}
