package gate

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HeaderAPIKey carries the client credential on send requests.
const HeaderAPIKey = "X-API-Key"

const ctxPrincipalKey = "gate_principal"

// RequireAPIKey returns an Echo middleware that authenticates the request's
// API key and stores the Principal in the context. Sender checks happen in
// the handler once the body is bound.
func RequireAPIKey(g *Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, err := g.Authenticate(c.Request().Context(), c.Request().Header.Get(HeaderAPIKey))
			if err != nil {
				return WriteError(c, err)
			}
			SetPrincipal(c, p)
			return next(c)
		}
	}
}

// SetPrincipal stores p on the request context.
func SetPrincipal(c echo.Context, p Principal) { c.Set(ctxPrincipalKey, p) }

// PrincipalFrom returns the authenticated principal from context.
func PrincipalFrom(c echo.Context) (Principal, bool) {
	p, ok := c.Get(ctxPrincipalKey).(Principal)
	return p, ok
}

// WriteError renders an authorization failure. Non-AuthErrors are storage
// failures and map to 500.
func WriteError(c echo.Context, err error) error {
	var ae *AuthError
	if !errors.As(err, &ae) {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error during authentication"})
	}
	status := http.StatusUnauthorized
	switch ae.Kind {
	case InvalidSender:
		status = http.StatusBadRequest
	case UnverifiedDomain:
		status = http.StatusForbidden
	}
	return c.JSON(status, map[string]string{"error": ae.Error(), "reason": string(ae.Kind)})
}
