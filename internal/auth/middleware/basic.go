package middleware

import (
	"crypto/subtle"
	"errors"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/corvusHold/mailrelay/internal/config"
)

const ctxAdminKey = "auth_admin_user"

// ErrAdminDisabled is returned when neither ADMIN_PASSWORD_HASH nor
// ADMIN_PASSWORD is configured.
var ErrAdminDisabled = errors.New("admin credentials not configured")

// NewAdminBasic returns an Echo middleware guarding the admin API with HTTP
// basic auth. A bcrypt hash takes precedence over a plaintext password.
func NewAdminBasic(cfg config.Config) (echo.MiddlewareFunc, error) {
	check, err := newChecker(cfg)
	if err != nil {
		return nil, err
	}
	return echomw.BasicAuthWithConfig(echomw.BasicAuthConfig{
		Realm: "mailrelay admin",
		Validator: func(user, pass string, c echo.Context) (bool, error) {
			if !check(user, pass) {
				return false, nil
			}
			c.Set(ctxAdminKey, user)
			return true, nil
		},
	}), nil
}

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// AdminUser returns the authenticated admin's username from context.
func AdminUser(c echo.Context) (string, bool) {
	u, ok := c.Get(ctxAdminKey).(string)
	return u, ok
}

func newChecker(cfg config.Config) (func(user, pass string) bool, error) {
	userOK := func(u string) bool {
		return subtle.ConstantTimeCompare([]byte(u), []byte(cfg.AdminUser)) == 1
	}
	switch {
	case cfg.AdminPasswordHash != "":
		hash := []byte(cfg.AdminPasswordHash)
		if _, err := bcrypt.Cost(hash); err != nil {
			return nil, err
		}
		return func(u, p string) bool {
			// always run bcrypt so timing does not reveal the username
			pwOK := bcrypt.CompareHashAndPassword(hash, []byte(p)) == nil
			return userOK(u) && pwOK
		}, nil
	case cfg.AdminPassword != "":
		want := []byte(cfg.AdminPassword)
		return func(u, p string) bool {
			pwOK := subtle.ConstantTimeCompare([]byte(p), want) == 1
			return userOK(u) && pwOK
		}, nil
	}
	return nil, ErrAdminDisabled
}
