package delivery

import (
	"github.com/labstack/echo/v4"

	ctrl "github.com/corvusHold/mailrelay/internal/delivery/controller"
	"github.com/corvusHold/mailrelay/internal/delivery/domain"
	"github.com/corvusHold/mailrelay/internal/gate"
)

// Register mounts the send routes. pre runs before API-key authentication,
// post after it.
func Register(e *echo.Echo, svc domain.Service, g *gate.Gate, pre []echo.MiddlewareFunc, post ...echo.MiddlewareFunc) {
	ctrl.New(svc, g).Register(e, pre, post...)
}
