package settings

import (
	"github.com/labstack/echo/v4"

	ctrl "github.com/corvusHold/mailrelay/internal/settings/controller"
)

// RegisterAdmin mounts the settings routes.
func RegisterAdmin(g *echo.Group, svc ctrl.Manager) {
	ctrl.New(svc).RegisterAdmin(g)
}
