package clients

import (
	"github.com/labstack/echo/v4"

	ctrl "github.com/corvusHold/mailrelay/internal/clients/controller"
	domain "github.com/corvusHold/mailrelay/internal/clients/domain"
)

// RegisterAdmin mounts the tenant directory admin routes.
func RegisterAdmin(g *echo.Group, svc domain.Service) {
	ctrl.New(svc).RegisterAdmin(g)
}
