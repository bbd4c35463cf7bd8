package audit

import (
	"github.com/labstack/echo/v4"

	ctrl "github.com/corvusHold/mailrelay/internal/audit/controller"
	"github.com/corvusHold/mailrelay/internal/audit/domain"
)

// RegisterAdmin mounts dashboard and log routes. queue may be nil.
func RegisterAdmin(g *echo.Group, svc domain.Service, queue func() any) {
	ctrl.New(svc, queue).RegisterAdmin(g)
}
