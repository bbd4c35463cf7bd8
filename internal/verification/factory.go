package verification

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	evdomain "github.com/corvusHold/mailrelay/internal/events/domain"
	ctrl "github.com/corvusHold/mailrelay/internal/verification/controller"
	svc "github.com/corvusHold/mailrelay/internal/verification/service"
)

// NewVerifier builds a verifier over DNS with the given lookup timeout.
func NewVerifier(dir svc.Directory, dnsTimeout time.Duration, pub evdomain.Publisher, log zerolog.Logger) *svc.Verifier {
	v := svc.New(dir, svc.NewNetResolver(dnsTimeout))
	v.SetPublisher(pub)
	v.SetLogger(log)
	return v
}

// RegisterAdmin mounts the verify route.
func RegisterAdmin(g *echo.Group, v ctrl.Verifier) {
	ctrl.New(v).RegisterAdmin(g)
}
