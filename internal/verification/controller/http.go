package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	cctrl "github.com/corvusHold/mailrelay/internal/clients/controller"
	cdomain "github.com/corvusHold/mailrelay/internal/clients/domain"
	vdomain "github.com/corvusHold/mailrelay/internal/verification/domain"
)

// Verifier runs one verification attempt.
type Verifier interface {
	Verify(ctx context.Context, clientID, domainID uuid.UUID) (vdomain.Result, error)
}

type Controller struct {
	v Verifier
}

func New(v Verifier) *Controller { return &Controller{v: v} }

func (h *Controller) RegisterAdmin(g *echo.Group) {
	g.POST("/clients/:id/domains/:domainId/verify", h.verify)
}

type verifyResp struct {
	Outcome  vdomain.Outcome  `json:"outcome"`
	Token    string           `json:"expected_txt"`
	Detail   string           `json:"detail,omitempty"`
	Domain   cctrl.DomainResp `json:"domain"`
	Verified bool             `json:"verified"`
}

// Verify domain godoc
// @Summary      Verify domain ownership
// @Description  Looks up the domain's TXT records for its verification token
// @Tags         admin
// @Produce      json
// @Param        id        path  string  true  "Client ID (UUID)"
// @Param        domainId  path  string  true  "Domain ID (UUID)"
// @Success      200  {object}  verifyResp
// @Failure      404  {object}  map[string]string
// @Router       /admin/api/clients/{id}/domains/{domainId}/verify [post]
func (h *Controller) verify(c echo.Context) error {
	clientID, err1 := uuid.Parse(c.Param("id"))
	domainID, err2 := uuid.Parse(c.Param("domainId"))
	if err1 != nil || err2 != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}
	res, err := h.v.Verify(c.Request().Context(), clientID, domainID)
	if errors.Is(err, cdomain.ErrDomainNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	if err != nil {
		c.Logger().Errorf("verify: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, verifyResp{
		Outcome:  res.Outcome,
		Token:    vdomain.ExpectedToken(res.Domain.Name),
		Detail:   res.Detail,
		Domain:   cctrl.ToDomainResp(res.Domain),
		Verified: res.Outcome == vdomain.Verified,
	})
}
