package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/corvusHold/mailrelay/internal/delivery/domain"
	dsvc "github.com/corvusHold/mailrelay/internal/delivery/service"
	"github.com/corvusHold/mailrelay/internal/gate"
	"github.com/corvusHold/mailrelay/internal/platform/validation"
)

type Controller struct {
	svc  domain.Service
	gate *gate.Gate
}

func New(svc domain.Service, g *gate.Gate) *Controller {
	return &Controller{svc: svc, gate: g}
}

// Register mounts the send routes behind API-key authentication. pre runs
// before the key is checked (IP throttling); post runs after it.
func (h *Controller) Register(e *echo.Echo, pre []echo.MiddlewareFunc, post ...echo.MiddlewareFunc) {
	chain := make([]echo.MiddlewareFunc, 0, len(pre)+1+len(post))
	chain = append(chain, pre...)
	chain = append(chain, gate.RequireAPIKey(h.gate))
	chain = append(chain, post...)
	g := e.Group("/api/v1", chain...)
	g.POST("/send", h.send)
	g.POST("/send/async", h.sendAsync)
	// Unversioned path kept for existing integrations.
	e.POST("/api/send", h.send, chain...)
}

type sendReq struct {
	From    string `json:"from" validate:"required"`
	To      string `json:"to" validate:"required"`
	Subject string `json:"subject" validate:"required"`
	HTML    string `json:"html" validate:"required"`
}

type sendResp struct {
	Message   string `json:"message"`
	MessageID string `json:"message_id,omitempty"`
	AuditID   int64  `json:"audit_id,omitempty"`
}

// authorize binds the body and checks the sender against the principal set by
// the API-key middleware. ok=false means the response has been written.
func (h *Controller) authorize(c echo.Context) (domain.Job, bool, error) {
	var req sendReq
	if ok, err := validation.BindAndValidate(c, &req); !ok {
		return domain.Job{}, false, err
	}
	p, ok := gate.PrincipalFrom(c)
	if !ok {
		return domain.Job{}, false, gate.WriteError(c, &gate.AuthError{Kind: gate.MissingCredential})
	}
	if _, err := h.gate.CheckSender(p, req.From); err != nil {
		return domain.Job{}, false, gate.WriteError(c, err)
	}
	return domain.Job{ClientID: p.Client.ID, From: req.From, To: req.To, Subject: req.Subject, HTML: req.HTML}, true, nil
}

// Send email godoc
// @Summary      Send an email now
// @Description  Transmits the message synchronously and records it in the audit log
// @Tags         send
// @Accept       json
// @Produce      json
// @Param        X-API-Key  header  string   true  "Client API key"
// @Param        body       body    sendReq  true  "message"
// @Success      200  {object}  sendResp
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/send [post]
func (h *Controller) send(c echo.Context) error {
	job, ok, err := h.authorize(c)
	if !ok {
		return err
	}
	r, err := h.svc.SendNow(c.Request().Context(), job)
	var te *domain.TransportError
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, sendResp{Message: "Email sent successfully", MessageID: r.MessageID, AuditID: r.AuditID})
	case errors.As(err, &te):
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to send email"})
	case errors.Is(err, dsvc.ErrNotRecorded):
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Email sent but not recorded", "message_id": r.MessageID})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// Queue email godoc
// @Summary      Queue an email
// @Description  Accepts the message for in-order background delivery
// @Tags         send
// @Accept       json
// @Produce      json
// @Param        X-API-Key  header  string   true  "Client API key"
// @Param        body       body    sendReq  true  "message"
// @Success      202  {object}  sendResp
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /api/v1/send/async [post]
func (h *Controller) sendAsync(c echo.Context) error {
	job, ok, err := h.authorize(c)
	if !ok {
		return err
	}
	if err := h.svc.Enqueue(c.Request().Context(), job); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	return c.JSON(http.StatusAccepted, sendResp{Message: "Email queued for delivery"})
}
