package controller

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	cdomain "github.com/corvusHold/mailrelay/internal/clients/domain"
	"github.com/corvusHold/mailrelay/internal/platform/validation"
	sdomain "github.com/corvusHold/mailrelay/internal/settings/domain"
)

// Manager stores validated settings and lists them masked.
type Manager interface {
	Set(ctx context.Context, key string, clientID *uuid.UUID, value string) error
	List(ctx context.Context, clientID *uuid.UUID) ([]sdomain.Setting, error)
}

type Controller struct {
	svc Manager
}

func New(svc Manager) *Controller { return &Controller{svc: svc} }

func (h *Controller) RegisterAdmin(g *echo.Group) {
	g.GET("/settings", h.list)
	g.PUT("/settings/:key", h.set)
}

// List settings godoc
// @Summary      List transport settings
// @Description  Global rows, or one client's overrides when client_id is given. Secret values are masked.
// @Tags         admin
// @Produce      json
// @Param        client_id  query  string  false  "Client ID"
// @Success      200  {array}   sdomain.Setting
// @Failure      400  {object}  map[string]string
// @Router       /admin/api/settings [get]
func (h *Controller) list(c echo.Context) error {
	var clientID *uuid.UUID
	if raw := c.QueryParam("client_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid client_id"})
		}
		clientID = &id
	}
	rows, err := h.svc.List(c.Request().Context(), clientID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list settings"})
	}
	return c.JSON(http.StatusOK, rows)
}

type setReq struct {
	Value    string `json:"value" validate:"required"`
	ClientID string `json:"client_id,omitempty" validate:"omitempty,uuid"`
}

// Set setting godoc
// @Summary      Set a transport setting
// @Description  Stores a global value, or a per-client override when client_id is given
// @Tags         admin
// @Accept       json
// @Param        key   path  string  true  "Setting key"
// @Param        body  body  setReq  true  "value"
// @Success      204
// @Failure      400  {object}  map[string]string
// @Router       /admin/api/settings/{key} [put]
func (h *Controller) set(c echo.Context) error {
	key := c.Param("key")
	if !slices.Contains(sdomain.Keys, key) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown setting"})
	}
	var req setReq
	if ok, err := validation.BindAndValidate(c, &req); !ok {
		return err
	}
	var clientID *uuid.UUID
	if req.ClientID != "" {
		id := uuid.MustParse(req.ClientID)
		clientID = &id
	}
	err := h.svc.Set(c.Request().Context(), key, clientID, req.Value)
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, cdomain.ErrClientNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
}
