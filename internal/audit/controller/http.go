package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/corvusHold/mailrelay/internal/audit/domain"
)

type Controller struct {
	svc   domain.Service
	queue func() any
}

// New builds the controller. queue, when set, reports live delivery queue
// stats on the dashboard.
func New(svc domain.Service, queue func() any) *Controller {
	return &Controller{svc: svc, queue: queue}
}

func (h *Controller) RegisterAdmin(g *echo.Group) {
	g.GET("/dashboard", h.dashboard)
	g.GET("/logs", h.listLogs)
	g.GET("/logs/:id", h.getLog)
	g.POST("/logs/purge", h.purge)
}

type entryResp struct {
	ID         int64  `json:"id"`
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name,omitempty"`
	SentAt     string `json:"sent_at"`
	From       string `json:"from"`
	To         string `json:"to"`
	Subject    string `json:"subject"`
	Body       string `json:"body,omitempty"`
}

func toEntryResp(e domain.Entry, withBody bool) entryResp {
	r := entryResp{
		ID:         e.ID,
		ClientID:   e.ClientID.String(),
		ClientName: e.ClientName,
		SentAt:     e.SentAt.UTC().Format(time.RFC3339Nano),
		From:       e.From,
		To:         e.To,
		Subject:    e.Subject,
	}
	if withBody {
		r.Body = e.Body
	}
	return r
}

type dashboardResp struct {
	TotalEmails   int64       `json:"total_emails"`
	EmailsLast24h int64       `json:"emails_last_24h"`
	TotalClients  int64       `json:"total_clients"`
	Recent        []entryResp `json:"recent"`
	Queue         any         `json:"queue,omitempty"`
}

func internalError(c echo.Context, err error) error {
	c.Logger().Errorf("audit: %v", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

// Dashboard godoc
// @Summary      Delivery dashboard
// @Description  Totals, last 24h volume, and the 20 most recent emails
// @Tags         admin
// @Produce      json
// @Success      200  {object}  dashboardResp
// @Router       /admin/api/dashboard [get]
func (h *Controller) dashboard(c echo.Context) error {
	ctx := c.Request().Context()
	st, err := h.svc.Stats(ctx, 24*time.Hour)
	if err != nil {
		return internalError(c, err)
	}
	recent, err := h.svc.Recent(ctx, 20)
	if err != nil {
		return internalError(c, err)
	}
	resp := dashboardResp{
		TotalEmails:   st.TotalEmails,
		EmailsLast24h: st.WindowEmails,
		TotalClients:  st.TotalClients,
		Recent:        make([]entryResp, 0, len(recent)),
	}
	for _, e := range recent {
		resp.Recent = append(resp.Recent, toEntryResp(e, false))
	}
	if h.queue != nil {
		resp.Queue = h.queue()
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Controller) listLogs(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	items, err := h.svc.Recent(c.Request().Context(), limit)
	if err != nil {
		return internalError(c, err)
	}
	out := make([]entryResp, 0, len(items))
	for _, e := range items {
		out = append(out, toEntryResp(e, false))
	}
	return c.JSON(http.StatusOK, out)
}

// Get log godoc
// @Summary      Get one email log with its body
// @Tags         admin
// @Produce      json
// @Param        id   path  int  true  "Log ID"
// @Success      200  {object}  entryResp
// @Failure      404  {object}  map[string]string
// @Router       /admin/api/logs/{id} [get]
func (h *Controller) getLog(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}
	e, err := h.svc.Get(c.Request().Context(), id)
	if errors.Is(err, domain.ErrEntryNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Email log not found"})
	}
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, toEntryResp(e, true))
}

// Purge logs godoc
// @Summary      Purge email logs
// @Description  Deletes every log, or only those older than older_than (Go duration)
// @Tags         admin
// @Produce      json
// @Param        older_than  query  string  false  "e.g. 720h"
// @Success      200  {object}  map[string]int64
// @Router       /admin/api/logs/purge [post]
func (h *Controller) purge(c echo.Context) error {
	var age time.Duration
	if v := c.QueryParam("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid older_than"})
		}
		age = d
	}
	n, err := h.svc.PurgeOlderThan(c.Request().Context(), age)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"removed": n})
}
