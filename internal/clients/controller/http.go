package controller

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	domain "github.com/corvusHold/mailrelay/internal/clients/domain"
	"github.com/corvusHold/mailrelay/internal/platform/validation"
)

type Controller struct {
	svc domain.Service
}

func New(svc domain.Service) *Controller {
	return &Controller{svc: svc}
}

// RegisterAdmin mounts the tenant directory routes on an authenticated admin
// group.
func (h *Controller) RegisterAdmin(g *echo.Group) {
	g.GET("/clients", h.listClients)
	g.POST("/clients", h.createClient)
	g.GET("/clients/:id", h.getClient)
	g.DELETE("/clients/:id", h.deleteClient)
	g.GET("/clients/:id/domains", h.listDomains)
	g.POST("/clients/:id/domains", h.addDomain)
}

type createClientReq struct {
	Name string `json:"name" validate:"required"`
}

type addDomainReq struct {
	Domain string `json:"domain" validate:"required,hostname_rfc1123"`
}

type clientResp struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	APIKey    string       `json:"api_key"`
	CreatedAt string       `json:"created_at"`
	Domains   []DomainResp `json:"domains,omitempty"`
}

type DomainResp struct {
	ID         string `json:"id"`
	ClientID   string `json:"client_id"`
	Name       string `json:"domain"`
	Verified   bool   `json:"verified"`
	VerifiedAt string `json:"verified_at,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func toClientResp(c domain.Client) clientResp {
	return clientResp{ID: c.ID.String(), Name: c.Name, APIKey: c.APIKey, CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339)}
}

// ToDomainResp renders a domain for JSON responses.
func ToDomainResp(d domain.Domain) DomainResp {
	r := DomainResp{
		ID:        d.ID.String(),
		ClientID:  d.ClientID.String(),
		Name:      d.Name,
		Verified:  d.Verified,
		CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
	}
	if d.VerifiedAt != nil {
		r.VerifiedAt = d.VerifiedAt.UTC().Format(time.RFC3339)
	}
	return r
}

func badID(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
}

// writeError maps directory sentinels to HTTP statuses.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrClientNotFound), errors.Is(err, domain.ErrDomainNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrDuplicateName), errors.Is(err, domain.ErrDuplicateDomain):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNameRequired), errors.Is(err, domain.ErrDomainRequired):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	c.Logger().Errorf("clients: %v", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

// List clients godoc
// @Summary      List clients
// @Tags         admin
// @Produce      json
// @Success      200  {array}  clientResp
// @Router       /admin/api/clients [get]
func (h *Controller) listClients(c echo.Context) error {
	items, err := h.svc.ListClients(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]clientResp, 0, len(items))
	for _, it := range items {
		out = append(out, toClientResp(it))
	}
	return c.JSON(http.StatusOK, out)
}

// Create client godoc
// @Summary      Create client
// @Description  Creates a client and issues its API key
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        body  body  createClientReq  true  "name"
// @Success      201   {object}  clientResp
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /admin/api/clients [post]
func (h *Controller) createClient(c echo.Context) error {
	var req createClientReq
	if ok, err := validation.BindAndValidate(c, &req); !ok {
		return err
	}
	cl, err := h.svc.CreateClient(c.Request().Context(), req.Name)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toClientResp(cl))
}

// Get client godoc
// @Summary      Get client with its domains
// @Tags         admin
// @Produce      json
// @Param        id   path  string  true  "Client ID (UUID)"
// @Success      200  {object}  clientResp
// @Failure      404  {object}  map[string]string
// @Router       /admin/api/clients/{id} [get]
func (h *Controller) getClient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badID(c)
	}
	ctx := c.Request().Context()
	cl, err := h.svc.GetClient(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	ds, err := h.svc.ListDomains(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	resp := toClientResp(cl)
	for _, d := range ds {
		resp.Domains = append(resp.Domains, ToDomainResp(d))
	}
	return c.JSON(http.StatusOK, resp)
}

// Delete client godoc
// @Summary      Delete client
// @Description  Deletes the client with its domains and email logs
// @Tags         admin
// @Param        id   path  string  true  "Client ID (UUID)"
// @Success      204
// @Router       /admin/api/clients/{id} [delete]
func (h *Controller) deleteClient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badID(c)
	}
	if err := h.svc.DeleteClient(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Controller) listDomains(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badID(c)
	}
	ctx := c.Request().Context()
	if _, err := h.svc.GetClient(ctx, id); err != nil {
		return writeError(c, err)
	}
	ds, err := h.svc.ListDomains(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]DomainResp, 0, len(ds))
	for _, d := range ds {
		out = append(out, ToDomainResp(d))
	}
	return c.JSON(http.StatusOK, out)
}

// Add domain godoc
// @Summary      Add sender domain
// @Description  Registers an unverified domain for the client
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        id    path  string        true  "Client ID (UUID)"
// @Param        body  body  addDomainReq  true  "domain"
// @Success      201   {object}  DomainResp
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /admin/api/clients/{id}/domains [post]
func (h *Controller) addDomain(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badID(c)
	}
	var req addDomainReq
	if ok, err := validation.BindAndValidate(c, &req); !ok {
		return err
	}
	d, err := h.svc.AddDomain(c.Request().Context(), id, req.Domain)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, ToDomainResp(d))
}
