package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svc "github.com/corvusHold/mailrelay/internal/clients/service"
	"github.com/corvusHold/mailrelay/internal/platform/memstore"
	"github.com/corvusHold/mailrelay/internal/platform/validation"
)

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = validation.New()
	New(svc.New(memstore.New().Clients())).RegisterAdmin(e.Group("/admin/api"))
	return e
}

func call(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestClientLifecycle(t *testing.T) {
	e := newEcho()

	rec := call(e, http.MethodPost, "/admin/api/clients", `{"name":"Acme"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created clientResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Acme", created.Name)
	assert.Len(t, created.APIKey, 64)

	rec = call(e, http.MethodPost, "/admin/api/clients", `{"name":"Acme"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(e, http.MethodPost, "/admin/api/clients/"+created.ID+"/domains", `{"domain":"Acme.COM"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var d DomainResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, "acme.com", d.Name)
	assert.False(t, d.Verified)

	rec = call(e, http.MethodPost, "/admin/api/clients/"+created.ID+"/domains", `{"domain":"acme.com"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(e, http.MethodGet, "/admin/api/clients/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got clientResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Domains, 1)

	rec = call(e, http.MethodGet, "/admin/api/clients", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []clientResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = call(e, http.MethodDelete, "/admin/api/clients/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = call(e, http.MethodGet, "/admin/api/clients/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = call(e, http.MethodGet, "/admin/api/clients/"+created.ID+"/domains", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBadRequests(t *testing.T) {
	e := newEcho()
	assert.Equal(t, http.StatusBadRequest, call(e, http.MethodPost, "/admin/api/clients", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(e, http.MethodGet, "/admin/api/clients/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusNotFound,
		call(e, http.MethodPost, "/admin/api/clients/7d3c7b0e-3f7a-4b8e-9d7a-2c1f8f1e0a11/domains", `{"domain":"x.io"}`).Code)
}
