package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvusHold/mailrelay/internal/platform/memstore"
	"github.com/corvusHold/mailrelay/internal/platform/validation"
	sdomain "github.com/corvusHold/mailrelay/internal/settings/domain"
	ssvc "github.com/corvusHold/mailrelay/internal/settings/service"
)

func TestSet(t *testing.T) {
	store := memstore.New()
	c, err := store.Clients().CreateClient(context.Background(), uuid.New(), "Acme", "k")
	require.NoError(t, err)
	svc := ssvc.New(store.Settings())

	e := echo.New()
	e.Validator = validation.New()
	New(svc).RegisterAdmin(e.Group("/admin/api"))

	put := func(key, body string) int {
		req := httptest.NewRequest(http.MethodPut, "/admin/api/settings/"+key, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, put(sdomain.KeyEmailProvider, `{"value":"ses"}`))
	assert.Equal(t, http.StatusNoContent, put(sdomain.KeySMTPPort, `{"value":"2525","client_id":"`+c.ID.String()+`"}`))
	assert.Equal(t, http.StatusBadRequest, put(sdomain.KeyEmailProvider, `{"value":"brevo"}`))
	assert.Equal(t, http.StatusBadRequest, put("nope", `{"value":"x"}`))
	assert.Equal(t, http.StatusBadRequest, put(sdomain.KeySMTPPort, `{"value":"1","client_id":"bad"}`))
	assert.Equal(t, http.StatusNotFound, put(sdomain.KeySMTPPort, `{"value":"1","client_id":"`+uuid.NewString()+`"}`))

	ctx := context.Background()
	prov, err := svc.GetString(ctx, sdomain.KeyEmailProvider, nil, "smtp")
	require.NoError(t, err)
	assert.Equal(t, "ses", prov)
	port, err := svc.GetInt(ctx, sdomain.KeySMTPPort, &c.ID, 1025)
	require.NoError(t, err)
	assert.Equal(t, 2525, port)
	port, err = svc.GetInt(ctx, sdomain.KeySMTPPort, nil, 1025)
	require.NoError(t, err)
	assert.Equal(t, 1025, port)
}

func TestList_MasksSecrets(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	c, err := store.Clients().CreateClient(ctx, uuid.New(), "Acme", "k")
	require.NoError(t, err)
	svc := ssvc.New(store.Settings())
	require.NoError(t, svc.Set(ctx, sdomain.KeySMTPPassword, nil, "hunter2"))
	require.NoError(t, svc.Set(ctx, sdomain.KeySMTPPort, &c.ID, "2525"))

	e := echo.New()
	e.Validator = validation.New()
	New(svc).RegisterAdmin(e.Group("/admin/api"))

	get := func(query string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/api/settings"+query, nil))
		return rec
	}

	rec := get("")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
	var global []sdomain.Setting
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &global))
	require.Len(t, global, 1)
	assert.Equal(t, sdomain.Masked, global[0].Value)
	assert.True(t, global[0].Secret)

	rec = get("?client_id=" + c.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var overrides []sdomain.Setting
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overrides))
	require.Len(t, overrides, 1)
	assert.Equal(t, "2525", overrides[0].Value)

	assert.Equal(t, http.StatusBadRequest, get("?client_id=bad").Code)
}
