package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AzielCF/az-connect/messaging/application"
	"github.com/AzielCF/az-connect/messaging/domain/channel"
	"github.com/AzielCF/az-connect/messaging/fake"
	"github.com/AzielCF/az-connect/pkg/utils"
	"github.com/AzielCF/az-connect/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type restHarness struct {
	app      *fiber.App
	channels *fake.ChannelRepo
	qr       *fake.Strategy
	http     *fake.Strategy
}

func newRestHarness(t *testing.T, channels ...channel.Channel) *restHarness {
	t.Helper()
	h := &restHarness{
		channels: fake.NewChannelRepo(channels...),
		qr:       fake.NewQRStrategy(),
		http:     fake.NewHTTPStrategy(),
	}
	manager := application.NewChannelManager(h.channels, application.NewRegistry(h.qr, h.http), &fake.Notifier{})

	h.app = fiber.New()
	h.app.Use(middleware.Recovery())
	InitRestChannel(h.app.Group("/api"), manager)
	return h
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (int, utils.ResponseData, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var data utils.ResponseData
	_ = json.Unmarshal(raw, &data)
	return resp.StatusCode, data, raw
}

func TestChannelRoutes_CreateHidesCredentials(t *testing.T) {
	h := newRestHarness(t)

	status, data, raw := doJSON(t, h.app, http.MethodPost, "/api/channels", map[string]any{
		"company_id": "co-1",
		"type":       "cloud_api",
		"name":       "Sales",
		"config":     map[string]any{"phone_number_id": "1055", "access_token": "EAAG-secret"},
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	assert.Equal(t, "SUCCESS", data.Code)
	assert.Equal(t, "INACTIVE", data.Results.(map[string]any)["status"])
	assert.NotContains(t, string(raw), "EAAG-secret")
}

func TestChannelRoutes_DuplicateIsValidationError(t *testing.T) {
	existing := channel.Channel{ID: "c1", CompanyID: "co-1", Type: channel.ChannelTypeCloudAPI, ExternalRef: "1055", Status: channel.StatusActive}
	h := newRestHarness(t, existing)

	status, data, _ := doJSON(t, h.app, http.MethodPost, "/api/channels", map[string]any{
		"company_id": "co-1",
		"type":       "cloud_api",
		"config":     map[string]any{"phone_number_id": "1055", "access_token": "EAAG"},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", data.Code)
}

func TestChannelRoutes_NotFound(t *testing.T) {
	h := newRestHarness(t)
	status, _, _ := doJSON(t, h.app, http.MethodGet, "/api/channels/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestChannelRoutes_ListRequiresCompany(t *testing.T) {
	h := newRestHarness(t, channel.Channel{ID: "c1", CompanyID: "co-1", Type: channel.ChannelTypeCloudAPI})

	status, _, _ := doJSON(t, h.app, http.MethodGet, "/api/channels", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, data, _ := doJSON(t, h.app, http.MethodGet, "/api/channels?company_id=co-1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, data.Results, 1)
}

func TestChannelRoutes_SendOnInactiveChannelConflicts(t *testing.T) {
	h := newRestHarness(t, channel.Channel{ID: "q1", CompanyID: "co-1", Type: channel.ChannelTypeWhapi, Status: channel.StatusConnecting})
	h.qr.StatusFn = func(context.Context, *channel.Channel) (*channel.Status, error) {
		return &channel.Status{Connected: false}, nil
	}

	status, data, _ := doJSON(t, h.app, http.MethodPost, "/api/channels/q1/messages", map[string]any{"to": "5511888", "body": "hi"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CHANNEL_STATE_ERROR", data.Code)
	assert.Zero(t, h.qr.Calls("send"))
}

func TestChannelRoutes_ConnectAndDisconnect(t *testing.T) {
	h := newRestHarness(t,
		channel.Channel{ID: "c1", CompanyID: "co-1", Type: channel.ChannelTypeCloudAPI, Status: channel.StatusInactive,
			Config: channel.ConnectionConfig{PhoneNumberID: "1055", AccessToken: "EAAG"}},
	)

	status, data, _ := doJSON(t, h.app, http.MethodPost, "/api/channels/c1/connect", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ACTIVE", data.Results.(map[string]any)["status"])

	status, _, _ = doJSON(t, h.app, http.MethodPost, "/api/channels/c1/connect", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _, _ = doJSON(t, h.app, http.MethodPost, "/api/channels/c1/disconnect", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, channel.StatusInactive, h.channels.Status("c1"))
}

func TestChannelRoutes_BadBody(t *testing.T) {
	h := newRestHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/channels", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
