package whapi

import (
	"context"
	"net/http"

	"github.com/AzielCF/az-connect/infrastructure/httpclient"
	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/sirupsen/logrus"
)

// Gate talks to the live-session API. Every call is authenticated with the channel token.
type Gate struct {
	http *httpclient.Client
}

func NewGate(client *httpclient.Client) *Gate {
	return &Gate{http: client}
}

func (g *Gate) Health(ctx context.Context, token string) (Health, error) {
	var res HealthResponse
	if err := g.http.JSON(ctx, "health", http.MethodGet, "/health?wakeup=true", token, nil, &res); err != nil {
		return Health{}, err
	}
	return res.Normalize(), nil
}

// LoginQR requests a fresh QR code. A 409 means the session is already authenticated.
func (g *Gate) LoginQR(ctx context.Context, token string) (*QRCode, error) {
	var res QRCode
	if err := g.http.JSON(ctx, "login_qr", http.MethodGet, "/users/login?wakeup=true", token, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Logout ends the session. A missing session (404) is treated as already logged out.
func (g *Gate) Logout(ctx context.Context, token string) error {
	err := g.http.JSON(ctx, "logout", http.MethodPost, "/users/logout", token, nil, nil)
	if err != nil && pkgError.IsNotFoundOnProvider(err) {
		logrus.Debug("[WHAPI] Logout on missing session ignored")
		return nil
	}
	return err
}

func (g *Gate) SendText(ctx context.Context, token string, req SendTextRequest) (*SendResponse, error) {
	var res SendResponse
	if err := g.http.JSON(ctx, "send_text", http.MethodPost, "/messages/text", token, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SendMedia posts to /messages/{kind}; kind is image, video, audio or document.
func (g *Gate) SendMedia(ctx context.Context, token, kind string, req SendMediaRequest) (*SendResponse, error) {
	var res SendResponse
	if err := g.http.JSON(ctx, "send_"+kind, http.MethodPost, "/messages/"+kind, token, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SetWebhook replaces the channel's webhook subscriptions with url for the given events.
func (g *Gate) SetWebhook(ctx context.Context, token, url string, events []WebhookEvent) error {
	body := Settings{Webhooks: []Webhook{{URL: url, Events: events, Mode: "body"}}}
	return g.http.JSON(ctx, "settings", http.MethodPatch, "/settings", token, body, nil)
}

// DefaultWebhookEvents are the subscriptions the strategy knows how to classify.
func DefaultWebhookEvents() []WebhookEvent {
	return []WebhookEvent{
		{Type: "messages", Method: "post"},
		{Type: "messages", Method: "put"},
		{Type: "statuses", Method: "post"},
		{Type: "users", Method: "post"},
		{Type: "users", Method: "delete"},
		{Type: "channel", Method: "post"},
	}
}
