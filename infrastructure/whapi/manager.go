package whapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/AzielCF/az-connect/infrastructure/httpclient"
	pkgError "github.com/AzielCF/az-connect/pkg/error"
)

// Manager talks to the partner API that owns channel resources.
type Manager struct {
	http      *httpclient.Client
	token     string
	projectID string
}

func NewManager(client *httpclient.Client, partnerToken, projectID string) *Manager {
	return &Manager{http: client, token: partnerToken, projectID: projectID}
}

// Enabled reports whether partner credentials are configured.
func (m *Manager) Enabled() bool {
	return m.token != ""
}

func (m *Manager) CreateChannel(ctx context.Context, name string) (*RemoteChannel, error) {
	body := map[string]string{"name": name, "projectId": m.projectID}
	var res RemoteChannel
	if err := m.http.JSON(ctx, "create_channel", http.MethodPut, "/channels", m.token, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (m *Manager) ExtendChannel(ctx context.Context, id string, days int) error {
	body := map[string]any{"days": days}
	return m.http.JSON(ctx, "extend_channel", http.MethodPost, "/channels/"+url.PathEscape(id)+"/extend", m.token, body, nil)
}

// DeleteChannel removes the remote resource. 404 counts as success.
func (m *Manager) DeleteChannel(ctx context.Context, id string) error {
	err := m.http.JSON(ctx, "delete_channel", http.MethodDelete, "/channels/"+url.PathEscape(id), m.token, nil, nil)
	if err != nil && pkgError.IsNotFoundOnProvider(err) {
		return nil
	}
	return err
}

func (m *Manager) GetChannel(ctx context.Context, id string) (*RemoteChannel, error) {
	var res RemoteChannel
	if err := m.http.JSON(ctx, "get_channel", http.MethodGet, "/channels/"+url.PathEscape(id), m.token, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
