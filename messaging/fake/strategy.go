package fake

import (
	"context"
	"sync"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
)

// Strategy is a scriptable provider strategy. Nil funcs succeed.
type Strategy struct {
	ChannelType channel.ChannelType
	ChannelKind channel.Kind

	ConfigureFn  func(ctx context.Context, ch *channel.Channel) error
	SendFn       func(ctx context.Context, ch *channel.Channel, p channel.OutboundPayload) (*channel.SendResult, error)
	WebhookFn    func(ctx context.Context, payload []byte, identifier string) error
	DisconnectFn func(ctx context.Context, ch *channel.Channel) error
	CleanupFn    func(ctx context.Context, ch *channel.Channel) error
	StatusFn     func(ctx context.Context, ch *channel.Channel) (*channel.Status, error)
	QRFn         func(ctx context.Context, ch *channel.Channel) error
	LogoutFn     func(ctx context.Context, ch *channel.Channel) error
	AdminFn      func(ctx context.Context, ch *channel.Channel) (*channel.AdminState, error)

	mu    sync.Mutex
	calls map[string]int
}

func NewQRStrategy() *Strategy {
	return &Strategy{ChannelType: channel.ChannelTypeWhapi, ChannelKind: channel.KindQRSession}
}

func NewHTTPStrategy() *Strategy {
	return &Strategy{ChannelType: channel.ChannelTypeCloudAPI, ChannelKind: channel.KindHTTPAPI}
}

func (s *Strategy) count(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[name]++
}

// Calls returns how many times the named capability was invoked.
func (s *Strategy) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *Strategy) Type() channel.ChannelType { return s.ChannelType }

func (s *Strategy) Kind() channel.Kind { return s.ChannelKind }

func (s *Strategy) Configure(ctx context.Context, ch *channel.Channel) error {
	s.count("configure")
	if s.ConfigureFn != nil {
		return s.ConfigureFn(ctx, ch)
	}
	return nil
}

func (s *Strategy) SendMessage(ctx context.Context, ch *channel.Channel, p channel.OutboundPayload) (*channel.SendResult, error) {
	s.count("send")
	if s.SendFn != nil {
		return s.SendFn(ctx, ch, p)
	}
	return &channel.SendResult{ID: "wamid.1", Status: "sent", Sent: true}, nil
}

func (s *Strategy) HandleWebhook(ctx context.Context, payload []byte, identifier string) error {
	s.count("webhook")
	if s.WebhookFn != nil {
		return s.WebhookFn(ctx, payload, identifier)
	}
	return nil
}

func (s *Strategy) Disconnect(ctx context.Context, ch *channel.Channel) error {
	s.count("disconnect")
	if s.DisconnectFn != nil {
		return s.DisconnectFn(ctx, ch)
	}
	return nil
}

func (s *Strategy) Cleanup(ctx context.Context, ch *channel.Channel) error {
	s.count("cleanup")
	if s.CleanupFn != nil {
		return s.CleanupFn(ctx, ch)
	}
	return nil
}

func (s *Strategy) GetStatus(ctx context.Context, ch *channel.Channel) (*channel.Status, error) {
	s.count("status")
	if s.StatusFn != nil {
		return s.StatusFn(ctx, ch)
	}
	return &channel.Status{Connected: true}, nil
}

func (s *Strategy) InitiateQRSession(ctx context.Context, ch *channel.Channel) error {
	s.count("qr")
	if s.QRFn != nil {
		return s.QRFn(ctx, ch)
	}
	return nil
}

func (s *Strategy) Logout(ctx context.Context, ch *channel.Channel) error {
	s.count("logout")
	if s.LogoutFn != nil {
		return s.LogoutFn(ctx, ch)
	}
	return nil
}

func (s *Strategy) SyncAdminState(ctx context.Context, ch *channel.Channel) (*channel.AdminState, error) {
	s.count("admin")
	if s.AdminFn != nil {
		return s.AdminFn(ctx, ch)
	}
	return nil, nil
}
