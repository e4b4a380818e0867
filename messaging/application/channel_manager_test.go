package application

import (
	"context"
	"errors"
	"testing"

	whapiclient "github.com/AzielCF/az-connect/infrastructure/whapi"
	"github.com/AzielCF/az-connect/messaging/domain/channel"
	"github.com/AzielCF/az-connect/messaging/domain/event"
	"github.com/AzielCF/az-connect/messaging/fake"
	"github.com/AzielCF/az-connect/messaging/strategy/whapi"
	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type managerHarness struct {
	m        *ChannelManager
	channels *fake.ChannelRepo
	notifier *fake.Notifier
	qr       *fake.Strategy
	http     *fake.Strategy
}

func newManagerHarness(channels ...channel.Channel) *managerHarness {
	h := &managerHarness{
		channels: fake.NewChannelRepo(channels...),
		notifier: &fake.Notifier{},
		qr:       fake.NewQRStrategy(),
		http:     fake.NewHTTPStrategy(),
	}
	h.m = NewChannelManager(h.channels, NewRegistry(h.qr, h.http), h.notifier)
	h.m.async = func(fn func()) { fn() }
	return h
}

func TestCreateChannel_RejectsDuplicateIdentifier(t *testing.T) {
	h := newManagerHarness(cloudChannel("existing", channel.StatusActive))
	ctx := context.Background()

	_, err := h.m.CreateChannel(ctx, channel.CreateRequest{
		CompanyID: "co-1",
		Type:      channel.ChannelTypeCloudAPI,
		Config:    channel.ConnectionConfig{PhoneNumberID: "1055", AccessToken: "EAAG"},
	})
	assert.ErrorIs(t, err, channel.ErrDuplicateChannel)

	ch, err := h.m.CreateChannel(ctx, channel.CreateRequest{
		CompanyID: "co-1",
		Type:      channel.ChannelTypeCloudAPI,
		Config:    channel.ConnectionConfig{PhoneNumberID: "2077", AccessToken: "EAAG"},
	})
	require.NoError(t, err)
	assert.Equal(t, channel.StatusInactive, ch.Status)
	assert.Equal(t, "2077", ch.ExternalRef)

	// the same identifier under another company is a different slot
	_, err = h.m.CreateChannel(ctx, channel.CreateRequest{
		CompanyID: "co-2",
		Type:      channel.ChannelTypeCloudAPI,
		Config:    channel.ConnectionConfig{PhoneNumberID: "1055", AccessToken: "EAAG"},
	})
	assert.NoError(t, err)
}

func TestConnect_HTTPProviderGoesActive(t *testing.T) {
	h := newManagerHarness(cloudChannel("c1", channel.StatusInactive))
	h.http.ConfigureFn = func(_ context.Context, ch *channel.Channel) error {
		ch.Number = "15550100000"
		return nil
	}

	ch, err := h.m.Connect(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, channel.StatusActive, ch.Status)
	stored := h.channels.Channel("c1")
	assert.Equal(t, channel.StatusActive, stored.Status)
	assert.Equal(t, "15550100000", stored.Number)
	assert.Len(t, h.notifier.Named(event.ChannelConnected), 1)
}

func TestConnect_FailureSetsError(t *testing.T) {
	h := newManagerHarness(cloudChannel("c1", channel.StatusInactive))
	h.http.ConfigureFn = func(context.Context, *channel.Channel) error {
		return &pkgError.ProviderError{Provider: "cloud_api", Op: "phone_number", Status: 401}
	}

	_, err := h.m.Connect(context.Background(), "c1")
	require.Error(t, err)
	_, typed := pkgError.AsGeneric(err)
	assert.True(t, typed)
	assert.Equal(t, channel.StatusError, h.channels.Status("c1"))
	assert.Len(t, h.notifier.Named(event.ChannelError), 1)
}

func TestConnect_RejectsActive(t *testing.T) {
	h := newManagerHarness(qrChannel("q1", channel.StatusActive))
	_, err := h.m.Connect(context.Background(), "q1")
	assert.ErrorIs(t, err, channel.ErrAlreadyActive)
	assert.Zero(t, h.qr.Calls("configure"))
}

func TestConnect_QRProviderReturnsConnecting(t *testing.T) {
	ch := qrChannel("q1", channel.StatusInactive)
	ch.Metadata.DisconnectedByUser = true
	h := newManagerHarness(ch)

	got, err := h.m.Connect(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, channel.StatusConnecting, got.Status)
	assert.Equal(t, channel.StatusConnecting, h.channels.Status("q1"))
	assert.False(t, h.channels.Channel("q1").Metadata.DisconnectedByUser)
	assert.Equal(t, 1, h.qr.Calls("configure"))
	assert.Equal(t, 1, h.qr.Calls("qr"))
}

func TestDisconnect_AlwaysInactive(t *testing.T) {
	for _, status := range []channel.ChannelStatus{channel.StatusActive, channel.StatusConnecting, channel.StatusError, channel.StatusInactive} {
		for _, fail := range []bool{false, true} {
			h := newManagerHarness(qrChannel("q1", status))
			if fail {
				h.qr.DisconnectFn = func(context.Context, *channel.Channel) error { return errors.New("gate down") }
			}

			err := h.m.Disconnect(context.Background(), "q1")
			if fail {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			stored := h.channels.Channel("q1")
			assert.Equal(t, channel.StatusInactive, stored.Status, "from %s (fail=%v)", status, fail)
			assert.True(t, stored.Metadata.DisconnectedByUser)
		}
	}
}

func TestSendMessage_RejectsInactiveWithoutProviderCall(t *testing.T) {
	h := newManagerHarness(qrChannel("q1", channel.StatusConnecting))
	h.qr.StatusFn = func(context.Context, *channel.Channel) (*channel.Status, error) {
		return &channel.Status{Connected: false}, nil
	}

	_, err := h.m.SendMessage(context.Background(), "q1", channel.OutboundPayload{To: "5511888", Body: "hi"})
	assert.ErrorIs(t, err, channel.ErrChannelNotActive)
	assert.Zero(t, h.qr.Calls("send"))
}

func TestSendMessage_SelfHealsWhenProviderIsAuthenticated(t *testing.T) {
	h := newManagerHarness(qrChannel("q1", channel.StatusConnecting))
	h.qr.StatusFn = func(context.Context, *channel.Channel) (*channel.Status, error) {
		return &channel.Status{Connected: true, Phone: "5511999"}, nil
	}

	res, err := h.m.SendMessage(context.Background(), "q1", channel.OutboundPayload{To: "5511888", Body: "hi"})
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, channel.StatusActive, h.channels.Status("q1"))
	assert.Equal(t, "5511999", h.channels.Channel("q1").Number)
	assert.Equal(t, 1, h.qr.Calls("send"))
}

func TestSendMessage_NoSelfHealAfterUserDisconnect(t *testing.T) {
	ch := qrChannel("q1", channel.StatusInactive)
	ch.Metadata.DisconnectedByUser = true
	h := newManagerHarness(ch)

	_, err := h.m.SendMessage(context.Background(), "q1", channel.OutboundPayload{To: "5511888", Body: "hi"})
	assert.ErrorIs(t, err, channel.ErrChannelNotActive)
	assert.Zero(t, h.qr.Calls("status"))
}

func TestSendMessage_SelfHealRefusesDifferentNumber(t *testing.T) {
	ch := qrChannel("q1", channel.StatusConnecting)
	ch.Number = "5511111111"
	h := newManagerHarness(ch)
	h.qr.StatusFn = func(context.Context, *channel.Channel) (*channel.Status, error) {
		return &channel.Status{Connected: true, Phone: "5522222222"}, nil
	}

	_, err := h.m.SendMessage(context.Background(), "q1", channel.OutboundPayload{To: "5511888", Body: "hi"})
	assert.ErrorIs(t, err, channel.ErrChannelNotActive)
	stored := h.channels.Channel("q1")
	assert.Equal(t, channel.StatusConnecting, stored.Status)
	assert.Equal(t, "5511111111", stored.Number)
	assert.Equal(t, 1, h.qr.Calls("logout"))
	assert.Zero(t, h.qr.Calls("send"))
	assert.Len(t, h.notifier.Named(event.ChannelError), 1)
}

func TestSendMessage_DisconnectDuringSelfHealWins(t *testing.T) {
	h := newManagerHarness(qrChannel("q1", channel.StatusConnecting))
	h.qr.StatusFn = func(ctx context.Context, _ *channel.Channel) (*channel.Status, error) {
		assert.NoError(t, h.m.Disconnect(ctx, "q1"))
		return &channel.Status{Connected: true, Phone: "5511999"}, nil
	}

	_, err := h.m.SendMessage(context.Background(), "q1", channel.OutboundPayload{To: "5511888", Body: "hi"})
	assert.ErrorIs(t, err, channel.ErrChannelNotActive)
	assert.Equal(t, channel.StatusInactive, h.channels.Status("q1"))
	assert.Zero(t, h.qr.Calls("send"))
}

func TestSendMessage_ValidatesPayload(t *testing.T) {
	h := newManagerHarness(qrChannel("q1", channel.StatusActive))
	_, err := h.m.SendMessage(context.Background(), "q1", channel.OutboundPayload{To: "5511888"})
	assert.IsType(t, pkgError.ValidationError(""), err)
}

func TestHandleWebhook_UnknownType(t *testing.T) {
	h := newManagerHarness()
	err := h.m.HandleWebhook(context.Background(), "telegram", []byte(`{}`), "")
	assert.ErrorIs(t, err, channel.ErrUnsupportedType)

	require.NoError(t, h.m.HandleWebhook(context.Background(), channel.ChannelTypeCloudAPI, []byte(`{}`), ""))
	assert.Equal(t, 1, h.http.Calls("webhook"))
}

func TestConfigureChannel_ResetsToInactive(t *testing.T) {
	h := newManagerHarness(cloudChannel("c1", channel.StatusActive))

	ch, err := h.m.ConfigureChannel(context.Background(), "c1", channel.ConnectionConfig{PhoneNumberID: "3088", AccessToken: "NEW"})
	require.NoError(t, err)
	assert.Equal(t, channel.StatusInactive, ch.Status)
	assert.Equal(t, "3088", h.channels.Channel("c1").ExternalRef)
	assert.Equal(t, "NEW", h.channels.Channel("c1").Config.AccessToken)
	assert.Equal(t, 1, h.http.Calls("configure"))
}

func TestConfigureChannel_ProviderFailureSetsError(t *testing.T) {
	h := newManagerHarness(cloudChannel("c1", channel.StatusActive))
	h.http.ConfigureFn = func(context.Context, *channel.Channel) error { return errors.New("graph unreachable") }

	_, err := h.m.ConfigureChannel(context.Background(), "c1", channel.ConnectionConfig{PhoneNumberID: "3088", AccessToken: "NEW"})
	require.Error(t, err)
	assert.Equal(t, channel.StatusError, h.channels.Status("c1"))
}

func TestDeleteChannel_CleansUpProvider(t *testing.T) {
	h := newManagerHarness(qrChannel("q1", channel.StatusActive))
	h.qr.CleanupFn = func(context.Context, *channel.Channel) error { return errors.New("already gone") }

	require.NoError(t, h.m.DeleteChannel(context.Background(), "q1"))
	assert.Equal(t, 1, h.qr.Calls("disconnect"))
	assert.Equal(t, 1, h.qr.Calls("cleanup"))
	assert.Equal(t, []string{"q1"}, h.channels.Deleted)
}

func TestInitiateQRSession_Routing(t *testing.T) {
	h := newManagerHarness(cloudChannel("c1", channel.StatusInactive), qrChannel("q1", channel.StatusError))

	assert.ErrorIs(t, h.m.InitiateQRSession(context.Background(), "c1"), channel.ErrQRNotSupported)

	require.NoError(t, h.m.InitiateQRSession(context.Background(), "q1"))
	assert.Equal(t, channel.StatusConnecting, h.channels.Status("q1"))
	assert.Equal(t, 1, h.qr.Calls("qr"))
}

func TestSyncAdminState_StoresMetadata(t *testing.T) {
	h := newManagerHarness(qrChannel("q1", channel.StatusActive))
	h.qr.AdminFn = func(context.Context, *channel.Channel) (*channel.AdminState, error) {
		return &channel.AdminState{Mode: "trial"}, nil
	}

	state, err := h.m.SyncAdminState(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, "trial", state.Mode)
	assert.Equal(t, "trial", h.channels.Channel("q1").Metadata.Admin.Mode)
}

// scenarioGate is a gate that always pairs successfully.
type scenarioGate struct {
	qrCalls int
}

func (g *scenarioGate) Health(context.Context, string) (whapiclient.Health, error) {
	return whapiclient.Health{}, nil
}

func (g *scenarioGate) LoginQR(context.Context, string) (*whapiclient.QRCode, error) {
	g.qrCalls++
	return &whapiclient.QRCode{Base64: "QR"}, nil
}

func (g *scenarioGate) Logout(context.Context, string) error { return nil }

func (g *scenarioGate) SendText(context.Context, string, whapiclient.SendTextRequest) (*whapiclient.SendResponse, error) {
	return &whapiclient.SendResponse{Sent: true}, nil
}

func (g *scenarioGate) SendMedia(context.Context, string, string, whapiclient.SendMediaRequest) (*whapiclient.SendResponse, error) {
	return &whapiclient.SendResponse{Sent: true}, nil
}

func (g *scenarioGate) SetWebhook(context.Context, string, string, []whapiclient.WebhookEvent) error {
	return nil
}

func TestScenario_QRConnectThenAuthenticate(t *testing.T) {
	channels := fake.NewChannelRepo(qrChannel("q1", channel.StatusInactive))
	notifier := &fake.Notifier{}
	gate := &scenarioGate{}
	strategy := whapi.New(gate, nil, channels, fake.NewMessageRepo(), &fake.Sink{}, notifier, whapi.Config{})

	m := NewChannelManager(channels, NewRegistry(strategy), notifier)
	m.async = func(fn func()) { fn() }
	ctx := context.Background()

	ch, err := m.Connect(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, channel.StatusConnecting, ch.Status)
	assert.Equal(t, 1, gate.qrCalls)
	assert.Len(t, notifier.Named(event.ChannelQR), 1)

	body := []byte(`{"event":{"type":"users","event":"post"},"user":{"id":"5511999999999"}}`)
	require.NoError(t, m.HandleWebhook(ctx, channel.ChannelTypeWhapi, body, "q1"))

	stored := channels.Channel("q1")
	assert.Equal(t, channel.StatusActive, stored.Status)
	assert.Equal(t, "5511999999999", stored.Number)
	assert.NotNil(t, stored.ConnectedAt)
	assert.Len(t, notifier.Named(event.ChannelConnected), 1)
}
