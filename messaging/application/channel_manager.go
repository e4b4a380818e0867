package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
	"github.com/AzielCF/az-connect/messaging/domain/event"
	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/AzielCF/az-connect/validations"
	"github.com/sirupsen/logrus"
)

const qrKickoffTimeout = 2 * time.Minute

// ChannelManager is the single entry point for channel lifecycle operations.
// It owns status transitions on the request path and dispatches the provider
// work to the strategy registered for the channel type.
type ChannelManager struct {
	channels  channel.Repository
	registry  *Registry
	notifier  event.Notifier
	recovery  *RecoveryOrchestrator
	heartbeat *Heartbeat

	now   func() time.Time
	async func(fn func())
}

func NewChannelManager(channels channel.Repository, registry *Registry, notifier event.Notifier) *ChannelManager {
	if notifier == nil {
		notifier = event.NopNotifier{}
	}
	return &ChannelManager{
		channels: channels,
		registry: registry,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		async:    func(fn func()) { go fn() },
	}
}

func (m *ChannelManager) SetRecovery(r *RecoveryOrchestrator) {
	m.recovery = r
}

// SetHeartbeat lets lifecycle changes invalidate the watchdog's channel cache.
func (m *ChannelManager) SetHeartbeat(h *Heartbeat) {
	m.heartbeat = h
}

func (m *ChannelManager) invalidate() {
	if m.heartbeat != nil {
		m.heartbeat.Invalidate()
	}
}

func (m *ChannelManager) emitStatus(ch *channel.Channel, name string) {
	m.notifier.EmitToCompany(ch.CompanyID, name, map[string]any{
		"channel_id": ch.ID,
		"status":     ch.Status,
		"number":     ch.Number,
	})
}

func (m *ChannelManager) CreateChannel(ctx context.Context, req channel.CreateRequest) (*channel.Channel, error) {
	if err := validations.ValidateCreateChannel(ctx, req); err != nil {
		return nil, err
	}
	if _, err := m.registry.Get(req.Type); err != nil {
		return nil, err
	}

	identifier := req.Config.Identifier(req.Type)
	if err := m.ensureUnique(ctx, req.CompanyID, req.Type, identifier, ""); err != nil {
		return nil, err
	}

	now := m.now()
	ch := &channel.Channel{
		CompanyID:   req.CompanyID,
		Type:        req.Type,
		Name:        req.Name,
		Status:      channel.StatusInactive,
		ExternalRef: identifier,
		Config:      req.Config,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.channels.Create(ctx, ch); err != nil {
		return nil, err
	}
	m.invalidate()
	logrus.WithFields(logrus.Fields{"channel_id": ch.ID, "type": ch.Type, "company_id": ch.CompanyID}).Info("[CHANNEL] Channel created")
	return ch, nil
}

// ensureUnique rejects a second channel for an identifier the company already uses.
func (m *ChannelManager) ensureUnique(ctx context.Context, companyID string, t channel.ChannelType, identifier, selfID string) error {
	if identifier == "" {
		return nil
	}
	existing, err := m.channels.FindByExternalRef(ctx, companyID, t, identifier)
	if err != nil {
		if errors.Is(err, channel.ErrChannelNotFound) {
			return nil
		}
		return err
	}
	if existing != nil && existing.ID != selfID {
		return channel.ErrDuplicateChannel
	}
	return nil
}

func (m *ChannelManager) GetChannel(ctx context.Context, id string) (*channel.Channel, error) {
	return m.channels.Get(ctx, id)
}

func (m *ChannelManager) ListChannels(ctx context.Context, companyID string) ([]channel.Channel, error) {
	return m.channels.List(ctx, channel.Filter{CompanyID: companyID})
}

// Connect brings a channel up. HTTP-API providers are verified synchronously
// and go straight to ACTIVE; QR providers move to CONNECTING and finish
// asynchronously through webhooks or the heartbeat.
func (m *ChannelManager) Connect(ctx context.Context, id string) (*channel.Channel, error) {
	ch, err := m.channels.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch.Status == channel.StatusActive {
		return nil, channel.ErrAlreadyActive
	}
	strategy, err := m.registry.Get(ch.Type)
	if err != nil {
		return nil, err
	}

	ch.Metadata.DisconnectedByUser = false
	ch.Metadata.Heartbeat.Strikes = 0
	ch.Metadata.Heartbeat.Excluded = false
	log := logrus.WithFields(logrus.Fields{"channel_id": ch.ID, "type": ch.Type})

	if strategy.Kind() == channel.KindHTTPAPI {
		if err := strategy.Configure(ctx, ch); err != nil {
			return nil, m.fail(ctx, ch, "connect", err)
		}
		if err := ch.MarkConnected(ch.Number, m.now()); err != nil {
			return nil, err
		}
		ch.Metadata.LastError = ""
		if err := m.channels.Update(ctx, ch); err != nil {
			return nil, err
		}
		m.emitStatus(ch, event.ChannelConnected)
		log.Info("[CHANNEL] Channel connected")
		return ch, nil
	}

	ch.Status = channel.StatusConnecting
	if err := m.channels.Update(ctx, ch); err != nil {
		return nil, err
	}
	m.emitStatus(ch, event.ChannelStatus)

	if err := strategy.Configure(ctx, ch); err != nil {
		return nil, m.fail(ctx, ch, "connect", err)
	}
	if err := m.channels.Update(ctx, ch); err != nil {
		return nil, err
	}
	m.invalidate()

	if qr, ok := strategy.(channel.QRSessionStrategy); ok {
		snapshot := *ch
		m.async(func() {
			bg, cancel := context.WithTimeout(context.Background(), qrKickoffTimeout)
			defer cancel()
			if err := qr.InitiateQRSession(bg, &snapshot); err != nil {
				logrus.WithError(err).WithField("channel_id", snapshot.ID).Warn("[CHANNEL] QR session kickoff failed")
			}
		})
	}
	log.Info("[CHANNEL] Channel connecting, waiting for pairing")
	return ch, nil
}

// fail moves ch to ERROR and returns cause as a user-facing error.
func (m *ChannelManager) fail(ctx context.Context, ch *channel.Channel, op string, cause error) error {
	ch.Status = channel.StatusError
	ch.Metadata.LastError = cause.Error()
	if err := m.channels.Update(ctx, ch); err != nil {
		logrus.WithError(err).WithField("channel_id", ch.ID).Error("[CHANNEL] Could not persist ERROR status")
	}
	m.notifier.EmitToCompany(ch.CompanyID, event.ChannelError, map[string]any{
		"channel_id": ch.ID,
		"status":     ch.Status,
		"error":      cause.Error(),
	})
	logrus.WithError(cause).WithField("channel_id", ch.ID).Errorf("[CHANNEL] %s failed", op)

	if _, ok := pkgError.AsGeneric(cause); ok {
		return cause
	}
	return pkgError.ChannelStateError(fmt.Sprintf("%s failed: %v", op, cause))
}

// Disconnect asks the provider to end the session and always leaves the channel INACTIVE.
func (m *ChannelManager) Disconnect(ctx context.Context, id string) error {
	ch, err := m.channels.Get(ctx, id)
	if err != nil {
		return err
	}

	var providerErr error
	if strategy, err := m.registry.Get(ch.Type); err != nil {
		providerErr = err
	} else {
		providerErr = strategy.Disconnect(ctx, ch)
	}
	if providerErr != nil {
		logrus.WithError(providerErr).WithField("channel_id", ch.ID).Warn("[CHANNEL] Provider disconnect failed, forcing INACTIVE")
	}

	// the strategy may have written the row meanwhile
	if fresh, err := m.channels.Get(ctx, id); err == nil {
		ch = fresh
	}
	ch.Status = channel.StatusInactive
	ch.Metadata.DisconnectedByUser = true
	if err := m.channels.Update(ctx, ch); err != nil {
		return err
	}
	m.invalidate()
	m.emitStatus(ch, event.ChannelDisconnected)
	logrus.WithField("channel_id", ch.ID).Info("[CHANNEL] Channel disconnected")
	return providerErr
}

// SendMessage sends through the channel's provider. A channel that is not
// ACTIVE in storage but whose provider session is confirmed authenticated is
// healed to ACTIVE first; this is the one place the request path corrects
// status drift the heartbeat has not caught up with yet.
func (m *ChannelManager) SendMessage(ctx context.Context, id string, payload channel.OutboundPayload) (*channel.SendResult, error) {
	if err := validations.ValidateOutbound(ctx, payload); err != nil {
		return nil, err
	}
	ch, err := m.channels.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	strategy, err := m.registry.Get(ch.Type)
	if err != nil {
		return nil, err
	}

	if ch.Status != channel.StatusActive {
		if !m.selfHeal(ctx, strategy, ch) {
			return nil, channel.ErrChannelNotActive
		}
	}
	return strategy.SendMessage(ctx, ch, payload)
}

func (m *ChannelManager) selfHeal(ctx context.Context, strategy channel.Strategy, ch *channel.Channel) bool {
	if ch.Metadata.DisconnectedByUser {
		return false
	}
	st, err := strategy.GetStatus(ctx, ch)
	if err != nil || st == nil || !st.Connected {
		return false
	}

	// a disconnect may have landed during the provider call
	fresh, err := m.channels.Get(ctx, ch.ID)
	if err != nil {
		return false
	}
	*ch = *fresh
	previous := ch.Status
	if err := ch.MarkConnected(st.Phone, m.now()); err != nil {
		var mismatch pkgError.AuthenticationMismatchError
		if errors.As(err, &mismatch) {
			refuseForeignSession(ctx, strategy, ch, mismatch, m.notifier, "[CHANNEL]")
		}
		return false
	}
	if err := m.channels.Update(ctx, ch); err != nil {
		logrus.WithError(err).WithField("channel_id", ch.ID).Warn("[CHANNEL] Self-healed status not persisted")
	}
	m.emitStatus(ch, event.ChannelConnected)
	logrus.WithFields(logrus.Fields{"channel_id": ch.ID, "from": previous}).Info("[CHANNEL] Status self-healed to ACTIVE before send")
	return true
}

// HandleWebhook hands the raw body to the strategy of type t.
func (m *ChannelManager) HandleWebhook(ctx context.Context, t channel.ChannelType, payload []byte, identifier string) error {
	strategy, err := m.registry.Get(t)
	if err != nil {
		return err
	}
	return strategy.HandleWebhook(ctx, payload, identifier)
}

// ConfigureChannel replaces the credentials, resets the channel to INACTIVE
// and re-applies provider-side configuration before returning.
func (m *ChannelManager) ConfigureChannel(ctx context.Context, id string, cfg channel.ConnectionConfig) (*channel.Channel, error) {
	ch, err := m.channels.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validations.ValidateConnectionConfig(ctx, ch.Type, cfg); err != nil {
		return nil, err
	}
	strategy, err := m.registry.Get(ch.Type)
	if err != nil {
		return nil, err
	}

	identifier := cfg.Identifier(ch.Type)
	if err := m.ensureUnique(ctx, ch.CompanyID, ch.Type, identifier, ch.ID); err != nil {
		return nil, err
	}

	ch.Config = cfg
	ch.ExternalRef = identifier
	ch.Status = channel.StatusInactive
	ch.Metadata.LastError = ""
	if err := m.channels.Update(ctx, ch); err != nil {
		return nil, err
	}

	if err := strategy.Configure(ctx, ch); err != nil {
		return nil, m.fail(ctx, ch, "configure", err)
	}
	if err := m.channels.Update(ctx, ch); err != nil {
		return nil, err
	}
	m.invalidate()
	m.emitStatus(ch, event.ChannelStatus)
	return ch, nil
}

// DeleteChannel releases provider resources on a best-effort basis, then
// removes the channel and its dependent records.
func (m *ChannelManager) DeleteChannel(ctx context.Context, id string) error {
	ch, err := m.channels.Get(ctx, id)
	if err != nil {
		return err
	}
	log := logrus.WithField("channel_id", ch.ID)

	if strategy, err := m.registry.Get(ch.Type); err == nil {
		if err := strategy.Disconnect(ctx, ch); err != nil {
			log.WithError(err).Warn("[CHANNEL] Disconnect before delete failed")
		}
		if err := strategy.Cleanup(ctx, ch); err != nil {
			log.WithError(err).Warn("[CHANNEL] Provider cleanup failed")
		}
	}

	if err := m.channels.DeleteCascade(ctx, ch.ID); err != nil {
		return err
	}
	m.invalidate()
	log.Info("[CHANNEL] Channel deleted")
	return nil
}

// InitiateQRSession moves a QR channel to CONNECTING and delivers a QR code.
func (m *ChannelManager) InitiateQRSession(ctx context.Context, id string) error {
	ch, err := m.channels.Get(ctx, id)
	if err != nil {
		return err
	}
	qr, err := m.registry.QR(ch.Type)
	if err != nil {
		return err
	}
	if ch.Status == channel.StatusActive {
		return channel.ErrAlreadyActive
	}

	ch.Status = channel.StatusConnecting
	ch.Metadata.DisconnectedByUser = false
	if err := m.channels.Update(ctx, ch); err != nil {
		return err
	}
	m.invalidate()
	m.emitStatus(ch, event.ChannelStatus)
	return qr.InitiateQRSession(ctx, ch)
}

func (m *ChannelManager) Status(ctx context.Context, id string) (*channel.Status, error) {
	ch, err := m.channels.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	strategy, err := m.registry.Get(ch.Type)
	if err != nil {
		return nil, err
	}
	return strategy.GetStatus(ctx, ch)
}

func (m *ChannelManager) Recover(ctx context.Context, id string) error {
	if m.recovery == nil {
		return pkgError.InternalServerError("recovery is not configured")
	}
	return m.recovery.Recover(ctx, id)
}

// SyncAdminState refreshes plan metadata from the provider's admin API.
func (m *ChannelManager) SyncAdminState(ctx context.Context, id string) (*channel.AdminState, error) {
	ch, err := m.channels.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	strategy, err := m.registry.Get(ch.Type)
	if err != nil {
		return nil, err
	}
	syncer, ok := strategy.(channel.AdminSyncer)
	if !ok {
		return nil, nil
	}
	state, err := syncer.SyncAdminState(ctx, ch)
	if err != nil || state == nil {
		return state, err
	}

	ch.Metadata.Admin = state
	ch.Metadata.Heartbeat.LastAdminSync = m.now()
	if err := m.channels.Update(ctx, ch); err != nil {
		return nil, err
	}
	return state, nil
}
