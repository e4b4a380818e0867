package whapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	whapiclient "github.com/AzielCF/az-connect/infrastructure/whapi"
	"github.com/AzielCF/az-connect/messaging/domain/channel"
	"github.com/AzielCF/az-connect/messaging/domain/event"
	"github.com/AzielCF/az-connect/messaging/domain/message"
	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/AzielCF/az-connect/pkg/utils"
	"github.com/sirupsen/logrus"
)

// Gate is the live-session API.
type Gate interface {
	Health(ctx context.Context, token string) (whapiclient.Health, error)
	LoginQR(ctx context.Context, token string) (*whapiclient.QRCode, error)
	Logout(ctx context.Context, token string) error
	SendText(ctx context.Context, token string, req whapiclient.SendTextRequest) (*whapiclient.SendResponse, error)
	SendMedia(ctx context.Context, token, kind string, req whapiclient.SendMediaRequest) (*whapiclient.SendResponse, error)
	SetWebhook(ctx context.Context, token, url string, events []whapiclient.WebhookEvent) error
}

// Manager is the partner API owning remote channel resources.
type Manager interface {
	Enabled() bool
	CreateChannel(ctx context.Context, name string) (*whapiclient.RemoteChannel, error)
	ExtendChannel(ctx context.Context, id string, days int) error
	DeleteChannel(ctx context.Context, id string) error
	GetChannel(ctx context.Context, id string) (*whapiclient.RemoteChannel, error)
}

type Config struct {
	QRAttempts     int
	QRDelay        time.Duration
	ReauthDelay    time.Duration
	WebhookBaseURL string
	ExtendDays     int
}

// Strategy implements the QR/session provider: remote channel provisioning,
// QR pairing, health checks and webhook classification.
type Strategy struct {
	gate     Gate
	manager  Manager
	channels channel.Repository
	messages message.Repository
	sink     message.Sink
	notifier event.Notifier
	cfg      Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	// async runs follow-up work (QR reissue, delayed re-auth) off the webhook path.
	async func(delay time.Duration, fn func())
}

func New(gate Gate, manager Manager, channels channel.Repository, messages message.Repository, sink message.Sink, notifier event.Notifier, cfg Config) *Strategy {
	if cfg.QRAttempts <= 0 {
		cfg.QRAttempts = 5
	}
	if cfg.QRDelay <= 0 {
		cfg.QRDelay = 3 * time.Second
	}
	if cfg.ReauthDelay <= 0 {
		cfg.ReauthDelay = 5 * time.Second
	}
	if notifier == nil {
		notifier = event.NopNotifier{}
	}
	return &Strategy{
		gate:     gate,
		manager:  manager,
		channels: channels,
		messages: messages,
		sink:     sink,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepCtx,
		async: func(delay time.Duration, fn func()) {
			if delay <= 0 {
				go fn()
				return
			}
			time.AfterFunc(delay, fn)
		},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Strategy) Type() channel.ChannelType { return channel.ChannelTypeWhapi }

func (s *Strategy) Kind() channel.Kind { return channel.KindQRSession }

// Configure provisions the remote channel when no token is stored, optionally
// extends it and subscribes the webhook.
func (s *Strategy) Configure(ctx context.Context, ch *channel.Channel) error {
	if ch.Config.Token == "" {
		if s.manager == nil || !s.manager.Enabled() {
			return channel.ErrMissingCredentials
		}
		rc, err := s.manager.CreateChannel(ctx, ch.Name)
		if err != nil {
			return fmt.Errorf("provision remote channel: %w", err)
		}
		ch.Config.Token = rc.Token
		ch.Config.ExternalID = rc.ID
		logrus.WithFields(logrus.Fields{"channel_id": ch.ID, "external_id": rc.ID}).Info("[WHAPI] Remote channel provisioned")
	}
	if ch.Config.ExternalID != "" {
		ch.ExternalRef = ch.Config.ExternalID
	}

	if s.cfg.ExtendDays > 0 && ch.Config.ExternalID != "" && s.manager != nil && s.manager.Enabled() {
		if err := s.manager.ExtendChannel(ctx, ch.Config.ExternalID, s.cfg.ExtendDays); err != nil {
			return fmt.Errorf("extend remote channel: %w", err)
		}
	}

	return s.registerWebhook(ctx, ch)
}

func (s *Strategy) registerWebhook(ctx context.Context, ch *channel.Channel) error {
	if s.cfg.WebhookBaseURL == "" {
		return nil
	}
	url := strings.TrimRight(s.cfg.WebhookBaseURL, "/") + "/webhooks/" + string(channel.ChannelTypeWhapi) + "/" + ch.ID
	if err := s.gate.SetWebhook(ctx, ch.Config.Token, url, whapiclient.DefaultWebhookEvents()); err != nil {
		return fmt.Errorf("register webhook: %w", err)
	}
	return nil
}

// InitiateQRSession fetches a QR with bounded retries and pushes it to the company.
// On terminal failure it pushes an error event and sets the channel to ERROR.
func (s *Strategy) InitiateQRSession(ctx context.Context, ch *channel.Channel) error {
	if ch.Config.Token == "" {
		s.failSession(ctx, ch, channel.ErrMissingCredentials)
		return channel.ErrMissingCredentials
	}

	qr, err := s.fetchQR(ctx, ch.Config.Token)
	if err != nil {
		var pe *pkgError.ProviderError
		if errors.As(err, &pe) && pe.Status == http.StatusConflict {
			// already paired: confirm through health instead of failing
			return s.confirmFromHealth(ctx, ch)
		}
		s.failSession(ctx, ch, err)
		return err
	}

	s.notifier.EmitToCompany(ch.CompanyID, event.ChannelQR, map[string]any{
		"channel_id": ch.ID,
		"qr":         qr.Base64,
		"expire":     qr.Expire,
	})
	logrus.WithField("channel_id", ch.ID).Info("[WHAPI] QR delivered")

	if err := s.registerWebhook(ctx, ch); err != nil {
		logrus.WithError(err).WithField("channel_id", ch.ID).Warn("[WHAPI] Webhook registration after QR failed")
	}
	return nil
}

func (s *Strategy) fetchQR(ctx context.Context, token string) (*whapiclient.QRCode, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.QRAttempts; attempt++ {
		qr, err := s.gate.LoginQR(ctx, token)
		if err == nil && qr != nil && qr.Base64 != "" {
			return qr, nil
		}
		if err == nil {
			err = fmt.Errorf("empty QR code (status %q)", statusOf(qr))
		}
		var pe *pkgError.ProviderError
		if errors.As(err, &pe) && (pe.Status == http.StatusConflict || pkgError.IsUnauthorizedProvider(err)) {
			return nil, err
		}
		lastErr = err
		logrus.WithError(err).Debugf("[WHAPI] QR attempt %d/%d failed", attempt, s.cfg.QRAttempts)

		if attempt < s.cfg.QRAttempts {
			if err := s.sleep(ctx, s.cfg.QRDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("QR not available after %d attempts: %w", s.cfg.QRAttempts, lastErr)
}

func statusOf(qr *whapiclient.QRCode) string {
	if qr == nil {
		return ""
	}
	return qr.Status
}

func (s *Strategy) failSession(ctx context.Context, ch *channel.Channel, cause error) {
	s.notifier.EmitToCompany(ch.CompanyID, event.ChannelError, map[string]any{
		"channel_id": ch.ID,
		"error":      cause.Error(),
	})
	current, err := s.channels.Get(ctx, ch.ID)
	if err != nil {
		logrus.WithError(err).WithField("channel_id", ch.ID).Error("[WHAPI] Could not load channel to mark ERROR")
		return
	}
	current.ApplyAutomatedStatus(channel.StatusError)
	current.Metadata.LastError = cause.Error()
	if err := s.channels.Update(ctx, current); err != nil {
		logrus.WithError(err).WithField("channel_id", ch.ID).Error("[WHAPI] Could not persist ERROR status")
		return
	}
	*ch = *current
}

func (s *Strategy) confirmFromHealth(ctx context.Context, ch *channel.Channel) error {
	h, err := s.gate.Health(ctx, ch.Config.Token)
	if err != nil {
		s.failSession(ctx, ch, err)
		return err
	}
	if !h.Connected {
		err := fmt.Errorf("provider refused QR but session is %q", h.State)
		s.failSession(ctx, ch, err)
		return err
	}
	return s.onAuthenticated(ctx, ch, h.Phone)
}

func (s *Strategy) SendMessage(ctx context.Context, ch *channel.Channel, payload channel.OutboundPayload) (*channel.SendResult, error) {
	to := utils.NormalizePhone(payload.To)
	if to == "" {
		return nil, pkgError.ValidationError("recipient is required")
	}

	var (
		res *whapiclient.SendResponse
		err error
	)
	if payload.Media != nil {
		kind := mediaKind(payload.Media.Type)
		res, err = s.gate.SendMedia(ctx, ch.Config.Token, kind, whapiclient.SendMediaRequest{
			To:       to,
			Media:    payload.Media.URL,
			Caption:  firstNonEmpty(payload.Media.Caption, payload.Body),
			Filename: payload.Media.Filename,
			MimeType: payload.Media.MimeType,
			Quoted:   payload.QuotedID,
		})
	} else {
		if strings.TrimSpace(payload.Body) == "" {
			return nil, pkgError.ValidationError("message body is required")
		}
		res, err = s.gate.SendText(ctx, ch.Config.Token, whapiclient.SendTextRequest{To: to, Body: payload.Body, Quoted: payload.QuotedID})
	}
	if err != nil {
		return nil, err
	}

	result := &channel.SendResult{ID: res.Message.ID, Status: firstNonEmpty(res.Message.Status, "sent"), Sent: true}

	// bot replies are recorded by the conversation pipeline itself
	if !payload.FromBot {
		env := &message.Envelope{
			ProviderMessageID: result.ID,
			ChannelID:         ch.ID,
			CompanyID:         ch.CompanyID,
			Direction:         message.DirectionOutbound,
			From:              ch.Number,
			To:                to,
			Body:              payload.Body,
			Media:             payload.Media,
			Timestamp:         s.now().UnixMilli(),
			Status:            result.Status,
		}
		if err := s.messages.Save(ctx, env); err != nil {
			logrus.WithError(err).WithField("channel_id", ch.ID).Error("[WHAPI] Sent message could not be stored")
		}
	}
	return result, nil
}

func mediaKind(t string) string {
	switch strings.ToLower(t) {
	case "image", "video", "audio", "document":
		return strings.ToLower(t)
	case "voice", "ptt":
		return "audio"
	}
	return "document"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Disconnect logs the provider session out. Missing sessions are fine.
func (s *Strategy) Disconnect(ctx context.Context, ch *channel.Channel) error {
	if ch.Config.Token == "" {
		return nil
	}
	return s.gate.Logout(ctx, ch.Config.Token)
}

// Logout is Disconnect for recovery: tolerant of sessions that no longer exist.
func (s *Strategy) Logout(ctx context.Context, ch *channel.Channel) error {
	return s.Disconnect(ctx, ch)
}

// Cleanup logs out and deletes the remote channel resource.
func (s *Strategy) Cleanup(ctx context.Context, ch *channel.Channel) error {
	if err := s.Disconnect(ctx, ch); err != nil {
		logrus.WithError(err).WithField("channel_id", ch.ID).Warn("[WHAPI] Logout during cleanup failed")
	}
	if ch.Config.ExternalID == "" || s.manager == nil || !s.manager.Enabled() {
		return nil
	}
	return s.manager.DeleteChannel(ctx, ch.Config.ExternalID)
}

func (s *Strategy) GetStatus(ctx context.Context, ch *channel.Channel) (*channel.Status, error) {
	if ch.Config.Token == "" {
		return nil, channel.ErrMissingCredentials
	}
	h, err := s.gate.Health(ctx, ch.Config.Token)
	if err != nil {
		return nil, err
	}
	return &channel.Status{Connected: h.Connected, Phone: utils.NormalizePhone(h.Phone), State: h.State}, nil
}

// SyncAdminState reads plan mode and expiry from the manager API.
func (s *Strategy) SyncAdminState(ctx context.Context, ch *channel.Channel) (*channel.AdminState, error) {
	if s.manager == nil || !s.manager.Enabled() || ch.Config.ExternalID == "" {
		return nil, nil
	}
	rc, err := s.manager.GetChannel(ctx, ch.Config.ExternalID)
	if err != nil {
		return nil, err
	}
	state := &channel.AdminState{Mode: rc.Mode}
	if rc.ActiveTill > 0 {
		state.ActiveTill = time.UnixMilli(rc.ActiveTill).UTC()
	}
	return state, nil
}
