package whapi

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
	"github.com/AzielCF/az-connect/messaging/domain/event"
	"github.com/AzielCF/az-connect/messaging/domain/message"
	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/AzielCF/az-connect/pkg/utils"
	"github.com/sirupsen/logrus"
)

const backgroundTimeout = time.Minute

// HandleWebhook decodes the payload once and dispatches on the event variant.
// identifier is our channel id when the webhook URL carries it; otherwise the
// provider channel id in the body is used.
func (s *Strategy) HandleWebhook(ctx context.Context, body []byte, identifier string) error {
	payload, err := Decode(body)
	if err != nil {
		return pkgError.WebhookError(err.Error())
	}

	ch, err := s.resolveChannel(ctx, identifier, payload.ChannelID)
	if err != nil {
		return err
	}

	log := logrus.WithFields(logrus.Fields{"channel_id": ch.ID, "event": payload.Event.kind()})
	log.Debug("[WHAPI] Webhook received")

	switch ev := payload.Event.(type) {
	case UsersPost:
		return s.onAuthenticated(ctx, ch, ev.Phone)
	case UsersDelete:
		return s.onSessionDropped(ctx, ch)
	case MessagesUpsert:
		s.onMessages(ctx, ch, ev)
		return nil
	case StatusesPost:
		s.onStatuses(ctx, ch, ev)
		return nil
	case ChannelHealth:
		return s.onChannelHealth(ctx, ch, ev)
	default:
		log.Debug("[WHAPI] Unrecognized webhook event ignored")
		return nil
	}
}

func (s *Strategy) resolveChannel(ctx context.Context, identifier, externalID string) (*channel.Channel, error) {
	if identifier != "" {
		ch, err := s.channels.Get(ctx, identifier)
		if err != nil {
			return nil, err
		}
		if ch.Type != channel.ChannelTypeWhapi {
			return nil, channel.ErrChannelNotFound
		}
		return ch, nil
	}
	if externalID == "" {
		return nil, pkgError.WebhookError("webhook does not identify a channel")
	}
	list, err := s.channels.List(ctx, channel.Filter{Type: channel.ChannelTypeWhapi, ExternalRef: externalID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, channel.ErrChannelNotFound
	}
	return &list[0], nil
}

// onAuthenticated adopts the session unless it belongs to a different number than
// the one already bound. A mismatching session is logged out and reported; the
// channel keeps its previous state.
func (s *Strategy) onAuthenticated(ctx context.Context, ch *channel.Channel, phone string) error {
	incoming := utils.NormalizePhone(phone)
	if incoming == "" {
		if h, err := s.gate.Health(ctx, ch.Config.Token); err == nil {
			incoming = utils.NormalizePhone(h.Phone)
		}
	}

	err := ch.MarkConnected(incoming, s.now())
	var mismatch pkgError.AuthenticationMismatchError
	switch {
	case errors.As(err, &mismatch):
		logrus.WithFields(logrus.Fields{"channel_id": ch.ID, "bound": ch.Number, "incoming": incoming}).
			Warn("[WHAPI] Session authenticated with a different number, logging it out")
		s.notifier.EmitToCompany(ch.CompanyID, event.ChannelError, map[string]any{
			"channel_id": ch.ID,
			"code":       mismatch.ErrCode(),
			"error":      mismatch.Error(),
		})
		if err := s.gate.Logout(ctx, ch.Config.Token); err != nil {
			logrus.WithError(err).WithField("channel_id", ch.ID).Error("[WHAPI] Forced logout after number mismatch failed")
		}
		return nil
	case err != nil:
		logrus.WithField("channel_id", ch.ID).Info("[WHAPI] Authentication ignored, channel was disconnected by the user")
		return nil
	}
	ch.Metadata.Heartbeat.Strikes = 0
	ch.Metadata.Heartbeat.Excluded = false
	ch.Metadata.LastError = ""
	if err := s.channels.Update(ctx, ch); err != nil {
		return err
	}

	s.notifier.EmitToCompany(ch.CompanyID, event.ChannelConnected, map[string]any{
		"channel_id": ch.ID,
		"status":     ch.Status,
		"number":     ch.Number,
	})
	logrus.WithFields(logrus.Fields{"channel_id": ch.ID, "number": ch.Number}).Info("[WHAPI] Channel connected")
	return nil
}

// onSessionDropped keeps the number so the same account can pair again, moves
// to CONNECTING and schedules a re-authentication.
func (s *Strategy) onSessionDropped(ctx context.Context, ch *channel.Channel) error {
	if !ch.ApplyAutomatedStatus(channel.StatusConnecting) {
		return nil
	}
	if err := s.channels.Update(ctx, ch); err != nil {
		return err
	}
	s.notifier.EmitToCompany(ch.CompanyID, event.ChannelDisconnected, map[string]any{
		"channel_id": ch.ID,
		"status":     ch.Status,
		"number":     ch.Number,
	})
	logrus.WithField("channel_id", ch.ID).Infof("[WHAPI] Session dropped, re-authenticating in %s", s.cfg.ReauthDelay)

	channelID := ch.ID
	s.async(s.cfg.ReauthDelay, func() {
		s.reauthenticate(channelID)
	})
	return nil
}

func (s *Strategy) reauthenticate(channelID string) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	ch, err := s.channels.Get(ctx, channelID)
	if err != nil {
		logrus.WithError(err).WithField("channel_id", channelID).Warn("[WHAPI] Re-authentication skipped")
		return
	}
	if ch.Status != channel.StatusConnecting || ch.Metadata.DisconnectedByUser {
		return
	}
	if err := s.InitiateQRSession(ctx, ch); err != nil {
		logrus.WithError(err).WithField("channel_id", channelID).Warn("[WHAPI] Re-authentication failed")
	}
}

func (s *Strategy) onChannelHealth(ctx context.Context, ch *channel.Channel, ev ChannelHealth) error {
	tr := TransitionFor(ev.Signal)
	log := logrus.WithFields(logrus.Fields{"channel_id": ch.ID, "signal": ev.Signal.String(), "raw": ev.Raw})

	if tr.Status == channel.StatusActive {
		phone := ""
		if tr.ResolvePhone {
			if h, err := s.gate.Health(ctx, ch.Config.Token); err == nil && h.Connected {
				phone = h.Phone
			} else if err != nil {
				log.WithError(err).Debug("[WHAPI] Phone resolution failed")
			}
		}
		return s.onAuthenticated(ctx, ch, phone)
	}

	if !ch.ApplyAutomatedStatus(tr.Status) {
		log.Debug("[WHAPI] Health signal ignored for user-disconnected channel")
		return nil
	}
	if err := s.channels.Update(ctx, ch); err != nil {
		return err
	}

	evName := event.ChannelStatus
	if tr.Status == channel.StatusError {
		evName = event.ChannelError
	}
	s.notifier.EmitToCompany(ch.CompanyID, evName, map[string]any{
		"channel_id": ch.ID,
		"status":     ch.Status,
		"signal":     ev.Signal.String(),
	})
	log.Infof("[WHAPI] Health signal applied, status %s", ch.Status)

	if tr.ReissueQR {
		snapshot := *ch
		s.async(0, func() {
			bg, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
			defer cancel()
			if err := s.InitiateQRSession(bg, &snapshot); err != nil {
				log.WithError(err).Warn("[WHAPI] QR reissue failed")
			}
		})
	}
	return nil
}

func (s *Strategy) onMessages(ctx context.Context, ch *channel.Channel, ev MessagesUpsert) {
	for _, m := range ev.Messages {
		if m.FromMe {
			continue
		}
		env := s.normalize(ch, m)
		if env == nil {
			continue
		}
		verdict := s.sink.Submit(ctx, ch, env)
		logrus.WithFields(logrus.Fields{"channel_id": ch.ID, "message_id": m.ID, "verdict": verdict}).Debug("[WHAPI] Inbound message")
	}
}

func (s *Strategy) normalize(ch *channel.Channel, m IncomingMessage) *message.Envelope {
	if m.ID == "" {
		return nil
	}
	from := utils.NormalizePhone(m.From)
	if from == "" {
		from = utils.NormalizePhone(m.ChatID)
	}

	ts := m.Timestamp
	if ts > 0 && ts < 1e12 {
		ts *= 1000
	}

	env := &message.Envelope{
		ProviderMessageID: m.ID,
		ChannelID:         ch.ID,
		CompanyID:         ch.CompanyID,
		Direction:         message.DirectionInbound,
		From:              from,
		To:                ch.Number,
		SenderName:        m.FromName,
		Timestamp:         ts,
	}
	if m.Text != nil {
		env.Body = m.Text.Body
	}

	for _, c := range []struct {
		kind  string
		media *MediaPayload
	}{{"image", m.Image}, {"video", m.Video}, {"audio", m.Audio}, {"voice", m.Voice}, {"document", m.Document}} {
		if c.media == nil {
			continue
		}
		env.Media = &channel.MediaRef{
			Type:     c.kind,
			URL:      c.media.Link,
			MimeType: c.media.MimeType,
			Caption:  c.media.Caption,
			Filename: c.media.FileName,
		}
		if env.Body == "" {
			env.Body = c.media.Caption
		}
		break
	}
	return env
}

// onStatuses records receipts for observability. No status transition.
func (s *Strategy) onStatuses(ctx context.Context, ch *channel.Channel, ev StatusesPost) {
	for _, st := range ev.Statuses {
		if st.ID == "" || st.Status == "" {
			continue
		}
		if err := s.messages.UpdateStatus(ctx, ch.ID, st.ID, st.Status); err != nil {
			logrus.WithError(err).WithField("channel_id", ch.ID).Debug("[WHAPI] Receipt not recorded")
		}
		s.notifier.EmitToCompany(ch.CompanyID, event.MessageStatus, message.Receipt{
			ProviderMessageID: st.ID,
			Recipient:         st.RecipientID,
			Status:            st.Status,
			Timestamp:         st.Timestamp,
		})
	}
}
