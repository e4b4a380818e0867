// Package cloudapi implements the static-credential HTTP provider: no pairing,
// credentials are verified synchronously and webhooks arrive per WABA.
package cloudapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"strings"
	"time"

	cloudclient "github.com/AzielCF/az-connect/infrastructure/cloudapi"
	"github.com/AzielCF/az-connect/messaging/domain/channel"
	"github.com/AzielCF/az-connect/messaging/domain/event"
	"github.com/AzielCF/az-connect/messaging/domain/message"
	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/AzielCF/az-connect/pkg/utils"
	"github.com/sirupsen/logrus"
)

// API is the subset of the Graph API the strategy needs.
type API interface {
	PhoneNumber(ctx context.Context, phoneNumberID, accessToken string) (*cloudclient.PhoneNumber, error)
	Send(ctx context.Context, phoneNumberID, accessToken string, req cloudclient.SendRequest) (*cloudclient.SendResponse, error)
}

type Strategy struct {
	api      API
	channels channel.Repository
	messages message.Repository
	sink     message.Sink
	notifier event.Notifier
	now      func() time.Time
}

func New(api API, channels channel.Repository, messages message.Repository, sink message.Sink, notifier event.Notifier) *Strategy {
	if notifier == nil {
		notifier = event.NopNotifier{}
	}
	return &Strategy{
		api:      api,
		channels: channels,
		messages: messages,
		sink:     sink,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Strategy) Type() channel.ChannelType { return channel.ChannelTypeCloudAPI }

func (s *Strategy) Kind() channel.Kind { return channel.KindHTTPAPI }

// Configure verifies the stored credentials and derives the phone number.
func (s *Strategy) Configure(ctx context.Context, ch *channel.Channel) error {
	if ch.Config.PhoneNumberID == "" || ch.Config.AccessToken == "" {
		return channel.ErrMissingCredentials
	}
	pn, err := s.api.PhoneNumber(ctx, ch.Config.PhoneNumberID, ch.Config.AccessToken)
	if err != nil {
		return err
	}
	ch.ExternalRef = ch.Config.PhoneNumberID
	if phone := utils.NormalizePhone(pn.DisplayPhoneNumber); phone != "" {
		ch.Number = phone
	}
	logrus.WithFields(logrus.Fields{"channel_id": ch.ID, "verified_name": pn.VerifiedName}).Info("[CLOUD_API] Credentials verified")
	return nil
}

func (s *Strategy) SendMessage(ctx context.Context, ch *channel.Channel, payload channel.OutboundPayload) (*channel.SendResult, error) {
	to := utils.NormalizePhone(payload.To)
	if to == "" {
		return nil, pkgError.ValidationError("recipient is required")
	}

	req := cloudclient.SendRequest{To: to, RecipientType: "individual"}
	if payload.QuotedID != "" {
		req.Context = &cloudclient.ReplyTo{MessageID: payload.QuotedID}
	}
	if m := payload.Media; m != nil {
		obj := &cloudclient.MediaObject{Link: m.URL, Caption: m.Caption, Filename: m.Filename}
		if obj.Caption == "" {
			obj.Caption = payload.Body
		}
		switch strings.ToLower(m.Type) {
		case "image":
			req.Type, req.Image = "image", obj
		case "video":
			req.Type, req.Video = "video", obj
		case "audio", "voice":
			obj.Caption = ""
			req.Type, req.Audio = "audio", obj
		default:
			req.Type, req.Document = "document", obj
		}
	} else {
		if strings.TrimSpace(payload.Body) == "" {
			return nil, pkgError.ValidationError("message body is required")
		}
		req.Type = "text"
		req.Text = &cloudclient.TextObject{Body: payload.Body, PreviewURL: strings.Contains(payload.Body, "http")}
	}

	res, err := s.api.Send(ctx, ch.Config.PhoneNumberID, ch.Config.AccessToken, req)
	if err != nil {
		return nil, err
	}
	result := &channel.SendResult{ID: res.MessageID(), Status: "sent", Sent: true}

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
			logrus.WithError(err).WithField("channel_id", ch.ID).Error("[CLOUD_API] Sent message could not be stored")
		}
	}
	return result, nil
}

// Disconnect has nothing to tear down: credentials are static.
func (s *Strategy) Disconnect(context.Context, *channel.Channel) error { return nil }

func (s *Strategy) Cleanup(context.Context, *channel.Channel) error { return nil }

func (s *Strategy) GetStatus(ctx context.Context, ch *channel.Channel) (*channel.Status, error) {
	if ch.Config.PhoneNumberID == "" || ch.Config.AccessToken == "" {
		return nil, channel.ErrMissingCredentials
	}
	pn, err := s.api.PhoneNumber(ctx, ch.Config.PhoneNumberID, ch.Config.AccessToken)
	if err != nil {
		if pkgError.IsUnauthorizedProvider(err) {
			return &channel.Status{Connected: false, State: "UNAUTHORIZED"}, nil
		}
		return nil, err
	}
	return &channel.Status{Connected: true, Phone: utils.NormalizePhone(pn.DisplayPhoneNumber), State: "CONNECTED"}, nil
}

// VerifySubscription answers the GET handshake the vendor performs when the
// webhook URL is registered. It returns the challenge to echo back.
func (s *Strategy) VerifySubscription(ctx context.Context, identifier, mode, token, challenge string) (string, error) {
	if mode != "subscribe" {
		return "", pkgError.WebhookError("unsupported hub.mode")
	}
	ch, err := s.resolveChannel(ctx, identifier, identifier)
	if err != nil {
		return "", err
	}
	if ch.Config.VerifyToken == "" || subtle.ConstantTimeCompare([]byte(ch.Config.VerifyToken), []byte(token)) != 1 {
		return "", pkgError.WebhookError("verify token mismatch")
	}
	return challenge, nil
}

// AppSecrets returns the signing secret of every channel a delivery would be
// routed to, resolved exactly as HandleWebhook resolves them. A delivery must
// carry a valid signature for each non-empty secret.
func (s *Strategy) AppSecrets(ctx context.Context, identifier string, body []byte) ([]string, error) {
	var n cloudclient.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, pkgError.WebhookError("invalid webhook payload: " + err.Error())
	}
	var secrets []string
	for _, d := range s.deliveries(ctx, identifier, n) {
		secrets = append(secrets, d.ch.Config.AppSecret)
	}
	return secrets, nil
}

func (s *Strategy) HandleWebhook(ctx context.Context, body []byte, identifier string) error {
	var n cloudclient.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return pkgError.WebhookError("invalid webhook payload: " + err.Error())
	}
	for _, d := range s.deliveries(ctx, identifier, n) {
		s.onMessages(ctx, d.ch, d.value)
		s.onStatuses(ctx, d.ch, d.value.Statuses)
	}
	return nil
}

type delivery struct {
	ch    *channel.Channel
	value cloudclient.ChangeValue
}

// deliveries pairs every messages change with its channel. Changes for
// unknown channels and notifications for other objects are dropped.
func (s *Strategy) deliveries(ctx context.Context, identifier string, n cloudclient.Notification) []delivery {
	if n.Object != "" && n.Object != "whatsapp_business_account" {
		logrus.WithField("object", n.Object).Debug("[CLOUD_API] Webhook for another object ignored")
		return nil
	}
	var res []delivery
	for _, entry := range n.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			ch, err := s.resolveChannel(ctx, identifier, change.Value.Metadata.PhoneNumberID)
			if err != nil {
				logrus.WithError(err).WithField("phone_number_id", change.Value.Metadata.PhoneNumberID).Warn("[CLOUD_API] Webhook for unknown channel")
				continue
			}
			res = append(res, delivery{ch: ch, value: change.Value})
		}
	}
	return res
}

func (s *Strategy) resolveChannel(ctx context.Context, identifier, phoneNumberID string) (*channel.Channel, error) {
	if identifier != "" {
		if ch, err := s.channels.Get(ctx, identifier); err == nil && ch.Type == channel.ChannelTypeCloudAPI {
			return ch, nil
		}
	}
	if phoneNumberID == "" {
		return nil, channel.ErrChannelNotFound
	}
	list, err := s.channels.List(ctx, channel.Filter{Type: channel.ChannelTypeCloudAPI, ExternalRef: phoneNumberID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, channel.ErrChannelNotFound
	}
	return &list[0], nil
}

func (s *Strategy) onMessages(ctx context.Context, ch *channel.Channel, v cloudclient.ChangeValue) {
	names := make(map[string]string, len(v.Contacts))
	for _, c := range v.Contacts {
		names[c.WaID] = c.Profile.Name
	}

	for _, m := range v.Messages {
		if m.ID == "" {
			continue
		}
		env := &message.Envelope{
			ProviderMessageID: m.ID,
			ChannelID:         ch.ID,
			CompanyID:         ch.CompanyID,
			Direction:         message.DirectionInbound,
			From:              utils.NormalizePhone(m.From),
			To:                ch.Number,
			SenderName:        names[m.From],
			Timestamp:         m.Timestamp.Millis(),
		}
		if m.Text != nil {
			env.Body = m.Text.Body
		}
		for _, c := range []struct {
			kind  string
			media *cloudclient.MediaObject
		}{{"image", m.Image}, {"video", m.Video}, {"audio", m.Audio}, {"document", m.Document}, {"sticker", m.Sticker}} {
			if c.media == nil {
				continue
			}
			env.Media = &channel.MediaRef{
				Type:     c.kind,
				URL:      firstNonEmpty(c.media.Link, c.media.ID),
				MimeType: c.media.MimeType,
				Caption:  c.media.Caption,
				Filename: c.media.Filename,
			}
			if env.Body == "" {
				env.Body = c.media.Caption
			}
			break
		}

		verdict := s.sink.Submit(ctx, ch, env)
		logrus.WithFields(logrus.Fields{"channel_id": ch.ID, "message_id": m.ID, "verdict": verdict}).Debug("[CLOUD_API] Inbound message")
	}
}

func (s *Strategy) onStatuses(ctx context.Context, ch *channel.Channel, statuses []cloudclient.StatusUpdate) {
	for _, st := range statuses {
		if st.ID == "" || st.Status == "" {
			continue
		}
		if err := s.messages.UpdateStatus(ctx, ch.ID, st.ID, st.Status); err != nil {
			logrus.WithError(err).WithField("channel_id", ch.ID).Debug("[CLOUD_API] Receipt not recorded")
		}
		s.notifier.EmitToCompany(ch.CompanyID, event.MessageStatus, message.Receipt{
			ProviderMessageID: st.ID,
			Recipient:         st.RecipientID,
			Status:            st.Status,
			Timestamp:         st.Timestamp.Millis(),
		})
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
