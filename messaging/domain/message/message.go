package message

import (
	"context"
	"time"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Envelope is the provider-neutral shape of a chat message. It is immutable once persisted.
type Envelope struct {
	ID                string            `json:"id"`
	ProviderMessageID string            `json:"provider_message_id"`
	ChannelID         string            `json:"channel_id"`
	CompanyID         string            `json:"company_id"`
	Direction         Direction         `json:"direction"`
	From              string            `json:"from"`
	To                string            `json:"to"`
	SenderName        string            `json:"sender_name,omitempty"`
	Body              string            `json:"body,omitempty"`
	Media             *channel.MediaRef `json:"media,omitempty"`
	Timestamp         int64             `json:"timestamp"` // epoch ms, as reported by the provider
	ParticipantID     string            `json:"participant_id,omitempty"`
	FromMe            bool              `json:"from_me,omitempty"`
	FromBot           bool              `json:"from_bot,omitempty"`
	Status            string            `json:"status,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Time converts the provider timestamp.
func (e Envelope) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// SenderKey identifies the remote party for ordering purposes.
func (e Envelope) SenderKey() string {
	if e.Direction == DirectionOutbound {
		return e.To
	}
	return e.From
}

// Receipt is a delivery/read acknowledgement for an outbound message.
type Receipt struct {
	ProviderMessageID string `json:"provider_message_id"`
	Recipient         string `json:"recipient"`
	Status            string `json:"status"`
	Timestamp         int64  `json:"timestamp"`
}

type Repository interface {
	Save(ctx context.Context, msg *Envelope) error
	// Recent returns at most limit messages of the conversation, newest first.
	Recent(ctx context.Context, channelID, participantID string, limit int) ([]Envelope, error)
	UpdateStatus(ctx context.Context, channelID, providerMessageID, status string) error
}

// Sink accepts normalized inbound messages from a strategy.
type Sink interface {
	Submit(ctx context.Context, ch *channel.Channel, env *Envelope) Verdict
}

// Verdict is the ingress decision for one inbound message.
type Verdict string

const (
	VerdictAccepted  Verdict = "accepted"
	VerdictDuplicate Verdict = "duplicate"
	VerdictStale     Verdict = "stale"
	VerdictIgnored   Verdict = "ignored"
)
