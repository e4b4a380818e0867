package channel

import "context"

// Kind tells the manager how a provider authenticates.
type Kind string

const (
	KindHTTPAPI   Kind = "http_api"
	KindQRSession Kind = "qr_session"
)

// Status is the normalized live health of a provider session.
type Status struct {
	Connected bool   `json:"connected"`
	Phone     string `json:"phone,omitempty"`
	State     string `json:"state,omitempty"`
}

// OutboundPayload is what callers ask a channel to send.
type OutboundPayload struct {
	To       string    `json:"to"`
	Body     string    `json:"body,omitempty"`
	Media    *MediaRef `json:"media,omitempty"`
	FromBot  bool      `json:"from_bot,omitempty"`
	QuotedID string    `json:"quoted_id,omitempty"`
}

type MediaRef struct {
	Type     string `json:"type"` // image, video, audio, document
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type SendResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Sent   bool   `json:"sent"`
}

// Strategy is one provider family's implementation of the channel capabilities.
type Strategy interface {
	Type() ChannelType
	Kind() Kind
	// Configure applies provider-side configuration; it may fill ch.Config, ch.ExternalRef and ch.Number.
	Configure(ctx context.Context, ch *Channel) error
	SendMessage(ctx context.Context, ch *Channel, payload OutboundPayload) (*SendResult, error)
	HandleWebhook(ctx context.Context, payload []byte, identifier string) error
	Disconnect(ctx context.Context, ch *Channel) error
	// Cleanup releases remote resources before the channel is deleted.
	Cleanup(ctx context.Context, ch *Channel) error
	GetStatus(ctx context.Context, ch *Channel) (*Status, error)
}

// QRSessionStrategy is implemented by providers needing interactive pairing.
type QRSessionStrategy interface {
	Strategy
	// InitiateQRSession fetches a QR and pushes it to the company. It does not wait for the scan.
	InitiateQRSession(ctx context.Context, ch *Channel) error
	// Logout ends the provider session. Missing sessions are not an error.
	Logout(ctx context.Context, ch *Channel) error
}

// AdminSyncer reconciles plan metadata from the provider's administrative API.
type AdminSyncer interface {
	SyncAdminState(ctx context.Context, ch *Channel) (*AdminState, error)
}

// SyncErrorState is the provider state that requires a logout before re-pairing.
const SyncErrorState = "SYNC_ERROR"
