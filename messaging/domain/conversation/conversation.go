package conversation

import (
	"context"
	"time"

	"github.com/AzielCF/az-connect/messaging/domain/message"
)

// Participant is the remote contact, scoped to a company.
type Participant struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	ExternalID  string    `json:"external_id"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Flow is a conversation flow (funnel/bot) owned by a company.
type Flow struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Binding attaches a flow to a channel. At most one binding per channel is active.
type Binding struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	FlowID    string    `json:"flow_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository interface {
	FindParticipant(ctx context.Context, companyID, externalID string) (*Participant, error)
	SaveParticipant(ctx context.Context, p *Participant) error
	ActiveBinding(ctx context.Context, channelID string) (*Binding, error)
	// AvailableFlow returns an active flow of the company, or nil when there is none.
	AvailableFlow(ctx context.Context, companyID string) (*Flow, error)
	// Bind deactivates every other binding of the channel and stores b as the active one.
	Bind(ctx context.Context, b *Binding) error
	SaveFlow(ctx context.Context, f *Flow) error
}

// PipelineInput is what the flow engine receives for each inbound message.
type PipelineInput struct {
	ConversationBindingID string             `json:"conversation_binding_id"`
	ParticipantID         string             `json:"participant_id"`
	Message               message.Envelope   `json:"message"`
	History               []message.Envelope `json:"history"`
	ChannelNumber         string             `json:"channel_number"`
}

// Pipeline is the external conversation engine.
type Pipeline interface {
	ProcessIncoming(ctx context.Context, in PipelineInput) error
}
