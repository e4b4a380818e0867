package channel

import (
	"time"

	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/AzielCF/az-connect/pkg/utils"
)

type Channel struct {
	ID          string           `json:"id"`
	CompanyID   string           `json:"company_id"`
	Type        ChannelType      `json:"type"`
	Name        string           `json:"name"`
	Status      ChannelStatus    `json:"status"`
	Number      string           `json:"number,omitempty"`
	ExternalRef string           `json:"external_ref,omitempty"` // provider-assigned identifier (remote channel id, phone number id)
	Config      ConnectionConfig `json:"-"`
	Metadata    Metadata         `json:"metadata"`
	ConnectedAt *time.Time       `json:"connected_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type ChannelType string

const (
	// ChannelTypeWhapi is the QR/session gateway (gate + manager APIs).
	ChannelTypeWhapi ChannelType = "whapi"
	// ChannelTypeCloudAPI is the vendor's static-credential HTTP API.
	ChannelTypeCloudAPI ChannelType = "cloud_api"
)

func (t ChannelType) Valid() bool {
	return t == ChannelTypeWhapi || t == ChannelTypeCloudAPI
}

type ChannelStatus string

const (
	StatusInactive   ChannelStatus = "INACTIVE"
	StatusConnecting ChannelStatus = "CONNECTING"
	StatusActive     ChannelStatus = "ACTIVE"
	StatusError      ChannelStatus = "ERROR"
)

// CanTransition reports whether from -> to is an edge of the channel state machine.
// ERROR and INACTIVE are reachable from anywhere; CONNECTING is re-entered from
// ERROR (retry) and ACTIVE (session dropped).
func CanTransition(from, to ChannelStatus) bool {
	if from == to {
		return true
	}
	switch to {
	case StatusError, StatusInactive:
		return true
	case StatusConnecting:
		return from == StatusInactive || from == StatusError || from == StatusActive
	case StatusActive:
		return from == StatusConnecting || from == StatusInactive || from == StatusError
	}
	return false
}

// ConnectionConfig holds provider credentials and remote ids. Never serialized to clients.
type ConnectionConfig struct {
	// QR/session provider
	Token      string `json:"token,omitempty"`
	ExternalID string `json:"external_id,omitempty"`

	// Cloud API
	PhoneNumberID     string `json:"phone_number_id,omitempty"`
	BusinessAccountID string `json:"business_account_id,omitempty"`
	AccessToken       string `json:"access_token,omitempty"`
	VerifyToken       string `json:"verify_token,omitempty"`
	AppSecret         string `json:"app_secret,omitempty"`
}

// Identifier returns the provider-assigned identifier used for the uniqueness rule.
func (c ConnectionConfig) Identifier(t ChannelType) string {
	switch t {
	case ChannelTypeWhapi:
		return c.ExternalID
	case ChannelTypeCloudAPI:
		return c.PhoneNumberID
	}
	return ""
}

// Metadata is operational bookkeeping written by automated components.
type Metadata struct {
	Heartbeat          HeartbeatState `json:"heartbeat"`
	Admin              *AdminState    `json:"admin,omitempty"`
	Recovery           RecoveryState  `json:"recovery"`
	DisconnectedByUser bool           `json:"disconnected_by_user,omitempty"`
	LastError          string         `json:"last_error,omitempty"`
}

type HeartbeatState struct {
	LastTick          time.Time `json:"last_tick"`
	LastState         string    `json:"last_state,omitempty"`
	Strikes           int       `json:"strikes"`
	VerificationUntil time.Time `json:"verification_until"`
	Excluded          bool      `json:"excluded,omitempty"`
	LastAdminSync     time.Time `json:"last_admin_sync"`
	IntervalSeconds   int       `json:"interval_seconds,omitempty"` // per-channel override
}

// InVerificationWindow reports whether an unauthorized reading at now must be tolerated.
func (h HeartbeatState) InVerificationWindow(now time.Time) bool {
	return !h.VerificationUntil.IsZero() && now.Before(h.VerificationUntil)
}

// AdminState mirrors the plan information held by the provider's manager API.
type AdminState struct {
	Mode       string    `json:"mode,omitempty"`
	ActiveTill time.Time `json:"active_till"`
}

type RecoveryState struct {
	Count  int       `json:"count"`
	LastAt time.Time `json:"last_at"`
}

// ApplyAutomatedStatus is the write path for heartbeat, webhooks and recovery.
// A channel the user disconnected is never moved back to CONNECTING or ACTIVE
// by an automated writer, and edges outside the state machine are refused.
// It returns false in both cases and leaves the channel untouched.
func (c *Channel) ApplyAutomatedStatus(s ChannelStatus) bool {
	if c.Metadata.DisconnectedByUser && (s == StatusActive || s == StatusConnecting) {
		return false
	}
	if !CanTransition(c.Status, s) {
		return false
	}
	c.Status = s
	return true
}

// MarkConnected sets ACTIVE, adopts phone when given and stamps the connection time.
// A session reporting a number other than the bound one is refused with
// AuthenticationMismatchError; a user-disconnected channel with ErrDisconnectedByUser.
func (c *Channel) MarkConnected(phone string, now time.Time) error {
	incoming := utils.NormalizePhone(phone)
	if c.Number != "" && incoming != "" && !utils.SamePhone(c.Number, incoming) {
		return pkgError.AuthenticationMismatchError{ChannelID: c.ID, Bound: c.Number, Incoming: incoming}
	}
	if !c.ApplyAutomatedStatus(StatusActive) {
		return ErrDisconnectedByUser
	}
	if incoming != "" {
		c.Number = incoming
	}
	if c.ConnectedAt == nil {
		t := now
		c.ConnectedAt = &t
	}
	return nil
}
