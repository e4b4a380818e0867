package whapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
)

// Event is the closed set of webhook events. Decode is the only place that
// looks at the raw {type, event} pair.
type Event interface {
	kind() string
}

// UsersPost: a session authenticated with Phone.
type UsersPost struct {
	Phone string
}

// UsersDelete: the session was dropped on the device or by the provider.
type UsersDelete struct {
	Phone string
}

// MessagesUpsert carries new (post) or edited (put) messages.
type MessagesUpsert struct {
	Method   string
	Messages []IncomingMessage
}

// StatusesPost carries delivery/read receipts.
type StatusesPost struct {
	Statuses []StatusUpdate
}

// ChannelHealth is the administrative health signal of channel/post.
type ChannelHealth struct {
	Signal AdminSignal
	Raw    string
}

type Unrecognized struct {
	Type   string
	Method string
}

func (UsersPost) kind() string { return "users/post" }
func (UsersDelete) kind() string { return "users/delete" }
func (MessagesUpsert) kind() string { return "messages/upsert" }
func (StatusesPost) kind() string { return "statuses/post" }
func (ChannelHealth) kind() string { return "channel/post" }
func (u Unrecognized) kind() string { return u.Type + "/" + u.Method }

type IncomingMessage struct {
	ID        string        `json:"id"`
	FromMe    bool          `json:"from_me"`
	Type      string        `json:"type"`
	ChatID    string        `json:"chat_id"`
	Timestamp int64         `json:"timestamp"` // seconds
	From      string        `json:"from"`
	FromName  string        `json:"from_name"`
	Text      *TextPayload  `json:"text,omitempty"`
	Image     *MediaPayload `json:"image,omitempty"`
	Video     *MediaPayload `json:"video,omitempty"`
	Audio     *MediaPayload `json:"audio,omitempty"`
	Voice     *MediaPayload `json:"voice,omitempty"`
	Document  *MediaPayload `json:"document,omitempty"`
}

type TextPayload struct {
	Body string `json:"body"`
}

type MediaPayload struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Caption  string `json:"caption,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

type StatusUpdate struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
	Timestamp   int64  `json:"timestamp"`
}

// Payload is the decoded webhook body.
type Payload struct {
	ChannelID string
	Event     Event
}

type rawPayload struct {
	ChannelID string `json:"channel_id"`
	Event     struct {
		Type  string `json:"type"`
		Event string `json:"event"`
	} `json:"event"`
	User *struct {
		ID    string `json:"id"`
		Phone string `json:"phone"`
	} `json:"user,omitempty"`
	Users []struct {
		ID string `json:"id"`
	} `json:"users,omitempty"`
	Messages []IncomingMessage `json:"messages,omitempty"`
	Statuses []StatusUpdate    `json:"statuses,omitempty"`
	Channel  *struct {
		Status json.RawMessage `json:"status"`
	} `json:"channel,omitempty"`
	Health *struct {
		Status json.RawMessage `json:"status"`
	} `json:"health,omitempty"`
	Status json.RawMessage `json:"status,omitempty"`
}

func (r rawPayload) phone() string {
	if r.User != nil {
		if r.User.Phone != "" {
			return r.User.Phone
		}
		return r.User.ID
	}
	if len(r.Users) > 0 {
		return r.Users[0].ID
	}
	return ""
}

// Decode classifies a webhook body by its {event.type, event.event} pair.
func Decode(body []byte) (Payload, error) {
	var raw rawPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return Payload{}, fmt.Errorf("invalid webhook payload: %w", err)
	}

	typ := strings.ToLower(strings.TrimSpace(raw.Event.Type))
	method := strings.ToLower(strings.TrimSpace(raw.Event.Event))
	p := Payload{ChannelID: raw.ChannelID}

	switch {
	case typ == "users" && method == "post":
		p.Event = UsersPost{Phone: raw.phone()}
	case typ == "users" && method == "delete":
		p.Event = UsersDelete{Phone: raw.phone()}
	case typ == "messages" && (method == "post" || method == "put"):
		p.Event = MessagesUpsert{Method: method, Messages: raw.Messages}
	case typ == "statuses" && method == "post":
		p.Event = StatusesPost{Statuses: raw.Statuses}
	case typ == "channel" && method == "post":
		status := raw.Status
		if raw.Channel != nil && len(raw.Channel.Status) > 0 {
			status = raw.Channel.Status
		} else if raw.Health != nil && len(raw.Health.Status) > 0 {
			status = raw.Health.Status
		}
		p.Event = ChannelHealth{Signal: ParseAdminSignal(status), Raw: string(status)}
	default:
		p.Event = Unrecognized{Type: typ, Method: method}
	}
	return p, nil
}

// AdminSignal is the canonical administrative channel state.
type AdminSignal int

const (
	SignalDisconnected AdminSignal = 0
	SignalConnected    AdminSignal = 1
	SignalConnecting   AdminSignal = 2
	SignalQRRequired   AdminSignal = 3
	SignalError        AdminSignal = 4
	SignalUnknown      AdminSignal = -1
)

func (s AdminSignal) String() string {
	switch s {
	case SignalDisconnected:
		return "disconnected"
	case SignalConnected:
		return "connected"
	case SignalConnecting:
		return "connecting"
	case SignalQRRequired:
		return "qr_required"
	case SignalError:
		return "error"
	}
	return "unknown"
}

// namedSignals maps the string variants onto the numeric code space.
var namedSignals = map[string]AdminSignal{
	"disconnected": SignalDisconnected,
	"inactive":     SignalDisconnected,
	"logout":       SignalDisconnected,
	"connected":    SignalConnected,
	"active":       SignalConnected,
	"auth":         SignalConnected,
	"connecting":   SignalConnecting,
	"init":         SignalConnecting,
	"launch":       SignalConnecting,
	"sync":         SignalConnecting,
	"qr":           SignalQRRequired,
	"qr_required":  SignalQRRequired,
	"error":        SignalError,
	"failed":       SignalError,
}

// ParseAdminSignal accepts a number, a numeric string, a name or {code,text}.
func ParseAdminSignal(raw json.RawMessage) AdminSignal {
	if len(raw) == 0 || string(raw) == "null" {
		return SignalUnknown
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return fromCode(n)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return fromString(s)
	}

	var obj struct {
		Code *int   `json:"code"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Text != "" {
			if sig := fromString(obj.Text); sig != SignalUnknown {
				return sig
			}
		}
		if obj.Code != nil {
			return fromCode(*obj.Code)
		}
	}
	return SignalUnknown
}

func fromCode(n int) AdminSignal {
	if n >= 0 && n <= 4 {
		return AdminSignal(n)
	}
	return SignalUnknown
}

func fromString(s string) AdminSignal {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		return fromCode(n)
	}
	if sig, ok := namedSignals[s]; ok {
		return sig
	}
	return SignalUnknown
}

// Transition is what a signal does to the channel.
type Transition struct {
	Status       channel.ChannelStatus
	ReissueQR    bool
	ResolvePhone bool
}

// Transitions is the single table driving channel/post, for both numeric and named codes.
var Transitions = map[AdminSignal]Transition{
	SignalDisconnected: {Status: channel.StatusConnecting, ReissueQR: true},
	SignalConnected:    {Status: channel.StatusActive, ResolvePhone: true},
	SignalConnecting:   {Status: channel.StatusConnecting},
	SignalQRRequired:   {Status: channel.StatusConnecting, ReissueQR: true},
	SignalError:        {Status: channel.StatusError},
	SignalUnknown:      {Status: channel.StatusConnecting},
}

// TransitionFor never fails: unknown signals fall back to the conservative CONNECTING.
func TransitionFor(s AdminSignal) Transition {
	if t, ok := Transitions[s]; ok {
		return t
	}
	return Transitions[SignalUnknown]
}
