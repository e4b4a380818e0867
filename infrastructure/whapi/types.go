package whapi

import (
	"encoding/json"
	"strconv"
	"strings"
)

// HealthResponse covers the shapes returned by GET /health across gate versions.
// Several optional fields may carry the phone number or authentication flag.
type HealthResponse struct {
	Status     json.RawMessage `json:"status"`
	Authorized *bool           `json:"authorized,omitempty"`
	Phone      string          `json:"phone,omitempty"`
	User       *struct {
		ID    string `json:"id"`
		Phone string `json:"phone,omitempty"`
		Name  string `json:"name,omitempty"`
	} `json:"user,omitempty"`
	Me *struct {
		ID    string `json:"id,omitempty"`
		Phone string `json:"phone,omitempty"`
	} `json:"me,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

type healthStatus struct {
	Code int    `json:"code"`
	Text string `json:"text"`
}

// Health is the normalized reading of a gate health check.
type Health struct {
	Connected bool
	Phone     string
	State     string
}

// Normalize folds the optional fields into one Health value.
func (h HealthResponse) Normalize() Health {
	state := parseStatusText(h.Status)
	connected := strings.EqualFold(state, "AUTH") || strings.EqualFold(state, "CONNECTED")
	if h.Authorized != nil {
		connected = connected || *h.Authorized
	}

	phone := h.Phone
	if phone == "" && h.User != nil {
		phone = h.User.Phone
		if phone == "" {
			phone = h.User.ID
		}
	}
	if phone == "" && h.Me != nil {
		phone = h.Me.Phone
		if phone == "" {
			phone = h.Me.ID
		}
	}
	if !connected {
		// a phone without AUTH is a previously paired account, not a live session
		phone = ""
	}
	return Health{Connected: connected, Phone: phone, State: strings.ToUpper(state)}
}

func parseStatusText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj healthStatus
	if err := json.Unmarshal(raw, &obj); err == nil && (obj.Text != "" || obj.Code != 0) {
		if obj.Text != "" {
			return obj.Text
		}
		return strconv.Itoa(obj.Code)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// QRCode is the result of GET /users/login.
type QRCode struct {
	Status  string `json:"status"`
	Base64  string `json:"base64"`
	RowData string `json:"rowdata,omitempty"`
	Expire  int    `json:"expire,omitempty"`
}

type SendTextRequest struct {
	To     string `json:"to"`
	Body   string `json:"body"`
	Quoted string `json:"quoted,omitempty"`
}

type SendMediaRequest struct {
	To       string `json:"to"`
	Media    string `json:"media"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Quoted   string `json:"quoted,omitempty"`
}

type SendResponse struct {
	Sent    bool `json:"sent"`
	Message struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"message"`
}

type WebhookEvent struct {
	Type   string `json:"type"`
	Method string `json:"method"`
}

type Webhook struct {
	URL    string         `json:"url"`
	Events []WebhookEvent `json:"events"`
	Mode   string         `json:"mode"`
}

type Settings struct {
	Webhooks []Webhook `json:"webhooks"`
}

// RemoteChannel is a channel resource on the manager API.
type RemoteChannel struct {
	ID         string `json:"id"`
	Token      string `json:"token"`
	Name       string `json:"name,omitempty"`
	Mode       string `json:"mode,omitempty"`
	ActiveTill int64  `json:"activeTill,omitempty"` // epoch ms
}
