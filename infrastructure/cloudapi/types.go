package cloudapi

import (
	"encoding/json"
	"strconv"
)

// PhoneNumber is GET /{version}/{phone_number_id}.
type PhoneNumber struct {
	ID                 string `json:"id"`
	DisplayPhoneNumber string `json:"display_phone_number"`
	VerifiedName       string `json:"verified_name"`
	QualityRating      string `json:"quality_rating,omitempty"`
}

type SendRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type,omitempty"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Context          *ReplyTo     `json:"context,omitempty"`
	Text             *TextObject  `json:"text,omitempty"`
	Image            *MediaObject `json:"image,omitempty"`
	Video            *MediaObject `json:"video,omitempty"`
	Audio            *MediaObject `json:"audio,omitempty"`
	Document         *MediaObject `json:"document,omitempty"`
}

type ReplyTo struct {
	MessageID string `json:"message_id"`
}

type TextObject struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type MediaObject struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

type SendResponse struct {
	Contacts []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID            string `json:"id"`
		MessageStatus string `json:"message_status,omitempty"`
	} `json:"messages"`
}

// MessageID returns the id of the first accepted message.
func (r SendResponse) MessageID() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// Notification is the webhook body posted for a WhatsApp Business Account.
type Notification struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []Contact        `json:"contacts,omitempty"`
	Messages []InboundMessage `json:"messages,omitempty"`
	Statuses []StatusUpdate   `json:"statuses,omitempty"`
}

type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type InboundMessage struct {
	ID        string       `json:"id"`
	From      string       `json:"from"`
	Timestamp Timestamp    `json:"timestamp"`
	Type      string       `json:"type"`
	Text      *TextObject  `json:"text,omitempty"`
	Image     *MediaObject `json:"image,omitempty"`
	Video     *MediaObject `json:"video,omitempty"`
	Audio     *MediaObject `json:"audio,omitempty"`
	Document  *MediaObject `json:"document,omitempty"`
	Sticker   *MediaObject `json:"sticker,omitempty"`
	Context   *struct {
		From string `json:"from"`
		ID   string `json:"id"`
	} `json:"context,omitempty"`
}

type StatusUpdate struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Timestamp   Timestamp `json:"timestamp"`
	RecipientID string    `json:"recipient_id"`
}

// Timestamp is epoch seconds, sent as a string.
type Timestamp int64

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "" {
			*t = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*t = Timestamp(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = Timestamp(n)
	return nil
}

// Millis converts to epoch milliseconds.
func (t Timestamp) Millis() int64 {
	return int64(t) * 1000
}
