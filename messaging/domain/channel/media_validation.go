package channel

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Validate lets ozzo-validation descend into OutboundPayload.Media.
func (m MediaRef) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Type, validation.Required, validation.In("image", "video", "audio", "voice", "document", "sticker")),
		validation.Field(&m.URL, validation.Required, is.URL),
	)
}
