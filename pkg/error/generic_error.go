package error

import (
	"errors"
	"net/http"
)

// GenericError is implemented by every error the REST layer knows how to render.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}

type InternalServerError string

func (err InternalServerError) Error() string {
	return string(err)
}

func (err InternalServerError) ErrCode() string {
	return "INTERNAL_SERVER_ERROR"
}

func (err InternalServerError) StatusCode() int {
	return http.StatusInternalServerError
}

// ValidationError covers bad or missing credentials, unsupported channel types and malformed requests.
type ValidationError string

func (err ValidationError) Error() string {
	return string(err)
}

func (err ValidationError) ErrCode() string {
	return "VALIDATION_ERROR"
}

func (err ValidationError) StatusCode() int {
	return http.StatusBadRequest
}

// ChannelStateError is returned when an operation is not allowed in the channel's current status.
type ChannelStateError string

func (err ChannelStateError) Error() string {
	return string(err)
}

func (err ChannelStateError) ErrCode() string {
	return "CHANNEL_STATE_ERROR"
}

func (err ChannelStateError) StatusCode() int {
	return http.StatusConflict
}

type WebhookError string

func (err WebhookError) Error() string {
	return string(err)
}

func (err WebhookError) ErrCode() string {
	return "WEBHOOK_ERROR"
}

func (err WebhookError) StatusCode() int {
	return http.StatusBadRequest
}

// AsGeneric unwraps err until it finds a GenericError.
func AsGeneric(err error) (GenericError, bool) {
	var ge GenericError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}
