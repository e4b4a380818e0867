package error

import (
	"errors"
	"fmt"
	"net/http"
)

// ProviderError is a failure reported by a provider API. Transient marks
// errors worth retrying (timeouts, 5xx, rate limits); everything else is terminal.
type ProviderError struct {
	Provider  string
	Op        string
	Status    int
	Body      string
	Transient bool
	Err       error
}

func (err *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s failed", err.Provider, err.Op)
	if err.Status > 0 {
		msg += fmt.Sprintf(" with status %d", err.Status)
	}
	if err.Body != "" {
		msg += ": " + err.Body
	} else if err.Err != nil {
		msg += ": " + err.Err.Error()
	}
	return msg
}

func (err *ProviderError) Unwrap() error {
	return err.Err
}

func (err *ProviderError) ErrCode() string {
	switch {
	case err.Status == http.StatusNotFound:
		return "PROVIDER_NOT_FOUND"
	case err.Status == http.StatusUnauthorized || err.Status == http.StatusForbidden:
		return "PROVIDER_UNAUTHORIZED"
	case err.Transient:
		return "PROVIDER_UNAVAILABLE"
	}
	return "PROVIDER_ERROR"
}

func (err *ProviderError) StatusCode() int {
	if err.Transient {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

// IsTransientProvider reports whether err is a retryable provider failure.
func IsTransientProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient
}

// IsNotFoundOnProvider reports a 404 from the provider. Delete and logout callers treat it as success.
func IsNotFoundOnProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Status == http.StatusNotFound
}

// IsUnauthorizedProvider reports a 401/403 from the provider.
func IsUnauthorizedProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && (pe.Status == http.StatusUnauthorized || pe.Status == http.StatusForbidden)
}

// AuthenticationMismatchError is raised when a session authenticates with a
// number different from the one already bound to the channel.
type AuthenticationMismatchError struct {
	ChannelID string
	Bound     string
	Incoming  string
}

func (err AuthenticationMismatchError) Error() string {
	return fmt.Sprintf("channel %s is bound to %s, refusing session for %s", err.ChannelID, err.Bound, err.Incoming)
}

func (err AuthenticationMismatchError) ErrCode() string {
	return "AUTHENTICATION_MISMATCH"
}

func (err AuthenticationMismatchError) StatusCode() int {
	return http.StatusConflict
}
