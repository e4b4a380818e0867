package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

// Config contains configuration for exponential backoff with jitter.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultConfig returns the retry policy used for provider calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

func (c Config) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if c.InitialDelay > 0 {
		b.InitialInterval = c.InitialDelay
	}
	if c.MaxDelay > 0 {
		b.MaxInterval = c.MaxDelay
	}
	if c.Multiplier >= 1 {
		b.Multiplier = c.Multiplier
	}
	b.RandomizationFactor = 0.25
	return b
}

// Do runs fn until it succeeds, returns a non-transient error, or attempts run out.
// Only errors for which IsRetryable returns true are retried.
func Do[T any](ctx context.Context, cfg Config, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		if !IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(cfg.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logrus.WithError(err).Warnf("[RETRY] %s attempt %d failed, retrying in %s", op, attempt, next)
		}),
	)
}

// IsRetryable reports whether err is a transient failure worth another attempt.
// 401 and 403 are never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *pkgError.ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsRetryableStatus lists the upstream status codes treated as transient:
// 5xx gateway failures, the Cloudflare 52x family and rate limiting.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		520, 521, 522, 523, 524:
		return true
	}
	return false
}

// StatusError builds the ProviderError for a failed HTTP response.
func StatusError(provider, op string, status int, body string) *pkgError.ProviderError {
	if len(body) > 512 {
		body = body[:512]
	}
	return &pkgError.ProviderError{
		Provider:  provider,
		Op:        op,
		Status:    status,
		Body:      body,
		Transient: IsRetryableStatus(status),
	}
}

// TransportError wraps a failure that happened before any response was read.
func TransportError(provider, op string, err error) *pkgError.ProviderError {
	transient := true
	if errors.Is(err, context.Canceled) {
		transient = false
	}
	return &pkgError.ProviderError{
		Provider:  provider,
		Op:        op,
		Transient: transient,
		Err:       err,
	}
}
