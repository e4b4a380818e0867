package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	res, err := Do(context.Background(), fastConfig(3), "test", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", StatusError("gate", "health", http.StatusBadGateway, "")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 3, calls)
}

func TestDo_NeverRetriesUnauthorized(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		calls := 0
		_, err := Do(context.Background(), fastConfig(5), "test", func(ctx context.Context) (int, error) {
			calls++
			return 0, StatusError("gate", "health", status, "denied")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls, "status %d must fail fast", status)
		assert.True(t, pkgError.IsUnauthorizedProvider(err))
	}
}

func TestDo_StopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(3), "test", func(ctx context.Context) (int, error) {
		calls++
		return 0, StatusError("gate", "health", 522, "")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, pkgError.IsTransientProvider(err))
}

func TestDo_PlainErrorIsTerminal(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(3), "test", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	assert.Equal(t, 1, calls)
}

func TestIsRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504, 520, 521, 522, 523, 524} {
		assert.True(t, IsRetryableStatus(code), code)
	}
	for _, code := range []int{400, 401, 403, 404, 409, 501} {
		assert.False(t, IsRetryableStatus(code), code)
	}
}

func TestStatusError_NotFound(t *testing.T) {
	err := StatusError("manager", "delete", http.StatusNotFound, "gone")
	assert.True(t, pkgError.IsNotFoundOnProvider(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, "PROVIDER_NOT_FOUND", err.ErrCode())
}
