package channel

import (
	"testing"
	"time"

	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusInactive, StatusConnecting))
	assert.True(t, CanTransition(StatusConnecting, StatusActive))
	assert.True(t, CanTransition(StatusActive, StatusConnecting))
	assert.True(t, CanTransition(StatusError, StatusConnecting))
	for _, from := range []ChannelStatus{StatusInactive, StatusConnecting, StatusActive, StatusError} {
		assert.True(t, CanTransition(from, StatusError), from)
		assert.True(t, CanTransition(from, StatusInactive), from)
	}
	assert.False(t, CanTransition(StatusActive, ChannelStatus("UNKNOWN")))
}

func TestApplyAutomatedStatus_RespectsUserDisconnect(t *testing.T) {
	ch := &Channel{Status: StatusInactive, Metadata: Metadata{DisconnectedByUser: true}}

	assert.False(t, ch.ApplyAutomatedStatus(StatusActive))
	assert.False(t, ch.ApplyAutomatedStatus(StatusConnecting))
	assert.Equal(t, StatusInactive, ch.Status)

	assert.True(t, ch.ApplyAutomatedStatus(StatusError))
	assert.Equal(t, StatusError, ch.Status)
}

func TestApplyAutomatedStatus_RefusesUnknownStatus(t *testing.T) {
	ch := &Channel{Status: StatusActive}

	assert.False(t, ch.ApplyAutomatedStatus(ChannelStatus("UNKNOWN")))
	assert.Equal(t, StatusActive, ch.Status)
}

func TestMarkConnected(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ch := &Channel{Status: StatusConnecting}

	require.NoError(t, ch.MarkConnected("5511999999999@s.whatsapp.net", now))
	assert.Equal(t, StatusActive, ch.Status)
	assert.Equal(t, "5511999999999", ch.Number)
	assert.Equal(t, now, *ch.ConnectedAt)

	// empty phone keeps the bound number
	require.NoError(t, ch.MarkConnected("", now.Add(time.Hour)))
	assert.Equal(t, "5511999999999", ch.Number)
	assert.Equal(t, now, *ch.ConnectedAt)
}

func TestMarkConnected_RefusesDifferentNumber(t *testing.T) {
	ch := &Channel{ID: "q1", Status: StatusConnecting, Number: "5511111111"}

	err := ch.MarkConnected("5522222222", time.Now())
	var mismatch pkgError.AuthenticationMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "5511111111", mismatch.Bound)
	assert.Equal(t, "5522222222", mismatch.Incoming)
	assert.Equal(t, StatusConnecting, ch.Status)
	assert.Equal(t, "5511111111", ch.Number)
	assert.Nil(t, ch.ConnectedAt)
}

func TestMarkConnected_UserDisconnected(t *testing.T) {
	ch := &Channel{Status: StatusInactive, Metadata: Metadata{DisconnectedByUser: true}}

	assert.ErrorIs(t, ch.MarkConnected("5511999999999", time.Now()), ErrDisconnectedByUser)
	assert.Equal(t, StatusInactive, ch.Status)
	assert.Empty(t, ch.Number)
}

func TestInVerificationWindow(t *testing.T) {
	now := time.Now()
	h := HeartbeatState{}
	assert.False(t, h.InVerificationWindow(now))

	h.VerificationUntil = now.Add(90 * time.Second)
	assert.True(t, h.InVerificationWindow(now.Add(time.Second)))
	assert.False(t, h.InVerificationWindow(now.Add(91*time.Second)))
}

func TestIdentifier(t *testing.T) {
	cfg := ConnectionConfig{ExternalID: "WHAPI-1", PhoneNumberID: "1055"}
	assert.Equal(t, "WHAPI-1", cfg.Identifier(ChannelTypeWhapi))
	assert.Equal(t, "1055", cfg.Identifier(ChannelTypeCloudAPI))
	assert.Empty(t, cfg.Identifier("other"))
}
