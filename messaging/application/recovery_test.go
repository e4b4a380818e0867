package application

import (
	"context"
	"errors"
	"testing"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
	"github.com/AzielCF/az-connect/messaging/domain/event"
	"github.com/AzielCF/az-connect/messaging/fake"
	"github.com/AzielCF/az-connect/messaging/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recoveryHarness struct {
	r        *RecoveryOrchestrator
	channels *fake.ChannelRepo
	notifier *fake.Notifier
	strategy *fake.Strategy
	locks    *repository.MemoryLockSet
}

func newRecoveryHarness(channels ...channel.Channel) *recoveryHarness {
	rh := &recoveryHarness{
		channels: fake.NewChannelRepo(channels...),
		notifier: &fake.Notifier{},
		strategy: fake.NewQRStrategy(),
		locks:    repository.NewMemoryLockSet(),
	}
	rh.strategy.StatusFn = func(context.Context, *channel.Channel) (*channel.Status, error) {
		return &channel.Status{Connected: false, State: "QR"}, nil
	}
	rh.r = NewRecoveryOrchestrator(rh.channels, NewRegistry(rh.strategy), rh.locks, rh.notifier)
	rh.r.now = newClock().Now
	return rh
}

func TestRecover_ConcurrentCallsCollapse(t *testing.T) {
	rh := newRecoveryHarness(qrChannel("q1", channel.StatusError))
	started := make(chan struct{})
	release := make(chan struct{})
	rh.strategy.QRFn = func(context.Context, *channel.Channel) error {
		close(started)
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- rh.r.Recover(context.Background(), "q1") }()
	<-started

	require.NoError(t, rh.r.Recover(context.Background(), "q1"))
	assert.True(t, rh.locks.Held("q1"))

	close(release)
	require.NoError(t, <-done)
	assert.False(t, rh.locks.Held("q1"))
	assert.Equal(t, 1, rh.strategy.Calls("logout"))
	assert.Equal(t, 1, rh.strategy.Calls("qr"))
	assert.Equal(t, 1, rh.channels.Channel("q1").Metadata.Recovery.Count)
}

func TestRecover_MissingTokenSetsError(t *testing.T) {
	ch := qrChannel("q1", channel.StatusConnecting)
	ch.Config.Token = ""
	rh := newRecoveryHarness(ch)

	err := rh.r.Recover(context.Background(), "q1")
	assert.ErrorIs(t, err, channel.ErrMissingCredentials)
	assert.Equal(t, channel.StatusError, rh.channels.Status("q1"))
	assert.Len(t, rh.notifier.Named(event.ChannelError), 1)
	assert.Zero(t, rh.strategy.Calls("logout"))
}

func TestRecover_AlreadyAuthorized(t *testing.T) {
	rh := newRecoveryHarness(qrChannel("q1", channel.StatusError))
	rh.strategy.StatusFn = func(context.Context, *channel.Channel) (*channel.Status, error) {
		return &channel.Status{Connected: true, Phone: "5511999999999"}, nil
	}

	require.NoError(t, rh.r.Recover(context.Background(), "q1"))
	assert.Equal(t, channel.StatusActive, rh.channels.Status("q1"))
	assert.Zero(t, rh.strategy.Calls("logout"))
	assert.Zero(t, rh.strategy.Calls("qr"))
	assert.Len(t, rh.notifier.Named(event.ChannelConnected), 1)
}

func TestRecover_SyncErrorLogsOutTwice(t *testing.T) {
	rh := newRecoveryHarness(qrChannel("q1", channel.StatusActive))
	rh.strategy.StatusFn = func(context.Context, *channel.Channel) (*channel.Status, error) {
		return &channel.Status{State: channel.SyncErrorState}, nil
	}

	require.NoError(t, rh.r.Recover(context.Background(), "q1"))
	assert.Equal(t, 2, rh.strategy.Calls("logout"))
	assert.Equal(t, 1, rh.strategy.Calls("qr"))
	assert.Equal(t, channel.StatusConnecting, rh.channels.Status("q1"))
}

func TestRecover_CounterIncrements(t *testing.T) {
	ch := qrChannel("q1", channel.StatusError)
	ch.Metadata.Heartbeat.Strikes = 5
	rh := newRecoveryHarness(ch)

	require.NoError(t, rh.r.Recover(context.Background(), "q1"))
	require.NoError(t, rh.r.Recover(context.Background(), "q1"))

	stored := rh.channels.Channel("q1")
	assert.Equal(t, 2, stored.Metadata.Recovery.Count)
	assert.False(t, stored.Metadata.Recovery.LastAt.IsZero())
	assert.Zero(t, stored.Metadata.Heartbeat.Strikes)
}

func TestRecover_LogoutFailureDoesNotStop(t *testing.T) {
	rh := newRecoveryHarness(qrChannel("q1", channel.StatusError))
	rh.strategy.LogoutFn = func(context.Context, *channel.Channel) error { return errors.New("gate down") }

	require.NoError(t, rh.r.Recover(context.Background(), "q1"))
	assert.Equal(t, 1, rh.strategy.Calls("qr"))
}

func TestRecover_RespectsUserDisconnect(t *testing.T) {
	ch := qrChannel("q1", channel.StatusInactive)
	ch.Metadata.DisconnectedByUser = true
	rh := newRecoveryHarness(ch)

	require.NoError(t, rh.r.Recover(context.Background(), "q1"))
	assert.Equal(t, channel.StatusInactive, rh.channels.Status("q1"))
	assert.Zero(t, rh.strategy.Calls("qr"))
}

func TestRecover_ReturnsQRFailure(t *testing.T) {
	rh := newRecoveryHarness(qrChannel("q1", channel.StatusError))
	rh.strategy.QRFn = func(context.Context, *channel.Channel) error { return errors.New("no qr") }

	assert.EqualError(t, rh.r.Recover(context.Background(), "q1"), "no qr")
	assert.False(t, rh.locks.Held("q1"))
}

func TestRecover_DifferentNumberIsLoggedOutAndRepaired(t *testing.T) {
	ch := qrChannel("q1", channel.StatusError)
	ch.Number = "5511111111"
	rh := newRecoveryHarness(ch)
	rh.strategy.StatusFn = func(context.Context, *channel.Channel) (*channel.Status, error) {
		return &channel.Status{Connected: true, Phone: "5522222222"}, nil
	}

	require.NoError(t, rh.r.Recover(context.Background(), "q1"))
	stored := rh.channels.Channel("q1")
	assert.Equal(t, channel.StatusConnecting, stored.Status)
	assert.Equal(t, "5511111111", stored.Number)
	assert.Equal(t, 1, rh.strategy.Calls("logout"))
	assert.Equal(t, 1, rh.strategy.Calls("qr"))
	assert.Len(t, rh.notifier.Named(event.ChannelError), 1)
	assert.Empty(t, rh.notifier.Named(event.ChannelConnected))
}

func TestRecover_DisconnectDuringHealthCheckWins(t *testing.T) {
	rh := newRecoveryHarness(qrChannel("q1", channel.StatusError))
	manager := NewChannelManager(rh.channels, NewRegistry(rh.strategy), nil)
	rh.strategy.StatusFn = func(ctx context.Context, _ *channel.Channel) (*channel.Status, error) {
		assert.NoError(t, manager.Disconnect(ctx, "q1"))
		return &channel.Status{Connected: true, Phone: "5511999999999"}, nil
	}

	require.NoError(t, rh.r.Recover(context.Background(), "q1"))
	stored := rh.channels.Channel("q1")
	assert.Equal(t, channel.StatusInactive, stored.Status)
	assert.True(t, stored.Metadata.DisconnectedByUser)
	assert.Zero(t, rh.strategy.Calls("qr"))
}
