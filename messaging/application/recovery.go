package application

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
	"github.com/AzielCF/az-connect/messaging/domain/event"
	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/sirupsen/logrus"
)

// RecoveryOrchestrator repairs a broken QR session: logout, back to
// CONNECTING and a fresh QR. Concurrent calls for one channel collapse into one.
type RecoveryOrchestrator struct {
	channels channel.Repository
	registry *Registry
	locks    channel.LockSet
	notifier event.Notifier
	now      func() time.Time
}

func NewRecoveryOrchestrator(channels channel.Repository, registry *Registry, locks channel.LockSet, notifier event.Notifier) *RecoveryOrchestrator {
	if notifier == nil {
		notifier = event.NopNotifier{}
	}
	return &RecoveryOrchestrator{
		channels: channels,
		registry: registry,
		locks:    locks,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Recover is a no-op when a recovery of the same channel is already running.
func (r *RecoveryOrchestrator) Recover(ctx context.Context, id string) error {
	release, ok, err := r.locks.TryLock(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		logrus.WithField("channel_id", id).Debug("[RECOVERY] Already in progress, skipped")
		return nil
	}
	defer release()

	ch, err := r.channels.Get(ctx, id)
	if err != nil {
		return err
	}
	strategy, err := r.registry.QR(ch.Type)
	if err != nil {
		return err
	}
	log := logrus.WithField("channel_id", ch.ID)

	if ch.Config.Token == "" {
		ch.ApplyAutomatedStatus(channel.StatusError)
		ch.Metadata.LastError = channel.ErrMissingCredentials.Error()
		r.save(ctx, ch)
		r.emit(ch, event.ChannelError)
		log.Warn("[RECOVERY] No session token stored, channel set to ERROR")
		return channel.ErrMissingCredentials
	}

	st, statusErr := strategy.GetStatus(ctx, ch)
	if statusErr != nil {
		log.WithError(statusErr).Warn("[RECOVERY] Health check failed, re-pairing anyway")
	}
	if ch, err = r.reload(ctx, id); err != nil {
		return err
	}
	if ch == nil {
		log.Info("[RECOVERY] Channel was disconnected by the user, not re-pairing")
		return nil
	}

	if statusErr == nil && st != nil && st.Connected {
		err := ch.MarkConnected(st.Phone, r.now())
		var mismatch pkgError.AuthenticationMismatchError
		switch {
		case err == nil:
			ch.Metadata.Heartbeat.Strikes = 0
			ch.Metadata.Heartbeat.Excluded = false
			r.record(ch)
			r.save(ctx, ch)
			r.emit(ch, event.ChannelConnected)
			log.Info("[RECOVERY] Session already authorized, channel ACTIVE")
			return nil
		case errors.As(err, &mismatch):
			// the foreign session is gone, pair the bound number again
			refuseForeignSession(ctx, strategy, ch, mismatch, r.notifier, "[RECOVERY]")
		default:
			return nil
		}
	} else {
		if statusErr == nil && st != nil && st.State == channel.SyncErrorState {
			log.Info("[RECOVERY] Provider reports SYNC_ERROR, logging out first")
			r.logout(ctx, strategy, ch)
		}
		r.logout(ctx, strategy, ch)
	}

	if ch, err = r.reload(ctx, id); err != nil {
		return err
	}
	if ch == nil || !ch.ApplyAutomatedStatus(channel.StatusConnecting) {
		log.Info("[RECOVERY] Channel was disconnected by the user, not re-pairing")
		return nil
	}
	ch.Metadata.Heartbeat.Strikes = 0
	ch.Metadata.Heartbeat.Excluded = false
	r.save(ctx, ch)
	r.emit(ch, event.ChannelStatus)

	qrErr := strategy.InitiateQRSession(ctx, ch)

	// the QR flow may have changed the row (ERROR on failure)
	if fresh, err := r.channels.Get(ctx, ch.ID); err == nil {
		ch = fresh
	}
	r.record(ch)
	r.save(ctx, ch)

	if qrErr != nil {
		log.WithError(qrErr).Warn("[RECOVERY] QR reissue failed")
		return qrErr
	}
	log.Infof("[RECOVERY] Session reset, QR reissued (recovery #%d)", ch.Metadata.Recovery.Count)
	return nil
}

// reload returns the stored channel, or nil when the user disconnected it
// while a provider call was in flight.
func (r *RecoveryOrchestrator) reload(ctx context.Context, id string) (*channel.Channel, error) {
	ch, err := r.channels.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch.Metadata.DisconnectedByUser {
		return nil, nil
	}
	return ch, nil
}

// logout tolerates sessions that no longer exist on the provider.
func (r *RecoveryOrchestrator) logout(ctx context.Context, strategy channel.QRSessionStrategy, ch *channel.Channel) {
	if err := strategy.Logout(ctx, ch); err != nil && !pkgError.IsNotFoundOnProvider(err) {
		logrus.WithError(err).WithField("channel_id", ch.ID).Warn("[RECOVERY] Logout failed, continuing")
	}
}

func (r *RecoveryOrchestrator) record(ch *channel.Channel) {
	ch.Metadata.Recovery.Count++
	ch.Metadata.Recovery.LastAt = r.now()
}

func (r *RecoveryOrchestrator) save(ctx context.Context, ch *channel.Channel) {
	if err := r.channels.Update(ctx, ch); err != nil {
		logrus.WithError(err).WithField("channel_id", ch.ID).Error("[RECOVERY] Could not persist channel")
	}
}

func (r *RecoveryOrchestrator) emit(ch *channel.Channel, name string) {
	r.notifier.EmitToCompany(ch.CompanyID, name, map[string]any{
		"channel_id": ch.ID,
		"status":     ch.Status,
		"recoveries": ch.Metadata.Recovery.Count,
	})
}
