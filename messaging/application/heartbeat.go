package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
	"github.com/AzielCF/az-connect/messaging/domain/event"
	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type HeartbeatConfig struct {
	Tick               time.Duration
	Interval           time.Duration
	CacheRefresh       time.Duration
	MaxStrikes         int
	VerificationWindow time.Duration
	AdminSyncInterval  time.Duration
	Concurrency        int
	PollTimeout        time.Duration
}

func (c *HeartbeatConfig) defaults() {
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.CacheRefresh <= 0 {
		c.CacheRefresh = time.Minute
	}
	if c.MaxStrikes <= 0 {
		c.MaxStrikes = 3
	}
	if c.VerificationWindow <= 0 {
		c.VerificationWindow = 90 * time.Second
	}
	if c.AdminSyncInterval <= 0 {
		c.AdminSyncInterval = 2 * time.Minute
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 15 * time.Second
	}
}

// transitionalStates are provider states between QR scan and a usable session.
var transitionalStates = map[string]bool{
	"INIT":       true,
	"LAUNCH":     true,
	"LOADING":    true,
	"PAIRING":    true,
	"PAIRED":     true,
	"SYNC":       true,
	"SYNCING":    true,
	"CONNECTING": true,
	"OPENING":    true,
}

func isTransitional(state string) bool {
	return transitionalStates[strings.ToUpper(strings.TrimSpace(state))]
}

// Heartbeat polls provider health for QR/session channels and reconciles the
// stored status with what the provider reports.
type Heartbeat struct {
	channels channel.Repository
	registry *Registry
	notifier event.Notifier
	cfg      HeartbeatConfig
	now      func() time.Time

	running atomic.Bool

	// OnSustainedFailure runs when a channel reaches ERROR through strikes or
	// the provider reports a state that needs a session reset.
	OnSustainedFailure func(channelID string)

	cacheMu     sync.Mutex
	cache       []string
	cacheLoaded time.Time
	cacheStale  bool

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHeartbeat(channels channel.Repository, registry *Registry, notifier event.Notifier, cfg HeartbeatConfig) *Heartbeat {
	cfg.defaults()
	if notifier == nil {
		notifier = event.NopNotifier{}
	}
	return &Heartbeat{
		channels:   channels,
		registry:   registry,
		notifier:   notifier,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		cacheStale: true,
	}
}

// Start runs Tick every cfg.Tick until Stop is called or ctx ends.
func (h *Heartbeat) Start(ctx context.Context) {
	h.loopMu.Lock()
	defer h.loopMu.Unlock()
	if h.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(h.cfg.Tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// overlapping ticks are skipped inside Tick
				go h.Tick(ctx)
			}
		}
	}(h.done)

	logrus.Infof("[HEARTBEAT] Watchdog started (tick %s, interval %s, max strikes %d)", h.cfg.Tick, h.cfg.Interval, h.cfg.MaxStrikes)
}

func (h *Heartbeat) Stop() {
	h.loopMu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logrus.Info("[HEARTBEAT] Watchdog stopped")
}

// Invalidate forces the next tick to reload the channel set.
func (h *Heartbeat) Invalidate() {
	h.cacheMu.Lock()
	defer h.cacheMu.Unlock()
	h.cacheStale = true
}

// Tick polls every due channel once. A tick that starts while another is
// still running returns immediately.
func (h *Heartbeat) Tick(ctx context.Context) {
	if !h.running.CompareAndSwap(false, true) {
		return
	}
	defer h.running.Store(false)

	ids, err := h.channelIDs(ctx)
	if err != nil {
		logrus.WithError(err).Error("[HEARTBEAT] Could not load channels")
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logrus.Errorf("[HEARTBEAT] panic polling %s: %v", id, r)
				}
			}()
			h.poll(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

func (h *Heartbeat) channelIDs(ctx context.Context) ([]string, error) {
	h.cacheMu.Lock()
	defer h.cacheMu.Unlock()

	now := h.now()
	if !h.cacheStale && now.Sub(h.cacheLoaded) < h.cfg.CacheRefresh {
		return h.cache, nil
	}

	var ids []string
	for _, t := range h.registry.QRTypes() {
		list, err := h.channels.List(ctx, channel.Filter{
			Type:     t,
			Statuses: []channel.ChannelStatus{channel.StatusConnecting, channel.StatusActive, channel.StatusError},
		})
		if err != nil {
			return nil, err
		}
		for _, ch := range list {
			if !ch.Metadata.DisconnectedByUser {
				ids = append(ids, ch.ID)
			}
		}
	}
	h.cache = ids
	h.cacheLoaded = now
	h.cacheStale = false
	logrus.Debugf("[HEARTBEAT] Channel cache refreshed (%d channels)", len(ids))
	return ids, nil
}

func (h *Heartbeat) interval(ch *channel.Channel) time.Duration {
	if s := ch.Metadata.Heartbeat.IntervalSeconds; s > 0 {
		return time.Duration(s) * time.Second
	}
	return h.cfg.Interval
}

// poll reads the channel fresh, so a webhook transition that landed after the
// cache was built is never overwritten by a stale copy. The row is read again
// after the provider call for the same reason.
func (h *Heartbeat) poll(ctx context.Context, id string) {
	ch, ok := h.load(ctx, id)
	if !ok {
		return
	}

	now := h.now()
	hb := &ch.Metadata.Heartbeat
	if hb.Excluded {
		return
	}
	if hb.Strikes >= 10*h.cfg.MaxStrikes {
		hb.Excluded = true
		h.save(ctx, ch)
		logrus.WithFields(logrus.Fields{"channel_id": ch.ID, "strikes": hb.Strikes}).Warn("[HEARTBEAT] Channel excluded from polling")
		return
	}
	if !hb.LastTick.IsZero() && now.Sub(hb.LastTick) < h.interval(ch) {
		return
	}

	strategy, err := h.registry.Get(ch.Type)
	if err != nil {
		return
	}

	pollCtx, cancel := context.WithTimeout(ctx, h.cfg.PollTimeout)
	st, err := strategy.GetStatus(pollCtx, ch)
	cancel()

	ch, ok = h.load(ctx, id)
	if !ok {
		logrus.WithField("channel_id", id).Debug("[HEARTBEAT] Channel disconnected during poll, reading dropped")
		return
	}
	ch.Metadata.Heartbeat.LastTick = now
	if err != nil {
		h.onPollError(ctx, ch, err)
		return
	}
	h.onPollResult(ctx, strategy, ch, st, now)
}

// load returns the stored channel unless it is gone or the user took it down.
func (h *Heartbeat) load(ctx context.Context, id string) (*channel.Channel, bool) {
	ch, err := h.channels.Get(ctx, id)
	if err != nil {
		logrus.WithError(err).WithField("channel_id", id).Debug("[HEARTBEAT] Channel vanished")
		h.Invalidate()
		return nil, false
	}
	if ch.Metadata.DisconnectedByUser || ch.Status == channel.StatusInactive {
		return nil, false
	}
	return ch, true
}

func (h *Heartbeat) onPollError(ctx context.Context, ch *channel.Channel, cause error) {
	hb := &ch.Metadata.Heartbeat
	hb.Strikes++
	ch.Metadata.LastError = cause.Error()
	log := logrus.WithFields(logrus.Fields{"channel_id": ch.ID, "strikes": hb.Strikes})

	if hb.Strikes >= h.cfg.MaxStrikes && ch.Status != channel.StatusError {
		ch.ApplyAutomatedStatus(channel.StatusError)
		h.save(ctx, ch)
		h.notifier.EmitToCompany(ch.CompanyID, event.ChannelError, map[string]any{
			"channel_id": ch.ID,
			"status":     ch.Status,
			"strikes":    hb.Strikes,
			"error":      cause.Error(),
		})
		log.WithError(cause).Error("[HEARTBEAT] Health check failing, channel set to ERROR")
		h.escalate(ch.ID)
		return
	}
	h.save(ctx, ch)
	log.WithError(cause).Warn("[HEARTBEAT] Health check failed")
}

func (h *Heartbeat) onPollResult(ctx context.Context, strategy channel.Strategy, ch *channel.Channel, st *channel.Status, now time.Time) {
	hb := &ch.Metadata.Heartbeat
	hb.LastState = st.State
	hb.Strikes = 0
	log := logrus.WithFields(logrus.Fields{"channel_id": ch.ID, "state": st.State})

	if st.State == channel.SyncErrorState {
		h.save(ctx, ch)
		log.Warn("[HEARTBEAT] Provider reports SYNC_ERROR")
		h.escalate(ch.ID)
		return
	}

	if isTransitional(st.State) {
		hb.VerificationUntil = now.Add(h.cfg.VerificationWindow)
		log.Debug("[HEARTBEAT] Transitional state, verification window open")
	}

	if st.Connected {
		previous, previousNumber := ch.Status, ch.Number
		if err := ch.MarkConnected(st.Phone, now); err != nil {
			var mismatch pkgError.AuthenticationMismatchError
			if errors.As(err, &mismatch) {
				ch.Metadata.LastError = mismatch.Error()
				h.save(ctx, ch)
				refuseForeignSession(ctx, strategy, ch, mismatch, h.notifier, "[HEARTBEAT]")
			}
			return
		}
		hb.Excluded = false
		hb.VerificationUntil = time.Time{}
		ch.Metadata.LastError = ""
		h.syncAdmin(ctx, strategy, ch, now)
		h.save(ctx, ch)
		if previous != channel.StatusActive || previousNumber != ch.Number {
			h.notifier.EmitToCompany(ch.CompanyID, event.ChannelConnected, map[string]any{
				"channel_id": ch.ID,
				"status":     ch.Status,
				"number":     ch.Number,
			})
			log.Info("[HEARTBEAT] Provider reports session authorized, channel ACTIVE")
		}
		return
	}

	if hb.InVerificationWindow(now) {
		ch.ApplyAutomatedStatus(channel.StatusConnecting)
		h.save(ctx, ch)
		log.Debug("[HEARTBEAT] Not authorized yet, holding CONNECTING inside verification window")
		return
	}

	windowExpired := !hb.VerificationUntil.IsZero()
	hb.VerificationUntil = time.Time{}
	previous := ch.Status
	ch.ApplyAutomatedStatus(channel.StatusConnecting)
	h.save(ctx, ch)

	if previous != channel.StatusConnecting || windowExpired {
		h.notifier.EmitToCompany(ch.CompanyID, event.ChannelDisconnected, map[string]any{
			"channel_id": ch.ID,
			"status":     ch.Status,
			"state":      st.State,
		})
		log.Info("[HEARTBEAT] Session not authorized, channel CONNECTING")
	}
}

func (h *Heartbeat) syncAdmin(ctx context.Context, strategy channel.Strategy, ch *channel.Channel, now time.Time) {
	syncer, ok := strategy.(channel.AdminSyncer)
	if !ok {
		return
	}
	hb := &ch.Metadata.Heartbeat
	if !hb.LastAdminSync.IsZero() && now.Sub(hb.LastAdminSync) < h.cfg.AdminSyncInterval {
		return
	}
	hb.LastAdminSync = now

	state, err := syncer.SyncAdminState(ctx, ch)
	if err != nil {
		logrus.WithError(err).WithField("channel_id", ch.ID).Debug("[HEARTBEAT] Admin sync failed")
		return
	}
	if state != nil {
		ch.Metadata.Admin = state
	}
}

func (h *Heartbeat) escalate(channelID string) {
	if h.OnSustainedFailure != nil {
		h.OnSustainedFailure(channelID)
	}
}

func (h *Heartbeat) save(ctx context.Context, ch *channel.Channel) {
	if err := h.channels.Update(ctx, ch); err != nil {
		logrus.WithError(err).WithField("channel_id", ch.ID).Error("[HEARTBEAT] Could not persist heartbeat state")
	}
}
