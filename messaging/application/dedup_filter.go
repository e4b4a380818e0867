package application

import (
	"context"
	"sync"
	"time"

	"github.com/AzielCF/az-connect/messaging/domain/message"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

type DedupConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	MaxAge        time.Duration
	MaxFutureSkew time.Duration
}

func (c *DedupConfig) defaults() {
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 2 * time.Minute
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 10 * time.Minute
	}
	if c.MaxFutureSkew <= 0 {
		c.MaxFutureSkew = time.Minute
	}
}

// DedupFilter decides whether an inbound message may enter processing.
// An admitted id is marked before it is handed downstream, so two deliveries
// racing through the filter cannot both pass.
type DedupFilter struct {
	store message.DedupStore
	cfg   DedupConfig
	now   func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

func NewDedupFilter(store message.DedupStore, cfg DedupConfig) *DedupFilter {
	cfg.defaults()
	return &DedupFilter{
		store: store,
		cfg:   cfg,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
}

// Admit classifies the message with provider id key, reported at ts.
// Stale messages are dropped without being marked.
func (f *DedupFilter) Admit(ctx context.Context, key string, ts time.Time) message.Verdict {
	now := f.now()
	log := logrus.WithField("message_key", key)

	if !ts.IsZero() {
		if age := now.Sub(ts); age > f.cfg.MaxAge {
			log.Debugf("[DEDUP] Stale message dropped, reported %s", humanize.RelTime(ts, now, "ago", "ahead"))
			return message.VerdictStale
		}
		if ts.Sub(now) > f.cfg.MaxFutureSkew {
			log.Warnf("[DEDUP] Message timestamp is %s, processing anyway", humanize.RelTime(ts, now, "ago", "ahead"))
		}
	}

	fresh, err := f.store.MarkIfAbsent(ctx, key, now)
	if err != nil {
		// without the store the message is processed at least once rather than lost
		log.WithError(err).Warn("[DEDUP] Store unavailable, admitting message")
		return message.VerdictAccepted
	}
	if !fresh {
		log.Debug("[DEDUP] Duplicate delivery dropped")
		return message.VerdictDuplicate
	}
	return message.VerdictAccepted
}

// IsAlreadyProcessed reports whether key is marked and unexpired.
func (f *DedupFilter) IsAlreadyProcessed(ctx context.Context, key string) bool {
	seen, err := f.store.Seen(ctx, key, f.now())
	if err != nil {
		logrus.WithError(err).Warn("[DEDUP] Lookup failed")
		return false
	}
	return seen
}

// Sweep evicts expired ids once.
func (f *DedupFilter) Sweep(ctx context.Context) int {
	n := f.store.Sweep(ctx, f.now())
	if n > 0 {
		logrus.Debugf("[DEDUP] Swept %s expired message ids", humanize.Comma(int64(n)))
	}
	return n
}

// StartSweeper runs Sweep on its own ticker until ctx ends or Stop is called.
func (f *DedupFilter) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(f.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-f.stop:
				return
			case <-ticker.C:
				f.Sweep(ctx)
			}
		}
	}()
	logrus.Infof("[DEDUP] Sweeper started (ttl %s, every %s)", f.cfg.TTL, f.cfg.SweepInterval)
}

func (f *DedupFilter) Stop() {
	f.stopOnce.Do(func() {
		close(f.stop)
	})
}

func (f *DedupFilter) Reset() {
	f.store.Reset()
}
