package msgworker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// MessageJob representa el procesamiento de un mensaje entrante
type MessageJob struct {
	ChannelID string
	SenderID  string
	Handler   func(ctx context.Context) error
}

func (j MessageJob) key() string {
	return j.ChannelID + "|" + j.SenderID
}

// QueueStats contiene métricas en tiempo real de la cola
type QueueStats struct {
	PendingKeys     int   `json:"pending_keys"`
	TotalDispatched int64 `json:"total_dispatched"`
	TotalProcessed  int64 `json:"total_processed"`
	TotalErrors     int64 `json:"total_errors"`
}

// link es un eslabón de la cadena de una conversación; done se cierra al terminar.
type link struct {
	done chan struct{}
}

// MessageQueue serializes jobs per (channel, sender): each job runs after the
// previous job of the same key has settled, while different keys run in parallel.
// A failed or panicking job does not stop the chain.
type MessageQueue struct {
	ctx context.Context

	mu    sync.Mutex
	tails map[string]*link

	wg sync.WaitGroup

	totalDispatched int64
	totalProcessed  int64
	totalErrors     int64
}

// NewMessageQueue crea la cola; ctx se entrega a cada handler.
func NewMessageQueue(ctx context.Context) *MessageQueue {
	if ctx == nil {
		ctx = context.Background()
	}
	return &MessageQueue{
		ctx:   ctx,
		tails: make(map[string]*link),
	}
}

// Dispatch chains job behind the pending job of its key and returns immediately.
func (q *MessageQueue) Dispatch(job MessageJob) {
	key := job.key()
	next := &link{done: make(chan struct{})}

	q.mu.Lock()
	prev := q.tails[key]
	q.tails[key] = next
	q.mu.Unlock()

	atomic.AddInt64(&q.totalDispatched, 1)
	q.wg.Add(1)

	go func() {
		defer q.wg.Done()
		if prev != nil {
			<-prev.done
		}

		q.run(key, job)
		close(next.done)

		// Solo se elimina si sigue siendo el último eslabón de la clave
		q.mu.Lock()
		if q.tails[key] == next {
			delete(q.tails, key)
		}
		q.mu.Unlock()
	}()
}

func (q *MessageQueue) run(key string, job MessageJob) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&q.totalErrors, 1)
			logrus.Errorf("[MSG_QUEUE] panic processing %s: %v", key, r)
		}
		atomic.AddInt64(&q.totalProcessed, 1)
	}()

	if err := job.Handler(q.ctx); err != nil {
		atomic.AddInt64(&q.totalErrors, 1)
		logrus.WithError(err).Errorf("[MSG_QUEUE] job failed for %s", key)
	}
}

// Wait blocks until every dispatched job has finished or ctx ends.
func (q *MessageQueue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports how many keys still have a chain in flight.
func (q *MessageQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tails)
}

func (q *MessageQueue) Stats() QueueStats {
	return QueueStats{
		PendingKeys:     q.Pending(),
		TotalDispatched: atomic.LoadInt64(&q.totalDispatched),
		TotalProcessed:  atomic.LoadInt64(&q.totalProcessed),
		TotalErrors:     atomic.LoadInt64(&q.totalErrors),
	}
}
