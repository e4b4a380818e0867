package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/AzielCF/az-connect/infrastructure/valkey"
	"github.com/sirupsen/logrus"
)

// ValkeyDedupStore shares processed ids between instances. Expiry is handled by
// the key TTL, so Sweep has nothing to do and the "now" arguments are advisory.
type ValkeyDedupStore struct {
	client *valkey.Client
	ttl    time.Duration
}

func NewValkeyDedupStore(client *valkey.Client, ttl time.Duration) *ValkeyDedupStore {
	return &ValkeyDedupStore{client: client, ttl: ttl}
}

func (s *ValkeyDedupStore) key(id string) string {
	return s.client.Key("dedup", id)
}

func (s *ValkeyDedupStore) MarkIfAbsent(ctx context.Context, id string, now time.Time) (bool, error) {
	return s.client.SetOnce(ctx, s.key(id), strconv.FormatInt(now.UnixMilli(), 10), s.ttl)
}

func (s *ValkeyDedupStore) Seen(ctx context.Context, id string, _ time.Time) (bool, error) {
	return s.client.Exists(ctx, s.key(id))
}

func (s *ValkeyDedupStore) Sweep(context.Context, time.Time) int {
	return 0
}

// Reset is a no-op: shared keys are not cleared from one instance.
func (s *ValkeyDedupStore) Reset() {
	logrus.Debug("[DEDUP] Reset ignored for valkey store")
}
