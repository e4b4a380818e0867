package repository

import (
	"context"
	"time"

	"github.com/AzielCF/az-connect/infrastructure/valkey"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ValkeyLockSet holds recovery locks in valkey so only one instance recovers a channel.
// The TTL bounds a lock whose owner died before releasing it.
type ValkeyLockSet struct {
	client *valkey.Client
	ttl    time.Duration
}

func NewValkeyLockSet(client *valkey.Client, ttl time.Duration) *ValkeyLockSet {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &ValkeyLockSet{client: client, ttl: ttl}
}

func (l *ValkeyLockSet) TryLock(ctx context.Context, id string) (func(), bool, error) {
	key := l.client.Key("recovery", id, "lock")
	token := uuid.NewString()

	ok, err := l.client.SetOnce(ctx, key, token, l.ttl)
	if err != nil || !ok {
		return nil, false, err
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.client.Unlock(releaseCtx, key, token); err != nil {
			logrus.WithError(err).Warnf("[RECOVERY] Failed to release lock for %s", id)
		}
	}, true, nil
}
