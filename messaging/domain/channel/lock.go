package channel

import "context"

// LockSet is a per-channel mutual-exclusion set used to make recovery idempotent.
type LockSet interface {
	// TryLock returns ok=false without blocking when id is already held.
	// The returned release func must be called exactly once when ok is true.
	TryLock(ctx context.Context, id string) (release func(), ok bool, err error)
}
