package message

import (
	"context"
	"time"
)

// DedupStore remembers provider message ids for a bounded time.
type DedupStore interface {
	// MarkIfAbsent records id and returns true if it was not already present (or had expired).
	MarkIfAbsent(ctx context.Context, id string, now time.Time) (bool, error)
	// Seen reports whether id is present and unexpired. Expired entries are evicted.
	Seen(ctx context.Context, id string, now time.Time) (bool, error)
	// Sweep evicts expired entries and returns how many were removed.
	Sweep(ctx context.Context, now time.Time) int
	Reset()
}
