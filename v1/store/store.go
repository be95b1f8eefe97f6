package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps any backend failure. Callers must treat it as "outcome
// unknown": a failed round trip never means acquired or released.
var ErrUnavailable = errors.New("store: backend unavailable")

// Store is the capability a backing store must provide for distributed
// locking. Both operations are atomic from the backend's perspective.
type Store interface {
	// SetIfAbsent creates the key with the given value and TTL only if the
	// key does not currently exist. It reports whether the key was created.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// DeleteIfEquals removes the key only if its current value equals value.
	// It reports whether the key was removed.
	DeleteIfEquals(ctx context.Context, key, value string) (bool, error)
}
