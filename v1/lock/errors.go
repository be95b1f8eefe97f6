package lock

import "errors"

var (
	// ErrNotAcquired reports that a single acquisition attempt found the
	// lock already held. It is informational, not a failure.
	ErrNotAcquired = errors.New("redilock: lock already held")
	// ErrTimeout reports that a blocking acquisition exhausted its wait
	// budget without the lock becoming free.
	ErrTimeout = errors.New("redilock: lock acquisition timed out")
	// ErrNotHeld reports that a release found no record matching the token:
	// the lock expired, or was released or re-acquired by someone else. It
	// usually means the TTL was too short for the critical section.
	ErrNotHeld = errors.New("redilock: lock not held")
	// ErrInvalidTTL reports a zero or negative TTL.
	ErrInvalidTTL = errors.New("redilock: ttl must be positive")
)
