package lock

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zferentz/redilock/v1/store"
)

func newLocker(t *testing.T, opts ...Option) (*Locker, context.Context) {
	t.Helper()
	opts = append([]Option{WithPollInterval(5 * time.Millisecond)}, opts...)
	l, err := New(store.NewInMemory(), time.Minute, opts...)
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	return l, context.Background()
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, time.Second); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := New(store.NewInMemory(), 0); !errors.Is(err, ErrInvalidTTL) {
		t.Fatalf("expected ErrInvalidTTL, got %v", err)
	}
	if _, err := New(store.NewInMemory(), time.Second, WithPollInterval(-1)); err == nil {
		t.Fatal("expected error for negative poll interval")
	}
}

func TestRoundTrip(t *testing.T) {
	l, ctx := newLocker(t)
	tok, err := l.Lock(ctx, "k", WithTTL(5*time.Second))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if tok.Name != "k" || tok.Secret == "" {
		t.Fatalf("malformed token: %+v", tok)
	}
	if err := l.Unlock(ctx, tok); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	// No record may remain for the name.
	if _, err := l.TryLock(ctx, "k"); err != nil {
		t.Fatalf("expected lock free after round trip: %v", err)
	}
}

func TestTryLockDeniedImmediately(t *testing.T) {
	l, ctx := newLocker(t)
	if _, err := l.TryLock(ctx, "k", WithTTL(10*time.Second)); err != nil {
		t.Fatalf("holder lock: %v", err)
	}
	start := time.Now()
	_, err := l.TryLock(ctx, "k")
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatal("non-blocking attempt waited")
	}
}

func TestUnlockMismatch(t *testing.T) {
	l, ctx := newLocker(t)
	tok, err := l.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	foreign := &Token{Name: "k", Secret: "not-the-secret"}
	if err := l.Unlock(ctx, foreign); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld, got %v", err)
	}
	// The true holder's record must be untouched.
	if err := l.Unlock(ctx, tok); err != nil {
		t.Fatalf("holder unlock after foreign attempt: %v", err)
	}
	if err := l.Unlock(ctx, nil); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld for nil token, got %v", err)
	}
}

func TestTTLTakeover(t *testing.T) {
	l, ctx := newLocker(t)
	if _, err := l.TryLock(ctx, "k", WithTTL(200*time.Millisecond)); err != nil {
		t.Fatalf("holder lock: %v", err)
	}
	// The holder never unlocks; a blocking contender must win once the TTL
	// elapses, not once the holder wakes up.
	start := time.Now()
	tok, err := l.Lock(ctx, "k", WithTTL(time.Second))
	if err != nil {
		t.Fatalf("contender lock: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 150*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Fatalf("takeover at %v, want ~200ms", elapsed)
	}
	if err := l.Unlock(ctx, tok); err != nil {
		t.Fatalf("unlock: %v", err)
	}
}

func TestStaleTokenAfterExpiry(t *testing.T) {
	l, ctx := newLocker(t)
	old, err := l.TryLock(ctx, "k", WithTTL(50*time.Millisecond))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	cur, err := l.TryLock(ctx, "k", WithTTL(10*time.Second))
	if err != nil {
		t.Fatalf("reacquire after expiry: %v", err)
	}
	if err := l.Unlock(ctx, old); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("stale unlock: expected ErrNotHeld, got %v", err)
	}
	if err := l.Unlock(ctx, cur); err != nil {
		t.Fatalf("current holder unlock: %v", err)
	}
}

func TestLockTimeout(t *testing.T) {
	l, ctx := newLocker(t)
	if _, err := l.TryLock(ctx, "k", WithTTL(10*time.Second)); err != nil {
		t.Fatalf("holder lock: %v", err)
	}
	start := time.Now()
	_, err := l.Lock(ctx, "k", WithTimeout(60*time.Millisecond))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 300*time.Millisecond {
		t.Fatal("lock kept waiting past its timeout")
	}
}

func TestLockCancellation(t *testing.T) {
	l, _ := newLocker(t)
	ctx := context.Background()
	if _, err := l.TryLock(ctx, "k", WithTTL(10*time.Second)); err != nil {
		t.Fatalf("holder lock: %v", err)
	}
	cctx, cancel := context.WithCancel(ctx)
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := l.Lock(cctx, "k")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 200*time.Millisecond {
		t.Fatal("cancellation not observed while suspended")
	}
}

func TestMutualExclusion(t *testing.T) {
	l, ctx := newLocker(t, WithPollInterval(time.Millisecond))
	var holders atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for j := 0; j < 20; j++ {
				tok, err := l.Lock(ctx, "mx", WithTTL(time.Second))
				if err != nil {
					return err
				}
				if n := holders.Add(1); n != 1 {
					return fmt.Errorf("%d simultaneous holders", n)
				}
				time.Sleep(time.Millisecond)
				holders.Add(-1)
				if err := l.Unlock(ctx, tok); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestSleepWaiter(t *testing.T) {
	l, ctx := newLocker(t, WithWaiter(SleepWaiter{}))
	if _, err := l.TryLock(ctx, "k", WithTTL(30*time.Millisecond)); err != nil {
		t.Fatalf("holder lock: %v", err)
	}
	tok, err := l.Lock(ctx, "k", WithTTL(time.Second))
	if err != nil {
		t.Fatalf("blocking lock: %v", err)
	}
	if err := l.Unlock(ctx, tok); err != nil {
		t.Fatalf("unlock: %v", err)
	}
}

func TestDoReleasesOnError(t *testing.T) {
	l, ctx := newLocker(t)
	boom := errors.New("boom")
	unlocks := 0
	st := &countingStore{Store: store.NewInMemory(), deletes: &unlocks}
	l.store = st
	err := l.Do(ctx, "k", func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error to propagate, got %v", err)
	}
	if unlocks != 1 {
		t.Fatalf("expected exactly one release, got %d", unlocks)
	}
	if _, err := l.TryLock(ctx, "k"); err != nil {
		t.Fatalf("expected lock free after Do: %v", err)
	}
}

func TestDoReleasesOnPanic(t *testing.T) {
	l, ctx := newLocker(t)
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = l.Do(ctx, "k", func(context.Context) error {
			panic("boom")
		})
	}()
	if _, err := l.TryLock(ctx, "k"); err != nil {
		t.Fatalf("expected lock free after panicking Do: %v", err)
	}
}

func TestDoReleasesOnCancelledContext(t *testing.T) {
	l, _ := newLocker(t)
	cctx, cancel := context.WithCancel(context.Background())
	err := l.Do(cctx, "k", func(context.Context) error {
		cancel()
		return cctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// Release runs on a fresh context, so the record must be gone.
	if _, err := l.TryLock(context.Background(), "k"); err != nil {
		t.Fatalf("expected lock free after cancelled Do: %v", err)
	}
}

func TestStoreFailurePropagates(t *testing.T) {
	l, ctx := newLocker(t)
	l.store = failingStore{}
	if _, err := l.Lock(ctx, "k"); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := l.Unlock(ctx, &Token{Name: "k", Secret: "s"}); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestMintFailureIsFatal(t *testing.T) {
	l, ctx := newLocker(t, WithTokenGenerator(failingGenerator{}))
	if _, err := l.Lock(ctx, "k"); err == nil {
		t.Fatal("expected mint failure to surface")
	}
}

type countingStore struct {
	store.Store
	deletes *int
}

func (c *countingStore) DeleteIfEquals(ctx context.Context, key, value string) (bool, error) {
	*c.deletes++
	return c.Store.DeleteIfEquals(ctx, key, value)
}

type failingStore struct{}

func (failingStore) SetIfAbsent(context.Context, string, string, time.Duration) (bool, error) {
	return false, fmt.Errorf("%w: down", store.ErrUnavailable)
}

func (failingStore) DeleteIfEquals(context.Context, string, string) (bool, error) {
	return false, fmt.Errorf("%w: down", store.ErrUnavailable)
}

type failingGenerator struct{}

func (failingGenerator) Mint() (string, error) {
	return "", errors.New("entropy exhausted")
}
