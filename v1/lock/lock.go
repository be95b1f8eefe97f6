package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zferentz/redilock/v1/metrics"
	"github.com/zferentz/redilock/v1/store"
	"github.com/zferentz/redilock/v1/token"
)

var tracer = otel.Tracer("github.com/zferentz/redilock/v1/lock")

// DefaultPollInterval is the wait between acquisition attempts unless
// overridden with WithPollInterval.
const DefaultPollInterval = 250 * time.Millisecond

// Token is the proof of ownership returned by a successful acquisition. Name
// binds the secret to the store key it was minted for, so a Token is all that
// Unlock needs.
type Token struct {
	Name   string
	Secret string
}

// Locker acquires and releases named locks against a single backing store.
// It keeps no local record of lock state; every call round-trips the store,
// so independent Locker instances on any number of hosts coordinate
// correctly through the store alone.
type Locker struct {
	store        store.Store
	gen          token.Generator
	defaultTTL   time.Duration
	pollInterval time.Duration
	waiter       Waiter
}

// Option configures a Locker.
type Option func(*Locker)

// WithPollInterval sets the wait between acquisition attempts.
func WithPollInterval(d time.Duration) Option {
	return func(l *Locker) {
		l.pollInterval = d
	}
}

// WithTokenGenerator sets the generator used to mint ownership tokens.
func WithTokenGenerator(g token.Generator) Option {
	return func(l *Locker) {
		l.gen = g
	}
}

// WithWaiter sets how the goroutine spends the interval between attempts.
func WithWaiter(w Waiter) Option {
	return func(l *Locker) {
		l.waiter = w
	}
}

// New returns a Locker backed by st. defaultTTL applies to acquisitions that
// do not override it with WithTTL and must be positive.
func New(st store.Store, defaultTTL time.Duration, opts ...Option) (*Locker, error) {
	if st == nil {
		return nil, errors.New("redilock: store is nil")
	}
	if defaultTTL <= 0 {
		return nil, ErrInvalidTTL
	}
	l := &Locker{
		store:        st,
		gen:          token.UUID{},
		defaultTTL:   defaultTTL,
		pollInterval: DefaultPollInterval,
		waiter:       TimerWaiter{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.pollInterval <= 0 {
		return nil, errors.New("redilock: poll interval must be positive")
	}
	return l, nil
}

type lockOptions struct {
	ttl     time.Duration
	timeout time.Duration
}

// LockOption configures a single acquisition.
type LockOption func(*lockOptions)

// WithTTL overrides the Locker's default TTL for this acquisition.
func WithTTL(d time.Duration) LockOption {
	return func(o *lockOptions) {
		o.ttl = d
	}
}

// WithTimeout bounds how long a blocking acquisition waits before giving up
// with ErrTimeout. Zero means wait until the context is cancelled.
func WithTimeout(d time.Duration) LockOption {
	return func(o *lockOptions) {
		o.timeout = d
	}
}

func (l *Locker) lockOptions(opts []LockOption) lockOptions {
	o := lockOptions{ttl: l.defaultTTL}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// TryLock makes exactly one attempt to acquire name and returns immediately.
// It returns ErrNotAcquired if the lock is currently held.
func (l *Locker) TryLock(ctx context.Context, name string, opts ...LockOption) (*Token, error) {
	o := l.lockOptions(opts)
	if o.ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	ctx, span := tracer.Start(ctx, "Locker.TryLock", trace.WithAttributes(attribute.String("redilock.name", name)))
	defer span.End()
	return l.tryOnce(ctx, name, o.ttl)
}

// Lock acquires name, polling until the lock is free, the WithTimeout budget
// runs out (ErrTimeout), or ctx is cancelled (ctx.Err(); cancellation leaves
// no record behind). The returned Token is required to Unlock.
func (l *Locker) Lock(ctx context.Context, name string, opts ...LockOption) (*Token, error) {
	o := l.lockOptions(opts)
	if o.ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	ctx, span := tracer.Start(ctx, "Locker.Lock", trace.WithAttributes(attribute.String("redilock.name", name)))
	defer span.End()

	wctx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	for {
		tok, err := l.tryOnce(wctx, name, o.ttl)
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, ErrNotAcquired) {
			if o.timeout > 0 && wctx.Err() != nil && ctx.Err() == nil {
				return nil, ErrTimeout
			}
			return nil, err
		}
		if werr := l.waiter.Wait(wctx, l.pollInterval); werr != nil {
			if o.timeout > 0 && ctx.Err() == nil {
				return nil, ErrTimeout
			}
			return nil, werr
		}
	}
}

func (l *Locker) tryOnce(ctx context.Context, name string, ttl time.Duration) (*Token, error) {
	secret, err := l.gen.Mint()
	if err != nil {
		return nil, fmt.Errorf("redilock: mint token: %w", err)
	}
	created, err := l.store.SetIfAbsent(ctx, name, secret, ttl)
	if err != nil {
		metrics.StoreErrorCounter.Inc()
		return nil, err
	}
	if !created {
		metrics.ContentionCounter.Inc()
		return nil, ErrNotAcquired
	}
	metrics.AcquireCounter.Inc()
	return &Token{Name: name, Secret: secret}, nil
}

// Unlock releases the lock tok was minted for. ErrNotHeld means the record no
// longer matched the token; the holder's assumption of ownership was already
// false at that point, so callers must not ignore it. Unlock never removes a
// record owned by someone else.
func (l *Locker) Unlock(ctx context.Context, tok *Token) error {
	if tok == nil || tok.Name == "" || tok.Secret == "" {
		return ErrNotHeld
	}
	ctx, span := tracer.Start(ctx, "Locker.Unlock", trace.WithAttributes(attribute.String("redilock.name", tok.Name)))
	defer span.End()
	removed, err := l.store.DeleteIfEquals(ctx, tok.Name, tok.Secret)
	if err != nil {
		metrics.StoreErrorCounter.Inc()
		return err
	}
	if !removed {
		metrics.MismatchCounter.Inc()
		return ErrNotHeld
	}
	metrics.ReleaseCounter.Inc()
	return nil
}

// Do acquires name, runs fn while holding the lock, and releases on every
// exit path including panics. Release is attempted exactly once per
// successful acquisition, on a fresh context so a cancellation that aborted
// fn does not also abort the release.
func (l *Locker) Do(ctx context.Context, name string, fn func(context.Context) error, opts ...LockOption) (err error) {
	tok, lerr := l.Lock(ctx, name, opts...)
	if lerr != nil {
		return lerr
	}
	defer func() {
		if uerr := l.Unlock(context.Background(), tok); uerr != nil {
			err = errors.Join(err, uerr)
		}
	}()
	return fn(ctx)
}
