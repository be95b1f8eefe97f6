package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	nats "github.com/nats-io/nats.go"
)

const defaultNATSBucket = "redilock"

// NATS implements Store on a JetStream key-value bucket. Bucket KV has no
// per-key TTL, so the record embeds its own deadline and an expired record
// counts as absent; taking it over and deleting it both go through a
// revision compare-and-swap so the whole operation stays atomic.
type NATS struct {
	kv nats.KeyValue
}

// NATSOption configures a NATS store.
type NATSOption func(*natsOptions)

type natsOptions struct {
	bucket string
}

// WithNATSBucket sets the key-value bucket used for lock records.
func WithNATSBucket(name string) NATSOption {
	return func(o *natsOptions) {
		o.bucket = name
	}
}

// NewNATS returns a NATS store on the given connection, creating the
// key-value bucket if it does not exist.
func NewNATS(conn *nats.Conn, opts ...NATSOption) (*NATS, error) {
	o := natsOptions{bucket: defaultNATSBucket}
	for _, opt := range opts {
		opt(&o)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("%w: jetstream: %v", ErrUnavailable, err)
	}
	kv, err := js.KeyValue(o.bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: o.bucket})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: bucket %s: %v", ErrUnavailable, o.bucket, err)
	}
	return &NATS{kv: kv}, nil
}

// record format: "<value> <deadline unix nanos>". Lock values are UUIDs or
// hex strings, never containing a space.
func encodeRecord(value string, deadline time.Time) []byte {
	return []byte(value + " " + strconv.FormatInt(deadline.UnixNano(), 10))
}

func decodeRecord(raw []byte) (value string, deadline time.Time, err error) {
	v, d, ok := strings.Cut(string(raw), " ")
	if !ok {
		return "", time.Time{}, errors.New("store: malformed lock record")
	}
	nanos, err := strconv.ParseInt(d, 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("store: malformed lock record deadline: %w", err)
	}
	return v, time.Unix(0, nanos), nil
}

// SetIfAbsent implements Store.SetIfAbsent.
func (n *NATS) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	rec := encodeRecord(value, time.Now().Add(ttl))
	_, err := n.kv.Create(key, rec)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, nats.ErrKeyExists) {
		return false, fmt.Errorf("%w: nats kv create: %v", ErrUnavailable, err)
	}
	entry, err := n.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		// Deleted between our Create and Get; the next attempt will win.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: nats kv get: %v", ErrUnavailable, err)
	}
	_, deadline, derr := decodeRecord(entry.Value())
	if derr == nil && time.Now().Before(deadline) {
		return false, nil
	}
	// The record expired (or is unreadable); take it over iff nobody else
	// touched it since we looked.
	if _, err := n.kv.Update(key, rec, entry.Revision()); err != nil {
		if isRevisionConflict(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: nats kv update: %v", ErrUnavailable, err)
	}
	return true, nil
}

// DeleteIfEquals implements Store.DeleteIfEquals.
func (n *NATS) DeleteIfEquals(ctx context.Context, key, value string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	entry, err := n.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: nats kv get: %v", ErrUnavailable, err)
	}
	cur, deadline, derr := decodeRecord(entry.Value())
	if derr != nil || cur != value || !time.Now().Before(deadline) {
		return false, nil
	}
	if err := n.kv.Delete(key, nats.LastRevision(entry.Revision())); err != nil {
		if isRevisionConflict(err) {
			// Revision moved: the record expired and was re-acquired.
			return false, nil
		}
		return false, fmt.Errorf("%w: nats kv delete: %v", ErrUnavailable, err)
	}
	return true, nil
}

// isRevisionConflict reports whether err is JetStream rejecting a
// compare-and-swap because the expected revision went stale. Only that
// rejection may be read as a protocol outcome; every other failure means the
// operation's result is unknown.
func isRevisionConflict(err error) bool {
	if errors.Is(err, nats.ErrKeyExists) {
		return true
	}
	var apiErr *nats.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == nats.JSErrCodeStreamWrongLastSequence
}
