package store

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// etcdClient is the slice of the etcd client the store uses.
type etcdClient interface {
	clientv3.KV
	clientv3.Lease
}

// Etcd implements Store using an etcd cluster. Create-if-absent is a
// transaction guarded on the key's create revision with a lease carrying the
// TTL; compare-and-delete is a transaction guarded on the key's value. Etcd
// leases tick in whole seconds, so sub-second TTLs round up to one second.
type Etcd struct {
	client etcdClient
}

// NewEtcd returns an etcd store using the provided client.
func NewEtcd(client *clientv3.Client) *Etcd {
	return &Etcd{client: client}
}

// SetIfAbsent implements Store.SetIfAbsent.
func (e *Etcd) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 || secs == 0 {
		secs++
	}
	lease, err := e.client.Grant(ctx, secs)
	if err != nil {
		return false, fmt.Errorf("%w: etcd lease grant: %v", ErrUnavailable, err)
	}
	resp, err := e.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, value, clientv3.WithLease(lease.ID))).
		Commit()
	if err != nil {
		// Nothing was put under the lease; don't let it linger until TTL.
		_, _ = e.client.Revoke(ctx, lease.ID)
		return false, fmt.Errorf("%w: etcd txn: %v", ErrUnavailable, err)
	}
	if !resp.Succeeded {
		// The key exists; the lease would otherwise linger until it expires.
		_, _ = e.client.Revoke(ctx, lease.ID)
		return false, nil
	}
	return true, nil
}

// DeleteIfEquals implements Store.DeleteIfEquals. A missing key fails the
// value comparison, so a stale delete is a no-op.
func (e *Etcd) DeleteIfEquals(ctx context.Context, key, value string) (bool, error) {
	resp, err := e.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", value)).
		Then(clientv3.OpDelete(key)).
		Commit()
	if err != nil {
		return false, fmt.Errorf("%w: etcd txn: %v", ErrUnavailable, err)
	}
	return resp.Succeeded, nil
}
