// Package store defines the two atomic primitives the lock protocol requires
// from a backing key-value store, together with concrete adapters for Redis,
// etcd, NATS JetStream, GORM-managed SQL databases and local memory. Every
// adapter must execute both primitives as a single indivisible operation
// against its backend; a read-then-write emulation would open a window for a
// second holder.
package store
