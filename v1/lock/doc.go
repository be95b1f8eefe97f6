// Package lock implements a named mutual-exclusion primitive coordinated
// through a shared key-value store, usable by processes that share nothing
// but that store. Every acquisition mints a unique token recorded as the
// lock's value; the token proves ownership and is required to release. Locks
// always carry a TTL so a crashed holder cannot wedge a resource, and waiting
// acquirers poll the store at a fixed interval rather than queueing, so no
// acquisition order is guaranteed among contenders.
package lock
