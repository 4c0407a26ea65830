// Package persistence provides the storage contract of the item store and a
// write-behind manager that implements the backend operations the store
// relies on (reading persisted data, stability checks, lock and redelivery
// count persistence and the persisted ID space).
package persistence

import (
	"context"
)

// Storage is a key/value storage a Manager persists to.
type Storage interface {
	// Get returns the value stored at key or ErrNotFound.
	Get(key []byte) ([]byte, error)
	// Put stores the value at key.
	Put(key, value []byte) error
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(key []byte) error
	// Iterate calls fn for every key with the given prefix in key order.
	// The slices passed to fn are only valid during the call.
	Iterate(prefix []byte, fn func(key, value []byte) error) error

	ReadOnly() bool
	Maintain(ctx context.Context) error
	Shutdown() error
}

// Backend is what the item store requires from its persistence layer.
type Backend interface {
	// ReadData returns the persisted representation of the item with the given ID.
	ReadData(id uint64) ([]byte, error)
	// IsStable returns false while a write or delete of the item is in flight.
	IsStable(id uint64) bool
	// PersistLock records the lock id of the item. A lock id of 0 removes it.
	PersistLock(id, lockID uint64) error
	// PersistRedeliveredCount records the redelivered count of the item.
	PersistRedeliveredCount(id uint64, count uint32) error

	// Write persists the item. The encode function is called by the writer,
	// so it may run after Write returned unless wait is set.
	Write(id uint64, encode func() ([]byte, error), wait bool) error
	// Delete removes the item together with its lock and redelivered count.
	Delete(id uint64, wait bool) error
	// ReserveIDs reserves n IDs and returns the first one. Reserved ranges
	// never overlap, also across restarts.
	ReserveIDs(n uint64) (uint64, error)
	// Recover calls fn for every persisted item in ID order.
	Recover(fn func(rec *Record) error) error
	// Close waits for pending writes and shuts down the storage.
	Close() error
}

// Record is a persisted item as returned by Recover.
type Record struct {
	ID          uint64
	Data        []byte
	LockID      uint64
	Redelivered uint32
}
