package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/safing/itemstore/transaction"
)

// Entity is implemented by all storable objects. It cannot be implemented
// directly; embed one of Item, ItemStream, ReferenceStream or ItemReference
// and override the methods that need to differ from the defaults.
type Entity interface {
	// Kind returns the variant of the entity.
	Kind() Kind

	// Priority returns the priority between MinPriority and MaxPriority.
	Priority() int
	// MaximumTimeInStore returns how long the entity may stay in store
	// after it was committed. Zero means it never expires.
	MaximumTimeInStore() time.Duration
	// DeliveryDelay returns for how long the entity is held back after
	// commit before it becomes available.
	DeliveryDelay() time.Duration
	// StorageStrategy returns whether and when the entity is persisted.
	StorageStrategy() StorageStrategy
	// InMemorySize returns the approximate size of the entity in bytes. If
	// it is zero or less, the length of the persistent data is used.
	InMemorySize() int

	// PersistentData returns the serialized state of the entity.
	PersistentData() ([]byte, error)
	// Restore restores state produced by PersistentData. Nil data must be
	// accepted and restore nothing.
	Restore(data []byte) error

	// CanExpireSilently reports whether the entity may be hidden from
	// cursors as soon as its maximum time in store passed.
	CanExpireSilently() bool
	// DeferDataPersistence reports whether the persistent data may be
	// produced by the writer instead of at commit.
	DeferDataPersistence() bool
	// IsPersistentDataImmutable reports whether the persistent data never
	// changes, so that it is serialized only once.
	IsPersistentDataImmutable() bool
	// IsPersistentDataNeverUpdated reports whether updates are rejected.
	IsPersistentDataNeverUpdated() bool

	// EventPrecommitAdd is called before the add commits while the entity
	// lock is held. Returning an error rolls back the transaction.
	EventPrecommitAdd(tx transaction.Transaction) error
	// EventPrecommitRemove is the equivalent of EventPrecommitAdd for removals.
	EventPrecommitRemove(tx transaction.Transaction) error

	// The following callbacks are delivered asynchronously after the
	// state transition took place. No locks are held.
	EventPostCommitAdd(tx transaction.Transaction)
	EventPostCommitRemove(tx transaction.Transaction)
	EventPostRollbackAdd(tx transaction.Transaction)
	EventPostRollbackRemove(tx transaction.Transaction)
	EventLocked()
	EventUnlocked()

	base() *Base
}

// WatermarkListener may be implemented by item streams and reference
// streams to be notified of watermark crossings.
type WatermarkListener interface {
	EventWatermarkBreached(event WatermarkEvent)
}

// ExpiryListener may be implemented by items to be notified after they
// were removed because they expired.
type ExpiryListener interface {
	EventExpired()
}

type handle struct {
	owner *collection
	id    uint64
}

// Base provides the defaults and the store bookkeeping of all entities.
// Its zero value is ready to use.
type Base struct {
	mu sync.Mutex

	h        handle
	children *collection
}

func (b *Base) base() *Base {
	return b
}

func (b *Base) handle() handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.h
}

// Priority returns DefaultPriority.
func (b *Base) Priority() int {
	return DefaultPriority
}

// MaximumTimeInStore returns 0, ie. the entity never expires.
func (b *Base) MaximumTimeInStore() time.Duration {
	return 0
}

// DeliveryDelay returns 0.
func (b *Base) DeliveryDelay() time.Duration {
	return 0
}

// StorageStrategy returns StoreEventually.
func (b *Base) StorageStrategy() StorageStrategy {
	return StoreEventually
}

// InMemorySize returns 0, ie. the size is derived from the persistent data.
func (b *Base) InMemorySize() int {
	return 0
}

// PersistentData returns no data.
func (b *Base) PersistentData() ([]byte, error) {
	return nil, nil
}

// Restore does nothing.
func (b *Base) Restore(data []byte) error {
	return nil
}

// CanExpireSilently returns false.
func (b *Base) CanExpireSilently() bool { return false }

// DeferDataPersistence returns false.
func (b *Base) DeferDataPersistence() bool { return false }

// IsPersistentDataImmutable returns false.
func (b *Base) IsPersistentDataImmutable() bool { return false }

// IsPersistentDataNeverUpdated returns false.
func (b *Base) IsPersistentDataNeverUpdated() bool { return false }

// EventPrecommitAdd does nothing.
func (b *Base) EventPrecommitAdd(tx transaction.Transaction) error { return nil }

// EventPrecommitRemove does nothing.
func (b *Base) EventPrecommitRemove(tx transaction.Transaction) error { return nil }

// EventPostCommitAdd does nothing.
func (b *Base) EventPostCommitAdd(tx transaction.Transaction) {}

// EventPostCommitRemove does nothing.
func (b *Base) EventPostCommitRemove(tx transaction.Transaction) {}

// EventPostRollbackAdd does nothing.
func (b *Base) EventPostRollbackAdd(tx transaction.Transaction) {}

// EventPostRollbackRemove does nothing.
func (b *Base) EventPostRollbackRemove(tx transaction.Transaction) {}

// EventLocked does nothing.
func (b *Base) EventLocked() {}

// EventUnlocked does nothing.
func (b *Base) EventUnlocked() {}

// withMember runs fn with the collection lock held.
func (b *Base) withMember(fn func(c *collection, m *membership) error) error {
	h := b.handle()
	if h.owner == nil {
		return ErrNotInStore
	}

	h.owner.lock.Lock()
	defer h.owner.lock.Unlock()

	m, ok := h.owner.members[h.id]
	if !ok {
		return ErrNotInStore
	}
	return fn(h.owner, m)
}

// IsInStore returns whether the entity is a member of a collection.
func (b *Base) IsInStore() bool {
	return b.handle().owner != nil
}

// ID returns the store unique id of the entity. A new id is assigned every
// time the entity is added.
func (b *Base) ID() (uint64, error) {
	h := b.handle()
	if h.owner == nil {
		return 0, ErrNotInStore
	}
	return h.id, nil
}

// State returns the lifecycle state of the entity.
func (b *Base) State() (state State, err error) {
	err = b.withMember(func(c *collection, m *membership) error {
		state = m.state
		return nil
	})
	return
}

// LockID returns the id of the lock held on the entity, or Unlocked.
func (b *Base) LockID() (lockID uint64, err error) {
	err = b.withMember(func(c *collection, m *membership) error {
		if m.state == StateLocked || m.state == StateRemoving {
			lockID = m.lockID
		}
		return nil
	})
	return
}

// ExpiresAt returns when the entity expires. The zero time means never.
func (b *Base) ExpiresAt() (expires time.Time, err error) {
	err = b.withMember(func(c *collection, m *membership) error {
		expires = m.expiresAt
		return nil
	})
	return
}

// Parent returns the stream holding the entity. Item streams held by the
// store itself have no parent.
func (b *Base) Parent() (Entity, error) {
	h := b.handle()
	if h.owner == nil {
		return nil, ErrNotInStore
	}
	return h.owner.owner, nil
}

// BackoutCount returns how often a removal of the entity by a get was
// rolled back. The count is approximate and not persisted.
func (b *Base) BackoutCount() (count uint32, err error) {
	err = b.withMember(func(c *collection, m *membership) error {
		count = m.backouts.Load()
		return nil
	})
	return
}

// UnlockCount returns how often the entity was unlocked. The count is
// approximate and not persisted.
func (b *Base) UnlockCount() (count uint32, err error) {
	err = b.withMember(func(c *collection, m *membership) error {
		count = m.unlocks.Load()
		return nil
	})
	return
}

// RedeliveredCount returns the redelivered count of the entity.
func (b *Base) RedeliveredCount() (count uint32, err error) {
	err = b.withMember(func(c *collection, m *membership) error {
		count = m.redelivered.Load()
		return nil
	})
	return
}

// IncrementRedeliveredCount increments the redelivered count and persists
// it in the background.
func (b *Base) IncrementRedeliveredCount() (uint32, error) {
	var (
		count     uint32
		persisted bool
		store     *Store
		id        uint64
	)
	err := b.withMember(func(c *collection, m *membership) error {
		count = m.redelivered.Add(1)
		persisted = m.persisted
		store = c.store
		id = m.id
		return nil
	})
	if err != nil {
		return 0, err
	}

	if persisted {
		if err := store.backend.PersistRedeliveredCount(id, count); err != nil {
			return count, err
		}
	}
	return count, nil
}

// LockIfAvailable locks the entity with the given lock id if it is
// available. It never blocks and returns false if the entity is not
// available.
func (b *Base) LockIfAvailable(lockID uint64) (bool, error) {
	if lockID == Unlocked || lockID == DeliveryDelayLockID {
		return false, ErrInvalidLockID
	}

	var locked bool
	err := b.withMember(func(c *collection, m *membership) error {
		if !m.available(time.Now()) {
			return nil
		}
		c.lockMember(m, lockID)
		locked = true
		return nil
	})
	return locked, err
}

// Unlock unlocks the entity if it is locked with the given lock id.
func (b *Base) Unlock(lockID uint64) error {
	if lockID == Unlocked || lockID == DeliveryDelayLockID {
		return ErrInvalidLockID
	}

	var (
		store         *Store
		id            uint64
		lockPersisted bool
	)
	err := b.withMember(func(c *collection, m *membership) error {
		if m.state != StateLocked || m.lockID != lockID {
			return fmt.Errorf("%w: entity %d is not locked with %d", ErrProtocolViolation, m.id, lockID)
		}
		lockPersisted = m.lockPersisted
		store = c.store
		id = m.id
		c.unlockMember(m, true)
		return nil
	})
	if err != nil {
		return err
	}

	if lockPersisted {
		return store.backend.PersistLock(id, Unlocked)
	}
	return nil
}

// PersistLock durably records the lock currently held on the entity, so
// that it survives a restart.
func (b *Base) PersistLock() error {
	var (
		store  *Store
		id     uint64
		lockID uint64
	)
	err := b.withMember(func(c *collection, m *membership) error {
		if m.state != StateLocked || m.lockID == DeliveryDelayLockID {
			return fmt.Errorf("%w: entity %d is not locked", ErrProtocolViolation, m.id)
		}
		m.lockPersisted = true
		store = c.store
		id = m.id
		lockID = m.lockID
		return nil
	})
	if err != nil {
		return err
	}
	return store.backend.PersistLock(id, lockID)
}

// Remove requests the removal of the entity under the given transaction.
// If the entity is locked, lockID must match the lock. The entity is
// removed when the transaction commits.
func (b *Base) Remove(tx transaction.Transaction, lockID uint64) error {
	if tx == nil {
		return fmt.Errorf("%w: no transaction", ErrProtocolViolation)
	}
	if lockID == DeliveryDelayLockID {
		return ErrInvalidLockID
	}
	h := b.handle()
	if h.owner == nil {
		return ErrNotInStore
	}
	return h.owner.remove(h.id, tx, lockID, false)
}

// RequestUpdate requests that the persistent data of the entity is
// written again when the transaction commits.
func (b *Base) RequestUpdate(tx transaction.Transaction) error {
	if tx == nil {
		return fmt.Errorf("%w: no transaction", ErrProtocolViolation)
	}
	h := b.handle()
	if h.owner == nil {
		return ErrNotInStore
	}
	return h.owner.update(h.id, tx)
}

// SerializedData returns the persisted form of the entity data. While the
// persisted representation is stable it is read from persistence,
// otherwise it is produced from the entity.
func (b *Base) SerializedData() ([]byte, error) {
	h := b.handle()
	if h.owner == nil {
		return nil, ErrNotInStore
	}
	return h.owner.store.serializedData(h.owner, h.id)
}
