package store

import (
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"
)

// membership binds an entity to the collection that owns it. All fields
// except the counters are guarded by the collection lock.
type membership struct {
	id       uint64
	priority int
	kind     Kind
	entity   Entity
	strategy StorageStrategy
	size     int64

	state         State
	updating      bool
	expiring      bool
	lockID        uint64
	prevLockID    uint64
	lockPersisted bool
	txID          uuid.UUID
	// seen is set once the entity was available for the first time.
	seen      bool
	expiresAt time.Time

	refCount int
	// references whose add is committing
	pendingRefs int
	target      handle

	persisted bool
	cacheSlot bool
	data      []byte

	// approximate heuristics, not persisted
	backouts    atomic.Uint32
	unlocks     atomic.Uint32
	redelivered atomic.Uint32
}

// less orders by priority, highest first, and then by presentation order.
func less(a, b *membership) bool {
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.id < b.id
}

func (m *membership) expired(now time.Time) bool {
	return !m.expiresAt.IsZero() && !now.Before(m.expiresAt)
}

// available returns whether the entity may be returned by cursors and locks.
func (m *membership) available(now time.Time) bool {
	if m.state != StateAvailable || m.expiring {
		return false
	}
	if m.entity.CanExpireSilently() && m.expired(now) {
		return false
	}
	return true
}

func (m *membership) inTransaction() bool {
	return m.txID != uuid.Nil
}
