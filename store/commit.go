package store

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"

	"github.com/safing/itemstore/log"
	"github.com/safing/itemstore/transaction"
)

// precommitEvent calls a precommit callback with the entity lock held.
func precommitEvent(e Entity, fn func() error) error {
	b := e.base()
	b.mu.Lock()
	defer b.mu.Unlock()

	return fn()
}

func (s *Store) precommitAdd(op *operation, tx transaction.Transaction) error {
	if err := precommitEvent(op.entity, func() error { return op.entity.EventPrecommitAdd(tx) }); err != nil {
		return err
	}

	if op.m.kind == KindItemReference {
		if err := pinTarget(op); err != nil {
			return err
		}
	}

	if op.m.strategy == StoreAlways {
		if err := s.persist(op.coll, op.m, true); err != nil {
			return err
		}
		op.written = true
	}
	return nil
}

// pinTarget keeps the referred item from being removed until the add of
// the reference commits or rolls back.
func pinTarget(op *operation) error {
	if op.pinned {
		return nil
	}
	target := op.target
	if target.owner == nil {
		return fmt.Errorf("%w: reference has no referred item", ErrReferenceConsistencyViolation)
	}
	target.owner.lock.Lock()
	defer target.owner.lock.Unlock()

	m, ok := target.owner.members[target.id]
	if !ok || m.state == StateRemoving {
		return fmt.Errorf("%w: referred item %d left the store", ErrReferenceConsistencyViolation, target.id)
	}
	m.pendingRefs++
	op.pinned = true
	return nil
}

// unpinTarget releases the pin of pinTarget. If committed is set, the pin
// becomes a reference.
func unpinTarget(op *operation, committed bool) {
	target := op.target
	if !op.pinned || target.owner == nil {
		return
	}
	op.pinned = false

	target.owner.lock.Lock()
	defer target.owner.lock.Unlock()

	m, ok := target.owner.members[target.id]
	if !ok {
		return
	}
	if m.pendingRefs > 0 {
		m.pendingRefs--
	}
	if committed {
		m.refCount++
	}
}

func (s *Store) commitAdd(op *operation, tx transaction.Transaction) {
	c, m, entity := op.coll, op.m, op.entity

	var delay time.Duration
	if m.kind == KindItem || m.kind == KindItemReference {
		delay = entity.DeliveryDelay()
	}
	maxTime := entity.MaximumTimeInStore()
	now := time.Now()

	c.lock.Lock()
	c.account(m, -1)
	m.txID = uuid.Nil
	if maxTime > 0 {
		m.expiresAt = now.Add(maxTime)
	}
	available, delayed := false, false
	switch {
	case op.lockID != Unlocked:
		m.state = StateLocked
		m.lockID = op.lockID
	case delay > 0:
		m.state = StateLocked
		m.lockID = DeliveryDelayLockID
		delayed = true
	default:
		m.state = StateAvailable
		available = true
	}
	c.account(m, 1)
	if available {
		m.seen = true
		c.madeAvailable(m, true)
	}
	c.checkWatermarks()
	c.lock.Unlock()

	if delayed {
		s.scheduleDelivery(c, m.id, delay)
	}
	if m.kind == KindItemReference {
		if op.pinned {
			unpinTarget(op, true)
		} else {
			s.adjustReferenceCount(op.target, 1)
		}
	}

	switch m.strategy {
	case StoreEventually:
		s.persistAsync(c, m)
	case StoreMaybe:
		if s.overSpillThreshold() {
			s.persistAsync(c, m)
		}
	}

	s.notifier.queue(func() { entity.EventPostCommitAdd(tx) })
	s.publish(EventAdded, entity, m.id)
	s.metrics.added.Inc()
}

func (s *Store) rollbackAdd(op *operation, tx transaction.Transaction) {
	c, m, entity := op.coll, op.m, op.entity

	c.lock.Lock()
	c.destroy(m)
	c.checkWatermarks()
	c.lock.Unlock()

	s.release(entity, c, m)
	if m.kind == KindItemReference {
		unpinTarget(op, false)
	}
	if op.written {
		if err := s.backend.Delete(m.id, false); err != nil {
			log.Warningf("store: failed to delete rolled back entity %d: %s", m.id, err)
		}
	}

	s.notifier.queue(func() { entity.EventPostRollbackAdd(tx) })
	s.metrics.rolledBack.Inc()
}

func (s *Store) precommitRemove(op *operation, tx transaction.Transaction) error {
	if err := precommitEvent(op.entity, func() error { return op.entity.EventPrecommitRemove(tx) }); err != nil {
		return err
	}

	op.coll.lock.Lock()
	refs := op.m.refCount + op.m.pendingRefs
	op.coll.lock.Unlock()
	if refs > 0 {
		return fmt.Errorf("%w: item %d is still referenced %d times", ErrReferenceConsistencyViolation, op.m.id, refs)
	}

	if children := op.coll.childrenOf(op.m); children != nil && !children.empty() {
		return fmt.Errorf("%w: stream %d", ErrStreamNotEmpty, op.m.id)
	}
	return nil
}

func (s *Store) commitRemove(op *operation, tx transaction.Transaction) {
	c, m, entity := op.coll, op.m, op.entity

	c.lock.Lock()
	persisted := m.persisted
	c.destroy(m)
	c.checkWatermarks()
	c.lock.Unlock()

	s.release(entity, c, m)
	if m.kind == KindItemReference {
		s.adjustReferenceCount(op.target, -1)
	}
	if persisted {
		if err := s.backend.Delete(m.id, m.strategy == StoreAlways); err != nil {
			log.Warningf("store: failed to delete entity %d from persistence: %s", m.id, err)
		}
		s.dataCache.Remove(m.id)
	}

	s.notifier.queue(func() { entity.EventPostCommitRemove(tx) })
	if op.expire {
		if listener, ok := entity.(ExpiryListener); ok {
			s.notifier.queue(listener.EventExpired)
		}
		s.metrics.expired.Inc()
	}
	s.publish(EventRemoved, entity, m.id)
	s.metrics.removed.Inc()
}

func (s *Store) rollbackRemove(op *operation, tx transaction.Transaction) {
	c, m, entity := op.coll, op.m, op.entity

	c.lock.Lock()
	if op.get {
		m.backouts.Add(1)
	}
	c.restore(m)
	c.lock.Unlock()

	s.notifier.queue(func() { entity.EventPostRollbackRemove(tx) })
	s.metrics.rolledBack.Inc()
}

func (s *Store) precommitUpdate(op *operation) error {
	c, m := op.coll, op.m

	c.lock.Lock()
	m.data = nil
	c.lock.Unlock()

	if m.strategy == StoreAlways {
		if err := s.persist(c, m, true); err != nil {
			return err
		}
		op.written = true
	}
	return nil
}

func (s *Store) commitUpdate(op *operation) {
	c, m := op.coll, op.m

	c.lock.Lock()
	c.endUpdate(m)
	m.data = nil
	persisted := m.persisted
	c.lock.Unlock()
	s.dataCache.Remove(m.id)

	switch m.strategy {
	case StoreEventually:
		s.persistAsync(c, m)
	case StoreMaybe:
		if persisted || s.overSpillThreshold() {
			s.persistAsync(c, m)
		}
	}

	s.publish(EventUpdated, op.entity, m.id)
}

func (s *Store) rollbackUpdate(op *operation) {
	op.coll.lock.Lock()
	defer op.coll.lock.Unlock()

	op.coll.endUpdate(op.m)
}

// release clears the membership handle of a destroyed entity.
func (s *Store) release(e Entity, c *collection, m *membership) {
	b := e.base()
	b.mu.Lock()
	var children *collection
	if b.h.owner == c && b.h.id == m.id {
		b.h = handle{}
		children = b.children
		b.children = nil
	}
	b.mu.Unlock()

	if children != nil {
		children.detach()
	}
	if m.cacheSlot {
		s.releaseCacheSlot()
	}
}

func (s *Store) adjustReferenceCount(target handle, delta int) {
	if target.owner == nil {
		return
	}
	target.owner.lock.Lock()
	defer target.owner.lock.Unlock()

	if m, ok := target.owner.members[target.id]; ok {
		m.refCount += delta
		if m.refCount < 0 {
			m.refCount = 0
		}
	}
}
