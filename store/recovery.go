package store

import (
	"time"

	"github.com/safing/itemstore/log"
	"github.com/safing/itemstore/persistence"
)

// recoverEntities rebuilds the collections from the backend. Records are
// delivered in id order, so streams are restored before their children
// and items before the references pointing to them.
func (s *Store) recoverEntities() error {
	var (
		recovered int
		skipped   int
		maxID     uint64
		maxLockID uint64
	)

	err := s.backend.Recover(func(rec *persistence.Record) error {
		if rec.ID > maxID {
			maxID = rec.ID
		}
		if err := s.recoverRecord(rec); err != nil {
			log.Warningf("store: skipping persisted entity %d: %s", rec.ID, err)
			skipped++
			return nil
		}
		if rec.LockID != DeliveryDelayLockID && rec.LockID > maxLockID {
			maxLockID = rec.LockID
		}
		recovered++
		return nil
	})
	if err != nil {
		return err
	}

	s.ids.skipPast(maxID)
	for {
		current := s.lockIDs.Load()
		if current >= maxLockID || s.lockIDs.CompareAndSwap(current, maxLockID) {
			break
		}
	}

	if recovered > 0 || skipped > 0 {
		log.Infof("store: %s recovered %d entities, skipped %d", s.name, recovered, skipped)
	}
	return nil
}

func (s *Store) recoverRecord(rec *persistence.Record) error {
	hdr, data, err := decodeEnvelope(rec.Data)
	if err != nil {
		return err
	}
	entity, err := newEntity(hdr.TypeName)
	if err != nil {
		return err
	}
	if entity.Kind() != hdr.Kind {
		return ErrMalformedData
	}
	if err := entity.Restore(data); err != nil {
		return err
	}

	parent := s.collectionOf(hdr.OwnerID)
	if parent == nil || !parent.accept(hdr.Kind) {
		return ErrNotInStore
	}

	m := &membership{
		id:        rec.ID,
		priority:  clampPriority(hdr.Priority),
		kind:      hdr.Kind,
		entity:    entity,
		strategy:  entity.StorageStrategy(),
		size:      entitySize(entity),
		state:     StateAvailable,
		seen:      true,
		persisted: true,
	}
	if hdr.Expires != 0 {
		m.expiresAt = time.Unix(0, hdr.Expires)
	}
	// Delivery delays are not persisted, delayed entities are available right away.
	if rec.LockID != Unlocked && rec.LockID != DeliveryDelayLockID {
		m.state = StateLocked
		m.lockID = rec.LockID
		m.lockPersisted = true
	}
	m.redelivered.Store(rec.Redelivered)

	if hdr.Kind == KindItemReference {
		target := handle{owner: parent.parent(), id: hdr.ReferredID}
		if !targetInStore(target) {
			return ErrReferenceConsistencyViolation
		}
		m.target = target
		if holder, ok := entity.(referenceHolder); ok {
			holder.reference().setRecoveredReferred(hdr.ReferredID)
		}
	}

	b := entity.base()
	b.mu.Lock()
	b.h = handle{owner: parent, id: rec.ID}
	if hdr.Kind == KindItemStream || hdr.Kind == KindReferenceStream {
		b.children = newChildCollection(s, entity, rec.ID, hdr.Kind)
		s.registerCollection(b.children)
	}
	b.mu.Unlock()

	parent.lock.Lock()
	parent.insert(m)
	parent.lock.Unlock()

	if m.kind == KindItemReference {
		s.adjustReferenceCount(m.target, 1)
	}
	return nil
}

func targetInStore(target handle) bool {
	if target.owner == nil {
		return false
	}
	target.owner.lock.Lock()
	defer target.owner.lock.Unlock()

	m, ok := target.owner.members[target.id]
	return ok && m.state != StateRemoving
}
