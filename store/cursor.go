package store

import (
	"time"
)

// Cursor walks the children of one kind of a collection in priority and
// presentation order.
//
// Entities that become available behind the cursor (eg. because they were
// unlocked, or because a higher priority entity was committed) are
// remembered and returned before the cursor moves further ahead, highest
// priority first. A locking cursor locks every entity it returns with its
// lock id.
type Cursor struct {
	coll    *collection
	kind    Kind
	filter  Filter
	locking bool
	lockID  uint64

	// guarded by the collection lock
	allowUnavailable bool
	started          bool
	posPriority      int
	posID            uint64
	pending          map[uint64]*membership
	skipped          map[uint64]struct{}
	finished         bool
}

func (c *collection) newCursor(kind Kind, f Filter, locking bool) *Cursor {
	cur := &Cursor{
		coll:    c,
		kind:    kind,
		filter:  f,
		locking: locking,
		pending: make(map[uint64]*membership),
		skipped: make(map[uint64]struct{}),
	}
	if locking {
		cur.lockID = c.store.nextLockID()
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	c.cursors[cur] = struct{}{}
	return cur
}

// LockID returns the lock id of a locking cursor, or Unlocked.
func (cur *Cursor) LockID() uint64 {
	return cur.lockID
}

// SetAllowUnavailable makes a non-locking cursor also return entities that
// are locked or being removed. It has no effect on locking cursors.
func (cur *Cursor) SetAllowUnavailable(allow bool) {
	cur.coll.lock.Lock()
	defer cur.coll.lock.Unlock()

	if !cur.locking {
		cur.allowUnavailable = allow
	}
}

// Finish releases the cursor. Locks taken by the cursor are kept.
func (cur *Cursor) Finish() {
	cur.coll.lock.Lock()
	defer cur.coll.lock.Unlock()

	cur.finished = true
	cur.pending = nil
	cur.skipped = nil
	delete(cur.coll.cursors, cur)
}

// behind reports whether m is at or before the cursor position.
func (cur *Cursor) behind(m *membership) bool {
	if !cur.started {
		return false
	}
	return m.priority > cur.posPriority ||
		(m.priority == cur.posPriority && m.id <= cur.posID)
}

// offer is called with the collection lock held when m became available.
func (cur *Cursor) offer(m *membership, fresh bool) {
	if m.kind != cur.kind || !cur.behind(m) {
		return
	}
	if _, skipped := cur.skipped[m.id]; cur.locking || fresh || skipped {
		cur.pending[m.id] = m
	}
}

func (cur *Cursor) visible(m *membership, now time.Time) bool {
	if m.available(now) {
		return true
	}
	return cur.allowUnavailable && m.state != StateAdding
}

// Next returns the next entity, or nil if none is reachable right now. The
// cursor stays valid and may be polled again.
func (cur *Cursor) Next() (Entity, error) {
	c := cur.coll
	c.lock.Lock()
	defer c.lock.Unlock()

	if cur.finished {
		return nil, ErrCursorFinished
	}
	now := time.Now()

	// Return entities that became available behind us first.
	for len(cur.pending) > 0 {
		var best *membership
		for _, m := range cur.pending {
			if best == nil || less(m, best) {
				best = m
			}
		}
		delete(cur.pending, best.id)

		if !cur.visible(best, now) {
			if !cur.locking {
				cur.skipped[best.id] = struct{}{}
			}
			continue
		}
		ok, err := matches(cur.filter, best.entity)
		if err != nil {
			cur.pending[best.id] = best
			return nil, err
		}
		if ok {
			return cur.take(best), nil
		}
	}

	// Continue after the current position.
	var (
		found *membership
		err   error
	)
	visit := func(m *membership) bool {
		if m.kind != cur.kind {
			cur.moveTo(m)
			return true
		}
		if !cur.visible(m, now) {
			if !cur.locking {
				cur.skipped[m.id] = struct{}{}
			}
			cur.moveTo(m)
			return true
		}
		var ok bool
		ok, err = matches(cur.filter, m.entity)
		if err != nil {
			return false
		}
		cur.moveTo(m)
		if ok {
			found = m
			return false
		}
		return true
	}
	if cur.started {
		c.tree.AscendGreaterOrEqual(&membership{priority: cur.posPriority, id: cur.posID + 1}, visit)
	} else {
		c.tree.Ascend(visit)
	}

	if err != nil || found == nil {
		return nil, err
	}
	return cur.take(found), nil
}

func (cur *Cursor) moveTo(m *membership) {
	cur.started = true
	cur.posPriority = m.priority
	cur.posID = m.id
}

func (cur *Cursor) take(m *membership) Entity {
	delete(cur.skipped, m.id)
	if cur.locking {
		cur.coll.lockMember(m, cur.lockID)
	}
	return m.entity
}
