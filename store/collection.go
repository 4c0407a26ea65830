package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/google/btree"

	"github.com/safing/itemstore/transaction"
)

// collection holds the children of a stream, or the item streams of the
// store. It owns the memberships of its children.
type collection struct {
	store *Store
	// owner is the stream this collection belongs to, nil for the root.
	owner   Entity
	ownerID uint64
	accepts []Kind

	lock     sync.Mutex
	members  map[uint64]*membership
	tree     *btree.BTreeG[*membership]
	cursors  map[*Cursor]struct{}
	detached bool

	stats       Statistics
	addingBytes int64
	countMark   watermark
	bytesMark   watermark
	maxCount    int64
	maxBytes    int64
}

func newCollection(s *Store, owner Entity, ownerID uint64, accepts ...Kind) *collection {
	return &collection{
		store:   s,
		owner:   owner,
		ownerID: ownerID,
		accepts: accepts,
		members: make(map[uint64]*membership),
		tree:    btree.NewG[*membership](16, less),
		cursors: make(map[*Cursor]struct{}),
	}
}

func newChildCollection(s *Store, owner Entity, ownerID uint64, kind Kind) *collection {
	switch kind {
	case KindItemStream:
		return newCollection(s, owner, ownerID, KindItem, KindItemStream, KindReferenceStream)
	case KindReferenceStream:
		return newCollection(s, owner, ownerID, KindItemReference)
	default:
		return nil
	}
}

func (c *collection) accept(kind Kind) bool {
	for _, k := range c.accepts {
		if k == kind {
			return true
		}
	}
	return false
}

// parent returns the collection holding the owner of this collection.
func (c *collection) parent() *collection {
	if c.owner == nil {
		return nil
	}
	return c.owner.base().handle().owner
}

func entitySize(e Entity) int64 {
	if size := e.InMemorySize(); size > 0 {
		return int64(size)
	}
	data, err := e.PersistentData()
	if err != nil {
		return 0
	}
	return int64(len(data))
}

// add presents the child to the collection under the transaction.
func (c *collection) add(child Entity, kind Kind, lockID uint64, tx transaction.Transaction) error {
	switch {
	case child == nil:
		return fmt.Errorf("%w: no entity", ErrInvalidAddOperation)
	case tx == nil:
		return fmt.Errorf("%w: no transaction", ErrInvalidAddOperation)
	case child.Kind() != kind || !c.accept(kind):
		return fmt.Errorf("%w: cannot add %s here", ErrInvalidAddOperation, child.Kind())
	case lockID == DeliveryDelayLockID:
		return ErrInvalidLockID
	}
	s := c.store
	if s.closed.IsSet() {
		return ErrClosed
	}

	var target handle
	if kind == KindItemReference {
		var err error
		target, err = c.referenceTarget(child)
		if err != nil {
			return err
		}
	}

	m := &membership{
		priority: clampPriority(child.Priority()),
		kind:     kind,
		entity:   child,
		strategy: child.StorageStrategy(),
		size:     entitySize(child),
		state:    StateAdding,
		lockID:   Unlocked,
		txID:     tx.ID(),
		target:   target,
	}

	b := child.base()
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.h.owner != nil {
		return fmt.Errorf("%w: entity is already in store", ErrInvalidAddOperation)
	}

	id, err := s.ids.nextID()
	if err != nil {
		return err
	}
	m.id = id

	if m.strategy == StoreNever {
		if !s.reserveCacheSlot() {
			return ErrOutOfCacheSpace
		}
		m.cacheSlot = true
	}

	var children *collection
	if kind == KindItemStream || kind == KindReferenceStream {
		children = newChildCollection(s, child, id, kind)
	}

	c.lock.Lock()
	err = c.checkCapacity(m)
	if err == nil {
		c.insert(m)
	}
	c.lock.Unlock()
	if err != nil {
		if m.cacheSlot {
			s.releaseCacheSlot()
		}
		return err
	}

	b.h = handle{owner: c, id: id}
	b.children = children
	if children != nil {
		s.registerCollection(children)
	}

	op := &operation{coll: c, m: m, entity: child, lockID: lockID, target: target}
	if err := s.seq.join(tx, c, m.priority, roleAdder, op); err != nil {
		c.lock.Lock()
		c.destroy(m)
		c.lock.Unlock()

		b.h = handle{}
		b.children = nil
		if children != nil {
			s.unregisterCollection(children)
		}
		if m.cacheSlot {
			s.releaseCacheSlot()
		}
		return err
	}
	return nil
}

func (c *collection) checkCapacity(m *membership) error {
	switch {
	case c.detached:
		return fmt.Errorf("%w: stream is not in store", ErrInvalidAddOperation)
	case c.maxCount > 0 && c.stats.Total+1 > c.maxCount:
		return fmt.Errorf("%w: count limit of %d reached", ErrStreamIsFull, c.maxCount)
	case c.maxBytes > 0 && c.stats.TotalBytes+m.size > c.maxBytes:
		return fmt.Errorf("%w: size limit of %d bytes reached", ErrStreamIsFull, c.maxBytes)
	}
	return nil
}

// referenceTarget checks that the referred item of a reference is in the
// item stream holding this reference stream.
func (c *collection) referenceTarget(child Entity) (handle, error) {
	holder, ok := child.(referenceHolder)
	if !ok {
		return handle{}, fmt.Errorf("%w: not an item reference", ErrInvalidAddOperation)
	}
	ref := holder.reference()
	ref.mu.Lock()
	referred := ref.referred
	ref.mu.Unlock()

	if referred == nil {
		return handle{}, fmt.Errorf("%w: reference has no referred item", ErrReferenceConsistencyViolation)
	}
	target := referred.base().handle()
	if target.owner == nil {
		return handle{}, fmt.Errorf("%w: referred item is not in store", ErrReferenceConsistencyViolation)
	}
	if stream := c.parent(); stream == nil || stream != target.owner {
		return handle{}, fmt.Errorf("%w: referred item is not in the owning item stream", ErrReferenceConsistencyViolation)
	}
	return target, nil
}

func (c *collection) insert(m *membership) {
	c.members[m.id] = m
	c.tree.ReplaceOrInsert(m)
	c.account(m, 1)
	c.store.memBytes.Add(m.size)
}

func (c *collection) destroy(m *membership) {
	if _, ok := c.members[m.id]; !ok {
		return
	}
	c.account(m, -1)
	delete(c.members, m.id)
	c.tree.Delete(m)
	c.store.memBytes.Add(-m.size)
	for cur := range c.cursors {
		delete(cur.pending, m.id)
		delete(cur.skipped, m.id)
	}
}

// madeAvailable offers m to all cursors that already passed it. Fresh
// memberships have never been available before.
func (c *collection) madeAvailable(m *membership, fresh bool) {
	for cur := range c.cursors {
		cur.offer(m, fresh)
	}
}

func (c *collection) lockMember(m *membership, lockID uint64) {
	c.account(m, -1)
	m.state = StateLocked
	m.lockID = lockID
	c.account(m, 1)

	entity := m.entity
	c.store.notifier.queue(entity.EventLocked)
}

func (c *collection) unlockMember(m *membership, countUnlock bool) {
	c.account(m, -1)
	m.state = StateAvailable
	m.lockID = Unlocked
	m.lockPersisted = false
	c.account(m, 1)
	if countUnlock {
		m.unlocks.Add(1)
	}

	fresh := !m.seen
	m.seen = true
	c.madeAvailable(m, fresh)

	entity := m.entity
	c.store.notifier.queue(entity.EventUnlocked)
}

// checkRemovable returns why m cannot be removed with the given lock id.
func (c *collection) checkRemovable(m *membership, lockID uint64) error {
	switch {
	case m.state == StateAdding || m.state == StateRemoving || m.inTransaction():
		return fmt.Errorf("%w: entity %d is owned by another transaction", ErrProtocolViolation, m.id)
	case m.state == StateLocked && m.lockID != lockID:
		return fmt.Errorf("%w: entity %d is locked", ErrProtocolViolation, m.id)
	case m.state == StateAvailable && lockID != Unlocked:
		return fmt.Errorf("%w: entity %d is not locked with %d", ErrProtocolViolation, m.id, lockID)
	case m.refCount > 0 || m.pendingRefs > 0:
		return fmt.Errorf("%w: item %d is still referenced %d times", ErrReferenceConsistencyViolation, m.id, m.refCount+m.pendingRefs)
	}
	if children := c.childrenOf(m); children != nil && !children.empty() {
		return fmt.Errorf("%w: stream %d", ErrStreamNotEmpty, m.id)
	}
	return nil
}

func (c *collection) childrenOf(m *membership) *collection {
	if m.kind != KindItemStream && m.kind != KindReferenceStream {
		return nil
	}
	return c.store.collectionOf(m.id)
}

func (c *collection) empty() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.stats.Total == 0
}

func (c *collection) markRemoving(m *membership, txID uuid.UUID) {
	c.account(m, -1)
	if m.state == StateLocked {
		m.prevLockID = m.lockID
	}
	m.state = StateRemoving
	m.txID = txID
	c.account(m, 1)
}

// restore returns a removing membership to its previous state and reports
// whether it became available.
func (c *collection) restore(m *membership) bool {
	c.account(m, -1)
	m.txID = uuid.Nil
	m.expiring = false
	available := m.prevLockID == Unlocked
	if available {
		m.state = StateAvailable
		m.lockID = Unlocked
	} else {
		m.state = StateLocked
		m.lockID = m.prevLockID
	}
	m.prevLockID = Unlocked
	c.account(m, 1)

	if available {
		fresh := !m.seen
		m.seen = true
		c.madeAvailable(m, fresh)
	}
	return available
}

func (c *collection) remove(id uint64, tx transaction.Transaction, lockID uint64, get bool) error {
	c.lock.Lock()
	m, ok := c.members[id]
	if !ok {
		c.lock.Unlock()
		return ErrNotInStore
	}
	if err := c.checkRemovable(m, lockID); err != nil {
		c.lock.Unlock()
		return err
	}
	c.markRemoving(m, tx.ID())
	c.lock.Unlock()

	return c.joinRemover(m, tx, get || lockID != Unlocked, false)
}

func (c *collection) joinRemover(m *membership, tx transaction.Transaction, get, expire bool) error {
	op := &operation{coll: c, m: m, entity: m.entity, get: get, expire: expire, target: m.target}
	if err := c.store.seq.join(tx, c, m.priority, roleRemover, op); err != nil {
		c.lock.Lock()
		c.restore(m)
		c.lock.Unlock()
		return err
	}
	return nil
}

func (c *collection) update(id uint64, tx transaction.Transaction) error {
	c.lock.Lock()
	m, ok := c.members[id]
	if !ok {
		c.lock.Unlock()
		return ErrNotInStore
	}
	switch {
	case m.entity.IsPersistentDataNeverUpdated():
		c.lock.Unlock()
		return ErrUpdateNotAllowed
	case m.state != StateAvailable && m.state != StateLocked, m.inTransaction(), m.updating:
		c.lock.Unlock()
		return fmt.Errorf("%w: entity %d is owned by another transaction", ErrProtocolViolation, m.id)
	}
	c.account(m, -1)
	m.updating = true
	m.txID = tx.ID()
	c.account(m, 1)
	c.lock.Unlock()

	op := &operation{coll: c, m: m, entity: m.entity}
	if err := c.store.seq.join(tx, c, m.priority, roleUpdater, op); err != nil {
		c.lock.Lock()
		c.endUpdate(m)
		c.lock.Unlock()
		return err
	}
	return nil
}

func (c *collection) endUpdate(m *membership) {
	c.account(m, -1)
	m.updating = false
	m.txID = uuid.Nil
	c.account(m, 1)
}

func (c *collection) findByID(id uint64) Entity {
	c.lock.Lock()
	defer c.lock.Unlock()

	m, ok := c.members[id]
	if !ok {
		return nil
	}
	return m.entity
}

// first returns the first available membership of the kind that matches
// and satisfies accept.
func (c *collection) first(kind Kind, f Filter, accept func(m *membership) bool) (found *membership, err error) {
	now := time.Now()
	c.tree.Ascend(func(m *membership) bool {
		if m.kind != kind || !m.available(now) || (accept != nil && !accept(m)) {
			return true
		}
		var ok bool
		ok, err = matches(f, m.entity)
		if err != nil {
			return false
		}
		if ok {
			found = m
			return false
		}
		return true
	})
	return found, err
}

func (c *collection) findFirst(kind Kind, f Filter) (Entity, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	m, err := c.first(kind, f, nil)
	if err != nil || m == nil {
		return nil, err
	}
	return m.entity, nil
}

func (c *collection) findOldest(kind Kind) Entity {
	c.lock.Lock()
	defer c.lock.Unlock()

	var oldest *membership
	for _, m := range c.members {
		if m.kind == kind && m.state != StateAdding && (oldest == nil || m.id < oldest.id) {
			oldest = m
		}
	}
	if oldest == nil {
		return nil
	}
	return oldest.entity
}

func (c *collection) removeFirst(kind Kind, f Filter, tx transaction.Transaction) (Entity, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: no transaction", ErrProtocolViolation)
	}

	c.lock.Lock()
	m, err := c.first(kind, f, func(m *membership) bool {
		return c.checkRemovable(m, Unlocked) == nil
	})
	if err != nil || m == nil {
		c.lock.Unlock()
		return nil, err
	}
	c.markRemoving(m, tx.ID())
	c.lock.Unlock()

	if err := c.joinRemover(m, tx, true, false); err != nil {
		return nil, err
	}
	return m.entity, nil
}

func (c *collection) detach() {
	c.lock.Lock()
	c.detached = true
	c.lock.Unlock()

	c.store.unregisterCollection(c)
}
