package store

import (
	"fmt"
	"sync"

	"github.com/gofrs/uuid"

	"github.com/safing/itemstore/transaction"
)

type role uint8

const (
	roleAdder role = iota
	roleRemover
	roleUpdater
)

func (r role) String() string {
	switch r {
	case roleAdder:
		return "adder"
	case roleRemover:
		return "remover"
	case roleUpdater:
		return "updater"
	default:
		return "unknown"
	}
}

// operation is a pending add, remove or update of one membership.
type operation struct {
	coll   *collection
	m      *membership
	entity Entity

	// add: lock to apply on commit
	lockID uint64
	// remove: the removal is a destructive get
	get bool
	// remove: the removal was triggered by expiry
	expire bool
	// references: the referred item
	target handle
	// references: the referred item is pinned until the add completes
	pinned bool
	// written synchronously during precommit
	written bool
}

type groupKey struct {
	txID     uuid.UUID
	coll     *collection
	priority int
	role     role
}

// group collects the operations of one transaction on one collection and
// priority. Groups are enlisted with the transaction when they are
// created, and fire their operations in the order they joined.
type group struct {
	key   groupKey
	store *Store

	lock   sync.Mutex
	sealed bool
	ops    []*operation
}

type sequencer struct {
	store *Store

	lock   sync.Mutex
	groups map[groupKey]*group
}

func newSequencer(s *Store) *sequencer {
	return &sequencer{
		store:  s,
		groups: make(map[groupKey]*group),
	}
}

// join adds the operation to the group of the transaction, creating and
// enlisting the group if needed.
func (seq *sequencer) join(tx transaction.Transaction, c *collection, priority int, r role, op *operation) error {
	key := groupKey{
		txID:     tx.ID(),
		coll:     c,
		priority: priority,
		role:     r,
	}

	seq.lock.Lock()
	defer seq.lock.Unlock()

	g, ok := seq.groups[key]
	if !ok {
		g = &group{key: key, store: seq.store}
		if err := tx.Enlist(g); err != nil {
			return err
		}
		seq.groups[key] = g
	}

	g.lock.Lock()
	defer g.lock.Unlock()

	if g.sealed {
		return fmt.Errorf("%w: %s group of transaction %s is completing", transaction.ErrProtocol, r, key.txID)
	}
	g.ops = append(g.ops, op)
	return nil
}

func (seq *sequencer) forget(g *group) {
	seq.lock.Lock()
	defer seq.lock.Unlock()

	if seq.groups[g.key] == g {
		delete(seq.groups, g.key)
	}
}

// seal stops the group from accepting operations and returns them.
func (g *group) seal() []*operation {
	g.store.seq.forget(g)

	g.lock.Lock()
	defer g.lock.Unlock()

	g.sealed = true
	return g.ops
}

// Precommit implements transaction.Callback.
func (g *group) Precommit(tx transaction.Transaction) error {
	for _, op := range g.seal() {
		var err error
		switch g.key.role {
		case roleAdder:
			err = g.store.precommitAdd(op, tx)
		case roleRemover:
			err = g.store.precommitRemove(op, tx)
		case roleUpdater:
			err = g.store.precommitUpdate(op)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Postcommit implements transaction.Callback.
func (g *group) Postcommit(tx transaction.Transaction) {
	for _, op := range g.seal() {
		switch g.key.role {
		case roleAdder:
			g.store.commitAdd(op, tx)
		case roleRemover:
			g.store.commitRemove(op, tx)
		case roleUpdater:
			g.store.commitUpdate(op)
		}
	}
}

// PostRollback implements transaction.Callback.
func (g *group) PostRollback(tx transaction.Transaction) {
	for _, op := range g.seal() {
		switch g.key.role {
		case roleAdder:
			g.store.rollbackAdd(op, tx)
		case roleRemover:
			g.store.rollbackRemove(op, tx)
		case roleUpdater:
			g.store.rollbackUpdate(op)
		}
	}
}
