package store

import (
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/safing/itemstore/log"
	"github.com/safing/itemstore/transaction"
)

// ExpireItems removes all items and item references of the store whose
// maximum time in store passed before now. It is meant to be called periodically by a scanner
// and returns the amount of removed items.
func (s *Store) ExpireItems(now time.Time) (int, error) {
	if s.closed.IsSet() {
		return 0, ErrClosed
	}

	var (
		total  int
		result *multierror.Error
	)
	for _, c := range s.registeredCollections() {
		n, err := c.expire(now)
		total += n
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return total, result.ErrorOrNil()
}

// expire removes the expired items of the collection under an internal transaction.
func (c *collection) expire(now time.Time) (int, error) {
	c.lock.Lock()
	var candidates []*membership
	for _, m := range c.members {
		if (m.kind == KindItem || m.kind == KindItemReference) && m.state == StateAvailable && !m.expiring &&
			!m.inTransaction() && m.refCount == 0 && m.pendingRefs == 0 && m.expired(now) {
			c.account(m, -1)
			m.expiring = true
			c.account(m, 1)
			candidates = append(candidates, m)
		}
	}
	c.lock.Unlock()

	if len(candidates) == 0 {
		return 0, nil
	}

	tx := transaction.NewLocal()
	var expired int
	for _, m := range candidates {
		c.lock.Lock()
		if c.members[m.id] != m {
			c.lock.Unlock()
			continue
		}
		if err := c.checkRemovable(m, Unlocked); err != nil {
			c.account(m, -1)
			m.expiring = false
			c.account(m, 1)
			c.lock.Unlock()
			continue
		}
		c.markRemoving(m, tx.ID())
		c.lock.Unlock()

		if err := c.joinRemover(m, tx, false, true); err != nil {
			log.Warningf("store: failed to expire entity %d: %s", m.id, err)
			continue
		}
		expired++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return expired, nil
}

// scheduleDelivery makes a delivery delayed entity available after delay.
func (s *Store) scheduleDelivery(c *collection, id uint64, delay time.Duration) {
	s.timersLock.Lock()
	defer s.timersLock.Unlock()

	if s.closed.IsSet() {
		return
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		s.deliver(c, id)
	})
}

func (s *Store) deliver(c *collection, id uint64) {
	s.timersLock.Lock()
	delete(s.timers, id)
	s.timersLock.Unlock()

	if s.closed.IsSet() {
		return
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	m, ok := c.members[id]
	if ok && m.state == StateLocked && m.lockID == DeliveryDelayLockID {
		c.unlockMember(m, false)
	}
}

func (s *Store) stopTimers() {
	s.timersLock.Lock()
	defer s.timersLock.Unlock()

	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
