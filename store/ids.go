package store

import (
	"sync"

	"github.com/safing/itemstore/persistence"
)

// idAllocator hands out ids from blocks reserved in persistence, so that
// ids are never reused, also across restarts.
type idAllocator struct {
	backend   persistence.Backend
	blockSize uint64

	lock  sync.Mutex
	next  uint64
	limit uint64
}

func (a *idAllocator) nextID() (uint64, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.next >= a.limit {
		first, err := a.backend.ReserveIDs(a.blockSize)
		if err != nil {
			return 0, err
		}
		if first < a.next {
			first = a.next
		}
		a.next = first
		a.limit = first + a.blockSize
	}

	id := a.next
	a.next++
	return id, nil
}

// skipPast makes sure that all further ids are greater than id.
func (a *idAllocator) skipPast(id uint64) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.next <= id {
		a.next = id + 1
		if a.limit < a.next {
			a.limit = a.next
		}
	}
}
