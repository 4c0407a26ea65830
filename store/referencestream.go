package store

import (
	"github.com/safing/itemstore/transaction"
)

// ReferenceStream is an ordered collection of item references. All
// references point to items of the item stream holding the reference stream.
type ReferenceStream struct {
	Base
}

// Kind returns KindReferenceStream.
func (rs *ReferenceStream) Kind() Kind {
	return KindReferenceStream
}

// StorageStrategy returns StoreAlways.
func (rs *ReferenceStream) StorageStrategy() StorageStrategy {
	return StoreAlways
}

func (rs *ReferenceStream) childCollection() (*collection, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.children == nil {
		return nil, ErrInvalidAddOperation
	}
	return rs.children, nil
}

// Add adds an item reference under the given transaction. The referred
// item must be in the item stream holding this reference stream.
func (rs *ReferenceStream) Add(ref Entity, lockID uint64, tx transaction.Transaction) error {
	c, err := rs.childCollection()
	if err != nil {
		return err
	}
	return c.add(ref, KindItemReference, lockID, tx)
}

// FindByID returns the reference with the given id, or nil.
func (rs *ReferenceStream) FindByID(id uint64) (Entity, error) {
	c, err := rs.childCollection()
	if err != nil {
		return nil, ErrNotInStore
	}
	return c.findByID(id), nil
}

// FindFirstMatching returns the first available reference that matches the filter.
func (rs *ReferenceStream) FindFirstMatching(f Filter) (Entity, error) {
	c, err := rs.childCollection()
	if err != nil {
		return nil, ErrNotInStore
	}
	return c.findFirst(KindItemReference, f)
}

// FindOldest returns the reference that was presented first.
func (rs *ReferenceStream) FindOldest() (Entity, error) {
	c, err := rs.childCollection()
	if err != nil {
		return nil, ErrNotInStore
	}
	return c.findOldest(KindItemReference), nil
}

// RemoveFirstMatching removes the first available reference that matches
// the filter under the given transaction and returns it, or nil.
func (rs *ReferenceStream) RemoveFirstMatching(f Filter, tx transaction.Transaction) (Entity, error) {
	c, err := rs.childCollection()
	if err != nil {
		return nil, ErrNotInStore
	}
	return c.removeFirst(KindItemReference, f, tx)
}

// NewLockingCursor returns a cursor that locks the references it returns.
func (rs *ReferenceStream) NewLockingCursor(f Filter) (*Cursor, error) {
	c, err := rs.childCollection()
	if err != nil {
		return nil, ErrNotInStore
	}
	return c.newCursor(KindItemReference, f, true), nil
}

// NewNonLockingCursor returns a cursor over the references.
func (rs *ReferenceStream) NewNonLockingCursor(f Filter) (*Cursor, error) {
	c, err := rs.childCollection()
	if err != nil {
		return nil, ErrNotInStore
	}
	return c.newCursor(KindItemReference, f, false), nil
}

// SetWatermarks configures the watermarks of the references, see
// ItemStream.SetWatermarks.
func (rs *ReferenceStream) SetWatermarks(countLow, countHigh, bytesLow, bytesHigh int64) error {
	c, err := rs.childCollection()
	if err != nil {
		return ErrNotInStore
	}
	c.setWatermarks(countLow, countHigh, bytesLow, bytesHigh)
	return nil
}

// SetLimits caps the count and bytes of the references.
func (rs *ReferenceStream) SetLimits(maxCount, maxBytes int64) error {
	c, err := rs.childCollection()
	if err != nil {
		return ErrNotInStore
	}
	c.setLimits(maxCount, maxBytes)
	return nil
}

// Statistics returns the live counts of the references.
func (rs *ReferenceStream) Statistics() (Statistics, error) {
	c, err := rs.childCollection()
	if err != nil {
		return Statistics{}, ErrNotInStore
	}
	return c.statistics(), nil
}
