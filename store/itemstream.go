package store

import (
	"time"

	"github.com/safing/itemstore/transaction"
)

// ItemStream is an ordered collection of items, nested item streams and
// reference streams.
type ItemStream struct {
	Base
}

// Kind returns KindItemStream.
func (s *ItemStream) Kind() Kind {
	return KindItemStream
}

// StorageStrategy returns StoreAlways.
func (s *ItemStream) StorageStrategy() StorageStrategy {
	return StoreAlways
}

func (s *ItemStream) childCollection() (*collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.children == nil {
		return nil, ErrInvalidAddOperation
	}
	return s.children, nil
}

// AddItem adds an item under the given transaction. A non-zero lock id
// makes the item commit locked with that id.
func (s *ItemStream) AddItem(item Entity, lockID uint64, tx transaction.Transaction) error {
	c, err := s.childCollection()
	if err != nil {
		return err
	}
	return c.add(item, KindItem, lockID, tx)
}

// AddItemStream adds a nested item stream under the given transaction.
func (s *ItemStream) AddItemStream(stream Entity, tx transaction.Transaction) error {
	c, err := s.childCollection()
	if err != nil {
		return err
	}
	return c.add(stream, KindItemStream, Unlocked, tx)
}

// AddReferenceStream adds a reference stream under the given transaction.
func (s *ItemStream) AddReferenceStream(stream Entity, tx transaction.Transaction) error {
	c, err := s.childCollection()
	if err != nil {
		return err
	}
	return c.add(stream, KindReferenceStream, Unlocked, tx)
}

// FindByID returns the direct child with the given id, or nil.
func (s *ItemStream) FindByID(id uint64) (Entity, error) {
	c, err := s.childCollection()
	if err != nil {
		return nil, ErrNotInStore
	}
	return c.findByID(id), nil
}

// FindFirstMatchingItem returns the first available item in cursor order
// that matches the filter, or nil.
func (s *ItemStream) FindFirstMatchingItem(f Filter) (Entity, error) {
	return s.findFirst(KindItem, f)
}

// FindFirstMatchingItemStream returns the first available nested item
// stream that matches the filter, or nil.
func (s *ItemStream) FindFirstMatchingItemStream(f Filter) (Entity, error) {
	return s.findFirst(KindItemStream, f)
}

// FindFirstMatchingReferenceStream returns the first available reference
// stream that matches the filter, or nil.
func (s *ItemStream) FindFirstMatchingReferenceStream(f Filter) (Entity, error) {
	return s.findFirst(KindReferenceStream, f)
}

func (s *ItemStream) findFirst(kind Kind, f Filter) (Entity, error) {
	c, err := s.childCollection()
	if err != nil {
		return nil, ErrNotInStore
	}
	return c.findFirst(kind, f)
}

// FindOldestItem returns the item that was presented first, regardless of
// its state.
func (s *ItemStream) FindOldestItem() (Entity, error) {
	c, err := s.childCollection()
	if err != nil {
		return nil, ErrNotInStore
	}
	return c.findOldest(KindItem), nil
}

// RemoveFirstMatchingItem removes the first available item that matches
// the filter under the given transaction and returns it, or nil.
func (s *ItemStream) RemoveFirstMatchingItem(f Filter, tx transaction.Transaction) (Entity, error) {
	return s.removeFirst(KindItem, f, tx)
}

// RemoveFirstMatchingItemStream removes the first available nested item
// stream that matches the filter and returns it, or nil.
func (s *ItemStream) RemoveFirstMatchingItemStream(f Filter, tx transaction.Transaction) (Entity, error) {
	return s.removeFirst(KindItemStream, f, tx)
}

// RemoveFirstMatchingReferenceStream removes the first available reference
// stream that matches the filter and returns it, or nil.
func (s *ItemStream) RemoveFirstMatchingReferenceStream(f Filter, tx transaction.Transaction) (Entity, error) {
	return s.removeFirst(KindReferenceStream, f, tx)
}

func (s *ItemStream) removeFirst(kind Kind, f Filter, tx transaction.Transaction) (Entity, error) {
	c, err := s.childCollection()
	if err != nil {
		return nil, ErrNotInStore
	}
	return c.removeFirst(kind, f, tx)
}

// NewLockingItemCursor returns a cursor that locks the items it returns.
func (s *ItemStream) NewLockingItemCursor(f Filter) (*Cursor, error) {
	c, err := s.childCollection()
	if err != nil {
		return nil, ErrNotInStore
	}
	return c.newCursor(KindItem, f, true), nil
}

// NewNonLockingItemCursor returns a cursor over the items of the stream.
func (s *ItemStream) NewNonLockingItemCursor(f Filter) (*Cursor, error) {
	c, err := s.childCollection()
	if err != nil {
		return nil, ErrNotInStore
	}
	return c.newCursor(KindItem, f, false), nil
}

// NewNonLockingItemStreamCursor returns a cursor over the nested item streams.
func (s *ItemStream) NewNonLockingItemStreamCursor(f Filter) (*Cursor, error) {
	c, err := s.childCollection()
	if err != nil {
		return nil, ErrNotInStore
	}
	return c.newCursor(KindItemStream, f, false), nil
}

// NewNonLockingReferenceStreamCursor returns a cursor over the reference streams.
func (s *ItemStream) NewNonLockingReferenceStreamCursor(f Filter) (*Cursor, error) {
	c, err := s.childCollection()
	if err != nil {
		return nil, ErrNotInStore
	}
	return c.newCursor(KindReferenceStream, f, false), nil
}

// SetWatermarks configures the count and byte watermarks of the direct
// children. A high value of zero disables the watermark. If a low value is
// zero, the watermark falls as soon as the value drops below high.
func (s *ItemStream) SetWatermarks(countLow, countHigh, bytesLow, bytesHigh int64) error {
	c, err := s.childCollection()
	if err != nil {
		return ErrNotInStore
	}
	c.setWatermarks(countLow, countHigh, bytesLow, bytesHigh)
	return nil
}

// SetLimits caps the count and bytes of the direct children. Zero disables a limit.
func (s *ItemStream) SetLimits(maxCount, maxBytes int64) error {
	c, err := s.childCollection()
	if err != nil {
		return ErrNotInStore
	}
	c.setLimits(maxCount, maxBytes)
	return nil
}

// Statistics returns the live counts of the direct children.
func (s *ItemStream) Statistics() (Statistics, error) {
	c, err := s.childCollection()
	if err != nil {
		return Statistics{}, ErrNotInStore
	}
	return c.statistics(), nil
}

// ExpireItems removes all items of the stream whose maximum time in store
// passed before now.
func (s *ItemStream) ExpireItems(now time.Time) (int, error) {
	c, err := s.childCollection()
	if err != nil {
		return 0, ErrNotInStore
	}
	return c.expire(now)
}
