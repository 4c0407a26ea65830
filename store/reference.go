package store

import (
	"fmt"
)

// ItemReference points to an item of the item stream that holds the
// reference stream the reference is added to. It does not own the item.
type ItemReference struct {
	Base

	referred   Entity
	referredID uint64
}

// Kind returns KindItemReference.
func (r *ItemReference) Kind() Kind {
	return KindItemReference
}

func (r *ItemReference) reference() *ItemReference {
	return r
}

type referenceHolder interface {
	reference() *ItemReference
}

// SetReferredItem sets the item the reference points to. It can only be
// changed while the reference is not in store.
func (r *ItemReference) SetReferredItem(item Entity) error {
	if item == nil || item.Kind() != KindItem {
		return fmt.Errorf("%w: references must point to items", ErrReferenceConsistencyViolation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.h.owner != nil {
		return fmt.Errorf("%w: reference is in store", ErrProtocolViolation)
	}
	r.referred = item
	r.referredID = 0
	return nil
}

// ReferredItem returns the item the reference points to. References that
// were recovered resolve the item lazily from their item stream.
func (r *ItemReference) ReferredItem() (Entity, error) {
	r.mu.Lock()
	referred, referredID, h := r.referred, r.referredID, r.h
	r.mu.Unlock()

	if referred != nil {
		return referred, nil
	}
	if referredID == 0 || h.owner == nil {
		return nil, ErrNotInStore
	}

	// resolve through the item stream holding our reference stream
	streamCollection := h.owner.parent()
	if streamCollection == nil {
		return nil, ErrNotInStore
	}
	item := streamCollection.findByID(referredID)
	if item == nil {
		return nil, ErrNotInStore
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.referred == nil {
		r.referred = item
	}
	return r.referred, nil
}

func (r *ItemReference) setRecoveredReferred(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.referred = nil
	r.referredID = id
}
