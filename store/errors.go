package store

import (
	"errors"
)

// Errors.
var (
	// ErrNotInStore is returned for identity or state operations on an
	// entity that is not a member of a collection.
	ErrNotInStore = errors.New("entity is not in store")
	// ErrInvalidAddOperation is returned for adds of entities that are
	// already in store, of the wrong kind, or to collections that are not
	// in store themselves.
	ErrInvalidAddOperation = errors.New("invalid add operation")
	// ErrStreamIsFull is returned if an add would exceed the limits of a collection.
	ErrStreamIsFull = errors.New("stream is full")
	// ErrOutOfCacheSpace is returned if a memory only entity cannot get a cache slot.
	ErrOutOfCacheSpace = errors.New("out of cache space")
	// ErrReferenceConsistencyViolation is returned if a reference would
	// point outside its item stream, or if a referenced item is removed.
	ErrReferenceConsistencyViolation = errors.New("reference consistency violation")
	// ErrProtocolViolation is returned if an entity is already owned by
	// another transaction or lock.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrStreamNotEmpty is returned when removing a stream that still has children.
	ErrStreamNotEmpty = errors.New("stream is not empty")
	// ErrInvalidLockID is returned for lock ids that cannot be used by callers.
	ErrInvalidLockID = errors.New("invalid lock id")
	// ErrUpdateNotAllowed is returned for update requests of entities whose
	// persistent data is never updated.
	ErrUpdateNotAllowed = errors.New("entity does not allow updates")
	// ErrCursorFinished is returned when using a finished cursor.
	ErrCursorFinished = errors.New("cursor is finished")
	// ErrTypeNotRegistered is returned when persisting or recovering an
	// entity type that was not registered.
	ErrTypeNotRegistered = errors.New("entity type not registered")
	// ErrMalformedData is returned for persisted data that cannot be decoded.
	ErrMalformedData = errors.New("malformed persisted data")
	// ErrClosed is returned after the store was closed.
	ErrClosed = errors.New("store is closed")
)
