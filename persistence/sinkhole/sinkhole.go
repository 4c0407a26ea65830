package sinkhole

import (
	"context"

	"github.com/safing/itemstore/persistence"
)

// Sinkhole is a dummy storage that discards everything.
type Sinkhole struct {
	name string
}

func init() {
	_ = persistence.Register("sinkhole", NewSinkhole)
}

// NewSinkhole creates a dummy storage.
func NewSinkhole(name, location string) (persistence.Storage, error) {
	return &Sinkhole{
		name: name,
	}, nil
}

// Get always returns persistence.ErrNotFound.
func (s *Sinkhole) Get(key []byte) ([]byte, error) {
	return nil, persistence.ErrNotFound
}

// Put discards the value.
func (s *Sinkhole) Put(key, value []byte) error {
	return nil
}

// Delete does nothing.
func (s *Sinkhole) Delete(key []byte) error {
	return nil
}

// Iterate never calls fn.
func (s *Sinkhole) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	return nil
}

// ReadOnly returns whether the storage is read only.
func (s *Sinkhole) ReadOnly() bool {
	return false
}

// Maintain does nothing.
func (s *Sinkhole) Maintain(_ context.Context) error {
	return nil
}

// Shutdown does nothing.
func (s *Sinkhole) Shutdown() error {
	return nil
}
