package hashmap

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/safing/itemstore/persistence"
)

// HashMap storage.
type HashMap struct {
	name   string
	db     map[string][]byte
	dbLock sync.RWMutex
}

func init() {
	_ = persistence.Register("hashmap", NewHashMap)
}

// NewHashMap creates a hashmap storage.
func NewHashMap(name, location string) (persistence.Storage, error) {
	return &HashMap{
		name: name,
		db:   make(map[string][]byte),
	}, nil
}

// Get returns the value stored at key.
func (hm *HashMap) Get(key []byte) ([]byte, error) {
	hm.dbLock.RLock()
	defer hm.dbLock.RUnlock()

	value, ok := hm.db[string(key)]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return bytes.Clone(value), nil
}

// Put stores the value at key.
func (hm *HashMap) Put(key, value []byte) error {
	hm.dbLock.Lock()
	defer hm.dbLock.Unlock()

	hm.db[string(key)] = bytes.Clone(value)
	return nil
}

// Delete removes the key.
func (hm *HashMap) Delete(key []byte) error {
	hm.dbLock.Lock()
	defer hm.dbLock.Unlock()

	delete(hm.db, string(key))
	return nil
}

// Iterate calls fn for every key with the given prefix in key order.
func (hm *HashMap) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	hm.dbLock.RLock()
	keys := make([]string, 0, len(hm.db))
	values := make(map[string][]byte)
	for key, value := range hm.db {
		if bytes.HasPrefix([]byte(key), prefix) {
			keys = append(keys, key)
			values[key] = value
		}
	}
	hm.dbLock.RUnlock()

	sort.Strings(keys)
	for _, key := range keys {
		if err := fn([]byte(key), values[key]); err != nil {
			return err
		}
	}
	return nil
}

// ReadOnly returns whether the storage is read only.
func (hm *HashMap) ReadOnly() bool {
	return false
}

// Maintain runs a light maintenance operation on the storage.
func (hm *HashMap) Maintain(_ context.Context) error {
	return nil
}

// Shutdown shuts down the storage.
func (hm *HashMap) Shutdown() error {
	return nil
}
