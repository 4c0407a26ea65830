package persistence

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// A Factory creates a new storage of its type.
type Factory func(name, location string) (Storage, error)

var (
	storages     = make(map[string]Factory)
	storagesLock sync.Mutex
)

// Register registers a new storage type.
func Register(storageType string, factory Factory) error {
	storagesLock.Lock()
	defer storagesLock.Unlock()

	_, ok := storages[storageType]
	if ok {
		return errors.New("factory for this type already exists")
	}

	storages[storageType] = factory
	return nil
}

// Start starts a new storage with the given name and storageType at location.
func Start(name, storageType, location string) (Storage, error) {
	storagesLock.Lock()
	factory, ok := storages[storageType]
	storagesLock.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStorageType, storageType)
	}
	return factory(name, location)
}

// Types returns the names of all registered storage types.
func Types() []string {
	storagesLock.Lock()
	defer storagesLock.Unlock()

	types := make([]string, 0, len(storages))
	for storageType := range storages {
		types = append(types, storageType)
	}
	sort.Strings(types)
	return types
}
