package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger"

	"github.com/safing/itemstore/persistence"
	"github.com/safing/itemstore/utils"
)

// Badger storage.
type Badger struct {
	name string
	db   *badger.DB
}

func init() {
	_ = persistence.Register("badger", NewBadger)
}

// NewBadger opens/creates a badger database.
func NewBadger(name, location string) (persistence.Storage, error) {
	if err := utils.EnsureDirectory(location, 0o700); err != nil {
		return nil, err
	}
	opts := badger.DefaultOptions(location)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Badger{
		name: name,
		db:   db,
	}, nil
}

// Get returns the value stored at key.
func (b *Badger) Get(key []byte) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return persistence.ErrNotFound
			}
			return err
		}
		if item.IsDeletedOrExpired() {
			return persistence.ErrNotFound
		}

		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Put stores the value at key.
func (b *Badger) Put(key, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Delete removes the key.
func (b *Badger) Delete(key []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key)
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
}

// Iterate calls fn for every key with the given prefix in key order.
func (b *Badger) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if item.IsDeletedOrExpired() {
				continue
			}
			err := item.Value(func(value []byte) error {
				return fn(item.Key(), value)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadOnly returns whether the database is read only.
func (b *Badger) ReadOnly() bool {
	return false
}

// Maintain runs a light maintenance operation on the database.
func (b *Badger) Maintain(_ context.Context) error {
	err := b.db.RunValueLogGC(0.7)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return err
	}
	return nil
}

// Shutdown shuts down the database.
func (b *Badger) Shutdown() error {
	return b.db.Close()
}
