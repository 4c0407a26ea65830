package bbolt

import (
	"bytes"
	"context"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/safing/itemstore/persistence"
	"github.com/safing/itemstore/utils"
)

var bucketName = []byte{0}

// BBolt storage.
type BBolt struct {
	name string
	db   *bbolt.DB
}

func init() {
	_ = persistence.Register("bbolt", NewBBolt)
}

// NewBBolt opens/creates a bbolt database.
func NewBBolt(name, location string) (persistence.Storage, error) {
	if err := utils.EnsureDirectory(location, 0o700); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(filepath.Join(location, "db.bbolt"), 0o600, nil)
	if err != nil {
		return nil, err
	}

	// Create bucket
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BBolt{
		name: name,
		db:   db,
	}, nil
}

// Get returns the value stored at key.
func (b *BBolt) Get(key []byte) ([]byte, error) {
	var duplicate []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketName).Get(key)
		if value == nil {
			return persistence.ErrNotFound
		}

		// values are only valid during the transaction
		duplicate = make([]byte, len(value))
		copy(duplicate, value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return duplicate, nil
}

// Put stores the value at key.
func (b *BBolt) Put(key, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, value)
	})
}

// Delete removes the key.
func (b *BBolt) Delete(key []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete(key)
	})
}

// Iterate calls fn for every key with the given prefix in key order.
func (b *BBolt) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for key, value := c.Seek(prefix); key != nil; key, value = c.Next() {
			if !bytes.HasPrefix(key, prefix) {
				return nil
			}
			if err := fn(key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadOnly returns whether the database is read only.
func (b *BBolt) ReadOnly() bool {
	return false
}

// Maintain runs a light maintenance operation on the database.
func (b *BBolt) Maintain(_ context.Context) error {
	return b.db.Sync()
}

// Shutdown shuts down the database.
func (b *BBolt) Shutdown() error {
	return b.db.Close()
}
