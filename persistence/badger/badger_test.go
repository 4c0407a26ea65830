package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/itemstore/persistence"
)

func TestBadger(t *testing.T) {
	t.Parallel()

	db, err := NewBadger("test", t.TempDir())
	require.NoError(t, err)

	require.NoError(t, db.Put([]byte("item/2"), []byte("two")))
	require.NoError(t, db.Put([]byte("item/1"), []byte("one")))
	require.NoError(t, db.Put([]byte("meta/x"), []byte("x")))

	value, err := db.Get([]byte("item/1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), value)

	var keys []string
	err = db.Iterate([]byte("item/"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"item/1", "item/2"}, keys)

	require.NoError(t, db.Delete([]byte("item/1")))
	require.NoError(t, db.Delete([]byte("item/1")))
	_, err = db.Get([]byte("item/1"))
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	require.NoError(t, db.Maintain(context.Background()))
	require.NoError(t, db.Shutdown())
}
