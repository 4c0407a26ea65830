package persistence_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/itemstore/persistence"
	"github.com/safing/itemstore/persistence/hashmap"
)

func newManager(t *testing.T) (*persistence.Manager, persistence.Storage) {
	t.Helper()

	storage, err := hashmap.NewHashMap("test", "")
	require.NoError(t, err)
	m, err := persistence.NewManager(storage)
	require.NoError(t, err)
	return m, storage
}

func TestManagerWriteAndRecover(t *testing.T) {
	t.Parallel()

	m, storage := newManager(t)

	require.NoError(t, m.Write(2, func() ([]byte, error) { return []byte("b"), nil }, false))
	require.NoError(t, m.Write(1, func() ([]byte, error) { return []byte("a"), nil }, true))
	require.NoError(t, m.Write(3, func() ([]byte, error) { return []byte("c"), nil }, true))
	require.NoError(t, m.PersistLock(1, 77))
	require.NoError(t, m.PersistRedeliveredCount(1, 3))
	require.NoError(t, m.Delete(3, true))

	assert.True(t, m.IsStable(1))
	data, err := m.ReadData(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)

	_, err = m.ReadData(3)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	require.NoError(t, m.Close())

	// reopen on the same storage
	m, err = persistence.NewManager(storage)
	require.NoError(t, err)

	var records []*persistence.Record
	err = m.Recover(func(rec *persistence.Record) error {
		records = append(records, rec)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(1), records[0].ID)
	assert.Equal(t, uint64(77), records[0].LockID)
	assert.Equal(t, uint32(3), records[0].Redelivered)
	assert.Equal(t, uint64(2), records[1].ID)
	assert.Equal(t, uint64(0), records[1].LockID)

	require.NoError(t, m.PersistLock(1, 0))
	require.NoError(t, m.Close())
}

func TestManagerReserveIDs(t *testing.T) {
	t.Parallel()

	m, storage := newManager(t)

	first, err := m.ReserveIDs(10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first)

	second, err := m.ReserveIDs(10)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), second)
	require.NoError(t, m.Close())

	m, err = persistence.NewManager(storage)
	require.NoError(t, err)
	third, err := m.ReserveIDs(5)
	require.NoError(t, err)
	assert.Equal(t, uint64(21), third)
	require.NoError(t, m.Close())
}

func TestManagerEncodeFailure(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	defer func() {
		_ = m.Close()
	}()

	encodeErr := errors.New("broken")
	err := m.Write(5, func() ([]byte, error) { return nil, encodeErr }, true)
	require.ErrorIs(t, err, encodeErr)
	assert.False(t, persistence.IsSevere(err))
}

func TestManagerClosed(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	err := m.Write(1, func() ([]byte, error) { return nil, nil }, false)
	assert.ErrorIs(t, err, persistence.ErrClosed)
}

func TestManagerIncompatibleFormat(t *testing.T) {
	t.Parallel()

	storage, err := hashmap.NewHashMap("test", "")
	require.NoError(t, err)
	require.NoError(t, storage.Put([]byte("meta/version"), []byte("2.1.0")))

	_, err = persistence.NewManager(storage)
	assert.ErrorIs(t, err, persistence.ErrIncompatibleFormat)
}

func TestStartUnknownType(t *testing.T) {
	t.Parallel()

	_, err := persistence.Start("test", "does-not-exist", "")
	assert.ErrorIs(t, err, persistence.ErrUnknownStorageType)

	s, err := persistence.Start("test", "hashmap", "")
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Contains(t, persistence.Types(), "hashmap")
}
