package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/itemstore/transaction"
)

func setupReferences(t *testing.T) (*Store, *ItemStream, *ReferenceStream, *testItem) {
	t.Helper()

	s := newTestStore(t, nil)
	stream := &ItemStream{}
	addStream(t, s, stream)

	item := newTestItem("target", 4)
	refs := &ReferenceStream{}
	tx := transaction.NewLocal()
	require.NoError(t, stream.AddItem(item, Unlocked, tx))
	require.NoError(t, stream.AddReferenceStream(refs, tx))
	require.NoError(t, tx.Commit())
	return s, stream, refs, item
}

func referenceCount(t *testing.T, item *testItem) int {
	t.Helper()

	count, err := item.ReferenceCount()
	require.NoError(t, err)
	return count
}

func TestReferenceCounting(t *testing.T) {
	t.Parallel()

	_, _, refs, item := setupReferences(t)

	ref := &ItemReference{}
	require.NoError(t, ref.SetReferredItem(item))

	// rolled back adds do not count
	tx := transaction.NewLocal()
	require.NoError(t, refs.Add(ref, Unlocked, tx))
	assert.Equal(t, 0, referenceCount(t, item))
	require.NoError(t, tx.Rollback())
	assert.Equal(t, 0, referenceCount(t, item))

	tx = transaction.NewLocal()
	require.NoError(t, refs.Add(ref, Unlocked, tx))
	require.NoError(t, tx.Commit())
	assert.Equal(t, 1, referenceCount(t, item))
	assert.ErrorIs(t, ref.SetReferredItem(item), ErrProtocolViolation)

	referred, err := ref.ReferredItem()
	require.NoError(t, err)
	assert.Same(t, item, referred)

	// referenced items cannot be removed
	assert.ErrorIs(t, item.Remove(transaction.NewLocal(), Unlocked), ErrReferenceConsistencyViolation)

	found, err := refs.FindFirstMatching(nil)
	require.NoError(t, err)
	assert.Same(t, ref, found)
	oldest, err := refs.FindOldest()
	require.NoError(t, err)
	assert.Same(t, ref, oldest)

	tx = transaction.NewLocal()
	removed, err := refs.RemoveFirstMatching(nil, tx)
	require.NoError(t, err)
	assert.Same(t, ref, removed)
	require.NoError(t, tx.Commit())
	assert.Equal(t, 0, referenceCount(t, item))

	tx = transaction.NewLocal()
	require.NoError(t, item.Remove(tx, Unlocked))
	require.NoError(t, tx.Commit())
	assert.False(t, item.IsInStore())
}

func TestReferenceConsistency(t *testing.T) {
	t.Parallel()

	s, _, refs, _ := setupReferences(t)

	// no referred item
	assert.ErrorIs(t, refs.Add(&ItemReference{}, Unlocked, transaction.NewLocal()), ErrReferenceConsistencyViolation)
	assert.ErrorIs(t, (&ItemReference{}).SetReferredItem(&ItemStream{}), ErrReferenceConsistencyViolation)

	// referred item not in store
	ref := &ItemReference{}
	require.NoError(t, ref.SetReferredItem(newTestItem("loose", 1)))
	assert.ErrorIs(t, refs.Add(ref, Unlocked, transaction.NewLocal()), ErrReferenceConsistencyViolation)

	// referred item in another stream
	other := &ItemStream{}
	addStream(t, s, other)
	foreign := newTestItem("foreign", 1)
	addItems(t, other, foreign)
	ref = &ItemReference{}
	require.NoError(t, ref.SetReferredItem(foreign))
	assert.ErrorIs(t, refs.Add(ref, Unlocked, transaction.NewLocal()), ErrReferenceConsistencyViolation)

	// only references go into reference streams
	assert.ErrorIs(t, refs.Add(newTestItem("x", 1), Unlocked, transaction.NewLocal()), ErrInvalidAddOperation)
}

func TestReferredItemRemovedBeforeCommit(t *testing.T) {
	t.Parallel()

	_, _, refs, item := setupReferences(t)

	ref := &ItemReference{}
	require.NoError(t, ref.SetReferredItem(item))

	removal := transaction.NewLocal()
	require.NoError(t, item.Remove(removal, Unlocked))

	tx := transaction.NewLocal()
	require.NoError(t, refs.Add(ref, Unlocked, tx))
	require.NoError(t, removal.Commit())

	err := tx.Commit()
	assert.ErrorIs(t, err, ErrReferenceConsistencyViolation)
	assert.False(t, ref.IsInStore())
}

func TestReferenceStreamCursor(t *testing.T) {
	t.Parallel()

	_, stream, refs, item := setupReferences(t)
	second := newTestItem("second", 4)
	addItems(t, stream, second)

	tx := transaction.NewLocal()
	for _, target := range []Entity{item, second} {
		ref := &ItemReference{}
		require.NoError(t, ref.SetReferredItem(target))
		require.NoError(t, refs.Add(ref, Unlocked, tx))
	}
	require.NoError(t, tx.Commit())
	stats, err := refs.Statistics()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Available)

	cur, err := refs.NewLockingCursor(nil)
	require.NoError(t, err)
	defer cur.Finish()

	var targets []Entity
	for {
		e, err := cur.Next()
		require.NoError(t, err)
		if e == nil {
			break
		}
		referred, err := e.(*ItemReference).ReferredItem()
		require.NoError(t, err)
		targets = append(targets, referred)
	}
	assert.Equal(t, []Entity{item, second}, targets)

	nonLocking, err := refs.NewNonLockingCursor(nil)
	require.NoError(t, err)
	defer nonLocking.Finish()
	e, err := nonLocking.Next()
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestReferredItemPinnedDuringCommit(t *testing.T) {
	t.Parallel()

	_, _, refs, item := setupReferences(t)

	// rolled back after precommit
	ref := &ItemReference{}
	require.NoError(t, ref.SetReferredItem(item))
	tx := newSteppedTx()
	require.NoError(t, refs.Add(ref, Unlocked, tx))
	require.NoError(t, tx.precommit())
	assert.ErrorIs(t, item.Remove(transaction.NewLocal(), Unlocked), ErrReferenceConsistencyViolation)
	tx.rollback()
	assert.False(t, ref.IsInStore())
	assert.Equal(t, 0, referenceCount(t, item))

	// the pin is gone, removal works again
	removal := transaction.NewLocal()
	require.NoError(t, item.Remove(removal, Unlocked))
	require.NoError(t, removal.Rollback())

	// committed after precommit
	tx = newSteppedTx()
	require.NoError(t, refs.Add(ref, Unlocked, tx))
	require.NoError(t, tx.precommit())
	assert.ErrorIs(t, item.Remove(transaction.NewLocal(), Unlocked), ErrReferenceConsistencyViolation)
	tx.postcommit()

	state, err := ref.State()
	require.NoError(t, err)
	assert.Equal(t, StateAvailable, state)
	assert.True(t, item.IsInStore())
	assert.Equal(t, 1, referenceCount(t, item))
}

func TestReferenceToRemovingItem(t *testing.T) {
	t.Parallel()

	_, _, refs, item := setupReferences(t)

	removal := transaction.NewLocal()
	require.NoError(t, item.Remove(removal, Unlocked))

	ref := &ItemReference{}
	require.NoError(t, ref.SetReferredItem(item))
	tx := transaction.NewLocal()
	require.NoError(t, refs.Add(ref, Unlocked, tx))
	err := tx.Commit()
	assert.ErrorIs(t, err, ErrReferenceConsistencyViolation)
	assert.ErrorIs(t, err, transaction.ErrRolledBack)
	assert.False(t, ref.IsInStore())

	require.NoError(t, removal.Commit())
	assert.False(t, item.IsInStore())
}

func TestReferenceExpiry(t *testing.T) {
	t.Parallel()

	s, _, refs, item := setupReferences(t)

	ref := &expiringReference{ttl: time.Millisecond}
	require.NoError(t, ref.SetReferredItem(item))
	tx := transaction.NewLocal()
	require.NoError(t, refs.Add(ref, Unlocked, tx))
	require.NoError(t, tx.Commit())
	assert.Equal(t, 1, referenceCount(t, item))

	expired, err := s.ExpireItems(time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.False(t, ref.IsInStore())
	assert.True(t, item.IsInStore())
	assert.Equal(t, 0, referenceCount(t, item))
}
