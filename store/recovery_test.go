package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/itemstore/config"
	"github.com/safing/itemstore/persistence"
	_ "github.com/safing/itemstore/persistence/bbolt"
	"github.com/safing/itemstore/persistence/hashmap"
	"github.com/safing/itemstore/transaction"
)

func TestRecovery(t *testing.T) {
	t.Parallel()

	opts := config.Default()
	opts.StorageType = "bbolt"
	opts.StorageLocation = t.TempDir()
	opts.HeaderFormat = "cbor"

	s, err := Open("recovery", opts)
	require.NoError(t, err)

	stream := &ItemStream{}
	addStream(t, s, stream)

	a := newTestItem("a", 4)
	b := newTestItem("b", 6)
	c := newTestItem("c", 4)
	c.memoryOnly = true
	d := newTestItem("d", 4)
	later := newTestItem("later", 4)
	later.delay = time.Hour
	addItems(t, stream, a, b, c, d, later)

	refs := &ReferenceStream{}
	tx := transaction.NewLocal()
	require.NoError(t, stream.AddReferenceStream(refs, tx))
	require.NoError(t, tx.Commit())
	ref := &ItemReference{}
	require.NoError(t, ref.SetReferredItem(a))
	tx = transaction.NewLocal()
	require.NoError(t, refs.Add(ref, Unlocked, tx))
	require.NoError(t, tx.Commit())

	cur, err := stream.NewLockingItemCursor(FilterFunc(func(e Entity) (bool, error) {
		return e.(*testItem).name == "b", nil
	}))
	require.NoError(t, err)
	locked, err := cur.Next()
	require.NoError(t, err)
	require.Same(t, b, locked)
	lockID := cur.LockID()
	require.NoError(t, b.PersistLock())
	cur.Finish()

	_, err = d.IncrementRedeliveredCount()
	require.NoError(t, err)
	count, err := d.IncrementRedeliveredCount()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), count)

	ids := map[string]uint64{}
	for _, item := range []*testItem{a, b, c, d, later} {
		ids[item.name] = mustID(t, item)
	}
	refID := mustID(t, ref)
	require.NoError(t, s.Close())

	// reopen
	s, err = Open("recovery", opts)
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	found, err := s.FindFirstMatchingItemStream(nil)
	require.NoError(t, err)
	recovered, ok := found.(*ItemStream)
	require.True(t, ok)

	byName := func(name string) *testItem {
		e, err := recovered.FindByID(ids[name])
		require.NoError(t, err)
		if e == nil {
			return nil
		}
		item, ok := e.(*testItem)
		require.True(t, ok)
		assert.Equal(t, name, item.name)
		return item
	}

	assert.Nil(t, byName("c"))

	rb := byName("b")
	require.NotNil(t, rb)
	state, err := rb.State()
	require.NoError(t, err)
	assert.Equal(t, StateLocked, state)
	recoveredLock, err := rb.LockID()
	require.NoError(t, err)
	assert.Equal(t, lockID, recoveredLock)

	rd := byName("d")
	require.NotNil(t, rd)
	count, err = rd.RedeliveredCount()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), count)

	// delivery delays start over as available
	rl := byName("later")
	require.NotNil(t, rl)
	state, err = rl.State()
	require.NoError(t, err)
	assert.Equal(t, StateAvailable, state)

	ra := byName("a")
	require.NotNil(t, ra)
	refCount, err := ra.ReferenceCount()
	require.NoError(t, err)
	assert.Equal(t, 1, refCount)

	foundRefs, err := recovered.FindFirstMatchingReferenceStream(nil)
	require.NoError(t, err)
	rrefs, ok := foundRefs.(*ReferenceStream)
	require.True(t, ok)
	foundRef, err := rrefs.FindByID(refID)
	require.NoError(t, err)
	referred, err := foundRef.(*ItemReference).ReferredItem()
	require.NoError(t, err)
	assert.Same(t, ra, referred)

	// priority order survives
	all, err := recovered.NewNonLockingItemCursor(nil)
	require.NoError(t, err)
	defer all.Finish()
	assert.Equal(t, []string{"a", "d", "later"}, drain(t, all))

	// ids and lock ids continue after the recovered ones
	fresh := newTestItem("fresh", 4)
	addItems(t, recovered, fresh)
	assert.Greater(t, mustID(t, fresh), refID)
	next, err := recovered.NewLockingItemCursor(nil)
	require.NoError(t, err)
	defer next.Finish()
	assert.Greater(t, next.LockID(), lockID)

	require.NoError(t, rb.Unlock(lockID))
}

func TestRecoverySkipsBrokenRecords(t *testing.T) {
	t.Parallel()

	storage, err := hashmap.NewHashMap("broken", "")
	require.NoError(t, err)
	backend, err := persistence.NewManager(storage)
	require.NoError(t, err)

	require.NoError(t, backend.Write(500, func() ([]byte, error) {
		return []byte("garbage"), nil
	}, true))
	require.NoError(t, backend.Write(501, func() ([]byte, error) {
		return encodeEnvelope(envelopeHeader{Kind: KindItem, TypeName: "unknown"}, nil, defaultTestFormat)
	}, true))
	// an item whose stream is gone
	require.NoError(t, backend.Write(502, func() ([]byte, error) {
		return encodeEnvelope(envelopeHeader{Kind: KindItem, TypeName: "test-item", OwnerID: 77}, []byte("x"), defaultTestFormat)
	}, true))

	s, err := New("broken", backend, nil)
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	stream := &ItemStream{}
	addStream(t, s, stream)
	assert.Greater(t, mustID(t, stream), uint64(502))
}
