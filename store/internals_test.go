package store

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/itemstore/formats/dsd"
	"github.com/safing/itemstore/persistence"
	"github.com/safing/itemstore/persistence/sinkhole"
)

const defaultTestFormat = dsd.MsgPack

func TestEnvelope(t *testing.T) {
	t.Parallel()

	hdr := envelopeHeader{
		Kind:       KindItemReference,
		TypeName:   "itemreference",
		OwnerID:    12,
		Priority:   7,
		ReferredID: 3,
		Expires:    1234567890,
	}

	for _, format := range []dsd.SerializationFormat{dsd.JSON, dsd.CBOR, dsd.MsgPack} {
		for _, data := range [][]byte{
			nil,
			[]byte("small"),
			bytes.Repeat([]byte("compress me "), compressThreshold),
		} {
			raw, err := encodeEnvelope(hdr, data, format)
			require.NoError(t, err)

			decodedHdr, decoded, err := decodeEnvelope(raw)
			require.NoError(t, err)
			assert.Equal(t, len(data) >= compressThreshold, decodedHdr.Compressed)
			decodedHdr.Compressed = false
			assert.Equal(t, hdr, *decodedHdr)
			assert.Equal(t, len(data), len(decoded))
			assert.True(t, bytes.Equal(data, decoded))
		}
	}

	// compressed envelopes are smaller
	large := bytes.Repeat([]byte("a"), 10*compressThreshold)
	raw, err := encodeEnvelope(hdr, large, defaultTestFormat)
	require.NoError(t, err)
	assert.Less(t, len(raw), len(large))

	for _, broken := range [][]byte{
		nil,
		{2},
		{envelopeVersion, 50},
		append([]byte{envelopeVersion, 1}, 'x'),
	} {
		_, _, err := decodeEnvelope(broken)
		assert.ErrorIs(t, err, ErrMalformedData, "%v", broken)
	}
}

func TestNotifier(t *testing.T) {
	t.Parallel()

	n := newNotifier()

	var (
		lock  sync.Mutex
		calls []int
	)
	for i := 0; i < 100; i++ {
		i := i
		if i == 50 {
			n.queue(func() { panic("callback failure") })
		}
		n.queue(func() {
			lock.Lock()
			defer lock.Unlock()
			calls = append(calls, i)
		})
	}
	n.flush()

	lock.Lock()
	require.Len(t, calls, 100)
	for i, call := range calls {
		assert.Equal(t, i, call)
	}
	lock.Unlock()

	n.stop()
	// no-ops after stop
	n.queue(func() { t.Error("called after stop") })
	n.flush()
	n.stop()
}

type lowBackend struct {
	persistence.Backend
	reserved []uint64
}

func (b *lowBackend) ReserveIDs(n uint64) (uint64, error) {
	b.reserved = append(b.reserved, n)
	return 1, nil
}

func TestIDAllocator(t *testing.T) {
	t.Parallel()

	backend := &lowBackend{}
	a := &idAllocator{backend: backend, blockSize: 2}

	var ids []uint64
	for i := 0; i < 5; i++ {
		id, err := a.nextID()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	// ids stay unique even if the backend hands out the same block again
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, ids)
	assert.Len(t, backend.reserved, 3)

	a.skipPast(100)
	id, err := a.nextID()
	require.NoError(t, err)
	assert.Equal(t, uint64(101), id)

	a.skipPast(50)
	id, err = a.nextID()
	require.NoError(t, err)
	assert.Equal(t, uint64(102), id)
}

func TestSinkholeStore(t *testing.T) {
	t.Parallel()

	storage, err := sinkhole.NewSinkhole("sinkhole", "")
	require.NoError(t, err)
	backend, err := persistence.NewManager(storage)
	require.NoError(t, err)
	s, err := New("sinkhole", backend, nil)
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	var last uint64
	for i := 0; i < 3; i++ {
		stream := &ItemStream{}
		addStream(t, s, stream)
		id := mustID(t, stream)
		assert.Greater(t, id, last)
		last = id

		// nothing can be read back, the entity data is used instead
		_, err := stream.SerializedData()
		require.NoError(t, err)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	assert.Error(t, RegisterType("item", func() Entity { return &Item{} }))
	assert.Error(t, RegisterType("another-item", func() Entity { return &Item{} }))
	assert.ErrorIs(t, RegisterType("", nil), ErrTypeNotRegistered)

	name, ok := typeNameOf(&testItem{})
	assert.True(t, ok)
	assert.Equal(t, "test-item", name)

	e, err := newEntity("referencestream")
	require.NoError(t, err)
	assert.Equal(t, KindReferenceStream, e.Kind())
	_, err = newEntity("nope")
	assert.ErrorIs(t, err, ErrTypeNotRegistered)
}
