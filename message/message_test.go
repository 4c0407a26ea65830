package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/itemstore/config"
	"github.com/safing/itemstore/filter"
	_ "github.com/safing/itemstore/persistence/hashmap"
	"github.com/safing/itemstore/store"
	"github.com/safing/itemstore/transaction"
)

func TestAccessors(t *testing.T) {
	t.Parallel()

	m, err := New(`{"name":"order","amount":12,"price":1.5,"paid":false}`)
	require.NoError(t, err)

	s, ok := m.GetString("name")
	assert.True(t, ok)
	assert.Equal(t, "order", s)
	i, ok := m.GetInt("amount")
	assert.True(t, ok)
	assert.Equal(t, int64(12), i)
	f, ok := m.GetFloat("price")
	assert.True(t, ok)
	assert.Equal(t, 1.5, f)
	b, ok := m.GetBool("paid")
	assert.True(t, ok)
	assert.False(t, b)
	_, ok = m.GetInt("name")
	assert.False(t, ok)
	assert.False(t, m.Exists("missing"))

	require.NoError(t, m.Set("paid", true))
	require.NoError(t, m.Set("customer.id", "c-1"))
	assert.Error(t, m.Set("amount", "twelve"))
	assert.Error(t, m.Set("name", 3))
	assert.Error(t, m.Set("paid", "yes"))
	require.NoError(t, m.Delete("price"))

	assert.JSONEq(t, `{"name":"order","amount":12,"paid":true,"customer":{"id":"c-1"}}`, m.Body())

	_, err = New(`{"broken"`)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestSettings(t *testing.T) {
	t.Parallel()

	m, err := New(`{}`)
	require.NoError(t, err)
	assert.Equal(t, store.DefaultPriority, m.Priority())
	assert.Equal(t, store.StoreEventually, m.StorageStrategy())
	assert.Zero(t, m.MaximumTimeInStore())

	require.NoError(t, m.SetPriority(7))
	require.NoError(t, m.SetTimeToLive(time.Minute))
	require.NoError(t, m.SetDeliveryDelay(time.Second))
	require.NoError(t, m.SetStorageStrategy(store.StoreAlways))
	assert.Equal(t, 7, m.Priority())
	assert.Equal(t, time.Minute, m.MaximumTimeInStore())
	assert.Equal(t, time.Second, m.DeliveryDelay())
	assert.Equal(t, store.StoreAlways, m.StorageStrategy())

	data, err := m.PersistentData()
	require.NoError(t, err)
	restored := &Message{}
	require.NoError(t, restored.Restore(data))
	assert.Equal(t, 7, restored.Priority())
	assert.Equal(t, "{}", restored.Body())

	require.NoError(t, restored.Restore(nil))
	assert.Error(t, restored.Restore([]byte("nope")))
}

func TestMessageInStore(t *testing.T) {
	t.Parallel()

	opts := config.Default()
	opts.StorageType = "hashmap"
	s, err := store.Open("message-test", opts)
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	stream := &store.ItemStream{}
	tx := transaction.NewLocal()
	require.NoError(t, s.AddItemStream(stream, tx))
	require.NoError(t, tx.Commit())

	low, err := New(`{"kind":"low"}`)
	require.NoError(t, err)
	require.NoError(t, low.SetPriority(1))
	high, err := New(`{"kind":"high","amount":3}`)
	require.NoError(t, err)
	require.NoError(t, high.SetPriority(8))

	tx = transaction.NewLocal()
	require.NoError(t, stream.AddItem(low, store.Unlocked, tx))
	require.NoError(t, stream.AddItem(high, store.Unlocked, tx))
	require.NoError(t, tx.Commit())

	assert.ErrorIs(t, high.SetPriority(2), ErrInStore)

	// highest priority first
	found, err := stream.FindFirstMatchingItem(nil)
	require.NoError(t, err)
	assert.Same(t, high, found)

	found, err = stream.FindFirstMatchingItem(filter.Where("body.kind", filter.SameAs, "low"))
	require.NoError(t, err)
	assert.Same(t, low, found)

	// update the body and persist it with the transaction
	require.NoError(t, high.Set("amount", 4))
	tx = transaction.NewLocal()
	require.NoError(t, high.RequestUpdate(tx))
	require.NoError(t, tx.Commit())

	found, err = stream.FindFirstMatchingItem(filter.Where("body.amount", filter.Equals, 4))
	require.NoError(t, err)
	assert.Same(t, high, found)
}
