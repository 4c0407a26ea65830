package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/require"

	"github.com/safing/itemstore/config"
	"github.com/safing/itemstore/persistence"
	"github.com/safing/itemstore/persistence/hashmap"
	"github.com/safing/itemstore/transaction"
)

func init() {
	if err := RegisterType("test-item", func() Entity { return &testItem{} }); err != nil {
		panic(err)
	}
	if err := RegisterType("test-stream", func() Entity { return &testStream{} }); err != nil {
		panic(err)
	}
	if err := RegisterType("test-reference", func() Entity { return &expiringReference{} }); err != nil {
		panic(err)
	}
}

// eventLog records entity callbacks in the order they were delivered.
type eventLog struct {
	lock   sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...interface{}) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) all() []string {
	l.lock.Lock()
	defer l.lock.Unlock()

	return append([]string(nil), l.events...)
}

type testItem struct {
	Item

	name       string
	priority   int
	ttl        time.Duration
	delay      time.Duration
	memoryOnly bool
	always     bool
	silent     bool
	noUpdates  bool

	log         *eventLog
	veto        error
	onPrecommit func(tx transaction.Transaction)
}

func newTestItem(name string, priority int) *testItem {
	return &testItem{name: name, priority: priority}
}

func (i *testItem) Priority() int                      { return i.priority }
func (i *testItem) MaximumTimeInStore() time.Duration  { return i.ttl }
func (i *testItem) DeliveryDelay() time.Duration       { return i.delay }
func (i *testItem) CanExpireSilently() bool            { return i.silent }
func (i *testItem) IsPersistentDataNeverUpdated() bool { return i.noUpdates }
func (i *testItem) PersistentData() ([]byte, error)    { return []byte(i.name), nil }
func (i *testItem) EventPostCommitAdd(transaction.Transaction) {
	i.record("postcommit add")
}
func (i *testItem) EventPostRollbackAdd(transaction.Transaction) {
	i.record("postrollback add")
}
func (i *testItem) EventPostCommitRemove(transaction.Transaction) {
	i.record("postcommit remove")
}
func (i *testItem) EventPostRollbackRemove(transaction.Transaction) {
	i.record("postrollback remove")
}
func (i *testItem) EventLocked()   { i.record("locked") }
func (i *testItem) EventUnlocked() { i.record("unlocked") }
func (i *testItem) EventExpired()  { i.record("expired") }

func (i *testItem) record(event string) {
	if i.log != nil {
		i.log.add("%s %s", event, i.name)
	}
}

func (i *testItem) StorageStrategy() StorageStrategy {
	switch {
	case i.memoryOnly:
		return StoreNever
	case i.always:
		return StoreAlways
	default:
		return StoreEventually
	}
}

func (i *testItem) Restore(data []byte) error {
	i.name = string(data)
	return nil
}

func (i *testItem) EventPrecommitAdd(tx transaction.Transaction) error {
	i.record("precommit add")
	if i.onPrecommit != nil {
		i.onPrecommit(tx)
	}
	return i.veto
}

func (i *testItem) EventPrecommitRemove(tx transaction.Transaction) error {
	i.record("precommit remove")
	return nil
}

type expiringReference struct {
	ItemReference

	ttl time.Duration
}

func (r *expiringReference) MaximumTimeInStore() time.Duration { return r.ttl }

type testStream struct {
	ItemStream

	lock  sync.Mutex
	marks []WatermarkEvent
}

func (s *testStream) EventWatermarkBreached(event WatermarkEvent) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.marks = append(s.marks, event)
}

func (s *testStream) watermarks() []WatermarkEvent {
	s.lock.Lock()
	defer s.lock.Unlock()

	return append([]WatermarkEvent(nil), s.marks...)
}

func newTestStore(t *testing.T, configure func(opts *config.Options)) *Store {
	t.Helper()

	opts := config.Default()
	if configure != nil {
		configure(opts)
	}
	storage, err := hashmap.NewHashMap(t.Name(), "")
	require.NoError(t, err)
	backend, err := persistence.NewManager(storage)
	require.NoError(t, err)

	s, err := New(t.Name(), backend, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

// addStream adds a committed item stream to the store.
func addStream(t *testing.T, s *Store, stream Entity) {
	t.Helper()

	tx := transaction.NewLocal()
	require.NoError(t, s.AddItemStream(stream, tx))
	require.NoError(t, tx.Commit())
}

// addItems adds the items to the stream in one committed transaction.
func addItems(t *testing.T, stream *ItemStream, items ...Entity) {
	t.Helper()

	tx := transaction.NewLocal()
	for _, item := range items {
		require.NoError(t, stream.AddItem(item, Unlocked, tx))
	}
	require.NoError(t, tx.Commit())
}

func mustID(t *testing.T, e Entity) uint64 {
	t.Helper()

	type identified interface {
		ID() (uint64, error)
	}
	id, err := e.(identified).ID()
	require.NoError(t, err)
	return id
}

func drain(t *testing.T, cur *Cursor) []string {
	t.Helper()

	var names []string
	for {
		e, err := cur.Next()
		require.NoError(t, err)
		if e == nil {
			return names
		}
		names = append(names, e.(*testItem).name)
	}
}

// steppedTx is a transaction whose commit phases are driven by the test.
type steppedTx struct {
	id uuid.UUID

	lock      sync.Mutex
	callbacks []transaction.Callback
}

func newSteppedTx() *steppedTx {
	return &steppedTx{id: transaction.NewID()}
}

func (tx *steppedTx) ID() uuid.UUID {
	return tx.id
}

func (tx *steppedTx) Enlist(cb transaction.Callback) error {
	tx.lock.Lock()
	defer tx.lock.Unlock()

	tx.callbacks = append(tx.callbacks, cb)
	return nil
}

func (tx *steppedTx) enlisted() []transaction.Callback {
	tx.lock.Lock()
	defer tx.lock.Unlock()

	return append([]transaction.Callback(nil), tx.callbacks...)
}

func (tx *steppedTx) precommit() error {
	for _, cb := range tx.enlisted() {
		if err := cb.Precommit(tx); err != nil {
			return err
		}
	}
	return nil
}

func (tx *steppedTx) postcommit() {
	for _, cb := range tx.enlisted() {
		cb.Postcommit(tx)
	}
}

func (tx *steppedTx) rollback() {
	for _, cb := range tx.enlisted() {
		cb.PostRollback(tx)
	}
}
