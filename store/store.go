package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluele/gcache"
	"github.com/hashicorp/go-multierror"
	"github.com/tevino/abool"
	"golang.org/x/sync/singleflight"

	"github.com/safing/itemstore/config"
	"github.com/safing/itemstore/formats/dsd"
	"github.com/safing/itemstore/log"
	"github.com/safing/itemstore/persistence"
	"github.com/safing/itemstore/transaction"
)

// Store holds item streams and everything within them.
type Store struct {
	name         string
	opts         *config.Options
	headerFormat dsd.SerializationFormat
	backend      persistence.Backend

	root     *collection
	seq      *sequencer
	notifier *notifier
	ids      *idAllocator
	lockIDs  atomic.Uint64

	collectionsLock sync.RWMutex
	collections     map[uint64]*collection

	cacheSlots atomic.Int64
	memBytes   atomic.Int64

	dataCache gcache.Cache
	readGroup singleflight.Group

	subsLock sync.RWMutex
	subs     []*Subscription

	timersLock sync.Mutex
	timers     map[uint64]*time.Timer

	metrics *storeMetrics
	closed  *abool.AtomicBool
}

// Open starts the storage configured in opts and returns the store
// recovered from it.
func Open(name string, opts *config.Options) (*Store, error) {
	if opts == nil {
		opts = config.Default()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.Apply()

	storage, err := persistence.Start(name, opts.StorageType, opts.StorageLocation)
	if err != nil {
		return nil, fmt.Errorf("failed to start storage: %w", err)
	}
	backend, err := persistence.NewManager(storage)
	if err != nil {
		_ = storage.Shutdown()
		return nil, err
	}

	s, err := New(name, backend, opts)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return s, nil
}

// New returns a store on top of the given backend and recovers all
// entities persisted in it.
func New(name string, backend persistence.Backend, opts *config.Options) (*Store, error) {
	if opts == nil {
		opts = config.Default()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	format, _ := opts.SerializationFormat()

	s := &Store{
		name:         name,
		opts:         opts.Clone(),
		headerFormat: format,
		backend:      backend,
		notifier:     newNotifier(),
		ids: &idAllocator{
			backend:   backend,
			blockSize: opts.IDBlockSize,
		},
		collections: make(map[uint64]*collection),
		dataCache:   gcache.New(opts.DataCacheSize).LRU().Build(),
		timers:      make(map[uint64]*time.Timer),
		closed:      abool.New(),
	}
	s.seq = newSequencer(s)
	s.metrics = newStoreMetrics(s)
	s.root = newCollection(s, nil, 0, KindItemStream)
	s.registerCollection(s.root)

	if err := s.recoverEntities(); err != nil {
		s.notifier.stop()
		return nil, err
	}
	log.Debugf("store: %s ready", name)
	return s, nil
}

// Name returns the name of the store.
func (s *Store) Name() string {
	return s.name
}

// AddItemStream adds an item stream to the store under the given transaction.
func (s *Store) AddItemStream(stream Entity, tx transaction.Transaction) error {
	return s.root.add(stream, KindItemStream, Unlocked, tx)
}

// FindByID returns the item stream with the given id held by the store, or nil.
func (s *Store) FindByID(id uint64) Entity {
	return s.root.findByID(id)
}

// FindFirstMatchingItemStream returns the first available item stream
// matching the filter, or nil.
func (s *Store) FindFirstMatchingItemStream(f Filter) (Entity, error) {
	return s.root.findFirst(KindItemStream, f)
}

// RemoveFirstMatchingItemStream removes the first available, empty item
// stream matching the filter under the given transaction.
func (s *Store) RemoveFirstMatchingItemStream(f Filter, tx transaction.Transaction) (Entity, error) {
	return s.root.removeFirst(KindItemStream, f, tx)
}

// NewNonLockingItemStreamCursor returns a cursor over the item streams of the store.
func (s *Store) NewNonLockingItemStreamCursor(f Filter) *Cursor {
	return s.root.newCursor(KindItemStream, f, false)
}

// Statistics returns the live counts of the item streams held by the store.
func (s *Store) Statistics() Statistics {
	return s.root.statistics()
}

// Flush blocks until all entity callbacks queued so far were delivered.
func (s *Store) Flush() {
	s.notifier.flush()
}

// Maintain runs maintenance on the persistence backend.
func (s *Store) Maintain(ctx context.Context) error {
	type maintainer interface {
		Maintain(ctx context.Context) error
	}
	if m, ok := s.backend.(maintainer); ok {
		return m.Maintain(ctx)
	}
	return nil
}

// Close delivers all pending callbacks, waits for pending writes and
// closes the backend.
func (s *Store) Close() error {
	if !s.closed.SetToIf(false, true) {
		return ErrClosed
	}
	s.stopTimers()
	s.notifier.stop()

	var result *multierror.Error
	if err := s.backend.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	s.subsLock.Lock()
	for _, sub := range s.subs {
		close(sub.Feed)
	}
	s.subs = nil
	s.subsLock.Unlock()

	log.Debugf("store: %s closed", s.name)
	return result.ErrorOrNil()
}

func (s *Store) nextLockID() uint64 {
	return s.lockIDs.Add(1)
}

func (s *Store) reserveCacheSlot() bool {
	limit := int64(s.opts.NonPersistentCacheSlots)
	for {
		used := s.cacheSlots.Load()
		if limit > 0 && used >= limit {
			return false
		}
		if s.cacheSlots.CompareAndSwap(used, used+1) {
			return true
		}
	}
}

func (s *Store) releaseCacheSlot() {
	s.cacheSlots.Add(-1)
}

func (s *Store) registerCollection(c *collection) {
	s.collectionsLock.Lock()
	defer s.collectionsLock.Unlock()

	s.collections[c.ownerID] = c
}

func (s *Store) unregisterCollection(c *collection) {
	s.collectionsLock.Lock()
	defer s.collectionsLock.Unlock()

	if s.collections[c.ownerID] == c {
		delete(s.collections, c.ownerID)
	}
}

// collectionOf returns the collection owned by the stream with the given id.
func (s *Store) collectionOf(ownerID uint64) *collection {
	s.collectionsLock.RLock()
	defer s.collectionsLock.RUnlock()

	return s.collections[ownerID]
}

func (s *Store) registeredCollections() []*collection {
	s.collectionsLock.RLock()
	defer s.collectionsLock.RUnlock()

	all := make([]*collection, 0, len(s.collections))
	for _, c := range s.collections {
		all = append(all, c)
	}
	return all
}
