package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-version"
	"github.com/tevino/abool"

	"github.com/safing/itemstore/log"
)

// FormatVersion is the version of the persisted layout written by the Manager.
const FormatVersion = "1.0.0"

var formatConstraint = version.MustConstraints(version.NewConstraint("~> 1.0"))

type taskType uint8

const (
	taskWrite taskType = iota
	taskDelete
	taskRedelivered
)

type writeTask struct {
	kind   taskType
	id     uint64
	encode func() ([]byte, error)
	count  uint32
	done   chan error
}

// Manager implements Backend on top of a Storage. Writes are processed in
// order by a single writer goroutine.
type Manager struct {
	storage Storage

	tasks    chan *writeTask
	stopped  chan struct{}
	closing  *abool.AtomicBool
	taskLock sync.RWMutex

	inflightLock sync.Mutex
	inflight     map[uint64]int

	idLock sync.Mutex
}

// NewManager checks the format version of the storage and starts the writer.
func NewManager(storage Storage) (*Manager, error) {
	if err := checkFormatVersion(storage); err != nil {
		return nil, err
	}

	m := &Manager{
		storage:  storage,
		tasks:    make(chan *writeTask, 1024),
		stopped:  make(chan struct{}),
		closing:  abool.New(),
		inflight: make(map[uint64]int),
	}
	go m.writer()
	return m, nil
}

func checkFormatVersion(storage Storage) error {
	data, err := storage.Get(versionKey)
	switch {
	case errors.Is(err, ErrNotFound):
		if storage.ReadOnly() {
			return nil
		}
		if err := storage.Put(versionKey, []byte(FormatVersion)); err != nil {
			return &PersistenceError{Op: "write format version", Severe: true, Err: err}
		}
		return nil
	case err != nil:
		return &PersistenceError{Op: "read format version", Severe: true, Err: err}
	}

	stored, err := version.NewVersion(string(data))
	if err != nil {
		return fmt.Errorf("%w: invalid version %q: %w", ErrIncompatibleFormat, string(data), err)
	}
	if !formatConstraint.Check(stored) {
		return fmt.Errorf("%w: storage has version %s, need %s", ErrIncompatibleFormat, stored, formatConstraint)
	}
	return nil
}

// ReadData returns the persisted representation of the item with the given ID.
func (m *Manager) ReadData(id uint64) ([]byte, error) {
	data, err := m.storage.Get(idKey(itemPrefix, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "read", ID: id, Err: err}
	}
	return data, nil
}

// IsStable returns false while a write or delete of the item is in flight.
func (m *Manager) IsStable(id uint64) bool {
	m.inflightLock.Lock()
	defer m.inflightLock.Unlock()

	return m.inflight[id] == 0
}

// PersistLock records the lock id of the item.
func (m *Manager) PersistLock(id, lockID uint64) error {
	var err error
	if lockID == 0 {
		err = m.storage.Delete(idKey(lockPrefix, id))
	} else {
		err = m.storage.Put(idKey(lockPrefix, id), encodeUint64(lockID))
	}
	if err != nil {
		return &PersistenceError{Op: "persist lock", ID: id, Err: err}
	}
	return nil
}

// PersistRedeliveredCount records the redelivered count of the item in the background.
func (m *Manager) PersistRedeliveredCount(id uint64, count uint32) error {
	return m.submit(&writeTask{kind: taskRedelivered, id: id, count: count}, false)
}

// Write persists the item.
func (m *Manager) Write(id uint64, encode func() ([]byte, error), wait bool) error {
	return m.submit(&writeTask{kind: taskWrite, id: id, encode: encode}, wait)
}

// Delete removes the item, its lock and its redelivered count.
func (m *Manager) Delete(id uint64, wait bool) error {
	return m.submit(&writeTask{kind: taskDelete, id: id}, wait)
}

func (m *Manager) submit(task *writeTask, wait bool) error {
	if wait {
		task.done = make(chan error, 1)
	}

	m.taskLock.RLock()
	if m.closing.IsSet() {
		m.taskLock.RUnlock()
		return ErrClosed
	}
	m.markInflight(task.id, 1)
	m.tasks <- task
	m.taskLock.RUnlock()

	if wait {
		return <-task.done
	}
	return nil
}

func (m *Manager) markInflight(id uint64, delta int) {
	m.inflightLock.Lock()
	defer m.inflightLock.Unlock()

	m.inflight[id] += delta
	if m.inflight[id] <= 0 {
		delete(m.inflight, id)
	}
}

func (m *Manager) writer() {
	defer close(m.stopped)

	for task := range m.tasks {
		err := m.process(task)
		m.markInflight(task.id, -1)

		if task.done != nil {
			task.done <- err
			continue
		}
		if err != nil {
			log.Errorf("persistence: background write failed: %s", err)
		}
	}
}

func (m *Manager) process(task *writeTask) error {
	switch task.kind {
	case taskWrite:
		data, err := task.encode()
		if err != nil {
			return &PersistenceError{Op: "encode", ID: task.id, Err: err}
		}
		if err := m.storage.Put(idKey(itemPrefix, task.id), data); err != nil {
			return &PersistenceError{Op: "write", ID: task.id, Err: err}
		}
	case taskDelete:
		var result *multierror.Error
		for _, prefix := range [][]byte{itemPrefix, lockPrefix, redeliveredPrefix} {
			if err := m.storage.Delete(idKey(prefix, task.id)); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if err := result.ErrorOrNil(); err != nil {
			return &PersistenceError{Op: "delete", ID: task.id, Err: err}
		}
	case taskRedelivered:
		if err := m.storage.Put(idKey(redeliveredPrefix, task.id), encodeUint64(uint64(task.count))); err != nil {
			return &PersistenceError{Op: "persist redelivered count", ID: task.id, Err: err}
		}
	}
	return nil
}

// ReserveIDs reserves n IDs and returns the first one.
func (m *Manager) ReserveIDs(n uint64) (uint64, error) {
	m.idLock.Lock()
	defer m.idLock.Unlock()

	next := uint64(1)
	data, err := m.storage.Get(nextIDKey)
	switch {
	case err == nil:
		next = decodeUint64(data)
		if next == 0 {
			next = 1
		}
	case !errors.Is(err, ErrNotFound):
		return 0, &PersistenceError{Op: "read id space", Severe: true, Err: err}
	}

	if err := m.storage.Put(nextIDKey, encodeUint64(next+n)); err != nil {
		return 0, &PersistenceError{Op: "reserve ids", Severe: true, Err: err}
	}
	return next, nil
}

// Recover calls fn for every persisted item in ID order.
func (m *Manager) Recover(fn func(rec *Record) error) error {
	locks, err := m.collectCounters(lockPrefix)
	if err != nil {
		return err
	}
	redelivered, err := m.collectCounters(redeliveredPrefix)
	if err != nil {
		return err
	}

	return m.storage.Iterate(itemPrefix, func(key, value []byte) error {
		id, ok := keyID(itemPrefix, key)
		if !ok {
			log.Warningf("persistence: ignoring malformed item key %q", key)
			return nil
		}
		data := make([]byte, len(value))
		copy(data, value)

		return fn(&Record{
			ID:          id,
			Data:        data,
			LockID:      locks[id],
			Redelivered: uint32(redelivered[id]),
		})
	})
}

func (m *Manager) collectCounters(prefix []byte) (map[uint64]uint64, error) {
	counters := make(map[uint64]uint64)
	err := m.storage.Iterate(prefix, func(key, value []byte) error {
		if id, ok := keyID(prefix, key); ok {
			counters[id] = decodeUint64(value)
		}
		return nil
	})
	if err != nil {
		return nil, &PersistenceError{Op: "recover", Severe: true, Err: err}
	}
	return counters, nil
}

// Maintain runs maintenance on the storage.
func (m *Manager) Maintain(ctx context.Context) error {
	return m.storage.Maintain(ctx)
}

// Close waits for pending writes and shuts down the storage.
func (m *Manager) Close() error {
	m.taskLock.Lock()
	if !m.closing.SetToIf(false, true) {
		m.taskLock.Unlock()
		return nil
	}
	close(m.tasks)
	m.taskLock.Unlock()

	<-m.stopped
	return m.storage.Shutdown()
}
