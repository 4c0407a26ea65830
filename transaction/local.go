package transaction

import (
	"fmt"
	"sync"

	"github.com/gofrs/uuid"

	"github.com/safing/itemstore/log"
)

// Local is an in-memory transaction. It is safe for concurrent use, but
// Commit and Rollback are mutually exclusive: the first caller wins and the
// other one receives ErrCommitInProgress or ErrRollbackInProgress.
type Local struct {
	id uuid.UUID

	lock      sync.Mutex
	state     State
	callbacks []Callback
}

// NewLocal returns a new active local transaction.
func NewLocal() *Local {
	return &Local{
		id: NewID(),
	}
}

// ID returns the transaction identifier.
func (t *Local) ID() uuid.UUID {
	return t.id
}

// State returns the current state of the transaction.
func (t *Local) State() State {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.state
}

// Enlist registers a callback with the transaction.
func (t *Local) Enlist(cb Callback) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.state != StateActive {
		return fmt.Errorf("%w: transaction %s is %s", ErrProtocol, t.id, t.state)
	}
	t.callbacks = append(t.callbacks, cb)
	return nil
}

// Commit runs precommit on all callbacks and then postcommit. If any
// precommit fails, the transaction is rolled back and the returned error
// wraps both ErrRolledBack and the precommit error.
func (t *Local) Commit() error {
	callbacks, err := t.transition(StateCommitting)
	if err != nil {
		return err
	}

	for _, cb := range callbacks {
		if err := cb.Precommit(t); err != nil {
			log.Debugf("transaction: precommit of %s failed, rolling back: %s", t.id, err)
			t.finishRollback(callbacks)
			return fmt.Errorf("%w: %w", ErrRolledBack, err)
		}
	}

	for _, cb := range callbacks {
		cb.Postcommit(t)
	}

	t.lock.Lock()
	t.state = StateCommitted
	t.lock.Unlock()
	return nil
}

// Rollback notifies all callbacks of the rollback.
func (t *Local) Rollback() error {
	callbacks, err := t.transition(StateRollingBack)
	if err != nil {
		return err
	}

	t.finishRollback(callbacks)
	return nil
}

func (t *Local) transition(to State) ([]Callback, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	switch t.state {
	case StateActive:
	case StateCommitting:
		return nil, ErrCommitInProgress
	case StateRollingBack:
		return nil, ErrRollbackInProgress
	default:
		return nil, fmt.Errorf("%w: transaction %s is %s", ErrProtocol, t.id, t.state)
	}

	t.state = to
	return t.callbacks, nil
}

func (t *Local) finishRollback(callbacks []Callback) {
	t.lock.Lock()
	t.state = StateRollingBack
	t.lock.Unlock()

	for _, cb := range callbacks {
		cb.PostRollback(t)
	}

	t.lock.Lock()
	t.state = StateRolledBack
	t.lock.Unlock()
}
