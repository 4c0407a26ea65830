package transaction

import (
	"fmt"
	"sync"

	"github.com/gofrs/uuid"
)

// Registry keeps track of in-flight transactions by their ID.
type Registry struct {
	lock         sync.RWMutex
	transactions map[uuid.UUID]*Local
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		transactions: make(map[uuid.UUID]*Local),
	}
}

// Begin creates, registers and returns a new local transaction.
func (r *Registry) Begin() *Local {
	tx := NewLocal()

	r.lock.Lock()
	defer r.lock.Unlock()

	r.transactions[tx.ID()] = tx
	return tx
}

// Register adds an existing transaction to the registry.
func (r *Registry) Register(tx *Local) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.transactions[tx.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, tx.ID())
	}
	r.transactions[tx.ID()] = tx
	return nil
}

// Get returns the transaction with the given ID.
func (r *Registry) Get(id uuid.UUID) (*Local, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	tx, ok := r.transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	return tx, nil
}

// Commit commits and forgets the transaction with the given ID.
func (r *Registry) Commit(id uuid.UUID) error {
	tx, err := r.Get(id)
	if err != nil {
		return err
	}
	defer r.Forget(id)
	return tx.Commit()
}

// Rollback rolls back and forgets the transaction with the given ID.
func (r *Registry) Rollback(id uuid.UUID) error {
	tx, err := r.Get(id)
	if err != nil {
		return err
	}
	defer r.Forget(id)
	return tx.Rollback()
}

// Forget removes the transaction from the registry.
func (r *Registry) Forget(id uuid.UUID) {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.transactions, id)
}

// Len returns the number of registered transactions.
func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return len(r.transactions)
}
