// Package transaction defines the two-phase transaction contract the item
// store enlists its work with, and provides a local in-memory implementation.
package transaction

import (
	"github.com/gofrs/uuid"
)

// Transaction is the part of a transaction the item store requires: an
// identifier usable for equality comparison and the ability to enlist
// callbacks that are notified on completion.
type Transaction interface {
	// ID returns the transaction identifier.
	ID() uuid.UUID
	// Enlist registers a callback. Callbacks are notified in the order they
	// were enlisted. Enlist fails with ErrProtocol if the transaction can no
	// longer accept work.
	Enlist(cb Callback) error
}

// Callback receives completion notifications from a transaction.
// On commit, Precommit is called on every callback before Postcommit is
// called on any of them. If a Precommit fails, the transaction is rolled
// back and PostRollback is called on every callback instead.
type Callback interface {
	Precommit(tx Transaction) error
	Postcommit(tx Transaction)
	PostRollback(tx Transaction)
}

// State describes the lifecycle state of a local transaction.
type State uint8

// Transaction states.
const (
	StateActive State = iota
	StateCommitting
	StateRollingBack
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitting:
		return "committing"
	case StateRollingBack:
		return "rolling back"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

// NewID returns a new random transaction ID.
func NewID() uuid.UUID {
	return uuid.Must(uuid.NewV4())
}
