package transaction

import "errors"

// Errors.
var (
	// ErrProtocol is returned when work is presented to a transaction that
	// can no longer accept it.
	ErrProtocol = errors.New("transaction can no longer accept work")

	ErrRollbackInProgress   = errors.New("transaction is being rolled back on another goroutine")
	ErrCommitInProgress     = errors.New("transaction is being committed on another goroutine")
	ErrRolledBack           = errors.New("transaction was rolled back")
	ErrUnknownTransaction   = errors.New("unknown transaction id")
	ErrDuplicateTransaction = errors.New("duplicate transaction id")
)
