package persistence

import (
	"errors"
	"fmt"
)

// Errors.
var (
	ErrNotFound           = errors.New("storage entry not found")
	ErrReadOnly           = errors.New("storage is read only")
	ErrClosed             = errors.New("persistence is closed")
	ErrIncompatibleFormat = errors.New("persisted format is incompatible")
	ErrUnknownStorageType = errors.New("unknown storage type")
)

// PersistenceError is returned for failures of the storage. If Severe is
// set, the store must be considered unusable.
type PersistenceError struct {
	Op     string
	ID     uint64
	Severe bool
	Err    error
}

func (pe *PersistenceError) Error() string {
	if pe.Severe {
		return fmt.Sprintf("persistence: severe failure during %s of %d: %s", pe.Op, pe.ID, pe.Err)
	}
	return fmt.Sprintf("persistence: failed to %s %d: %s", pe.Op, pe.ID, pe.Err)
}

func (pe *PersistenceError) Unwrap() error {
	return pe.Err
}

// IsSevere returns whether err contains a severe PersistenceError.
func IsSevere(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Severe
}
