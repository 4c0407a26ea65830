package varint

import "errors"

// Common errors.
var (
	ErrBufEmpty    = errors.New("varint: buffer empty")
	ErrBufTooSmall = errors.New("varint: buffer too small")
)

// ValueExceededError is returned when a decoded integer does not fit the requested size.
type ValueExceededError struct {
	Max string
}

func (e *ValueExceededError) Error() string {
	return "varint: encoded integer greater than " + e.Max
}
