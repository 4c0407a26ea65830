package config

import (
	"errors"
	"fmt"
)

// Common error definitions.
var (
	ErrInvalidData = errors.New("invalid data")
)

// InvalidValueError describes a validation error for the options
// value.
type InvalidValueError struct {
	Option string
	Value  interface{}
	Msg    string
}

func (ive *InvalidValueError) Error() string {
	msg := fmt.Sprintf("%s: invalid value %+v", ive.Option, ive.Value)
	if ive.Msg != "" {
		msg += ": " + ive.Msg
	}
	return msg
}

func newInvalidValueError(option string, value interface{}, msg string) *InvalidValueError {
	return &InvalidValueError{
		Option: option,
		Value:  value,
		Msg:    msg,
	}
}
