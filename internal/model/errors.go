package model

import "errors"

var (
	// ErrInvalid is wrapped by every per-record validation error.
	ErrInvalid = errors.New("invalid input")
	// ErrPrecondition is wrapped by caller-contract violations.
	ErrPrecondition = errors.New("precondition violated")
)
