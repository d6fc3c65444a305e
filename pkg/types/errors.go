package types

import "errors"

// Dataset assembly and resolution errors.
var (
	ErrResolution      = errors.New("dataset reference cannot be resolved")
	ErrDatasetNotFound = errors.New("dataset not found")
)

// Storage medium errors.
var (
	ErrUnsupportedTarget = errors.New("storage target is not supported")
	ErrNotImplemented    = errors.New("not implemented")
	ErrValueMismatch     = errors.New("value does not match target shape")
)

// Lifecycle errors.
var (
	ErrUninitialized   = errors.New("not initialized")
	ErrTransactionOpen = errors.New("a transaction is already open")
	ErrNoTransaction   = errors.New("no open transaction")
)
