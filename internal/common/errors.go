// Package common defines sentinel errors shared by the store, policy,
// service and API layers. Callers match them with errors.Is.
package common

import "errors"

var (
	// Caller identity and permission errors.
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotAuthorized    = errors.New("not authorized")

	// Input errors.
	ErrInvalidArgument = errors.New("invalid argument")

	// Lookup errors.
	ErrNotFound = errors.New("not found")

	// State errors.
	ErrAlreadyDecided    = errors.New("transfer already verified")
	ErrInsufficientStock = errors.New("insufficient stock")

	// Infrastructure errors. Wrapped around driver errors so handlers can
	// report a generic failure without leaking detail.
	ErrStorage = errors.New("storage error")
)
