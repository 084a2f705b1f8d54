package reconcile

import "errors"

// Sentinel errors for reconciliation.
var (
	ErrModeratorNotFound = errors.New("moderator not found on roster")
	ErrInvalidEvent      = errors.New("invalid event")
)
