package service

import "errors"

var (
	// ErrMissingDependency is returned by New when a required collaborator is nil.
	ErrMissingDependency = errors.New("missing service dependency")
	// ErrNotStarted is returned by RunCycle before Start.
	ErrNotStarted = errors.New("service not started")
)
