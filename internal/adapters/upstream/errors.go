package upstream

import "errors"

// Sentinel errors for upstream sources.
var (
	// ErrSourceUnavailable means the source answered with something that is
	// not JSON, typically a login page after the session expired.
	ErrSourceUnavailable = errors.New("upstream source unavailable")
	// ErrStatus wraps non-2xx responses.
	ErrStatus = errors.New("upstream returned error status")
)
