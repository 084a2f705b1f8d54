package scoring

import "errors"

// Sentinel errors for scoring.
var (
	ErrAmbiguousMode     = errors.New("nomination mode is ambiguous")
	ErrUnknownCalculator = errors.New("unknown calculator")
)
