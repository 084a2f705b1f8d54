package config

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
	// ErrInsecureAiessKey marks a config that still carries InsecureAiessKey
	// outside debug mode. It is returned wrapped together with ErrInvalidConfig.
	ErrInsecureAiessKey = errors.New("insecure aiess key")
)
