package interfaces

import "errors"

// Common interface errors used across components.
var (
	ErrHostNotRegistered = errors.New("no host connection is currently registered")
	ErrSessionNotFound   = errors.New("session not found")
)
