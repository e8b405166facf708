package domain

import "errors"

// ErrInvalidConfiguration marks invalid chunking parameters, unsupported
// backend names and missing required credentials. Fatal to the operation.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ErrDependencyUnavailable marks an unreachable or misbehaving
// embedding/index/LLM backend. Not retried by this layer.
var ErrDependencyUnavailable = errors.New("dependency unavailable")
