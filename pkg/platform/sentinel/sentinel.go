package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and caches return these
// (optionally wrapped) so services can translate them into domain errors.
//
// - ErrNotFound: row or key does not exist
// - ErrConflict: a uniqueness constraint rejected the write
// - ErrUnavailable: backing service temporarily unreachable (e.g. open breaker)
//
// For validation errors use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
