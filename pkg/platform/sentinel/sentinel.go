package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and clients return these
// (optionally wrapped) so orchestration code can translate them into check
// outcomes without inspecting backend-specific errors.
//
// These represent factual states about resources, not validation verdicts:
// - ErrNotFound: entry does not exist in store
// - ErrExpired: cached entry is past its expiry
// - ErrUnavailable: backend temporarily unreachable
// - ErrRateLimited: request budget exhausted
// - ErrSuperseded: the input changed while work for an older value was in flight
var (
	ErrNotFound    = errors.New("not found")
	ErrExpired     = errors.New("expired")
	ErrUnavailable = errors.New("unavailable")
	ErrRateLimited = errors.New("rate limited")
	ErrSuperseded  = errors.New("superseded")
)
