// Package verdict defines the classified outcome of validating one input
// value and the normalized error taxonomy for everything that can go wrong
// on the way there.
package verdict

import "time"

// Outcome discriminates what the remote check concluded about a value.
type Outcome string

const (
	OutcomeValid   Outcome = "valid"
	OutcomeInvalid Outcome = "invalid"
	// OutcomeUnknown is a well-formed but ambiguous remote answer. It is
	// retried a bounded number of times and then resolved to neutral.
	OutcomeUnknown Outcome = "unknown"
	// OutcomeError marks a transient failure after retries were exhausted.
	// It carries no authoritative answer and never blocks submission.
	OutcomeError Outcome = "error"
)

// Verdict is immutable once produced for a given (value, attempt) pair.
type Verdict struct {
	Value      string  // normalized subject value the verdict applies to
	Outcome    Outcome
	Reason     string  // populated for invalid results
	Suggestion string  // optional correction, e.g. a did_you_mean address
	Attempt    int
	CheckedAt  time.Time
}

// Accepted reduces the verdict to the boolean form stored in the cache.
func (v Verdict) Accepted() bool {
	return v.Outcome == OutcomeValid
}

// Conclusive reports whether the verdict is a definite answer worth caching.
// Unknown and error outcomes are ambient states, not facts about the value.
func (v Verdict) Conclusive() bool {
	return v.Outcome == OutcomeValid || v.Outcome == OutcomeInvalid
}
