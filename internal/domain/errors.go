package domain

import "errors"

// Error categories. Every error surfaced by deployctl wraps exactly one of
// these so callers can decide on retry behaviour with errors.Is.
var (
	// ErrConfiguration marks malformed network profiles or settings. Raised before any network I/O.
	ErrConfiguration = errors.New("configuration error")
	// ErrStructural marks graphs with cycles or dangling references, and
	// journal writes that would give one step two records.
	ErrStructural = errors.New("structural error")
	// ErrSubmission marks RPC failures, reverts and similar. The run halts but progress is kept.
	ErrSubmission = errors.New("submission error")
	// ErrTimeout marks a confirmation that was not observed in time. It is also a submission error.
	ErrTimeout = errors.New("timeout error")
	// ErrVerification marks explorer verification problems and validation
	// findings on recorded results. Neither ever rewrites the journal.
	ErrVerification = errors.New("verification error")
)

// ErrTransactionNotFound is returned by a submitter when the network has no
// knowledge of a previously sent transaction, meaning it is safe to resend.
var ErrTransactionNotFound = errors.New("transaction not found")
