package executor

import (
	"fmt"

	"github.com/compose-network/deployctl/internal/domain"
)

// ErrMissingDependencyOutput means a referenced step has no record when its
// dependent is about to be submitted. A validated graph never triggers it.
var ErrMissingDependencyOutput = fmt.Errorf("missing dependency output: %w", domain.ErrStructural)

// ErrPendingNotStored means a sent transaction could not be marked pending.
// A run that fails after it cannot tell whether resubmitting is safe.
var ErrPendingNotStored = fmt.Errorf("pending submission not stored: %w", domain.ErrSubmission)

// SubmissionError reports the step a run halted at. Records of earlier steps
// stay in the journal and are reused by the next run.
type SubmissionError struct {
	Network string
	StepID  string
	Err     error
	// Timeout is set when the confirmation was not observed within the bound.
	Timeout bool
}

func (e *SubmissionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("step '%s' on network '%s' timed out waiting for confirmation: %v", e.StepID, e.Network, e.Err)
	}
	return fmt.Sprintf("step '%s' on network '%s' failed: %v", e.StepID, e.Network, e.Err)
}

func (e *SubmissionError) Unwrap() []error {
	errs := []error{domain.ErrSubmission, e.Err}
	if e.Timeout {
		errs = append(errs, domain.ErrTimeout)
	}
	return errs
}
