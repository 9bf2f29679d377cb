// Package journal defines the durable ledger of completed deployment steps.
//
// Records are append-only and keyed by (network, graph, step). Pending
// submissions are scratch state that let a retry check the network for a
// transaction sent by an interrupted run before sending it again.
package journal

import (
	"context"
	"fmt"

	"github.com/compose-network/deployctl/internal/domain"
)

var ErrDuplicateRecord = fmt.Errorf("duplicate deployment record: %w", domain.ErrStructural)

type (
	// Reader is the read-only view of a journal.
	Reader interface {
		Lookup(ctx context.Context, key domain.Key) (domain.Record, bool, error)
		// Records returns the records of one (network, graph) pair in append order.
		Records(ctx context.Context, network, graph string) ([]domain.Record, error)
	}

	Journal interface {
		Reader

		// Append stores a record. It fails with ErrDuplicateRecord when the key is taken;
		// callers must Lookup first rather than rely on Append to deduplicate.
		Append(ctx context.Context, record domain.Record) error

		Pending(ctx context.Context, key domain.Key) (domain.Submission, bool, error)
		MarkPending(ctx context.Context, key domain.Key, submission domain.Submission) error
		ClearPending(ctx context.Context, key domain.Key) error
	}
)

// Validate checks the fields every store requires before persisting.
func Validate(record domain.Record) error {
	switch {
	case record.Network == "":
		return fmt.Errorf("record network is required")
	case record.Graph == "":
		return fmt.Errorf("record graph is required")
	case record.StepID == "":
		return fmt.Errorf("record step id is required")
	}
	return nil
}
