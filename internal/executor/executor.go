// Package executor runs a deployment graph against one network, consulting
// the journal so that steps already confirmed are never submitted again.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/compose-network/deployctl/internal/domain"
	"github.com/compose-network/deployctl/internal/graph"
	"github.com/compose-network/deployctl/internal/journal"
	"github.com/compose-network/deployctl/internal/lock"
	"github.com/compose-network/deployctl/internal/logger"
	"github.com/compose-network/deployctl/internal/network"
	"github.com/google/uuid"
)

const defaultConfirmTimeout = 2 * time.Minute

type (
	Resolver interface {
		Resolve(name string) (network.Profile, error)
	}

	// Submitter talks to the network. Submit sends the deployment and returns
	// as soon as the transaction is accepted; Confirm blocks until it is mined
	// or ctx is done, and returns domain.ErrTransactionNotFound when the
	// network has never seen the transaction.
	Submitter interface {
		Submit(ctx context.Context, profile network.Profile, step graph.Step, args []any) (domain.Submission, error)
		Confirm(ctx context.Context, profile network.Profile, submission domain.Submission) (domain.Confirmation, error)
	}

	// Preflighter is implemented by submitters that can check a profile
	// against the network. It runs once per run, before the first submission,
	// so fully journaled runs stay offline.
	Preflighter interface {
		Preflight(ctx context.Context, profile network.Profile) error
	}

	Option func(*Executor)

	Executor struct {
		resolver       Resolver
		journal        journal.Journal
		locker         lock.Locker
		submitter      Submitter
		confirmTimeout time.Duration
		now            func() time.Time
		logger         *slog.Logger
	}

	// Report is the outcome of one run. On failure it holds whatever was
	// recorded before the failing step.
	Report struct {
		RunID    string
		Network  string
		ChainID  int64
		Graph    string
		Order    []string
		Records  map[string]domain.Record
		Deployed []string
		Reused   []string
		// Failed is the step the run halted at, if any.
		Failed string
		// Skipped lists the steps after Failed that were not attempted.
		Skipped []string
	}
)

func WithConfirmTimeout(timeout time.Duration) Option {
	return func(e *Executor) {
		if timeout > 0 {
			e.confirmTimeout = timeout
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

func New(resolver Resolver, journal journal.Journal, locker lock.Locker, submitter Submitter, opts ...Option) *Executor {
	e := &Executor{
		resolver:       resolver,
		journal:        journal,
		locker:         locker,
		submitter:      submitter,
		confirmTimeout: defaultConfirmTimeout,
		now:            time.Now,
		logger:         logger.Named("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute deploys every step of g that the journal has no record of, in
// topological order. The run lock for (network, graph) is held throughout.
// Cancelling ctx stops the run before the next step; a step that was already
// submitted is still confirmed and recorded.
func (e *Executor) Execute(ctx context.Context, g *graph.Graph, networkName string) (*Report, error) {
	profile, err := e.resolver.Resolve(networkName)
	if err != nil {
		return nil, err
	}

	release, err := e.locker.Acquire(ctx, profile.Name, g.Name())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(); err != nil {
			e.logger.With("err", err).Warn("failed to release run lock")
		}
	}()

	order := g.TopologicalOrder()
	report := &Report{
		RunID:   uuid.NewString(),
		Network: profile.Name,
		ChainID: profile.ChainID,
		Graph:   g.Name(),
		Order:   order,
		Records: make(map[string]domain.Record, len(order)),
	}

	log := e.logger.
		With("run_id", report.RunID).
		With("network", profile.Name).
		With("graph", g.Name())
	log.With("steps", len(order)).Info("deployment run started")

	preflighted := false
	for i, id := range order {
		if err := ctx.Err(); err != nil {
			report.halt(i)
			return report, fmt.Errorf("run stopped before step '%s': %w", id, err)
		}

		step, _ := g.Step(id)
		key := domain.Key{Network: profile.Name, Graph: g.Name(), StepID: id}

		record, found, err := e.journal.Lookup(ctx, key)
		if err != nil {
			report.halt(i)
			return report, fmt.Errorf("failed to look up step '%s' in journal: %w", id, err)
		}
		if found {
			report.Records[id] = record
			report.Reused = append(report.Reused, id)
			log.With("step_id", id).With("address", record.Address).Info("step already deployed, reusing record")
			continue
		}

		if !preflighted {
			if err := e.preflight(ctx, profile); err != nil {
				report.halt(i)
				return report, err
			}
			preflighted = true
		}

		record, err = e.deployStep(ctx, profile, step, key, report)
		if err != nil {
			report.halt(i)
			log.With("step_id", id).With("err", err).Error("step failed, run halted")
			return report, err
		}

		report.Records[id] = record
		report.Deployed = append(report.Deployed, id)
		log.
			With("step_id", id).
			With("address", record.Address).
			With("tx_hash", record.TxHash).
			With("block", record.BlockNumber).
			Info("step deployed")
	}

	log.
		With("deployed", len(report.Deployed)).
		With("reused", len(report.Reused)).
		Info("deployment run completed")

	return report, nil
}

func (e *Executor) preflight(ctx context.Context, profile network.Profile) error {
	p, ok := e.submitter.(Preflighter)
	if !ok {
		return nil
	}
	if err := p.Preflight(ctx, profile); err != nil {
		return fmt.Errorf("network '%s' preflight failed: %w", profile.Name, err)
	}
	return nil
}

// deployStep submits one step, or recovers a submission left pending by an
// interrupted run, and records it once confirmed.
func (e *Executor) deployStep(ctx context.Context, profile network.Profile, step graph.Step, key domain.Key, report *Report) (domain.Record, error) {
	args, err := resolveArgs(step, report.Records)
	if err != nil {
		return domain.Record{}, err
	}

	pending, hasPending, err := e.journal.Pending(ctx, key)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to read pending submission of step '%s': %w", step.ID, err)
	}

	stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.confirmTimeout)
	defer cancel()

	log := e.logger.With("run_id", report.RunID).With("network", profile.Name).With("step_id", step.ID)

	if hasPending {
		log.With("tx_hash", pending.TxHash).Info("found pending submission, checking network")

		confirmation, err := e.submitter.Confirm(stepCtx, profile, pending)
		switch {
		case err == nil:
			return e.record(stepCtx, profile, key, report.RunID, pending, confirmation)
		case errors.Is(err, domain.ErrTransactionNotFound):
			log.With("tx_hash", pending.TxHash).Warn("pending submission unknown to network, resubmitting")
			if err := e.journal.ClearPending(stepCtx, key); err != nil {
				return domain.Record{}, fmt.Errorf("failed to clear pending submission of step '%s': %w", step.ID, err)
			}
		default:
			return domain.Record{}, e.submissionError(stepCtx, profile, step.ID, err)
		}
	}

	submission, err := e.submitter.Submit(stepCtx, profile, step, args)
	if err != nil {
		return domain.Record{}, e.submissionError(stepCtx, profile, step.ID, err)
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = e.now().UTC()
	}

	// Confirm even when the marker was not stored.
	markErr := e.journal.MarkPending(stepCtx, key, submission)
	if markErr != nil {
		log.With("tx_hash", submission.TxHash).With("err", markErr).Error("failed to store pending submission")
		markErr = fmt.Errorf("%w: tx %s: %w", ErrPendingNotStored, submission.TxHash, markErr)
	}

	log.With("tx_hash", submission.TxHash).Debug("submitted, waiting for confirmation")

	confirmation, err := e.submitter.Confirm(stepCtx, profile, submission)
	if err != nil {
		return domain.Record{}, e.submissionError(stepCtx, profile, step.ID, errors.Join(err, markErr))
	}

	return e.record(stepCtx, profile, key, report.RunID, submission, confirmation)
}

func (e *Executor) record(
	ctx context.Context,
	profile network.Profile,
	key domain.Key,
	runID string,
	submission domain.Submission,
	confirmation domain.Confirmation,
) (domain.Record, error) {
	record := domain.Record{
		Network:         key.Network,
		Graph:           key.Graph,
		StepID:          key.StepID,
		Address:         confirmation.Address,
		TxHash:          confirmation.TxHash,
		BlockNumber:     confirmation.BlockNumber,
		ChainID:         profile.ChainID,
		ConstructorArgs: submission.ConstructorArgs,
		RunID:           runID,
		DeployedAt:      e.now().UTC(),
	}
	if record.Address == "" {
		record.Address = submission.Address
	}
	if record.TxHash == "" {
		record.TxHash = submission.TxHash
	}

	if err := e.journal.Append(ctx, record); err != nil {
		return domain.Record{}, fmt.Errorf("failed to record step '%s': %w", key.StepID, err)
	}
	if err := e.journal.ClearPending(ctx, key); err != nil {
		e.logger.With("step_id", key.StepID).With("err", err).Warn("failed to clear pending submission")
	}

	return record, nil
}

func (e *Executor) submissionError(stepCtx context.Context, profile network.Profile, stepID string, err error) error {
	return &SubmissionError{
		Network: profile.Name,
		StepID:  stepID,
		Err:     err,
		Timeout: errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout) ||
			errors.Is(stepCtx.Err(), context.DeadlineExceeded),
	}
}

// resolveArgs substitutes step references with the deployed addresses of
// completed steps.
func resolveArgs(step graph.Step, records map[string]domain.Record) ([]any, error) {
	args := make([]any, 0, len(step.Params))
	for i, param := range step.Params {
		if !param.IsRef() {
			args = append(args, param.Value)
			continue
		}

		record, ok := records[param.Ref]
		if !ok || record.Address == "" {
			return nil, fmt.Errorf("%w: step '%s' argument %d references '%s'", ErrMissingDependencyOutput, step.ID, i, param.Ref)
		}
		args = append(args, record.Address)
	}
	return args, nil
}

func (r *Report) halt(at int) {
	r.Failed = r.Order[at]
	r.Skipped = append([]string(nil), r.Order[at+1:]...)
}
