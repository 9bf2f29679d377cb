package deploy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/compose-network/deployctl/configs"
	"github.com/compose-network/deployctl/internal/artifact"
	"github.com/compose-network/deployctl/internal/chain"
	"github.com/compose-network/deployctl/internal/executor"
	fsjson "github.com/compose-network/deployctl/internal/infra/filesystem/json"
	"github.com/compose-network/deployctl/internal/journal"
	"github.com/compose-network/deployctl/internal/journal/jsonfile"
	"github.com/compose-network/deployctl/internal/journal/memory"
	"github.com/compose-network/deployctl/internal/journal/sqlite"
	"github.com/compose-network/deployctl/internal/lock"
	"github.com/compose-network/deployctl/internal/network"
	"github.com/compose-network/deployctl/internal/output"
	"github.com/compose-network/deployctl/internal/signer"
	"github.com/compose-network/deployctl/internal/validate"
	"github.com/compose-network/deployctl/internal/verify"
)

// Components is the object graph built from configuration.
type Components struct {
	Registry *network.Registry
	Journal  journal.Journal
	Executor *executor.Executor
	Service  *Service

	closers []func() error
}

// Build wires every component from cfg. Close must be called when done.
func Build(cfg configs.Config) (*Components, error) {
	registry, err := network.NewRegistry(cfg.Networks)
	if err != nil {
		return nil, err
	}

	c := &Components{Registry: registry}

	store, err := NewJournal(cfg.Journal)
	if err != nil {
		return nil, err
	}
	c.Journal = store
	if closer, ok := store.(interface{ Close() error }); ok {
		c.closers = append(c.closers, closer.Close)
	}

	artifacts := artifact.NewLazyStore(cfg.Artifacts.Dir, cfg.Artifacts.CompilerVersion)
	signers := signer.NewResolver()

	clients := chain.NewClients(nil)
	c.closers = append(c.closers, func() error {
		clients.Close()
		return nil
	})

	submitter := chain.NewSubmitter(clients, artifacts, signers,
		chain.WithGasLimit(cfg.Executor.GasLimit),
		chain.WithPollInterval(cfg.Executor.PollInterval),
	)

	c.Executor = executor.New(registry, store, NewLocker(cfg.Journal), submitter,
		executor.WithConfirmTimeout(cfg.Executor.ConfirmTimeout),
	)

	verifier := verify.NewClient(
		verify.WithAttempts(uint(max(cfg.Verification.MaxAttempts, 0)), uint(max(cfg.Verification.PollAttempts, 0))),
		verify.WithIntervals(cfg.Verification.InitialInterval, cfg.Verification.MaxInterval),
	)

	validator := validate.New(nil)
	if cfg.Executor.CheckCode {
		validator = validate.New(chain.NewCodeReader(clients))
	}

	generator := output.NewGenerator(fsjson.NewWriter(), artifacts)

	c.Service = NewService(registry, c.Executor, store, verifier, validator, artifacts, generator, signers)

	return c, nil
}

func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewJournal opens the journal selected by cfg.Driver.
func NewJournal(cfg configs.Journal) (journal.Journal, error) {
	switch cfg.Driver {
	case configs.JournalDriverJSON:
		return jsonfile.New(cfg.Path, fsjson.NewReader(), fsjson.NewWriter()), nil
	case configs.JournalDriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
		store, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite journal: %w", err)
		}
		return store, nil
	case configs.JournalDriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported journal driver '%s'", cfg.Driver)
	}
}

// NewLocker returns a cross-process locker when a lock directory is set.
func NewLocker(cfg configs.Journal) lock.Locker {
	if cfg.LockDir == "" {
		return lock.NewMemoryLocker()
	}
	return lock.NewFileLocker(cfg.LockDir)
}
