// Package deploy ties the executor, verification client, result validator and
// output generator into the deploy, plan, status and verify workflows.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/compose-network/deployctl/internal/artifact"
	"github.com/compose-network/deployctl/internal/domain"
	"github.com/compose-network/deployctl/internal/executor"
	"github.com/compose-network/deployctl/internal/graph"
	"github.com/compose-network/deployctl/internal/journal"
	"github.com/compose-network/deployctl/internal/logger"
	"github.com/compose-network/deployctl/internal/network"
	"github.com/compose-network/deployctl/internal/output"
	"github.com/compose-network/deployctl/internal/validate"
	"github.com/compose-network/deployctl/internal/verify"
)

var ErrVerificationNotConfigured = fmt.Errorf("verification not configured: %w", domain.ErrConfiguration)

type (
	Runner interface {
		Execute(ctx context.Context, g *graph.Graph, networkName string) (*executor.Report, error)
		Plan(ctx context.Context, g *graph.Graph, networkName string) ([]executor.PlannedStep, error)
	}

	Verifier interface {
		Verify(ctx context.Context, settings network.VerificationSettings, record domain.Record, metadata verify.Metadata) verify.Result
	}

	Validator interface {
		Validate(ctx context.Context, profile network.Profile, expectedSteps []string, records []domain.Record) validate.Report
		ValidateJournal(ctx context.Context, reader journal.Reader, profile network.Profile, g *graph.Graph) (validate.Report, error)
	}

	ArtifactSource interface {
		Get(ref string) (artifact.Artifact, error)
	}

	OutputGenerator interface {
		Generate(path string, deployment output.Deployment) error
	}

	SecretResolver interface {
		Secret(ref string) (string, error)
	}

	Options struct {
		Verify bool
		// OutputPath is where the deployment summary is written. Empty skips it.
		OutputPath string
	}

	Result struct {
		Report       *executor.Report
		Verification map[string]verify.Result
		Validation   validate.Report
	}

	StatusReport struct {
		Profile    network.Profile
		Steps      []executor.PlannedStep
		Validation validate.Report
	}

	Service struct {
		resolver  executor.Resolver
		runner    Runner
		journal   journal.Reader
		verifier  Verifier
		validator Validator
		artifacts ArtifactSource
		output    OutputGenerator
		secrets   SecretResolver
		logger    *slog.Logger
	}
)

func NewService(
	resolver executor.Resolver,
	runner Runner,
	reader journal.Reader,
	verifier Verifier,
	validator Validator,
	artifacts ArtifactSource,
	outputGenerator OutputGenerator,
	secrets SecretResolver,
) *Service {
	return &Service{
		resolver:  resolver,
		runner:    runner,
		journal:   reader,
		verifier:  verifier,
		validator: validator,
		artifacts: artifacts,
		output:    outputGenerator,
		secrets:   secrets,
		logger:    logger.Named("deploy_service"),
	}
}

// Deploy executes g on networkName, then verifies, validates and writes the
// summary. Verification is best-effort: its failures are reported in the
// result but never fail the deployment. Validation findings do.
func (s *Service) Deploy(ctx context.Context, g *graph.Graph, networkName string, opts Options) (*Result, error) {
	profile, err := s.resolver.Resolve(networkName)
	if err != nil {
		return nil, err
	}

	log := s.logger.With("network", profile.Name).With("graph", g.Name())

	report, err := s.runner.Execute(ctx, g, networkName)
	if err != nil {
		return &Result{Report: report}, fmt.Errorf("failed to execute deployment: %w", err)
	}

	result := &Result{Report: report}

	records := orderedRecords(report.Order, report.Records)

	if opts.Verify && profile.Verification != nil {
		verification, err := s.verifyRecords(ctx, profile, g, records)
		if err != nil {
			log.With("err", err.Error()).Warn("skipping verification")
		}
		result.Verification = verification
	} else {
		log.Debug("verification disabled for this run")
	}

	result.Validation = s.validator.Validate(ctx, profile, report.Order, records)

	if opts.OutputPath != "" {
		if err := s.output.Generate(opts.OutputPath, s.deployment(profile, g, report.RunID, report.Records, result.Verification)); err != nil {
			return result, fmt.Errorf("failed to write deployment output: %w", err)
		}
	}

	if err := result.Validation.Err(); err != nil {
		return result, err
	}

	log.
		With("run_id", report.RunID).
		With("deployed", len(report.Deployed)).
		With("reused", len(report.Reused)).
		Info("deployment completed")

	return result, nil
}

// Verify re-verifies the journaled records of g. Nothing is deployed.
func (s *Service) Verify(ctx context.Context, g *graph.Graph, networkName string) (map[string]verify.Result, error) {
	profile, err := s.resolver.Resolve(networkName)
	if err != nil {
		return nil, err
	}
	if profile.Verification == nil {
		return nil, fmt.Errorf("%w for network '%s'", ErrVerificationNotConfigured, profile.Name)
	}

	journaled, err := s.journal.Records(ctx, profile.Name, g.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	var records []domain.Record
	for _, record := range journaled {
		if _, ok := g.Step(record.StepID); ok {
			records = append(records, record)
		}
	}

	results, err := s.verifyRecords(ctx, profile, g, records)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, record := range records {
		if res := results[record.StepID]; res.Err != nil {
			errs = append(errs, res.Err)
		}
	}

	return results, errors.Join(errs...)
}

// Plan previews the next run of g on networkName.
func (s *Service) Plan(ctx context.Context, g *graph.Graph, networkName string) ([]executor.PlannedStep, error) {
	return s.runner.Plan(ctx, g, networkName)
}

// Status reports the journaled state of g and validates what is recorded.
// It never touches the network unless the validator checks code.
func (s *Service) Status(ctx context.Context, g *graph.Graph, networkName string) (StatusReport, error) {
	profile, err := s.resolver.Resolve(networkName)
	if err != nil {
		return StatusReport{}, err
	}

	steps, err := s.runner.Plan(ctx, g, networkName)
	if err != nil {
		return StatusReport{}, err
	}

	validation, err := s.validator.ValidateJournal(ctx, s.journal, profile, g)
	if err != nil {
		return StatusReport{}, err
	}

	return StatusReport{Profile: profile, Steps: steps, Validation: validation}, nil
}

func (s *Service) verifyRecords(ctx context.Context, profile network.Profile, g *graph.Graph, records []domain.Record) (map[string]verify.Result, error) {
	settings := *profile.Verification

	apiKey, err := s.secrets.Secret(settings.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve explorer api key: %w", err)
	}
	settings.APIKey = apiKey

	results := make(map[string]verify.Result, len(records))
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		step, _ := g.Step(record.StepID)
		metadata, err := s.metadata(step)
		if err != nil {
			results[record.StepID] = verify.Result{
				StepID:  record.StepID,
				Address: record.Address,
				Status:  verify.StatusFailed,
				Message: err.Error(),
				Err:     fmt.Errorf("%w: %w", verify.ErrMissingMetadata, err),
			}
			continue
		}

		result := s.verifier.Verify(ctx, settings, record, metadata)
		if result.Err != nil {
			s.logger.
				With("step_id", record.StepID).
				With("status", result.Status).
				With("err", result.Err.Error()).
				Warn("contract verification unsuccessful")
		}
		results[record.StepID] = result
	}

	return results, nil
}

func (s *Service) metadata(step graph.Step) (verify.Metadata, error) {
	art, err := s.artifacts.Get(step.Artifact.Ref)
	if err != nil {
		return verify.Metadata{}, err
	}
	return verify.Metadata{
		ContractName:      art.Name,
		SourceName:        art.SourceName,
		CompilerVersion:   art.CompilerVersion,
		StandardJSONInput: art.StandardJSONInput,
	}, nil
}

func (s *Service) deployment(
	profile network.Profile,
	g *graph.Graph,
	runID string,
	records map[string]domain.Record,
	verification map[string]verify.Result,
) output.Deployment {
	artifacts := make(map[string]string, g.Len())
	for _, step := range g.Steps() {
		artifacts[step.ID] = step.Artifact.Ref
	}

	return output.Deployment{
		Network:      profile.Name,
		ChainID:      profile.ChainID,
		Graph:        g.Name(),
		RunID:        runID,
		Artifacts:    artifacts,
		Records:      records,
		Verification: verification,
	}
}

func orderedRecords(order []string, records map[string]domain.Record) []domain.Record {
	ordered := make([]domain.Record, 0, len(records))
	for _, id := range order {
		if record, ok := records[id]; ok {
			ordered = append(ordered, record)
		}
	}
	return ordered
}
