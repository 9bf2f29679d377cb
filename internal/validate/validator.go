// Package validate checks deployment records against what a completed run
// must have produced. It only reads: the journal is never modified.
package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/compose-network/deployctl/internal/domain"
	"github.com/compose-network/deployctl/internal/graph"
	"github.com/compose-network/deployctl/internal/journal"
	"github.com/compose-network/deployctl/internal/logger"
	"github.com/compose-network/deployctl/internal/network"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrValidationFailed = fmt.Errorf("deployment validation failed: %w", domain.ErrVerification)

	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	txHashPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

type (
	// CodeReader is optional. When set, every record must point at deployed code.
	CodeReader interface {
		CodeAt(ctx context.Context, profile network.Profile, address string) ([]byte, error)
	}

	Finding struct {
		StepID  string
		Field   string
		Message string
	}

	Report struct {
		Network  string
		Graph    string
		Checked  int
		Findings []Finding
	}

	Validator struct {
		code   CodeReader
		logger *slog.Logger
	}
)

func New(code CodeReader) *Validator {
	return &Validator{
		code:   code,
		logger: logger.Named("validator"),
	}
}

// Validate checks that every expected step has a well formed record for profile.
func (v *Validator) Validate(ctx context.Context, profile network.Profile, expectedSteps []string, records []domain.Record) Report {
	report := Report{Network: profile.Name}

	byStep := make(map[string]domain.Record, len(records))
	for _, record := range records {
		if report.Graph == "" {
			report.Graph = record.Graph
		}
		byStep[record.StepID] = record
	}

	expected := make(map[string]struct{}, len(expectedSteps))
	for _, id := range expectedSteps {
		expected[id] = struct{}{}

		record, ok := byStep[id]
		if !ok {
			report.add(id, "record", "no deployment record")
			continue
		}
		report.Checked++
		v.checkRecord(ctx, profile, record, &report)
	}

	for _, record := range records {
		if _, ok := expected[record.StepID]; !ok {
			report.add(record.StepID, "record", "record does not belong to any step of the graph")
		}
	}

	v.logger.
		With("network", profile.Name).
		With("checked", report.Checked).
		With("findings", len(report.Findings)).
		Debug("validation finished")

	return report
}

// ValidateJournal validates the journal's records of g on profile.
func (v *Validator) ValidateJournal(ctx context.Context, reader journal.Reader, profile network.Profile, g *graph.Graph) (Report, error) {
	records, err := reader.Records(ctx, profile.Name, g.Name())
	if err != nil {
		return Report{}, fmt.Errorf("failed to read journal: %w", err)
	}

	report := v.Validate(ctx, profile, g.TopologicalOrder(), records)
	report.Graph = g.Name()
	return report, nil
}

func (v *Validator) checkRecord(ctx context.Context, profile network.Profile, record domain.Record, report *Report) {
	id := record.StepID

	if record.Network != profile.Name {
		report.add(id, "network", fmt.Sprintf("recorded for network '%s'", record.Network))
	}
	if record.ChainID != profile.ChainID {
		report.add(id, "chainId", fmt.Sprintf("recorded chain id %d, network has %d", record.ChainID, profile.ChainID))
	}
	if !txHashPattern.MatchString(record.TxHash) {
		report.add(id, "txHash", fmt.Sprintf("'%s' is not a 32 byte hex hash", record.TxHash))
	}

	if msg := checkAddress(record.Address); msg != "" {
		report.add(id, "address", msg)
		return
	}

	if v.code == nil {
		return
	}
	code, err := v.code.CodeAt(ctx, profile, record.Address)
	if err != nil {
		report.add(id, "code", fmt.Sprintf("code check failed: %v", err))
		return
	}
	if len(code) == 0 {
		report.add(id, "code", "no contract code at address")
	}
}

func checkAddress(address string) string {
	if !addressPattern.MatchString(address) {
		return fmt.Sprintf("'%s' is not a 0x-prefixed 20 byte hex address", address)
	}

	parsed := common.HexToAddress(address)
	if parsed == (common.Address{}) {
		return "zero address"
	}

	// Mixed case means an EIP-55 checksum was applied and must match.
	hexPart := address[2:]
	if hexPart != strings.ToLower(hexPart) && hexPart != strings.ToUpper(hexPart) && parsed.Hex() != address {
		return fmt.Sprintf("'%s' fails the EIP-55 checksum", address)
	}
	return ""
}

func (r *Report) add(stepID, field, message string) {
	r.Findings = append(r.Findings, Finding{StepID: stepID, Field: field, Message: message})
}

func (r Report) OK() bool {
	return len(r.Findings) == 0
}

// Err joins every finding into one error, or returns nil when there are none.
func (r Report) Err() error {
	if r.OK() {
		return nil
	}

	errs := make([]error, 0, len(r.Findings))
	for _, f := range r.Findings {
		errs = append(errs, fmt.Errorf("%w: step '%s' %s: %s", ErrValidationFailed, f.StepID, f.Field, f.Message))
	}
	return errors.Join(errs...)
}
