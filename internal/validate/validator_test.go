package validate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/compose-network/deployctl/internal/domain"
	"github.com/compose-network/deployctl/internal/graph"
	"github.com/compose-network/deployctl/internal/journal/memory"
	"github.com/compose-network/deployctl/internal/network"
	"github.com/stretchr/testify/require"
)

var profile = network.Profile{Name: "localhost", RPCURL: "http://127.0.0.1:8545", ChainID: 31337}

func validRecord(stepID string) domain.Record {
	return domain.Record{
		Network:     "localhost",
		Graph:       "SecuraModule",
		StepID:      stepID,
		Address:     "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		TxHash:      "0x" + "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		BlockNumber: 1,
		ChainID:     31337,
		RunID:       "run",
		DeployedAt:  time.UnixMilli(1_760_000_000_000).UTC(),
	}
}

type codeReader map[string][]byte

func (c codeReader) CodeAt(_ context.Context, _ network.Profile, address string) ([]byte, error) {
	code, ok := c[address]
	if !ok {
		return nil, errors.New("rpc unavailable")
	}
	return code, nil
}

func TestValidateAcceptsCompleteDeployment(t *testing.T) {
	report := New(nil).Validate(context.Background(), profile, []string{"secura"}, []domain.Record{validRecord("secura")})
	require.True(t, report.OK())
	require.NoError(t, report.Err())
	require.Equal(t, 1, report.Checked)
}

func TestValidateFindings(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*domain.Record)
		wantField string
	}{
		{name: "short address", mutate: func(r *domain.Record) { r.Address = "0x1234" }, wantField: "address"},
		{name: "missing prefix", mutate: func(r *domain.Record) { r.Address = "5FbDB2315678afecb367f032d93F642f64180aa3" }, wantField: "address"},
		{name: "zero address", mutate: func(r *domain.Record) { r.Address = "0x0000000000000000000000000000000000000000" }, wantField: "address"},
		{name: "bad checksum", mutate: func(r *domain.Record) { r.Address = "0x5fbDB2315678afecb367f032d93F642f64180aa3" }, wantField: "address"},
		{name: "bad tx hash", mutate: func(r *domain.Record) { r.TxHash = "0xabc" }, wantField: "txHash"},
		{name: "wrong chain", mutate: func(r *domain.Record) { r.ChainID = 1 }, wantField: "chainId"},
		{name: "wrong network", mutate: func(r *domain.Record) { r.Network = "sepolia" }, wantField: "network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := validRecord("secura")
			tt.mutate(&record)

			report := New(nil).Validate(context.Background(), profile, []string{"secura"}, []domain.Record{record})
			require.Len(t, report.Findings, 1)
			require.Equal(t, tt.wantField, report.Findings[0].Field)
			require.ErrorIs(t, report.Err(), ErrValidationFailed)
			require.ErrorIs(t, report.Err(), domain.ErrVerification)
		})
	}
}

func TestValidateLowercaseAddressIsAccepted(t *testing.T) {
	record := validRecord("secura")
	record.Address = "0x5fbdb2315678afecb367f032d93f642f64180aa3"

	report := New(nil).Validate(context.Background(), profile, []string{"secura"}, []domain.Record{record})
	require.True(t, report.OK(), "%v", report.Findings)
}

func TestValidateMissingAndUnexpectedRecords(t *testing.T) {
	report := New(nil).Validate(context.Background(), profile, []string{"a", "b"}, []domain.Record{validRecord("a"), validRecord("stale")})

	require.Equal(t, []Finding{
		{StepID: "b", Field: "record", Message: "no deployment record"},
		{StepID: "stale", Field: "record", Message: "record does not belong to any step of the graph"},
	}, report.Findings)
}

func TestValidateCode(t *testing.T) {
	good := validRecord("good")
	empty := validRecord("empty")
	empty.Address = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	unreachable := validRecord("unreachable")
	unreachable.Address = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"

	reader := codeReader{good.Address: {0x60, 0x80}, empty.Address: nil}
	report := New(reader).Validate(context.Background(), profile, []string{"good", "empty", "unreachable"}, []domain.Record{good, empty, unreachable})

	require.Len(t, report.Findings, 2)
	require.Equal(t, "empty", report.Findings[0].StepID)
	require.Equal(t, "no contract code at address", report.Findings[0].Message)
	require.Equal(t, "unreachable", report.Findings[1].StepID)
	require.Contains(t, report.Findings[1].Message, "rpc unavailable")
}

func TestValidateJournalReportsMalformedAddressWithoutTouchingJournal(t *testing.T) {
	ctx := context.Background()

	b := graph.NewBuilder("SecuraModule")
	b.Contract("secura", "Secura")
	g, err := b.Build()
	require.NoError(t, err)

	record := validRecord("secura")
	record.Address = "0xnot-an-address"
	j := memory.New()
	require.NoError(t, j.Append(ctx, record))

	before, err := j.Records(ctx, "localhost", "SecuraModule")
	require.NoError(t, err)

	report, err := New(nil).ValidateJournal(ctx, j, profile, g)
	require.NoError(t, err)
	require.Equal(t, "SecuraModule", report.Graph)
	require.Len(t, report.Findings, 1)
	require.Equal(t, "address", report.Findings[0].Field)
	require.Error(t, report.Err())

	after, err := j.Records(ctx, "localhost", "SecuraModule")
	require.NoError(t, err)
	require.Equal(t, before, after)
}
