package chain

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/compose-network/deployctl/internal/artifact"
	"github.com/compose-network/deployctl/internal/domain"
	"github.com/compose-network/deployctl/internal/graph"
	"github.com/compose-network/deployctl/internal/network"
	"github.com/compose-network/deployctl/internal/signer"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/require"
)

const (
	devKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

	// Init code copying a 10 byte runtime that returns 42.
	answerInitCode = "0x600a600c600039600a6000f3602a60005260206000f3"
	answerRuntime  = "0x602a60005260206000f3"
	// Init code that always reverts.
	revertInitCode = "0x60006000fd"

	ownedABI = `[{"inputs":[{"name":"owner","type":"address"},{"name":"supply","type":"uint256"}],"stateMutability":"nonpayable","type":"constructor"}]`
)

type staticArtifacts map[string]artifact.Artifact

func (s staticArtifacts) Get(ref string) (artifact.Artifact, error) {
	art, ok := s[ref]
	if !ok {
		return artifact.Artifact{}, artifact.ErrUnknownArtifact
	}
	return art, nil
}

type harness struct {
	backend   *simulated.Backend
	profile   network.Profile
	clients   *Clients
	submitter *Submitter
}

func newHarness(t *testing.T, opts ...SubmitterOption) *harness {
	t.Helper()

	key, err := crypto.HexToECDSA(devKey)
	require.NoError(t, err)
	funds := new(big.Int).Mul(big.NewInt(1_000_000_000_000_000_000), big.NewInt(100))
	backend := simulated.NewBackend(types.GenesisAlloc{
		crypto.PubkeyToAddress(key.PublicKey): {Balance: funds},
	})
	t.Cleanup(func() { _ = backend.Close() })

	t.Setenv("DEPLOYER_KEY", devKey)

	ownedABIParsed, err := abi.JSON(strings.NewReader(ownedABI))
	require.NoError(t, err)
	artifacts := staticArtifacts{
		"Answer":  {Name: "Answer", ABI: ownedABIParsed, Bytecode: common.FromHex(answerInitCode)},
		"Reverts": {Name: "Reverts", ABI: abi.ABI{}, Bytecode: common.FromHex(revertInitCode)},
	}

	clients := NewClients(func(context.Context, string) (Backend, error) {
		return backend.Client(), nil
	})

	return &harness{
		backend: backend,
		profile: network.Profile{
			Name:       "simulated",
			RPCURL:     "http://simulated.invalid",
			ChainID:    1337,
			Credential: "env:DEPLOYER_KEY",
		},
		clients:   clients,
		submitter: NewSubmitter(clients, artifacts, signer.NewResolver(), append([]SubmitterOption{WithPollInterval(5 * time.Millisecond)}, opts...)...),
	}
}

func TestSubmitAndConfirm(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

	step := graph.Step{ID: "answer", Artifact: graph.Artifact{Ref: "Answer"}}
	submission, err := h.submitter.Submit(ctx, h.profile, step, []any{owner, "1000"})
	require.NoError(t, err)
	require.True(t, common.IsHexAddress(submission.Address))
	require.Len(t, submission.ConstructorArgs, 128)
	require.False(t, submission.SubmittedAt.IsZero())

	h.backend.Commit()

	confirmation, err := h.submitter.Confirm(ctx, h.profile, submission)
	require.NoError(t, err)
	require.Equal(t, submission.Address, confirmation.Address)
	require.Equal(t, submission.TxHash, confirmation.TxHash)
	require.NotZero(t, confirmation.BlockNumber)

	code, err := NewCodeReader(h.clients).CodeAt(ctx, h.profile, confirmation.Address)
	require.NoError(t, err)
	require.Equal(t, common.FromHex(answerRuntime), code)
}

func TestConfirmUnknownTransaction(t *testing.T) {
	h := newHarness(t)

	_, err := h.submitter.Confirm(context.Background(), h.profile, domain.Submission{
		TxHash: common.HexToHash("0x01").Hex(),
	})
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestConfirmWaitsForPendingTransaction(t *testing.T) {
	h := newHarness(t)

	step := graph.Step{ID: "answer", Artifact: graph.Artifact{Ref: "Answer"}}
	submission, err := h.submitter.Submit(context.Background(), h.profile, step, []any{"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = h.submitter.Confirm(ctx, h.profile, submission)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestConfirmRevertedDeployment(t *testing.T) {
	h := newHarness(t, WithGasLimit(100_000))
	ctx := context.Background()

	submission, err := h.submitter.Submit(ctx, h.profile, graph.Step{ID: "bad", Artifact: graph.Artifact{Ref: "Reverts"}}, nil)
	require.NoError(t, err)
	h.backend.Commit()

	_, err = h.submitter.Confirm(ctx, h.profile, submission)
	require.ErrorIs(t, err, ErrReverted)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.submitter.Submit(ctx, h.profile, graph.Step{ID: "a", Artifact: graph.Artifact{Ref: "Answer"}}, []any{"not-an-address", 1})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = h.submitter.Submit(ctx, h.profile, graph.Step{ID: "a", Artifact: graph.Artifact{Ref: "Missing"}}, nil)
	require.ErrorIs(t, err, artifact.ErrUnknownArtifact)
}

func TestPreflightChecksChainID(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.submitter.Preflight(context.Background(), h.profile))

	wrong := h.profile
	wrong.Name = "wrong"
	wrong.ChainID = 31337
	err := h.submitter.Preflight(context.Background(), wrong)
	require.ErrorIs(t, err, ErrChainIDMismatch)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}
