package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/compose-network/deployctl/internal/artifact"
	"github.com/compose-network/deployctl/internal/domain"
	"github.com/compose-network/deployctl/internal/graph"
	"github.com/compose-network/deployctl/internal/logger"
	"github.com/compose-network/deployctl/internal/network"
	"github.com/compose-network/deployctl/internal/signer"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	defaultPollInterval = time.Second
	// notFoundPolls is how many consecutive polls must miss a transaction
	// before it is reported unknown. Load-balanced RPC endpoints can lag.
	notFoundPolls = 3
)

var ErrReverted = errors.New("deployment transaction reverted")

type (
	ArtifactSource interface {
		Get(ref string) (artifact.Artifact, error)
	}

	SignerResolver interface {
		Resolve(ref string) (signer.Signer, error)
	}

	SubmitterOption func(*Submitter)

	// Submitter deploys artifacts with bind.DeployContract and waits for receipts.
	Submitter struct {
		clients      *Clients
		artifacts    ArtifactSource
		signers      SignerResolver
		gasLimit     uint64
		pollInterval time.Duration
		logger       *slog.Logger
	}
)

// WithGasLimit fixes the gas limit of deployments. Zero means estimate.
func WithGasLimit(limit uint64) SubmitterOption {
	return func(s *Submitter) {
		s.gasLimit = limit
	}
}

func WithPollInterval(interval time.Duration) SubmitterOption {
	return func(s *Submitter) {
		if interval > 0 {
			s.pollInterval = interval
		}
	}
}

func NewSubmitter(clients *Clients, artifacts ArtifactSource, signers SignerResolver, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		clients:      clients,
		artifacts:    artifacts,
		signers:      signers,
		pollInterval: defaultPollInterval,
		logger:       logger.Named("chain_submitter"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Preflight connects to the network and checks its chain id.
func (s *Submitter) Preflight(ctx context.Context, profile network.Profile) error {
	_, err := s.clients.Get(ctx, profile)
	return err
}

func (s *Submitter) Submit(ctx context.Context, profile network.Profile, step graph.Step, args []any) (domain.Submission, error) {
	art, err := s.artifacts.Get(step.Artifact.Ref)
	if err != nil {
		return domain.Submission{}, err
	}

	converted, err := ConvertArgs(art.ABI.Constructor.Inputs, args)
	if err != nil {
		return domain.Submission{}, err
	}

	encodedArgs, err := art.ABI.Pack("", converted...)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("failed to encode constructor arguments: %w", err)
	}

	client, err := s.clients.Get(ctx, profile)
	if err != nil {
		return domain.Submission{}, err
	}

	deployer, err := s.signers.Resolve(profile.Credential)
	if err != nil {
		return domain.Submission{}, err
	}

	auth, err := deployer.TransactOpts(ctx, big.NewInt(profile.ChainID))
	if err != nil {
		return domain.Submission{}, err
	}
	auth.GasLimit = s.gasLimit

	address, tx, _, err := bind.DeployContract(auth, art.ABI, art.Bytecode, client, converted...)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("failed to deploy contract: %w", err)
	}

	s.logger.
		With("network", profile.Name).
		With("step_id", step.ID).
		With("artifact", art.Name).
		With("address", address.Hex()).
		With("tx_hash", tx.Hash().Hex()).
		Info("contract deployment transaction sent")

	return domain.Submission{
		TxHash:          tx.Hash().Hex(),
		Address:         address.Hex(),
		ConstructorArgs: hex.EncodeToString(encodedArgs),
		SubmittedAt:     time.Now().UTC(),
	}, nil
}

// Confirm polls for the receipt of submission until it is mined or ctx is done.
func (s *Submitter) Confirm(ctx context.Context, profile network.Profile, submission domain.Submission) (domain.Confirmation, error) {
	client, err := s.clients.Get(ctx, profile)
	if err != nil {
		return domain.Confirmation{}, err
	}

	hash := common.HexToHash(submission.TxHash)
	missing := 0

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return confirmation(receipt, submission)

		case errors.Is(err, ethereum.NotFound):
			_, _, txErr := client.TransactionByHash(ctx, hash)
			if errors.Is(txErr, ethereum.NotFound) {
				missing++
				if missing >= notFoundPolls {
					return domain.Confirmation{}, fmt.Errorf("%w: %s", domain.ErrTransactionNotFound, submission.TxHash)
				}
			} else {
				missing = 0
			}

		case ctx.Err() == nil:
			s.logger.With("tx_hash", submission.TxHash).With("err", err).Warn("receipt poll failed, retrying")
		}

		select {
		case <-ctx.Done():
			return domain.Confirmation{}, fmt.Errorf("confirmation of %s not observed: %w", submission.TxHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

func confirmation(receipt *types.Receipt, submission domain.Submission) (domain.Confirmation, error) {
	if receipt.Status != types.ReceiptStatusSuccessful {
		return domain.Confirmation{}, fmt.Errorf("%w: %s in block %s", ErrReverted, submission.TxHash, receipt.BlockNumber)
	}

	address := submission.Address
	if receipt.ContractAddress != (common.Address{}) {
		address = receipt.ContractAddress.Hex()
	}

	return domain.Confirmation{
		Address:     address,
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}
