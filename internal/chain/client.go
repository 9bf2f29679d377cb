// Package chain connects deployctl to EVM networks over JSON-RPC.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/compose-network/deployctl/internal/domain"
	"github.com/compose-network/deployctl/internal/logger"
	"github.com/compose-network/deployctl/internal/network"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

var ErrChainIDMismatch = fmt.Errorf("chain id mismatch: %w", domain.ErrConfiguration)

type (
	// Backend is the subset of *ethclient.Client deployctl needs.
	Backend interface {
		bind.ContractBackend
		ChainID(ctx context.Context) (*big.Int, error)
		TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
		TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	}

	DialFunc func(ctx context.Context, rawURL string) (Backend, error)

	// Clients caches one verified connection per network.
	Clients struct {
		dial    DialFunc
		mu      sync.Mutex
		clients map[string]Backend
		logger  *slog.Logger
	}
)

func DialEthclient(ctx context.Context, rawURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func NewClients(dial DialFunc) *Clients {
	if dial == nil {
		dial = DialEthclient
	}
	return &Clients{
		dial:    dial,
		clients: make(map[string]Backend),
		logger:  logger.Named("chain_clients"),
	}
}

// Get returns a connection to the profile's endpoint, dialing it on first use
// and checking that the node serves the configured chain id.
func (c *Clients) Get(ctx context.Context, profile network.Profile) (Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[profile.Name]; ok {
		return client, nil
	}

	client, err := c.dial(ctx, profile.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", profile.RPCURL, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		closeBackend(client)
		return nil, fmt.Errorf("failed to get chain ID from %s: %w", profile.RPCURL, err)
	}
	if chainID.Cmp(big.NewInt(profile.ChainID)) != 0 {
		closeBackend(client)
		return nil, fmt.Errorf("%w: network '%s' expects %d, node at %s reports %s",
			ErrChainIDMismatch, profile.Name, profile.ChainID, profile.RPCURL, chainID)
	}

	c.logger.With("network", profile.Name).With("chain_id", chainID).Debug("connected")
	c.clients[profile.Name] = client

	return client, nil
}

func (c *Clients) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, client := range c.clients {
		closeBackend(client)
		delete(c.clients, name)
	}
}

// WaitReady polls url until it answers eth_blockNumber or ctx is done.
func WaitReady(ctx context.Context, url string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		client, err := ethclient.DialContext(ctx, url)
		if err == nil {
			_, err = client.BlockNumber(ctx)
			client.Close()
			if err == nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for RPC at %s: %w", url, err)
		case <-ticker.C:
		}
	}
}

func closeBackend(client Backend) {
	if closer, ok := client.(interface{ Close() }); ok {
		closer.Close()
	}
}
