package chain

import (
	"context"
	"fmt"

	"github.com/compose-network/deployctl/internal/network"
	"github.com/ethereum/go-ethereum/common"
)

// CodeReader reads deployed bytecode at the latest block.
type CodeReader struct {
	clients *Clients
}

func NewCodeReader(clients *Clients) *CodeReader {
	return &CodeReader{clients: clients}
}

func (c *CodeReader) CodeAt(ctx context.Context, profile network.Profile, address string) ([]byte, error) {
	client, err := c.clients.Get(ctx, profile)
	if err != nil {
		return nil, err
	}

	code, err := client.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read code at %s: %w", address, err)
	}
	return code, nil
}
