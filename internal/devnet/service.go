// Package devnet runs a local anvil node in docker that matches the hardhat
// network: chain id 31337 and the same prefunded accounts.
package devnet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/compose-network/deployctl/configs"
	"github.com/compose-network/deployctl/internal/chain"
	"github.com/compose-network/deployctl/internal/infra/docker"
	"github.com/compose-network/deployctl/internal/logger"
)

const (
	anvilPort    = 8545
	readyTimeout = time.Minute
	readyPoll    = 500 * time.Millisecond
)

type (
	Docker interface {
		ImageExists(ctx context.Context, imageName string) (bool, error)
		PullImage(ctx context.Context, imageName string) error
		StartDetached(ctx context.Context, opts docker.DetachedOptions) (string, error)
		ContainerRunning(ctx context.Context, name string) (bool, bool, error)
		RemoveContainer(ctx context.Context, name string) error
	}

	Status struct {
		Exists  bool
		Running bool
		RPCURL  string
	}

	Service struct {
		docker    Docker
		cfg       configs.Devnet
		waitReady func(ctx context.Context, url string) error
		logger    *slog.Logger
	}
)

func NewService(dockerClient Docker, cfg configs.Devnet) *Service {
	return &Service{
		docker: dockerClient,
		cfg:    cfg,
		waitReady: func(ctx context.Context, url string) error {
			return chain.WaitReady(ctx, url, readyPoll)
		},
		logger: logger.Named("devnet"),
	}
}

// Up starts the devnet unless it is already running and waits for its RPC.
func (s *Service) Up(ctx context.Context) (string, error) {
	url := s.rpcURL()

	exists, running, err := s.docker.ContainerRunning(ctx, s.cfg.ContainerName)
	if err != nil {
		return "", err
	}
	if running {
		s.logger.With("rpc_url", url).Info("devnet already running")
		return url, nil
	}
	if exists {
		s.logger.With("name", s.cfg.ContainerName).Info("removing stopped devnet container")
		if err := s.docker.RemoveContainer(ctx, s.cfg.ContainerName); err != nil {
			return "", err
		}
	}

	present, err := s.docker.ImageExists(ctx, s.cfg.Image)
	if err != nil {
		return "", fmt.Errorf("failed to inspect image: %w", err)
	}
	if !present {
		if err := s.docker.PullImage(ctx, s.cfg.Image); err != nil {
			return "", err
		}
	}

	// The foundry image runs its command through "sh -c".
	if _, err := s.docker.StartDetached(ctx, docker.DetachedOptions{
		Name:  s.cfg.ContainerName,
		Image: s.cfg.Image,
		Cmd:   []string{strings.Join(s.anvilArgs(), " ")},
		Ports: map[int]int{anvilPort: s.cfg.Port},
	}); err != nil {
		return "", err
	}

	readyCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := s.waitReady(readyCtx, url); err != nil {
		return "", err
	}

	s.logger.With("rpc_url", url).With("chain_id", s.cfg.ChainID).Info("devnet is ready")

	return url, nil
}

func (s *Service) Down(ctx context.Context) error {
	if err := s.docker.RemoveContainer(ctx, s.cfg.ContainerName); err != nil {
		return err
	}
	s.logger.With("name", s.cfg.ContainerName).Info("devnet removed")
	return nil
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	exists, running, err := s.docker.ContainerRunning(ctx, s.cfg.ContainerName)
	if err != nil {
		return Status{}, err
	}
	return Status{Exists: exists, Running: running, RPCURL: s.rpcURL()}, nil
}

func (s *Service) anvilArgs() []string {
	args := []string{
		"anvil",
		"--host", "0.0.0.0",
		"--port", fmt.Sprint(anvilPort),
		"--chain-id", fmt.Sprint(s.cfg.ChainID),
	}
	if seconds := int(s.cfg.BlockTime.Seconds()); seconds > 0 {
		args = append(args, "--block-time", fmt.Sprint(seconds))
	}
	return args
}

func (s *Service) rpcURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.cfg.Port)
}
