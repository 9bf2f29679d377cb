package devnet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/compose-network/deployctl/configs"
	"github.com/compose-network/deployctl/internal/infra/docker"
	"github.com/stretchr/testify/require"
)

type fakeDocker struct {
	images   map[string]bool
	exists   bool
	running  bool
	pulled   []string
	started  []docker.DetachedOptions
	removed  int
	startErr error
}

func (f *fakeDocker) ImageExists(_ context.Context, name string) (bool, error) {
	return f.images[name], nil
}

func (f *fakeDocker) PullImage(_ context.Context, name string) error {
	f.pulled = append(f.pulled, name)
	return nil
}

func (f *fakeDocker) StartDetached(_ context.Context, opts docker.DetachedOptions) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, opts)
	f.exists, f.running = true, true
	return "container-id", nil
}

func (f *fakeDocker) ContainerRunning(context.Context, string) (bool, bool, error) {
	return f.exists, f.running, nil
}

func (f *fakeDocker) RemoveContainer(context.Context, string) error {
	f.removed++
	f.exists, f.running = false, false
	return nil
}

func testConfig() configs.Devnet {
	return configs.Devnet{
		Image:         "ghcr.io/foundry-rs/foundry:latest",
		ContainerName: "deployctl-devnet",
		Port:          18545,
		ChainID:       31337,
		BlockTime:     2 * time.Second,
	}
}

func newTestService(d *fakeDocker) (*Service, *[]string) {
	var waited []string
	s := NewService(d, testConfig())
	s.waitReady = func(_ context.Context, url string) error {
		waited = append(waited, url)
		return nil
	}
	return s, &waited
}

func TestUpStartsAnvil(t *testing.T) {
	d := &fakeDocker{images: map[string]bool{}}
	s, waited := newTestService(d)

	url, err := s.Up(context.Background())
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:18545", url)
	require.Equal(t, []string{"ghcr.io/foundry-rs/foundry:latest"}, d.pulled)
	require.Equal(t, []string{url}, *waited)

	require.Len(t, d.started, 1)
	started := d.started[0]
	require.Equal(t, "deployctl-devnet", started.Name)
	require.Equal(t, map[int]int{8545: 18545}, started.Ports)
	require.Equal(t, []string{"anvil --host 0.0.0.0 --port 8545 --chain-id 31337 --block-time 2"}, started.Cmd)
}

func TestUpIsIdempotent(t *testing.T) {
	d := &fakeDocker{images: map[string]bool{"ghcr.io/foundry-rs/foundry:latest": true}, exists: true, running: true}
	s, _ := newTestService(d)

	_, err := s.Up(context.Background())
	require.NoError(t, err)
	require.Empty(t, d.started)
	require.Empty(t, d.pulled)
}

func TestUpReplacesStoppedContainer(t *testing.T) {
	d := &fakeDocker{images: map[string]bool{"ghcr.io/foundry-rs/foundry:latest": true}, exists: true}
	s, _ := newTestService(d)

	_, err := s.Up(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, d.removed)
	require.Len(t, d.started, 1)
}

func TestUpPropagatesStartFailure(t *testing.T) {
	d := &fakeDocker{images: map[string]bool{"ghcr.io/foundry-rs/foundry:latest": true}, startErr: errors.New("port is already allocated")}
	s, waited := newTestService(d)

	_, err := s.Up(context.Background())
	require.ErrorContains(t, err, "port is already allocated")
	require.Empty(t, *waited)
}

func TestDownAndStatus(t *testing.T) {
	d := &fakeDocker{exists: true, running: true}
	s, _ := newTestService(d)

	status, err := s.Status(context.Background())
	require.NoError(t, err)
	require.True(t, status.Running)

	require.NoError(t, s.Down(context.Background()))

	status, err = s.Status(context.Background())
	require.NoError(t, err)
	require.False(t, status.Exists)
}
