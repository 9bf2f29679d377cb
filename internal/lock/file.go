package lock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/compose-network/deployctl/internal/logger"
	"github.com/gofrs/flock"
)

const defaultRetryDelay = 250 * time.Millisecond

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// FileLocker serializes runs across processes with an advisory file lock
// per (network, graph) under dir. An in-process MemoryLocker is taken first
// so goroutines of one process queue without spinning on the file.
type FileLocker struct {
	dir        string
	retryDelay time.Duration
	local      *MemoryLocker
	logger     *slog.Logger
}

func NewFileLocker(dir string) *FileLocker {
	return &FileLocker{
		dir:        dir,
		retryDelay: defaultRetryDelay,
		local:      NewMemoryLocker(),
		logger:     logger.Named("file_locker"),
	}
}

func (f *FileLocker) Acquire(ctx context.Context, network, graph string) (Release, error) {
	releaseLocal, err := f.local.Acquire(ctx, network, graph)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(f.dir, 0755); err != nil {
		_ = releaseLocal()
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	path := f.path(network, graph)
	fileLock := flock.New(path)

	locked, err := fileLock.TryLockContext(ctx, f.retryDelay)
	if err != nil || !locked {
		_ = releaseLocal()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("failed to acquire run lock '%s': %w", path, err)
	}

	f.logger.With("path", path).Debug("run lock acquired")

	var (
		once       sync.Once
		releaseErr error
	)
	return func() error {
		once.Do(func() {
			if err := fileLock.Unlock(); err != nil {
				releaseErr = fmt.Errorf("failed to release run lock '%s': %w", path, err)
			}
			_ = releaseLocal()
			f.logger.With("path", path).Debug("run lock released")
		})
		return releaseErr
	}, nil
}

func (f *FileLocker) path(network, graph string) string {
	name := unsafeChars.ReplaceAllString(network, "_") + "__" + unsafeChars.ReplaceAllString(graph, "_") + ".lock"
	return filepath.Join(f.dir, name)
}
