// Package journaltest holds the behaviour every journal implementation must share.
package journaltest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/compose-network/deployctl/internal/domain"
	"github.com/compose-network/deployctl/internal/journal"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty journal. Reopen, when not nil, returns a new
// handle onto the same storage to prove durability across restarts.
type Factory struct {
	New    func(t *testing.T) journal.Journal
	Reopen func(t *testing.T, j journal.Journal) journal.Journal
}

// Record builds a deterministic record for tests.
func Record(network, graph, step string) domain.Record {
	return domain.Record{
		Network:         network,
		Graph:           graph,
		StepID:          step,
		Address:         "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		TxHash:          "0x" + fmt.Sprintf("%064x", len(step)),
		BlockNumber:     7,
		ChainID:         31337,
		ConstructorArgs: "0x",
		RunID:           "run-1",
		DeployedAt:      time.UnixMilli(1_760_000_000_000).UTC(),
	}
}

func Run(t *testing.T, f Factory) {
	t.Run("lookup missing", func(t *testing.T) {
		j := f.New(t)
		_, ok, err := j.Lookup(context.Background(), domain.Key{Network: "localhost", Graph: "g", StepID: "a"})
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("append then lookup", func(t *testing.T) {
		ctx := context.Background()
		j := f.New(t)
		rec := Record("localhost", "g", "a")

		require.NoError(t, j.Append(ctx, rec))

		got, ok, err := j.Lookup(ctx, rec.Key())
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, rec, got)
	})

	t.Run("append is not an upsert", func(t *testing.T) {
		ctx := context.Background()
		j := f.New(t)
		rec := Record("localhost", "g", "a")
		require.NoError(t, j.Append(ctx, rec))

		changed := rec
		changed.Address = "0x0000000000000000000000000000000000000001"
		err := j.Append(ctx, changed)
		require.ErrorIs(t, err, journal.ErrDuplicateRecord)
		require.ErrorIs(t, err, domain.ErrStructural)

		got, _, err := j.Lookup(ctx, rec.Key())
		require.NoError(t, err)
		require.Equal(t, rec.Address, got.Address)
	})

	t.Run("keys are scoped by network and graph", func(t *testing.T) {
		ctx := context.Background()
		j := f.New(t)
		require.NoError(t, j.Append(ctx, Record("localhost", "g", "a")))
		require.NoError(t, j.Append(ctx, Record("sepolia", "g", "a")))
		require.NoError(t, j.Append(ctx, Record("localhost", "other", "a")))

		_, ok, err := j.Lookup(ctx, domain.Key{Network: "mainnet", Graph: "g", StepID: "a"})
		require.NoError(t, err)
		require.False(t, ok)

		records, err := j.Records(ctx, "localhost", "g")
		require.NoError(t, err)
		require.Len(t, records, 1)
	})

	t.Run("records keep append order", func(t *testing.T) {
		ctx := context.Background()
		j := f.New(t)
		for _, step := range []string{"c", "a", "b"} {
			require.NoError(t, j.Append(ctx, Record("localhost", "g", step)))
		}

		records, err := j.Records(ctx, "localhost", "g")
		require.NoError(t, err)
		require.Equal(t, []string{"c", "a", "b"}, stepIDs(records))
	})

	t.Run("rejects incomplete records", func(t *testing.T) {
		j := f.New(t)
		err := j.Append(context.Background(), domain.Record{Network: "localhost"})
		require.Error(t, err)
	})

	t.Run("pending lifecycle", func(t *testing.T) {
		ctx := context.Background()
		j := f.New(t)
		key := domain.Key{Network: "localhost", Graph: "g", StepID: "a"}

		_, ok, err := j.Pending(ctx, key)
		require.NoError(t, err)
		require.False(t, ok)

		first := domain.Submission{TxHash: "0x01", Address: "0xaa", SubmittedAt: time.UnixMilli(1_000).UTC()}
		second := domain.Submission{TxHash: "0x02", Address: "0xbb", SubmittedAt: time.UnixMilli(2_000).UTC()}
		require.NoError(t, j.MarkPending(ctx, key, first))
		require.NoError(t, j.MarkPending(ctx, key, second))

		got, ok, err := j.Pending(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, second, got)

		require.NoError(t, j.ClearPending(ctx, key))
		require.NoError(t, j.ClearPending(ctx, key))
		_, ok, err = j.Pending(ctx, key)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("concurrent appends of one key", func(t *testing.T) {
		ctx := context.Background()
		j := f.New(t)

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := j.Append(ctx, Record("localhost", "g", "a")); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 1, succeeded)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		j := f.New(t)
		require.ErrorIs(t, j.Append(ctx, Record("localhost", "g", "a")), context.Canceled)
	})

	if f.Reopen != nil {
		t.Run("durable across reopen", func(t *testing.T) {
			ctx := context.Background()
			j := f.New(t)
			rec := Record("localhost", "g", "a")
			require.NoError(t, j.Append(ctx, rec))
			require.NoError(t, j.MarkPending(ctx, domain.Key{Network: "localhost", Graph: "g", StepID: "b"}, domain.Submission{TxHash: "0x03", SubmittedAt: time.UnixMilli(3_000).UTC()}))

			reopened := f.Reopen(t, j)
			got, ok, err := reopened.Lookup(ctx, rec.Key())
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, rec, got)

			pending, ok, err := reopened.Pending(ctx, domain.Key{Network: "localhost", Graph: "g", StepID: "b"})
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "0x03", pending.TxHash)

			require.ErrorIs(t, reopened.Append(ctx, rec), journal.ErrDuplicateRecord)
		})
	}
}

func stepIDs(records []domain.Record) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.StepID)
	}
	return ids
}
