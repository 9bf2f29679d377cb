package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/compose-network/deployctl/internal/journal"
	"github.com/compose-network/deployctl/internal/journal/journaltest"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	paths := make(map[journal.Journal]string)

	open := func(t *testing.T, path string) *Store {
		store, err := Open(path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		paths[store] = path
		return store
	}

	journaltest.Run(t, journaltest.Factory{
		New: func(t *testing.T) journal.Journal {
			return open(t, filepath.Join(t.TempDir(), "journal.db"))
		},
		Reopen: func(t *testing.T, j journal.Journal) journal.Journal {
			path := paths[j]
			require.NoError(t, j.(*Store).Close())
			return open(t, path)
		},
	})
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.ErrorContains(t, err, "storage path is required")
}
