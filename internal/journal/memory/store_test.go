package memory

import (
	"testing"

	"github.com/compose-network/deployctl/internal/journal"
	"github.com/compose-network/deployctl/internal/journal/journaltest"
)

func TestStore(t *testing.T) {
	journaltest.Run(t, journaltest.Factory{
		New: func(*testing.T) journal.Journal { return New() },
	})
}
