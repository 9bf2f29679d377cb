// Package memory provides an in-process journal, used by tests and the
// "memory" journal driver.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/compose-network/deployctl/internal/domain"
	"github.com/compose-network/deployctl/internal/journal"
)

type Store struct {
	mu      sync.RWMutex
	records map[domain.Key]domain.Record
	order   []domain.Key
	pending map[domain.Key]domain.Submission
}

func New() *Store {
	return &Store{
		records: make(map[domain.Key]domain.Record),
		pending: make(map[domain.Key]domain.Submission),
	}
}

func (s *Store) Lookup(ctx context.Context, key domain.Key) (domain.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[key]
	return record, ok, nil
}

func (s *Store) Records(ctx context.Context, network, graph string) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []domain.Record
	for _, key := range s.order {
		if key.Network == network && key.Graph == graph {
			records = append(records, s.records[key])
		}
	}
	return records, nil
}

func (s *Store) Append(ctx context.Context, record domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := journal.Validate(record); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := record.Key()
	if _, exists := s.records[key]; exists {
		return fmt.Errorf("%w: %s", journal.ErrDuplicateRecord, key)
	}
	s.records[key] = record
	s.order = append(s.order, key)
	return nil
}

func (s *Store) Pending(ctx context.Context, key domain.Key) (domain.Submission, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Submission{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	submission, ok := s.pending[key]
	return submission, ok, nil
}

func (s *Store) MarkPending(ctx context.Context, key domain.Key, submission domain.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[key] = submission
	return nil
}

func (s *Store) ClearPending(ctx context.Context, key domain.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, key)
	return nil
}

var _ journal.Journal = (*Store)(nil)
