// Package jsonfile persists the journal as one JSON document per
// (network, graph) pair under a root directory.
package jsonfile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"sync"

	"github.com/compose-network/deployctl/internal/domain"
	"github.com/compose-network/deployctl/internal/infra/filesystem"
	"github.com/compose-network/deployctl/internal/journal"
	"github.com/compose-network/deployctl/internal/logger"
)

const fileExtension = ".json"

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

	errForeignDocument = errors.New("journal document belongs to another network or graph")
)

type (
	document struct {
		Network string                       `json:"network"`
		Graph   string                       `json:"graph"`
		Records []domain.Record              `json:"records"`
		Pending map[string]domain.Submission `json:"pending,omitempty"`
	}

	// Store keeps journal documents on disk. Writes go through the
	// atomic filesystem writer so a crash never leaves a torn document.
	Store struct {
		rootDir string
		reader  filesystem.Reader
		writer  filesystem.Writer
		mu      sync.Mutex
		logger  *slog.Logger
	}
)

func New(rootDir string, reader filesystem.Reader, writer filesystem.Writer) *Store {
	return &Store{
		rootDir: rootDir,
		reader:  reader,
		writer:  writer,
		logger:  logger.Named("journal_jsonfile"),
	}
}

func (s *Store) Lookup(ctx context.Context, key domain.Key) (domain.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(key.Network, key.Graph)
	if err != nil {
		return domain.Record{}, false, err
	}

	i := slices.IndexFunc(doc.Records, func(r domain.Record) bool { return r.StepID == key.StepID })
	if i < 0 {
		return domain.Record{}, false, nil
	}
	return doc.Records[i], true, nil
}

func (s *Store) Records(ctx context.Context, network, graph string) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(network, graph)
	if err != nil {
		return nil, err
	}
	return doc.Records, nil
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

	doc, err := s.load(record.Network, record.Graph)
	if err != nil {
		return err
	}

	if slices.ContainsFunc(doc.Records, func(r domain.Record) bool { return r.StepID == record.StepID }) {
		return fmt.Errorf("%w: %s", journal.ErrDuplicateRecord, record.Key())
	}

	doc.Records = append(doc.Records, record)
	if err := s.save(doc); err != nil {
		return err
	}

	s.logger.
		With("network", record.Network).
		With("graph", record.Graph).
		With("step_id", record.StepID).
		Debug("record appended")

	return nil
}

func (s *Store) Pending(ctx context.Context, key domain.Key) (domain.Submission, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Submission{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(key.Network, key.Graph)
	if err != nil {
		return domain.Submission{}, false, err
	}

	submission, ok := doc.Pending[key.StepID]
	return submission, ok, nil
}

func (s *Store) MarkPending(ctx context.Context, key domain.Key, submission domain.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(key.Network, key.Graph)
	if err != nil {
		return err
	}

	if doc.Pending == nil {
		doc.Pending = make(map[string]domain.Submission)
	}
	doc.Pending[key.StepID] = submission
	return s.save(doc)
}

func (s *Store) ClearPending(ctx context.Context, key domain.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(key.Network, key.Graph)
	if err != nil {
		return err
	}

	if _, ok := doc.Pending[key.StepID]; !ok {
		return nil
	}
	delete(doc.Pending, key.StepID)
	return s.save(doc)
}

func (s *Store) load(network, graph string) (document, error) {
	doc := document{Network: network, Graph: graph}

	if err := s.reader.ReadJSON(s.path(network, graph), &doc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return document{Network: network, Graph: graph}, nil
		}
		return document{}, fmt.Errorf("failed to load journal for %s/%s: %w", network, graph, err)
	}

	if doc.Network != network || doc.Graph != graph {
		return document{}, fmt.Errorf("%w: %s holds %s/%s, wanted %s/%s",
			errForeignDocument, s.path(network, graph), doc.Network, doc.Graph, network, graph)
	}

	return doc, nil
}

func (s *Store) save(doc document) error {
	if err := s.writer.WriteJSON(s.path(doc.Network, doc.Graph), doc); err != nil {
		return fmt.Errorf("failed to save journal for %s/%s: %w", doc.Network, doc.Graph, err)
	}
	return nil
}

func (s *Store) path(network, graph string) string {
	return filepath.Join(s.rootDir, fileName(network), fileName(graph)+fileExtension)
}

// fileName keeps safe names as they are. Names that need replacing get a
// hash of the raw name appended so that "a/b" and "a_b" stay apart.
func fileName(name string) string {
	safe := unsafeChars.ReplaceAllString(name, "_")
	if safe == name && name != "." && name != ".." {
		return name
	}
	sum := sha256.Sum256([]byte(name))
	return safe + "-" + hex.EncodeToString(sum[:4])
}

var _ journal.Journal = (*Store)(nil)
