// Package sqlite provides a SQLite-backed journal.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/compose-network/deployctl/internal/domain"
	"github.com/compose-network/deployctl/internal/journal"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schemaSQL string

// Store persists deployment records in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite journal and applies the embedded schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Lookup(ctx context.Context, key domain.Key) (domain.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, false, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT network, graph, step_id, address, tx_hash, block_number, chain_id, constructor_args, run_id, deployed_at
		   FROM deployment_records
		  WHERE network = ? AND graph = ? AND step_id = ?`,
		key.Network, key.Graph, key.StepID,
	)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, false, nil
	}
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("lookup record %s: %w", key, err)
	}
	return record, true, nil
}

func (s *Store) Records(ctx context.Context, network, graph string) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT network, graph, step_id, address, tx_hash, block_number, chain_id, constructor_args, run_id, deployed_at
		   FROM deployment_records
		  WHERE network = ? AND graph = ?
		  ORDER BY seq`,
		network, graph,
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
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

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO deployment_records (
		   network,
		   graph,
		   step_id,
		   address,
		   tx_hash,
		   block_number,
		   chain_id,
		   constructor_args,
		   run_id,
		   deployed_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Network,
		record.Graph,
		record.StepID,
		record.Address,
		record.TxHash,
		int64(record.BlockNumber),
		record.ChainID,
		record.ConstructorArgs,
		record.RunID,
		toMillis(record.DeployedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", journal.ErrDuplicateRecord, record.Key())
		}
		return fmt.Errorf("insert record %s: %w", record.Key(), err)
	}
	return nil
}

func (s *Store) Pending(ctx context.Context, key domain.Key) (domain.Submission, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Submission{}, false, err
	}

	var (
		submission  domain.Submission
		submittedAt int64
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT tx_hash, address, constructor_args, submitted_at
		   FROM pending_submissions
		  WHERE network = ? AND graph = ? AND step_id = ?`,
		key.Network, key.Graph, key.StepID,
	).Scan(&submission.TxHash, &submission.Address, &submission.ConstructorArgs, &submittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, false, nil
	}
	if err != nil {
		return domain.Submission{}, false, fmt.Errorf("lookup pending %s: %w", key, err)
	}

	submission.SubmittedAt = fromMillis(submittedAt)
	return submission, true, nil
}

func (s *Store) MarkPending(ctx context.Context, key domain.Key, submission domain.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO pending_submissions (network, graph, step_id, tx_hash, address, constructor_args, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (network, graph, step_id) DO UPDATE SET
		   tx_hash = excluded.tx_hash,
		   address = excluded.address,
		   constructor_args = excluded.constructor_args,
		   submitted_at = excluded.submitted_at`,
		key.Network,
		key.Graph,
		key.StepID,
		submission.TxHash,
		submission.Address,
		submission.ConstructorArgs,
		toMillis(submission.SubmittedAt),
	)
	if err != nil {
		return fmt.Errorf("mark pending %s: %w", key, err)
	}
	return nil
}

func (s *Store) ClearPending(ctx context.Context, key domain.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM pending_submissions WHERE network = ? AND graph = ? AND step_id = ?`,
		key.Network, key.Graph, key.StepID,
	); err != nil {
		return fmt.Errorf("clear pending %s: %w", key, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.Record, error) {
	var (
		record      domain.Record
		blockNumber int64
		deployedAt  int64
	)
	if err := row.Scan(
		&record.Network,
		&record.Graph,
		&record.StepID,
		&record.Address,
		&record.TxHash,
		&blockNumber,
		&record.ChainID,
		&record.ConstructorArgs,
		&record.RunID,
		&deployedAt,
	); err != nil {
		return domain.Record{}, err
	}
	record.BlockNumber = uint64(blockNumber)
	record.DeployedAt = fromMillis(deployedAt)
	return record, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ journal.Journal = (*Store)(nil)
