// Package store persists scan results to PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scripthound/api/schemas"
)

// DBPool abstracts pgxpool.Pool so the store can be exercised against a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store provides a PostgreSQL implementation of result persistence.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// PersistResults writes all findings and call sites of a finished scan in one
// transaction.
func (s *Store) PersistResults(ctx context.Context, report *schemas.ScanReport) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit returns ErrTxClosed, which is fine.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	var findings []schemas.Finding
	var sites []schemas.CallSiteRecord
	for i := range report.Analyses {
		findings = append(findings, report.Analyses[i].Findings...)
		sites = append(sites, report.Analyses[i].CallSites...)
	}

	if len(findings) > 0 {
		if err := s.persistFindings(ctx, tx, findings); err != nil {
			return err
		}
	}
	if len(sites) > 0 {
		if err := s.persistCallSites(ctx, tx, sites); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) persistFindings(ctx context.Context, tx pgx.Tx, findings []schemas.Finding) error {
	rows := make([][]interface{}, len(findings))
	for i, f := range findings {
		evidence := f.Evidence
		if len(evidence) == 0 || string(evidence) == "null" {
			evidence = json.RawMessage("{}")
		}

		rows[i] = []interface{}{
			f.ID, f.ScanID, f.TaskID,
			f.Target, f.Module, f.VulnerabilityName,
			string(f.Severity), f.Description,
			evidence,
			f.Recommendation, f.CWE,
			f.ObservedAt.UTC(),
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"findings"},
		[]string{"id", "scan_id", "task_id", "target", "module", "vulnerability_name", "severity", "description", "evidence", "recommendation", "cwe", "observed_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy findings: %w", err)
	}
	if int(copyCount) != len(findings) {
		return fmt.Errorf("mismatch in copied findings count: expected %d, got %d", len(findings), copyCount)
	}
	return nil
}

func (s *Store) persistCallSites(ctx context.Context, tx pgx.Tx, sites []schemas.CallSiteRecord) error {
	rows := make([][]interface{}, len(sites))
	for i, c := range sites {
		rows[i] = []interface{}{
			c.ScanID, c.TaskID, c.SourceURL,
			c.Method, c.URL, c.SinkType,
			c.Enclosing, c.ParamCount,
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"call_sites"},
		[]string{"scan_id", "task_id", "source_url", "method", "url", "sink_type", "enclosing_function", "param_count"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy call sites: %w", err)
	}
	if int(copyCount) != len(sites) {
		return fmt.Errorf("mismatch in copied call site count: expected %d, got %d", len(sites), copyCount)
	}
	return nil
}
