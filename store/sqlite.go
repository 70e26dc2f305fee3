package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	autogen "github.com/goliatone/go-autogen"
	"github.com/goliatone/go-autogen/jobconfig"
)

// DefaultTable holds job records when no table name is given.
const DefaultTable = "autogen_jobs"

// SQLiteStore persists job records through database/sql. It is written
// against SQLite but only uses portable statements.
type SQLiteStore struct {
	db    *sql.DB
	table string

	schemaOnce sync.Once
	schemaErr  error
}

// NewSQLiteStore builds a store using the given DB and table name.
func NewSQLiteStore(db *sql.DB, table string) *SQLiteStore {
	if table == "" {
		table = DefaultTable
	}
	return &SQLiteStore{db: db, table: table}
}

// Open returns the store described by cfg and a closer for its resources.
// An empty driver selects the in-memory store.
func Open(cfg jobconfig.StoreConfig) (Store, func() error, error) {
	driver := strings.TrimSpace(cfg.Driver)
	switch driver {
	case "", "memory":
		return NewInMemoryStore(), func() error { return nil }, nil
	case "sqlite", "sqlite3":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "autogen.db"
		}
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, nil, autogen.NewError(autogen.ErrInvalidConfig, "open job store", err, map[string]any{"dsn": dsn})
		}
		// a single connection keeps :memory: databases alive across calls
		db.SetMaxOpenConns(1)
		return NewSQLiteStore(db, ""), db.Close, nil
	default:
		return nil, nil, autogen.NewError(autogen.ErrInvalidConfig, fmt.Sprintf("unknown store driver %q", driver), nil, nil)
	}
}

// Load reads the record for jobID, or nil when there is none.
func (s *SQLiteStore) Load(ctx context.Context, jobID string) (*Record, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, nil
	}

	q := fmt.Sprintf(`SELECT %s FROM %s WHERE job_id = ?`, recordColumns, s.table)
	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// SaveIfVersion writes rec if the stored version equals expectedVersion.
func (s *SQLiteStore) SaveIfVersion(ctx context.Context, rec *Record, expectedVersion int) (int, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	rec, expectedVersion, err := normalize(rec, expectedVersion)
	if err != nil {
		return 0, err
	}
	stagesJSON, err := json.Marshal(rec.Stages)
	if err != nil {
		return 0, err
	}
	settings := string(rec.Settings)
	updatedAt := rec.UpdatedAt.UTC().Format(time.RFC3339Nano)

	var result sql.Result
	if expectedVersion == 0 {
		q := fmt.Sprintf(`INSERT OR IGNORE INTO %s (job_id, run_id, pipeline, state, status, completed, stages, settings, version, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`, s.table)
		result, err = s.db.ExecContext(ctx, q,
			rec.JobID, rec.RunID, rec.Pipeline, rec.State, rec.Status, rec.Completed,
			string(stagesJSON), settings, updatedAt,
		)
	} else {
		q := fmt.Sprintf(`UPDATE %s SET run_id=?, pipeline=?, state=?, status=?, completed=?, stages=?, settings=?, version=?, updated_at=?
			WHERE job_id=? AND version=?`, s.table)
		result, err = s.db.ExecContext(ctx, q,
			rec.RunID, rec.Pipeline, rec.State, rec.Status, rec.Completed,
			string(stagesJSON), settings, expectedVersion+1, updatedAt,
			rec.JobID, expectedVersion,
		)
	}
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("save %s: rows affected: %w", rec.JobID, err)
	}
	if rows == 0 {
		return 0, ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

// List returns every record ordered by job id.
func (s *SQLiteStore) List(ctx context.Context) ([]*Record, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT %s FROM %s ORDER BY job_id`, recordColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const recordColumns = `job_id, run_id, pipeline, state, status, completed, stages, settings, version, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var stagesJSON, settings, updatedAt string
	err := row.Scan(
		&rec.JobID,
		&rec.RunID,
		&rec.Pipeline,
		&rec.State,
		&rec.Status,
		&rec.Completed,
		&stagesJSON,
		&settings,
		&rec.Version,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if stagesJSON != "" && stagesJSON != "null" {
		if err := json.Unmarshal([]byte(stagesJSON), &rec.Stages); err != nil {
			return nil, err
		}
	}
	if settings != "" {
		rec.Settings = json.RawMessage(settings)
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		rec.UpdatedAt = ts
	}
	return &rec, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not configured")
	}
	s.schemaOnce.Do(func() {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			job_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			pipeline TEXT,
			state TEXT NOT NULL,
			status TEXT,
			completed BOOLEAN NOT NULL DEFAULT 0,
			stages TEXT,
			settings TEXT,
			version INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		)`, s.table)
		_, s.schemaErr = s.db.ExecContext(ctx, ddl)
	})
	return s.schemaErr
}
