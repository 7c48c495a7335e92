package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/rcliao/qa-validator/internal/model"
)

// SQLiteStore implements Store on an in-memory SQLite database. Nothing is
// written to disk; the data lives as long as the store is open.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a fresh in-memory database.
func NewSQLiteStore() (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS requirements (
		seq         INTEGER PRIMARY KEY,
		id          TEXT NOT NULL,
		title       TEXT NOT NULL,
		description TEXT NOT NULL,
		type        TEXT NOT NULL,
		priority    TEXT NOT NULL,
		status      TEXT NOT NULL,
		segment     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_requirements_id ON requirements(id);
	CREATE INDEX IF NOT EXISTS idx_requirements_segment ON requirements(segment);

	CREATE TABLE IF NOT EXISTS test_cases (
		seq                 INTEGER PRIMARY KEY,
		id                  TEXT NOT NULL,
		title               TEXT NOT NULL,
		description         TEXT NOT NULL,
		type                TEXT NOT NULL,
		priority            TEXT NOT NULL,
		status              TEXT NOT NULL,
		steps               TEXT,
		linked_requirements TEXT,
		segment             TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_test_cases_id ON test_cases(id);
	CREATE INDEX IF NOT EXISTS idx_test_cases_segment ON test_cases(segment);

	CREATE TABLE IF NOT EXISTS trace_links (
		seq               INTEGER PRIMARY KEY,
		requirement_id    TEXT NOT NULL,
		requirement_title TEXT NOT NULL,
		linked_test_cases TEXT,
		coverage          TEXT NOT NULL,
		segment           TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trace_links_req ON trace_links(requirement_id);
	CREATE INDEX IF NOT EXISTS idx_trace_links_segment ON trace_links(segment);

	CREATE TABLE IF NOT EXISTS segments (
		seq     INTEGER PRIMARY KEY,
		name    TEXT NOT NULL UNIQUE,
		ordinal INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS upload_counter (
		id    INTEGER PRIMARY KEY CHECK (id = 1),
		count INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO upload_counter (id, count) VALUES (1, 0);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) MergeFragment(ctx context.Context, f model.Fragment, segment string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE upload_counter SET count = count + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("bump upload count: %w", err)
	}
	var ordinal int
	if err := tx.QueryRowContext(ctx, `SELECT count FROM upload_counter WHERE id = 1`).Scan(&ordinal); err != nil {
		return fmt.Errorf("read upload count: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO segments (name, ordinal) VALUES (?, ?)`, segment, ordinal); err != nil {
		return fmt.Errorf("register segment: %w", err)
	}

	for _, r := range f.Requirements {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO requirements (id, title, description, type, priority, status, segment)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Title, r.Statement, r.Type, r.Priority, r.Status, r.Segment)
		if err != nil {
			return fmt.Errorf("insert requirement %s: %w", r.ID, err)
		}
	}

	for _, tc := range f.TestCases {
		steps, err := encodeJSON(tc.Steps)
		if err != nil {
			return fmt.Errorf("encode steps of %s: %w", tc.ID, err)
		}
		linked, err := encodeJSON(tc.LinkedRequirements)
		if err != nil {
			return fmt.Errorf("encode links of %s: %w", tc.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO test_cases (id, title, description, type, priority, status, steps, linked_requirements, segment)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tc.ID, tc.Title, tc.Description, tc.Type, tc.Priority, tc.Status, steps, linked, tc.Segment)
		if err != nil {
			return fmt.Errorf("insert test case %s: %w", tc.ID, err)
		}
	}

	for _, l := range f.Links {
		linked, err := encodeJSON(l.LinkedTestCases)
		if err != nil {
			return fmt.Errorf("encode link %s: %w", l.RequirementID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO trace_links (requirement_id, requirement_title, linked_test_cases, coverage, segment)
			 VALUES (?, ?, ?, ?, ?)`,
			l.RequirementID, l.RequirementTitle, linked, string(l.Coverage), l.Segment)
		if err != nil {
			return fmt.Errorf("insert link %s: %w", l.RequirementID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Segments(ctx context.Context) ([]model.Segment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, ordinal FROM segments ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	segments := []model.Segment{}
	for rows.Next() {
		var seg model.Segment
		if err := rows.Scan(&seg.Name, &seg.Ordinal); err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

func (s *SQLiteStore) UploadCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count FROM upload_counter WHERE id = 1`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM requirements`,
		`DELETE FROM test_cases`,
		`DELETE FROM trace_links`,
		`DELETE FROM segments`,
		`UPDATE upload_counter SET count = 0 WHERE id = 1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

const requirementColumns = `id, title, description, type, priority, status, segment`

func scanRequirement(row scanner) (model.Requirement, error) {
	var r model.Requirement
	err := row.Scan(&r.ID, &r.Title, &r.Statement, &r.Type, &r.Priority, &r.Status, &r.Segment)
	return r, err
}

const testCaseColumns = `id, title, description, type, priority, status, steps, linked_requirements, segment`

func scanTestCase(row scanner) (model.TestCase, error) {
	var tc model.TestCase
	var steps, linked sql.NullString

	err := row.Scan(&tc.ID, &tc.Title, &tc.Description, &tc.Type, &tc.Priority, &tc.Status,
		&steps, &linked, &tc.Segment)
	if err != nil {
		return tc, err
	}
	if err := decodeJSON(steps, &tc.Steps); err != nil {
		return tc, fmt.Errorf("decode steps of %s: %w", tc.ID, err)
	}
	if err := decodeJSON(linked, &tc.LinkedRequirements); err != nil {
		return tc, fmt.Errorf("decode links of %s: %w", tc.ID, err)
	}
	return tc, nil
}

const linkColumns = `requirement_id, requirement_title, linked_test_cases, coverage, segment`

func scanLink(row scanner) (model.TraceabilityLink, error) {
	var l model.TraceabilityLink
	var linked sql.NullString
	var cov string

	err := row.Scan(&l.RequirementID, &l.RequirementTitle, &linked, &cov, &l.Segment)
	if err != nil {
		return l, err
	}
	l.Coverage = model.Coverage(cov)
	if err := decodeJSON(linked, &l.LinkedTestCases); err != nil {
		return l, fmt.Errorf("decode link %s: %w", l.RequirementID, err)
	}
	return l, nil
}

// encodeJSON stores nil slices as NULL so they read back as nil.
func encodeJSON[T any](v []T) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	str := string(b)
	return &str, nil
}

func decodeJSON[T any](ns sql.NullString, dst *[]T) error {
	if !ns.Valid {
		*dst = nil
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dst)
}
