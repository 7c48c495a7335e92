package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// EditRequirement updates the provided fields. A new title is copied onto
// every link pointing at the requirement in the same transaction.
func (s *SQLiteStore) EditRequirement(ctx context.Context, id string, e RequirementEdit) (bool, error) {
	var sets []string
	var args []interface{}
	if e.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *e.Title)
	}
	if e.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, *e.Type)
	}
	if e.Statement != nil {
		sets = append(sets, "description = ?")
		args = append(args, *e.Statement)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	found, err := updateByID(ctx, tx, "requirements", id, sets, args)
	if err != nil || !found {
		return false, err
	}

	if e.Title != nil {
		_, err := tx.ExecContext(ctx,
			`UPDATE trace_links SET requirement_title = ? WHERE requirement_id = ?`, *e.Title, id)
		if err != nil {
			return false, fmt.Errorf("sync link titles: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// EditTestCase updates the title and/or replaces the whole step sequence.
func (s *SQLiteStore) EditTestCase(ctx context.Context, id string, e TestCaseEdit) (bool, error) {
	var sets []string
	var args []interface{}
	if e.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *e.Title)
	}
	if e.Steps != nil {
		steps, err := encodeJSON(e.Steps)
		if err != nil {
			return false, fmt.Errorf("encode steps: %w", err)
		}
		sets = append(sets, "steps = ?")
		args = append(args, steps)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	found, err := updateByID(ctx, tx, "test_cases", id, sets, args)
	if err != nil || !found {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// updateByID applies sets to every row of table with the given id and
// reports whether any row matched. With no sets it only checks existence.
func updateByID(ctx context.Context, tx *sql.Tx, table, id string, sets []string, args []interface{}) (bool, error) {
	if len(sets) == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ? LIMIT 1`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}

	args = append(args, id)
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, table, strings.Join(sets, ", ")), args...)
	if err != nil {
		return false, fmt.Errorf("update %s %s: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
