package store

import (
	"context"

	"github.com/rcliao/qa-validator/internal/coverage"
	"github.com/rcliao/qa-validator/internal/model"
)

// Filter returns the entities tagged with segment, in insertion order, along
// with a freshly computed coverage summary. model.AllSegments selects every
// entity; an unknown segment yields empty collections.
func (s *SQLiteStore) Filter(ctx context.Context, segment string) (*View, error) {
	where, args := segmentClause(segment)

	reqs, err := s.queryRequirements(ctx, where, args...)
	if err != nil {
		return nil, err
	}
	tcs, err := s.queryTestCases(ctx, where, args...)
	if err != nil {
		return nil, err
	}
	links, err := s.queryLinks(ctx, where, args...)
	if err != nil {
		return nil, err
	}

	return &View{
		Segment:      segment,
		Requirements: reqs,
		TestCases:    tcs,
		Traceability: Traceability{
			Links:   links,
			Summary: coverage.Summarize(links),
		},
	}, nil
}

func segmentClause(segment string) (string, []interface{}) {
	if segment == model.AllSegments {
		return "", nil
	}
	return " WHERE segment = ?", []interface{}{segment}
}

func (s *SQLiteStore) queryRequirements(ctx context.Context, where string, args ...interface{}) ([]model.Requirement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requirementColumns+` FROM requirements`+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Requirement{}
	for rows.Next() {
		r, err := scanRequirement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) queryTestCases(ctx context.Context, where string, args ...interface{}) ([]model.TestCase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+testCaseColumns+` FROM test_cases`+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.TestCase{}
	for rows.Next() {
		tc, err := scanTestCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) queryLinks(ctx context.Context, where string, args ...interface{}) ([]model.TraceabilityLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM trace_links`+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.TraceabilityLink{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
