package store

import (
	"context"
	"fmt"

	"github.com/rcliao/qa-validator/internal/model"
)

// Stats holds aggregate counts.
type Stats struct {
	UploadCount       int            `json:"upload_count"`
	TotalRequirements int            `json:"total_requirements"`
	TotalTestCases    int            `json:"total_test_cases"`
	TotalLinks        int            `json:"total_links"`
	Segments          []SegmentStats `json:"segments"`
}

// SegmentStats holds per-segment counts and that segment's coverage summary.
type SegmentStats struct {
	Name         string                `json:"name"`
	Ordinal      int                   `json:"ordinal"`
	Requirements int                   `json:"requirements"`
	TestCases    int                   `json:"test_cases"`
	Links        int                   `json:"links"`
	Summary      model.CoverageSummary `json:"summary"`
}

// Stats returns totals plus one entry per registered segment, in registry order.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Segments: []SegmentStats{}}

	var err error
	if st.UploadCount, err = s.UploadCount(ctx); err != nil {
		return nil, err
	}
	for table, dst := range map[string]*int{
		"requirements": &st.TotalRequirements,
		"test_cases":   &st.TotalTestCases,
		"trace_links":  &st.TotalLinks,
	} {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(dst); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
	}

	segments, err := s.Segments(ctx)
	if err != nil {
		return nil, err
	}
	for _, seg := range segments {
		v, err := s.Filter(ctx, seg.Name)
		if err != nil {
			return nil, fmt.Errorf("stats for %s: %w", seg.Name, err)
		}
		st.Segments = append(st.Segments, SegmentStats{
			Name:         seg.Name,
			Ordinal:      seg.Ordinal,
			Requirements: len(v.Requirements),
			TestCases:    len(v.TestCases),
			Links:        len(v.Traceability.Links),
			Summary:      v.Traceability.Summary,
		})
	}
	return st, nil
}
