package store

import (
	"context"

	"github.com/rcliao/qa-validator/internal/model"
)

// ExportAll returns the complete aggregate: registry, upload count and every
// entity in insertion order.
func (s *SQLiteStore) ExportAll(ctx context.Context) (*Snapshot, error) {
	segments, err := s.Segments(ctx)
	if err != nil {
		return nil, err
	}
	count, err := s.UploadCount(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.Filter(ctx, model.AllSegments)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Segments:     segments,
		UploadCount:  count,
		Requirements: v.Requirements,
		TestCases:    v.TestCases,
		Links:        v.Traceability.Links,
	}, nil
}
