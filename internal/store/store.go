// Package store provides the project data storage interface and its
// in-memory SQLite implementation.
package store

import (
	"context"

	"github.com/rcliao/qa-validator/internal/model"
)

// RequirementEdit holds the editable requirement fields. Nil fields are left unchanged.
type RequirementEdit struct {
	Title     *string
	Type      *string
	Statement *string
}

// TestCaseEdit holds the editable test case fields. Nil Title is left
// unchanged; a nil Steps slice leaves the steps alone, while a non-nil one
// (even empty) replaces the whole sequence.
type TestCaseEdit struct {
	Title *string
	Steps []model.TestStep
}

// Traceability is the filtered link set with its derived summary.
type Traceability struct {
	Links   []model.TraceabilityLink `json:"links"`
	Summary model.CoverageSummary    `json:"summary"`
}

// View is the projection of the aggregate data onto one segment selector.
type View struct {
	Segment      string              `json:"segment"`
	Requirements []model.Requirement `json:"requirements"`
	TestCases    []model.TestCase    `json:"testCases"`
	Traceability Traceability        `json:"traceability"`
}

// Snapshot is the complete aggregate state.
type Snapshot struct {
	Segments     []model.Segment          `json:"segments"`
	UploadCount  int                      `json:"uploadCount"`
	Requirements []model.Requirement      `json:"requirements"`
	TestCases    []model.TestCase         `json:"testCases"`
	Links        []model.TraceabilityLink `json:"links"`
}

// Store defines the project data storage interface.
type Store interface {
	// MergeFragment appends every entity of f and registers segment if it is new.
	// Identifiers are not deduplicated.
	MergeFragment(ctx context.Context, f model.Fragment, segment string) error

	// Filter projects the aggregate onto a segment, or onto everything for
	// model.AllSegments. It is recomputed on every call.
	Filter(ctx context.Context, segment string) (*View, error)

	// EditRequirement applies e to the requirement with the given id and keeps
	// link titles in sync. It reports whether the requirement exists; a
	// missing id is not an error.
	EditRequirement(ctx context.Context, id string, e RequirementEdit) (bool, error)

	// EditTestCase applies e to the test case with the given id. It reports
	// whether the test case exists; a missing id is not an error.
	EditTestCase(ctx context.Context, id string, e TestCaseEdit) (bool, error)

	// Segments lists the registry in first-registration order.
	Segments(ctx context.Context) ([]model.Segment, error)

	// UploadCount returns the number of fragments merged since the last reset.
	UploadCount(ctx context.Context) (int, error)

	// Stats returns totals and per-segment counts.
	Stats(ctx context.Context) (*Stats, error)

	// ExportAll returns the complete aggregate state.
	ExportAll(ctx context.Context) (*Snapshot, error)

	// Reset clears all data, the registry and the upload count.
	Reset(ctx context.Context) error

	// Close closes the store.
	Close() error
}
