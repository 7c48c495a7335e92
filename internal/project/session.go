// Package project owns one working session: the aggregate store, the active
// segment selector and the single in-flight upload.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rcliao/qa-validator/internal/model"
	"github.com/rcliao/qa-validator/internal/namespace"
	"github.com/rcliao/qa-validator/internal/pipeline"
	"github.com/rcliao/qa-validator/internal/store"
)

var (
	ErrInvalidSegment   = errors.New("project: invalid segment name")
	ErrDuplicateSegment = errors.New("project: a segment with this name already exists")
	ErrNoFiles          = errors.New("project: no files selected")
	ErrUnsupportedFile  = errors.New("project: unsupported file type")
	ErrUploadInProgress = errors.New("project: an upload is already in progress")
	ErrInvalidEdit      = errors.New("project: invalid edit")
)

// ChangeKind says what changed.
type ChangeKind string

const (
	ChangeMerge  ChangeKind = "merge"
	ChangeEdit   ChangeKind = "edit"
	ChangeReset  ChangeKind = "reset"
	ChangeSelect ChangeKind = "select"
)

// Change is delivered to subscribers after the session state changed.
// Segment is set for merges and selection, ID for edits.
type Change struct {
	Kind    ChangeKind
	Segment string
	ID      string
}

// UploadRequest is one batch of documents to ingest under a new segment.
type UploadRequest struct {
	Segment string
	Files   []string
}

// Session is the single owner of project data for one operator.
type Session struct {
	store    store.Store
	pipeline *pipeline.Pipeline
	template model.Fragment
	logger   *slog.Logger

	mu         sync.Mutex
	selected   string
	inflight   *pipeline.Handle
	generation uint64 // bumped by Reset; completions from older generations are dropped
	lastErr    error
	subs       map[int]func(Change)
	nextSub    int
}

// New creates a session over st. template is the fragment every upload
// produces before namespacing.
func New(st store.Store, p *pipeline.Pipeline, template model.Fragment, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		store:    st,
		pipeline: p,
		template: template,
		logger:   logger.With("component", "project"),
		selected: model.AllSegments,
		subs:     make(map[int]func(Change)),
	}
}

// Subscribe registers fn for every subsequent change and returns a function
// that removes it. fn may be called from the pipeline goroutine.
func (s *Session) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Session) notify(c Change) {
	s.mu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Select sets the active segment selector. An empty name selects everything.
// Unknown names are accepted and simply produce an empty view.
func (s *Session) Select(segment string) {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		segment = model.AllSegments
	}
	s.mu.Lock()
	s.selected = segment
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeSelect, Segment: segment})
}

// Selected returns the active segment selector.
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// View projects the store onto the active selector.
func (s *Session) View(ctx context.Context) (*store.View, error) {
	return s.store.Filter(ctx, s.Selected())
}

// Store exposes the underlying store for read-only queries such as stats and export.
func (s *Session) Store() store.Store { return s.store }

// Busy reports whether an upload is still in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busyLocked()
}

func (s *Session) busyLocked() bool {
	if s.inflight == nil {
		return false
	}
	select {
	case <-s.inflight.Done():
		s.inflight = nil
		return false
	default:
		return true
	}
}

// Upload validates req and starts the ingestion pipeline. The namespaced
// fragment is merged into the store before obs sees the completion event;
// if the merge fails obs never sees it and LastError reports why.
// Cancelling the returned handle, or ctx, leaves the store untouched.
func (s *Session) Upload(ctx context.Context, req UploadRequest, obs pipeline.Observer) (*pipeline.Handle, error) {
	if err := ValidateFiles(req.Files); err != nil {
		s.logger.Warn("upload rejected", "error", err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busyLocked() {
		s.logger.Warn("upload rejected", "error", ErrUploadInProgress)
		return nil, ErrUploadInProgress
	}
	name, ordinal, err := s.prepareLocked(ctx, req.Segment)
	if err != nil {
		return nil, err
	}

	gen := s.generation
	s.lastErr = nil

	completion := pipeline.ObserverFunc(func(e pipeline.Event) {
		if e.Type != pipeline.EventComplete || e.Fragment == nil {
			if obs != nil {
				obs.OnEvent(e)
			}
			return
		}
		// The upload context may be done by now; the run already completed.
		merged, err := s.mergeCompleted(context.WithoutCancel(ctx), gen, *e.Fragment, name)
		if err != nil {
			s.logger.Error("merge failed", "run_id", e.RunID, "segment", name, "error", err)
			return
		}
		if !merged {
			s.logger.Info("completion dropped after reset", "run_id", e.RunID, "segment", name)
			return
		}
		s.notify(Change{Kind: ChangeMerge, Segment: name})
		if obs != nil {
			obs.OnEvent(e)
		}
	})

	h, err := s.pipeline.Start(ctx, pipeline.Request{
		Segment:  name,
		Ordinal:  ordinal,
		Template: s.template,
	}, completion)
	if err != nil {
		return nil, fmt.Errorf("start pipeline: %w", err)
	}
	s.inflight = h
	return h, nil
}

// mergeCompleted merges a finished run's fragment unless a Reset happened
// since the run started. Holding mu serialises it against Reset.
func (s *Session) mergeCompleted(ctx context.Context, gen uint64, f model.Fragment, segment string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false, nil
	}
	if err := s.store.MergeFragment(ctx, f, segment); err != nil {
		s.lastErr = fmt.Errorf("merge %s: %w", segment, err)
		return false, s.lastErr
	}
	return true, nil
}

// LastError returns the merge failure of the most recent upload, if any.
// A failed merge withholds the completion event from the upload's observer.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Import merges an already parsed fragment under a new segment without
// running the pipeline. Identifiers are namespaced exactly as for an upload.
func (s *Session) Import(ctx context.Context, segment string, f model.Fragment) (model.Fragment, error) {
	s.mu.Lock()
	if s.busyLocked() {
		s.mu.Unlock()
		return model.Fragment{}, ErrUploadInProgress
	}
	name, ordinal, err := s.prepareLocked(ctx, segment)
	if err != nil {
		s.mu.Unlock()
		return model.Fragment{}, err
	}
	nf := namespace.Apply(f, namespace.Prefix(name, ordinal), name)
	err = s.store.MergeFragment(ctx, nf, name)
	s.mu.Unlock()
	if err != nil {
		return model.Fragment{}, fmt.Errorf("import %s: %w", name, err)
	}

	s.logger.Info("fragment imported", "segment", name, "ordinal", ordinal,
		"requirements", len(nf.Requirements), "test_cases", len(nf.TestCases), "links", len(nf.Links))
	s.notify(Change{Kind: ChangeMerge, Segment: name})
	return nf, nil
}

// prepareLocked validates the segment name and returns it trimmed together
// with the ordinal the next merge will receive.
func (s *Session) prepareLocked(ctx context.Context, segment string) (string, int, error) {
	registered, err := s.store.Segments(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("list segments: %w", err)
	}
	name, err := ValidateSegmentName(segment, registered)
	if err != nil {
		s.logger.Warn("upload rejected", "segment", segment, "error", err)
		return "", 0, err
	}
	count, err := s.store.UploadCount(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("upload count: %w", err)
	}
	return name, count + 1, nil
}

// EditRequirement validates e and applies it. An unknown id is reported as
// false without error and changes nothing.
func (s *Session) EditRequirement(ctx context.Context, id string, e store.RequirementEdit) (bool, error) {
	if err := validateRequirementEdit(e); err != nil {
		return false, err
	}
	found, err := s.store.EditRequirement(ctx, id, e)
	if err != nil {
		return false, fmt.Errorf("edit requirement %s: %w", id, err)
	}
	if found {
		s.notify(Change{Kind: ChangeEdit, ID: id})
	}
	return found, nil
}

// EditTestCase validates e and applies it. An unknown id is reported as
// false without error and changes nothing.
func (s *Session) EditTestCase(ctx context.Context, id string, e store.TestCaseEdit) (bool, error) {
	if err := validateTestCaseEdit(e); err != nil {
		return false, err
	}
	found, err := s.store.EditTestCase(ctx, id, e)
	if err != nil {
		return false, fmt.Errorf("edit test case %s: %w", id, err)
	}
	if found {
		s.notify(Change{Kind: ChangeEdit, ID: id})
	}
	return found, nil
}

// Reset cancels any in-flight upload, clears the store and selects all
// segments. A run that already completed but has not merged yet is discarded.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	if s.inflight != nil {
		s.inflight.Cancel()
		s.inflight = nil
	}
	s.lastErr = nil
	if err := s.store.Reset(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("reset: %w", err)
	}
	s.selected = model.AllSegments
	s.mu.Unlock()

	s.logger.Info("session reset")
	s.notify(Change{Kind: ChangeReset, Segment: model.AllSegments})
	return nil
}
