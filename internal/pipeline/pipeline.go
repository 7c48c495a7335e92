// Package pipeline simulates the multi-stage document processing job that
// turns an uploaded batch into a namespaced project data fragment.
//
// A run moves idle -> running -> settling -> completed, or to cancelled at
// any point before completion. Progress advances on a fixed tick, one stage
// at a time, and is reported through an Observer.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/qa-validator/internal/model"
)

var (
	// ErrEmptySegment is returned when a run is requested without a segment name.
	ErrEmptySegment = errors.New("pipeline: segment name is empty")

	// ErrInvalidOrdinal is returned when the upload ordinal is not positive.
	ErrInvalidOrdinal = errors.New("pipeline: upload ordinal must be positive")
)

// Stage is one named processing step with a nominal duration.
type Stage struct {
	Name     string        `yaml:"name" json:"name"`
	Duration time.Duration `yaml:"duration" json:"duration"`
}

// Config configures a Pipeline.
type Config struct {
	Stages      []Stage
	Tick        time.Duration
	SettleDelay time.Duration
	Logger      *slog.Logger
}

// DefaultConfig returns the tick and settle timings used by the application.
// Stages are left empty; callers supply the stage table.
func DefaultConfig() Config {
	return Config{
		Tick:        100 * time.Millisecond,
		SettleDelay: 500 * time.Millisecond,
	}
}

// Request describes one ingestion.
type Request struct {
	Segment  string
	Ordinal  int
	Template model.Fragment
}

// Pipeline starts runs. Each run is driven by its own goroutine; a Pipeline
// does not prevent overlapping runs, callers serialise uploads themselves.
type Pipeline struct {
	config Config
	logger *slog.Logger
}

// New creates a pipeline, filling zero config fields with defaults.
func New(config Config) *Pipeline {
	def := DefaultConfig()
	if config.Tick <= 0 {
		config.Tick = def.Tick
	}
	if config.SettleDelay <= 0 {
		config.SettleDelay = def.SettleDelay
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	config.Stages = append([]Stage(nil), config.Stages...)

	return &Pipeline{
		config: config,
		logger: config.Logger.With("component", "pipeline"),
	}
}

// Stages returns the configured stage table.
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.config.Stages...)
}

// Start begins a run and returns its handle. Cancelling ctx cancels the run.
func (p *Pipeline) Start(ctx context.Context, req Request, obs Observer) (*Handle, error) {
	req.Segment = strings.TrimSpace(req.Segment)
	if req.Segment == "" {
		return nil, ErrEmptySegment
	}
	if req.Ordinal < 1 {
		return nil, ErrInvalidOrdinal
	}

	run := newRun(ulid.Make().String(), req, p.config.Stages, p.config.Tick, obs)
	h := &Handle{run: run, done: make(chan struct{})}

	p.logger.Info("run started",
		"run_id", run.ID(),
		"segment", req.Segment,
		"ordinal", req.Ordinal,
		"stages", len(p.config.Stages),
	)

	go p.drive(ctx, run, h.done)
	return h, nil
}

// drive advances run on the ticker until it settles, then waits out the
// settle delay before completing it.
func (p *Pipeline) drive(ctx context.Context, run *Run, done chan<- struct{}) {
	defer close(done)
	logger := p.logger.With("run_id", run.ID())

	run.Start()

	ticker := time.NewTicker(p.config.Tick)
	defer ticker.Stop()

	for run.State() == StateRunning {
		select {
		case <-ctx.Done():
			if run.Cancel() {
				logger.Info("run cancelled", "reason", ctx.Err())
			}
			return
		case <-run.cancelCh:
			logger.Info("run cancelled")
			return
		case <-ticker.C:
			run.Tick()
		}
	}
	ticker.Stop()

	if run.State() != StateSettling {
		return
	}

	timer := time.NewTimer(p.config.SettleDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		if run.Cancel() {
			logger.Info("run cancelled while settling", "reason", ctx.Err())
		}
	case <-run.cancelCh:
		logger.Info("run cancelled while settling")
	case <-timer.C:
		if run.Settle() {
			logger.Info("run completed")
		}
	}
}

// Handle controls an in-flight run.
type Handle struct {
	run  *Run
	done chan struct{}
}

// ID returns the run identifier.
func (h *Handle) ID() string { return h.run.ID() }

// Cancel aborts the run. No notification is delivered after it returns.
func (h *Handle) Cancel() { h.run.Cancel() }

// Done is closed once the driving goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run ends or ctx is done and returns the final state.
func (h *Handle) Wait(ctx context.Context) (State, error) {
	select {
	case <-h.done:
		return h.run.State(), nil
	case <-ctx.Done():
		return h.run.State(), ctx.Err()
	}
}

// State returns the run's lifecycle state.
func (h *Handle) State() State { return h.run.State() }

// Progress returns the last reported progress.
func (h *Handle) Progress() float64 { return h.run.Progress() }

// Stages returns a copy of the run's stage list.
func (h *Handle) Stages() []StageState { return h.run.Stages() }
