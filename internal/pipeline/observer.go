package pipeline

import (
	"log/slog"

	"github.com/rcliao/qa-validator/internal/model"
)

// EventType classifies run notifications.
type EventType string

const (
	EventProgress EventType = "progress"
	EventStages   EventType = "stages"
	EventComplete EventType = "complete"
)

// Event is a single run notification. Stages is set for EventStages and
// Fragment for EventComplete.
type Event struct {
	Type     EventType
	RunID    string
	Segment  string
	Progress float64
	Stages   []StageState
	Fragment *model.Fragment
}

// Observer receives run notifications, always from the goroutine driving the run.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// MultiObserver fans out events to multiple observers.
type MultiObserver []Observer

func (m MultiObserver) OnEvent(e Event) {
	for _, obs := range m {
		if obs != nil {
			obs.OnEvent(e)
		}
	}
}

// Callbacks splits events into the three typed notifications. Nil fields are skipped.
type Callbacks struct {
	OnProgress func(progress float64)
	OnStages   func(stages []StageState)
	OnComplete func(fragment model.Fragment)
}

func (c Callbacks) OnEvent(e Event) {
	switch e.Type {
	case EventProgress:
		if c.OnProgress != nil {
			c.OnProgress(e.Progress)
		}
	case EventStages:
		if c.OnStages != nil {
			c.OnStages(e.Stages)
		}
	case EventComplete:
		if c.OnComplete != nil && e.Fragment != nil {
			c.OnComplete(*e.Fragment)
		}
	}
}

// LogObserver writes stage transitions and completion as structured slog
// lines. Progress ticks are logged at debug level.
type LogObserver struct {
	Logger *slog.Logger
}

func (o *LogObserver) OnEvent(e Event) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch e.Type {
	case EventProgress:
		logger.Debug("progress", "run_id", e.RunID, "progress", e.Progress)
	case EventStages:
		for _, s := range e.Stages {
			if s.Status == StageActive {
				logger.Info("stage active", "run_id", e.RunID, "stage", s.Name, "progress", e.Progress)
			}
		}
	case EventComplete:
		attrs := []any{"run_id", e.RunID, "segment", e.Segment}
		if e.Fragment != nil {
			attrs = append(attrs,
				"requirements", len(e.Fragment.Requirements),
				"test_cases", len(e.Fragment.TestCases),
				"links", len(e.Fragment.Links),
			)
		}
		logger.Info("fragment ready", attrs...)
	}
}
