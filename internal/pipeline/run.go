package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcliao/qa-validator/internal/model"
	"github.com/rcliao/qa-validator/internal/namespace"
)

// State is the lifecycle state of a run.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSettling  State = "settling"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// StageStatus is the status of one stage within a run.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageActive    StageStatus = "active"
	StageCompleted StageStatus = "completed"
)

// StageState is a stage together with its status in a run.
type StageState struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Status   StageStatus   `json:"status"`
}

// Run is the state machine of a single ingestion. It holds no timers: the
// caller advances it with Tick and finishes it with Settle. Notifications are
// delivered synchronously from those calls.
type Run struct {
	id       string
	segment  string
	ordinal  int
	template model.Fragment
	tick     time.Duration
	observer Observer

	cancelled atomic.Bool
	cancelCh  chan struct{}

	mu       sync.Mutex
	state    State
	stages   []StageState
	current  int
	elapsed  time.Duration // simulated time spent in the active stage
	done     time.Duration // sum of completed stage durations
	total    time.Duration
	progress float64
}

func newRun(id string, req Request, stages []Stage, tick time.Duration, obs Observer) *Run {
	r := &Run{
		id:       id,
		segment:  req.Segment,
		ordinal:  req.Ordinal,
		template: req.Template,
		tick:     tick,
		observer: obs,
		cancelCh: make(chan struct{}),
		state:    StateIdle,
		stages:   make([]StageState, len(stages)),
	}
	for i, s := range stages {
		r.stages[i] = StageState{Name: s.Name, Duration: s.Duration, Status: StagePending}
		r.total += s.Duration
	}
	return r
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// State returns the current lifecycle state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Progress returns the last reported overall progress, 0 to 100.
func (r *Run) Progress() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// Stages returns a copy of the stage list.
func (r *Run) Stages() []StageState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Start moves an idle run to running and activates the first stage.
func (r *Run) Start() {
	r.mu.Lock()
	if r.cancelled.Load() || r.state != StateIdle {
		r.mu.Unlock()
		return
	}
	var events []Event
	if len(r.stages) == 0 {
		r.state = StateSettling
		r.progress = 100
		events = append(events, r.progressEvent())
	} else {
		r.state = StateRunning
		r.stages[0].Status = StageActive
		events = append(events, r.stagesEvent())
	}
	r.mu.Unlock()
	r.emit(events...)
}

// Tick advances the active stage by one tick of simulated time. When the
// stage reaches its duration it completes and the next one becomes active
// in the same tick; the stage notification precedes the progress one.
func (r *Run) Tick() {
	r.mu.Lock()
	if r.cancelled.Load() || r.state != StateRunning {
		r.mu.Unlock()
		return
	}

	var events []Event
	stage := &r.stages[r.current]
	r.elapsed += r.tick
	finished := r.elapsed >= stage.Duration
	if finished {
		stage.Status = StageCompleted
		r.done += stage.Duration
		r.elapsed = 0
		r.current++
		if r.current < len(r.stages) {
			r.stages[r.current].Status = StageActive
		} else {
			r.state = StateSettling
		}
	}
	r.progress = r.computeProgress()
	if finished {
		events = append(events, r.stagesEvent())
	}
	events = append(events, r.progressEvent())
	r.mu.Unlock()

	r.emit(events...)
}

// Settle completes a run that has finished its last stage: the template is
// namespaced, tagged with the segment and delivered in the completion
// notification. It reports whether the run completed.
func (r *Run) Settle() bool {
	r.mu.Lock()
	if r.cancelled.Load() || r.state != StateSettling {
		r.mu.Unlock()
		return false
	}
	r.state = StateCompleted
	r.mu.Unlock()

	fragment := namespace.Apply(r.template, namespace.Prefix(r.segment, r.ordinal), r.segment)
	if r.observer != nil {
		r.observer.OnEvent(Event{
			Type:     EventComplete,
			RunID:    r.id,
			Segment:  r.segment,
			Progress: 100,
			Fragment: &fragment,
		})
	}
	return true
}

// Cancel aborts the run. Once it returns, no further notification is
// delivered. Cancelling a completed or already cancelled run does nothing.
func (r *Run) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateCompleted || r.state == StateCancelled {
		return false
	}
	r.cancelled.Store(true)
	r.state = StateCancelled
	close(r.cancelCh)
	return true
}

// computeProgress reports 100 only once the last stage has completed.
// Trailing zero-length stages hold the previous value until then.
func (r *Run) computeProgress() float64 {
	if r.state != StateRunning {
		return 100
	}
	if r.done+r.elapsed >= r.total {
		return r.progress
	}
	return float64(r.done+r.elapsed) * 100 / float64(r.total)
}

func (r *Run) snapshot() []StageState {
	out := make([]StageState, len(r.stages))
	copy(out, r.stages)
	return out
}

func (r *Run) stagesEvent() Event {
	return Event{Type: EventStages, RunID: r.id, Segment: r.segment, Progress: r.progress, Stages: r.snapshot()}
}

func (r *Run) progressEvent() Event {
	return Event{Type: EventProgress, RunID: r.id, Segment: r.segment, Progress: r.progress}
}

// emit delivers events in order, dropping the rest as soon as the run is cancelled.
func (r *Run) emit(events ...Event) {
	if r.observer == nil {
		return
	}
	for _, e := range events {
		if r.cancelled.Load() {
			return
		}
		r.observer.OnEvent(e)
	}
}
