package sync

import (
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
)

// RunState represents a stage of one synchronization run
type RunState string

const (
	RunStateIdle        RunState = "IDLE"
	RunStateFetching    RunState = "FETCHING"
	RunStateNormalizing RunState = "NORMALIZING"
	RunStateReconciling RunState = "RECONCILING"
	RunStateApplying    RunState = "APPLYING"
	RunStateDone        RunState = "DONE"
	RunStateFailed      RunState = "FAILED"
)

// IsTerminal returns true for states no run leaves again
func (s RunState) IsTerminal() bool {
	return s == RunStateDone || s == RunStateFailed
}

// String returns the string representation of RunState
func (s RunState) String() string {
	return string(s)
}

// runTransitions lists the allowed forward edges of the state machine.
// Failed is reachable from every non-terminal state and is not listed.
var runTransitions = map[RunState]RunState{
	RunStateIdle:        RunStateFetching,
	RunStateFetching:    RunStateNormalizing,
	RunStateNormalizing: RunStateReconciling,
	RunStateReconciling: RunStateApplying,
	RunStateApplying:    RunStateDone,
}

// Counts aggregates the mutations and skips of one run
type Counts struct {
	Upserted        int `json:"upserted"`
	SoftDeleted     int `json:"soft_deleted"`
	Skipped         int `json:"skipped"`
	PricesRefreshed int `json:"prices_refreshed"`
}

// Run tracks one end-to-end execution of the pipeline for a provider and
// locale. Record-level errors are absorbed into the report; run-level
// errors move the machine to Failed.
//
// A run is mutated by its own pipeline goroutine while status queries
// snapshot it from request goroutines, so every mutation and Report go
// through the run's mutex.
type Run struct {
	ID        uuid.UUID
	Provider  string
	Locale    string
	StartedAt time.Time

	mu         gosync.Mutex
	State      RunState
	FinishedAt time.Time
	Counts     Counts
	Errors     []string
}

// NewRun creates a run in the Idle state
func NewRun(provider, locale string) *Run {
	return &Run{
		ID:        uuid.New(),
		Provider:  provider,
		Locale:    locale,
		State:     RunStateIdle,
		StartedAt: time.Now(),
	}
}

// Advance moves the run to the next stage. Stages may only be entered in
// pipeline order; skipping or re-entering a stage is a programming error
// surfaced as one.
func (r *Run) Advance(to RunState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.advanceLocked(to)
}

func (r *Run) advanceLocked(to RunState) error {
	if r.State.IsTerminal() {
		return fmt.Errorf("sync: run %s is already %s", r.ID, r.State)
	}
	if next, ok := runTransitions[r.State]; !ok || next != to {
		return fmt.Errorf("sync: invalid transition %s -> %s", r.State, to)
	}
	r.State = to
	return nil
}

// AdvanceThrough advances the run stage by stage until it reaches target.
// Used by runs that have no work for some intermediate stages.
func (r *Run) AdvanceThrough(target RunState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.State != target {
		next, ok := runTransitions[r.State]
		if !ok {
			return fmt.Errorf("sync: cannot reach %s from %s", target, r.State)
		}
		if next == RunStateDone {
			if err := r.completeLocked(); err != nil {
				return err
			}
			continue
		}
		if err := r.advanceLocked(next); err != nil {
			return err
		}
	}
	return nil
}

// Fail moves the run to the terminal Failed state, recording the cause
func (r *Run) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State == RunStateDone {
		return
	}
	r.State = RunStateFailed
	r.FinishedAt = time.Now()
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
}

// Complete moves the run from Applying to Done
func (r *Run) Complete() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completeLocked()
}

func (r *Run) completeLocked() error {
	if err := r.advanceLocked(RunStateDone); err != nil {
		return err
	}
	r.FinishedAt = time.Now()
	return nil
}

// RecordSkip counts a skipped malformed record
func (r *Run) RecordSkip(cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Counts.Skipped++
	if cause != nil {
		r.Errors = append(r.Errors, cause.Error())
	}
}

// RecordSkips absorbs the skip tally of an upstream stage in one step
func (r *Run) RecordSkips(count int, causes []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Counts.Skipped += count
	for _, cause := range causes {
		if cause != nil {
			r.Errors = append(r.Errors, cause.Error())
		}
	}
}

// AddWarning records a non-fatal run message, such as a reconcile warning
func (r *Run) AddWarning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, msg)
}

// RecordApply records the outcome of the store transaction
func (r *Run) RecordApply(upserted, softDeleted int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Counts.Upserted = upserted
	r.Counts.SoftDeleted = softDeleted
}

// RecordPricesRefreshed records how many price rows the run rewrote
func (r *Run) RecordPricesRefreshed(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Counts.PricesRefreshed = n
}

// Report is the immutable outcome of a run, surfaced to trigger callers
type Report struct {
	RunID      uuid.UUID `json:"run_id"`
	Provider   string    `json:"provider"`
	Locale     string    `json:"locale"`
	State      RunState  `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Counts     Counts    `json:"counts"`
	Errors     []string  `json:"errors,omitempty"`
}

// Report snapshots the run into a report. Safe to call from any
// goroutine while the run is still in flight.
func (r *Run) Report() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	errs := make([]string, len(r.Errors))
	copy(errs, r.Errors)
	return &Report{
		RunID:      r.ID,
		Provider:   r.Provider,
		Locale:     r.Locale,
		State:      r.State,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Counts:     r.Counts,
		Errors:     errs,
	}
}

// Succeeded returns true when the run reached Done. Runs with skipped
// records still succeed; the skip count is in the report.
func (r *Report) Succeeded() bool {
	return r.State == RunStateDone
}
