// Package buildpipeline turns serialized programs into eBPF C files: it
// loads each input, runs the midend and the backend, writes the result and
// reports progress events along the way.
package buildpipeline

import "time"

// Stage is a step of a single-file compile.
type Stage string

const (
	StageLoad    Stage = "load"
	StageMidend  Stage = "midend"
	StageBackend Stage = "backend"
	StageWrite   Stage = "write"
)

// Stages lists the stages in execution order.
var Stages = []Stage{StageLoad, StageMidend, StageBackend, StageWrite}

// Status is the state of a file within a stage.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	StatusError   Status = "error"
	StatusCached  Status = "cached" // output came from the cache
)

// Event reports progress of one file, or of the whole build when File is
// empty.
type Event struct {
	File    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. Build calls it from several
// goroutines.
type ProgressSink interface {
	OnEvent(Event)
}

// Timings holds per-stage durations. The zero value is ready to use.
type Timings struct {
	stages map[Stage]time.Duration
}

// Add accumulates d into stage.
func (t *Timings) Add(stage Stage, d time.Duration) {
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
	t.stages[stage] += d
}

// Merge adds every duration of other.
func (t *Timings) Merge(other Timings) {
	for stage, d := range other.stages {
		t.Add(stage, d)
	}
}

// Has reports whether stage was recorded.
func (t Timings) Has(stage Stage) bool {
	_, ok := t.stages[stage]
	return ok
}

// Duration returns the time recorded for stage.
func (t Timings) Duration(stage Stage) time.Duration {
	return t.stages[stage]
}

// Sum returns the total over stages, or over every stage when none are
// given.
func (t Timings) Sum(stages ...Stage) time.Duration {
	if len(stages) == 0 {
		stages = Stages
	}
	var total time.Duration
	for _, s := range stages {
		total += t.stages[s]
	}
	return total
}
