// Package observ measures how long the phases of a compilation take.
package observ

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Phase is one timed interval.
type Phase struct {
	Name  string
	Start time.Time
	Dur   time.Duration
	Note  string
	open  bool
}

// Timer records phases in the order they begin. It is safe for
// concurrent use, so one timer can serve parallel file compiles.
type Timer struct {
	mu     sync.Mutex
	phases []Phase
}

// NewTimer returns an empty timer.
func NewTimer() *Timer { return &Timer{phases: make([]Phase, 0, 8)} }

// Begin opens a phase and returns the index End expects.
func (t *Timer) Begin(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phases = append(t.phases, Phase{Name: name, Start: time.Now(), open: true})
	return len(t.phases) - 1
}

// End closes phase idx. Unknown or already closed indexes are ignored.
func (t *Timer) End(idx int, note string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx < 0 || idx >= len(t.phases) || !t.phases[idx].open {
		return
	}
	p := &t.phases[idx]
	p.Dur = time.Since(p.Start)
	p.Note = note
	p.open = false
}

// Record adds an already measured phase.
func (t *Timer) Record(name string, d time.Duration, note string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phases = append(t.phases, Phase{Name: name, Start: time.Now().Add(-d), Dur: d, Note: note})
}

// PhaseReport is the serialisable form of a phase.
type PhaseReport struct {
	Name       string  `json:"name" msgpack:"name"`
	DurationMS float64 `json:"duration_ms" msgpack:"duration_ms"`
	Note       string  `json:"note,omitempty" msgpack:"note,omitempty"`
}

// Report is a snapshot of a timer. Phases still open are left out.
type Report struct {
	TotalMS float64       `json:"total_ms" msgpack:"total_ms"`
	Phases  []PhaseReport `json:"phases" msgpack:"phases"`
}

// Report snapshots the closed phases. TotalMS is their sum.
func (t *Timer) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	var r Report
	var total time.Duration
	for _, p := range t.phases {
		if p.open {
			continue
		}
		total += p.Dur
		r.Phases = append(r.Phases, PhaseReport{Name: p.Name, DurationMS: millis(p.Dur), Note: p.Note})
	}
	r.TotalMS = millis(total)
	return r
}

// Summary renders the report as an aligned table.
func (t *Timer) Summary() string {
	r := t.Report()
	width := len("total")
	for _, p := range r.Phases {
		width = max(width, len(p.Name))
	}
	var sb strings.Builder
	sb.WriteString("timings:\n")
	for _, p := range r.Phases {
		fmt.Fprintf(&sb, "  %-*s %8.2f ms", width, p.Name, p.DurationMS)
		if p.Note != "" {
			sb.WriteString("  (" + p.Note + ")")
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "  %-*s %8.2f ms\n", width, "total", r.TotalMS)
	return sb.String()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
