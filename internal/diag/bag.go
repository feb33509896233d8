package diag

import (
	"errors"
	"fmt"
	"sort"

	"fortio.org/safecast"
)

// Bag collects diagnostics up to a limit.
type Bag struct {
	items         []Diagnostic
	max           uint16
	dropped       int
	droppedErrors bool
}

// NewBag returns a bag that keeps at most max diagnostics.
// A non-positive or oversized max is clamped.
func NewBag(max int) *Bag {
	limit, err := safecast.Conv[uint16](max)
	if err != nil || limit == 0 {
		limit = ^uint16(0)
	}
	return &Bag{
		items: make([]Diagnostic, 0, min(int(limit), 16)),
		max:   limit,
	}
}

// Add stores d unless the limit is reached; it reports whether d was kept.
// Dropped diagnostics are still counted so HasErrors stays truthful.
func (b *Bag) Add(d Diagnostic) bool {
	if len(b.items) >= int(b.max) {
		b.dropped++
		if d.Severity.IsError() {
			b.droppedErrors = true
		}
		return false
	}
	b.items = append(b.items, d)
	return true
}

// HasErrors reports whether at least one error-severity diagnostic was added.
func (b *Bag) HasErrors() bool {
	if b == nil {
		return false
	}
	if b.droppedErrors {
		return true
	}
	for i := range b.items {
		if b.items[i].Severity.IsError() {
			return true
		}
	}
	return false
}

func (b *Bag) Len() int {
	if b == nil {
		return 0
	}
	return len(b.items)
}

// Dropped returns how many diagnostics did not fit.
func (b *Bag) Dropped() int {
	if b == nil {
		return 0
	}
	return b.dropped
}

// Items returns the stored diagnostics. The slice aliases the bag.
func (b *Bag) Items() []Diagnostic {
	if b == nil {
		return nil
	}
	return b.items
}

// Merge appends the diagnostics of other, growing the limit if needed.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	newTotal := len(b.items) + len(other.items)
	if limit, err := safecast.Conv[uint16](newTotal); err == nil && limit > b.max {
		b.max = limit
	}
	b.items = append(b.items, other.items...)
	b.dropped += other.dropped
	b.droppedErrors = b.droppedErrors || other.droppedErrors
}

// Sort orders diagnostics by file, start, end, severity (desc) and code.
func (b *Bag) Sort() {
	sort.SliceStable(b.items, func(i, j int) bool {
		di, dj := b.items[i], b.items[j]
		if di.Primary.File != dj.Primary.File {
			return di.Primary.File < dj.Primary.File
		}
		if di.Primary.Start != dj.Primary.Start {
			return di.Primary.Start < dj.Primary.Start
		}
		if di.Primary.End != dj.Primary.End {
			return di.Primary.End < dj.Primary.End
		}
		if di.Severity != dj.Severity {
			return di.Severity > dj.Severity
		}
		return di.Code < dj.Code
	})
}

// Dedup drops diagnostics repeating an earlier Code+Primary+Message.
func (b *Bag) Dedup() {
	seen := make(map[string]bool, len(b.items))
	kept := b.items[:0]
	for _, d := range b.items {
		key := fmt.Sprintf("%s:%s:%s", d.Code.ID(), d.Primary, d.Message)
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, d)
	}
	b.items = kept
}

// ErrProgram is matched by the error Err returns.
var ErrProgram = errors.New("program has errors")

type countError struct{ n int }

func (e countError) Error() string {
	if e.n == 1 {
		return "1 error"
	}
	return fmt.Sprintf("%d errors", e.n)
}

func (e countError) Is(target error) bool { return target == ErrProgram }

// Err returns an error summarizing the bag when it holds errors, nil otherwise.
func (b *Bag) Err() error {
	if !b.HasErrors() {
		return nil
	}
	n := 0
	for i := range b.items {
		if b.items[i].Severity.IsError() {
			n++
		}
	}
	return countError{n: n}
}
