package observ_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"kestrel/internal/observ"
)

func TestTimerReport(t *testing.T) {
	tm := observ.NewTimer()
	a := tm.Begin("midend/typeCheck")
	tm.End(a, "")
	open := tm.Begin("backend/ebpf")
	tm.Record("write", 2*time.Millisecond, "out.c")

	r := tm.Report()
	if len(r.Phases) != 2 {
		t.Fatalf("phases = %+v, want the open phase left out", r.Phases)
	}
	if r.Phases[1].Name != "write" || r.Phases[1].DurationMS != 2 {
		t.Errorf("recorded phase = %+v", r.Phases[1])
	}
	if r.TotalMS < 2 {
		t.Errorf("total = %v", r.TotalMS)
	}

	tm.End(open, "kernel")
	tm.End(open, "again")
	tm.End(42, "")
	r = tm.Report()
	if len(r.Phases) != 3 || r.Phases[1].Note != "kernel" {
		t.Errorf("after End: %+v", r.Phases)
	}
	s := tm.Summary()
	if !strings.Contains(s, "backend/ebpf") || !strings.Contains(s, "(kernel)") || !strings.Contains(s, "total") {
		t.Errorf("summary:\n%s", s)
	}
}

func TestTimerConcurrent(t *testing.T) {
	tm := observ.NewTimer()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm.End(tm.Begin("file"), "")
		}()
	}
	wg.Wait()
	if n := len(tm.Report().Phases); n != 8 {
		t.Errorf("%d phases, want 8", n)
	}
}
