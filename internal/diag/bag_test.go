package diag_test

import (
	"bytes"
	"strings"
	"testing"

	"kestrel/internal/diag"
	"kestrel/internal/source"
)

func TestBagLimitKeepsErrorState(t *testing.T) {
	bag := diag.NewBag(1)
	if !bag.Add(diag.Warningf(diag.BackendInfo, source.Span{}, "first")) {
		t.Fatalf("first diagnostic must fit")
	}
	if bag.Add(diag.Errorf(diag.BackendBadSize, source.Span{}, "second")) {
		t.Fatalf("second diagnostic must be dropped")
	}
	if bag.Len() != 1 || bag.Dropped() != 1 {
		t.Fatalf("len=%d dropped=%d", bag.Len(), bag.Dropped())
	}
	if !bag.HasErrors() {
		t.Fatalf("dropped error must still be reported")
	}
}

func TestBagSortDedup(t *testing.T) {
	bag := diag.NewBag(10)
	bag.Add(diag.Errorf(diag.BackendBadSize, source.Span{File: 1, Start: 9, End: 10}, "b"))
	bag.Add(diag.Errorf(diag.BackendMatchKind, source.Span{File: 1, Start: 1, End: 2}, "a"))
	bag.Add(diag.Errorf(diag.BackendMatchKind, source.Span{File: 1, Start: 1, End: 2}, "a"))
	bag.Sort()
	bag.Dedup()
	items := bag.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 diagnostics after dedup, got %d", len(items))
	}
	if items[0].Message != "a" {
		t.Fatalf("expected sorted order, got %q first", items[0].Message)
	}
	if err := bag.Err(); err == nil || err.Error() != "2 errors" {
		t.Fatalf("unexpected summary: %v", err)
	}
}

func TestPrettyPlain(t *testing.T) {
	var files source.Files
	id := files.Add("prog.p4")
	bag := diag.NewBag(10)
	d := diag.Errorf(diag.BackendMatchKind, source.Span{File: id, Start: 4, End: 8}, "match kind %q not supported", "lpm")
	bag.Add(d.WithNote(source.Span{File: id, Start: 0, End: 2}, "table declared here"))

	var buf bytes.Buffer
	if err := diag.Pretty(&buf, bag, &files, diag.PrettyOptions{}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `prog.p4:4-8: ERROR[E5001 unsupported-match-kind]: match kind "lpm" not supported`) {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "note prog.p4:0-2: table declared here") {
		t.Fatalf("note missing:\n%s", out)
	}
}

func TestSeverityString(t *testing.T) {
	for sev, want := range map[diag.Severity]string{
		diag.SevInfo:     "INFO",
		diag.SevWarning:  "WARNING",
		diag.SevError:    "ERROR",
		diag.Severity(9): "UNKNOWN",
	} {
		if got := sev.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", sev, got, want)
		}
	}
	if diag.SevWarning.IsError() || !diag.SevError.IsError() {
		t.Errorf("only SevError fails a unit")
	}
}
