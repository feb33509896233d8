package source_test

import (
	"testing"

	"kestrel/internal/source"
)

func TestSpanCover(t *testing.T) {
	a := source.Span{File: 1, Start: 10, End: 20}
	b := source.Span{File: 1, Start: 5, End: 12}
	got := a.Cover(b)
	if got.Start != 5 || got.End != 20 {
		t.Fatalf("unexpected cover: %v", got)
	}
	other := source.Span{File: 2, Start: 0, End: 100}
	if a.Cover(other) != a {
		t.Fatalf("spans from different files must not merge")
	}
}

func TestFilesFormat(t *testing.T) {
	var files source.Files
	id := files.Add("prog.p4")
	if got := files.Format(source.Span{File: id, Start: 3, End: 9}); got != "prog.p4:3-9" {
		t.Fatalf("unexpected format %q", got)
	}
	if got := files.Path(42); got != "<unknown>" {
		t.Fatalf("unexpected path for unknown id: %q", got)
	}
}
