package source

import (
	"fmt"
)

// FileID identifies an input file of the front end. Zero means "no file".
type FileID uint32

// Span is a byte range inside one input file.
type Span struct {
	File  FileID `msgpack:"f"`
	Start uint32 `msgpack:"s"` // inclusive
	End   uint32 `msgpack:"e"` // exclusive
}

func (s Span) Empty() bool {
	return s.Start == s.End
}

func (s Span) Len() uint32 {
	return s.End - s.Start
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d", s.File, s.Start, s.End)
}

// Cover returns the smallest span containing both s and other.
// Spans in different files are not merged.
func (s Span) Cover(other Span) Span {
	if s.File != other.File {
		return s
	}
	if other.Start < s.Start {
		s.Start = other.Start
	}
	if other.End > s.End {
		s.End = other.End
	}
	return s
}

// Files maps FileIDs handed over by the front end to their paths.
// Index 0 is reserved.
type Files struct {
	Paths []string `msgpack:"paths"`
}

// Add registers path and returns its FileID.
func (f *Files) Add(path string) FileID {
	if len(f.Paths) == 0 {
		f.Paths = append(f.Paths, "")
	}
	f.Paths = append(f.Paths, path)
	return FileID(len(f.Paths) - 1)
}

// Path returns the registered path or "<unknown>".
func (f *Files) Path(id FileID) string {
	if f == nil || id == 0 || int(id) >= len(f.Paths) {
		return "<unknown>"
	}
	return f.Paths[id]
}

// Format renders span as "path:start-end".
func (f *Files) Format(s Span) string {
	return fmt.Sprintf("%s:%d-%d", f.Path(s.File), s.Start, s.End)
}
