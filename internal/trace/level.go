package trace

import (
	"fmt"
	"strings"
)

// Level controls which scopes a tracer records.
type Level uint8

const (
	LevelOff    Level = iota
	LevelError        // nothing is streamed; the ring is dumped on failure
	LevelPhase        // driver, units and passes
	LevelDetail       // phase plus per-declaration nodes
	LevelDebug        // everything, including events of unknown scope
)

var levelNames = [...]string{"off", "error", "phase", "detail", "debug"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel parses a level name, ignoring case.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level %q (expected off|error|phase|detail|debug)", s)
}

// ShouldEmit reports whether events of scope are recorded at level l.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelError, LevelPhase:
		return scope <= ScopePass
	case LevelDetail:
		return scope <= ScopeNode
	case LevelDebug:
		return true
	}
	return false
}
