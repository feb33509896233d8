// Package trace records spans and point events of a compilation.
//
// A Tracer travels in the context. The pipeline opens a driver span per
// invocation, a unit span per input file and a pass span per midend pass
// or backend:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePass, "typeCheck", parent)
//	defer span.End("")
package trace

import "time"

// Kind is the kind of a trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	case KindHeartbeat:
		return "heartbeat"
	}
	return "unknown"
}

// Scope is the granularity of an event. Coarser scopes have smaller values.
type Scope uint8

const (
	ScopeDriver Scope = iota + 1 // one CLI invocation
	ScopeUnit                    // one input program
	ScopePass                    // a midend pass or a backend
	ScopeNode                    // a single declaration inside a pass
)

func (s Scope) String() string {
	switch s {
	case ScopeDriver:
		return "driver"
	case ScopeUnit:
		return "unit"
	case ScopePass:
		return "pass"
	case ScopeNode:
		return "node"
	}
	return "unknown"
}

// Event is one trace record.
type Event struct {
	Time     time.Time         `msgpack:"time"`
	Seq      uint64            `msgpack:"seq"`
	Kind     Kind              `msgpack:"kind"`
	Scope    Scope             `msgpack:"scope"`
	SpanID   uint64            `msgpack:"span"`
	ParentID uint64            `msgpack:"parent,omitempty"`
	Name     string            `msgpack:"name"`
	Detail   string            `msgpack:"detail,omitempty"`
	Elapsed  time.Duration     `msgpack:"elapsed,omitempty"` // set on span ends
	Extra    map[string]string `msgpack:"extra,omitempty"`
}
