package ir

import (
	"errors"
	"fmt"
)

// ErrInternal is matched by every InternalError.
var ErrInternal = errors.New("internal compiler error")

// InternalError reports a violated compiler invariant. It aborts the
// pipeline; it is never a problem of the program being compiled.
type InternalError struct {
	Msg  string
	Node NodeID
}

func (e *InternalError) Error() string {
	if e.Node.IsValid() {
		return fmt.Sprintf("internal compiler error: %s (node %d)", e.Msg, e.Node)
	}
	return "internal compiler error: " + e.Msg
}

func (e *InternalError) Is(target error) bool {
	return target == ErrInternal
}

// Bugf builds an InternalError.
func Bugf(format string, args ...any) error {
	return &InternalError{Msg: fmt.Sprintf(format, args...)}
}

// BugAt builds an InternalError attached to a node.
func BugAt(id NodeID, format string, args ...any) error {
	return &InternalError{Msg: fmt.Sprintf(format, args...), Node: id}
}

// IsInternal reports whether err carries an InternalError.
func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}
