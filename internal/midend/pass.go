package midend

import (
	"context"
	"fmt"

	"kestrel/internal/trace"
)

// Pass is one named tree transformation. Running a pass whose postcondition
// already holds leaves the unit unchanged.
type Pass interface {
	Name() string
	Run(ctx context.Context, u *Unit) error
}

type funcPass struct {
	name string
	fn   func(ctx context.Context, u *Unit) error
}

func (p funcPass) Name() string                           { return p.name }
func (p funcPass) Run(ctx context.Context, u *Unit) error { return p.fn(ctx, u) }

// NewPass adapts a function to the Pass interface.
func NewPass(name string, fn func(ctx context.Context, u *Unit) error) Pass {
	return funcPass{name: name, fn: fn}
}

// DebugHook runs after every successful pass of a manager.
type DebugHook func(manager string, seq int, pass string, u *Unit) error

// PassManager runs passes in order and stops at the first failure. It is a
// Pass itself, so managers nest.
type PassManager struct {
	name   string
	passes []Pass
	hooks  []DebugHook
}

// NewPassManager creates a manager running passes in the given order.
func NewPassManager(name string, passes ...Pass) *PassManager {
	return &PassManager{name: name, passes: passes}
}

func (pm *PassManager) Name() string { return pm.name }

// Add appends passes.
func (pm *PassManager) Add(passes ...Pass) {
	pm.passes = append(pm.passes, passes...)
}

// Passes returns the configured passes.
func (pm *PassManager) Passes() []Pass {
	return append([]Pass(nil), pm.passes...)
}

// AddDebugHook installs h on this manager and, when recursive, on every
// nested manager.
func (pm *PassManager) AddDebugHook(h DebugHook, recursive bool) {
	pm.hooks = append(pm.hooks, h)
	if !recursive {
		return
	}
	for _, p := range pm.passes {
		if nested, ok := p.(*PassManager); ok {
			nested.AddDebugHook(h, true)
		}
	}
}

// Run executes the passes. A failing pass leaves the unit as it left it.
func (pm *PassManager) Run(ctx context.Context, u *Unit) error {
	for seq, p := range pm.passes {
		if err := ctx.Err(); err != nil {
			return err
		}
		pctx, span := trace.Start(ctx, trace.ScopePass, p.Name())

		phase := -1
		if u.Timer != nil {
			phase = u.Timer.Begin(pm.name + "/" + p.Name())
		}
		err := p.Run(pctx, u)
		if u.Timer != nil {
			u.Timer.End(phase, "")
		}
		if err != nil {
			span.WithExtra("error", err.Error()).End("failed")
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
		span.End("")

		for _, h := range pm.hooks {
			if err := h(pm.name, seq, p.Name(), u); err != nil {
				return fmt.Errorf("debug hook after %s: %w", p.Name(), err)
			}
		}
	}
	return nil
}
