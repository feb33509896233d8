package trace

import "context"

type tracerKey struct{}

// FromContext returns the context's tracer, or Nop.
func FromContext(ctx context.Context) Tracer {
	if ctx == nil {
		return Nop
	}
	if t, ok := ctx.Value(tracerKey{}).(Tracer); ok {
		return t
	}
	return Nop
}

// WithTracer returns ctx carrying t.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	return context.WithValue(ctx, tracerKey{}, t)
}

// SpanContext identifies the innermost open span.
type SpanContext struct {
	SpanID uint64
}

type spanKey struct{}

// CurrentSpan returns the innermost span recorded in ctx.
func CurrentSpan(ctx context.Context) SpanContext {
	if ctx == nil {
		return SpanContext{}
	}
	sc, _ := ctx.Value(spanKey{}).(SpanContext)
	return sc
}

// WithSpanContext returns ctx with sc as the innermost span.
func WithSpanContext(ctx context.Context, sc SpanContext) context.Context {
	return context.WithValue(ctx, spanKey{}, sc)
}

// Start begins a span under the innermost span of ctx and returns a
// context in which it is the innermost one.
func Start(ctx context.Context, scope Scope, name string) (context.Context, *Span) {
	span := Begin(FromContext(ctx), scope, name, CurrentSpan(ctx).SpanID)
	if span.ID() == 0 {
		return ctx, span
	}
	return WithSpanContext(ctx, SpanContext{SpanID: span.ID()}), span
}
