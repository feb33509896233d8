package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kestrel/internal/trace"
)

func addTraceFlags(root *cobra.Command) {
	pf := root.PersistentFlags()
	pf.String("trace", "", "trace output file (- for stderr)")
	pf.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	pf.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	pf.String("trace-format", "auto", "trace format (auto|text|ndjson|msgpack)")
	pf.Int("trace-ring-size", 4096, "events kept by the ring tracer")
	pf.Duration("trace-heartbeat", 0, "emit a heartbeat event at this interval (0 disables)")
}

// setupTracing installs the tracer described by the trace flags into the
// command's context and returns the function that shuts it down. With
// ring storage the ring is dumped to stderr when the command fails.
func setupTracing(cmd *cobra.Command) (func(), error) {
	flags := cmd.Flags()
	output, _ := flags.GetString("trace")
	levelName, _ := flags.GetString("trace-level")
	modeName, _ := flags.GetString("trace-mode")
	formatName, _ := flags.GetString("trace-format")
	ringSize, _ := flags.GetInt("trace-ring-size")
	heartbeat, _ := flags.GetDuration("trace-heartbeat")

	level, err := trace.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	// --trace alone means phase tracing.
	if level == trace.LevelOff && output != "" && !flags.Changed("trace-level") {
		level = trace.LevelPhase
	}
	if level == trace.LevelOff {
		return func() {}, nil
	}
	mode, err := trace.ParseMode(modeName)
	if err != nil {
		return nil, err
	}
	format, err := trace.ParseFormat(formatName)
	if err != nil {
		return nil, err
	}
	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: output,
		RingSize:   ringSize,
		Heartbeat:  heartbeat,
	})
	if err != nil {
		return nil, fmt.Errorf("create tracer: %w", err)
	}

	ctx, span := trace.Start(trace.WithTracer(cmd.Context(), tracer), trace.ScopeDriver, "kestrel "+cmd.Name())
	cmd.SetContext(ctx)
	beat := trace.StartHeartbeat(tracer, heartbeat)
	start := time.Now()

	return func() {
		span.WithExtra("wall", time.Since(start).String()).End("")
		beat.Stop()
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: %v\n", err)
		}
	}, nil
}

// dumpRing writes the in-memory trace of ctx's tracer to cmd's stderr.
func dumpRing(cmd *cobra.Command) {
	var ring *trace.RingTracer
	switch t := trace.FromContext(cmd.Context()).(type) {
	case *trace.RingTracer:
		ring = t
	case *trace.MultiTracer:
		ring = t.Ring()
	}
	if ring == nil {
		return
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "trace (most recent events):")
	if err := ring.Dump(cmd.ErrOrStderr(), trace.FormatText); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "trace: %v\n", err)
	}
}
