package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"kestrel/internal/buildpipeline"
	"kestrel/internal/ui"
)

type uiMode string

const (
	uiModeAuto uiMode = "auto"
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
)

func readUIMode(value string) (uiMode, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "", "auto":
		return uiModeAuto, nil
	case "on":
		return uiModeOn, nil
	case "off":
		return uiModeOff, nil
	}
	return "", fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
}

func shouldUseTUI(mode uiMode) bool {
	switch mode {
	case uiModeOn:
		return true
	case uiModeOff:
		return false
	}
	return isTerminal(os.Stdout) && isTerminal(os.Stderr)
}

type buildOutcome struct {
	result buildpipeline.BuildResult
	err    error
}

// runBuildWithUI runs the build in the background and the progress view
// in the foreground. Quitting the view cancels the build.
func runBuildWithUI(ctx context.Context, title string, files []string, req *buildpipeline.BuildRequest) (buildpipeline.BuildResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan buildpipeline.Event, 256)
	done := make(chan buildOutcome, 1)
	go func() {
		r := *req
		r.Progress = buildpipeline.ChannelSink{Ch: events}
		res, err := buildpipeline.Build(ctx, &r)
		close(events)
		done <- buildOutcome{result: res, err: err}
	}()

	uiErr := ui.Run(os.Stderr, title, files, events)
	// The view also quits on ctrl+c, before the build has closed events.
	// The build has returned by the time events is closed, so cancelling
	// here only affects a build the user abandoned.
	cancel()
	go func() {
		for range events {
		}
	}()
	out := <-done
	if uiErr != nil {
		return out.result, uiErr
	}
	return out.result, out.err
}
