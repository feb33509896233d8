package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"kestrel/internal/buildpipeline"
	"kestrel/internal/diag"
	"kestrel/internal/source"
)

// reportResults prints diagnostics and failures of every file, and the
// generated code when it goes to stdout. It returns the number of failed
// files.
func reportResults(cmd *cobra.Command, res buildpipeline.BuildResult, stdout, quiet bool) int {
	errw := cmd.ErrOrStderr()
	failed := 0
	for _, r := range res.Results {
		if r == nil {
			continue
		}
		var files *source.Files
		if r.Unit != nil {
			files = &r.Unit.Tree.Files
		}
		if r.Bag.Len() > 0 {
			_ = diag.Pretty(errw, r.Bag, files, diag.PrettyOptions{Color: !color.NoColor})
		}
		if r.Err != nil {
			failed++
			if !errors.Is(r.Err, diag.ErrProgram) {
				fmt.Fprintf(errw, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("error:"), r.Err)
			}
			continue
		}
		switch {
		case stdout:
			if len(res.Results) > 1 {
				fmt.Fprintf(cmd.OutOrStdout(), "/* %s */\n", r.File)
			}
			fmt.Fprint(cmd.OutOrStdout(), r.Code)
		case !quiet:
			note := ""
			if r.Cached {
				note = color.New(color.Faint).Sprint(" (cached)")
			}
			fmt.Fprintf(errw, "%s %s -> %s%s\n", color.GreenString("compiled"), r.File, r.Output, note)
		}
	}
	return failed
}

func printTimings(w io.Writer, res buildpipeline.BuildResult) {
	for _, s := range buildpipeline.Stages {
		if res.Timings.Has(s) {
			fmt.Fprintf(w, "%-8s %8.2f ms\n", s, millis(res.Timings.Duration(s)))
		}
	}
	fmt.Fprintf(w, "%-8s %8.2f ms (wall)\n", "total", millis(res.Elapsed))
	if len(res.Results) != 1 || res.Results[0] == nil {
		return
	}
	fmt.Fprint(w, res.Results[0].Timer.Summary())
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
