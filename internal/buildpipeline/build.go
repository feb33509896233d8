package buildpipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"kestrel/internal/backend/ebpf"
	"kestrel/internal/ir"
	"kestrel/internal/options"
	"kestrel/internal/trace"
)

// BuildRequest configures a compile of several inputs.
type BuildRequest struct {
	Files    []string // inputs, see ExpandInputs
	BaseDir  string   // display names are relative to it
	Options  options.Options
	Progress ProgressSink
	Cache    *Cache
	// Stdout leaves outputs unwritten; callers print CompileResult.Code.
	Stdout bool
}

// BuildResult holds one result per input, in input order.
type BuildResult struct {
	Results []*CompileResult
	Timings Timings
	Elapsed time.Duration
}

// Failed returns the results that carry an error.
func (r BuildResult) Failed() []*CompileResult {
	var out []*CompileResult
	for _, res := range r.Results {
		if res != nil && res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Build compiles every input with up to Options.Jobs workers. A file whose
// program is rejected does not stop the others; an internal error or a
// cancelled context does. The error joins every file's failure.
func Build(ctx context.Context, req *BuildRequest) (BuildResult, error) {
	var result BuildResult
	if req == nil || len(req.Files) == 0 {
		return result, errors.New("no input files")
	}
	opts := req.Options
	if err := opts.Validate(); err != nil {
		return result, err
	}
	target, err := ebpf.TargetByName(opts.Target)
	if err != nil {
		return result, err
	}
	outputs, err := OutputPaths(req.Files, opts.Output)
	if err != nil {
		return result, err
	}

	ctx, span := trace.Start(ctx, trace.ScopeDriver, "build")
	defer func() { span.WithExtra("files", fmt.Sprint(len(req.Files))).End("") }()

	display := DisplayNames(req.Files, req.BaseDir)
	for _, name := range display {
		emit(req.Progress, Event{File: name, Stage: StageLoad, Status: StatusQueued})
	}
	emit(req.Progress, Event{Stage: StageLoad, Status: StatusWorking})

	start := time.Now()
	result.Results = make([]*CompileResult, len(req.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.EffectiveJobs(len(req.Files)))
	for i, path := range req.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := outputs[i]
			if req.Stdout {
				out = ""
			}
			res, err := Compile(gctx, &CompileRequest{
				Path:           path,
				Display:        display[i],
				Output:         out,
				Target:         target,
				DumpDir:        opts.DumpDir,
				Top4:           opts.Top4,
				DebugIR:        opts.DebugIR,
				MaxDiagnostics: opts.MaxDiagnostics,
				Progress:       req.Progress,
				Cache:          req.Cache,
			})
			result.Results[i] = res
			if ir.IsInternal(err) {
				return err
			}
			return nil
		})
	}
	waitErr := g.Wait()
	result.Elapsed = time.Since(start)

	var errs []error
	for _, res := range result.Results {
		if res == nil {
			continue
		}
		result.Timings.Merge(res.Timings)
		if res.Err != nil && !errors.Is(waitErr, res.Err) {
			errs = append(errs, res.Err)
		}
	}
	if waitErr != nil {
		errs = append([]error{waitErr}, errs...)
	}
	err = errors.Join(errs...)
	status := StatusDone
	if err != nil {
		status = StatusError
	}
	emit(req.Progress, Event{Stage: StageWrite, Status: status, Err: err, Elapsed: result.Elapsed})
	return result, err
}

// OutputPaths maps each input to its C file. Without output every file is
// written next to its input. With one input, output names the file unless
// it is an existing directory or ends in a separator; with several it is
// always a directory. Two inputs mapping to one output are an error.
func OutputPaths(files []string, output string) ([]string, error) {
	asDir := len(files) > 1 || strings.HasSuffix(output, string(filepath.Separator)) || strings.HasSuffix(output, "/")
	if !asDir && output != "" {
		if info, err := os.Stat(output); err == nil && info.IsDir() {
			asDir = true
		}
	}
	out := make([]string, len(files))
	seen := make(map[string]string, len(files))
	for i, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f)) + ".c"
		switch {
		case output == "":
			out[i] = filepath.Join(filepath.Dir(f), name)
		case asDir:
			out[i] = filepath.Join(output, name)
		default:
			out[i] = output
		}
		clean := filepath.Clean(out[i])
		if prev, ok := seen[clean]; ok {
			return nil, fmt.Errorf("%s and %s both write %s", prev, f, clean)
		}
		seen[clean] = f
	}
	return out, nil
}
