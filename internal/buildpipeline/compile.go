package buildpipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kestrel/internal/backend/ebpf"
	"kestrel/internal/diag"
	"kestrel/internal/ir"
	"kestrel/internal/midend"
	"kestrel/internal/observ"
	"kestrel/internal/trace"
)

// CompileRequest configures the compile of one input.
type CompileRequest struct {
	Path           string // serialized program
	Display        string // name in events; Path when empty
	Output         string // C file to write; nothing is written when empty
	Target         ebpf.Target
	DumpDir        string
	Top4           []string
	DebugIR        bool
	MaxDiagnostics int
	Progress       ProgressSink
	Cache          *Cache
}

// CompileResult is what one compile produced. Unit is nil when the output
// came from the cache.
type CompileResult struct {
	File    string
	Output  string
	Code    string
	Unit    *midend.Unit
	Bag     *diag.Bag
	Timer   *observ.Timer
	Timings Timings
	Cached  bool
	Err     error
}

// Compile runs load, midend, backend and write for req. The returned
// error is also stored in the result's Err.
func Compile(ctx context.Context, req *CompileRequest) (*CompileResult, error) {
	if req == nil || req.Path == "" {
		return nil, errors.New("missing input path")
	}
	if req.Target == nil {
		req.Target = ebpf.KernelTarget{}
	}
	res := &CompileResult{
		File:   req.Display,
		Output: req.Output,
		Bag:    diag.NewBag(req.MaxDiagnostics),
		Timer:  observ.NewTimer(),
	}
	if res.File == "" {
		res.File = req.Path
	}
	ctx, span := trace.Start(ctx, trace.ScopeUnit, res.File)
	start := time.Now()
	err := res.compile(ctx, req)
	res.Err = err
	if err != nil {
		span.WithExtra("error", err.Error()).End("failed")
		return res, err
	}
	status := StatusDone
	if res.Cached {
		status = StatusCached
	}
	emit(req.Progress, Event{File: res.File, Stage: StageWrite, Status: status, Elapsed: time.Since(start)})
	span.End(string(status))
	return res, nil
}

func (r *CompileResult) compile(ctx context.Context, req *CompileRequest) error {
	var (
		data []byte
		tree *ir.Tree
		root ir.NodeID
		key  Digest
	)
	cacheable := req.Cache != nil && !req.DebugIR && len(req.Top4) == 0
	err := r.stage(req, StageLoad, func() error {
		var err error
		// #nosec G304 -- inputs are chosen by the user
		if data, err = os.ReadFile(req.Path); err != nil {
			return err
		}
		if cacheable {
			key = Key(data, req.Target.Name())
			code, hit, err := req.Cache.Get(key, req.Target.Name())
			if err != nil {
				trace.Point(trace.FromContext(ctx), trace.ScopeUnit, "cache", err.Error(), trace.CurrentSpan(ctx).SpanID)
			}
			if hit {
				r.Code, r.Cached = code, true
				return nil
			}
		}
		if tree, root, err = ir.Decode(bytes.NewReader(data)); err != nil {
			return err
		}
		if req.DebugIR {
			tree, root, err = roundTrip(tree, root)
		}
		return err
	})
	if err != nil {
		return err
	}

	if !r.Cached {
		if err := r.stage(req, StageMidend, func() error {
			u, err := midend.NewUnit(req.Path, tree, root, r.Bag)
			if err != nil {
				return err
			}
			u.Timer = r.Timer
			r.Unit = u
			return midend.MidEnd(midend.Options{DumpDir: req.DumpDir, Top4: req.Top4}).Run(ctx, u)
		}); err != nil {
			return err
		}
		if err := r.stage(req, StageBackend, func() error {
			code, err := ebpf.Generate(ctx, r.Unit, req.Target)
			r.Code = code
			return err
		}); err != nil {
			return err
		}
		if cacheable && r.Bag.Len() == 0 {
			if err := req.Cache.Put(key, req.Target.Name(), r.Code); err != nil {
				trace.Point(trace.FromContext(ctx), trace.ScopeUnit, "cache", err.Error(), trace.CurrentSpan(ctx).SpanID)
			}
		}
	}

	if req.Output == "" {
		return nil
	}
	return r.stage(req, StageWrite, func() error {
		return writeFileAtomic(req.Output, []byte(r.Code))
	})
}

// stage runs fn as stage s, recording its duration and reporting it.
func (r *CompileResult) stage(req *CompileRequest, s Stage, fn func() error) error {
	emit(req.Progress, Event{File: r.File, Stage: s, Status: StatusWorking})
	idx := r.Timer.Begin(string(s))
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	r.Timer.End(idx, "")
	r.Timings.Add(s, elapsed)
	if err != nil {
		emit(req.Progress, Event{File: r.File, Stage: s, Status: StatusError, Err: err, Elapsed: elapsed})
		return fmt.Errorf("%s: %s: %w", r.File, s, err)
	}
	return nil
}

// roundTrip encodes the tree and decodes it again, so a front end bug in
// sharing or spans surfaces before the midend runs.
func roundTrip(t *ir.Tree, root ir.NodeID) (*ir.Tree, ir.NodeID, error) {
	var buf bytes.Buffer
	if err := ir.Encode(&buf, t, root); err != nil {
		return nil, ir.NoNodeID, fmt.Errorf("debug-ir encode: %w", err)
	}
	return ir.Decode(&buf)
}

func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// #nosec G302 -- generated sources are world-readable like any C file
	if err := os.Chmod(f.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
