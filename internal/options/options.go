// Package options holds the compiler options and loads them from a
// kestrel.toml manifest.
package options

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"kestrel/internal/backend/ebpf"
)

// ManifestName is the file Find looks for.
const ManifestName = "kestrel.toml"

// Options configure one compiler invocation.
type Options struct {
	Target         string   `toml:"target"`
	Output         string   `toml:"output"`   // file for one input, directory for several
	DumpDir        string   `toml:"dump_dir"` // where pass dumps go
	Top4           []string `toml:"top4"`     // dump after passes whose names contain one of these
	DebugIR        bool     `toml:"debug_ir"` // round-trip the tree through its encoding after loading
	Jobs           int      `toml:"jobs"`
	MaxDiagnostics int      `toml:"max_diagnostics"`
	Cache          bool     `toml:"cache"`
}

// Default returns the options used when neither a manifest nor a flag
// sets a value.
func Default() Options {
	return Options{
		Target:         ebpf.TargetKernel,
		Jobs:           runtime.GOMAXPROCS(0),
		MaxDiagnostics: 100,
		Cache:          true,
	}
}

// Manifest is a decoded kestrel.toml.
type Manifest struct {
	Path    string
	Root    string
	Compile Options
}

type manifestFile struct {
	Compile Options `toml:"compile"`
}

// Find looks for a manifest in startDir and its parents.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("resolve %q: %w", startDir, err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Load decodes the manifest at path over the defaults. Keys the manifest
// does not define keep their default; unknown keys are an error. Relative
// output and dump paths are resolved against the manifest's directory.
func Load(path string) (*Manifest, error) {
	file := manifestFile{Compile: Default()}
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, fmt.Errorf("%s: parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	m := &Manifest{Path: path, Root: filepath.Dir(path), Compile: file.Compile}
	c := &m.Compile
	if meta.IsDefined("compile", "output") {
		c.Output = m.resolve(c.Output)
	}
	if meta.IsDefined("compile", "dump_dir") {
		c.DumpDir = m.resolve(c.DumpDir)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Discover finds and loads the manifest governing startDir. It returns
// the defaults and a nil manifest when there is none.
func Discover(startDir string) (Options, *Manifest, error) {
	path, ok, err := Find(startDir)
	if err != nil || !ok {
		return Default(), nil, err
	}
	m, err := Load(path)
	if err != nil {
		return Options{}, nil, err
	}
	return m.Compile, m, nil
}

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Root, filepath.FromSlash(p))
}

// Validate checks option values that do not depend on the inputs.
func (o *Options) Validate() error {
	if _, err := ebpf.TargetByName(o.Target); err != nil {
		return err
	}
	if o.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative, got %d", o.Jobs)
	}
	if o.MaxDiagnostics < 0 {
		return fmt.Errorf("max_diagnostics must not be negative, got %d", o.MaxDiagnostics)
	}
	if slices.Contains(o.Top4, "") {
		return errors.New("top4 entries must not be empty")
	}
	return nil
}

// EffectiveJobs is the worker count for n inputs.
func (o *Options) EffectiveJobs(n int) int {
	jobs := o.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	return max(1, min(jobs, n))
}
