package options_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kestrel/internal/options"
)

func writeManifest(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, options.ManifestName)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
[compile]
target = "bcc"
output = "build"
top4 = ["Tuples", "noMatch"]
debug_ir = true
jobs = 2
`)
	m, err := options.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c := m.Compile
	if c.Target != "bcc" || c.Jobs != 2 || !c.DebugIR || len(c.Top4) != 2 {
		t.Errorf("options = %+v", c)
	}
	if c.Output != filepath.Join(dir, "build") {
		t.Errorf("output = %q, want it resolved against the manifest", c.Output)
	}
	if c.MaxDiagnostics != 100 || !c.Cache {
		t.Errorf("undefined keys lost their defaults: %+v", c)
	}
}

func TestLoadRejects(t *testing.T) {
	for name, body := range map[string]string{
		"unknown key":    "[compile]\noptimize = true\n",
		"bad target":     "[compile]\ntarget = \"xdp\"\n",
		"negative jobs":  "[compile]\njobs = -1\n",
		"empty top4":     "[compile]\ntop4 = [\"\"]\n",
		"malformed toml": "[compile\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := writeManifest(t, t.TempDir(), body)
			if _, err := options.Load(path); err == nil {
				t.Errorf("Load accepted %q", body)
			} else if !strings.Contains(err.Error(), path) {
				t.Errorf("error %q does not name the manifest", err)
			}
		})
	}
}

func TestDiscoverWalksUp(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[compile]\ntarget = \"bcc\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	opts, m, err := options.Discover(nested)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if m == nil || m.Root != root || opts.Target != "bcc" {
		t.Errorf("Discover = %+v, %+v", opts, m)
	}
}

func TestEffectiveJobs(t *testing.T) {
	o := options.Options{Jobs: 4}
	if got := o.EffectiveJobs(2); got != 2 {
		t.Errorf("EffectiveJobs(2) = %d", got)
	}
	if got := o.EffectiveJobs(0); got != 1 {
		t.Errorf("EffectiveJobs(0) = %d", got)
	}
	o.Jobs = 0
	if got := o.EffectiveJobs(1000); got < 1 {
		t.Errorf("EffectiveJobs with default jobs = %d", got)
	}
}
