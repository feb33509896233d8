package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"kestrel/internal/ir"
	"kestrel/internal/options"
	"kestrel/internal/testkit"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	root, finish := newRootCmd()
	var out, errb bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errb)
	root.SetArgs(append([]string{"--color", "off"}, args...))
	err = root.ExecuteContext(context.Background())
	finish()
	return out.String(), errb.String(), err
}

func filterKir(t *testing.T, dir string) string {
	t.Helper()
	tree, root := testkit.FilterProgram()
	var buf bytes.Buffer
	if err := ir.Encode(&buf, tree, root); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "filter.kir")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCompileToStdout(t *testing.T) {
	in := filterKir(t, t.TempDir())
	out, _, err := execute(t, "compile", "--ui", "off", "-o", "-", "--target", "bcc", in)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !strings.Contains(out, "int ebpf_filter(") || !strings.Contains(out, "BPF_TABLE(") {
		t.Errorf("stdout:\n%s", out)
	}
}

func TestCompileWritesFile(t *testing.T) {
	dir := t.TempDir()
	in := filterKir(t, dir)
	_, errOut, err := execute(t, "compile", "--ui", "off", "--timings", in)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "filter.c")); err != nil {
		t.Errorf("output missing: %v", err)
	}
	for _, frag := range []string{"compiled", "backend", "timings:"} {
		if !strings.Contains(errOut, frag) {
			t.Errorf("stderr lacks %q:\n%s", frag, errOut)
		}
	}
}

func TestCompileRejectsBadInput(t *testing.T) {
	in := filepath.Join(t.TempDir(), "junk.kir")
	if err := os.WriteFile(in, []byte{0xc1}, 0o600); err != nil {
		t.Fatal(err)
	}
	_, errOut, err := execute(t, "compile", "--ui", "off", in)
	if err == nil || !strings.Contains(err.Error(), "1 of 1 files failed") {
		t.Fatalf("compile = %v", err)
	}
	if !strings.Contains(errOut, "malformed IR encoding") {
		t.Errorf("stderr:\n%s", errOut)
	}
}

func TestResolveOptions(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, options.ManifestName)
	if err := os.WriteFile(manifest, []byte("[compile]\ntarget = \"bcc\"\njobs = 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	var got options.Options
	root, finish := newRootCmd()
	defer finish()
	for _, c := range root.Commands() {
		if c.Name() == "compile" {
			c.RunE = func(cmd *cobra.Command, _ []string) error {
				var err error
				got, err = resolveOptions(cmd)
				return err
			}
		}
	}
	root.SetArgs([]string{"--config", manifest, "compile", "--jobs", "5", "--no-cache", "x.kir"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got.Target != "bcc" || got.Jobs != 5 || got.Cache {
		t.Errorf("options = %+v, want target from the manifest and flags on top", got)
	}
}

func TestDump(t *testing.T) {
	dir := t.TempDir()
	in := filterKir(t, dir)
	kir := filepath.Join(dir, "lowered.kir")
	out, _, err := execute(t, "dump", "--after-midend", "--kir", kir, in)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(out, "control pipe(") || !strings.Contains(out, "state noMatch") {
		t.Errorf("dump:\n%s", out)
	}
	again, _, err := execute(t, "dump", kir)
	if err != nil {
		t.Fatalf("dump of re-encoded file: %v", err)
	}
	if again != out {
		t.Errorf("re-encoded program prints differently")
	}
}

func TestVersionJSON(t *testing.T) {
	out, _, err := execute(t, "version", "--format", "json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var info struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal([]byte(out), &info); err != nil || info.Version == "" {
		t.Errorf("version output %q: %v", out, err)
	}
	if _, _, err := execute(t, "version", "--format", "xml"); err == nil {
		t.Errorf("unknown format accepted")
	}
}

func TestReadUIMode(t *testing.T) {
	if m, err := readUIMode(" ON "); err != nil || m != uiModeOn {
		t.Errorf("readUIMode(ON) = %v, %v", m, err)
	}
	if _, err := readUIMode("sometimes"); err == nil {
		t.Errorf("invalid mode accepted")
	}
	if shouldUseTUI(uiModeOff) || !shouldUseTUI(uiModeOn) {
		t.Errorf("explicit modes ignored")
	}
}
