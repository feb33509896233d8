package buildpipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// InputExt is the extension of serialized programs.
const InputExt = ".kir"

// ExpandInputs resolves command-line arguments to input files. Files are
// taken as given; directories contribute every .kir file below them,
// skipping hidden directories. The result is deduplicated and sorted.
func ExpandInputs(args []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(p string) {
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(arg)
			continue
		}
		before := len(files)
		err = filepath.WalkDir(arg, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != arg && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(p) == InputExt {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if len(files) == before {
			return nil, fmt.Errorf("no %s files under %s", InputExt, arg)
		}
	}
	sort.Strings(files)
	return files, nil
}

// DisplayNames shortens paths for progress output: relative to baseDir
// when they lie below it, slash-separated.
func DisplayNames(files []string, baseDir string) []string {
	base := strings.TrimSpace(baseDir)
	if base != "" {
		if abs, err := filepath.Abs(base); err == nil {
			base = abs
		}
	}
	out := make([]string, len(files))
	for i, f := range files {
		p := filepath.Clean(f)
		if base != "" {
			if abs, err := filepath.Abs(p); err == nil {
				if rel, err := filepath.Rel(base, abs); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
					p = rel
				}
			}
		}
		out[i] = filepath.ToSlash(p)
	}
	return out
}
