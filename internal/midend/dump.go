package midend

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"kestrel/internal/ir"
)

// DumpHook returns a DebugHook that prints the program into dir after every
// pass whose name contains one of the top4 substrings. A "*" entry matches
// every pass.
func DumpHook(dir string, top4 []string) DebugHook {
	return func(manager string, seq int, pass string, u *Unit) (err error) {
		if !matchesAny(pass, top4) {
			return nil
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		name := fmt.Sprintf("%s-%s-%02d-%s.p4", stem(u.Name), manager, seq, pass)
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, f.Close())
		}()
		return ir.Dump(f, u.Tree, u.Root)
	}
}

func matchesAny(pass string, patterns []string) bool {
	for _, p := range patterns {
		if p == "*" || (p != "" && strings.Contains(pass, p)) {
			return true
		}
	}
	return false
}

func stem(name string) string {
	if name == "" {
		return "program"
	}
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
