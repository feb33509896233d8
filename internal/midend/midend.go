package midend

// Options select the debugging aids of the midend pipeline.
type Options struct {
	DumpDir string
	Top4    []string
}

// MidEnd returns the pass pipeline run before every backend.
func MidEnd(opts Options) *PassManager {
	pm := NewPassManager("midend",
		TypeCheck(),
		HandleNoMatch(),
		EliminateTuples(),
		TypeCheck(),
	)
	if len(opts.Top4) > 0 {
		dir := opts.DumpDir
		if dir == "" {
			dir = "."
		}
		pm.AddDebugHook(DumpHook(dir, opts.Top4), true)
	}
	return pm
}
