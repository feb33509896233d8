package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kestrel/internal/buildpipeline"
	"kestrel/internal/options"
)

func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile [flags] <file.kir|dir>...",
		Short: "Compile serialized programs to eBPF C",
		Long: `Compile runs the midend and the eBPF backend over each input and writes
one C file per input. Directories are searched for .kir files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCompile,
	}
	f := cmd.Flags()
	f.StringP("output", "o", "", "output file, or directory with several inputs; - prints to stdout")
	f.String("target", "", "code generation target (kernel|bcc)")
	f.StringSlice("top4", nil, "dump the program after passes whose names contain these substrings (* for all)")
	f.String("dump-dir", "", "directory for pass dumps")
	f.Bool("debug-ir", false, "re-encode and decode each program after loading it")
	f.IntP("jobs", "j", 0, "files compiled in parallel (0 uses GOMAXPROCS)")
	f.String("ui", "auto", "progress view (auto|on|off)")
	f.Bool("no-cache", false, "do not read or write the output cache")
	return cmd
}

func runCompile(cmd *cobra.Command, args []string) error {
	opts, err := resolveOptions(cmd)
	if err != nil {
		return err
	}
	files, err := buildpipeline.ExpandInputs(args)
	if err != nil {
		return err
	}
	stdout := opts.Output == "-"
	if stdout {
		opts.Output = ""
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	req := &buildpipeline.BuildRequest{
		Files:   files,
		BaseDir: cwd,
		Options: opts,
		Stdout:  stdout,
		Cache:   openCache(cmd, opts),
	}

	uiFlag, _ := cmd.Flags().GetString("ui")
	mode, err := readUIMode(uiFlag)
	if err != nil {
		return err
	}
	quiet, _ := cmd.Flags().GetBool("quiet")

	var res buildpipeline.BuildResult
	if !stdout && !quiet && shouldUseTUI(mode) {
		res, err = runBuildWithUI(cmd.Context(), "compiling", buildpipeline.DisplayNames(files, cwd), req)
	} else {
		res, err = buildpipeline.Build(cmd.Context(), req)
	}

	failed := reportResults(cmd, res, stdout, quiet)
	if timings, _ := cmd.Flags().GetBool("timings"); timings {
		printTimings(cmd.ErrOrStderr(), res)
	}
	if failed > 0 {
		dumpRing(cmd)
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return err
}

// resolveOptions layers the flags the user set over the manifest, and the
// manifest over the defaults.
func resolveOptions(cmd *cobra.Command) (options.Options, error) {
	var (
		opts options.Options
		err  error
	)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var m *options.Manifest
		if m, err = options.Load(path); err != nil {
			return opts, err
		}
		opts = m.Compile
	} else if opts, _, err = options.Discover("."); err != nil {
		return opts, err
	}

	f := cmd.Flags()
	if f.Changed("output") {
		opts.Output, _ = f.GetString("output")
	}
	if f.Changed("target") {
		opts.Target, _ = f.GetString("target")
	}
	if f.Changed("top4") {
		opts.Top4, _ = f.GetStringSlice("top4")
	}
	if f.Changed("dump-dir") {
		opts.DumpDir, _ = f.GetString("dump-dir")
	}
	if f.Changed("debug-ir") {
		opts.DebugIR, _ = f.GetBool("debug-ir")
	}
	if f.Changed("jobs") {
		opts.Jobs, _ = f.GetInt("jobs")
	}
	if f.Changed("max-diagnostics") {
		opts.MaxDiagnostics, _ = f.GetInt("max-diagnostics")
	}
	if noCache, _ := f.GetBool("no-cache"); noCache {
		opts.Cache = false
	}
	return opts, opts.Validate()
}

func openCache(cmd *cobra.Command, opts options.Options) *buildpipeline.Cache {
	if !opts.Cache {
		return nil
	}
	dir, err := buildpipeline.DefaultCacheDir()
	if err == nil {
		var c *buildpipeline.Cache
		if c, err = buildpipeline.OpenCache(dir); err == nil {
			return c
		}
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "warning: output cache disabled: %v\n", err)
	return nil
}
