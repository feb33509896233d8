// Command kestrel lowers serialized packet-processing programs to eBPF C.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"kestrel/internal/diag"
	"kestrel/internal/prof"
	"kestrel/internal/version"
)

// newRootCmd builds the command tree. The returned function releases what
// the persistent pre-run set up and must run after Execute.
func newRootCmd() (*cobra.Command, func()) {
	var (
		cleanup  func()
		profiles *prof.Session
	)
	root := &cobra.Command{
		Use:           "kestrel",
		Short:         "Lower packet-processing programs to eBPF C",
		Long:          "kestrel runs the midend passes over serialized programs and emits eBPF C for the kernel or bcc.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := setupColor(cmd); err != nil {
				return err
			}
			var err error
			if profiles, err = startProfiles(cmd); err != nil {
				return err
			}
			cleanup, err = setupTracing(cmd)
			return err
		},
	}

	pf := root.PersistentFlags()
	pf.String("color", "auto", "colorize output (auto|on|off)")
	pf.Bool("quiet", false, "suppress non-essential output")
	pf.Bool("timings", false, "print stage and pass timings")
	pf.Int("max-diagnostics", 100, "maximum diagnostics kept per file")
	pf.String("config", "", "path to kestrel.toml (default: searched from the working directory)")
	pf.String("cpuprofile", "", "write a CPU profile to this file")
	pf.String("memprofile", "", "write a heap profile to this file on exit")
	pf.String("runtime-trace", "", "write a Go runtime trace to this file")
	addTraceFlags(root)

	root.AddCommand(newCompileCmd(), newDumpCmd(), newVersionCmd())
	return root, func() {
		if cleanup != nil {
			cleanup()
			cleanup = nil
		}
		if err := profiles.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "profile: %v\n", err)
		}
	}
}

func startProfiles(cmd *cobra.Command) (*prof.Session, error) {
	var cfg prof.Config
	cfg.CPU, _ = cmd.Flags().GetString("cpuprofile")
	cfg.Mem, _ = cmd.Flags().GetString("memprofile")
	cfg.Trace, _ = cmd.Flags().GetString("runtime-trace")
	if cfg == (prof.Config{}) {
		return nil, nil
	}
	return prof.Start(cfg)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, finish := newRootCmd()
	err := root.ExecuteContext(ctx)
	finish()
	if err == nil {
		return
	}
	// Program diagnostics were already printed per file.
	if !errors.Is(err, diag.ErrProgram) {
		fmt.Fprintln(os.Stderr, color.New(color.FgRed, color.Bold).Sprint("error:"), err)
	}
	os.Exit(1)
}

func setupColor(cmd *cobra.Command) error {
	mode, err := cmd.Flags().GetString("color")
	if err != nil {
		return err
	}
	switch strings.ToLower(mode) {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto", "":
		color.NoColor = !isTerminal(os.Stderr)
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
