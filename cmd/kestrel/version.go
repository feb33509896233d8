package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"kestrel/internal/version"
)

const versionTagline = "midend and eBPF lowering for packet programs"

func newVersionCmd() *cobra.Command {
	var (
		format string
		full   bool
	)
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			switch strings.ToLower(format) {
			case "pretty":
				renderVersionPretty(cmd.OutOrStdout(), info, full)
				return nil
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "pretty", "output format (pretty|json)")
	cmd.Flags().BoolVar(&full, "full", false, "include commit, build date and Go version")
	return cmd
}

func renderVersionPretty(w io.Writer, info version.Info, full bool) {
	fmt.Fprintf(w, "kestrel %s (%s)\n", version.Colored(info.Version), versionTagline)
	if !full {
		return
	}
	fmt.Fprintf(w, "commit: %s\n", valueOrUnknown(version.ShortCommit(info.GitCommit)))
	fmt.Fprintf(w, "built:  %s\n", valueOrUnknown(info.BuildDate))
	fmt.Fprintf(w, "go:     %s\n", valueOrUnknown(info.GoVersion))
}

func valueOrUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
