package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"kestrel/internal/diag"
	"kestrel/internal/ir"
	"kestrel/internal/midend"
)

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump [flags] <file.kir>",
		Short: "Print a serialized program as source text",
		Args:  cobra.ExactArgs(1),
		RunE:  runDump,
	}
	f := cmd.Flags()
	f.Bool("after-midend", false, "print the program after the midend passes")
	f.String("kir", "", "also write the printed program, re-encoded, to this file")
	return cmd
}

func runDump(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	tree, root, err := ir.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	if after, _ := cmd.Flags().GetBool("after-midend"); after {
		if tree, root, err = lowerForDump(cmd.Context(), cmd, args[0], tree, root); err != nil {
			return err
		}
	}
	if err := ir.Dump(cmd.OutOrStdout(), tree, root); err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("kir")
	if out == "" {
		return nil
	}
	var buf bytes.Buffer
	if err := ir.Encode(&buf, tree, root); err != nil {
		return err
	}
	return os.WriteFile(out, buf.Bytes(), 0o600)
}

func lowerForDump(ctx context.Context, cmd *cobra.Command, name string, tree *ir.Tree, root ir.NodeID) (*ir.Tree, ir.NodeID, error) {
	maxDiags, _ := cmd.Flags().GetInt("max-diagnostics")
	u, err := midend.NewUnit(name, tree, root, diag.NewBag(maxDiags))
	if err != nil {
		return nil, ir.NoNodeID, err
	}
	runErr := midend.MidEnd(midend.Options{}).Run(ctx, u)
	if u.Bag.Len() > 0 {
		_ = diag.Pretty(cmd.ErrOrStderr(), u.Bag, &u.Tree.Files, diag.PrettyOptions{Color: !color.NoColor})
	}
	if runErr != nil {
		return nil, ir.NoNodeID, runErr
	}
	return u.Tree, u.Root, nil
}
