package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"astctool.dev/astc/internal/pipeline"
)

func newAOTCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aot <file.c> <out>",
		Short: "Compile C99 source straight to a standalone ELF64 executable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(args[0])
			if err != nil {
				return err
			}

			p := pipeline.New(nil)
			if err := p.Compile(src, pipeline.Options{NoAssembly: true}); err != nil {
				return fmt.Errorf("aot: %w", err)
			}
			if err := p.ASTC2Native(args[1]); err != nil {
				return fmt.Errorf("aot: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[1])
			return nil
		},
	}
	return cmd
}
