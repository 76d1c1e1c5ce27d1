package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"astctool.dev/astc/internal/emit"
	"astctool.dev/astc/internal/pipeline"
)

func newCompileCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "compile <file.c>",
		Short: "Compile C99 source to ASTC and print the rendered assembly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(args[0])
			if err != nil {
				return err
			}
			id, err := emit.ParseID(target)
			if err != nil {
				return err
			}

			p := pipeline.New(nil)
			if err := p.Compile(src, pipeline.Options{Target: id}); err != nil {
				return fmt.Errorf("compile: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), p.Assembly())
			return nil
		},
	}
	cmd.Flags().StringVarP(&target, "target", "t", "x86-64", "assembly target (x86-64, x86, arm64, arm32, riscv64, riscv32)")
	return cmd
}
