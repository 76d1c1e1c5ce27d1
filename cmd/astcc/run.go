package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"astctool.dev/astc/internal/ffi"
	"astctool.dev/astc/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file.c>",
		Short: "Compile and interpret C99 source on the stack VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(args[0])
			if err != nil {
				return err
			}

			registry, err := ffi.New()
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}

			p := pipeline.New(registry)
			result, err := p.CompileAndRun(src, pipeline.Options{NoAssembly: true})
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			os.Exit(int(result))
			return nil
		},
	}
	return cmd
}
