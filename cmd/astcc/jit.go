package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"astctool.dev/astc/internal/astc"
	"astctool.dev/astc/internal/jit"
	"astctool.dev/astc/internal/pipeline"
)

func newJITCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jit <file.c>",
		Short: "Compile C99 source and JIT-run its main function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(args[0])
			if err != nil {
				return err
			}

			p := pipeline.New(nil)
			if err := p.Compile(src, pipeline.Options{NoAssembly: true}); err != nil {
				return fmt.Errorf("jit: %w", err)
			}

			mainIdx, ok := mainSymbol(p.Program())
			if !ok {
				return fmt.Errorf("jit: no main function found")
			}

			ctx, ptr, err := p.CompileJIT(mainIdx)
			if err != nil {
				return fmt.Errorf("jit: %w", err)
			}
			defer ctx.Close()

			os.Exit(int(jit.Invoke(ptr)))
			return nil
		},
	}
	return cmd
}

func mainSymbol(prog *astc.Program) (uint32, bool) {
	if prog == nil {
		return 0, false
	}
	for _, s := range prog.Symbols {
		if s.Kind == astc.SymFunction && s.Name == "main" {
			return s.Index, true
		}
	}
	return 0, false
}
