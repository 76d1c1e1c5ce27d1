// Command astcc is a thin CLI wrapper around the pipeline facade: it
// reads a C99 source file and compiles, executes, JIT-runs, or
// AOT-compiles it depending on the subcommand invoked.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "astcc",
		Short: "Compile and run C99 source through the ASTC toolchain",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		_, err := setupLogging(verbose)
		return err
	}

	root.AddCommand(
		newCompileCmd(),
		newRunCmd(),
		newJITCmd(),
		newAOTCmd(),
	)
	return root
}
