// Command wasm2pvm is a thin ahead-of-time recompiler driver: it reads a
// WebAssembly binary module, runs it through translate.Compile, and writes
// the resulting SPI container. It carries none of the pipeline's logic.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wasm2pvm",
		Short:         "Ahead-of-time recompiler from WebAssembly to PVM bytecode",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCompileCmd(), newInspectCmd())
	root.CompletionOptions.DisableDefaultCmd = true
	return root
}

func fail(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
