package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm2pvm/translate"
)

func newCompileCmd() *cobra.Command {
	var (
		out       string
		stackSize uint32
		heapPages uint32
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "compile <input.wasm>",
		Short: "Translate a WebAssembly binary module to a PVM SPI container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			wasmBytes, err := os.ReadFile(in)
			if err != nil {
				return fail("read %s: %w", in, err)
			}

			result, err := translate.Compile(wasmBytes, translate.Options{
				StackSize: stackSize,
				HeapPages: heapPages,
			})
			if err != nil {
				printErr(cmd, err)
				return err
			}

			if out == "" {
				out = deriveOutputPath(in)
			}
			if err := os.WriteFile(out, result.SPI, 0o644); err != nil {
				return fail("write %s: %w", out, err)
			}

			if !quiet {
				cmd.Printf("wrote %s (%d bytes, %d functions)\n", out, len(result.SPI), len(result.Diagnostics))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "", "output SPI file path (default: input with .pvm extension)")
	cmd.Flags().Uint32Var(&stackSize, "stack-size", 0, "stack segment size in bytes (0 = default)")
	cmd.Flags().Uint32Var(&heapPages, "heap-pages", 0, "linear memory page ceiling (0 = default)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress the success summary line")
	return cmd
}

func deriveOutputPath(in string) string {
	for i := len(in) - 1; i >= 0 && in[i] != '/'; i-- {
		if in[i] == '.' {
			return in[:i] + ".pvm"
		}
	}
	return in + ".pvm"
}
