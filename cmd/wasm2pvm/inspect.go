package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm2pvm/translate"
)

func newInspectCmd() *cobra.Command {
	var (
		stackSize uint32
		heapPages uint32
	)

	cmd := &cobra.Command{
		Use:   "inspect <input.wasm>",
		Short: "Compile a module and print per-function lowering diagnostics without writing a container",
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

			if len(result.Diagnostics) == 0 {
				printWarn(cmd, "module has no local functions")
				return nil
			}

			cmd.Printf("%-6s %-10s %-10s %-8s\n", "func", "bytes", "fixups", "frame")
			for _, d := range result.Diagnostics {
				cmd.Printf("%-6d %-10d %-10d %-8d\n", d.Index, d.CodeBytes, d.NumFixups, d.FrameSize)
			}
			cmd.Printf("\ntotal container size: %d bytes\n", len(result.SPI))
			return nil
		},
	}

	cmd.Flags().Uint32Var(&stackSize, "stack-size", 0, "stack segment size in bytes (0 = default)")
	cmd.Flags().Uint32Var(&heapPages, "heap-pages", 0, "linear memory page ceiling (0 = default)")
	return cmd
}
