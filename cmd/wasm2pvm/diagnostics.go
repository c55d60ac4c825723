package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wippyai/wasm2pvm/errors"
)

var (
	errStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// printErr renders err to cmd's error stream, coloring the [phase/kind]
// prefix when err is one of the compiler's own structured errors.
func printErr(cmd *cobra.Command, err error) {
	if cerr, ok := err.(*errors.Error); ok {
		cmd.PrintErrln(errStyle.Render(fmt.Sprintf("[%s/%s]", cerr.Phase, cerr.Kind)) + " " + cerr.Error())
		return
	}
	cmd.PrintErrln(errStyle.Render("[error]") + " " + err.Error())
}

func printWarn(cmd *cobra.Command, format string, args ...any) {
	cmd.Println(warnStyle.Render("warning:"), fmt.Sprintf(format, args...))
}
