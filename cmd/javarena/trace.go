package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/javarena/internal/trace"
)

var formatFlag string

var traceCmd = &cobra.Command{
	Use:   "trace <file.java>",
	Short: "Step through main without running it",
	Long: `Simulate the program's static main method and print the stack, heap and
console after each step. Only declarations, assignments and println calls
are simulated; other statements are skipped.

Examples:
  javarena trace Main.java
  javarena trace Main.java --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runTrace,
}

func init() {
	traceCmd.Flags().StringVarP(&formatFlag, "format", "f", "text", "Output format: text, json or yaml")
	rootCmd.AddCommand(traceCmd)
}

func runTrace(cmd *cobra.Command, args []string) error {
	source, err := readSource(args[0])
	if err != nil {
		return err
	}

	steps, err := trace.Visualize(source)
	if err != nil {
		var perr *trace.ParseError
		if errors.As(err, &perr) {
			color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "%s:%d:%d: %s\n", args[0], perr.Line, perr.Column, perr.Msg)
			return exitError{code: 1}
		}
		return err
	}

	w := cmd.OutOrStdout()
	switch formatFlag {
	case "json":
		return trace.ExportJSON(w, steps)
	case "yaml":
		return trace.ExportYAML(w, steps)
	case "text":
		return trace.RenderText(w, steps)
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", formatFlag)
	}
}
