package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/javarena/internal/explain"
	"github.com/michaelbrown/javarena/internal/history"
	"github.com/michaelbrown/javarena/internal/sandbox"
)

// Exit status for runs killed at the time limit, as timeout(1) uses.
const timeoutStatus = 124

var (
	stdinFlag     string
	stdinFileFlag string
	explainFlag   bool
	noHistoryFlag bool
)

var runCmd = &cobra.Command{
	Use:   "run <file.java>",
	Short: "Compile and run a program to completion",
	Long: `Compile a single-file Java program and run it with a time limit.

The program's stdout and stderr are passed through unchanged. Programs that
read input get it from --stdin or --stdin-file; without either, a program
that waits for input is stopped at the time limit.

Examples:
  javarena run Main.java
  javarena run Main.java --stdin "3 4"
  javarena run Main.java --explain`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&stdinFlag, "stdin", "", "Text to feed the program on standard input")
	runCmd.Flags().StringVar(&stdinFileFlag, "stdin-file", "", "File to feed the program on standard input")
	runCmd.Flags().BoolVar(&explainFlag, "explain", false, "Explain compile and runtime errors")
	runCmd.Flags().BoolVar(&noHistoryFlag, "no-history", false, "Don't record this run in the execution history")
	runCmd.MarkFlagsMutuallyExclusive("stdin", "stdin-file")
	rootCmd.AddCommand(runCmd)
}

func readSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading source: %w", err)
	}
	return string(data), nil
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	source, err := readSource(args[0])
	if err != nil {
		return err
	}
	stdin := stdinFlag
	if stdinFileFlag != "" {
		data, err := os.ReadFile(stdinFileFlag)
		if err != nil {
			return fmt.Errorf("reading stdin file: %w", err)
		}
		stdin = string(data)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := a.runner.Execute(ctx, source, stdin)
	printOutcome(cmd.OutOrStdout(), cmd.ErrOrStderr(), out)

	if !noHistoryFlag {
		if store, err := a.openStore(); err != nil {
			a.log.Warn("execution not recorded", "err", err)
		} else {
			history.NewRecorder(store, a.log).Outcome(ctx, out)
			store.Close()
		}
	}

	if explainFlag && strings.TrimSpace(out.Error) != "" {
		compile := !out.Compiled && errors.Is(out.Err, sandbox.ErrCompileFailure)
		a.explain(ctx, cmd.OutOrStdout(), out.Error, source, compile)
	}

	if code := exitStatus(out); code != 0 {
		return exitError{code: code}
	}
	return nil
}

func printOutcome(stdout, stderr io.Writer, out sandbox.Outcome) {
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	if !out.Compiled {
		red.Fprintln(stderr, strings.TrimRight(out.Error, "\n"))
		return
	}
	io.WriteString(stdout, out.Stdout)
	io.WriteString(stderr, out.Stderr)

	switch {
	case out.NeedsInput:
		yellow.Fprintln(stderr, out.Error)
	case out.Run.ExitReason == sandbox.TimedOut:
		red.Fprintln(stderr, out.Error)
	case !out.Succeeded:
		red.Fprintln(stderr, out.Error)
	}
}

func exitStatus(out sandbox.Outcome) int {
	switch {
	case !out.Compiled:
		return 1
	case out.Run.ExitReason != sandbox.Completed:
		return timeoutStatus
	case !out.Succeeded:
		return 1
	default:
		return out.Run.ExitCode
	}
}

// explain streams the AI reviewer's answer when one is configured and
// falls back to the built-in rules.
func (a *app) explain(ctx context.Context, w io.Writer, errText, source string, compile bool) {
	heading := color.New(color.FgCyan, color.Bold)
	fmt.Fprintln(w)

	if rv := a.reviewer(); rv != nil {
		heading.Fprintln(w, "AI review")
		answer, err := rv.Stream(ctx, errText, source, compile, func(delta string) {
			io.WriteString(w, delta)
		})
		if err == nil && answer != "" {
			fmt.Fprintln(w)
			return
		}
		a.log.Warn("ai review unavailable; using built-in explanation", "err", err)
	}

	review := explain.Explain(errText, source, compile)
	if review == nil {
		return
	}
	heading.Fprintln(w, review.Title)
	fmt.Fprintln(w, review.Explanation)
	if len(review.LineNumbers) > 0 {
		fmt.Fprintf(w, "Lines: %s\n", joinInts(review.LineNumbers))
	}
	for _, s := range review.Suggestions {
		fmt.Fprintf(w, "  • %s\n", s)
	}
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
