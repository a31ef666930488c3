package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/javarena/internal/storage"
)

var (
	modeFilter string
	limitFlag  int
)

var historyCmd = &cobra.Command{
	Use:   "history [execution-id]",
	Short: "List recorded executions, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&modeFilter, "mode", "", "Filter by mode (batch, interactive)")
	historyCmd.Flags().IntVar(&limitFlag, "limit", 20, "Max executions to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	w := cmd.OutOrStdout()

	if len(args) == 1 {
		e, err := store.GetExecution(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Execution: %s\n", e.ID)
		fmt.Fprintf(w, "Mode:      %s\n", e.Mode)
		fmt.Fprintf(w, "Status:    %s\n", statusColor(e.Status).Sprint(e.Status))
		fmt.Fprintf(w, "Exit code: %d\n", e.ExitCode)
		fmt.Fprintf(w, "Duration:  %s\n", time.Duration(e.DurationMillis)*time.Millisecond)
		fmt.Fprintf(w, "Created:   %s\n", e.CreatedAt.Format(time.RFC3339))
		if e.Error != "" {
			fmt.Fprintf(w, "Error:     %s\n", e.Error)
		}
		return nil
	}

	execs, err := store.ListExecutions(ctx, storage.ExecutionListOptions{
		Mode:  storage.Mode(modeFilter),
		Limit: limitFlag,
	})
	if err != nil {
		return err
	}
	if len(execs) == 0 {
		fmt.Fprintln(w, "No executions found.")
		return nil
	}

	// Header
	fmt.Fprintf(w, "%-10s %-12s %-14s %5s %9s  %s\n", "ID", "MODE", "STATUS", "EXIT", "DURATION", "WHEN")
	fmt.Fprintln(w, strings.Repeat("─", 66))

	for _, e := range execs {
		status := fmt.Sprintf("%-14s", e.Status)
		fmt.Fprintf(w, "%-10s %-12s %s %5d %9s  %s\n",
			shortID(e.ID), e.Mode, statusColor(e.Status).Sprint(status), e.ExitCode,
			time.Duration(e.DurationMillis)*time.Millisecond, timeAgo(e.CreatedAt))
	}
	return nil
}

func statusColor(s storage.ExecStatus) *color.Color {
	switch s {
	case storage.StatusCompleted:
		return color.New(color.FgGreen)
	case storage.StatusNeedsInput, storage.StatusStopped, storage.StatusTimeout:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
