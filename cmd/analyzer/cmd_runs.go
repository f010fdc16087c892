package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spacesedan/moodlens/config"
	"github.com/spacesedan/moodlens/internal/db"
	"github.com/spacesedan/moodlens/internal/report"
	"github.com/spf13/cobra"
)

func newRunsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List saved runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdRuns(cmd.Context(), a.cfg.Store, limit, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")
	return cmd
}

func cmdRuns(ctx context.Context, cfg config.StoreConfig, limit int, stdout io.Writer) error {
	store, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "No runs found.")
		return nil
	}

	fmt.Fprintln(stdout, report.RunsTable(runs))
	return nil
}

func newShowCmd(a *app) *cobra.Command {
	var showResults bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the summary of a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdShow(cmd.Context(), a.cfg.Store, args[0], showResults, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVarP(&showResults, "results", "r", false, "print every comment with its sentiment")
	return cmd
}

func cmdShow(ctx context.Context, cfg config.StoreConfig, id string, showResults bool, stdout io.Writer) error {
	store, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	run, results, err := store.GetRun(ctx, id)
	if errors.Is(err, db.ErrRunNotFound) {
		return fmt.Errorf("no run with id %q", id)
	}
	if err != nil {
		return fmt.Errorf("loading run: %w", err)
	}

	fmt.Fprintf(stdout, "Run:      %s\n", run.ID)
	fmt.Fprintf(stdout, "Mode:     %s\n", run.Mode)
	fmt.Fprintf(stdout, "Backend:  %s\n", run.Backend)
	fmt.Fprintf(stdout, "Created:  %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if run.Error != "" {
		fmt.Fprintf(stdout, "Stopped:  %s\n", run.Error)
	}
	fmt.Fprintln(stdout)

	if showResults {
		fmt.Fprintln(stdout, report.ResultsTable(results))
	}
	fmt.Fprintln(stdout, report.SummaryTable(run.Counts, run.Total))
	return nil
}
