package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spacesedan/moodlens/config"
	"github.com/spacesedan/moodlens/internal/analysis"
	"github.com/spacesedan/moodlens/internal/backend"
	"github.com/spacesedan/moodlens/internal/clients"
	"github.com/spacesedan/moodlens/internal/db"
	"github.com/spacesedan/moodlens/internal/models"
	"github.com/spacesedan/moodlens/internal/report"
	"github.com/spacesedan/moodlens/internal/textprep"
	"github.com/spf13/cobra"
)

type analyzeOptions struct {
	mode        string
	backend     string
	noSave      bool
	showResults bool
	subreddit   string
	query       string
}

// runner is satisfied by both analyzers.
type runner interface {
	Run(ctx context.Context, comments []string, onProgress ...analysis.ProgressFunc) ([]models.SentimentResult, error)
}

func newAnalyzeCmd(a *app) *cobra.Command {
	opts := analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Classify the sentiment of comments, one per line",
		Long: "Reads one comment per line from file (or stdin when file is omitted or \"-\"),\n" +
			"or pulls posts from --subreddit, classifies each one and prints a summary.\n" +
			"Runs are saved to the configured store.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return cmdAnalyze(cmd.Context(), a.cfg, opts, path, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", models.ModeLocal, "local (one comment per call) or remote (batched gateway calls)")
	cmd.Flags().StringVarP(&opts.backend, "backend", "b", "", "local backend: vader, hugot or gateway (overrides config)")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "do not persist the run")
	cmd.Flags().BoolVarP(&opts.showResults, "results", "r", false, "print every comment with its sentiment")
	cmd.Flags().StringVar(&opts.subreddit, "subreddit", "", "analyze posts from this subreddit instead of a file")
	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "search query within --subreddit; newest posts when empty")
	return cmd
}

func cmdAnalyze(ctx context.Context, cfg *config.Config, opts analyzeOptions, path string, stdin io.Reader, stdout, stderr io.Writer) error {
	if opts.subreddit != "" && path != "" {
		return errors.New("pass either a file or --subreddit, not both")
	}

	var comments []string
	var err error
	if opts.subreddit != "" {
		comments, err = fetchSubreddit(ctx, cfg.Reddit, opts.subreddit, opts.query)
	} else {
		comments, err = readComments(path, stdin)
	}
	if err != nil {
		return err
	}
	if len(comments) == 0 {
		fmt.Fprintln(stdout, "No comments to analyze.")
		return nil
	}

	if opts.backend != "" {
		cfg.Analysis.Backend = opts.backend
	}

	analyzer, backendName, cleanup, err := buildRunner(cfg, opts.mode)
	if err != nil {
		return err
	}
	defer cleanup()

	onProgress, finish := progressReporter(stderr, len(comments))
	results, runErr := analyzer.Run(ctx, comments, onProgress)
	finish()

	if len(results) > 0 {
		if opts.showResults {
			fmt.Fprintln(stdout, report.ResultsTable(results))
		}
		counts := report.Summarize(results)
		fmt.Fprintln(stdout, report.SummaryTable(counts, len(results)))
	}
	if runErr != nil {
		fmt.Fprintf(stderr, "%s (%d of %d comments analyzed)\n", analysis.UserMessage(runErr), len(results), len(comments))
	}

	if !opts.noSave && len(results) > 0 {
		// a cancelled run is still saved
		runID, err := saveRun(context.WithoutCancel(ctx), cfg.Store, opts.mode, backendName, results, runErr)
		if err != nil {
			slog.Error("[Analyze] Failed to save run", slog.String("error", err.Error()))
			return errors.Join(runErr, err)
		}
		fmt.Fprintf(stdout, "Saved run %s\n", runID)
	}

	return runErr
}

func readComments(path string, stdin io.Reader) ([]string, error) {
	r := stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening comments: %w", err)
		}
		defer f.Close()
		r = f
	}

	lines, err := textprep.ReadLines(r)
	if err != nil {
		return nil, err
	}
	return textprep.Prepare(lines), nil
}

func fetchSubreddit(ctx context.Context, cfg config.RedditConfig, subreddit, query string) ([]string, error) {
	reddit, err := clients.NewRedditClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: set REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET", err)
	}
	posts, err := reddit.FetchComments(ctx, subreddit, query)
	if err != nil {
		return nil, err
	}
	return textprep.Clean(posts), nil
}

func buildRunner(cfg *config.Config, mode string) (runner, string, func(), error) {
	switch mode {
	case models.ModeLocal, "":
		analyzer, cleanup, err := backend.Local(cfg)
		if err != nil {
			return nil, "", nil, err
		}
		return analyzer, cfg.Analysis.Backend, cleanup, nil
	case models.ModeRemote:
		analyzer, _, err := backend.Remote(cfg)
		if err != nil {
			return nil, "", nil, err
		}
		return analyzer, config.BackendGateway, func() {}, nil
	default:
		return nil, "", nil, fmt.Errorf("unknown mode %q: use local or remote", mode)
	}
}

// progressReporter draws a bar when w is a terminal and stays silent
// otherwise.
func progressReporter(w io.Writer, total int) (analysis.ProgressFunc, func()) {
	f, ok := w.(*os.File)
	if !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return func(models.AnalysisProgress) {}, func() {}
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("analyzing"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	onProgress := func(p models.AnalysisProgress) {
		_ = bar.Set(p.Current)
	}
	return onProgress, func() { _ = bar.Finish() }
}

func saveRun(ctx context.Context, cfg config.StoreConfig, mode, backendName string, results []models.SentimentResult, runErr error) (string, error) {
	store, err := db.Open(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer store.Close()

	run := db.NewRun(mode, backendName, results, runErr)
	if err := store.SaveRun(ctx, run, results); err != nil {
		return "", err
	}
	return run.ID, nil
}
