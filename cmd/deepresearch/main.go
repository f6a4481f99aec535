// Command deepresearch is a CLI client for the Gemini Deep Research agent.
//
// Usage:
//
//	export GEMINI_API_KEY="your-api-key"
//	deepresearch research "What are the latest developments in quantum computing?"
//	deepresearch status <interaction-id>
//	deepresearch fetch-results [interaction-id]
//	deepresearch list
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nstogner/deepresearch/pkg/agent/gemini"
	"github.com/nstogner/deepresearch/pkg/config"
	"github.com/nstogner/deepresearch/pkg/domain"
	"github.com/nstogner/deepresearch/pkg/research"
	"github.com/nstogner/deepresearch/pkg/store"
	"github.com/nstogner/deepresearch/pkg/store/sqlite"
)

// longRunningThreshold is when the CLI tells the user the research is taking
// longer than usual and how to pick it up later.
const longRunningThreshold = 9 * time.Minute

var rootCmd = &cobra.Command{
	Use:           "deepresearch",
	Short:         "Autonomous deep research powered by the Gemini Deep Research agent",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	}

	rootCmd.AddCommand(newResearchCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newFetchResultsCmd())
	rootCmd.AddCommand(newListCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		os.Exit(1)
	}
}

// app bundles the wired components behind each command.
type app struct {
	cfg  *config.Config
	svc  *research.Service
	runs store.RunStore
}

// buildApp loads configuration, validates the credential before any network
// activity, and wires the gateway, history store and orchestrator.
func buildApp() (*app, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gw := gemini.New(cfg.APIKey,
		gemini.WithAgent(cfg.Agent),
		gemini.WithBaseURL(cfg.BaseURL),
	)

	// History is auxiliary: a broken database must not block research.
	var runs store.RunStore
	if err := os.MkdirAll(filepath.Dir(cfg.HistoryDB), 0755); err != nil {
		slog.Warn("failed to create history directory", "path", cfg.HistoryDB, "error", err)
	} else if s, err := sqlite.New(cfg.HistoryDB); err != nil {
		slog.Warn("failed to open run history", "path", cfg.HistoryDB, "error", err)
	} else {
		runs = s
	}

	return &app{
		cfg:  cfg,
		svc:  research.New(gw, runs, cfg.Agent, cfg.OutputDir),
		runs: runs,
	}, nil
}

func (a *app) close() {
	if a.runs != nil {
		a.runs.Close()
	}
}

func newResearchCmd() *cobra.Command {
	var (
		pollInterval int
		maxAttempts  int
	)

	cmd := &cobra.Command{
		Use:   "research <query>",
		Short: "Conduct autonomous deep research on a topic and save the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			interval := a.cfg.PollInterval()
			if pollInterval > 0 {
				interval = time.Duration(pollInterval) * time.Second
			}

			req := domain.ResearchRequest{Query: args[0], PollInterval: interval}
			return runResearch(cmd.Context(), a, req, maxAttempts)
		},
	}

	cmd.Flags().IntVarP(&pollInterval, "poll-interval", "i", 0,
		"seconds between status polls (default from config, 10)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0,
		"stop polling after this many attempts (0 = poll until done)")
	return cmd
}

func runResearch(ctx context.Context, a *app, req domain.ResearchRequest, maxAttempts int) error {
	// The report path is fixed before the remote task starts, so an
	// interrupted run still knows where its report was headed.
	reportPath, err := a.svc.OutputPath(time.Now())
	if err != nil {
		return err
	}

	fmt.Println(renderInfo(fmt.Sprintf("Initiating research on: %s", req.Query)))
	interactionID, err := a.svc.StartResearch(ctx, req, reportPath)
	if err != nil {
		return err
	}

	fmt.Printf("\n%s %s\n", labelStyle.Render("Interaction ID:"), idStyle.Render(interactionID))
	fmt.Println(dimStyle.Render(fmt.Sprintf("Use 'deepresearch status %s' to check progress", interactionID)))
	fmt.Println()

	start := time.Now()
	shownLongRunning := false
	onUpdate := func(state domain.State, elapsed time.Duration) {
		if elapsed > longRunningThreshold && !shownLongRunning {
			fmt.Printf("\r\033[K%s\n", warnStyle.Render("Research is taking longer than expected (9+ minutes)."))
			fmt.Println("You can:")
			fmt.Printf("  - check status:  %s\n", idStyle.Render("deepresearch status "+interactionID))
			fmt.Printf("  - fetch results: %s\n", idStyle.Render("deepresearch fetch-results "+interactionID))
			fmt.Println(dimStyle.Render("Press Ctrl+C to stop polling (research continues in the background)"))
			fmt.Println()
			shownLongRunning = true
		}
		fmt.Printf("\r\033[K%s", dimStyle.Render(fmt.Sprintf(
			"Status: %s (%.0fs elapsed, next check in %s)", state, elapsed.Seconds(), req.PollInterval)))
	}

	snap, err := a.svc.PollUntilComplete(ctx, interactionID, req.PollInterval, onUpdate, maxAttempts)
	fmt.Print("\r\033[K")
	if err != nil {
		var timeout *domain.PollTimeoutError
		if errors.As(err, &timeout) {
			fmt.Println(warnStyle.Render(err.Error()))
			fmt.Println(dimStyle.Render("The remote task is still running; fetch results later with 'deepresearch fetch-results " + interactionID + "'"))
		}
		return err
	}

	switch snap.State {
	case domain.StateCompleted:
		result, err := a.svc.SaveResult(reportPath, snap, time.Since(start))
		if err != nil {
			return err
		}
		displayResult(result)
		return nil
	case domain.StateFailed:
		if snap.Error != nil {
			return snap.Error
		}
		return fmt.Errorf("research task failed")
	case domain.StateCancelled:
		return fmt.Errorf("research task was cancelled")
	default:
		return fmt.Errorf("polling stopped in unexpected state %s", snap.State)
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <interaction-id>",
		Short: "Check the status of a research interaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			status, err := a.svc.GetStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			displayStatus(status)
			return nil
		},
	}
}

func newFetchResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch-results [interaction-id]",
		Short: "Fetch completed research results and save the report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			var interactionID string
			if len(args) == 1 {
				interactionID = args[0]
			} else {
				interactionID, err = latestInteraction(cmd.Context(), a.runs)
				if err != nil {
					return err
				}
				fmt.Println(dimStyle.Render("No id given, using most recent run: " + interactionID))
			}

			result, err := a.svc.FetchCompletedResults(cmd.Context(), interactionID)
			var notCompleted *domain.NotCompletedError
			if errors.As(err, &notCompleted) {
				// Not an error: the research simply isn't done yet.
				fmt.Println(warnStyle.Render(notCompleted.Error()))
				fmt.Println(dimStyle.Render("Use 'deepresearch status " + interactionID + "' to check progress"))
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Println(successStyle.Render("Research Results Retrieved"))
			displayResult(result)
			return nil
		},
	}
}

// latestInteraction resolves the most recently started run from history.
func latestInteraction(ctx context.Context, runs store.RunStore) (string, error) {
	if runs == nil {
		return "", fmt.Errorf("no interaction id given and run history is unavailable")
	}
	recent, err := runs.List(ctx, 1)
	if err != nil {
		return "", fmt.Errorf("read run history: %w", err)
	}
	if len(recent) == 0 {
		return "", fmt.Errorf("no interaction id given and no runs recorded yet")
	}
	return recent[0].InteractionID, nil
}

func newListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent research runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			if a.runs == nil {
				return fmt.Errorf("run history is unavailable")
			}
			runs, err := a.runs.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println(dimStyle.Render("No research runs recorded yet."))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tSTATE\tINTERACTION\tQUERY")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					run.CreatedAt.Local().Format("2006-01-02 15:04"),
					run.State,
					run.InteractionID,
					truncate(run.Query, 60),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show")
	return cmd
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
