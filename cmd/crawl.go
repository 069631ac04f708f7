package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/emblem-crawler/internal/clock/system"
	"github.com/JakeFAU/emblem-crawler/internal/config"
	"github.com/JakeFAU/emblem-crawler/internal/emblem"
	"github.com/JakeFAU/emblem-crawler/internal/fetch"
	"github.com/JakeFAU/emblem-crawler/internal/pipeline"
	"github.com/JakeFAU/emblem-crawler/internal/report"
	"github.com/JakeFAU/emblem-crawler/internal/roster"
	"github.com/JakeFAU/emblem-crawler/internal/search"
	"github.com/JakeFAU/emblem-crawler/internal/store"
	"github.com/JakeFAU/emblem-crawler/internal/validate"
)

// newCrawlCmd creates the 'crawl' subcommand: one full batch pass over the
// roster, ending with a run report.
func newCrawlCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one emblem acquisition pass over the roster",
		Long: `Loads the institution roster, then for each unprocessed institution
discovers pages, scores image candidates, validates the best ones, and
commits the outcome. Progress is ledgered, so an interrupted run resumes
where it stopped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			a.cfg.Pipeline.Force = force
			return runCrawl(cmd.Context(), a)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "reprocess institutions already in the ledger")
	return cmd
}

func runCrawl(ctx context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := a.logger
	clk := system.New()

	fetcher := fetch.New(a.cfg.FetchConfig(), logger.Named("fetch"))
	st, err := buildStore(ctx, a.cfg, logger)
	if err != nil {
		return err
	}

	searchers := buildSearchers(a.cfg, fetcher, logger)
	source := roster.NewWikitableSource(a.cfg.Roster, fetcher, logger.Named("roster"))

	pipe := pipeline.New(
		a.cfg.Pipeline,
		source,
		searchers,
		fetcher,
		validate.New(fetcher),
		st,
		clk,
		logger.Named("pipeline"),
	)

	startedAt := clk.Now()
	result, runErr := pipe.Run(ctx)
	finishedAt := clk.Now()

	summary, review := report.Build(result.Records, result.Skipped, startedAt, finishedAt)
	if err := report.Write(a.cfg.Report.Dir, summary, review); err != nil {
		logger.Error("report write failed", zap.Error(err))
	} else {
		logger.Info("report written",
			zap.String("run_id", summary.RunID),
			zap.String("dir", a.cfg.Report.Dir),
			zap.Int("downloaded", summary.Downloaded),
			zap.Int("manual_review", len(review)),
		)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run pipeline: %w", runErr)
	}
	return nil
}

func buildSearchers(cfg config.Config, fetcher emblem.Fetcher, logger *zap.Logger) []emblem.Searcher {
	var searchers []emblem.Searcher
	if cfg.Search.PatternProbe {
		searchers = append(searchers, search.NewPatternProber(fetcher, logger.Named("prober")))
	}
	if cfg.Search.QuerierOn {
		searchers = append(searchers, search.NewQuerier(cfg.Search.Querier, fetcher, logger.Named("querier")))
	}
	return searchers
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (emblem.Store, error) {
	switch cfg.Store.Backend {
	case "postgres":
		st, err := store.NewPG(ctx, store.PGConfig{
			DSN:         cfg.Store.DSN,
			ArtifactDir: cfg.Store.BaseDir,
			MaxConns:    cfg.Store.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return st, nil
	default:
		st, err := store.NewFS(store.FSConfig{BaseDir: cfg.Store.BaseDir}, logger.Named("store"))
		if err != nil {
			return nil, fmt.Errorf("init file store: %w", err)
		}
		return st, nil
	}
}
