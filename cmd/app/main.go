package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"parliasearch/internal/pkg/api"
	"parliasearch/internal/pkg/config"
	"parliasearch/internal/pkg/dedup"
	"parliasearch/internal/pkg/extract"
	"parliasearch/internal/pkg/logger"
	"parliasearch/internal/pkg/paginate"
	"parliasearch/internal/pkg/pipeline"
	"parliasearch/internal/pkg/runlog"
	"parliasearch/internal/pkg/search"
	"parliasearch/internal/pkg/sources/dip"
	"parliasearch/internal/pkg/sources/europarl"
	"parliasearch/internal/pkg/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.InitLogger(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Log.Sync()

	root := &cobra.Command{
		Use:          "parliasearch",
		Short:        "Legislative document ingestion and search service",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(cfg), ingestCmd(cfg), initIndexCmd(cfg), runsCmd(cfg))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newStore(cfg *config.Config) (*store.Client, error) {
	client, err := store.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func serveCmd(cfg *config.Config) *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP query service",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newStore(cfg)
			if err != nil {
				return err
			}
			if err := client.EnsureIndex(cmd.Context(), cfg.IndexName); err != nil {
				logger.Log.Warn("Could not ensure index at startup", zap.Error(err))
			}

			svc := search.NewService(client, cfg.IndexName)
			server := api.NewServer(svc, client, cfg.PageSize)

			// Optional scheduled daily ingestion alongside the query
			// service, covering the previous day for both sources.
			if schedule != "" {
				c := cron.New()
				_, err := c.AddFunc(schedule, func() {
					opts := scheduledOptions(cfg, time.Now())
					if err := runIngest(context.Background(), cfg, client, "all", opts); err != nil {
						logger.Log.Error("Scheduled ingestion failed", zap.Error(err))
					}
				})
				if err != nil {
					return fmt.Errorf("invalid schedule %q: %w", schedule, err)
				}
				c.Start()
				defer c.Stop()
				logger.Log.Info("Scheduled daily ingestion", zap.String("cron", schedule))
			}

			errCh := make(chan error, 1)
			go func() { errCh <- server.Run(cfg.ServerPort) }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case s := <-sigCh:
				logger.Log.Info("Received signal, shutting down", zap.String("signal", s.String()))
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron spec for scheduled daily ingestion (empty disables)")
	return cmd
}

func ingestCmd(cfg *config.Config) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest {dip|eu|all}",
		Short: "Run the ingestion pipeline for one or all sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newStore(cfg)
			if err != nil {
				return err
			}
			if err := client.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("document store unreachable: %w", err)
			}
			if err := client.EnsureIndex(cmd.Context(), cfg.IndexName); err != nil {
				return err
			}
			return runIngest(cmd.Context(), cfg, client, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.dateFrom, "from", "", "start of the date range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.dateTo, "to", "", "end of the date range (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.term, "term", 0, "EU legislative term filter (0 disables)")
	cmd.Flags().IntVar(&opts.euLimit, "limit", 0, "per-kind document cap for EU ingestion (0 disables)")
	cmd.Flags().IntVar(&opts.dipMax, "max-docs", 0, "document cap for DIP ingestion (0 disables)")
	return cmd
}

// Per-run source bounds.
type ingestOptions struct {
	dateFrom string
	dateTo   string
	term     int
	euLimit  int
	dipMax   int
}

// Bounds for one scheduled tick: yesterday's date window for DIP plus its
// document cap, and a small per-kind sample for the EU listing, which has no
// date filter of its own and would otherwise be re-crawled in full every
// night.
func scheduledOptions(cfg *config.Config, now time.Time) ingestOptions {
	day := now.UTC().AddDate(0, 0, -1).Format("2006-01-02")
	return ingestOptions{
		dateFrom: day,
		dateTo:   day,
		term:     cfg.EUTerm,
		euLimit:  cfg.EUDailyLimit,
		dipMax:   cfg.DailyMaxDocs,
	}
}

func buildSources(cfg *config.Config, which string, opts ingestOptions) ([]pipeline.Source, error) {
	throttle := paginate.NewThrottle(cfg.RequestDelayBase, cfg.RequestDelayJitter)

	var sources []pipeline.Source
	if which == "dip" || which == "all" {
		dipClient, err := dip.NewClient(cfg.DIPBaseURL, cfg.DIPAPIKey, throttle, cfg.MaxRetries)
		if err != nil {
			return nil, err
		}
		sources = append(sources, &dip.Source{
			Client:   dipClient,
			DateFrom: opts.dateFrom,
			DateTo:   opts.dateTo,
			MaxDocs:  opts.dipMax,
		})
	}
	if which == "eu" || which == "all" {
		euClient := europarl.NewClient(cfg.EUAPIBase, cfg.EUPageLimit,
			time.Duration(cfg.EUHTTPTimeout)*time.Second, throttle, cfg.MaxRetries)
		sources = append(sources, &europarl.Source{
			Client:      euClient,
			Term:        opts.term,
			Limit:       opts.euLimit,
			Concurrency: cfg.NumFetchers,
			Markup:      extract.NewMarkupExtractor(),
			PDF:         extract.Unconfigured(),
		})
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("unknown source %q, expected dip, eu or all", which)
	}
	return sources, nil
}

func runIngest(ctx context.Context, cfg *config.Config, client *store.Client, which string, opts ingestOptions) error {
	sources, err := buildSources(cfg, which, opts)
	if err != nil {
		return err
	}

	var deduper dedup.Deduper
	if cfg.RedisEnabled {
		var err error
		deduper, err = dedup.NewRedisDeduper(cfg)
		if err != nil {
			return err
		}
	}

	started := time.Now()
	gateway := &store.Gateway{Client: client, Index: cfg.IndexName}
	summary, err := pipeline.New(gateway, deduper, cfg.BatchSize).Run(ctx, sources...)

	fmt.Printf("Indexed: %d (rejected %d, duplicates %d, errors %d)\n",
		summary.Indexed, summary.Rejected, summary.Duplicates, len(summary.Errors))

	if log, openErr := runlog.Open(cfg.RunLogPath); openErr == nil {
		if _, recErr := log.Record(context.Background(), which, summary, started); recErr != nil {
			logger.Log.Warn("Failed to record run", zap.Error(recErr))
		}
		log.Close()
	} else {
		logger.Log.Warn("Failed to open run history", zap.Error(openErr))
	}

	return err
}

func initIndexCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "init-index",
		Short: "Create the index with its schema if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newStore(cfg)
			if err != nil {
				return err
			}
			return client.EnsureIndex(cmd.Context(), cfg.IndexName)
		},
	}
}

func runsCmd(cfg *config.Config) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent ingestion runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := runlog.Open(cfg.RunLogPath)
			if err != nil {
				return err
			}
			defer log.Close()

			entries, err := log.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s  %-4s indexed=%d rejected=%d duplicates=%d errors=%d  %s\n",
					e.StartedAt.Format(time.RFC3339), e.Source,
					e.Indexed, e.Rejected, e.Duplicates, len(e.Errors),
					e.ID)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}
