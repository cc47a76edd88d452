package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricelens/backend/config"
	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/infrastructure/feed"
	"github.com/pricelens/backend/internal/infrastructure/postgres"
	"github.com/pricelens/backend/internal/jobs"
	"github.com/pricelens/backend/internal/usecase"
	"github.com/pricelens/backend/pkg/logger"
)

const serviceName = "pricelens-updater"

// app carries what every subcommand needs once PersistentPreRunE has run
type app struct {
	cfg   *config.Config
	store *postgres.PriceStore

	dryRun  bool
	feedURL string

	// closers run in reverse order once the command finishes, failed or not
	closers []func()
}

func newRootCommand() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:   "updater",
		Short: "Reconcile the price catalog against the external price feed",
		Long: `updater downloads the external CSV price feed, compares every row with
the stored catalog and upserts only the records whose prices changed.`,
		PersistentPreRunE: a.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	root.PersistentFlags().BoolVar(&a.dryRun, "dry-run", false, "diff the feed without writing to the database")
	root.PersistentFlags().StringVar(&a.feedURL, "feed-url", "", "override PRICELENS_UPDATER_FEED_URL")

	root.AddCommand(
		a.newRunCommand(),
		a.newScheduleCommand(),
		a.newMigrateCommand(),
	)
	return root, a
}

// execute runs the command tree and releases what setup acquired. cobra
// skips post-run hooks when RunE fails, so release happens here instead.
func (a *app) execute(ctx context.Context, root *cobra.Command, args []string) error {
	defer a.teardown()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// setup loads configuration, initializes logging and opens the store
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.feedURL != "" {
		cfg.Updater.FeedURL = a.feedURL
	}
	if a.dryRun {
		cfg.Updater.DryRun = true
	}
	a.cfg = cfg

	logger.Init(serviceName, cfg.Server.Environment, cfg.Log.Level)
	a.closers = append(a.closers, logger.Sync)

	store, err := postgres.New(cmd.Context(), cfg.Database.URL, postgres.PoolConfig{
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:   cfg.Database.MaxConnIdleTime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
	}, logger.L())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	return nil
}

func (a *app) teardown() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) reconcileService() *usecase.ReconcileService {
	client := feed.NewClient(feed.ClientConfig{
		URL:             a.cfg.Updater.FeedURL,
		Timeout:         a.cfg.Updater.RequestTimeout,
		RequestsPerHour: a.cfg.RateLimit.Feed,
	}, logger.L())

	return usecase.NewReconcileService(a.store, client, usecase.ReconcileConfig{
		BatchSize:  a.cfg.Updater.BatchSize,
		ChunkSize:  a.cfg.Updater.ChunkSize,
		ChunkDelay: a.cfg.Updater.ChunkDelay,
		DryRun:     a.cfg.Updater.DryRun,
	}, logger.L())
}

func (a *app) newRunCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one reconciliation and print its report",
		Example: `  updater run                          # Download the feed and apply changes
  updater run --dry-run                # Report what would change
  updater run --file prices.csv        # Reconcile a local copy of the feed`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc := a.reconcileService()

			var (
				report *domain.ReconcileReport
				err    error
			)
			if file != "" {
				report, err = reconcileFile(ctx, svc, file)
			} else {
				if err := a.cfg.ValidateUpdater(); err != nil {
					return err
				}
				report, err = svc.RunReconciliation(ctx)
			}
			if report != nil {
				printReport(cmd, report)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "reconcile a local CSV file instead of downloading the feed")
	return cmd
}

func reconcileFile(ctx context.Context, svc *usecase.ReconcileService, path string) (*domain.ReconcileReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return svc.ProcessFeed(ctx, f)
}

func printReport(cmd *cobra.Command, report *domain.ReconcileReport) {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}

func (a *app) newScheduleCommand() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Reconcile now and then once a day at updater.run_at",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.ValidateUpdater(); err != nil {
				return err
			}
			ctx := cmd.Context()
			log := logger.L()

			runner, err := jobs.NewDailyRunner(log, a.reconcileService(), a.cfg.Updater.RunAt, time.Local)
			if err != nil {
				return err
			}

			if metricsAddr != "" {
				srv := serveMetrics(metricsAddr, log)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			runner.Start(ctx)
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9102", "address for the Prometheus /metrics endpoint (empty disables)")
	return cmd
}

func serveMetrics(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("updater.metrics_listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("updater.metrics_failed", zap.Error(err))
		}
	}()
	return srv
}

func (a *app) newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the price table and indexes if they do not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.store.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.L().Info("updater.migrated")
			return nil
		},
	}
}
