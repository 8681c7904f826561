package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/jjenkins/edinet/internal/config"
	"github.com/jjenkins/edinet/internal/model"
	"github.com/jjenkins/edinet/internal/service"
	"github.com/jjenkins/edinet/internal/store"
)

var (
	logLevel    string
	metricsAddr string
)

var errFilingsFailed = errors.New("some filings failed")

var rootCmd = &cobra.Command{
	Use:   "edinet",
	Short: "Discover and download annual, quarterly and semi-annual reports from EDINET",
	Long: `edinet lists every filing submitted to the EDINET disclosure registry over a
date range, keeps the periodic reports of companies, and downloads their XBRL,
PDF and CSV bundles into one folder per filing.

Configuration is read from the environment and an optional .env file:
  EDINET_API_ENDPOINT   registry base URL (required)
  EDINET_API_KEY        subscription key (required)
  EDINET_FROM           first day to scan, YYYY-MM-DD
  EDINET_TO             last day to scan, YYYY-MM-DD
  EDINET_OUTPUT_ROOT    output tree root (default xbrl-files)
  EDINET_MANIFEST       manifest path (default documents.json)
  EDINET_REQUEST_DELAY  minimum gap between listing requests (default 50ms)
  EDINET_HTTP_TIMEOUT   per-request timeout, 0 for none
  EDINET_DOC_TYPES      report-type codes to keep (default 120,140,160)
  DATABASE_URL          optional PostgreSQL catalogue`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running, e.g. :9090")
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Warn("received interrupt signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// pipelineFlags are the per-run overrides shared by the pipeline commands
type pipelineFlags struct {
	from        string
	to          string
	docTypes    string
	manifest    string
	attachments bool
	english     bool
}

func addRangeFlags(cmd *cobra.Command, f *pipelineFlags) {
	cmd.Flags().StringVar(&f.from, "from", "", "First submission day to scan, YYYY-MM-DD (default $EDINET_FROM)")
	cmd.Flags().StringVar(&f.to, "to", "", "Last submission day to scan, YYYY-MM-DD (default $EDINET_TO)")
	cmd.Flags().StringVar(&f.docTypes, "doc-types", "", "Comma separated report-type codes to keep (default $EDINET_DOC_TYPES)")
}

func addArtifactFlags(cmd *cobra.Command, f *pipelineFlags) {
	cmd.Flags().BoolVar(&f.attachments, "attachments", false, "Also download attachment bundles")
	cmd.Flags().BoolVar(&f.english, "english", false, "Also download English-language bundles")
}

// apply folds command line overrides into cfg
func (f *pipelineFlags) apply(cfg *config.Config) error {
	var err error
	if f.from != "" {
		if cfg.From, err = config.ParseDate(f.from); err != nil {
			return fmt.Errorf("--from %w", err)
		}
	}
	if f.to != "" {
		if cfg.To, err = config.ParseDate(f.to); err != nil {
			return fmt.Errorf("--to %w", err)
		}
	}
	if f.docTypes != "" {
		cfg.DocTypes = config.ParseList(f.docTypes)
		for _, code := range cfg.DocTypes {
			if _, ok := model.CategoryLabel(code); !ok {
				return fmt.Errorf("--doc-types: unknown report-type code %q", code)
			}
		}
	}
	if f.manifest != "" {
		cfg.ManifestPath = f.manifest
	}
	return nil
}

func (f *pipelineFlags) kinds() []model.ArtifactKind {
	kinds := append([]model.ArtifactKind(nil), model.DefaultArtifactKinds...)
	if f.attachments {
		kinds = append(kinds, model.ArtifactAttachment)
	}
	if f.english {
		kinds = append(kinds, model.ArtifactEnglish)
	}
	return kinds
}

// environment holds what every pipeline command builds before doing work
type environment struct {
	cfg      *config.Config
	logger   *slog.Logger
	fs       afero.Fs
	registry *prometheus.Registry
	metrics  *service.Metrics
	db       *sql.DB
	server   *http.Server
}

// setup loads configuration, connects the optional catalogue and starts the
// optional metrics listener. The caller must Close the environment.
func setup(ctx context.Context, logger *slog.Logger, flags *pipelineFlags) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if flags != nil {
		if err := flags.apply(cfg); err != nil {
			return nil, fmt.Errorf("invalid flag: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	env := &environment{
		cfg:      cfg,
		logger:   logger,
		fs:       afero.NewOsFs(),
		registry: registry,
		metrics:  service.NewMetrics(registry),
	}

	if cfg.DatabaseURL != "" {
		logger.Info("connecting to catalogue database")
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := store.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		env.db = db
	}

	if metricsAddr != "" {
		env.server = &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", slog.String("addr", metricsAddr))
			if err := env.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener stopped", slog.Any("error", err))
			}
		}()
	}

	return env, nil
}

func (e *environment) importer(flags *pipelineFlags) *service.Importer {
	client := service.NewEDINETClient(e.cfg)

	scanner := service.NewScanner(client, e.cfg.RequestDelay, e.metrics, e.logger)
	scanner.OnDay = func(day time.Time, count int) {
		e.logger.Debug("listed day", slog.String("date", day.Format(config.DateLayout)), slog.Int("filings", count))
	}

	filter := service.All(service.RetainCategories(e.cfg.DocTypes...), service.WithoutFund)
	downloader := service.NewDownloader(client, e.fs, service.NewLayout(e.cfg.OutputRoot), flags.kinds(), e.metrics, e.logger)

	imp := service.NewImporter(scanner, filter, downloader, e.fs, e.cfg.ManifestPath, e.metrics, e.logger)
	if e.db != nil {
		imp.WithCatalogue(store.NewFilingStore(e.db))
	}

	e.logger.Info("pipeline ready",
		slog.String("run_id", imp.RunID()),
		slog.String("output_root", e.cfg.OutputRoot),
		slog.String("doc_types", strings.Join(e.cfg.DocTypes, ",")))
	return imp
}

func (e *environment) Close() {
	if e.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.server.Shutdown(ctx)
	}
	if e.db != nil {
		e.db.Close()
	}
}
