package cmd

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jjenkins/edinet/internal/config"
	"github.com/jjenkins/edinet/internal/handlers"
	"github.com/jjenkins/edinet/internal/store"
)

var port string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the filing catalogue web server",
	Long: `Start a web server to browse the filings recorded in the catalogue database
and download their artifacts from the output tree. Requires DATABASE_URL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()

		cfg, err := config.LoadOffline()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		// Use PORT env var if set, otherwise use flag value
		if !cmd.Flags().Changed("port") {
			port = cfg.Port
		}

		if cfg.DatabaseURL == "" {
			return &config.Error{Key: config.EnvDatabaseURL, Reason: "is required to serve"}
		}

		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := store.Migrate(cmd.Context(), db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		// Initialize stores
		filingStore := store.NewFilingStore(db)
		artifactStore := store.NewArtifactStore(db)

		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewDBStatsCollector(db, "edinet"),
		)

		app := fiber.New(fiber.Config{
			AppName: "EDINET Filings",
		})

		app.Use(logger.New())

		// Routes
		app.Get("/", handlers.HomeHandler(filingStore, artifactStore, log))

		// Filing routes
		app.Get("/filings", handlers.FilingsHandler(filingStore, log))
		app.Get("/filings/:docID", handlers.FilingDetailHandler(filingStore, artifactStore, log))
		app.Get("/filings/:docID/artifacts/:kind", handlers.ArtifactHandler(artifactStore, cfg.OutputRoot, log))

		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

		log.Info("starting server", slog.String("port", port))
		if err := app.Listen(":" + port); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&port, "port", "p", config.DefaultPort, "Port to run the server on")
}
