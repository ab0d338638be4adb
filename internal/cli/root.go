package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/exlog/internal/control"
	"github.com/vietddude/exlog/internal/core/config"
	"github.com/vietddude/exlog/internal/httpcapture"
)

var (
	cfgPath   string
	isDebug   bool
	demoRoute bool
)

var rootCmd = &cobra.Command{
	Use:   "exlog",
	Short: "Exception telemetry store",
	Long:  `exlog persists captured errors into a deduplicating relational store, with failover reporting when the store is down.`,
	Run:   runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server with health, metrics and request capture",
	Run:   runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	serveCmd.Flags().BoolVar(&demoRoute, "demo", false, "mount /demo/panic and /demo/error to exercise request capture")
	rootCmd.AddCommand(serveCmd)
}

// loadConfig loads the configuration and initializes logging. It exits on error.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize exlog", "error", err)
		os.Exit(1)
	}

	if demoRoute {
		app.Mount("/demo", demoHandler(app, cfg.HTTP.WriteTimeout))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start exlog", "error", err)
		os.Exit(1)
	}

	slog.Info("exlog started", "config", cfgPath, "port", cfg.HTTP.Port)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}

func demoHandler(app *control.App, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("demo panic from " + r.URL.Path)
	})
	r.Get("/error", func(w http.ResponseWriter, r *http.Request) {
		httpcapture.HandleError(w, r, app.Logger(), errors.New("demo error"), timeout)
	})
	return r
}
