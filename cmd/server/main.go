// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/sndworks/boombox/internal/api/rest"
	"github.com/sndworks/boombox/internal/app/entitlement"
	"github.com/sndworks/boombox/internal/app/session"
	"github.com/sndworks/boombox/internal/app/stats"
	"github.com/sndworks/boombox/internal/infra/auth"
	"github.com/sndworks/boombox/internal/infra/cloud"
	"github.com/sndworks/boombox/internal/infra/config"
	"github.com/sndworks/boombox/internal/infra/geo"
	"github.com/sndworks/boombox/internal/infra/keyseal"
	"github.com/sndworks/boombox/internal/infra/logger"
)

var (
	app        = kingpin.New("boombox-server", "In-game licensed-music playback server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	tokens, err := auth.New(auth.Config{
		AppID:   cfg.API.AppID,
		APIKey:  cfg.API.Key,
		BaseURL: cfg.API.Server,
		Timeout: cfg.APITimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to create token provider: %w", err)
	}

	backend, err := cloud.New(cloud.Config{
		BaseURL: cfg.API.Server,
		Timeout: cfg.APITimeout(),
	}, tokens)
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	sealer, err := keyseal.New(cfg.API.AppSecret)
	if err != nil {
		return fmt.Errorf("failed to create key sealer: %w", err)
	}

	regions := geo.New(backend)
	entitlements := entitlement.New(backend, regions, entitlement.Config{
		BundleID:    cfg.Entitlement.BundleID,
		PayType:     cfg.Entitlement.PayType,
		BillingType: cfg.Entitlement.BillingType,
	})

	tracker := stats.NewTracker()
	sessionMgr := session.NewManager(backend, entitlements, sealer, tracker, cfg.Playback.Format)

	apiServer := rest.NewServer(sessionMgr, tokens)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s backend=%s", cfg.Server.Addr, cfg.API.Server)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}
