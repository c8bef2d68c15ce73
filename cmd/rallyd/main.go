// rallyd - multiplayer rally race server.
//
// rallyd hosts the race lobby: players log in over REST, create or join
// race rooms, and stream telemetry over a persistent binary TCP
// connection while the server drives every room through its race
// lifecycle and keeps a persistent score rankboard.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openrally/rallyd/internal/api"
	"github.com/openrally/rallyd/internal/config"
	"github.com/openrally/rallyd/internal/db"
	"github.com/openrally/rallyd/internal/network"
	"github.com/openrally/rallyd/internal/racing"
	"github.com/openrally/rallyd/internal/registry"
	"github.com/openrally/rallyd/internal/util"
)

const (
	AppName    = "rallyd"
	AppVersion = "1.0.0"
	Banner     = `
                _ _           _
  _ __ __ _ ___| | |_   _  __| |
 | '__/ _' | (_-| | | | |/ _' |
 | | | (_| | |_|| | |_| | (_| |
 |_|  \__,_|___/|_|\__, |\__,_|
                   |___/  v%s
 Rally Race Server
`
)

func main() {
	// Print banner
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Initialize logger with defaults first (will be reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting rallyd")

	// Load configuration
	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Re-initialize logger with config-based settings
	logCfg := util.LogConfig{
		Level:      cfg.GetApp().Logging.Level,
		Directory:  cfg.GetApp().Logging.Directory,
		MaxSizeMB:  cfg.GetApp().Logging.MaxSizeMB,
		MaxBackups: cfg.GetApp().Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	// Validate configuration
	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Fatal().Msg("configuration validation failed, please fix the errors above")
	}

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the score database
	scores, err := db.NewScoreDatabase(cfg.GetApp().Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open score database")
	}
	defer scores.Close()

	// Load the stage/car/weather catalog
	catalog, err := racing.LoadCatalog(cfg.GetGame().DataDirectory)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load race catalog")
	}
	log.Info().
		Int("stages", len(catalog.Stages)).
		Int("cars", len(catalog.Cars)).
		Msg("race catalog loaded")

	// Session registry with the permanent daily challenge
	reg := registry.NewSessionRegistry(
		registry.SharedSecret(cfg.GetGame().LoginSecret), scores, scores)
	reg.SetRoomLimit(cfg.GetGame().RoomCapacity)

	randomer := racing.NewRandomer(catalog, rand.New(rand.NewSource(time.Now().UnixNano())))
	daily := racing.NewDaily(randomer, scores, cfg.DailyPeriod())
	daily.Start(ctx)
	reg.AddSession(racing.DailyName, daily)

	// Listeners
	dataAddr := fmt.Sprintf("%s:%d", cfg.GetServer().BindAddress, cfg.GetServer().DataPort)
	tcpListener := network.NewTCPListener(dataAddr, reg)
	apiServer := api.NewServer(cfg, reg, scores)

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	// Task 1: session tick loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		reg.Run(ctx)
	}()

	// Task 2: REST API server
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", cfg.GetServer().APIPort).Msg("starting REST API server")
		if err := startWithRetry(ctx, "API server", apiServer.Start, 15); err != nil {
			log.Error().Err(err).Msg("API server failed after retries")
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Task 3: TCP listener for player data streams
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", cfg.GetServer().DataPort).Msg("starting TCP listener")
		if err := startWithRetry(ctx, "TCP listener", tcpListener.Start, 15); err != nil {
			log.Error().Err(err).Msg("TCP listener failed after retries")
			errCh <- fmt.Errorf("tcp listener: %w", err)
		}
	}()

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	log.Info().Msg("rallyd stopped")
}

// startWithRetry attempts to start a listener/server with retry on bind
// errors. Uses a fixed 3-second interval between retries so the OS has
// time to release sockets after a previous process was force-killed.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			time.Sleep(3 * time.Second)
		}
	}
	return lastErr
}
