package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/stacksfoundry/yra/internal/adapters"
	"github.com/stacksfoundry/yra/internal/aggregator"
	"github.com/stacksfoundry/yra/internal/config"
	"github.com/stacksfoundry/yra/internal/logger"
	"github.com/stacksfoundry/yra/internal/oracle"
	"github.com/stacksfoundry/yra/internal/pricing"
	"github.com/stacksfoundry/yra/internal/recommender"
	"github.com/stacksfoundry/yra/internal/state"
	"github.com/stacksfoundry/yra/internal/syncer"
	"github.com/stacksfoundry/yra/internal/types"
	"github.com/stacksfoundry/yra/internal/web"
)

const ENGINE_PARAMETERS_VERSION = 1

// main is the entry point for the YRA engine.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE"))
	log.Info().Msg("YRA Engine Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Load Engine Parameters, seeding the defaults on first run
	engineParams, err := state.LoadActiveEngineParameters(state.DefaultParametersConfig)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load active engine parameters, using defaults and saving.")
		defaultParams := config.DefaultEngineParameters
		if _, err := state.SaveEngineParameters(defaultParams, state.DefaultParametersConfig, ENGINE_PARAMETERS_VERSION, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial default engine parameters.")
		}
		engineParams = &defaultParams
	}
	if err := engineParams.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Active engine parameters are invalid")
	}
	log.Info().Msg("Engine parameters loaded successfully.")

	// --- 2. Data Plane: adapters, aggregation, pricing ---
	aggregatorService, err := aggregator.NewService(adapters.DefaultAdapters())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create aggregation service")
	}

	pricingClient := pricing.NewClient(config.PriceAPI, config.PriceFallbackUSD)

	// --- 3. Recommendation Engine ---
	model := recommender.NewModelRecommender(config.ModelEnabled, config.AnthropicAPIKey, config.ModelName, config.ModelTimeout)
	recEngine, err := recommender.NewEngine(model, *engineParams)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create recommendation engine")
	}

	// --- 4. Oracle Writer (with Safety Switch) ---
	var orc oracle.Oracle
	if config.OracleMode == config.ModeLive {
		log.Warn().Msg("Initializing oracle in LIVE mode. Accepted submissions will move the on-chain contract.")
		liveOracle, err := oracle.NewStacksOracle(
			config.StacksAPI, config.OracleSignerURL,
			config.OracleContractAddress, config.OracleContractName,
			engineParams.TrackedProtocols,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize live oracle client")
		}
		orc = liveOracle
	} else {
		log.Info().Msg("ORACLE_MODE is 'observe'. Submissions are logged and held in memory only.")
		orc = oracle.NewObservingOracle()
	}

	// --- 5. Sync Engine with Dependency Injection ---
	recorder := func(record types.SyncCycleRecord) error {
		_, err := state.RecordSyncCycle(record)
		return err
	}

	syncEngine, err := syncer.NewEngine(syncer.Config{
		Aggregator: aggregatorService,
		Pricing:    pricingClient,
		Oracle:     orc,
		Params:     *engineParams,
		Recorder:   recorder,
		Interval:   config.SyncInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create sync engine")
	}

	// --- 6. Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}
	webServer := web.NewServer(webPort, syncEngine, recEngine, orc)
	go func() {
		log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting status server")
		if err := webServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Web server failed")
		}
	}()

	// --- 7. Run until shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := syncEngine.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sync loop")
	}
	log.Info().Dur("interval", config.SyncInterval).Msg("Sync loop started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	cancel()
	syncEngine.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown error")
	}

	log.Info().Msg("YRA Engine stopped.")
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
