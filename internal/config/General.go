package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// SyncInterval is how often the oracle-sync cycle runs.
	SyncInterval time.Duration

	// OracleMode selects the oracle writer: "live" broadcasts real
	// transactions, "observe" logs what would have been submitted.
	OracleMode string
	// OracleContractAddress is the principal that deployed the oracle contract.
	// May be empty in observe mode; the live client refuses to start without it.
	OracleContractAddress string
	// OracleContractName is the contract name under the deployer principal.
	OracleContractName string
	// OracleSignerURL is the endpoint of the external signer that holds the
	// submission key, signs oracle updates, and broadcasts them. This service
	// never touches key material. Required only in live mode.
	OracleSignerURL string

	// ModelEnabled administratively gates the model-backed recommendation
	// path. When false, every request goes straight to the rule-based path.
	ModelEnabled bool
	// ModelName is the Anthropic model identifier.
	ModelName string
	// ModelTimeout bounds a single model attempt; exceeding it falls back.
	ModelTimeout time.Duration
	// AnthropicAPIKey authenticates model calls. Empty disables the model path.
	AnthropicAPIKey string

	// PriceFallbackUSD is the BTC/USD rate used when the price API is
	// unreachable and the cache is cold.
	PriceFallbackUSD float64
)

const (
	ModeLive    = "live"
	ModeObserve = "observe"
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Operationally safe values are defaulted; everything else must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	syncMinutes, err := getEnvOptionalAsInt("SYNC_INTERVAL_MINUTES", 10)
	if err != nil {
		return err
	}
	if syncMinutes <= 0 {
		return errors.New("SYNC_INTERVAL_MINUTES must be positive, got: " + strconv.Itoa(syncMinutes))
	}
	SyncInterval = time.Duration(syncMinutes) * time.Minute

	OracleMode = getEnvOptional("ORACLE_MODE", ModeObserve)
	if OracleMode != ModeLive && OracleMode != ModeObserve {
		return errors.New("ORACLE_MODE must be 'live' or 'observe', got: " + OracleMode)
	}

	// Contract configuration is validated at the point of use: the live
	// oracle client fails fast on an empty address, observe mode runs without one.
	OracleContractAddress = getEnvOptional("ORACLE_CONTRACT_ADDRESS", "")
	OracleContractName = getEnvOptional("ORACLE_CONTRACT_NAME", "yield-oracle-v1")
	OracleSignerURL = getEnvOptional("ORACLE_SIGNER_URL", "")

	ModelEnabled, err = getEnvOptionalAsBool("MODEL_ENABLED", true)
	if err != nil {
		return err
	}
	ModelName = getEnvOptional("MODEL_NAME", "claude-sonnet-4-20250514")
	AnthropicAPIKey = getEnvOptional("ANTHROPIC_API_KEY", "")

	modelTimeoutSeconds, err := getEnvOptionalAsInt("MODEL_TIMEOUT_SECONDS", 20)
	if err != nil {
		return err
	}
	if modelTimeoutSeconds <= 0 {
		return errors.New("MODEL_TIMEOUT_SECONDS must be positive, got: " + strconv.Itoa(modelTimeoutSeconds))
	}
	ModelTimeout = time.Duration(modelTimeoutSeconds) * time.Second

	PriceFallbackUSD, err = getEnvOptionalAsFloat64("PRICE_FALLBACK_USD", 65000)
	if err != nil {
		return err
	}
	if PriceFallbackUSD <= 0 {
		return errors.New("PRICE_FALLBACK_USD must be positive")
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Dur("SyncInterval", SyncInterval).
		Str("OracleMode", OracleMode).
		Bool("ModelEnabled", ModelEnabled).
		Str("ModelName", ModelName).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnvOptional retrieves a string environment variable, falling back to the
// given default when unset or empty.
func getEnvOptional(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvOptionalAsInt retrieves an environment variable as an int, falling
// back when unset. Returns error only when set to something unparseable.
func getEnvOptionalAsInt(key string, fallback int) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}

// getEnvOptionalAsFloat64 retrieves an environment variable as a float64,
// falling back when unset. Returns error only when set to something unparseable.
func getEnvOptionalAsFloat64(key string, fallback float64) (float64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}

// getEnvOptionalAsBool retrieves an environment variable as a bool, falling
// back when unset. Returns error only when set to something unparseable.
func getEnvOptionalAsBool(key string, fallback bool) (bool, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}
