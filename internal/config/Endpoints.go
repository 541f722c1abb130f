package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// AlexAPI is the base URL of the ALEX protocol's public API.
	AlexAPI string
	// ArkadikoAPI is the base URL of the Arkadiko protocol's public API.
	ArkadikoAPI string
	// BitflowAPI is the base URL of the Bitflow protocol's public API.
	BitflowAPI string
	// ZestAPI is the base URL of the Zest protocol's public API.
	ZestAPI string
	// StacksAPI is the Stacks node API used for oracle reads and submissions.
	StacksAPI string
	// PriceAPI is the endpoint for the BTC/USD conversion rate.
	PriceAPI string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	AlexAPI = getEnvOptional("ALEX_API", "https://api.alexgo.io")
	ArkadikoAPI = getEnvOptional("ARKADIKO_API", "https://arkadiko-api.herokuapp.com")
	BitflowAPI = getEnvOptional("BITFLOW_API", "https://app.bitflow.finance/api")
	ZestAPI = getEnvOptional("ZEST_API", "https://api.zestprotocol.com")
	StacksAPI = getEnvOptional("STACKS_API", "https://api.mainnet.hiro.so")
	PriceAPI = getEnvOptional("PRICE_API", "https://min-api.cryptocompare.com")

	log.Debug().
		Str("AlexAPI", AlexAPI).
		Str("ArkadikoAPI", ArkadikoAPI).
		Str("BitflowAPI", BitflowAPI).
		Str("ZestAPI", ZestAPI).
		Str("StacksAPI", StacksAPI).
		Str("PriceAPI", PriceAPI).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
