// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DefaultParametersConfig names the parameter set the engine runs with when
// no operator has activated another one.
const DefaultParametersConfig = "default_yield_strategy"

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS engine_parameters (
			params_id SERIAL PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 1,
			config_name VARCHAR(255) NOT NULL DEFAULT 'default',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			tvl_log_floor_usd DECIMAL(20, 8) NOT NULL,
			preferred_protocol_bonus DECIMAL(10, 4) NOT NULL,
			lock_penalty_factor DECIMAL(10, 4) NOT NULL,
			min_fee_factor DECIMAL(10, 4) NOT NULL,
			risk_factors JSONB NOT NULL,
			max_alternatives INTEGER NOT NULL,
			apy_push_threshold_bps BIGINT NOT NULL,
			tvl_push_threshold_ratio DECIMAL(10, 8) NOT NULL,
			representative_pattern VARCHAR(64) NOT NULL,
			dust_tvl_floor_usd DECIMAL(20, 8) NOT NULL,
			tracked_protocols TEXT[] NOT NULL,
			CONSTRAINT uq_engine_parameters_config_version UNIQUE (config_name, version)
		);
		CREATE INDEX IF NOT EXISTS idx_engine_parameters_config_active ON engine_parameters(config_name, is_active, activated_at DESC);

		CREATE TABLE IF NOT EXISTS sync_cycles (
			sync_id SERIAL PRIMARY KEY,
			cycle_id VARCHAR(64) NOT NULL,
			cycle_number INTEGER NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			duration_ms BIGINT NOT NULL,
			pushed BOOLEAN NOT NULL,
			reason TEXT NOT NULL,
			readings JSONB,
			tx_id VARCHAR(128),
			err TEXT,
			params_id INTEGER REFERENCES engine_parameters(params_id)
		);
		CREATE INDEX IF NOT EXISTS idx_sync_cycles_started ON sync_cycles(started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_sync_cycles_pushed ON sync_cycles(pushed);

		CREATE TABLE IF NOT EXISTS recommendations (
			rec_pk SERIAL PRIMARY KEY,
			rec_id VARCHAR(64) NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			source VARCHAR(32) NOT NULL,
			primary_protocol VARCHAR(64) NOT NULL,
			primary_pool_id VARCHAR(128) NOT NULL,
			primary_apy DECIMAL(12, 4) NOT NULL,
			confidence_score DECIMAL(4, 3) NOT NULL,
			profile JSONB NOT NULL,
			payload JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_recommendations_generated ON recommendations(generated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_recommendations_source ON recommendations(source);

		-- Cycle counter table for persistent global cycle tracking
		CREATE TABLE IF NOT EXISTS cycle_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_cycle INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		-- Insert initial row if it doesn't exist
		INSERT INTO cycle_counter (id, current_cycle)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
