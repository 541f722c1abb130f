// ./internal/state/sync_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/stacksfoundry/yra/internal/types"
)

// RecordSyncCycle saves the outcome of one oracle-sync cycle and advances the
// persistent cycle counter. Counter and parameter lookups are best effort so a
// bookkeeping failure never loses the cycle row itself.
func RecordSyncCycle(record types.SyncCycleRecord) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	cycleNumber, err := IncrementCycleNumber()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to increment cycle counter, recording cycle with number 0")
		cycleNumber = 0
	}

	paramsID, err := GetActiveEngineParametersID(DefaultParametersConfig)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to resolve active parameters, recording cycle without a params link")
		paramsID = nil
	}

	readingsJSON, err := json.Marshal(record.Readings)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal readings: %w", err)
	}

	txID := sql.NullString{String: record.TxID, Valid: record.TxID != ""}
	cycleErr := sql.NullString{String: record.Err, Valid: record.Err != ""}

	query := `
		INSERT INTO sync_cycles (
			cycle_id, cycle_number, started_at, duration_ms,
			pushed, reason, readings, tx_id, err, params_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING sync_id;
	`

	var syncID int64
	err = DB.QueryRow(
		query,
		record.CycleID, cycleNumber, record.StartedAt, record.Duration.Milliseconds(),
		record.Pushed, record.Reason, readingsJSON, txID, cycleErr, paramsID,
	).Scan(&syncID)

	if err != nil {
		return 0, fmt.Errorf("failed to save sync cycle record: %w", err)
	}

	log.Info().
		Int64("sync_id", syncID).
		Int("cycle_number", cycleNumber).
		Bool("pushed", record.Pushed).
		Str("reason", record.Reason).
		Msg("Sync cycle recorded to database")

	return syncID, nil
}
