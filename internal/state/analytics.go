package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stacksfoundry/yra/internal/types"
)

// SyncActivitySummary represents high-level oracle-sync statistics
type SyncActivitySummary struct {
	TotalCycles   int    `json:"total_cycles"`
	PushedCycles  int    `json:"pushed_cycles"`
	SkippedCycles int    `json:"skipped_cycles"`
	AbortedCycles int    `json:"aborted_cycles"`
	LastPushAt    string `json:"last_push_at,omitempty"`
	LastPushTxID  string `json:"last_push_tx_id,omitempty"`
}

// GetRecentSyncCycles retrieves recent sync cycle records, newest first
func GetRecentSyncCycles(limit int) ([]types.SyncCycleRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	query := `
		SELECT
			cycle_id, cycle_number, started_at, duration_ms,
			pushed, reason, readings, tx_id, err
		FROM sync_cycles
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := DB.Query(query, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent sync cycles")
		return nil, fmt.Errorf("failed to query recent sync cycles: %w", err)
	}
	defer rows.Close()

	var cycles []types.SyncCycleRecord
	for rows.Next() {
		var rec types.SyncCycleRecord
		var durationMS int64
		var readingsJSON []byte
		var txID, cycleErr sql.NullString

		err := rows.Scan(
			&rec.CycleID, &rec.CycleNumber, &rec.StartedAt, &durationMS,
			&rec.Pushed, &rec.Reason, &readingsJSON, &txID, &cycleErr,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan sync cycle row")
			continue // Skip this row and continue with others
		}

		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.TxID = txID.String
		rec.Err = cycleErr.String

		if len(readingsJSON) > 0 {
			if err := json.Unmarshal(readingsJSON, &rec.Readings); err != nil {
				log.Error().Err(err).Str("cycle_id", rec.CycleID).Msg("Failed to unmarshal readings for sync cycle")
				continue // Skip this row and continue with others
			}
		}

		cycles = append(cycles, rec)
	}

	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("Error occurred during row iteration")
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(cycles)).Int("limit", limit).Msg("Retrieved recent sync cycles")
	return cycles, nil
}

// GetSyncCycleByID retrieves a specific sync cycle by its cycle ID
func GetSyncCycleByID(cycleID string) (*types.SyncCycleRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT
			cycle_id, cycle_number, started_at, duration_ms,
			pushed, reason, readings, tx_id, err
		FROM sync_cycles
		WHERE cycle_id = $1
	`

	var rec types.SyncCycleRecord
	var durationMS int64
	var readingsJSON []byte
	var txID, cycleErr sql.NullString

	err := DB.QueryRow(query, cycleID).Scan(
		&rec.CycleID, &rec.CycleNumber, &rec.StartedAt, &durationMS,
		&rec.Pushed, &rec.Reason, &readingsJSON, &txID, &cycleErr,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sync cycle with ID %s not found", cycleID)
		}
		log.Error().Err(err).Str("cycle_id", cycleID).Msg("Failed to query sync cycle by ID")
		return nil, fmt.Errorf("failed to query sync cycle by ID: %w", err)
	}

	rec.Duration = time.Duration(durationMS) * time.Millisecond
	rec.TxID = txID.String
	rec.Err = cycleErr.String

	if len(readingsJSON) > 0 {
		if err := json.Unmarshal(readingsJSON, &rec.Readings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal readings: %w", err)
		}
	}

	return &rec, nil
}

// GetSyncActivitySummary retrieves aggregated oracle-sync statistics
func GetSyncActivitySummary() (*SyncActivitySummary, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	summary := &SyncActivitySummary{}

	// Aggregate counts across all recorded cycles
	query := `
		SELECT
			COUNT(*) as total_cycles,
			COUNT(CASE WHEN pushed THEN 1 END) as pushed_cycles,
			COUNT(CASE WHEN NOT pushed AND err IS NULL THEN 1 END) as skipped_cycles,
			COUNT(CASE WHEN err IS NOT NULL THEN 1 END) as aborted_cycles
		FROM sync_cycles
	`

	err := DB.QueryRow(query).Scan(
		&summary.TotalCycles,
		&summary.PushedCycles,
		&summary.SkippedCycles,
		&summary.AbortedCycles,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync cycle counts: %w", err)
	}

	// Most recent accepted push, if any
	lastPushQuery := `
		SELECT started_at, tx_id
		FROM sync_cycles
		WHERE pushed = TRUE
		ORDER BY started_at DESC
		LIMIT 1
	`

	var lastPushAt time.Time
	var lastTxID sql.NullString
	err = DB.QueryRow(lastPushQuery).Scan(&lastPushAt, &lastTxID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get last push: %w", err)
	}
	if err == nil {
		summary.LastPushAt = lastPushAt.Format(time.RFC3339)
		summary.LastPushTxID = lastTxID.String
	}

	log.Debug().
		Int("totalCycles", summary.TotalCycles).
		Int("pushedCycles", summary.PushedCycles).
		Msg("Retrieved sync activity summary")

	return summary, nil
}
