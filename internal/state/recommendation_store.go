// ./internal/state/recommendation_store.go
package state

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/stacksfoundry/yra/internal/types"
)

// SaveRecommendation saves a generated recommendation together with the
// profile that asked for it. Summary columns cover the common queries; the
// full document is kept as a JSONB payload so nothing the engine produced is
// lost.
func SaveRecommendation(rec types.Recommendation, profile types.UserProfile) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	payloadJSON, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal recommendation payload: %w", err)
	}

	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal profile: %w", err)
	}

	query := `
		INSERT INTO recommendations (
			rec_id, generated_at, source,
			primary_protocol, primary_pool_id, primary_apy,
			confidence_score, profile, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING rec_pk;
	`

	var recPK int64
	err = DB.QueryRow(
		query,
		rec.ID, rec.GeneratedAt, string(rec.Source),
		rec.Primary.Protocol, rec.Primary.PoolID, rec.Primary.APY,
		rec.ConfidenceScore, profileJSON, payloadJSON,
	).Scan(&recPK)

	if err != nil {
		return 0, fmt.Errorf("failed to save recommendation: %w", err)
	}

	log.Info().
		Int64("rec_pk", recPK).
		Str("rec_id", rec.ID).
		Str("source", string(rec.Source)).
		Str("primary_pool", rec.Primary.PoolID).
		Msg("Recommendation saved to database")

	return recPK, nil
}

// GetRecentRecommendations returns the most recent recommendations, newest
// first, rebuilt from their JSONB payloads.
func GetRecentRecommendations(limit int) ([]types.Recommendation, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT payload
		FROM recommendations
		ORDER BY generated_at DESC
		LIMIT $1;
	`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent recommendations: %w", err)
	}
	defer rows.Close()

	var recs []types.Recommendation
	for rows.Next() {
		var payloadJSON []byte
		if err := rows.Scan(&payloadJSON); err != nil {
			log.Error().Err(err).Msg("Failed to scan recommendation row")
			continue
		}

		var rec types.Recommendation
		if err := json.Unmarshal(payloadJSON, &rec); err != nil {
			log.Error().Err(err).Msg("Failed to unmarshal recommendation payload")
			continue
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recommendation rows: %w", err)
	}

	return recs, nil
}
