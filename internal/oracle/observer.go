/*

This file contains the observe-mode oracle. It accepts every update, logs
what a live client would have broadcast, and remembers the last accepted
readings so the status surface stays meaningful without chain access. The
default mode for new deployments.

*/

package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stacksfoundry/yra/internal/logger"
	"github.com/stacksfoundry/yra/internal/types"
)

var observerLogger = logger.GetForComponent("oracle_observer")

type ObservingOracle struct {
	mu       sync.Mutex
	readings map[string]types.ProtocolReading
	lastSeen time.Time
}

func NewObservingOracle() *ObservingOracle {
	return &ObservingOracle{readings: make(map[string]types.ProtocolReading)}
}

// Read returns the last observed readings in place of chain state.
func (o *ObservingOracle) Read(ctx context.Context) (*types.OracleState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	readings := make(map[string]types.ProtocolReading, len(o.readings))
	for protocol, reading := range o.readings {
		readings[protocol] = reading
	}
	return &types.OracleState{Readings: readings, FetchedAt: o.lastSeen}, nil
}

// Submit validates and records the update without touching the chain.
func (o *ObservingOracle) Submit(ctx context.Context, update types.OracleUpdate) (string, error) {
	if err := update.Validate(); err != nil {
		return "", err
	}

	txID := "observed-" + uuid.New().String()

	o.mu.Lock()
	for _, reading := range update.Readings {
		o.readings[reading.Protocol] = reading
	}
	o.lastSeen = time.Now()
	o.mu.Unlock()

	for _, reading := range update.Readings {
		observerLogger.Info().
			Str("tx_id", txID).
			Str("protocol", reading.Protocol).
			Str("pool_id", reading.PoolID).
			Int64("apy_bps", reading.APYBasisPoints).
			Int64("tvl_sats", reading.TVLSats).
			Msg("Observe mode: update accepted without broadcast")
	}
	return txID, nil
}
