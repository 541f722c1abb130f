/*

This file contains the oracle-sync engine: the cycle state machine that
re-aggregates yields, derives one reading per tracked protocol, compares the
readings against the last pushed baseline, and submits an update when the
change clears a significance threshold.

Cycles run on a cron schedule and behind an atomic in-progress guard. A
trigger that arrives while a cycle is running is dropped, never queued. The
baseline is replaced only after the oracle accepts a submission, so a failed
push is retried naturally by the next cycle.

*/

package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stacksfoundry/yra/internal/aggregator"
	"github.com/stacksfoundry/yra/internal/logger"
	"github.com/stacksfoundry/yra/internal/metrics"
	"github.com/stacksfoundry/yra/internal/oracle"
	"github.com/stacksfoundry/yra/internal/pricing"
	"github.com/stacksfoundry/yra/internal/types"
)

var (
	// ErrCycleInProgress is returned when a trigger lands while another cycle
	// holds the guard. The trigger is dropped, not queued.
	ErrCycleInProgress = errors.New("a sync cycle is already in progress")

	// ErrNoRepresentative is returned when a tracked protocol has no pool
	// eligible to represent it in the current snapshot.
	ErrNoRepresentative = errors.New("no representative pool for tracked protocol")
)

// CycleResult is the outcome of one completed sync cycle.
type CycleResult struct {
	CycleID  string                  `json:"cycle_id"`
	Pushed   bool                    `json:"pushed"`
	Reason   string                  `json:"reason"`
	Readings []types.ProtocolReading `json:"readings"`
	TxID     string                  `json:"tx_id,omitempty"`
}

// Recorder persists one cycle outcome. Recorder errors are logged and never
// fail the cycle.
type Recorder func(record types.SyncCycleRecord) error

// Config holds the dependencies for building a sync engine.
type Config struct {
	Aggregator *aggregator.Service
	Pricing    *pricing.Client
	Oracle     oracle.Oracle
	Params     types.EngineParameters
	Recorder   Recorder // optional
	Interval   time.Duration
}

func validateConfig(cfg Config) error {
	if cfg.Aggregator == nil {
		return fmt.Errorf("aggregator cannot be nil")
	}
	if cfg.Pricing == nil {
		return fmt.Errorf("pricing client cannot be nil")
	}
	if cfg.Oracle == nil {
		return fmt.Errorf("oracle writer cannot be nil")
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", cfg.Interval)
	}
	if err := cfg.Params.Validate(); err != nil {
		return err
	}
	return nil
}

// Engine owns the sync cycle state: the baseline, the in-progress guard, and
// the latest aggregation snapshot. The baseline is written only by the
// goroutine holding the guard; readers load it atomically.
type Engine struct {
	logger     zerolog.Logger
	aggregator *aggregator.Service
	pricing    *pricing.Client
	oracle     oracle.Oracle
	params     types.EngineParameters
	recorder   Recorder
	interval   time.Duration

	inProgress atomic.Bool
	baseline   atomic.Pointer[types.OracleBaseline]
	latest     atomic.Pointer[aggregator.AggregationResult]

	cron       *cron.Cron
	cycleCount atomic.Int64
}

// NewEngine builds a sync engine with dependency injection.
func NewEngine(cfg Config) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("sync engine configuration validation failed: %w", err)
	}

	engine := &Engine{
		logger:     logger.GetForComponent("sync_engine"),
		aggregator: cfg.Aggregator,
		pricing:    cfg.Pricing,
		oracle:     cfg.Oracle,
		params:     cfg.Params,
		recorder:   cfg.Recorder,
		interval:   cfg.Interval,
		cron:       cron.New(),
	}

	engine.logger.Info().
		Dur("interval", cfg.Interval).
		Strs("trackedProtocols", cfg.Params.TrackedProtocols).
		Msg("Sync engine created")

	return engine, nil
}

// TriggerSync runs one cycle if no other cycle holds the guard. A busy engine
// drops the trigger and returns ErrCycleInProgress.
func (e *Engine) TriggerSync(ctx context.Context) (*CycleResult, error) {
	if !e.inProgress.CompareAndSwap(false, true) {
		e.logger.Warn().Msg("Sync trigger dropped: a cycle is already in progress")
		metrics.SyncCycles.WithLabelValues("busy").Inc()
		return nil, ErrCycleInProgress
	}
	defer e.inProgress.Store(false)

	return e.runCycle(ctx)
}

// ForceSync clears the baseline under the guard and runs a cycle, so the
// significance test passes unconditionally. Two consecutive forced syncs both
// push even with identical readings.
func (e *Engine) ForceSync(ctx context.Context) (*CycleResult, error) {
	if !e.inProgress.CompareAndSwap(false, true) {
		e.logger.Warn().Msg("Forced sync dropped: a cycle is already in progress")
		metrics.SyncCycles.WithLabelValues("busy").Inc()
		return nil, ErrCycleInProgress
	}
	defer e.inProgress.Store(false)

	e.baseline.Store(nil)
	e.logger.Info().Msg("Forced sync: baseline cleared, next evaluation pushes unconditionally")

	return e.runCycle(ctx)
}

// runCycle executes one complete sync cycle. The caller must hold the guard.
func (e *Engine) runCycle(ctx context.Context) (*CycleResult, error) {
	cycleStartTime := time.Now()
	cycleNumber := e.cycleCount.Add(1)

	// One id traces every log line of the cycle.
	cycleID := uuid.New().String()
	cycleLogger := e.logger.With().Str("cycle_id", cycleID).Logger()

	cycleLogger.Info().
		Int64("cycleNumber", cycleNumber).
		Msg("--- Starting Oracle Sync Cycle ---")

	result := &CycleResult{CycleID: cycleID}

	// --- Step 1: Aggregation ---
	cycleLogger.Info().Msg("Step 1: Aggregating yield opportunities...")
	snapshot, err := e.aggregator.Aggregate(ctx)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: aggregation failed.")
		e.finishAborted(cycleLogger, cycleID, cycleStartTime, err)
		return nil, err
	}
	e.latest.Store(snapshot)
	cycleLogger.Info().
		Int("opportunities", len(snapshot.Opportunities)).
		Int("adaptersSucceeded", snapshot.Succeeded()).
		Msg("Step 1: Aggregation complete.")

	// --- Step 2: Reading Derivation ---
	cycleLogger.Info().Msg("Step 2: Deriving oracle readings...")
	rate, err := e.pricing.Rate(ctx)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: no usable BTC/USD rate.")
		e.finishAborted(cycleLogger, cycleID, cycleStartTime, err)
		return nil, err
	}
	readings, err := e.deriveReadings(snapshot.Opportunities, rate)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: could not derive readings, baseline untouched.")
		e.finishAborted(cycleLogger, cycleID, cycleStartTime, err)
		return nil, err
	}
	result.Readings = readings

	for _, reading := range readings {
		metrics.OracleAPYBasisPoints.WithLabelValues(reading.Protocol).Set(float64(reading.APYBasisPoints))
		metrics.OracleTVLSats.WithLabelValues(reading.Protocol).Set(float64(reading.TVLSats))
		cycleLogger.Info().
			Str("protocol", reading.Protocol).
			Str("pool", reading.PoolID).
			Int64("apyBps", reading.APYBasisPoints).
			Int64("tvlSats", reading.TVLSats).
			Msg("Derived protocol reading")
	}
	cycleLogger.Info().Str("rate", rate.String()).Msg("Step 2: Readings derived.")

	// --- Step 3: Significance Evaluation ---
	cycleLogger.Info().Msg("Step 3: Evaluating change against baseline...")
	pushNeeded, reason := e.evaluateSignificance(readings)
	result.Reason = reason

	if !pushNeeded {
		cycleLogger.Info().Str("reason", reason).Msg("Step 3: Change below thresholds, push skipped.")
		metrics.SyncCycles.WithLabelValues("skipped").Inc()
		e.recordCycle(cycleLogger, types.SyncCycleRecord{
			CycleID:   cycleID,
			StartedAt: cycleStartTime,
			Duration:  time.Since(cycleStartTime),
			Pushed:    false,
			Reason:    reason,
			Readings:  readings,
		})
		e.logEndOfCycle(cycleLogger, cycleStartTime)
		return result, nil
	}
	cycleLogger.Info().Str("reason", reason).Msg("Step 3: Change is significant, push required.")

	// --- Step 4: Oracle Submission ---
	cycleLogger.Info().Msg("Step 4: Submitting oracle update...")
	txID, err := e.oracle.Submit(ctx, types.OracleUpdate{Readings: readings})
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Step 4: Submission failed, baseline kept for the next cycle to retry.")
		metrics.SyncCycles.WithLabelValues("error").Inc()
		e.recordCycle(cycleLogger, types.SyncCycleRecord{
			CycleID:   cycleID,
			StartedAt: cycleStartTime,
			Duration:  time.Since(cycleStartTime),
			Pushed:    false,
			Reason:    reason,
			Readings:  readings,
			Err:       err.Error(),
		})
		return nil, err
	}
	result.Pushed = true
	result.TxID = txID

	// Broadcast acceptance ends the push; only now is the baseline replaced.
	baselineReadings := make(map[string]types.ProtocolReading, len(readings))
	for _, reading := range readings {
		baselineReadings[reading.Protocol] = reading
	}
	e.baseline.Store(&types.OracleBaseline{
		Readings:    baselineReadings,
		SubmittedAt: time.Now(),
		TxID:        txID,
	})

	metrics.SyncCycles.WithLabelValues("pushed").Inc()
	cycleLogger.Info().Str("tx_id", txID).Msg("Step 4: Oracle update accepted, baseline replaced.")

	e.recordCycle(cycleLogger, types.SyncCycleRecord{
		CycleID:   cycleID,
		StartedAt: cycleStartTime,
		Duration:  time.Since(cycleStartTime),
		Pushed:    true,
		Reason:    reason,
		Readings:  readings,
		TxID:      txID,
	})
	e.logEndOfCycle(cycleLogger, cycleStartTime)
	return result, nil
}

// deriveReadings picks the representative pool for each tracked protocol and
// converts its metrics to oracle units. A tracked protocol without a
// representative fails the whole derivation.
func (e *Engine) deriveReadings(opps []types.Opportunity, rate decimal.Decimal) ([]types.ProtocolReading, error) {
	readings := make([]types.ProtocolReading, 0, len(e.params.TrackedProtocols))

	for _, protocol := range e.params.TrackedProtocols {
		representative, found := representativeFor(opps, protocol, e.params.RepresentativePattern, e.params.DustTVLFloorUSD)
		if !found {
			return nil, fmt.Errorf("%w: %q has no pool matching %q above $%.0f TVL",
				ErrNoRepresentative, protocol, e.params.RepresentativePattern, e.params.DustTVLFloorUSD)
		}

		apyBps, err := pricing.APYToBasisPoints(representative.APY)
		if err != nil {
			return nil, fmt.Errorf("deriving %s reading: %w", protocol, err)
		}
		tvlSats, err := pricing.USDToSats(representative.TVLUSD, rate)
		if err != nil {
			return nil, fmt.Errorf("deriving %s reading: %w", protocol, err)
		}

		readings = append(readings, types.ProtocolReading{
			Protocol:       protocol,
			PoolID:         representative.PoolID,
			APYBasisPoints: apyBps,
			TVLSats:        tvlSats,
		})
	}

	return readings, nil
}

// representativeFor returns the protocol's most liquid pool whose name
// carries the pattern and whose TVL clears the dust floor.
func representativeFor(opps []types.Opportunity, protocol, pattern string, dustFloorUSD float64) (types.Opportunity, bool) {
	upperPattern := strings.ToUpper(pattern)

	var best types.Opportunity
	found := false
	for _, opp := range opps {
		if opp.Protocol != protocol {
			continue
		}
		if !strings.Contains(strings.ToUpper(opp.PoolName), upperPattern) {
			continue
		}
		if opp.TVLUSD < dustFloorUSD {
			continue
		}
		if !found || opp.TVLUSD > best.TVLUSD {
			best = opp
			found = true
		}
	}
	return best, found
}

// evaluateSignificance decides whether the fresh readings moved far enough
// from the baseline to justify a push. The caller must hold the guard.
func (e *Engine) evaluateSignificance(readings []types.ProtocolReading) (bool, string) {
	baseline := e.baseline.Load()
	if baseline == nil {
		return true, "no baseline exists, pushing unconditionally"
	}

	for _, reading := range readings {
		previous, ok := baseline.Reading(reading.Protocol)
		if !ok {
			return true, fmt.Sprintf("baseline has no entry for %s", reading.Protocol)
		}

		deltaBps := reading.APYBasisPoints - previous.APYBasisPoints
		if deltaBps < 0 {
			deltaBps = -deltaBps
		}
		if deltaBps >= e.params.APYPushThresholdBps {
			return true, fmt.Sprintf("%s apy moved %d bps (threshold %d)",
				reading.Protocol, deltaBps, e.params.APYPushThresholdBps)
		}

		// A zero-valued baseline TVL always counts as significant.
		if previous.TVLSats == 0 {
			return true, fmt.Sprintf("%s tvl baseline is zero", reading.Protocol)
		}
		deltaSats := reading.TVLSats - previous.TVLSats
		if deltaSats < 0 {
			deltaSats = -deltaSats
		}
		ratio := float64(deltaSats) / float64(previous.TVLSats)
		if ratio >= e.params.TVLPushThresholdRatio {
			return true, fmt.Sprintf("%s tvl moved %.2f%% (threshold %.2f%%)",
				reading.Protocol, ratio*100, e.params.TVLPushThresholdRatio*100)
		}
	}

	return false, "no tracked protocol moved past a push threshold"
}

// finishAborted records an aborted cycle. Aborts never touch the baseline.
func (e *Engine) finishAborted(cycleLogger zerolog.Logger, cycleID string, cycleStartTime time.Time, cause error) {
	metrics.SyncCycles.WithLabelValues("error").Inc()
	e.recordCycle(cycleLogger, types.SyncCycleRecord{
		CycleID:   cycleID,
		StartedAt: cycleStartTime,
		Duration:  time.Since(cycleStartTime),
		Pushed:    false,
		Reason:    "cycle aborted",
		Err:       cause.Error(),
	})
}

// recordCycle hands the outcome to the recorder. Persistence failures are
// logged and never fail the cycle.
func (e *Engine) recordCycle(cycleLogger zerolog.Logger, record types.SyncCycleRecord) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder(record); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to persist sync cycle record")
	}
}

func (e *Engine) logEndOfCycle(cycleLogger zerolog.Logger, cycleStartTime time.Time) {
	cycleLogger.Info().
		Str("cycleDuration", time.Since(cycleStartTime).String()).
		Msg("--- Oracle Sync Cycle Completed ---")
}

// LatestSnapshot returns the most recent aggregation snapshot, or nil before
// the first successful cycle.
func (e *Engine) LatestSnapshot() *aggregator.AggregationResult {
	return e.latest.Load()
}

// Baseline returns the last pushed baseline, or nil when nothing has been
// pushed yet.
func (e *Engine) Baseline() *types.OracleBaseline {
	return e.baseline.Load()
}

// Start fires an immediate first cycle and schedules recurring ones. The
// given context is inherited by every scheduled cycle.
func (e *Engine) Start(ctx context.Context) error {
	schedule := fmt.Sprintf("@every %s", e.interval)
	if _, err := e.cron.AddFunc(schedule, func() { e.runScheduled(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sync cycles: %w", err)
	}

	e.logger.Info().Str("schedule", schedule).Msg("Starting oracle sync loop")

	// First cycle runs now rather than one interval from now.
	go e.runScheduled(ctx)

	e.cron.Start()
	return nil
}

// runScheduled runs one timer-driven cycle. A dropped trigger already logged
// itself; everything else is logged here because cron discards return values.
func (e *Engine) runScheduled(ctx context.Context) {
	if _, err := e.TriggerSync(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
		e.logger.Error().Err(err).Msg("Scheduled sync cycle failed")
	}
}

// Stop halts the schedule and waits for any running scheduled cycle to
// return.
func (e *Engine) Stop() {
	<-e.cron.Stop().Done()
	e.logger.Info().Msg("Oracle sync loop stopped")
}
