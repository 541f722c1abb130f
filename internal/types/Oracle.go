/*

This file contains the types crossing the oracle boundary: per-protocol
readings derived from aggregated opportunities, the in-memory baseline the
significance test compares against, and the submit payload.

*/

package types

import (
	"errors"
	"fmt"
	"time"
)

const MaxAPYBasisPoints = 10000

// ProtocolReading is one tracked protocol's oracle-ready metrics, derived
// from its representative pool each sync cycle.
type ProtocolReading struct {
	Protocol       string `json:"protocol"`
	PoolID         string `json:"pool_id"` // representative pool the reading came from
	APYBasisPoints int64  `json:"apy_basis_points"`
	TVLSats        int64  `json:"tvl_sats"`
}

var ErrInvalidReading = errors.New("oracle reading is invalid")

func (r *ProtocolReading) Validate() error {
	if r.Protocol == "" {
		return fmt.Errorf("%w: protocol is empty", ErrInvalidReading)
	}
	if r.APYBasisPoints < 0 || r.APYBasisPoints > MaxAPYBasisPoints {
		return fmt.Errorf("%w: apy %d bps outside [0,%d]", ErrInvalidReading, r.APYBasisPoints, MaxAPYBasisPoints)
	}
	if r.TVLSats < 0 {
		return fmt.Errorf("%w: tvl %d sats is negative", ErrInvalidReading, r.TVLSats)
	}
	return nil
}

// OracleBaseline is the last externally confirmed state, keyed by protocol.
// A nil baseline means nothing has been pushed yet and the next cycle pushes
// unconditionally. Updated only after a submission is accepted.
type OracleBaseline struct {
	Readings    map[string]ProtocolReading `json:"readings"`
	SubmittedAt time.Time                  `json:"submitted_at"`
	TxID        string                     `json:"tx_id"`
}

// Reading returns the baseline entry for a protocol, if present.
func (b *OracleBaseline) Reading(protocol string) (ProtocolReading, bool) {
	if b == nil || b.Readings == nil {
		return ProtocolReading{}, false
	}
	r, ok := b.Readings[protocol]
	return r, ok
}

// OracleUpdate is the submit payload: one reading per tracked protocol, in
// the configured tracking order.
type OracleUpdate struct {
	Readings []ProtocolReading `json:"readings"`
}

func (u *OracleUpdate) Validate() error {
	if len(u.Readings) == 0 {
		return fmt.Errorf("%w: update has no readings", ErrInvalidReading)
	}
	for i := range u.Readings {
		if err := u.Readings[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// OracleState is the contract's currently reported view, as returned by the
// read boundary. Kept for the status surface; the significance test uses the
// in-memory baseline, never this.
type OracleState struct {
	Readings  map[string]ProtocolReading `json:"readings"`
	FetchedAt time.Time                  `json:"fetched_at"`
}

// SyncCycleRecord is the persisted outcome of one oracle-sync cycle, pushed
// or not. Err is set on aborted cycles. CycleNumber is assigned by the store
// when the record is persisted.
type SyncCycleRecord struct {
	CycleID     string            `json:"cycle_id"`
	CycleNumber int               `json:"cycle_number,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	Duration    time.Duration     `json:"duration"`
	Pushed      bool              `json:"pushed"`
	Reason      string            `json:"reason"`
	Readings    []ProtocolReading `json:"readings,omitempty"`
	TxID        string            `json:"tx_id,omitempty"`
	Err         string            `json:"err,omitempty"`
}
