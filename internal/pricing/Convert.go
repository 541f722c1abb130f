/*

This file contains the unit conversions feeding oracle submissions: APY
percent to basis points and pool TVL in USD to sats at a given BTC/USD rate.
Decimal arithmetic throughout, rounded half away from zero to whole units.

*/

package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/stacksfoundry/yra/internal/types"
)

var ErrInvalidConversion = errors.New("invalid unit conversion")

const SATS_PER_BTC = 100_000_000

// APYToBasisPoints converts a percentage APY to whole basis points, clamped
// to the oracle contract's accepted range of [0, 10000].
func APYToBasisPoints(apy float64) (int64, error) {
	if math.IsNaN(apy) || math.IsInf(apy, 0) {
		return 0, fmt.Errorf("%w: apy is not finite: %f", ErrInvalidConversion, apy)
	}

	bps := decimal.NewFromFloat(apy).
		Mul(decimal.NewFromInt(100)).
		Round(0).
		IntPart()

	if bps < 0 {
		return 0, nil
	}
	if bps > types.MaxAPYBasisPoints {
		return types.MaxAPYBasisPoints, nil
	}
	return bps, nil
}

// USDToSats converts a USD amount to whole sats at the given BTC/USD rate.
func USDToSats(usd float64, rate decimal.Decimal) (int64, error) {
	if math.IsNaN(usd) || math.IsInf(usd, 0) || usd < 0 {
		return 0, fmt.Errorf("%w: usd amount %f", ErrInvalidConversion, usd)
	}
	if !rate.IsPositive() {
		return 0, fmt.Errorf("%w: btc/usd rate %s", ErrInvalidConversion, rate.String())
	}

	sats := decimal.NewFromFloat(usd).
		Div(rate).
		Mul(decimal.NewFromInt(SATS_PER_BTC)).
		Round(0)

	return sats.IntPart(), nil
}
