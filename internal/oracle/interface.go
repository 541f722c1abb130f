/*

This file contains the on-chain oracle boundary. The sync policy only ever
talks to this interface; the live Stacks-backed client and the log-only
observer both satisfy it, selected by ORACLE_MODE at startup.

*/

package oracle

import (
	"context"
	"errors"

	"github.com/stacksfoundry/yra/internal/types"
)

var ErrSubmissionFailed = errors.New("oracle submission failed")
var ErrOracleUnavailable = errors.New("oracle contract is unreachable")

// Oracle reads the contract's current view and broadcasts updates to it.
// Submit returns the transaction id of the accepted broadcast; acceptance
// means the node took the transaction, not that it is mined.
type Oracle interface {
	Read(ctx context.Context) (*types.OracleState, error)
	Submit(ctx context.Context, update types.OracleUpdate) (string, error)
}
