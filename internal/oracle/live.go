/*

This file contains the live oracle client. Reads go straight to a Stacks
node's read-only call endpoint. Writes are delegated: the client builds the
clarity-encoded contract-call and hands it to the external signer service
that owns the submission key, which signs, broadcasts, and returns the
transaction id. Key material never enters this process.

The on-chain contract is positional over exactly two tracked protocols, so
construction pins the tracking order and Submit enforces it.

*/

package oracle

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stacksfoundry/yra/internal/logger"
	"github.com/stacksfoundry/yra/internal/types"
)

var oracleLogger = logger.GetForComponent("stacks_oracle")

const (
	ORACLE_READ_FUNCTION  = "get-protocol-data"
	ORACLE_WRITE_FUNCTION = "update-yields"
	ORACLE_HTTP_TIMEOUT   = 30 * time.Second

	maxClarityNameLength = 128
	positionalProtocols  = 2
)

type StacksOracle struct {
	nodeURL         string
	signerURL       string
	client          *http.Client
	contractAddress string
	contractName    string
	tracked         []string
}

// NewStacksOracle builds the live client. Everything that can be validated
// without the network is validated here, so a misconfigured deployment fails
// at startup instead of at the first sync cycle.
func NewStacksOracle(nodeURL, signerURL, contractAddress, contractName string, tracked []string) (*StacksOracle, error) {
	if contractAddress == "" {
		return nil, fmt.Errorf("oracle contract address is not configured")
	}
	if _, _, err := decodeAddress(contractAddress); err != nil {
		return nil, fmt.Errorf("failed to parse oracle contract address: %w", err)
	}
	if contractName == "" || len(contractName) > maxClarityNameLength {
		return nil, fmt.Errorf("oracle contract name %q is not a valid clarity name", contractName)
	}
	if signerURL == "" {
		return nil, fmt.Errorf("oracle signer url is not configured")
	}
	if len(tracked) != positionalProtocols {
		return nil, fmt.Errorf("the oracle contract is positional over %d protocols, got %d tracked", positionalProtocols, len(tracked))
	}

	return &StacksOracle{
		nodeURL:         strings.TrimRight(nodeURL, "/"),
		signerURL:       strings.TrimRight(signerURL, "/"),
		client:          &http.Client{Timeout: ORACLE_HTTP_TIMEOUT},
		contractAddress: strings.ToUpper(strings.TrimSpace(contractAddress)),
		contractName:    contractName,
		tracked:         append([]string(nil), tracked...),
	}, nil
}

type callReadRequest struct {
	Sender    string   `json:"sender"`
	Arguments []string `json:"arguments"`
}

type callReadResponse struct {
	Okay   bool   `json:"okay"`
	Result string `json:"result"`
	Cause  string `json:"cause"`
}

// positionalKeys maps a tracking position to the contract's tuple keys.
func positionalKeys(i int) (apyKey, tvlKey string) {
	return fmt.Sprintf("apy-%c", 'a'+i), fmt.Sprintf("tvl-%c", 'a'+i)
}

// Read fetches the contract's current view via a read-only call.
func (o *StacksOracle) Read(ctx context.Context) (*types.OracleState, error) {
	url := fmt.Sprintf("%s/v2/contracts/call-read/%s/%s/%s",
		o.nodeURL, o.contractAddress, o.contractName, ORACLE_READ_FUNCTION)

	reqBody, err := json.Marshal(callReadRequest{Sender: o.contractAddress, Arguments: []string{}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode call-read request: %w", err)
	}

	body, err := o.post(ctx, url, reqBody)
	if err != nil {
		return nil, err
	}

	var parsed callReadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse call-read response: %w", err)
	}
	if !parsed.Okay {
		return nil, fmt.Errorf("read-only call rejected: %s", parsed.Cause)
	}

	entries, err := decodeResponseTuple(parsed.Result)
	if err != nil {
		return nil, err
	}

	readings := make(map[string]types.ProtocolReading, len(o.tracked))
	for i, protocol := range o.tracked {
		apyKey, tvlKey := positionalKeys(i)
		apy, ok := entries[apyKey]
		if !ok {
			return nil, fmt.Errorf("%w: tuple is missing %q", ErrClarityDecode, apyKey)
		}
		tvl, ok := entries[tvlKey]
		if !ok {
			return nil, fmt.Errorf("%w: tuple is missing %q", ErrClarityDecode, tvlKey)
		}
		readings[protocol] = types.ProtocolReading{
			Protocol:       protocol,
			APYBasisPoints: apy,
			TVLSats:        tvl,
		}
	}

	return &types.OracleState{Readings: readings, FetchedAt: time.Now()}, nil
}

// signerRequest is the contract-call intent handed to the external signer.
// Arguments are hex-encoded clarity values in call order.
type signerRequest struct {
	ContractAddress string   `json:"contract_address"`
	ContractName    string   `json:"contract_name"`
	Function        string   `json:"function"`
	Arguments       []string `json:"arguments"`
}

type signerResponse struct {
	TxID string `json:"txid"`
}

// Submit hands update-yields to the signer with the readings in tracking
// order. A returned transaction id means the broadcast was accepted by a
// node, not that the transaction is mined.
func (o *StacksOracle) Submit(ctx context.Context, update types.OracleUpdate) (string, error) {
	if err := update.Validate(); err != nil {
		return "", err
	}
	if len(update.Readings) != len(o.tracked) {
		return "", fmt.Errorf("%w: update carries %d readings, contract takes %d",
			types.ErrInvalidReading, len(update.Readings), len(o.tracked))
	}
	for i, reading := range update.Readings {
		if reading.Protocol != o.tracked[i] {
			return "", fmt.Errorf("%w: reading %d is %q, tracking order expects %q",
				types.ErrInvalidReading, i, reading.Protocol, o.tracked[i])
		}
	}

	// Argument order is apy-a, apy-b, tvl-a, tvl-b.
	args := make([]string, 0, 2*len(update.Readings))
	for _, reading := range update.Readings {
		arg, err := encodeClarityUint(reading.APYBasisPoints)
		if err != nil {
			return "", err
		}
		args = append(args, "0x"+hex.EncodeToString(arg))
	}
	for _, reading := range update.Readings {
		arg, err := encodeClarityUint(reading.TVLSats)
		if err != nil {
			return "", err
		}
		args = append(args, "0x"+hex.EncodeToString(arg))
	}

	reqBody, err := json.Marshal(signerRequest{
		ContractAddress: o.contractAddress,
		ContractName:    o.contractName,
		Function:        ORACLE_WRITE_FUNCTION,
		Arguments:       args,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode signer request: %w", err)
	}

	body, err := o.post(ctx, o.signerURL+"/v1/contract-call", reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrSubmissionFailed, err)
	}

	var parsed signerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: failed to parse signer response: %s", ErrSubmissionFailed, err)
	}
	if parsed.TxID == "" {
		return "", fmt.Errorf("%w: signer returned no transaction id", ErrSubmissionFailed)
	}

	oracleLogger.Info().
		Str("tx_id", parsed.TxID).
		Str("contract", o.contractAddress+"."+o.contractName).
		Msg("Oracle update broadcast accepted")
	return parsed.TxID, nil
}

func (o *StacksOracle) post(ctx context.Context, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, truncateBody(body))
	}
	return body, nil
}

func truncateBody(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
