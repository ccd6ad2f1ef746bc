// Package chainrpc is a thin client for the chain's JSON-RPC surface.
// The chain RPC itself is an external collaborator per spec §1 — this
// package only declares the operations enumerated in spec §6 and a
// minimal HTTP/JSON transport; no chain-consensus logic lives here.
package chainrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	goerrors "github.com/go-errors/errors"
)

// Input is one transaction input. Address is optional: some chains
// expose block inputs without address data (spec §4.4 rationale).
type Input struct {
	OriginalTransactionID string  `json:"originalTransactionId"`
	OutputTransactionIndex uint32 `json:"outputTransactionIndex"`
	Address               string  `json:"address,omitempty"`
}

// Output is one transaction output.
type Output struct {
	Index        uint32 `json:"index"`
	Value        string `json:"value"` // decimal string, arbitrary precision
	ScriptPubKey struct {
		Address string `json:"address"`
	} `json:"scriptPubKey"`
}

// ContractEvent is one raw event emitted by a contract within a tx.
type ContractEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Transaction is one chain transaction as returned by getBlock.
type Transaction struct {
	Hash    string                       `json:"hash"`
	From    string                       `json:"from,omitempty"`
	Inputs  []Input                      `json:"inputs"`
	Outputs []Output                     `json:"outputs"`
	Events  map[string][]ContractEvent   `json:"events,omitempty"`
}

// Block is a full block returned by getBlock(height, includeFullTx=true).
type Block struct {
	Height       int64         `json:"height"`
	Transactions []Transaction `json:"transactions"`
}

// OwnerInfo is the chain-level identity record for an address.
type OwnerInfo struct {
	// SerializedOwner is the canonical serialized owner record,
	// lowercase hex; becomes the MLDSA hash.
	SerializedOwner string `json:"serializedOwner"`
	PublicKey       string `json:"publicKey,omitempty"`
	TweakedPubkey   string `json:"tweakedPubkey,omitempty"`
}

// UTXO is one unspent output as returned by utxoManager.getUTXOs.
type UTXO struct {
	TxID  string `json:"txid"`
	Vout  uint32 `json:"vout"`
	Value string `json:"value"`
}

// Client is the chain JSON-RPC surface the core depends on, matching
// spec §6 exactly.
type Client interface {
	GetBlockNumber(ctx context.Context) (int64, error)
	GetBlock(ctx context.Context, height int64, includeFullTx bool) (*Block, error)
	GetPublicKeyInfo(ctx context.Context, addr string, includePublicKey bool) (*OwnerInfo, error)
	GetBalance(ctx context.Context, addr string, confirmedOnly bool) (*big.Int, error)
	GetCSV1ForAddress(ctx context.Context, owner string) (string, error)
	GetUTXOs(ctx context.Context, address string, isCSV bool, mergePendingUTXOs bool) ([]UTXO, error)
}

// HTTPClient is a JSON-over-HTTP implementation of Client, in the
// same call/timeout shape the teacher's RPC dial (btcd's websocket
// rpcclient, referenced from lnd.go) uses: one base URL, one HTTP
// client with a caller-side timeout, no retry loop (spec §5: "a
// timeout is treated the same as a failure").
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds an HTTPClient against baseURL with the given
// per-call timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{Method: method, Params: params})
	if err != nil {
		return goerrors.Errorf("chainrpc: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return goerrors.Errorf("chainrpc: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return goerrors.Errorf("chainrpc: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return goerrors.Errorf("chainrpc: %s: unexpected status %d", method, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return goerrors.Errorf("chainrpc: %s: decode response: %w", method, err)
	}
	return nil
}

func (c *HTTPClient) GetBlockNumber(ctx context.Context) (int64, error) {
	var out struct {
		Height int64 `json:"height"`
	}
	if err := c.call(ctx, "getBlockNumber", nil, &out); err != nil {
		return 0, err
	}
	return out.Height, nil
}

func (c *HTTPClient) GetBlock(ctx context.Context, height int64, includeFullTx bool) (*Block, error) {
	var block Block
	if err := c.call(ctx, "getBlock", []interface{}{height, includeFullTx}, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

func (c *HTTPClient) GetPublicKeyInfo(ctx context.Context, addr string, includePublicKey bool) (*OwnerInfo, error) {
	var info OwnerInfo
	if err := c.call(ctx, "getPublicKeyInfo", []interface{}{addr, includePublicKey}, &info); err != nil {
		return nil, err
	}
	if info.SerializedOwner == "" {
		return nil, nil
	}
	return &info, nil
}

func (c *HTTPClient) GetBalance(ctx context.Context, addr string, confirmedOnly bool) (*big.Int, error) {
	var out struct {
		Balance string `json:"balance"`
	}
	if err := c.call(ctx, "getBalance", []interface{}{addr, confirmedOnly}, &out); err != nil {
		return nil, err
	}
	bal, ok := new(big.Int).SetString(out.Balance, 10)
	if !ok {
		return nil, goerrors.Errorf("chainrpc: getBalance: malformed balance %q", out.Balance)
	}
	return bal, nil
}

func (c *HTTPClient) GetCSV1ForAddress(ctx context.Context, owner string) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	if err := c.call(ctx, "getCSV1ForAddress", []interface{}{owner}, &out); err != nil {
		return "", err
	}
	return out.Address, nil
}

func (c *HTTPClient) GetUTXOs(ctx context.Context, address string, isCSV bool, mergePendingUTXOs bool) ([]UTXO, error) {
	params := map[string]interface{}{
		"address":            address,
		"isCSV":              isCSV,
		"mergePendingUTXOs":  mergePendingUTXOs,
	}
	var utxos []UTXO
	if err := c.call(ctx, "utxoManager.getUTXOs", []interface{}{params}, &utxos); err != nil {
		return nil, err
	}
	return utxos, nil
}

// ErrTransient wraps a transient failure (timeout, 5xx) so callers
// can decide whether to abort the tick per spec §7 without treating
// it as fatal.
func ErrTransient(err error) error {
	return fmt.Errorf("chainrpc: transient: %w", err)
}
