// Package indexerclient is a thin HTTP client for the indexer service
// (spec §6 "Indexer HTTP"), grounded on the same request/response JSON
// conventions as the pack's other blockchain-indexer code (see
// other_examples' btc-indexer.go record shapes), adapted to this
// chain's decimal-string amount convention.
package indexerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	goerrors "github.com/go-errors/errors"
)

// Transfer is one fungible or NFT transfer record.
type Transfer struct {
	Contract    string `json:"contract"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	TxHash      string `json:"txHash"`
	BlockHeight int64  `json:"blockHeight"`
	IsNFT       bool   `json:"isNft"`
	TokenID     string `json:"tokenId,omitempty"`
}

// Reservation is a NativeSwap liquidity reservation record.
type Reservation struct {
	Contract      string `json:"contract"`
	ProviderMLDSA string `json:"providerMldsa"`
	BuyerAddress  string `json:"buyerAddress"`
	Satoshis      string `json:"satoshis"`
	TokenAmount   string `json:"tokenAmount"`
	TxHash        string `json:"txHash"`
	BlockHeight   int64  `json:"blockHeight"`
	Status        string `json:"status"`
}

// Swap is a NativeSwap execution record.
type Swap struct {
	Contract       string `json:"contract"`
	Buyer          string `json:"buyer"`
	BtcSpent       string `json:"btcSpent"`
	TokensReceived string `json:"tokensReceived"`
	TxHash         string `json:"txHash"`
	BlockHeight    int64  `json:"blockHeight"`
}

// PriceChange is an emitted virtual-reserve price movement.
type PriceChange struct {
	Contract      string  `json:"contract"`
	PercentDelta  float64 `json:"percentDelta"`
	NewPrice      string  `json:"newPrice"`
	TxHash        string  `json:"txHash"`
	BlockHeight   int64   `json:"blockHeight"`
}

// PoolEvent is a liquidity add/remove record.
type PoolEvent struct {
	Contract    string `json:"contract"`
	Provider    string `json:"provider"`
	Kind        string `json:"kind"` // "added" | "removed"
	Satoshis    string `json:"satoshis"`
	TokenAmount string `json:"tokenAmount"`
	TxHash      string `json:"txHash"`
	BlockHeight int64  `json:"blockHeight"`
}

// StakingEvent is a stake/unstake/reward-claim record.
type StakingEvent struct {
	Contract    string `json:"contract"`
	Actor       string `json:"actor"`
	Kind        string `json:"kind"` // "staked" | "unstaked" | "claimed"
	Amount      string `json:"amount"`
	TxHash      string `json:"txHash"`
	BlockHeight int64  `json:"blockHeight"`
}

// EventBatch is the response of GET /events?since=K.
type EventBatch struct {
	LastIndexedBlock int64          `json:"lastIndexedBlock"`
	Since            int64          `json:"since"`
	Transfers        []Transfer     `json:"transfers"`
	Reservations     []Reservation  `json:"reservations"`
	Swaps            []Swap         `json:"swaps"`
	PriceChanges     []PriceChange  `json:"priceChanges"`
	PoolEvents       []PoolEvent    `json:"poolEvents"`
	StakingEvents    []StakingEvent `json:"stakingEvents"`
}

// ContractBalance is one entry of GET /balances/{address}.
type ContractBalance struct {
	Contract string `json:"contract"`
	Balance  string `json:"balance"`
}

// Listings is the response of GET /listings/{contract}.
type Listings struct {
	PriorityCount int `json:"priorityCount"`
	StandardCount int `json:"standardCount"`
}

// PriceInfo is the response of GET /prices/{contract}.
type PriceInfo struct {
	VirtualBTCReserve   string        `json:"virtualBtcReserve"`
	VirtualTokenReserve string        `json:"virtualTokenReserve"`
	History             []PriceChange `json:"history"`
}

// Client is the indexer HTTP surface the core depends on.
type Client interface {
	Events(ctx context.Context, since int64, limit int) (*EventBatch, error)
	Balances(ctx context.Context, address string) ([]ContractBalance, error)
	Listings(ctx context.Context, contract string) (*Listings, error)
	Prices(ctx context.Context, contract string) (*PriceInfo, error)
	Reservations(ctx context.Context, status string, limit int) ([]Reservation, error)
	Transfers(ctx context.Context, mldsaHash string, limit, skip int) ([]Transfer, error)
}

// HTTPClient implements Client over plain JSON-over-HTTP GETs.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds an HTTPClient against baseURL with the given
// per-call timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return goerrors.Errorf("indexerclient: build request %s: %w", path, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return goerrors.Errorf("indexerclient: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return goerrors.Errorf("indexerclient: %s: server error %d", path, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return goerrors.Errorf("indexerclient: %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return goerrors.Errorf("indexerclient: %s: decode response: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) Events(ctx context.Context, since int64, limit int) (*EventBatch, error) {
	path := fmt.Sprintf("/events?since=%d", since)
	if limit > 0 {
		path += fmt.Sprintf("&limit=%d", limit)
	}
	var batch EventBatch
	if err := c.get(ctx, path, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (c *HTTPClient) Balances(ctx context.Context, address string) ([]ContractBalance, error) {
	var out []ContractBalance
	if err := c.get(ctx, "/balances/"+url.PathEscape(address), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Listings(ctx context.Context, contract string) (*Listings, error) {
	var out Listings
	if err := c.get(ctx, "/listings/"+url.PathEscape(contract), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Prices(ctx context.Context, contract string) (*PriceInfo, error) {
	var out PriceInfo
	if err := c.get(ctx, "/prices/"+url.PathEscape(contract), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Reservations(ctx context.Context, status string, limit int) ([]Reservation, error) {
	path := "/reservations?"
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	var out []Reservation
	if err := c.get(ctx, path+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Transfers(ctx context.Context, mldsaHash string, limit, skip int) ([]Transfer, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if skip > 0 {
		q.Set("skip", fmt.Sprintf("%d", skip))
	}
	path := "/transfers/" + url.PathEscape(mldsaHash)
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var out []Transfer
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}
