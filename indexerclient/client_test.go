package indexerclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Events_DecodesBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("since"))
		json.NewEncoder(w).Encode(EventBatch{
			LastIndexedBlock: 10,
			Transfers:        []Transfer{{Contract: "0xc1", From: "a", To: "b", Value: "1", TxHash: "tx1"}},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	batch, err := c.Events(context.Background(), 5, 0)

	require.NoError(t, err)
	assert.Equal(t, int64(10), batch.LastIndexedBlock)
	require.Len(t, batch.Transfers, 1)
	assert.Equal(t, "0xc1", batch.Transfers[0].Contract)
}

func TestHTTPClient_Balances_EscapesAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/balances/addr with spaces", r.URL.Path)
		json.NewEncoder(w).Encode([]ContractBalance{{Contract: "0xc1", Balance: "100"}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	balances, err := c.Balances(context.Background(), "addr with spaces")

	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, "100", balances[0].Balance)
}

func TestHTTPClient_ServerError_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	_, err := c.Events(context.Background(), 1, 0)

	assert.Error(t, err)
}

func TestHTTPClient_Transfers_PaginationQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "200", r.URL.Query().Get("limit"))
		assert.Equal(t, "400", r.URL.Query().Get("skip"))
		json.NewEncoder(w).Encode([]Transfer{})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	_, err := c.Transfers(context.Background(), "deadbeef", 200, 400)

	require.NoError(t, err)
}
