package notifier

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trypto13/jeet-tracker/matcher"
	"github.com/trypto13/jeet-tracker/scanner"
)

func TestBuildGroups_OrdersByBlockHeightAndGroupsByAddressTxHash(t *testing.T) {
	btc := []scanner.Event{
		{Type: scanner.EventBTCSent, Address: "addr1", TxHash: "tx2", BlockHeight: 20, Satoshis: big.NewInt(100)},
		{Type: scanner.EventBTCReceived, Address: "addr1", TxHash: "tx1", BlockHeight: 10, Satoshis: big.NewInt(50)},
	}
	semantic := []matcher.Event{
		{Kind: matcher.KindToken, Address: "addr1", TxHash: "tx1", BlockHeight: 10, Direction: matcher.DirectionIn},
	}

	groups := BuildGroups(btc, semantic)

	require.Len(t, groups, 2)
	assert.Equal(t, int64(10), groups[0].BlockHeight)
	assert.Equal(t, "tx1", groups[0].TxHash)
	assert.Len(t, groups[0].BTC, 1)
	assert.Len(t, groups[0].Semantic, 1)
	assert.Equal(t, int64(20), groups[1].BlockHeight)
}

// swap-executed suppression scenario from spec §8: when a swap is
// present the group renders as a single Swap Executed message, not
// separately as a token transfer plus a BTC send.
func TestRender_SwapExecutedTakesPriority(t *testing.T) {
	g := Group{
		Address: "addr1", TxHash: "tx1", BlockHeight: 5,
		BTC: []scanner.Event{
			{Type: scanner.EventBTCSent, Address: "addr1", TxHash: "tx1", Satoshis: big.NewInt(30000)},
		},
		Semantic: []matcher.Event{
			{Kind: matcher.KindSwapExecuted, Address: "addr1", TxHash: "tx1", BtcSpent: "30000", TokenAmount: "77", Contract: "0xc1"},
			{Kind: matcher.KindToken, Address: "addr1", TxHash: "tx1", Direction: matcher.DirectionIn, Value: "77", Contract: "0xc1"},
		},
	}

	text := Render(g)

	assert.Contains(t, text, "Swap Executed")
	assert.NotContains(t, text, "BTC Sent")
}

func TestRender_TokenSwapWhenBothDirectionsPresent(t *testing.T) {
	g := Group{
		Address: "addr1", TxHash: "tx1",
		Semantic: []matcher.Event{
			{Kind: matcher.KindToken, Address: "addr1", TxHash: "tx1", Direction: matcher.DirectionOut, Value: "5", Contract: "0xout"},
			{Kind: matcher.KindToken, Address: "addr1", TxHash: "tx1", Direction: matcher.DirectionIn, Value: "10", Contract: "0xin"},
		},
	}

	text := Render(g)

	assert.Contains(t, text, "Token Swap")
}

func TestRender_InternalTransferWhenNoCounterparty(t *testing.T) {
	g := Group{
		Address: "addr1", TxHash: "tx1",
		BTC: []scanner.Event{
			{Type: scanner.EventBTCSent, Address: "addr1", TxHash: "tx1", Satoshis: big.NewInt(10000), Counterparty: ""},
			{Type: scanner.EventBTCReceived, Address: "addr1", TxHash: "tx1", Satoshis: big.NewInt(9500)},
		},
	}

	text := Render(g)

	assert.Contains(t, text, "Internal Transfer")
}

func TestRender_BTCSentWithCounterparty(t *testing.T) {
	g := Group{
		Address: "addr1", TxHash: "tx1",
		BTC: []scanner.Event{
			{Type: scanner.EventBTCSent, Address: "addr1", TxHash: "tx1", Satoshis: big.NewInt(10000), Counterparty: "bc1qexternal"},
		},
	}

	text := Render(g)

	assert.Contains(t, text, "BTC Sent")
	assert.Contains(t, text, "bc1qexternal")
}

func TestRender_FallsBackToIndividualRendering(t *testing.T) {
	g := Group{
		Address: "addr1", TxHash: "tx1",
		Semantic: []matcher.Event{
			{Kind: matcher.KindStaked, Address: "addr1", TxHash: "tx1", TokenAmount: "100"},
		},
	}

	text := Render(g)

	assert.Contains(t, text, "Wallet Activity")
	assert.Contains(t, text, "Staked")
}

func TestRender_EmptyGroupProducesNoMessage(t *testing.T) {
	assert.Equal(t, "", Render(Group{Address: "addr1", TxHash: "tx1"}))
}
