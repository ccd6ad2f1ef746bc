package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trypto13/jeet-tracker/indexerclient"
	"github.com/trypto13/jeet-tracker/store"
)

func TestMatchTransfers_BothDirections(t *testing.T) {
	proj := Projection{
		MLDSAMap:     map[string]string{"primaryA": "aaaa", "primaryB": "bbbb"},
		TrackedSet:   map[string]struct{}{},
		CanonicalMap: map[string]string{},
	}
	batch := &indexerclient.EventBatch{
		Transfers: []indexerclient.Transfer{
			{Contract: "0xc1", From: "0xAAAA", To: "0xBBBB", Value: "100", TxHash: "tx1", BlockHeight: 5},
		},
	}

	events, alerts := Match(batch, proj, nil)

	require.Len(t, events, 2)
	assert.Empty(t, alerts)

	var outSeen, inSeen bool
	for _, e := range events {
		if e.Direction == DirectionOut {
			assert.Equal(t, "primaryA", e.Address)
			outSeen = true
		}
		if e.Direction == DirectionIn {
			assert.Equal(t, "primaryB", e.Address)
			inSeen = true
		}
	}
	assert.True(t, outSeen)
	assert.True(t, inSeen)
}

// reservation seller-side scenario from spec §8: a liquidity
// reservation matched only via the provider's MLDSA hash, with no
// buyer-side match since the buyer address isn't tracked.
func TestMatchReservations_SellerSideOnly(t *testing.T) {
	proj := Projection{
		MLDSAMap:     map[string]string{"sellerPrimary": "deadbeef"},
		TrackedSet:   map[string]struct{}{},
		CanonicalMap: map[string]string{},
	}
	batch := &indexerclient.EventBatch{
		Reservations: []indexerclient.Reservation{
			{
				Contract: "0xc2", ProviderMLDSA: "0xDEADBEEF", BuyerAddress: "bc1quntracked",
				Satoshis: "5000", TokenAmount: "10", TxHash: "tx2", BlockHeight: 6, Status: "open",
			},
		},
	}

	events, _ := Match(batch, proj, nil)

	require.Len(t, events, 1)
	assert.Equal(t, KindLiquidityReserved, events[0].Kind)
	assert.Equal(t, "sellerPrimary", events[0].Address)
	assert.Equal(t, RoleSeller, events[0].Role)
}

func TestMatchReservations_ConsumedEmitsProviderConsumed(t *testing.T) {
	proj := Projection{
		MLDSAMap:     map[string]string{"sellerPrimary": "deadbeef"},
		TrackedSet:   map[string]struct{}{},
		CanonicalMap: map[string]string{},
	}
	batch := &indexerclient.EventBatch{
		Reservations: []indexerclient.Reservation{
			{
				Contract: "0xc2", ProviderMLDSA: "0xdeadbeef", BuyerAddress: "bc1quntracked",
				Satoshis: "5000", TokenAmount: "10", TxHash: "tx3", BlockHeight: 7, Status: "consumed",
			},
		},
	}

	events, _ := Match(batch, proj, nil)

	require.Len(t, events, 2)
	var kinds []EventKind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, KindLiquidityReserved)
	assert.Contains(t, kinds, KindProviderConsumed)
}

func TestMatchReservations_BuyerSideViaCanonical(t *testing.T) {
	proj := Projection{
		MLDSAMap:     map[string]string{},
		TrackedSet:   map[string]struct{}{"bc1qlinked": {}},
		CanonicalMap: map[string]string{"bc1qlinked": "buyerPrimary"},
	}
	batch := &indexerclient.EventBatch{
		Reservations: []indexerclient.Reservation{
			{Contract: "0xc3", ProviderMLDSA: "0xnottracked", BuyerAddress: "bc1qlinked",
				Satoshis: "1000", TokenAmount: "2", TxHash: "tx4", BlockHeight: 8, Status: "open"},
		},
	}

	events, _ := Match(batch, proj, nil)

	require.Len(t, events, 1)
	assert.Equal(t, "buyerPrimary", events[0].Address)
	assert.Equal(t, RoleBuyer, events[0].Role)
}

func TestMatchSwaps(t *testing.T) {
	proj := Projection{MLDSAMap: map[string]string{"buyerPrimary": "abc123"}}
	batch := &indexerclient.EventBatch{
		Swaps: []indexerclient.Swap{
			{Contract: "0xc4", Buyer: "0xABC123", BtcSpent: "30000", TokensReceived: "77", TxHash: "tx5", BlockHeight: 9},
		},
	}

	events, _ := Match(batch, proj, nil)

	require.Len(t, events, 1)
	assert.Equal(t, KindSwapExecuted, events[0].Kind)
	assert.Equal(t, "buyerPrimary", events[0].Address)
}

func TestMatchPriceAlerts_ThresholdCrossed(t *testing.T) {
	watches := []*store.TokenWatch{
		{ChatID: 42, Contract: "0xc5", PriceAlertPercent: 5},
	}
	batch := &indexerclient.EventBatch{
		PriceChanges: []indexerclient.PriceChange{
			{Contract: "0xc5", PercentDelta: -8.2, NewPrice: "0.002"},
			{Contract: "0xother", PercentDelta: 50, NewPrice: "1"},
		},
	}

	_, alerts := Match(batch, Projection{}, watches)

	require.Len(t, alerts, 1)
	assert.Equal(t, int64(42), alerts[0].ChatID)
	assert.Equal(t, "0xc5", alerts[0].Contract)
}

func TestMatchPriceAlerts_BelowThresholdSuppressed(t *testing.T) {
	watches := []*store.TokenWatch{
		{ChatID: 42, Contract: "0xc5", PriceAlertPercent: 10},
	}
	batch := &indexerclient.EventBatch{
		PriceChanges: []indexerclient.PriceChange{
			{Contract: "0xc5", PercentDelta: 3, NewPrice: "0.002"},
		},
	}

	_, alerts := Match(batch, Projection{}, watches)

	assert.Empty(t, alerts)
}
