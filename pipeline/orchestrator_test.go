package pipeline

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trypto13/jeet-tracker/matcher"
	"github.com/trypto13/jeet-tracker/scanner"
)

func TestPromoteInferredSends_PromotesWhenNoConfirmedSend(t *testing.T) {
	inferred := []scanner.InferredSend{
		{Address: "addr1", TxHash: "tx1", BlockHeight: 1, TotalSent: big.NewInt(900), Counterparty: "bc1qext"},
	}

	out := promoteInferredSends(nil, inferred)

	require.Len(t, out, 1)
	assert.Equal(t, scanner.EventBTCSent, out[0].Type)
	assert.Equal(t, "addr1", out[0].Address)
}

func TestPromoteInferredSends_SkippedWhenAlreadyConfirmed(t *testing.T) {
	confirmed := []scanner.Event{
		{Type: scanner.EventBTCSent, Address: "addr1", TxHash: "tx1"},
	}
	inferred := []scanner.InferredSend{
		{Address: "addr1", TxHash: "tx1", BlockHeight: 1, TotalSent: big.NewInt(900)},
	}

	out := promoteInferredSends(confirmed, inferred)

	assert.Len(t, out, 1)
}

// cross-format duplicate prevention scenario from spec §8: the same
// (type, txHash, address) pair appearing twice collapses to one.
func TestDedupeCrossSource_DropsDuplicateBTCEvents(t *testing.T) {
	btc := []scanner.Event{
		{Type: scanner.EventBTCSent, Address: "addr1", TxHash: "tx1"},
		{Type: scanner.EventBTCSent, Address: "addr1", TxHash: "tx1"},
	}

	outBTC, _ := dedupeCrossSource(btc, nil)

	assert.Len(t, outBTC, 1)
}

func TestDedupeCrossSource_DropsDuplicateSemanticEventsByFullKey(t *testing.T) {
	semantic := []matcher.Event{
		{Kind: matcher.KindToken, Address: "addr1", TxHash: "tx1", Contract: "0xc1", Direction: matcher.DirectionIn},
		{Kind: matcher.KindToken, Address: "addr1", TxHash: "tx1", Contract: "0xc1", Direction: matcher.DirectionIn},
		{Kind: matcher.KindToken, Address: "addr1", TxHash: "tx1", Contract: "0xc1", Direction: matcher.DirectionOut},
	}

	_, outSemantic := dedupeCrossSource(nil, semantic)

	assert.Len(t, outSemantic, 2)
}

// swap-executed suppression scenario from spec §8: a BTC send at the
// same (address, block) as a swap is suppressed, since the swap
// already explains the satoshi movement.
func TestBuildSuppressionSet_SwapSuppressesBTCAtSameAddressBlock(t *testing.T) {
	semantic := []matcher.Event{
		{Kind: matcher.KindSwapExecuted, Address: "addr1", BlockHeight: 10},
	}
	suppressed := buildSuppressionSet(semantic)

	btc := []scanner.Event{
		{Type: scanner.EventBTCSent, Address: "addr1", BlockHeight: 10},
		{Type: scanner.EventBTCSent, Address: "addr1", BlockHeight: 11},
	}
	out := filterSuppressed(btc, suppressed)

	require.Len(t, out, 1)
	assert.Equal(t, int64(11), out[0].BlockHeight)
}

func TestBuildSuppressionSet_TokenInAndOutTogetherSuppress(t *testing.T) {
	semantic := []matcher.Event{
		{Kind: matcher.KindToken, Address: "addr1", BlockHeight: 5, Direction: matcher.DirectionIn},
		{Kind: matcher.KindToken, Address: "addr1", BlockHeight: 5, Direction: matcher.DirectionOut},
	}
	suppressed := buildSuppressionSet(semantic)

	assert.True(t, suppressed[suppressKey{address: "addr1", block: 5}])
}

func TestBuildSuppressionSet_TokenOnlyOneDirectionDoesNotSuppress(t *testing.T) {
	semantic := []matcher.Event{
		{Kind: matcher.KindToken, Address: "addr1", BlockHeight: 5, Direction: matcher.DirectionIn},
	}
	suppressed := buildSuppressionSet(semantic)

	assert.False(t, suppressed[suppressKey{address: "addr1", block: 5}])
}

// session dedup scenario from spec §8: once an event is delivered
// within a session, the identical event on a later tick is dropped by
// the LRU, even though nothing upstream deduped it.
func TestOrchestrator_FilterSessionSeen_DropsRepeatWithinSession(t *testing.T) {
	o, err := New(Config{SessionLRUCap: 10}, nil, nil, nil, nil, nil, nil)
	require.NoError(t, err)

	events := []scanner.Event{
		{Type: scanner.EventBTCSent, Address: "addr1", TxHash: "tx1"},
	}

	first := o.filterSessionSeen(events)
	second := o.filterSessionSeen(events)

	assert.Len(t, first, 1)
	assert.Empty(t, second)
}

func TestOrchestrator_FilterSessionSeenSemantic_DropsRepeatWithinSession(t *testing.T) {
	o, err := New(Config{SessionLRUCap: 10}, nil, nil, nil, nil, nil, nil)
	require.NoError(t, err)

	events := []matcher.Event{
		{Kind: matcher.KindToken, Address: "addr1", TxHash: "tx1", Direction: matcher.DirectionIn},
	}

	first := o.filterSessionSeenSemantic(events)
	second := o.filterSessionSeenSemantic(events)

	assert.Len(t, first, 1)
	assert.Empty(t, second)
}

func TestMax64(t *testing.T) {
	assert.Equal(t, int64(5), max64(5, 3))
	assert.Equal(t, int64(5), max64(3, 5))
}
