package scanner

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trypto13/jeet-tracker/chainrpc"
	"github.com/trypto13/jeet-tracker/store"
)

func output(index uint32, addr, value string) chainrpc.Output {
	o := chainrpc.Output{Index: index, Value: value}
	o.ScriptPubKey.Address = addr
	return o
}

// scenario 1 from spec §8: an external BTC send (tracked input,
// external output plus tracked change output) produces one btc_sent
// event with a counterparty and one btc_received event for the change.
func TestScanBlock_PureExternalSend(t *testing.T) {
	tracked := "bc1qtrackedprimary"
	proj := Projection{
		TrackedSet:   map[string]struct{}{tracked: {}},
		CanonicalMap: map[string]string{},
		UTXOMap: map[store.OutPoint]store.UTXORef{
			{TxID: "prevtx", Vout: 0}: {Primary: tracked, Value: big.NewInt(500000)},
		},
	}
	block := &chainrpc.Block{
		Height: 100,
		Transactions: []chainrpc.Transaction{
			{
				Hash:   "tx1",
				Inputs: []chainrpc.Input{{OriginalTransactionID: "prevtx", OutputTransactionIndex: 0}},
				Outputs: []chainrpc.Output{
					output(0, "bc1qexternal", "300000"),
					output(1, tracked, "199500"),
				},
			},
		},
	}

	res := ScanBlock(block, proj)

	require.Len(t, res.Events, 2) // btc_sent (spend) + btc_received (change)
	sent := res.Events[0]
	assert.Equal(t, EventBTCSent, sent.Type)
	assert.Equal(t, tracked, sent.Address)
	assert.Equal(t, "bc1qexternal", sent.Counterparty)
	assert.Equal(t, big.NewInt(300000), sent.CounterpartyAmount)
	assert.Equal(t, big.NewInt(500000), sent.Satoshis)
	assert.Equal(t, []store.OutPoint{{TxID: "prevtx", Vout: 0}}, res.SpentUTXOKeys)

	// the tx also has a tracked output (change), so scanInferredSend
	// independently raises a candidate; the orchestrator later drops it
	// via promoteInferredSends since a confirmed btc_sent already
	// covers this tx hash.
	require.Len(t, res.InferredSends, 1)
	assert.Equal(t, big.NewInt(300000), res.InferredSends[0].CounterpartyAmount)
}

// scenario 2 from spec §8: a tracked receive with no tracked input
// address visible (inferred send from the counterparty's perspective)
// should not itself confuse the receiving wallet's own scan — the
// receive is recorded as btc_received, and since the tx has no output
// outside the tracked set, no inferred send is raised for the
// *receiving* address.
func TestScanBlock_ReceiveOnly(t *testing.T) {
	tracked := "bc1qtrackedprimary"
	proj := Projection{
		TrackedSet:   map[string]struct{}{tracked: {}},
		CanonicalMap: map[string]string{},
		UTXOMap:      map[store.OutPoint]store.UTXORef{},
	}
	block := &chainrpc.Block{
		Height: 101,
		Transactions: []chainrpc.Transaction{
			{
				Hash:    "tx2",
				Inputs:  []chainrpc.Input{{OriginalTransactionID: "someoneelse", OutputTransactionIndex: 1}},
				Outputs: []chainrpc.Output{output(0, tracked, "10000")},
			},
		},
	}

	res := ScanBlock(block, proj)

	require.Len(t, res.Events, 1)
	assert.Equal(t, EventBTCReceived, res.Events[0].Type)
	assert.Equal(t, tracked, res.Events[0].Address)
	require.Len(t, res.ReceivedUTXOs, 1)
	assert.Equal(t, tracked, res.ReceivedUTXOs[0].PrimaryAddress)
	// no external output besides the tracked one -> no inferred send
	assert.Empty(t, res.InferredSends)
}

// A tx with both a tracked output (e.g. change) and a non-tracked
// output, but no tracked input visible in this block's UTXO map,
// produces an inferred-send candidate — this is the "inferred send
// without input addresses" scenario from spec §8.
func TestScanBlock_InferredSendCandidate(t *testing.T) {
	tracked := "bc1qtrackedprimary"
	proj := Projection{
		TrackedSet:   map[string]struct{}{tracked: {}},
		CanonicalMap: map[string]string{},
		UTXOMap:      map[store.OutPoint]store.UTXORef{},
	}
	block := &chainrpc.Block{
		Height: 102,
		Transactions: []chainrpc.Transaction{
			{
				Hash: "tx3",
				Inputs: []chainrpc.Input{
					{OriginalTransactionID: "unseenprevtx", OutputTransactionIndex: 0},
				},
				Outputs: []chainrpc.Output{
					output(0, tracked, "1000"),
					output(1, "bc1qexternal", "9000"),
				},
			},
		},
	}

	res := ScanBlock(block, proj)

	require.Len(t, res.InferredSends, 1)
	assert.Equal(t, tracked, res.InferredSends[0].Address)
	assert.Equal(t, "bc1qexternal", res.InferredSends[0].Counterparty)
	assert.Equal(t, big.NewInt(9000), res.InferredSends[0].TotalSent)
}

func TestScanBlock_CanonicalizesReceiveAddress(t *testing.T) {
	linked := "bc1qlinkedform"
	primary := "primary-mldsa-addr"
	proj := Projection{
		TrackedSet:   map[string]struct{}{linked: {}},
		CanonicalMap: map[string]string{linked: primary},
		UTXOMap:      map[store.OutPoint]store.UTXORef{},
	}
	block := &chainrpc.Block{
		Height: 103,
		Transactions: []chainrpc.Transaction{
			{
				Hash:    "tx4",
				Outputs: []chainrpc.Output{output(0, linked, "500")},
			},
		},
	}

	res := ScanBlock(block, proj)

	require.Len(t, res.Events, 1)
	assert.Equal(t, primary, res.Events[0].Address)
	assert.Equal(t, primary, res.ReceivedUTXOs[0].PrimaryAddress)
}
