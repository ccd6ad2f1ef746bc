// Package utxo implements Component C: maintains the per-wallet UTXO
// set backing the scanner's spend-detection pass (spec §4.1, §4.3).
package utxo

import (
	"context"
	"math/big"

	goerrors "github.com/go-errors/errors"

	"github.com/trypto13/jeet-tracker/chainrpc"
	"github.com/trypto13/jeet-tracker/log"
	"github.com/trypto13/jeet-tracker/store"
)

var utxoLog = log.NewSubsystemLogger(log.SubsystemUTXO)

// Tracker seeds and maintains the Store's UTXO set.
type Tracker struct {
	rpc chainrpc.Client
	st  *store.Store
}

// New builds a Tracker.
func New(rpc chainrpc.Client, st *store.Store) *Tracker {
	return &Tracker{rpc: rpc, st: st}
}

// SeedIfNeeded fetches the current UTXO set for primary (and every
// linked address form, including the csv1 form when present) from RPC
// and unions it into the Store, the first time this primary is seen
// (spec §4.3: "seeding is a one-time catch-up, not reseeding every
// tick"). A primary with no linkage yet is skipped; the caller retries
// once Resolve succeeds.
func (t *Tracker) SeedIfNeeded(ctx context.Context, primary string, linkage *store.Linkage) error {
	if t.st.IsPrimarySeeded(primary) {
		return nil
	}
	if linkage == nil {
		return nil
	}

	forms := append([]string{primary}, linkage.Addresses()...)
	seen := make(map[string]bool, len(forms))

	var received []store.StoredUTXO
	for _, addr := range forms {
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		isCSV := addr == linkage.CSV1 && addr != ""
		utxos, err := t.rpc.GetUTXOs(ctx, addr, isCSV, true)
		if err != nil {
			return goerrors.Errorf("utxo: seed %s (via %s): %w", primary, addr, err)
		}
		for _, u := range utxos {
			val, ok := new(big.Int).SetString(u.Value, 10)
			if !ok {
				utxoLog.Warnf("seed %s: malformed utxo value %q for %s:%d, skipping", primary, u.Value, u.TxID, u.Vout)
				continue
			}
			received = append(received, store.StoredUTXO{
				TxID:           u.TxID,
				Vout:           u.Vout,
				Value:          val,
				PrimaryAddress: primary,
			})
		}
	}

	if err := t.st.ApplyUTXODelta(ctx, received, nil); err != nil {
		return goerrors.Errorf("utxo: seed %s: apply delta: %w", primary, err)
	}
	t.st.MarkPrimarySeeded(primary)
	utxoLog.Infof("seeded %s: %d utxos across %d address forms", primary, len(received), len(seen))
	return nil
}

// ApplyDelta pushes a steady-state delta discovered by the scanner
// (received outputs, spent outpoints) for one tick into the Store.
func (t *Tracker) ApplyDelta(ctx context.Context, received []store.StoredUTXO, spent []store.OutPoint) error {
	if len(received) == 0 && len(spent) == 0 {
		return nil
	}
	return t.st.ApplyUTXODelta(ctx, received, spent)
}
