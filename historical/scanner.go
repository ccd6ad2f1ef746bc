// Package historical implements Component H: a one-shot background
// backfill run once per newly tracked wallet, seeding the seen-contract
// set from the indexer's historical transfer log so the steady-state
// pipeline doesn't have to rediscover every contract a wallet has ever
// touched.
package historical

import (
	"context"

	"github.com/trypto13/jeet-tracker/indexerclient"
	"github.com/trypto13/jeet-tracker/log"
	"github.com/trypto13/jeet-tracker/store"
)

var histLog = log.NewSubsystemLogger(log.SubsystemHistorical)

const pageSize = 200

// Scanner backfills seen-contracts for newly tracked wallets.
type Scanner struct {
	indexer indexerclient.Client
	st      *store.Store
}

// New builds a Scanner.
func New(indexer indexerclient.Client, st *store.Store) *Scanner {
	return &Scanner{indexer: indexer, st: st}
}

// BackfillAsync launches the backfill for one subscription in its own
// goroutine; failures are logged, never surfaced to the triggering
// command (spec §7: the orchestrator's error-handling taxonomy treats
// background backfill like any other transient-I/O consumer).
func (s *Scanner) BackfillAsync(mldsaHash, primary string) {
	go func() {
		if err := s.backfill(context.Background(), mldsaHash, primary); err != nil {
			histLog.Warnf("backfill %s: %v", primary, err)
		}
	}()
}

func (s *Scanner) backfill(ctx context.Context, mldsaHash, primary string) error {
	skip := 0
	total := 0
	for {
		transfers, err := s.indexer.Transfers(ctx, mldsaHash, pageSize, skip)
		if err != nil {
			return err
		}
		if len(transfers) == 0 {
			break
		}
		for _, t := range transfers {
			if err := s.st.AddSeenContract(ctx, primary, t.Contract, t.IsNFT); err != nil {
				histLog.Warnf("backfill %s: add seen contract %s: %v", primary, t.Contract, err)
				continue
			}
			total++
		}
		if len(transfers) < pageSize {
			break
		}
		skip += pageSize
	}
	histLog.Infof("backfill %s complete: %d contracts recorded", primary, total)
	return nil
}
