// Package pipeline implements Component F: the per-tick driver that
// ties the Store, Identity Resolver, UTXO Tracker, BTC Block Scanner,
// and Indexer Matcher together, performs cross-source deduplication
// and suppression, and hands surviving events to the Notifier (spec
// §4.6).
//
// The subsystem lifecycle (started/stopped guards, wg, quit channel)
// is the teacher's breachArbiter/server pattern, generalized from a
// breach-retribution watcher to a polling tick loop.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/trypto13/jeet-tracker/chainrpc"
	"github.com/trypto13/jeet-tracker/identity"
	"github.com/trypto13/jeet-tracker/indexerclient"
	"github.com/trypto13/jeet-tracker/log"
	"github.com/trypto13/jeet-tracker/matcher"
	"github.com/trypto13/jeet-tracker/metrics"
	"github.com/trypto13/jeet-tracker/notifier"
	"github.com/trypto13/jeet-tracker/scanner"
	"github.com/trypto13/jeet-tracker/store"
	"github.com/trypto13/jeet-tracker/utxo"
)

var pipeLog = log.NewSubsystemLogger(log.SubsystemPipeline)

// Config holds the tunables the orchestrator needs beyond its
// collaborators.
type Config struct {
	PollInterval   time.Duration
	BlockBatchSize int
	SessionLRUCap  int
}

// Orchestrator drives the tick loop.
type Orchestrator struct {
	cfg Config

	st       *store.Store
	rpc      chainrpc.Client
	indexer  indexerclient.Client
	resolver *identity.Resolver
	tracker  *utxo.Tracker
	notify   *notifier.Notifier

	seenTxHashes *lru.Cache[string, struct{}]

	started uint32
	stopped uint32
	quit    chan struct{}
	wg      sync.WaitGroup
}

// New builds an Orchestrator.
func New(cfg Config, st *store.Store, rpc chainrpc.Client, indexer indexerclient.Client,
	resolver *identity.Resolver, tracker *utxo.Tracker, notify *notifier.Notifier) (*Orchestrator, error) {

	lruCap := cfg.SessionLRUCap
	if lruCap <= 0 {
		lruCap = 1000
	}
	cache, err := lru.New[string, struct{}](lruCap)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg: cfg, st: st, rpc: rpc, indexer: indexer,
		resolver: resolver, tracker: tracker, notify: notify,
		seenTxHashes: cache,
		quit:         make(chan struct{}),
	}, nil
}

// Start begins the tick loop in a background goroutine.
func (o *Orchestrator) Start() error {
	if !atomic.CompareAndSwapUint32(&o.started, 0, 1) {
		return nil
	}
	pipeLog.Infof("starting pipeline orchestrator, poll interval %s", o.cfg.PollInterval)

	o.wg.Add(1)
	go o.tickLoop()
	return nil
}

// Stop signals the tick loop to exit at the next tick boundary and
// waits for it to finish. An in-flight tick completes opportunistically.
func (o *Orchestrator) Stop() error {
	if !atomic.CompareAndSwapUint32(&o.stopped, 0, 1) {
		return nil
	}
	pipeLog.Infof("stopping pipeline orchestrator")
	close(o.quit)
	o.wg.Wait()
	return nil
}

func (o *Orchestrator) tickLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.quit:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), o.cfg.PollInterval)
			if err := o.tick(ctx); err != nil {
				metrics.TicksTotal.WithLabelValues("error").Inc()
				pipeLog.Errorf("tick aborted: %v", err)
			} else {
				metrics.TicksTotal.WithLabelValues("ok").Inc()
			}
			cancel()
		}
	}
}

// tick runs exactly one iteration of the protocol in spec §4.6.
func (o *Orchestrator) tick(ctx context.Context) error {
	cursor := o.st.Cursor()

	batch, err := o.indexer.Events(ctx, max64(1, cursor+1), 0)
	if err != nil {
		return err
	}
	target := batch.LastIndexedBlock
	if cursor >= target {
		return nil
	}

	if err := o.resolveAndSeed(ctx); err != nil {
		return err
	}

	trackedSet, mldsaMap, canonicalMap := o.st.IdentityProjection()

	semanticEvents, priceAlerts := matcher.Match(batch, matcher.Projection{
		MLDSAMap:     mldsaMap,
		TrackedSet:   trackedSet,
		CanonicalMap: canonicalMap,
	}, o.st.ListTokenWatches())

	o.recordSeenContracts(ctx, semanticEvents)

	btcEvents, inferredSends, err := o.scanBlockRange(ctx, cursor+1, target, trackedSet, canonicalMap)
	if err != nil {
		return err
	}

	btcEvents = promoteInferredSends(btcEvents, inferredSends)

	btcEvents, semanticEvents = dedupeCrossSource(btcEvents, semanticEvents)

	suppressed := buildSuppressionSet(semanticEvents)
	preSuppression := len(btcEvents)
	btcEvents = filterSuppressed(btcEvents, suppressed)
	metrics.EventsSuppressed.Add(float64(preSuppression - len(btcEvents)))

	btcEvents = o.filterSessionSeen(btcEvents)
	semanticEvents = o.filterSessionSeenSemantic(semanticEvents)

	groups := notifier.BuildGroups(btcEvents, semanticEvents)
	metrics.EventsDispatched.Add(float64(len(groups)))
	o.notify.Dispatch(ctx, groups)
	for _, alert := range priceAlerts {
		metrics.PriceAlertsDispatched.Inc()
		o.notify.DispatchPriceAlert(ctx, alert)
	}

	if err := o.st.AdvanceCursor(ctx, target); err != nil {
		return err
	}
	metrics.CursorHeight.Set(float64(target))
	return nil
}

// resolveAndSeed runs step 2: resolve identity for any unresolved
// primary, then seed the UTXO set for every linked primary not yet
// seeded (covers both newly-resolved primaries and ones resolved in a
// prior tick whose seeding was interrupted).
func (o *Orchestrator) resolveAndSeed(ctx context.Context) error {
	for _, primary := range o.st.UnresolvedPrimaries() {
		linkage, err := o.resolver.Resolve(ctx, primary)
		if err != nil {
			return err
		}
		if linkage == nil {
			metrics.IdentityResolutionSkipped.WithLabelValues("no_derivation").Inc()
			continue
		}
		for _, sub := range o.st.SubscriptionsForPrimary(primary) {
			if err := o.st.UpdateLinkage(ctx, sub.ID, *linkage); err != nil {
				if err == store.ErrDuplicateSubscription {
					metrics.IdentityResolutionSkipped.WithLabelValues("duplicate_subscription").Inc()
					pipeLog.Warnf("linkage for %s collides with an existing subscription in chat %d, skipping", primary, sub.ChatID)
					continue
				}
				return err
			}
		}
	}

	for primary, linkage := range o.linkedPrimaries() {
		if err := o.tracker.SeedIfNeeded(ctx, primary, linkage); err != nil {
			return err
		}
	}
	return nil
}

// linkedPrimaries returns every tracked primary that has a resolved
// Linkage, for the seeding pass.
func (o *Orchestrator) linkedPrimaries() map[string]*store.Linkage {
	out := make(map[string]*store.Linkage)
	for _, primary := range o.allPrimaries() {
		subs := o.st.SubscriptionsForPrimary(primary)
		if len(subs) == 0 || subs[0].Linkage == nil {
			continue
		}
		out[primary] = subs[0].Linkage
	}
	return out
}

// allPrimaries returns every distinct tracked primary address.
func (o *Orchestrator) allPrimaries() []string {
	trackedSet, mldsaMap, _ := o.st.IdentityProjection()
	seen := make(map[string]bool)
	var out []string
	for primary := range mldsaMap {
		if !seen[primary] {
			seen[primary] = true
			out = append(out, primary)
		}
	}
	for addr := range trackedSet {
		// trackedSet also contains alias addresses; SubscriptionsForPrimary
		// only matches true primaries, so non-primaries simply yield none.
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}

// recordSeenContracts updates the per-primary seen-contract set for
// every token-transfer event (spec §4.5 "token-transfer events also
// update the per-primary seen-contract set").
func (o *Orchestrator) recordSeenContracts(ctx context.Context, events []matcher.Event) {
	for _, e := range events {
		if e.Kind != matcher.KindToken && e.Kind != matcher.KindNFTTransfer {
			continue
		}
		if err := o.st.AddSeenContract(ctx, e.Address, e.Contract, e.Kind == matcher.KindNFTTransfer); err != nil {
			pipeLog.Warnf("record seen contract %s for %s: %v", e.Contract, e.Address, err)
		}
	}
}

// scanBlockRange runs step 4: scans heights [from, to] in chunks of
// BlockBatchSize, applying each block's UTXO delta before the next
// block's spend pass so same-chunk spend-of-received is detected.
func (o *Orchestrator) scanBlockRange(ctx context.Context, from, to int64, trackedSet map[string]struct{}, canonicalMap map[string]string) ([]scanner.Event, []scanner.InferredSend, error) {
	var allEvents []scanner.Event
	var allInferred []scanner.InferredSend

	batchSize := int64(o.cfg.BlockBatchSize)
	if batchSize <= 0 {
		batchSize = 10
	}

	for chunkStart := from; chunkStart <= to; chunkStart += batchSize {
		chunkEnd := chunkStart + batchSize - 1
		if chunkEnd > to {
			chunkEnd = to
		}

		blocks, err := o.fetchBlocks(ctx, chunkStart, chunkEnd)
		if err != nil {
			return nil, nil, err
		}

		for h := chunkStart; h <= chunkEnd; h++ {
			block := blocks[h]
			if block == nil {
				continue
			}
			res := scanner.ScanBlock(block, scanner.Projection{
				TrackedSet: trackedSet, CanonicalMap: canonicalMap, UTXOMap: o.st.UTXOMap(),
			})
			allEvents = append(allEvents, res.Events...)
			allInferred = append(allInferred, res.InferredSends...)

			if err := o.tracker.ApplyDelta(ctx, res.ReceivedUTXOs, res.SpentUTXOKeys); err != nil {
				return nil, nil, err
			}
		}
	}

	return allEvents, allInferred, nil
}

// fetchBlocks fans out GetBlock calls across [from, to] bounded by
// the configured chunk size (spec §5 "structured fan-out bounded by
// block-batch size").
func (o *Orchestrator) fetchBlocks(ctx context.Context, from, to int64) (map[int64]*chainrpc.Block, error) {
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	blocks := make(map[int64]*chainrpc.Block)

	for h := from; h <= to; h++ {
		height := h
		g.Go(func() error {
			block, err := o.rpc.GetBlock(gctx, height, true)
			if err != nil {
				return err
			}
			mu.Lock()
			blocks[height] = block
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return blocks, nil
}

// promoteInferredSends runs step 5: any InferredSend whose tx hash has
// no confirmed btc_sent is promoted into one.
func promoteInferredSends(events []scanner.Event, inferred []scanner.InferredSend) []scanner.Event {
	confirmed := make(map[string]bool, len(events))
	for _, e := range events {
		if e.Type == scanner.EventBTCSent {
			confirmed[e.TxHash] = true
		}
	}
	for _, is := range inferred {
		if confirmed[is.TxHash] {
			continue
		}
		events = append(events, scanner.Event{
			Type:               scanner.EventBTCSent,
			Address:            is.Address,
			TxHash:             is.TxHash,
			BlockHeight:        is.BlockHeight,
			Satoshis:           is.TotalSent,
			Counterparty:       is.Counterparty,
			CounterpartyAmount: is.CounterpartyAmount,
		})
	}
	return events
}

type dedupKey struct {
	kind      string
	txHash    string
	address   string
	contract  string
	direction string
}

// dedupeCrossSource runs step 6: drops duplicates keyed by
// (type, txHash, address, contract, direction).
func dedupeCrossSource(btc []scanner.Event, semantic []matcher.Event) ([]scanner.Event, []matcher.Event) {
	seen := make(map[dedupKey]bool)

	outBTC := btc[:0:0]
	for _, e := range btc {
		k := dedupKey{kind: string(e.Type), txHash: e.TxHash, address: e.Address}
		if seen[k] {
			continue
		}
		seen[k] = true
		outBTC = append(outBTC, e)
	}

	outSemantic := semantic[:0:0]
	for _, e := range semantic {
		k := dedupKey{
			kind: string(e.Kind), txHash: e.TxHash, address: e.Address,
			contract: e.Contract, direction: string(e.Direction),
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		outSemantic = append(outSemantic, e)
	}

	return outBTC, outSemantic
}

type suppressKey struct {
	address string
	block   int64
}

// buildSuppressionSet runs step 7: a swap, reservation, pool, or
// staking event — or a token in+out pair at the same (address,block)
// — suppresses BTC events at that (address,block).
func buildSuppressionSet(semantic []matcher.Event) map[suppressKey]bool {
	suppressed := make(map[suppressKey]bool)
	tokenIn := make(map[suppressKey]bool)
	tokenOut := make(map[suppressKey]bool)

	for _, e := range semantic {
		k := suppressKey{address: e.Address, block: e.BlockHeight}
		switch e.Kind {
		case matcher.KindSwapExecuted, matcher.KindLiquidityReserved, matcher.KindProviderConsumed,
			matcher.KindLiquidityAdded, matcher.KindLiquidityRemoved,
			matcher.KindStaked, matcher.KindUnstaked, matcher.KindRewardsClaimed:
			suppressed[k] = true
		case matcher.KindToken, matcher.KindNFTTransfer:
			if e.Direction == matcher.DirectionIn {
				tokenIn[k] = true
			} else {
				tokenOut[k] = true
			}
		}
	}
	for k := range tokenIn {
		if tokenOut[k] {
			suppressed[k] = true
		}
	}
	return suppressed
}

func filterSuppressed(events []scanner.Event, suppressed map[suppressKey]bool) []scanner.Event {
	out := events[:0:0]
	for _, e := range events {
		if suppressed[suppressKey{address: e.Address, block: e.BlockHeight}] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// filterSessionSeen runs step 8 for BTC events.
func (o *Orchestrator) filterSessionSeen(events []scanner.Event) []scanner.Event {
	out := events[:0:0]
	for _, e := range events {
		key := string(e.Type) + "|" + e.TxHash + "|" + e.Address
		if _, seen := o.seenTxHashes.Get(key); seen {
			continue
		}
		o.seenTxHashes.Add(key, struct{}{})
		out = append(out, e)
	}
	return out
}

func (o *Orchestrator) filterSessionSeenSemantic(events []matcher.Event) []matcher.Event {
	out := events[:0:0]
	for _, e := range events {
		key := string(e.Kind) + "|" + e.TxHash + "|" + e.Address + "|" + string(e.Direction)
		if _, seen := o.seenTxHashes.Get(key); seen {
			continue
		}
		o.seenTxHashes.Add(key, struct{}{})
		out = append(out, e)
	}
	return out
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
