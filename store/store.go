// Package store implements Component A: durable state for
// subscriptions, identity linkages, the UTXO set, the scan cursor,
// chat authorization, paid subscriptions, token-watch subscriptions,
// and per-wallet seen-contract sets.
//
// Modeled on channeldb.DB's Open/Close lifecycle (teacher repo): a
// single handle wraps the durable backend, and every read during a
// tick is served from an in-memory cache hydrated at Open and kept
// coherent by write-through on every mutation. Unlike channeldb's
// embedded bolt file, the durable backend here is MongoDB (the spec
// requires a document store reachable via MONGODB_URI) — see
// DESIGN.md for why the driver swap was necessary.
package store

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	goerrors "github.com/go-errors/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trypto13/jeet-tracker/log"
)

var storeLog = log.NewSubsystemLogger(log.SubsystemStore)

const (
	collSubscriptions = "subscriptions"
	collUTXOs         = "utxos"
	collAuthorized    = "authorized_chats"
	collAccessCodes   = "access_codes"
	collPaidSubs      = "paid_subscriptions"
	collTokenWatches  = "token_watches"
	collState         = "state"
	collSeenContracts = "seen_contracts"
)

// ErrDuplicateSubscription is returned when a chat attempts to track
// an address (or the identity it resolves to) it already tracks.
var ErrDuplicateSubscription = goerrors.New("store: duplicate subscription")

// ErrNotFound is returned when a lookup by id/key misses.
var ErrNotFound = goerrors.New("store: not found")

// ErrLimitExceeded is returned when a chat would exceed its
// configured per-chat subscription limit.
var ErrLimitExceeded = goerrors.New("store: subscription limit exceeded")

// seenContractDoc is the durable shape of one primary's seen-contract
// set, with a parallel bool flag for which contracts are NFTs.
type seenContractDoc struct {
	Primary   string          `bson:"_id"`
	Contracts map[string]bool `bson:"contracts"` // contract -> isNFT
}

// Store is the single shared mutable structure read by the
// orchestrator and command handlers. All reads are synchronous
// against the in-memory cache; all writes mutate the cache first
// (fast, under lock) and then fan out to Mongo (slow, outside the
// lock) so that concurrent readers are never blocked on network I/O.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	mu sync.RWMutex

	subsByID     map[string]*Subscription
	subsByChatAddr map[string]string // "chatId:address" -> subId
	utxoMap      map[OutPoint]UTXORef
	utxosByPrimary map[string]map[OutPoint]struct{}
	cursor       int64
	authorized   map[int64]AuthorizedChat
	paidSubs     map[int64]PaidSubscription
	accessCodes  map[string]AccessCode
	tokenWatches map[string]*TokenWatch
	seenContracts map[string]map[string]bool // primary -> contract -> isNFT
	seededCache  map[string]struct{}
}

// Open connects to Mongo and hydrates the in-memory cache from every
// collection, establishing the indexes required by spec §4.1.
func Open(ctx context.Context, uri string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, goerrors.Errorf("store: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, goerrors.Errorf("store: ping: %w", err)
	}

	s := &Store{
		client:         client,
		db:             client.Database("walletwatch"),
		subsByID:       make(map[string]*Subscription),
		subsByChatAddr: make(map[string]string),
		utxoMap:        make(map[OutPoint]UTXORef),
		utxosByPrimary: make(map[string]map[OutPoint]struct{}),
		authorized:     make(map[int64]AuthorizedChat),
		paidSubs:       make(map[int64]PaidSubscription),
		accessCodes:    make(map[string]AccessCode),
		tokenWatches:   make(map[string]*TokenWatch),
		seenContracts:  make(map[string]map[string]bool),
		seededCache:    make(map[string]struct{}),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	if err := s.hydrate(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	storeLog.Infof("hydrated store: %d subscriptions, %d utxos, cursor=%d",
		len(s.subsByID), len(s.utxoMap), s.cursor)
	return s, nil
}

// Close disconnects from the backing store.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	subs := s.db.Collection(collSubscriptions)
	_, err := subs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "primaryAddress", Value: 1}},
			Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return goerrors.Errorf("store: subscription indexes: %w", err)
	}

	utxos := s.db.Collection(collUTXOs)
	_, err = utxos.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "txid", Value: 1}, {Key: "vout", Value: 1}},
			Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "primaryAddress", Value: 1}}},
	})
	if err != nil {
		return goerrors.Errorf("store: utxo indexes: %w", err)
	}

	codes := s.db.Collection(collAccessCodes)
	_, err = codes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "fundingTxHash", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true)},
	})
	if err != nil {
		return goerrors.Errorf("store: access code indexes: %w", err)
	}

	watches := s.db.Collection(collTokenWatches)
	_, err = watches.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "contract", Value: 1}},
			Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return goerrors.Errorf("store: token watch indexes: %w", err)
	}

	return nil
}

func (s *Store) hydrate(ctx context.Context) error {
	subCur, err := s.db.Collection(collSubscriptions).Find(ctx, bson.D{})
	if err != nil {
		return goerrors.Errorf("store: hydrate subscriptions: %w", err)
	}
	defer subCur.Close(ctx)
	for subCur.Next(ctx) {
		var sub Subscription
		if err := subCur.Decode(&sub); err != nil {
			return goerrors.Errorf("store: decode subscription: %w", err)
		}
		s.subsByID[sub.ID] = &sub
		s.subsByChatAddr[chatAddrKey(sub.ChatID, sub.PrimaryAddress)] = sub.ID
	}

	utxoCur, err := s.db.Collection(collUTXOs).Find(ctx, bson.D{})
	if err != nil {
		return goerrors.Errorf("store: hydrate utxos: %w", err)
	}
	defer utxoCur.Close(ctx)
	for utxoCur.Next(ctx) {
		var u StoredUTXO
		if err := utxoCur.Decode(&u); err != nil {
			return goerrors.Errorf("store: decode utxo: %w", err)
		}
		v, ok := new(big.Int).SetString(u.ValueStr, 10)
		if !ok {
			continue
		}
		op := OutPoint{TxID: u.TxID, Vout: u.Vout}
		s.utxoMap[op] = UTXORef{Primary: u.PrimaryAddress, Value: v}
		s.indexUTXOByPrimary(op, u.PrimaryAddress)
	}

	var stateDoc struct {
		Key   string `bson:"_id"`
		Value int64  `bson:"value"`
	}
	if err := s.db.Collection(collState).FindOne(ctx, bson.M{"_id": ScanCursorKey}).Decode(&stateDoc); err == nil {
		s.cursor = stateDoc.Value
	} else if err != mongo.ErrNoDocuments {
		return goerrors.Errorf("store: hydrate cursor: %w", err)
	}

	authCur, err := s.db.Collection(collAuthorized).Find(ctx, bson.D{})
	if err != nil {
		return goerrors.Errorf("store: hydrate authorized chats: %w", err)
	}
	defer authCur.Close(ctx)
	for authCur.Next(ctx) {
		var a AuthorizedChat
		if err := authCur.Decode(&a); err != nil {
			return goerrors.Errorf("store: decode authorized chat: %w", err)
		}
		s.authorized[a.ChatID] = a
	}

	paidCur, err := s.db.Collection(collPaidSubs).Find(ctx, bson.D{})
	if err != nil {
		return goerrors.Errorf("store: hydrate paid subscriptions: %w", err)
	}
	defer paidCur.Close(ctx)
	for paidCur.Next(ctx) {
		var p PaidSubscription
		if err := paidCur.Decode(&p); err != nil {
			return goerrors.Errorf("store: decode paid subscription: %w", err)
		}
		s.paidSubs[p.ChatID] = p
	}

	codeCur, err := s.db.Collection(collAccessCodes).Find(ctx, bson.D{})
	if err != nil {
		return goerrors.Errorf("store: hydrate access codes: %w", err)
	}
	defer codeCur.Close(ctx)
	for codeCur.Next(ctx) {
		var c AccessCode
		if err := codeCur.Decode(&c); err != nil {
			return goerrors.Errorf("store: decode access code: %w", err)
		}
		s.accessCodes[c.Code] = c
	}

	watchCur, err := s.db.Collection(collTokenWatches).Find(ctx, bson.D{})
	if err != nil {
		return goerrors.Errorf("store: hydrate token watches: %w", err)
	}
	defer watchCur.Close(ctx)
	for watchCur.Next(ctx) {
		var w TokenWatch
		if err := watchCur.Decode(&w); err != nil {
			return goerrors.Errorf("store: decode token watch: %w", err)
		}
		wCopy := w
		s.tokenWatches[w.ID] = &wCopy
	}

	seenCur, err := s.db.Collection(collSeenContracts).Find(ctx, bson.D{})
	if err != nil {
		return goerrors.Errorf("store: hydrate seen contracts: %w", err)
	}
	defer seenCur.Close(ctx)
	for seenCur.Next(ctx) {
		var d seenContractDoc
		if err := seenCur.Decode(&d); err != nil {
			return goerrors.Errorf("store: decode seen contracts: %w", err)
		}
		s.seenContracts[d.Primary] = d.Contracts
	}

	return nil
}

func (s *Store) indexUTXOByPrimary(op OutPoint, primary string) {
	set, ok := s.utxosByPrimary[primary]
	if !ok {
		set = make(map[OutPoint]struct{})
		s.utxosByPrimary[primary] = set
	}
	set[op] = struct{}{}
}

func chatAddrKey(chatID int64, addr string) string {
	return fmt.Sprintf("%d:%s", chatID, addr)
}

// --- Subscriptions ---------------------------------------------------

// CreateSubscription enforces the per-chat limit, the (chatId,address)
// uniqueness invariant, and writes through to Mongo.
func (s *Store) CreateSubscription(ctx context.Context, sub *Subscription, maxPerChat int) error {
	s.mu.Lock()
	if _, exists := s.subsByChatAddr[chatAddrKey(sub.ChatID, sub.PrimaryAddress)]; exists {
		s.mu.Unlock()
		return ErrDuplicateSubscription
	}
	count := 0
	for _, existing := range s.subsByID {
		if existing.ChatID == sub.ChatID {
			count++
		}
	}
	if count >= maxPerChat {
		s.mu.Unlock()
		return ErrLimitExceeded
	}
	cp := *sub
	s.subsByID[sub.ID] = &cp
	s.subsByChatAddr[chatAddrKey(sub.ChatID, sub.PrimaryAddress)] = sub.ID
	s.mu.Unlock()

	_, err := s.db.Collection(collSubscriptions).InsertOne(ctx, sub)
	if err != nil {
		s.mu.Lock()
		delete(s.subsByID, sub.ID)
		delete(s.subsByChatAddr, chatAddrKey(sub.ChatID, sub.PrimaryAddress))
		s.mu.Unlock()
		return goerrors.Errorf("store: insert subscription: %w", err)
	}
	return nil
}

// GetSubscription returns a copy of the subscription by id.
func (s *Store) GetSubscription(id string) (*Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subsByID[id]
	if !ok {
		return nil, false
	}
	cp := *sub
	return &cp, true
}

// ListSubscriptionsByChat returns every subscription owned by a chat.
func (s *Store) ListSubscriptionsByChat(chatID int64) []*Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Subscription
	for _, sub := range s.subsByID {
		if sub.ChatID == chatID {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out
}

// FindSubscriptionByMLDSAHash scans for a subscription whose linkage
// carries the given hash, per spec §4.1 ("used rarely (track
// command)"): O(N) over the cache is acceptable.
func (s *Store) FindSubscriptionByMLDSAHash(hash string) (*Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subsByID {
		if sub.Linkage != nil && strings.EqualFold(sub.Linkage.MLDSAHash, hash) {
			cp := *sub
			return &cp, true
		}
	}
	return nil, false
}

// ChatsTrackingAddress returns every chat id currently tracking addr,
// matched against primary address or any linked alias.
func (s *Store) ChatsTrackingAddress(addr string) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int64
	for _, sub := range s.subsByID {
		if sub.PrimaryAddress == addr {
			out = append(out, sub.ChatID)
			continue
		}
		if sub.Linkage != nil {
			for _, a := range sub.Linkage.Addresses() {
				if a == addr {
					out = append(out, sub.ChatID)
					break
				}
			}
		}
	}
	return out
}

// DeleteSubscription removes a subscription from the cache and from
// Mongo. The stored UTXOs of its primary address are not removed.
func (s *Store) DeleteSubscription(ctx context.Context, id string) error {
	s.mu.Lock()
	sub, ok := s.subsByID[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.subsByID, id)
	delete(s.subsByChatAddr, chatAddrKey(sub.ChatID, sub.PrimaryAddress))
	s.mu.Unlock()

	_, err := s.db.Collection(collSubscriptions).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return goerrors.Errorf("store: delete subscription: %w", err)
	}
	return nil
}

// UpdateLinkage attaches (or replaces) a subscription's identity
// linkage, enforcing the one-linkage-per-hash-per-chat invariant.
func (s *Store) UpdateLinkage(ctx context.Context, subID string, linkage Linkage) error {
	s.mu.Lock()
	sub, ok := s.subsByID[subID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	for otherID, other := range s.subsByID {
		if otherID == subID || other.ChatID != sub.ChatID {
			continue
		}
		if other.Linkage != nil && strings.EqualFold(other.Linkage.MLDSAHash, linkage.MLDSAHash) {
			s.mu.Unlock()
			return ErrDuplicateSubscription
		}
	}
	linkageCopy := linkage
	sub.Linkage = &linkageCopy
	s.mu.Unlock()

	_, err := s.db.Collection(collSubscriptions).UpdateOne(ctx,
		bson.M{"_id": subID},
		bson.M{"$set": bson.M{"linkage": linkageCopy}},
	)
	if err != nil {
		return goerrors.Errorf("store: update linkage: %w", err)
	}
	return nil
}

// IdentityProjection builds the three hot-path projections described
// in spec §4.1: trackedSet (every address to match block data
// against), mldsaMap (primary -> hash, keyed only by primary so
// events attribute to the subscription address), and canonicalMap
// (any linked alias -> its primary).
func (s *Store) IdentityProjection() (trackedSet map[string]struct{}, mldsaMap map[string]string, canonicalMap map[string]string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trackedSet = make(map[string]struct{})
	mldsaMap = make(map[string]string)
	canonicalMap = make(map[string]string)

	for _, sub := range s.subsByID {
		trackedSet[sub.PrimaryAddress] = struct{}{}
		if sub.Linkage == nil {
			continue
		}
		if sub.Linkage.MLDSAHash != "" {
			mldsaMap[sub.PrimaryAddress] = strings.ToLower(sub.Linkage.MLDSAHash)
		}
		for _, alias := range sub.Linkage.Addresses() {
			trackedSet[alias] = struct{}{}
			canonicalMap[alias] = sub.PrimaryAddress
		}
	}
	return trackedSet, mldsaMap, canonicalMap
}

// UnresolvedPrimaries returns every tracked primary address with no
// stored identity hash yet, for the orchestrator to hand to the
// Resolver.
func (s *Store) UnresolvedPrimaries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, sub := range s.subsByID {
		if seen[sub.PrimaryAddress] {
			continue
		}
		if sub.Linkage == nil || sub.Linkage.MLDSAHash == "" {
			out = append(out, sub.PrimaryAddress)
			seen[sub.PrimaryAddress] = true
		}
	}
	return out
}

// SubscriptionsForPrimary returns every subscription (across chats)
// whose primary address matches, used by the orchestrator to attach a
// resolved linkage and to pick the linkage used for UTXO seeding.
func (s *Store) SubscriptionsForPrimary(primary string) []*Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Subscription
	for _, sub := range s.subsByID {
		if sub.PrimaryAddress == primary {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out
}

// --- UTXOs -------------------------------------------------------------

// UTXOMap returns a snapshot of the (txid,vout) -> {primary,value} map
// described in spec §4.1, rebuilt from the cache (already maintained
// incrementally, so this is O(1) plus a copy).
func (s *Store) UTXOMap() map[OutPoint]UTXORef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[OutPoint]UTXORef, len(s.utxoMap))
	for k, v := range s.utxoMap {
		out[k] = v
	}
	return out
}

// UTXOsForPrimary lists every stored UTXO belonging to a primary.
func (s *Store) UTXOsForPrimary(primary string) []OutPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.utxosByPrimary[primary]
	out := make([]OutPoint, 0, len(set))
	for op := range set {
		out = append(out, op)
	}
	return out
}

// IsPrimarySeeded reports whether MarkPrimarySeeded has been called
// for a primary address (used to decide whether seeding from RPC is
// due). Seeding state is tracked separately from the UTXO set so that
// a primary with a genuinely empty UTXO set is not reseeded every tick.
func (s *Store) IsPrimarySeeded(primary string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seededCache[primary]
	return ok
}

// MarkPrimarySeeded records that a primary's UTXO set has been seeded
// from RPC this process lifetime. Intentionally not persisted:
// reseeding after a restart is idempotent since the tracker unions
// the RPC snapshot into the existing set rather than replacing it.
func (s *Store) MarkPrimarySeeded(primary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seededCache[primary] = struct{}{}
}

// ApplyUTXODelta applies one delta to the in-memory map (under a single
// lock) and then to Mongo. In both, the spent outpoints are removed
// before the received outputs are added. The Mongo writes are separate
// operations, not one transaction.
func (s *Store) ApplyUTXODelta(ctx context.Context, received []StoredUTXO, spent []OutPoint) error {
	s.mu.Lock()
	for _, op := range spent {
		if ref, ok := s.utxoMap[op]; ok {
			delete(s.utxoMap, op)
			if set := s.utxosByPrimary[ref.Primary]; set != nil {
				delete(set, op)
			}
		}
	}
	for _, u := range received {
		v := u.Value
		if v == nil {
			v, _ = new(big.Int).SetString(u.ValueStr, 10)
		}
		op := OutPoint{TxID: u.TxID, Vout: u.Vout}
		s.utxoMap[op] = UTXORef{Primary: u.PrimaryAddress, Value: v}
		s.indexUTXOByPrimary(op, u.PrimaryAddress)
	}
	s.mu.Unlock()

	if len(spent) > 0 {
		filter := bson.A{}
		for _, op := range spent {
			filter = append(filter, bson.M{"txid": op.TxID, "vout": op.Vout})
		}
		if _, err := s.db.Collection(collUTXOs).DeleteMany(ctx, bson.M{"$or": filter}); err != nil {
			return goerrors.Errorf("store: delete spent utxos: %w", err)
		}
	}
	for _, u := range received {
		doc := u
		if doc.ValueStr == "" && doc.Value != nil {
			doc.ValueStr = doc.Value.String()
		}
		opts := options.Replace().SetUpsert(true)
		_, err := s.db.Collection(collUTXOs).ReplaceOne(ctx,
			bson.M{"txid": doc.TxID, "vout": doc.Vout}, doc, opts)
		if err != nil {
			return goerrors.Errorf("store: upsert utxo: %w", err)
		}
	}
	return nil
}

// --- Cursor --------------------------------------------------------

// Cursor returns the persisted scan cursor.
func (s *Store) Cursor() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// AdvanceCursor writes the new cursor height, enforcing monotonicity
// (spec invariant 4, §8).
func (s *Store) AdvanceCursor(ctx context.Context, height int64) error {
	s.mu.Lock()
	if height < s.cursor {
		s.mu.Unlock()
		return goerrors.Errorf("store: cursor must be monotonic non-decreasing (have %d, got %d)", s.cursor, height)
	}
	s.cursor = height
	s.mu.Unlock()

	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(collState).ReplaceOne(ctx,
		bson.M{"_id": ScanCursorKey},
		bson.M{"_id": ScanCursorKey, "value": height}, opts)
	if err != nil {
		return goerrors.Errorf("store: advance cursor: %w", err)
	}
	return nil
}

// --- Seen contracts --------------------------------------------------

// SeenContracts returns the contract -> isNFT set for a primary.
func (s *Store) SeenContracts(primary string) map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool)
	for k, v := range s.seenContracts[primary] {
		out[k] = v
	}
	return out
}

// AddSeenContract records a contract interaction for a primary
// address, persisted so the historical scanner and matcher can bound
// which contracts are queried/treated as NFT collections.
func (s *Store) AddSeenContract(ctx context.Context, primary, contract string, isNFT bool) error {
	s.mu.Lock()
	set, ok := s.seenContracts[primary]
	if !ok {
		set = make(map[string]bool)
		s.seenContracts[primary] = set
	}
	if existing, already := set[contract]; already && existing == isNFT {
		s.mu.Unlock()
		return nil
	}
	set[contract] = isNFT
	snapshot := make(map[string]bool, len(set))
	for k, v := range set {
		snapshot[k] = v
	}
	s.mu.Unlock()

	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(collSeenContracts).ReplaceOne(ctx,
		bson.M{"_id": primary},
		seenContractDoc{Primary: primary, Contracts: snapshot}, opts)
	if err != nil {
		return goerrors.Errorf("store: add seen contract: %w", err)
	}
	return nil
}

// --- Access control ----------------------------------------------------

// AuthorizeChat marks a chat as having passed the legacy password gate
// or redeemed a code.
func (s *Store) AuthorizeChat(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	s.authorized[chatID] = AuthorizedChat{ChatID: chatID, AuthorizedAt: time.Now()}
	s.mu.Unlock()

	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(collAuthorized).ReplaceOne(ctx,
		bson.M{"_id": chatID}, s.authorized[chatID], opts)
	if err != nil {
		return goerrors.Errorf("store: authorize chat: %w", err)
	}
	return nil
}

// IsAuthorized reports whether a chat has passed the access gate.
func (s *Store) IsAuthorized(chatID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.authorized[chatID]
	return ok
}

// PaidSubscriptionFor returns the paid subscription for a chat, if any.
func (s *Store) PaidSubscriptionFor(chatID int64) (*PaidSubscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.paidSubs[chatID]
	if !ok {
		return nil, false
	}
	cp := p
	return &cp, true
}

// HasActiveSubscription is the gate referenced by spec invariant 6:
// every outbound notification (other than the one-time expiry notice)
// must be preceded by a positive check here.
func (s *Store) HasActiveSubscription(chatID int64) bool {
	p, ok := s.PaidSubscriptionFor(chatID)
	return ok && p.IsLive(time.Now())
}

// UpsertPaidSubscription sets or extends a chat's paid subscription.
func (s *Store) UpsertPaidSubscription(ctx context.Context, p PaidSubscription) error {
	s.mu.Lock()
	s.paidSubs[p.ChatID] = p
	s.mu.Unlock()

	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(collPaidSubs).ReplaceOne(ctx, bson.M{"_id": p.ChatID}, p, opts)
	if err != nil {
		return goerrors.Errorf("store: upsert paid subscription: %w", err)
	}
	return nil
}

// --- Access codes --------------------------------------------------

// CreateAccessCode persists a newly issued code (created by the
// external payment pipeline, out of scope, but stored here so Redeem
// can validate and consume it idempotently).
func (s *Store) CreateAccessCode(ctx context.Context, code AccessCode) error {
	s.mu.Lock()
	s.accessCodes[code.Code] = code
	s.mu.Unlock()

	_, err := s.db.Collection(collAccessCodes).InsertOne(ctx, code)
	if err != nil {
		return goerrors.Errorf("store: create access code: %w", err)
	}
	return nil
}

// GetAccessCode looks up a code by its textual form.
func (s *Store) GetAccessCode(code string) (*AccessCode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.accessCodes[code]
	if !ok {
		return nil, false
	}
	cp := c
	return &cp, true
}

// RedeemAccessCode marks a code redeemed by chatID, idempotent with
// respect to the same caller: redeeming an already-redeemed-by-this-
// chat code is a no-op success, but redeeming a code already consumed
// by a different chat fails.
func (s *Store) RedeemAccessCode(ctx context.Context, code string, chatID int64) (*AccessCode, error) {
	s.mu.Lock()
	c, ok := s.accessCodes[code]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if c.Redeemed {
		s.mu.Unlock()
		if c.RedeemedBy == chatID {
			cp := c
			return &cp, nil
		}
		return nil, goerrors.New("store: access code already redeemed")
	}
	c.Redeemed = true
	c.RedeemedBy = chatID
	s.accessCodes[code] = c
	s.mu.Unlock()

	_, err := s.db.Collection(collAccessCodes).UpdateOne(ctx,
		bson.M{"_id": code},
		bson.M{"$set": bson.M{"redeemed": true, "redeemedBy": chatID}})
	if err != nil {
		return nil, goerrors.Errorf("store: redeem access code: %w", err)
	}
	cp := c
	return &cp, nil
}

// --- Token watches --------------------------------------------------

// CreateTokenWatch persists a new contract watch for a chat.
func (s *Store) CreateTokenWatch(ctx context.Context, w *TokenWatch) error {
	s.mu.Lock()
	key := chatAddrKey(w.ChatID, w.Contract)
	for _, existing := range s.tokenWatches {
		if chatAddrKey(existing.ChatID, existing.Contract) == key {
			s.mu.Unlock()
			return ErrDuplicateSubscription
		}
	}
	cp := *w
	s.tokenWatches[w.ID] = &cp
	s.mu.Unlock()

	if _, err := s.db.Collection(collTokenWatches).InsertOne(ctx, w); err != nil {
		s.mu.Lock()
		delete(s.tokenWatches, w.ID)
		s.mu.Unlock()
		return goerrors.Errorf("store: create token watch: %w", err)
	}
	return nil
}

// ListTokenWatches returns every token watch, used by the matcher to
// evaluate price-change alerts against every chat's threshold.
func (s *Store) ListTokenWatches() []*TokenWatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*TokenWatch, 0, len(s.tokenWatches))
	for _, w := range s.tokenWatches {
		cp := *w
		out = append(out, &cp)
	}
	return out
}

// DeleteTokenWatch removes a chat's watch on a contract.
func (s *Store) DeleteTokenWatch(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.tokenWatches[id]
	delete(s.tokenWatches, id)
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	_, err := s.db.Collection(collTokenWatches).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return goerrors.Errorf("store: delete token watch: %w", err)
	}
	return nil
}
