// Package matcher implements Component E: projects a batch of indexer
// records against the identity and tracked-address projections into
// semantic wallet events (spec §4.5), plus price alerts for
// configured Token-Watches.
package matcher

import (
	"strings"

	"github.com/trypto13/jeet-tracker/indexerclient"
	"github.com/trypto13/jeet-tracker/store"
)

// Direction is the side of a transfer a matched event represents.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// EventKind enumerates the semantic event kinds spec §4.5 names.
type EventKind string

const (
	KindToken              EventKind = "token"
	KindNFTTransfer        EventKind = "nft_transfer"
	KindLiquidityReserved  EventKind = "liquidity_reserved"
	KindProviderConsumed   EventKind = "provider_consumed"
	KindSwapExecuted       EventKind = "swap_executed"
	KindLiquidityAdded     EventKind = "liquidity_added"
	KindLiquidityRemoved   EventKind = "liquidity_removed"
	KindStaked             EventKind = "staked"
	KindUnstaked           EventKind = "unstaked"
	KindRewardsClaimed     EventKind = "rewards_claimed"
)

// Role distinguishes seller/buyer-style actors on a reservation.
type Role string

const (
	RoleSeller Role = "seller"
	RoleBuyer  Role = "buyer"
)

// Event is one semantic wallet event attributed to a primary address.
type Event struct {
	Kind        EventKind
	Address     string
	Direction   Direction
	Role        Role
	Contract    string
	TxHash      string
	BlockHeight int64

	Value       string // decimal string, token amount or NFT id context
	Satoshis    string
	TokenAmount string
	BtcSpent    string
	IsNFT       bool
}

// PriceAlert is produced when a price-change record crosses a
// Token-Watch's configured threshold.
type PriceAlert struct {
	ChatID       int64
	Contract     string
	PercentDelta float64
	NewPrice     string
}

// Projection carries the identity maps the matcher needs. mldsaMap is
// primary -> lowercase hash (without 0x); trackedSet/canonicalMap are
// as built by store.IdentityProjection.
type Projection struct {
	MLDSAMap     map[string]string
	TrackedSet   map[string]struct{}
	CanonicalMap map[string]string
}

// hashToPrimary inverts mldsaMap once per batch for O(1) lookups.
func (p Projection) hashToPrimary() map[string]string {
	out := make(map[string]string, len(p.MLDSAMap))
	for primary, hash := range p.MLDSAMap {
		out[hash] = primary
	}
	return out
}

func normalizeHash(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, "0x"))
}

// canonicalize resolves an address to its tracked primary, or returns
// ("", false) if it is not tracked at all.
func (p Projection) canonicalize(addr string) (string, bool) {
	if _, ok := p.TrackedSet[addr]; !ok {
		return "", false
	}
	if primary, ok := p.CanonicalMap[addr]; ok {
		return primary, true
	}
	return addr, true
}

// Match projects one event batch into semantic wallet events and
// price alerts. watches is the full set of active Token-Watches,
// used only for price-alert thresholds.
func Match(batch *indexerclient.EventBatch, proj Projection, watches []*store.TokenWatch) ([]Event, []PriceAlert) {
	byHash := proj.hashToPrimary()
	var events []Event

	events = append(events, matchTransfers(batch.Transfers, byHash)...)
	events = append(events, matchReservations(batch.Reservations, byHash, proj)...)
	events = append(events, matchSwaps(batch.Swaps, byHash)...)
	events = append(events, matchPoolEvents(batch.PoolEvents, byHash)...)
	events = append(events, matchStakingEvents(batch.StakingEvents, byHash)...)

	alerts := matchPriceAlerts(batch.PriceChanges, watches)

	return events, alerts
}

func matchTransfers(transfers []indexerclient.Transfer, byHash map[string]string) []Event {
	var out []Event
	for _, t := range transfers {
		kind := KindToken
		if t.IsNFT {
			kind = KindNFTTransfer
		}
		if primary, ok := byHash[normalizeHash(t.From)]; ok {
			out = append(out, Event{
				Kind: kind, Address: primary, Direction: DirectionOut,
				Contract: t.Contract, TxHash: t.TxHash, BlockHeight: t.BlockHeight,
				Value: t.Value, IsNFT: t.IsNFT,
			})
		}
		if primary, ok := byHash[normalizeHash(t.To)]; ok {
			out = append(out, Event{
				Kind: kind, Address: primary, Direction: DirectionIn,
				Contract: t.Contract, TxHash: t.TxHash, BlockHeight: t.BlockHeight,
				Value: t.Value, IsNFT: t.IsNFT,
			})
		}
	}
	return out
}

// matchReservations handles the seller/buyer-style record where the
// seller is identified by MLDSA hash and the buyer by a BTC address
// (spec §4.5 "some fields carry a BTC address rather than an MLDSA
// hash; matched additionally via trackedSet with canonical
// normalisation").
func matchReservations(reservations []indexerclient.Reservation, byHash map[string]string, proj Projection) []Event {
	var out []Event
	for _, r := range reservations {
		if primary, ok := byHash[normalizeHash(r.ProviderMLDSA)]; ok {
			out = append(out, Event{
				Kind: KindLiquidityReserved, Address: primary, Role: RoleSeller,
				Contract: r.Contract, TxHash: r.TxHash, BlockHeight: r.BlockHeight,
				Satoshis: r.Satoshis, TokenAmount: r.TokenAmount,
			})
		}
		if primary, ok := proj.canonicalize(r.BuyerAddress); ok {
			out = append(out, Event{
				Kind: KindLiquidityReserved, Address: primary, Role: RoleBuyer,
				Contract: r.Contract, TxHash: r.TxHash, BlockHeight: r.BlockHeight,
				Satoshis: r.Satoshis, TokenAmount: r.TokenAmount,
			})
		}
		if r.Status == "consumed" {
			if primary, ok := byHash[normalizeHash(r.ProviderMLDSA)]; ok {
				out = append(out, Event{
					Kind: KindProviderConsumed, Address: primary,
					Contract: r.Contract, TxHash: r.TxHash, BlockHeight: r.BlockHeight,
					Satoshis: r.Satoshis, TokenAmount: r.TokenAmount,
				})
			}
		}
	}
	return out
}

func matchSwaps(swaps []indexerclient.Swap, byHash map[string]string) []Event {
	var out []Event
	for _, s := range swaps {
		if primary, ok := byHash[normalizeHash(s.Buyer)]; ok {
			out = append(out, Event{
				Kind: KindSwapExecuted, Address: primary,
				Contract: s.Contract, TxHash: s.TxHash, BlockHeight: s.BlockHeight,
				BtcSpent: s.BtcSpent, TokenAmount: s.TokensReceived,
			})
		}
	}
	return out
}

func matchPoolEvents(poolEvents []indexerclient.PoolEvent, byHash map[string]string) []Event {
	var out []Event
	for _, e := range poolEvents {
		primary, ok := byHash[normalizeHash(e.Provider)]
		if !ok {
			continue
		}
		kind := KindLiquidityAdded
		if e.Kind == "removed" {
			kind = KindLiquidityRemoved
		}
		out = append(out, Event{
			Kind: kind, Address: primary,
			Contract: e.Contract, TxHash: e.TxHash, BlockHeight: e.BlockHeight,
			Satoshis: e.Satoshis, TokenAmount: e.TokenAmount,
		})
	}
	return out
}

func matchStakingEvents(stakingEvents []indexerclient.StakingEvent, byHash map[string]string) []Event {
	var out []Event
	for _, e := range stakingEvents {
		primary, ok := byHash[normalizeHash(e.Actor)]
		if !ok {
			continue
		}
		var kind EventKind
		switch e.Kind {
		case "staked":
			kind = KindStaked
		case "unstaked":
			kind = KindUnstaked
		case "claimed":
			kind = KindRewardsClaimed
		default:
			continue
		}
		out = append(out, Event{
			Kind: kind, Address: primary,
			Contract: e.Contract, TxHash: e.TxHash, BlockHeight: e.BlockHeight,
			TokenAmount: e.Amount,
		})
	}
	return out
}

func matchPriceAlerts(changes []indexerclient.PriceChange, watches []*store.TokenWatch) []PriceAlert {
	var out []PriceAlert
	for _, w := range watches {
		if w.PriceAlertPercent <= 0 {
			continue
		}
		for _, pc := range changes {
			if pc.Contract != w.Contract {
				continue
			}
			if absFloat(pc.PercentDelta) < w.PriceAlertPercent {
				continue
			}
			out = append(out, PriceAlert{
				ChatID: w.ChatID, Contract: w.Contract,
				PercentDelta: pc.PercentDelta, NewPrice: pc.NewPrice,
			})
		}
	}
	return out
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
