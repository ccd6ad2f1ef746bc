package store

import (
	"math/big"
	"time"
)

// Subscription is a chat's watch on one address. See spec §3.
type Subscription struct {
	ID             string     `bson:"_id"`
	ChatID         int64      `bson:"chatId"`
	PrimaryAddress string     `bson:"primaryAddress"`
	Label          string     `bson:"label"`
	CreatedAt      time.Time  `bson:"createdAt"`
	Linkage        *Linkage   `bson:"linkage,omitempty"`
}

// Linkage is attached to a Subscription once the Identity Resolver
// succeeds. Every address field is optional: some derivations require
// the original public key, which may not be on chain.
type Linkage struct {
	MLDSAHash     string `bson:"mldsaHash"`
	TweakedPubkey string `bson:"tweakedPubkey,omitempty"`
	P2OP          string `bson:"p2op,omitempty"`
	P2TR          string `bson:"p2tr,omitempty"`
	P2WPKH        string `bson:"p2wpkh,omitempty"`
	P2PKH         string `bson:"p2pkh,omitempty"`
	CSV1          string `bson:"csv1,omitempty"`
}

// Addresses returns every non-empty derived address form, used to
// build the trackedSet projection.
func (l *Linkage) Addresses() []string {
	if l == nil {
		return nil
	}
	var out []string
	for _, a := range []string{l.P2OP, l.P2TR, l.P2WPKH, l.P2PKH, l.CSV1} {
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// OutPoint identifies a transaction output.
type OutPoint struct {
	TxID string `bson:"txid"`
	Vout uint32 `bson:"vout"`
}

// StoredUTXO is an unspent output tracked for a primary address.
type StoredUTXO struct {
	TxID           string   `bson:"txid"`
	Vout           uint32   `bson:"vout"`
	Value          *big.Int `bson:"-"`
	ValueStr       string   `bson:"value"`
	PrimaryAddress string   `bson:"primaryAddress"`
}

// UTXORef is the lightweight value stored in the hot UTXO map, keyed
// by OutPoint, per spec §4.1 "UTXO map construction".
type UTXORef struct {
	Primary string
	Value   *big.Int
}

// ScanCursorKey is the generic-state key holding the persisted cursor.
const ScanCursorKey = "scanCursor"

// AuthorizedChat is a chat that passed the legacy password gate or
// redeemed a code. Necessary, not sufficient, for notification
// delivery — see PaidSubscription.
type AuthorizedChat struct {
	ChatID        int64     `bson:"_id"`
	AuthorizedAt  time.Time `bson:"authorizedAt"`
}

// PaidSubscription is the gating condition for notification delivery.
type PaidSubscription struct {
	ChatID    int64     `bson:"_id"`
	ExpiresAt time.Time `bson:"expiresAt"`
	Code      string    `bson:"code"`
	PaidBy    string    `bson:"paidByWallet"`
}

// IsLive reports whether the paid subscription is currently active.
func (p *PaidSubscription) IsLive(now time.Time) bool {
	return p != nil && now.Before(p.ExpiresAt)
}

// AccessCode is a structured redeemable token, format JT-[A-Z0-9]{12}.
type AccessCode struct {
	Code            string    `bson:"_id"`
	Redeemed        bool      `bson:"redeemed"`
	RedeemedBy      int64     `bson:"redeemedBy,omitempty"`
	ExpiresAt       time.Time `bson:"expiresAt"`
	DurationDays    int       `bson:"durationDays"`
	FundingTxHash   string    `bson:"fundingTxHash"`
}

// TokenWatchKind distinguishes fungible transfers from NFT transfers
// for formatting purposes.
type TokenWatchKind string

const (
	TokenWatchFungible TokenWatchKind = "fungible"
	TokenWatchNFT      TokenWatchKind = "nft"
)

// TokenWatch is a chat-level watch on a specific contract.
type TokenWatch struct {
	ID                     string         `bson:"_id"`
	ChatID                 int64          `bson:"chatId"`
	Contract               string         `bson:"contract"`
	Label                  string         `bson:"label"`
	Kind                   TokenWatchKind `bson:"kind"`
	PriceAlertPercent      float64        `bson:"priceAlertPercent"`
	MinSatoshiReservation  int64          `bson:"minSatoshiReservation"`
}
