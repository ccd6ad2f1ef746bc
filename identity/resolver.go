// Package identity implements Component B: given a primary address,
// produce its full identity bundle (the MLDSA hash and every address
// format derivable from it) via the chain RPC. Callers store the
// result on the owning subscriptions via store.UpdateLinkage.
//
// Address derivation is grounded on the teacher pack's multi-chain
// address-derivation code (arcSignv2's
// src/chainadapter/bitcoin/derive.go pubKeyToP2WPKHAddress), adapted
// to derive every form this chain's identities can take from a single
// public key, using btcsuite/btcd's address/txscript primitives
// (carried over from the teacher's go.mod) instead of hand-rolled
// base58/bech32 encoding.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	goerrors "github.com/go-errors/errors"
	"golang.org/x/sync/singleflight"

	"github.com/trypto13/jeet-tracker/chainrpc"
	"github.com/trypto13/jeet-tracker/config"
	"github.com/trypto13/jeet-tracker/log"
	"github.com/trypto13/jeet-tracker/store"
)

var idLog = log.NewSubsystemLogger(log.SubsystemIdentity)

// Resolver resolves a primary address into its full identity bundle.
// Concurrent resolutions of the same address within one tick are
// collapsed with singleflight, avoiding duplicate RPC round-trips when
// the orchestrator fans out per-primary work (spec §5 "structured
// fan-out"). Resolve does not write through to the Store itself — the
// caller persists the result via store.UpdateLinkage, since only the
// caller knows which subscription IDs share this primary address.
type Resolver struct {
	rpc    chainrpc.Client
	params *chaincfg.Params
	group  singleflight.Group
}

// New builds a Resolver for the given network.
func New(rpc chainrpc.Client, network config.Network) *Resolver {
	return &Resolver{rpc: rpc, params: netParams(network)}
}

func netParams(n config.Network) *chaincfg.Params {
	switch n {
	case config.NetworkTestnet:
		return &chaincfg.TestNet3Params
	case config.NetworkRegtest:
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// Resolve asks the chain RPC for the owner-info record for addr; if
// present, derives every addressable form. Each derivation fails
// independently and is simply absent from the result (spec §4.2). Any
// RPC failure is absorbed: it returns (nil, nil) so the caller retries
// next tick, per spec §7's "missing identity derivation" taxonomy.
func (r *Resolver) Resolve(ctx context.Context, addr string) (*store.Linkage, error) {
	v, err, _ := r.group.Do(addr, func() (interface{}, error) {
		return r.resolve(ctx, addr)
	})
	if err != nil {
		idLog.Debugf("resolve %s: absorbed error: %v", addr, err)
		return nil, nil
	}
	if v == nil {
		return nil, nil
	}
	return v.(*store.Linkage), nil
}

func (r *Resolver) resolve(ctx context.Context, addr string) (*store.Linkage, error) {
	info, err := r.rpc.GetPublicKeyInfo(ctx, addr, true)
	if err != nil {
		return nil, goerrors.Errorf("identity: getPublicKeyInfo(%s): %w", addr, err)
	}
	if info == nil {
		return nil, nil
	}

	linkage := &store.Linkage{
		MLDSAHash:     strings.ToLower(strings.TrimPrefix(info.SerializedOwner, "0x")),
		TweakedPubkey: info.TweakedPubkey,
	}

	if info.PublicKey != "" {
		pubBytes, err := hex.DecodeString(strings.TrimPrefix(info.PublicKey, "0x"))
		if err == nil {
			if pubKey, err := btcec.ParsePubKey(pubBytes); err == nil {
				linkage.P2WPKH = r.p2wpkh(pubKey)
				linkage.P2PKH = r.p2pkh(pubKey)
				linkage.P2TR = r.p2tr(pubKey)
			}
		}
	}

	linkage.P2OP = r.p2op(linkage.MLDSAHash)

	if csv1, err := r.rpc.GetCSV1ForAddress(ctx, addr); err == nil && csv1 != "" {
		linkage.CSV1 = csv1
	}

	return linkage, nil
}

// p2wpkh derives the native segwit form, mirroring arcSignv2's
// pubKeyToP2WPKHAddress: hash160 of the compressed pubkey, encoded as
// a witness-v0 program.
func (r *Resolver) p2wpkh(pub *btcec.PublicKey) string {
	hash := btcutil.Hash160(pub.SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash, r.params)
	if err != nil {
		return ""
	}
	return addr.EncodeAddress()
}

// p2pkh derives the legacy pay-to-pubkey-hash form.
func (r *Resolver) p2pkh(pub *btcec.PublicKey) string {
	hash := btcutil.Hash160(pub.SerializeCompressed())
	addr, err := btcutil.NewAddressPubKeyHash(hash, r.params)
	if err != nil {
		return ""
	}
	return addr.EncodeAddress()
}

// p2tr derives the taproot (key-spend only, no script path) form.
func (r *Resolver) p2tr(pub *btcec.PublicKey) string {
	internalKey := pub
	outputKey := txscript.ComputeTaprootKeyNoScript(internalKey)
	addr, err := btcutil.NewAddressTaproot(
		schnorr.SerializePubKey(outputKey), r.params)
	if err != nil {
		return ""
	}
	return addr.EncodeAddress()
}

// p2op encodes the chain's contract-interaction address form as a
// witness-v0 script-hash (bech32) program whose 32 bytes are the
// SHA-256 of the MLDSA hash bytes (at most the first 40), using the
// network's segwit HRP. This is a chain-specific convention, not a
// standard Bitcoin script type: the form has no independent key
// material of its own to derive from.
func (r *Resolver) p2op(mldsaHash string) string {
	if mldsaHash == "" {
		return ""
	}
	raw, err := hex.DecodeString(mldsaHash)
	if err != nil || len(raw) == 0 {
		return ""
	}
	prog := raw
	if len(prog) > 40 {
		prog = prog[:40]
	}
	sum := sha256.Sum256(prog)
	addr, err := btcutil.NewAddressWitnessScriptHash(sum[:], r.params)
	if err != nil {
		return ""
	}
	return addr.EncodeAddress()
}
