package identity

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trypto13/jeet-tracker/config"
)

func testPubKey(t *testing.T) *btcec.PublicKey {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func TestNetParams_MapsNetworkToChainParams(t *testing.T) {
	assert.Equal(t, &chaincfg.MainNetParams, netParams(config.NetworkMainnet))
	assert.Equal(t, &chaincfg.TestNet3Params, netParams(config.NetworkTestnet))
	assert.Equal(t, &chaincfg.RegressionNetParams, netParams(config.NetworkRegtest))
}

func TestResolver_DerivesDistinctAddressFormsForSameKey(t *testing.T) {
	r := New(nil, config.NetworkMainnet)
	pub := testPubKey(t)

	p2wpkh := r.p2wpkh(pub)
	p2pkh := r.p2pkh(pub)
	p2tr := r.p2tr(pub)

	require.NotEmpty(t, p2wpkh)
	require.NotEmpty(t, p2pkh)
	require.NotEmpty(t, p2tr)
	assert.NotEqual(t, p2wpkh, p2pkh)
	assert.NotEqual(t, p2wpkh, p2tr)
	assert.NotEqual(t, p2pkh, p2tr)
}

func TestResolver_DerivationIsDeterministic(t *testing.T) {
	r := New(nil, config.NetworkTestnet)
	pub := testPubKey(t)

	assert.Equal(t, r.p2wpkh(pub), r.p2wpkh(pub))
	assert.Equal(t, r.p2tr(pub), r.p2tr(pub))
}

func TestResolver_P2OP_EmptyHashYieldsEmptyAddress(t *testing.T) {
	r := New(nil, config.NetworkMainnet)
	assert.Equal(t, "", r.p2op(""))
}

func TestResolver_P2OP_DerivesFromMLDSAHash(t *testing.T) {
	r := New(nil, config.NetworkMainnet)
	addr := r.p2op("deadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	assert.NotEmpty(t, addr)
}

func TestResolver_P2OP_InvalidHexYieldsEmptyAddress(t *testing.T) {
	r := New(nil, config.NetworkMainnet)
	assert.Equal(t, "", r.p2op("not-hex"))
}
