package chains

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safepay-org/safepay/internal/domain"
)

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()

	celo, ok := r.ChainByID("CELO")
	require.True(t, ok)
	assert.Equal(t, uint64(42220), celo.ChainID)
	assert.Equal(t, "https://forno.celo.org", celo.RPCURL)
	assert.Equal(t, 18, celo.NativeCurrency.Decimals)

	byNumeric, ok := r.ChainByNumericID(42220)
	require.True(t, ok)
	assert.Equal(t, "celo", byNumeric.ID)

	assert.Equal(t, "celo", r.DefaultChain().ID)

	usdt, ok := r.TokenBySymbol(42220, "usdt")
	require.True(t, ok)
	assert.Equal(t, 6, usdt.Decimals)

	cusd, ok := r.TokenByAddress(42220, "0x765de816845861e75a25fca122bb6898b8b1282a")
	require.True(t, ok)
	assert.Equal(t, "cUSD", cusd.Symbol)

	native, ok := r.TokenBySymbol(42220, "CELO")
	require.True(t, ok)
	assert.True(t, native.IsNative)

	url, err := r.SafeServiceURL(42220)
	require.NoError(t, err)
	assert.Equal(t, "https://safe-transaction-celo.safe.global", url)

	assert.Equal(t, "https://celoscan.io/tx/0xabc", celo.TxURL("0xabc"))
}

func TestRegistryUnknownChain(t *testing.T) {
	r := NewDefaultRegistry()

	_, ok := r.ChainByNumericID(1)
	assert.False(t, ok)

	_, err := r.Resolve(1)
	assert.ErrorIs(t, err, domain.ErrChainNotFound)

	c, err := r.Resolve(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(42220), c.ChainID)

	_, err = r.SafeServiceURL(1)
	assert.ErrorIs(t, err, domain.ErrChainNotFound)

	_, ok = r.TokenBySymbol(1, "USDT")
	assert.False(t, ok)
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry([]Chain{
		{ID: "a", ChainID: 1},
		{ID: "b", ChainID: 1},
	}, "a")
	assert.Error(t, err)

	_, err = NewRegistry([]Chain{{ID: "a", ChainID: 1}}, "missing")
	assert.Error(t, err)
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chains.toml")
	content := `
default = "alfajores"

[chains.celo]
rpc_url = "https://rpc.example.org"

[[chains.celo.tokens]]
symbol = "USDC"
name = "USD Coin"
address = "0xcebA9300f2b948710d2653dD7B07f33A8B32118C"
decimals = 6

[chains.alfajores]
chain_id = 44787
name = "Celo Alfajores"
rpc_url = "https://alfajores-forno.celo-testnet.org"
is_testnet = true

[chains.alfajores.native_currency]
symbol = "CELO"
decimals = 18
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := LoadOverlay(BuiltinChains, DefaultChainID, path)
	require.NoError(t, err)

	celo, ok := r.ChainByNumericID(42220)
	require.True(t, ok)
	assert.Equal(t, "https://rpc.example.org", celo.RPCURL)
	assert.Equal(t, "https://celoscan.io", celo.ExplorerURL)
	assert.Len(t, celo.Tokens, 3)

	assert.Equal(t, "alfajores", r.DefaultChain().ID)
	assert.True(t, r.DefaultChain().IsTestnet)
	assert.True(t, r.DefaultChain().NativeCurrency.IsNative)
	assert.Len(t, r.Chains(), 2)

	// builtin slice is untouched
	assert.Len(t, BuiltinChains[0].Tokens, 2)
	assert.Equal(t, "https://forno.celo.org", BuiltinChains[0].RPCURL)
}
