package chains

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/safepay-org/safepay/internal/domain"
)

// Token is an asset payable on a chain
type Token struct {
	Symbol   string `json:"symbol" toml:"symbol"`
	Name     string `json:"name" toml:"name"`
	Address  string `json:"address" toml:"address"`
	Decimals int    `json:"decimals" toml:"decimals"`
	IsNative bool   `json:"isNative,omitempty" toml:"is_native"`
}

// Chain holds the static metadata of a supported network
type Chain struct {
	ID                string  `json:"id"`
	ChainID           uint64  `json:"chainId"`
	Name              string  `json:"name"`
	RPCURL            string  `json:"rpcUrl"`
	ExplorerURL       string  `json:"explorerUrl"`
	NativeCurrency    Token   `json:"nativeCurrency"`
	Tokens            []Token `json:"tokens"`
	SafeServiceURL    string  `json:"safeServiceUrl"`
	MultiSendCallOnly string  `json:"multiSendCallOnly"`
	IsTestnet         bool    `json:"isTestnet"`
}

// TxURL links a transaction on the chain explorer
func (c Chain) TxURL(txHash string) string {
	return strings.TrimRight(c.ExplorerURL, "/") + "/tx/" + txHash
}

// AddressURL links an address on the chain explorer
func (c Chain) AddressURL(address string) string {
	return strings.TrimRight(c.ExplorerURL, "/") + "/address/" + address
}

// BuiltinChains is the registry shipped with the binary
var BuiltinChains = []Chain{
	{
		ID:          "celo",
		ChainID:     42220,
		Name:        "Celo",
		RPCURL:      "https://forno.celo.org",
		ExplorerURL: "https://celoscan.io",
		NativeCurrency: Token{
			Symbol:   "CELO",
			Name:     "Celo",
			Address:  "0x0000000000000000000000000000000000000000",
			Decimals: 18,
			IsNative: true,
		},
		Tokens: []Token{
			{Symbol: "USDT", Name: "Tether USD", Address: "0x48065fbBE25f71C9282ddf5e1cD6D6A887483D5e", Decimals: 6},
			{Symbol: "cUSD", Name: "Celo Dollar", Address: "0x765DE816845861e75A25fCA122bb6898B8B1282a", Decimals: 18},
		},
		SafeServiceURL:    "https://safe-transaction-celo.safe.global",
		MultiSendCallOnly: "0x40A2aCCbd92BCA938b02010E17A5b8929b49130D",
	},
}

// DefaultChainID is the registry id used when a caller does not name a chain
const DefaultChainID = "celo"

// Registry is an immutable chain lookup table
type Registry struct {
	byID      map[string]Chain
	byNumeric map[uint64]string
	defaultID string
}

// NewRegistry builds a registry from chain definitions
func NewRegistry(chains []Chain, defaultID string) (*Registry, error) {
	r := &Registry{
		byID:      make(map[string]Chain, len(chains)),
		byNumeric: make(map[uint64]string, len(chains)),
		defaultID: strings.ToLower(defaultID),
	}
	for _, c := range chains {
		c.ID = strings.ToLower(c.ID)
		if c.ID == "" || c.ChainID == 0 {
			return nil, fmt.Errorf("chain %q: id and chain id are required", c.ID)
		}
		if existing, ok := r.byNumeric[c.ChainID]; ok && existing != c.ID {
			return nil, fmt.Errorf("chain id %d registered twice (%s, %s)", c.ChainID, existing, c.ID)
		}
		r.byID[c.ID] = c
		r.byNumeric[c.ChainID] = c.ID
	}
	if _, ok := r.byID[r.defaultID]; !ok {
		return nil, fmt.Errorf("default chain %q is not registered", r.defaultID)
	}
	return r, nil
}

// NewDefaultRegistry returns the builtin registry
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry(BuiltinChains, DefaultChainID)
	if err != nil {
		panic(err)
	}
	return r
}

// ChainByID looks a chain up by registry id (e.g. "celo")
func (r *Registry) ChainByID(id string) (Chain, bool) {
	c, ok := r.byID[strings.ToLower(id)]
	return c, ok
}

// ChainByNumericID looks a chain up by EIP-155 chain id
func (r *Registry) ChainByNumericID(chainID uint64) (Chain, bool) {
	id, ok := r.byNumeric[chainID]
	if !ok {
		return Chain{}, false
	}
	return r.byID[id], true
}

// Resolve finds a chain by numeric id, or the default chain when chainID is zero
func (r *Registry) Resolve(chainID uint64) (Chain, error) {
	if chainID == 0 {
		return r.DefaultChain(), nil
	}
	c, ok := r.ChainByNumericID(chainID)
	if !ok {
		return Chain{}, fmt.Errorf("%w: %d", domain.ErrChainNotFound, chainID)
	}
	return c, nil
}

// DefaultChain returns the default chain
func (r *Registry) DefaultChain() Chain {
	return r.byID[r.defaultID]
}

// Chains lists every chain ordered by chain id
func (r *Registry) Chains() []Chain {
	out := make([]Chain, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// TokenBySymbol finds a token (or the native currency) by symbol, case-insensitively
func (r *Registry) TokenBySymbol(chainID uint64, symbol string) (Token, bool) {
	c, ok := r.ChainByNumericID(chainID)
	if !ok {
		return Token{}, false
	}
	if strings.EqualFold(c.NativeCurrency.Symbol, symbol) {
		return c.NativeCurrency, true
	}
	for _, t := range c.Tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return Token{}, false
}

// TokenByAddress finds a token by contract address, case-insensitively
func (r *Registry) TokenByAddress(chainID uint64, address string) (Token, bool) {
	c, ok := r.ChainByNumericID(chainID)
	if !ok {
		return Token{}, false
	}
	for _, t := range c.Tokens {
		if strings.EqualFold(t.Address, address) {
			return t, true
		}
	}
	return Token{}, false
}

// SafeServiceURL returns the Safe Transaction Service base URL for a chain
func (r *Registry) SafeServiceURL(chainID uint64) (string, error) {
	c, ok := r.ChainByNumericID(chainID)
	if !ok {
		return "", fmt.Errorf("%w: %d", domain.ErrChainNotFound, chainID)
	}
	if c.SafeServiceURL == "" {
		return "", fmt.Errorf("no Safe transaction service configured for chain %d", chainID)
	}
	return c.SafeServiceURL, nil
}

type overlayFile struct {
	Default string                  `toml:"default"`
	Chains  map[string]overlayChain `toml:"chains"`
}

type overlayChain struct {
	ChainID           uint64  `toml:"chain_id"`
	Name              string  `toml:"name"`
	RPCURL            string  `toml:"rpc_url"`
	ExplorerURL       string  `toml:"explorer_url"`
	SafeServiceURL    string  `toml:"safe_service_url"`
	MultiSendCallOnly string  `toml:"multisend_call_only"`
	NativeCurrency    *Token  `toml:"native_currency"`
	Tokens            []Token `toml:"tokens"`
	IsTestnet         bool    `toml:"is_testnet"`
}

// LoadOverlay returns a registry with builtin chains overridden and extended by a TOML file
func LoadOverlay(base []Chain, defaultID, path string) (*Registry, error) {
	var file overlayFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("failed to parse chain overlay %s: %w", path, err)
	}

	merged := make(map[string]Chain, len(base)+len(file.Chains))
	for _, c := range base {
		c.Tokens = append([]Token(nil), c.Tokens...)
		merged[c.ID] = c
	}

	for id, o := range file.Chains {
		id = strings.ToLower(id)
		c := merged[id]
		c.ID = id
		if o.ChainID != 0 {
			c.ChainID = o.ChainID
		}
		c.Name = pick(o.Name, c.Name)
		c.RPCURL = pick(o.RPCURL, c.RPCURL)
		c.ExplorerURL = pick(o.ExplorerURL, c.ExplorerURL)
		c.SafeServiceURL = pick(o.SafeServiceURL, c.SafeServiceURL)
		c.MultiSendCallOnly = pick(o.MultiSendCallOnly, c.MultiSendCallOnly)
		if o.NativeCurrency != nil {
			c.NativeCurrency = *o.NativeCurrency
			c.NativeCurrency.IsNative = true
		}
		if o.IsTestnet {
			c.IsTestnet = true
		}
		for _, t := range o.Tokens {
			c.Tokens = upsertToken(c.Tokens, t)
		}
		merged[id] = c
	}

	if file.Default != "" {
		defaultID = strings.ToLower(file.Default)
	}

	chains := make([]Chain, 0, len(merged))
	for _, c := range merged {
		chains = append(chains, c)
	}
	return NewRegistry(chains, defaultID)
}

func upsertToken(tokens []Token, t Token) []Token {
	for i, existing := range tokens {
		if strings.EqualFold(existing.Symbol, t.Symbol) {
			tokens[i] = t
			return tokens
		}
	}
	return append(tokens, t)
}

func pick(override, current string) string {
	if override != "" {
		return override
	}
	return current
}
