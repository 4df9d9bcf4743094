package wallet

import (
	"context"
	"strconv"
	"strings"

	"github.com/safepay-org/safepay/internal/usecase"
)

// Headers the front end sends to describe its wallet context
const (
	HeaderSafeEmbedded  = "X-Safe-App-Embedded"
	HeaderSafeAddress   = "X-Safe-Address"
	HeaderWalletAddress = "X-Wallet-Address"
	HeaderChainID       = "X-Chain-ID"
	HeaderSafeReadOnly  = "X-Safe-Read-Only"
)

// Claims is what a caller says about its wallet environment.
// Nothing in it is trusted for Safe state; the bridge re-reads that from the service.
type Claims struct {
	Embedded      bool
	SafeAddress   string
	WalletAddress string
	ChainID       uint64
	ReadOnly      bool
}

// ClaimsFromHeaders reads claims from request headers
func ClaimsFromHeaders(get func(string) string) Claims {
	chainID, _ := strconv.ParseUint(strings.TrimSpace(get(HeaderChainID)), 10, 64)
	return Claims{
		Embedded:      parseFlag(get(HeaderSafeEmbedded)),
		SafeAddress:   strings.ToLower(strings.TrimSpace(get(HeaderSafeAddress))),
		WalletAddress: strings.ToLower(strings.TrimSpace(get(HeaderWalletAddress))),
		ChainID:       chainID,
		ReadOnly:      parseFlag(get(HeaderSafeReadOnly)),
	}
}

func parseFlag(v string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(v))
	return b
}

// IsEmbedded reports whether the caller runs inside the Safe interface
func (c Claims) IsEmbedded() bool {
	return c.Embedded
}

// HasInjectedProvider reports whether the caller has an EOA account
func (c Claims) HasInjectedProvider() bool {
	return c.WalletAddress != ""
}

// Context assembles the wallet ports for one caller.
// fallback, when set, provides accounts if the caller sent none.
func (c Claims) Context(service usecase.SafeService, reader usecase.ChainReader, fallback usecase.InjectedProvider) usecase.WalletContext {
	w := usecase.WalletContext{Env: c}
	switch {
	case c.WalletAddress != "":
		w.Provider = StaticProvider{Account: c.WalletAddress, Chain: c.ChainID}
	case fallback != nil:
		w.Env = withInjected{Claims: c}
		w.Provider = fallback
	}
	if c.SafeAddress != "" && service != nil {
		w.Bridge = NewSafeBridge(c, service, reader)
	}
	return w
}

// withInjected marks a local signer as the injected provider
type withInjected struct {
	Claims
}

func (withInjected) HasInjectedProvider() bool { return true }

// StaticProvider is an account the caller already connected client side
type StaticProvider struct {
	Account string
	Chain   uint64
}

// RequestAccounts returns the claimed account
func (p StaticProvider) RequestAccounts(context.Context) ([]string, error) {
	if p.Account == "" {
		return nil, nil
	}
	return []string{p.Account}, nil
}

// ChainID returns the claimed chain
func (p StaticProvider) ChainID(context.Context) (uint64, error) {
	return p.Chain, nil
}

var (
	_ usecase.WalletEnvironment = Claims{}
	_ usecase.InjectedProvider  = StaticProvider{}
)
