package usecase

import (
	"context"

	"github.com/safepay-org/safepay/internal/chains"
)

// ListChainsParams contains parameters for listing chains
type ListChainsParams struct {
	// Probe dials each chain's RPC and reports the chain id it answers with
	Probe bool
}

// ListChainsResult contains the result of listing chains
type ListChainsResult struct {
	Chains  []ChainStatus
	Default string
}

// ChainStatus represents a registry chain and, when probed, its RPC health
type ChainStatus struct {
	Chain      chains.Chain
	RPCChainID uint64
	Probed     bool
	Error      error
}

// ListChains is a use case for listing supported chains
type ListChains struct {
	registry ChainRegistry
	probe    ChainProbe
}

// NewListChains creates a new ListChains use case. probe may be nil.
func NewListChains(registry ChainRegistry, probe ChainProbe) *ListChains {
	return &ListChains{
		registry: registry,
		probe:    probe,
	}
}

// Run executes the use case
func (uc *ListChains) Run(ctx context.Context, params ListChainsParams) (*ListChainsResult, error) {
	all := uc.registry.Chains()
	statuses := make([]ChainStatus, 0, len(all))
	for _, c := range all {
		status := ChainStatus{Chain: c}
		if params.Probe && uc.probe != nil {
			status.Probed = true
			id, err := uc.probe.RemoteChainID(ctx, c.ChainID)
			if err != nil {
				status.Error = err
			} else {
				status.RPCChainID = id
			}
		}
		statuses = append(statuses, status)
	}

	return &ListChainsResult{
		Chains:  statuses,
		Default: uc.registry.DefaultChain().ID,
	}, nil
}
