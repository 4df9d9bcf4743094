package blockchain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/config"
	"github.com/safepay-org/safepay/internal/usecase"
)

// DefaultRPCTimeout bounds each RPC call
const DefaultRPCTimeout = 5 * time.Second

// Backend is the subset of ethclient.Client the adapters use
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// DialFunc opens a backend for an RPC URL
type DialFunc func(ctx context.Context, rpcURL string) (Backend, error)

func dialEthclient(ctx context.Context, rpcURL string) (Backend, error) {
	return ethclient.DialContext(ctx, rpcURL)
}

// Clients keeps one RPC connection per registered chain
type Clients struct {
	registry usecase.ChainRegistry
	timeout  time.Duration
	dial     DialFunc
	log      *slog.Logger

	mu      sync.Mutex
	clients map[uint64]Backend
}

// NewClients creates a lazily dialing connection pool
func NewClients(cfg *config.RuntimeConfig, registry usecase.ChainRegistry, log *slog.Logger) *Clients {
	timeout := DefaultRPCTimeout
	if cfg != nil && cfg.Safe.RPCTimeout > 0 {
		timeout = cfg.Safe.RPCTimeout
	}
	return &Clients{
		registry: registry,
		timeout:  timeout,
		dial:     dialEthclient,
		log:      log.With("component", "rpc"),
		clients:  make(map[uint64]Backend),
	}
}

// WithDialer replaces how backends are opened
func (c *Clients) WithDialer(dial DialFunc) *Clients {
	c.dial = dial
	return c
}

// Backend returns the connection for a chain, dialing on first use
func (c *Clients) Backend(ctx context.Context, chainID uint64) (Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[chainID]; ok {
		return client, nil
	}
	chain, err := c.registry.Resolve(chainID)
	if err != nil {
		return nil, err
	}
	if chain.RPCURL == "" {
		return nil, fmt.Errorf("no RPC URL configured for chain %s", chain.ID)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	client, err := c.dial(dialCtx, chain.RPCURL)
	if err != nil {
		return nil, domain.NewTransientError("rpc dial", fmt.Errorf("failed to connect to RPC: %w", err))
	}
	c.clients[chainID] = client
	c.log.Debug("rpc connected", "chain", chain.ID, "chain_id", chainID)
	return client, nil
}

// Close releases every dialed connection
func (c *Clients) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, client := range c.clients {
		if closer, ok := client.(interface{ Close() }); ok {
			closer.Close()
		}
		delete(c.clients, id)
	}
}

// RemoteChainID asks the chain's RPC endpoint which chain it serves
func (c *Clients) RemoteChainID(ctx context.Context, chainID uint64) (uint64, error) {
	client, err := c.Backend(ctx, chainID)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	remote, err := client.ChainID(ctx)
	if err != nil {
		return 0, domain.NewTransientError("rpc chain id", err)
	}
	return remote.Uint64(), nil
}

var _ usecase.ChainProbe = (*Clients)(nil)
