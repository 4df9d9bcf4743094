package adapters

import (
	"fmt"
	"log/slog"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/safepay-org/safepay/internal/adapters/abi"
	"github.com/safepay-org/safepay/internal/adapters/blockchain"
	"github.com/safepay-org/safepay/internal/adapters/cache"
	"github.com/safepay-org/safepay/internal/adapters/interactive"
	"github.com/safepay-org/safepay/internal/adapters/metrics"
	"github.com/safepay-org/safepay/internal/adapters/repository/gormstore"
	"github.com/safepay-org/safepay/internal/adapters/repository/memory"
	"github.com/safepay-org/safepay/internal/adapters/safe"
	"github.com/safepay-org/safepay/internal/adapters/wallet"
	"github.com/safepay-org/safepay/internal/chains"
	"github.com/safepay-org/safepay/internal/domain/config"
	"github.com/safepay-org/safepay/internal/usecase"
)

// Store is the set of repository ports a single backend serves
type Store interface {
	usecase.PaymentMethodRepository
	usecase.OrganizationRepository
	usecase.DocumentRepository
	usecase.LedgerRepository
	usecase.SettlementRepository
	usecase.SubscriptionRepository
}

// ProvideStore opens the configured document store
func ProvideStore(cfg *config.RuntimeConfig) (Store, func(), error) {
	switch cfg.Store.Driver {
	case "", "memory":
		return memory.NewStore(), func() {}, nil
	case gormstore.DriverPostgres, gormstore.DriverSQLite:
		s, err := gormstore.Open(cfg)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func ProvidePaymentMethods(s Store) usecase.PaymentMethodRepository { return s }
func ProvideOrganizations(s Store) usecase.OrganizationRepository   { return s }
func ProvideDocuments(s Store) usecase.DocumentRepository           { return s }
func ProvideLedger(s Store) usecase.LedgerRepository                { return s }
func ProvideSettlements(s Store) usecase.SettlementRepository       { return s }
func ProvideSubscriptions(s Store) usecase.SubscriptionRepository   { return s }

// ProvideChainRegistry builds the builtin registry, merged with the configured overlay
func ProvideChainRegistry(cfg *config.RuntimeConfig) (*chains.Registry, error) {
	defaultID := cfg.Chains.Default
	if defaultID == "" {
		defaultID = chains.DefaultChainID
	}
	if cfg.Chains.OverlayPath != "" {
		return chains.LoadOverlay(chains.BuiltinChains, defaultID, cfg.Chains.OverlayPath)
	}
	return chains.NewRegistry(chains.BuiltinChains, defaultID)
}

// ProvideReplayGuard returns a Redis guard, or nil when Redis is not configured
func ProvideReplayGuard(cfg *config.RuntimeConfig) (usecase.ReplayGuard, func(), error) {
	guard, cleanup, err := cache.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	if guard == nil {
		return nil, cleanup, nil
	}
	return guard, cleanup, nil
}

// ProvideMetrics registers counters on the default Prometheus registry
func ProvideMetrics() *metrics.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideKeySigner loads the configured EOA key. A missing key yields a nil signer.
func ProvideKeySigner(cfg *config.RuntimeConfig, registry *chains.Registry, log *slog.Logger) (*wallet.KeySigner, error) {
	if cfg.Signer.PrivateKey == "" {
		log.Debug("no signer key configured, EOA payments and Safe proposals are disabled")
		return nil, nil
	}
	return wallet.NewKeySigner(cfg.Signer.PrivateKey, registry.DefaultChain().ChainID)
}

// ProvideProposalSigner keeps a nil key signer a nil interface
func ProvideProposalSigner(s *wallet.KeySigner) usecase.ProposalSigner {
	if s == nil {
		return nil
	}
	return s
}

// ProvideInjectedProvider exposes the key signer as the fallback injected provider
func ProvideInjectedProvider(s *wallet.KeySigner) usecase.InjectedProvider {
	if s == nil {
		return nil
	}
	return s
}

// ProvideBroadcaster returns an EOA broadcaster, or nil without a signer
func ProvideBroadcaster(clients *blockchain.Clients, s *wallet.KeySigner, log *slog.Logger) usecase.TransactionBroadcaster {
	if s == nil {
		return nil
	}
	return blockchain.NewBroadcaster(clients, s.Key(), log)
}

// ProvideChainClients opens lazily dialed RPC clients
func ProvideChainClients(cfg *config.RuntimeConfig, registry usecase.ChainRegistry, log *slog.Logger) (*blockchain.Clients, func()) {
	clients := blockchain.NewClients(cfg, registry, log)
	return clients, clients.Close
}

// StoreSet provides the repository ports
var StoreSet = wire.NewSet(
	ProvideStore,
	ProvidePaymentMethods,
	ProvideOrganizations,
	ProvideDocuments,
	ProvideLedger,
	ProvideSettlements,
	ProvideSubscriptions,
	ProvideReplayGuard,
)

// ChainSet provides the chain registry and RPC-backed implementations
var ChainSet = wire.NewSet(
	ProvideChainRegistry,
	wire.Bind(new(usecase.ChainRegistry), new(*chains.Registry)),

	ProvideChainClients,
	blockchain.NewReader,
	wire.Bind(new(usecase.ChainReader), new(*blockchain.Reader)),
	wire.Bind(new(usecase.ChainProbe), new(*blockchain.Clients)),
	ProvideBroadcaster,
)

// SafeSet provides Safe Transaction Service and SafeTx implementations
var SafeSet = wire.NewSet(
	safe.NewClient,
	wire.Bind(new(usecase.SafeService), new(*safe.Client)),

	safe.NewTxBuilder,
	wire.Bind(new(usecase.SafeTxBuilder), new(*safe.TxBuilder)),

	abi.NewERC20Codec,
	wire.Bind(new(usecase.TransferEncoder), new(*abi.ERC20Codec)),
)

// WalletSet provides the local signer
var WalletSet = wire.NewSet(
	ProvideKeySigner,
	ProvideProposalSigner,
	ProvideInjectedProvider,
)

// InteractiveSet provides interactive implementations
var InteractiveSet = wire.NewSet(
	interactive.NewSelectorAdapter,
	wire.Bind(new(usecase.InteractiveSelector), new(*interactive.SelectorAdapter)),
)

// MetricsSet provides Prometheus counters
var MetricsSet = wire.NewSet(
	ProvideMetrics,
	wire.Bind(new(usecase.Metrics), new(*metrics.Metrics)),
)

// AllAdapters includes all adapter sets
var AllAdapters = wire.NewSet(
	StoreSet,
	ChainSet,
	SafeSet,
	WalletSet,
	InteractiveSet,
	MetricsSet,
)
