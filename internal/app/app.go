package app

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/safepay-org/safepay/internal/domain/config"
	"github.com/safepay-org/safepay/internal/server"
	"github.com/safepay-org/safepay/internal/usecase"
)

// App is the main application container that holds all use cases
type App struct {
	// Configuration
	Config *config.RuntimeConfig
	Log    *slog.Logger

	// Shared dependencies
	Selector    usecase.InteractiveSelector
	Settlements usecase.SettlementRepository
	Documents   usecase.DocumentRepository
	SafeService usecase.SafeService
	ChainReader usecase.ChainReader
	Injected    usecase.InjectedProvider

	// Use cases
	ImportSafe  *usecase.ImportSafe
	ManageSafes *usecase.ManageSafes
	Connector   *usecase.WalletConnector
	Payments    *usecase.PaymentEngine
	Recorder    *usecase.RecordPayment
	Gate        *usecase.WebhookGate
	Webhooks    *usecase.ProcessWebhook
	Watcher     *usecase.SettlementWatcher
	ListChains  *usecase.ListChains
	ShowConfig  *usecase.ShowConfig
}

// NewApp creates a new application instance with all use cases
func NewApp(
	cfg *config.RuntimeConfig,
	log *slog.Logger,
	selector usecase.InteractiveSelector,
	settlements usecase.SettlementRepository,
	documents usecase.DocumentRepository,
	safeService usecase.SafeService,
	chainReader usecase.ChainReader,
	injected usecase.InjectedProvider,
	importSafe *usecase.ImportSafe,
	manageSafes *usecase.ManageSafes,
	connector *usecase.WalletConnector,
	payments *usecase.PaymentEngine,
	recorder *usecase.RecordPayment,
	gate *usecase.WebhookGate,
	webhooks *usecase.ProcessWebhook,
	watcher *usecase.SettlementWatcher,
	listChains *usecase.ListChains,
	showConfig *usecase.ShowConfig,
) (*App, error) {
	return &App{
		Config:      cfg,
		Log:         log,
		Selector:    selector,
		Settlements: settlements,
		Documents:   documents,
		SafeService: safeService,
		ChainReader: chainReader,
		Injected:    injected,
		ImportSafe:  importSafe,
		ManageSafes: manageSafes,
		Connector:   connector,
		Payments:    payments,
		Recorder:    recorder,
		Gate:        gate,
		Webhooks:    webhooks,
		Watcher:     watcher,
		ListChains:  listChains,
		ShowConfig:  showConfig,
	}, nil
}

// Server builds the HTTP surface over the wired use cases
func (a *App) Server() *server.Server {
	return server.New(a.Config, server.Deps{
		ImportSafe:  a.ImportSafe,
		ManageSafes: a.ManageSafes,
		Connector:   a.Connector,
		Payments:    a.Payments,
		Recorder:    a.Recorder,
		Settlements: a.Settlements,
		Gate:        a.Gate,
		Webhooks:    a.Webhooks,
		SafeService: a.SafeService,
		ChainReader: a.ChainReader,
		Injected:    a.Injected,
		Metrics:     promhttp.Handler(),
	}, a.Log)
}
