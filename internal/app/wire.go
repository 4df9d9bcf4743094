//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
	"github.com/spf13/viper"

	"github.com/safepay-org/safepay/internal/adapters"
	"github.com/safepay-org/safepay/internal/config"
	"github.com/safepay-org/safepay/internal/logging"
	"github.com/safepay-org/safepay/internal/usecase"
)

// InitApp creates a fully wired App instance
func InitApp(v *viper.Viper, sink usecase.ProgressSink) (*App, func(), error) {
	wire.Build(
		config.Provider,
		logging.LoggingSet,

		// Adapters
		adapters.AllAdapters,

		// Use cases
		usecase.NewImportSafe,
		usecase.NewManageSafes,
		usecase.NewWalletConnector,
		usecase.NewPaymentEngine,
		usecase.NewRecordPayment,
		usecase.NewWebhookGate,
		usecase.NewProcessWebhook,
		usecase.NewSettlementWatcher,
		usecase.NewListChains,
		usecase.NewShowConfig,

		// App
		NewApp,
	)
	return nil, nil, nil
}
