package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/safepay-org/safepay/internal/adapters/progress"
	"github.com/safepay-org/safepay/internal/app"
	"github.com/safepay-org/safepay/internal/config"
	domainconfig "github.com/safepay-org/safepay/internal/domain/config"
	"github.com/safepay-org/safepay/internal/logging"
	"github.com/safepay-org/safepay/internal/usecase"
)

// contextKey is the type for context keys
type contextKey string

const (
	// appKey is the context key for the app instance
	appKey contextKey = "app"
)

// longRunning commands are not bounded by the global timeout
var longRunning = map[string]bool{
	"serve": true,
	"watch": true,
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "safepay",
		Short: "Crypto settlement for invoices and payables",
		Long: `safepay settles invoices and payables in stablecoins, either from a local
EOA key or through a Safe multisig, reconciles them against on-chain
execution, and processes Paystack subscription webhooks.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip for help/version commands
			if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			if err := config.LoadEnvFiles("."); err != nil {
				return err
			}

			// Set up viper
			v := config.SetupViper(cmd)

			cfg, err := config.Provider(v)
			if err != nil {
				return err
			}
			sink := newProgressSink(cmd, cfg)

			// Initialize app with DI
			appInstance, cleanup, err := app.InitApp(v, sink)
			if err != nil {
				return fmt.Errorf("failed to initialize app: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)

			// Add timeout if configured
			cancel := context.CancelFunc(func() {})
			if appInstance.Config.Timeout > 0 && !longRunning[cmd.Name()] {
				ctx, cancel = context.WithTimeout(ctx, appInstance.Config.Timeout)
			}
			// Release resources on command completion
			cmd.PostRun = func(cmd *cobra.Command, args []string) {
				if s, ok := sink.(*progress.SpinnerSink); ok {
					s.Stop()
				}
				cancel()
				cleanup()
			}

			cmd.SetContext(ctx)
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug output")
	rootCmd.PersistentFlags().Bool("non-interactive", false, "Disable interactive prompts")
	rootCmd.PersistentFlags().Bool("json", false, "Output results as JSON")
	rootCmd.PersistentFlags().String("config", "", "Path to a safepay config file")
	rootCmd.PersistentFlags().String("user", "", "Acting user id")
	rootCmd.PersistentFlags().String("email", "", "Acting user email")
	rootCmd.PersistentFlags().String("org", "", "Organization id to act for")

	// Add command groups
	rootCmd.AddGroup(&cobra.Group{
		ID:    "main",
		Title: "Main Commands",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "management",
		Title: "Management Commands",
	})

	// Main commands
	for _, c := range []*cobra.Command{NewPayCmd(), NewSafeCmd(), NewWalletCmd(), NewSettlementsCmd(), NewServeCmd()} {
		c.GroupID = "main"
		rootCmd.AddCommand(c)
	}

	// Management commands
	for _, c := range []*cobra.Command{NewChainsCmd(), NewConfigCmd()} {
		c.GroupID = "management"
		rootCmd.AddCommand(c)
	}

	// Version command
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// newProgressSink picks a spinner for interactive terminals and log output otherwise
func newProgressSink(cmd *cobra.Command, cfg *domainconfig.RuntimeConfig) usecase.ProgressSink {
	if cfg.NonInteractive || cfg.JSON || longRunning[cmd.Name()] {
		return progress.NewLogSink(logging.New(os.Stderr, cfg))
	}
	return progress.NewSpinnerSink()
}

// getApp retrieves the app instance from the command context
func getApp(cmd *cobra.Command) (*app.App, error) {
	appInstance := cmd.Context().Value(appKey)
	if appInstance == nil {
		return nil, fmt.Errorf("app not initialized")
	}

	app, ok := appInstance.(*app.App)
	if !ok {
		return nil, fmt.Errorf("invalid app instance")
	}

	return app, nil
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
