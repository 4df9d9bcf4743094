package cli

import (
	"github.com/spf13/cobra"

	"github.com/safepay-org/safepay/internal/cli/render"
)

// NewConfigCmd creates the config command
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective safepay configuration",
		Long: `Show the effective configuration after merging defaults, the safepay
config file, SAFEPAY_* environment variables and flags.

Secrets (signer key, webhook secret, Redis password, Safe API key and
DSN passwords) are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default action is to show config
			return showConfig(cmd)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd)
		},
	})

	return cmd
}

// showConfig displays the current configuration
func showConfig(cmd *cobra.Command) error {
	// Get app from context
	app, err := getApp(cmd)
	if err != nil {
		return err
	}

	result, err := app.ShowConfig.Run(cmd.Context())
	if err != nil {
		return err
	}
	if app.Config.JSON {
		return render.JSON(cmd.OutOrStdout(), result.Config)
	}
	return render.NewConfigRenderer(cmd.OutOrStdout()).RenderConfig(result)
}
