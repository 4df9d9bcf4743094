package cli

import (
	"github.com/spf13/cobra"

	"github.com/safepay-org/safepay/internal/cli/render"
	"github.com/safepay-org/safepay/internal/usecase"
)

// NewChainsCmd creates the chains command
func NewChainsCmd() *cobra.Command {
	var probe bool
	cmd := &cobra.Command{
		Use:     "chains",
		Aliases: []string{"networks"},
		Short:   "List supported chains and tokens",
		Long: `List the chains of the registry: the builtin chains merged with the
optional TOML overlay configured as chains.overlay_path.

With --probe each chain's RPC is dialed and the chain id it answers
with is compared to the registry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			result, err := app.ListChains.Run(cmd.Context(), usecase.ListChainsParams{Probe: probe})
			if err != nil {
				return err
			}
			if app.Config.JSON {
				return render.JSON(cmd.OutOrStdout(), result)
			}
			return render.NewChainsRenderer(cmd.OutOrStdout()).Render(result)
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "Dial each RPC and verify its chain id")
	return cmd
}
