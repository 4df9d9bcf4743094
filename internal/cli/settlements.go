package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/safepay-org/safepay/internal/cli/render"
	"github.com/safepay-org/safepay/internal/domain/models"
)

// NewSettlementsCmd creates the settlements command group
func NewSettlementsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "settlements",
		Aliases: []string{"settlement"},
		Short:   "Inspect and advance payment settlements",
	}
	cmd.AddCommand(newSettlementsListCmd())
	cmd.AddCommand(newSettlementsWatchCmd())
	return cmd
}

func newSettlementsListCmd() *cobra.Command {
	var statuses []string
	var kind string
	var chainID uint64
	var limit int

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List settlement records",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			filter := models.SettlementFilter{
				Kind:    models.SettlementKind(kind),
				ChainID: chainID,
				Limit:   limit,
			}
			for _, s := range statuses {
				status := models.SettlementStatus(s)
				if !status.Valid() {
					return fmt.Errorf("unknown settlement status %q", s)
				}
				filter.Statuses = append(filter.Statuses, status)
			}

			settlements, err := app.Settlements.ListSettlements(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if app.Config.JSON {
				return render.JSON(cmd.OutOrStdout(), settlements)
			}
			return render.NewSettlementsRenderer(cmd.OutOrStdout()).RenderList(settlements)
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (proposed, signed, executed, confirmed, failed)")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind (eoa or safe)")
	cmd.Flags().Uint64Var(&chainID, "chain-id", 0, "Filter by chain id")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of records")
	return cmd
}

func newSettlementsWatchCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll open settlements and reconcile executed Safe transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			if once {
				summary, err := app.Watcher.Tick(cmd.Context())
				if err != nil {
					return err
				}
				if app.Config.JSON {
					return render.JSON(cmd.OutOrStdout(), summary)
				}
				return render.NewSettlementsRenderer(cmd.OutOrStdout()).RenderSummary(summary)
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			app.Watcher.Start(ctx)
			<-ctx.Done()
			app.Watcher.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single pass and exit")
	return cmd
}
