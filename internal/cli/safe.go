package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/safepay-org/safepay/internal/app"
	"github.com/safepay-org/safepay/internal/cli/render"
	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/usecase"
)

// NewSafeCmd creates the safe command group
func NewSafeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "safe",
		Short: "Manage connected Safe wallets",
		Long: `Import, list and maintain Safe multisig wallets used as payment methods.

Safe state (owners, threshold, nonce) is always read from the Safe
Transaction Service or the chain, never taken from the caller.`,
	}

	cmd.AddCommand(newSafeImportCmd())
	cmd.AddCommand(newSafeListCmd())
	cmd.AddCommand(newSafeScopeCmd("disconnect", "Disconnect a Safe wallet", "Safe wallet disconnected",
		func(a *app.App, cmd *cobra.Command, p usecase.SafeScopeParams) (*models.PaymentMethod, error) {
			return a.ManageSafes.Disconnect(cmd.Context(), p)
		}))
	cmd.AddCommand(newSafeScopeCmd("authorize", "Mark a Safe as authorized for Safe App payments", "Safe App authorized",
		func(a *app.App, cmd *cobra.Command, p usecase.SafeScopeParams) (*models.PaymentMethod, error) {
			return a.ManageSafes.Authorize(cmd.Context(), p)
		}))
	cmd.AddCommand(newSafeRefreshCmd())

	return cmd
}

func newSafeImportCmd() *cobra.Command {
	var chainID, name string

	cmd := &cobra.Command{
		Use:   "import <safe-address>",
		Short: "Import an existing Safe as a payment method",
		Example: `  safepay safe import 0x1234...abcd --org org-1 --user u1
  safepay safe import 0x1234...abcd --chain base --name Treasury`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			session, err := sessionFromFlags(cmd)
			if err != nil {
				return err
			}

			result, err := app.ImportSafe.Run(cmd.Context(), usecase.ImportSafeParams{
				Session:     session,
				SafeAddress: args[0],
				ChainID:     chainID,
				Name:        name,
			})
			if err != nil {
				return err
			}
			if app.Config.JSON {
				return render.JSON(cmd.OutOrStdout(), result)
			}
			return render.NewSafesRenderer(cmd.OutOrStdout()).RenderImport(result)
		},
	}

	cmd.Flags().StringVar(&chainID, "chain", "", "Chain id or registry name (defaults to the default chain)")
	cmd.Flags().StringVar(&name, "name", "", "Display name for the payment method")
	return cmd
}

func newSafeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List connected Safe wallets",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			session, err := sessionFromFlags(cmd)
			if err != nil {
				return err
			}

			result, err := app.ManageSafes.List(cmd.Context(), usecase.ListSafeWalletsParams{Session: session})
			if err != nil {
				return err
			}
			if app.Config.JSON {
				return render.JSON(cmd.OutOrStdout(), result.Wallets)
			}
			return render.NewSafesRenderer(cmd.OutOrStdout()).RenderList(result)
		},
	}
}

type safeAction func(a *app.App, cmd *cobra.Command, p usecase.SafeScopeParams) (*models.PaymentMethod, error)

func newSafeScopeCmd(use, short, done string, action safeAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [payment-method-id]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			params, err := resolveSafeScope(cmd, app, args, "Select a Safe to "+use)
			if err != nil {
				return err
			}
			pm, err := action(app, cmd, params)
			if err != nil {
				return err
			}
			if app.Config.JSON {
				return render.JSON(cmd.OutOrStdout(), pm)
			}
			return render.NewSafesRenderer(cmd.OutOrStdout()).RenderUpdated(done, pm)
		},
	}
}

func newSafeRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [payment-method-id]",
		Short: "Re-read owners, threshold and nonce of a Safe",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			params, err := resolveSafeScope(cmd, app, args, "Select a Safe to refresh")
			if err != nil {
				return err
			}
			result, err := app.ManageSafes.Refresh(cmd.Context(), params)
			if err != nil {
				return err
			}
			if app.Config.JSON {
				return render.JSON(cmd.OutOrStdout(), result)
			}
			return render.NewSafesRenderer(cmd.OutOrStdout()).RenderRefresh(result)
		},
	}
}

// resolveSafeScope uses the given id, or prompts for one of the scope's Safes
func resolveSafeScope(cmd *cobra.Command, a *app.App, args []string, prompt string) (usecase.SafeScopeParams, error) {
	session, err := sessionFromFlags(cmd)
	if err != nil {
		return usecase.SafeScopeParams{}, err
	}
	params := usecase.SafeScopeParams{Session: session}
	if len(args) == 1 {
		params.PaymentMethodID = args[0]
		return params, nil
	}

	selected, err := selectSafe(cmd, a, session, prompt)
	if err != nil {
		return params, err
	}
	params.PaymentMethodID = selected.PaymentMethodID
	return params, nil
}

func selectSafe(cmd *cobra.Command, a *app.App, session models.Session, prompt string) (*models.SafeWalletSummary, error) {
	list, err := a.ManageSafes.List(cmd.Context(), usecase.ListSafeWalletsParams{Session: session})
	if err != nil {
		return nil, err
	}
	selected, err := a.Selector.SelectSafe(cmd.Context(), list.Wallets, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to select safe: %w", err)
	}
	return selected, nil
}
