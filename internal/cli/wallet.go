package cli

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/safepay-org/safepay/internal/adapters/wallet"
	"github.com/safepay-org/safepay/internal/app"
	"github.com/safepay-org/safepay/internal/cli/render"
	"github.com/safepay-org/safepay/internal/usecase"
)

// NewWalletCmd creates the wallet command group
func NewWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Detect and connect signing wallets",
	}
	cmd.AddCommand(newWalletDetectCmd())
	cmd.AddCommand(newWalletConnectCmd())
	return cmd
}

// walletFlags describe a wallet context the way the web client reports it
type walletFlags struct {
	safeAddress string
	chainID     uint64
	readOnly    bool
}

func (f *walletFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.safeAddress, "safe", "", "Safe address to connect through the Safe handshake")
	cmd.Flags().Uint64Var(&f.chainID, "chain-id", 0, "Numeric chain id of the wallet")
	cmd.Flags().BoolVar(&f.readOnly, "read-only", false, "Treat the Safe session as read-only")
}

func (f *walletFlags) context(a *app.App) usecase.WalletContext {
	claims := wallet.Claims{
		Embedded:    f.safeAddress != "",
		SafeAddress: f.safeAddress,
		ChainID:     f.chainID,
		ReadOnly:    f.readOnly,
	}
	return claims.Context(a.SafeService, a.ChainReader, a.Injected)
}

func newWalletDetectCmd() *cobra.Command {
	flags := &walletFlags{}
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Report which wallets are available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			available := app.Connector.Detect(flags.context(app))
			if app.Config.JSON {
				return render.JSON(cmd.OutOrStdout(), available)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Safe App:  %s\n", yesNo(available.HasSafe))
			fmt.Fprintf(out, "EOA key:   %s\n", yesNo(available.HasMetaMask))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newWalletConnectCmd() *cobra.Command {
	flags := &walletFlags{}
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect the local key, or a Safe with --safe",
		Long: `Connect a signing wallet.

Without --safe the configured signer key is connected as an EOA wallet.
With --safe the Safe handshake runs against live Safe state and the Safe
is stored as a payment method of the acting scope.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			w := flags.context(app)

			if flags.safeAddress == "" {
				connected, err := app.Connector.ConnectMetaMask(ctx, w)
				if err != nil {
					return err
				}
				if app.Config.JSON {
					return render.JSON(cmd.OutOrStdout(), connected)
				}
				fmt.Fprintln(cmd.OutOrStdout(), render.FormatSuccess(fmt.Sprintf("Connected %s on chain %d", connected.Address, connected.ChainID)))
				return nil
			}

			session, err := sessionFromFlags(cmd)
			if err != nil {
				return err
			}
			connected, err := app.Connector.ConnectSafe(ctx, w)
			if err != nil {
				return err
			}
			result, err := app.ImportSafe.ConnectSafeWallet(ctx, usecase.ImportSafeParams{
				Session:     session,
				SafeAddress: connected.Address,
				ChainID:     strconv.FormatUint(connected.ChainID, 10),
			})
			if err != nil {
				return err
			}
			if app.Config.JSON {
				return render.JSON(cmd.OutOrStdout(), map[string]any{"wallet": connected, "paymentMethod": result.PaymentMethod})
			}
			if options := app.Connector.PaymentOptions(connected); !options.CanPay {
				fmt.Fprintln(cmd.OutOrStdout(), render.FormatWarning(options.Reason))
			}
			return render.NewSafesRenderer(cmd.OutOrStdout()).RenderImport(result)
		},
	}
	flags.register(cmd)
	return cmd
}

func yesNo(b bool) string {
	if b {
		return color.New(color.FgGreen).Sprint("available")
	}
	return color.New(color.Faint).Sprint("not available")
}
