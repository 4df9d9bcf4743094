package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/safepay-org/safepay/internal/app"
	"github.com/safepay-org/safepay/internal/cli/render"
	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/usecase"
)

// NewPayCmd creates the pay command group
func NewPayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Pay invoices and payables",
		Long: `Pay invoices and payables in stablecoins.

Documents are given as payable:<id> or invoice:<id> (a bare id is a payable).
When none are given, payable documents of the acting scope are offered for
selection.`,
	}
	cmd.AddCommand(newPayEOACmd())
	cmd.AddCommand(newPaySafeCmd())
	cmd.AddCommand(newPayBatchCmd())
	cmd.AddCommand(newPayHashCmd())
	return cmd
}

func newPayEOACmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eoa [document...]",
		Short: "Pay one document from the configured signer key",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			params, err := payParams(cmd, app, args)
			if err != nil {
				return err
			}
			wallet, err := app.Connector.ConnectMetaMask(cmd.Context(), (&walletFlags{}).context(app))
			if err != nil {
				return err
			}
			params.Wallet = wallet
			result, err := app.Payments.PayWithEOA(cmd.Context(), params)
			return renderPayment(cmd, app, result, err)
		},
	}
}

func newPaySafeCmd() *cobra.Command {
	var safeID string
	cmd := &cobra.Command{
		Use:   "safe [document...]",
		Short: "Propose a payment to a connected Safe",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			params, err := payParams(cmd, app, args)
			if err != nil {
				return err
			}
			if params.Wallet, err = safeWallet(cmd, app, params.Session, safeID); err != nil {
				return err
			}
			result, err := app.Payments.ProposeWithSafe(cmd.Context(), params)
			return renderPayment(cmd, app, result, err)
		},
	}
	cmd.Flags().StringVar(&safeID, "safe", "", "Payment method id or address of the Safe")
	return cmd
}

func newPayBatchCmd() *cobra.Command {
	var safeID string
	var eoa bool
	cmd := &cobra.Command{
		Use:   "batch [document...]",
		Short: "Pay several documents sharing a chain and token in one transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			params, err := payParams(cmd, app, args)
			if err != nil {
				return err
			}
			if eoa {
				params.Wallet, err = app.Connector.ConnectMetaMask(cmd.Context(), (&walletFlags{}).context(app))
			} else {
				params.Wallet, err = safeWallet(cmd, app, params.Session, safeID)
			}
			if err != nil {
				return err
			}
			result, err := app.Payments.CreateBatchPayment(cmd.Context(), usecase.BatchPaymentParams(params))
			return renderPayment(cmd, app, result, err)
		},
	}
	cmd.Flags().StringVar(&safeID, "safe", "", "Payment method id or address of the Safe")
	cmd.Flags().BoolVar(&eoa, "eoa", false, "Pay from the signer key instead of a Safe")
	return cmd
}

func newPayHashCmd() *cobra.Command {
	var txHash, from string
	var chainID uint64
	cmd := &cobra.Command{
		Use:   "hash <document>",
		Short: "Record a payment already broadcast elsewhere",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			session, err := sessionFromFlags(cmd)
			if err != nil {
				return err
			}
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			result, err := app.Recorder.PayWithHash(cmd.Context(), usecase.RecordPaymentParams{
				Session:     session,
				Ref:         ref,
				TxHash:      txHash,
				FromAddress: from,
				ChainID:     chainID,
			})
			if err != nil {
				return err
			}
			if app.Config.JSON {
				return render.JSON(cmd.OutOrStdout(), result)
			}
			return render.NewPaymentRenderer(cmd.OutOrStdout()).RenderRecord(result)
		},
	}
	cmd.Flags().StringVar(&txHash, "tx", "", "Transaction hash of the executed transfer")
	cmd.Flags().StringVar(&from, "from", "", "Sending address")
	cmd.Flags().Uint64Var(&chainID, "chain-id", 0, "Chain id the transfer was sent on")
	_ = cmd.MarkFlagRequired("tx")
	return cmd
}

// payParams resolves the session and the documents to pay
func payParams(cmd *cobra.Command, a *app.App, args []string) (usecase.PayParams, error) {
	session, err := sessionFromFlags(cmd)
	if err != nil {
		return usecase.PayParams{}, err
	}
	refs, err := parseRefs(args)
	if err != nil {
		return usecase.PayParams{}, err
	}
	if len(refs) == 0 {
		if refs, err = selectDocuments(cmd, a, session); err != nil {
			return usecase.PayParams{}, err
		}
	}
	return usecase.PayParams{Session: session, Refs: refs}, nil
}

func selectDocuments(cmd *cobra.Command, a *app.App, session models.Session) ([]models.DocumentRef, error) {
	scope, err := models.ResolveOwnerScope(session, "")
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	payables, err := a.Documents.ListPayables(ctx, scope)
	if err != nil {
		return nil, err
	}
	invoices, err := a.Documents.ListInvoices(ctx, scope)
	if err != nil {
		return nil, err
	}

	var choices []usecase.DocumentChoice
	add := func(kind models.DocumentKind, d *models.Document) {
		if !d.Status.Payable() {
			return
		}
		choices = append(choices, usecase.DocumentChoice{
			Ref:   models.DocumentRef{Kind: kind, ID: d.ID},
			Label: fmt.Sprintf("%s %s  %s %s  (%s)", kind, d.Number, d.Total.String(), d.Currency, d.Counterparty),
		})
	}
	for _, p := range payables {
		add(models.DocumentPayable, &p.Document)
	}
	for _, inv := range invoices {
		add(models.DocumentInvoice, &inv.Document)
	}

	selected, err := a.Selector.SelectDocuments(ctx, choices, "Select documents to pay")
	if err != nil {
		return nil, err
	}
	refs := make([]models.DocumentRef, 0, len(selected))
	for _, c := range selected {
		refs = append(refs, c.Ref)
	}
	return refs, nil
}

// safeWallet picks a connected Safe and presents it as a wallet
func safeWallet(cmd *cobra.Command, a *app.App, session models.Session, id string) (*models.ConnectedWallet, error) {
	list, err := a.ManageSafes.List(cmd.Context(), usecase.ListSafeWalletsParams{Session: session})
	if err != nil {
		return nil, err
	}
	var summary *models.SafeWalletSummary
	if id != "" {
		for i := range list.Wallets {
			w := &list.Wallets[i]
			if w.PaymentMethodID == id || equalFoldAddress(w.SafeAddress, id) {
				summary = w
				break
			}
		}
		if summary == nil {
			return nil, fmt.Errorf("safe %s is not connected", id)
		}
	} else if summary, err = a.Selector.SelectSafe(cmd.Context(), list.Wallets, "Select the paying Safe"); err != nil {
		return nil, err
	}

	return &models.ConnectedWallet{
		Address:   summary.SafeAddress,
		ChainID:   summary.ChainID,
		Type:      models.WalletSafe,
		Threshold: summary.Threshold,
		Owners:    summary.Owners,
	}, nil
}

func renderPayment(cmd *cobra.Command, a *app.App, result *usecase.PaymentResult, err error) error {
	if err != nil {
		return err
	}
	if a.Config.JSON {
		return render.JSON(cmd.OutOrStdout(), result)
	}
	return render.NewPaymentRenderer(cmd.OutOrStdout()).RenderPayment(result)
}
