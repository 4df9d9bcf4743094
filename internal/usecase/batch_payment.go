package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/safepay-org/safepay/internal/chains"
	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/models"
)

// BatchPaymentParams contains parameters for paying several documents in one transaction
type BatchPaymentParams struct {
	Session        models.Session
	OrganizationID string
	Wallet         *models.ConnectedWallet
	Refs           []models.DocumentRef
}

// CreateBatchPayment pays several documents sharing one (chain, token) pair with a single
// Safe proposal, or with a single EOA transfer when they share one payee.
func (e *PaymentEngine) CreateBatchPayment(ctx context.Context, params BatchPaymentParams) (*PaymentResult, error) {
	if len(params.Refs) == 0 {
		return nil, domain.NewValidationError("documents", "Select at least one invoice to pay")
	}
	return e.Pay(ctx, PayParams{
		Session:        params.Session,
		OrganizationID: params.OrganizationID,
		Wallet:         params.Wallet,
		Refs:           params.Refs,
	})
}

// loadedDocument is a payable document with its normalized target
type loadedDocument struct {
	Ref    models.DocumentRef
	Doc    *models.Document
	Target models.PaymentTarget
}

// loadDocuments reads every referenced document in the scope and checks it can be paid
func (e *PaymentEngine) loadDocuments(ctx context.Context, scope models.OwnerScope, refs []models.DocumentRef) ([]loadedDocument, error) {
	seen := make(map[models.DocumentRef]struct{}, len(refs))
	out := make([]loadedDocument, 0, len(refs))
	for _, ref := range refs {
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}

		doc, _, err := e.recorder.load(ctx, scope, ref)
		if err != nil {
			return nil, err
		}
		if doc.Status == models.StatusPaid {
			return nil, fmt.Errorf("%s %s: %w", ref.Kind, ref.ID, domain.ErrAlreadyPaid)
		}
		if !doc.Status.Payable() {
			return nil, fmt.Errorf("%w: %s %s is %s", domain.ErrInvalidTransition, ref.Kind, ref.ID, doc.Status)
		}
		if !doc.Total.IsPositive() {
			return nil, domain.NewValidationError("total", fmt.Sprintf("%s %s has no amount to pay", ref.Kind, ref.ID))
		}
		out = append(out, loadedDocument{Ref: ref, Doc: doc, Target: doc.Target()})
	}
	return out, nil
}

// validateTarget applies the payee, chain and token checks in order
func validateTarget(t models.PaymentTarget) error {
	if t.ToAddress == "" {
		return domain.NewValidationError("payeeAddress", "Payment address not found")
	}
	if !common.IsHexAddress(t.ToAddress) {
		return fmt.Errorf("%w: payee %q", domain.ErrInvalidAddress, t.ToAddress)
	}
	if t.ChainID == 0 {
		return domain.NewValidationError("chainId", "Chain ID is missing — contact vendor to update payment details")
	}
	if t.TokenAddress == "" {
		return domain.NewValidationError("tokenAddress", "Token address not found")
	}
	if !common.IsHexAddress(t.TokenAddress) {
		return fmt.Errorf("%w: token %q", domain.ErrInvalidAddress, t.TokenAddress)
	}
	return nil
}

// buildIntent validates the documents against the wallet and folds them into one intent.
// Heterogeneous batches are rejected before anything is encoded or signed.
func (e *PaymentEngine) buildIntent(docs []loadedDocument, wallet *models.ConnectedWallet) (*models.PaymentIntent, chains.Chain, error) {
	for _, d := range docs {
		if err := validateTarget(d.Target); err != nil {
			return nil, chains.Chain{}, err
		}
	}

	groups := lo.GroupBy(docs, func(d loadedDocument) string { return d.Target.Key() })
	if len(groups) > 1 {
		keys := lo.Keys(groups)
		sort.Strings(keys)
		return nil, chains.Chain{}, &domain.BatchMismatchError{Groups: keys}
	}

	target := docs[0].Target
	if wallet.ChainID != target.ChainID {
		return nil, chains.Chain{}, &domain.ChainMismatchError{Connected: wallet.ChainID, Required: target.ChainID}
	}

	chain, err := e.registry.Resolve(target.ChainID)
	if err != nil {
		return nil, chains.Chain{}, err
	}
	decimals := target.Decimals
	if token, ok := e.registry.TokenByAddress(target.ChainID, target.TokenAddress); ok {
		decimals = token.Decimals
	} else if decimals == 0 {
		return nil, chains.Chain{}, fmt.Errorf("%w: %s on chain %d", domain.ErrTokenNotFound, target.TokenAddress, target.ChainID)
	}

	intent := &models.PaymentIntent{
		TokenAddress:  target.TokenAddress,
		ToAddress:     target.ToAddress,
		ChainID:       target.ChainID,
		TokenDecimals: decimals,
	}

	order := make([]string, 0, len(docs))
	sums := make(map[string]decimal.Decimal, len(docs))
	for _, d := range docs {
		switch d.Ref.Kind {
		case models.DocumentInvoice:
			intent.InvoiceIDs = append(intent.InvoiceIDs, d.Ref.ID)
		case models.DocumentPayable:
			intent.PayableIDs = append(intent.PayableIDs, d.Ref.ID)
		}
		to := strings.ToLower(d.Target.ToAddress)
		if _, ok := sums[to]; !ok {
			order = append(order, to)
		}
		sums[to] = sums[to].Add(d.Doc.Total)
		intent.Amount = intent.Amount.Add(d.Doc.Total)
	}
	intent.Transfers = lo.Map(order, func(to string, _ int) models.Transfer {
		return models.Transfer{To: to, Amount: sums[to]}
	})
	if !intent.Amount.IsPositive() {
		return nil, chains.Chain{}, domain.NewValidationError("amount", "amount must be greater than zero")
	}
	return intent, chain, nil
}
