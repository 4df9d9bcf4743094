package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/models"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// PaymentEvidence is the on-chain proof that a document was paid
type PaymentEvidence struct {
	TxHash      string
	FromAddress string
	ChainID     uint64
	Method      string
}

// RecordPaymentParams contains parameters for recording a payment by hash
type RecordPaymentParams struct {
	Session        models.Session
	OrganizationID string
	Ref            models.DocumentRef
	TxHash         string
	FromAddress    string
	ChainID        uint64
}

// RecordPaymentResult describes the outcome of one settlement
type RecordPaymentResult struct {
	Ref          models.DocumentRef
	Status       models.DocumentStatus
	AlreadyPaid  bool
	Notice       string
	LedgerSynced bool
	LedgerError  string
	// RelatedInvoice is set when settling a payable also settled its linked invoice
	RelatedInvoice *RecordPaymentResult
}

// RecordPayment transitions invoices and payables to paid and projects them to the ledger
type RecordPayment struct {
	docs        DocumentRepository
	ledger      LedgerRepository
	settlements SettlementRepository
	metrics     Metrics
	log         *slog.Logger
	now         func() time.Time
}

// NewRecordPayment creates a new RecordPayment use case
func NewRecordPayment(
	docs DocumentRepository,
	ledger LedgerRepository,
	settlements SettlementRepository,
	metrics Metrics,
	log *slog.Logger,
) *RecordPayment {
	return &RecordPayment{
		docs:        docs,
		ledger:      ledger,
		settlements: settlements,
		metrics:     metrics,
		log:         log.With("component", "reconciler"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run records txHash as the payment of the referenced document.
// Recording the same document twice is a success with an "already paid" notice.
func (uc *RecordPayment) Run(ctx context.Context, params RecordPaymentParams) (*RecordPaymentResult, error) {
	scope, err := models.ResolveOwnerScope(params.Session, params.OrganizationID)
	if err != nil {
		return nil, err
	}
	if err := validateTxHash(params.TxHash); err != nil {
		return nil, err
	}
	return uc.Apply(ctx, scope, params.Ref, PaymentEvidence{
		TxHash:      params.TxHash,
		FromAddress: params.FromAddress,
		ChainID:     params.ChainID,
	})
}

// PayWithHash is the path where the client already broadcast an EOA transfer and reports its hash.
// Safe proposal hashes are refused; a settlement record is kept so the receipt can be confirmed later.
func (uc *RecordPayment) PayWithHash(ctx context.Context, params RecordPaymentParams) (*RecordPaymentResult, error) {
	scope, err := models.ResolveOwnerScope(params.Session, params.OrganizationID)
	if err != nil {
		return nil, err
	}
	if err := validateTxHash(params.TxHash); err != nil {
		return nil, err
	}
	if existing, err := uc.settlements.FindBySafeTxHash(ctx, params.TxHash); err == nil {
		uc.log.Warn("refusing safe proposal hash as payment evidence", "safe_tx_hash", params.TxHash, "settlement_id", existing.ID)
		return nil, domain.ErrProposalHashNotSettlement
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to check settlement: %w", err)
	}

	result, err := uc.Apply(ctx, scope, params.Ref, PaymentEvidence{
		TxHash:      params.TxHash,
		FromAddress: params.FromAddress,
		ChainID:     params.ChainID,
	})
	if err != nil {
		return nil, err
	}
	if result.AlreadyPaid {
		return result, nil
	}

	if err := uc.trackHash(ctx, scope, params); err != nil {
		// the document is already paid; losing the receipt watch is not fatal
		uc.log.Error("failed to track reported transaction", "tx_hash", params.TxHash, "error", err)
	}
	return result, nil
}

func (uc *RecordPayment) trackHash(ctx context.Context, scope models.OwnerScope, params RecordPaymentParams) error {
	if _, err := uc.settlements.FindByTxHash(ctx, params.TxHash); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	now := uc.now()
	s := &models.Settlement{
		ID:          uuid.NewString(),
		Kind:        models.SettlementEOA,
		Status:      models.SettlementExecuted,
		TxHash:      strings.ToLower(params.TxHash),
		FromAddress: strings.ToLower(params.FromAddress),
		ChainID:     params.ChainID,
		Scope:       scope,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExecutedAt:  &now,
	}
	if params.Ref.Kind == models.DocumentInvoice {
		s.InvoiceIDs = []string{params.Ref.ID}
	} else {
		s.PayableIDs = []string{params.Ref.ID}
	}
	return uc.settlements.CreateSettlement(ctx, s)
}

// Apply settles one document for an already resolved scope
func (uc *RecordPayment) Apply(ctx context.Context, scope models.OwnerScope, ref models.DocumentRef, evidence PaymentEvidence) (*RecordPaymentResult, error) {
	doc, related, err := uc.load(ctx, scope, ref)
	if err != nil {
		return nil, err
	}

	result, err := uc.settle(ctx, scope, scope.Actor(), ref, doc, evidence)
	if err != nil {
		return nil, err
	}
	if related != "" {
		result.RelatedInvoice = uc.settleRelatedInvoice(ctx, scope, ref, related, evidence)
	}
	return result, nil
}

// settleRelatedInvoice marks the invoice linked from a payable paid. It is loaded
// by the id stored on the payable and projected to the ledger under its own owner.
func (uc *RecordPayment) settleRelatedInvoice(ctx context.Context, payer models.OwnerScope, payable models.DocumentRef, invoiceID string, evidence PaymentEvidence) *RecordPaymentResult {
	invoiceRef := models.DocumentRef{Kind: models.DocumentInvoice, ID: invoiceID}
	inv, err := uc.docs.GetInvoice(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			uc.log.Warn("related invoice not found", "payable_id", payable.ID, "invoice_id", invoiceID)
		} else {
			uc.log.Warn("failed to load related invoice", "invoice_id", invoiceID, "error", err)
		}
		return nil
	}

	owner, err := documentOwner(&inv.Document)
	if err != nil {
		uc.log.Warn("related invoice has no owner", "invoice_id", invoiceID)
		return nil
	}
	result, err := uc.settle(ctx, owner, payer.Actor(), invoiceRef, &inv.Document, evidence)
	if err != nil {
		uc.log.Warn("failed to settle related invoice", "payable_id", payable.ID, "invoice_id", invoiceID, "error", err)
		return nil
	}
	return result
}

// documentOwner is the tenant scope a stored document belongs to
func documentOwner(d *models.Document) (models.OwnerScope, error) {
	userID := d.UserID
	if userID == "" {
		userID = d.IssuerID
	}
	return models.ResolveOwnerScope(models.Session{
		UserID:         userID,
		Email:          d.OwnerEmail,
		OrganizationID: d.OrganizationID,
	}, "")
}

func (uc *RecordPayment) settle(ctx context.Context, scope models.OwnerScope, actor string, ref models.DocumentRef, doc *models.Document, evidence PaymentEvidence) (*RecordPaymentResult, error) {
	if doc.Status == models.StatusPaid {
		return alreadyPaid(ref), nil
	}
	if !doc.Status.Payable() {
		return nil, fmt.Errorf("%w: %s %s is %s", domain.ErrInvalidTransition, ref.Kind, ref.ID, doc.Status)
	}

	now := uc.now()
	method := evidence.Method
	if method == "" {
		method = "crypto"
	}
	details := models.PaymentDetails{
		Method:      method,
		TxHash:      strings.ToLower(evidence.TxHash),
		FromAddress: strings.ToLower(evidence.FromAddress),
		ChainID:     evidence.ChainID,
		PaidAt:      &now,
	}
	entry := models.StatusHistoryEntry{
		Status:    models.StatusPaid,
		ChangedBy: actor,
		ChangedAt: now,
		Notes:     fmt.Sprintf("Paid via transaction %s", details.TxHash),
	}

	if err := uc.docs.MarkPaid(ctx, ref, doc.Status, details, entry); err != nil {
		if !errors.Is(err, domain.ErrStatusChanged) {
			uc.metrics.IncSettlement(string(ref.Kind), "error")
			return nil, fmt.Errorf("failed to mark %s paid: %w", ref.Kind, err)
		}
		current, _, loadErr := uc.load(ctx, scope, ref)
		if loadErr == nil && current.Status == models.StatusPaid {
			return alreadyPaid(ref), nil
		}
		return nil, fmt.Errorf("failed to mark %s paid: %w", ref.Kind, err)
	}
	uc.metrics.IncSettlement(string(ref.Kind), "paid")
	uc.log.Info("document marked paid", "kind", ref.Kind, "id", ref.ID, "tx_hash", details.TxHash, "scope", scope.ID)

	result := &RecordPaymentResult{Ref: ref, Status: models.StatusPaid, LedgerSynced: true}
	doc.Status = models.StatusPaid
	doc.PaymentDetails = details
	if err := uc.syncLedger(ctx, scope, ref, doc); err != nil {
		result.LedgerSynced = false
		result.LedgerError = err.Error()
		uc.metrics.IncLedgerSyncFailure(string(ref.Kind))
		uc.log.Error("ledger sync failed", "event", "ledger_sync_failed", "kind", ref.Kind, "id", ref.ID, "owner_id", scope.ID, "error", err)
	}
	return result, nil
}

func (uc *RecordPayment) syncLedger(ctx context.Context, scope models.OwnerScope, ref models.DocumentRef, doc *models.Document) error {
	target := doc.Target()
	entryID := models.LedgerEntryNumber(ref.Kind, doc.Number, doc.ID)
	entry := &models.LedgerEntry{
		EntryID:          entryID,
		OwnerID:          scope.ID,
		OwnerType:        scope.Type,
		CounterpartyName: doc.Counterparty,
		Amount:           doc.Total,
		Currency:         doc.Currency,
		Status:           models.LedgerPaid,
		PaymentDetails: models.LedgerPaymentDetails{
			Method:      doc.PaymentDetails.Method,
			Network:     target.Network,
			Address:     target.ToAddress,
			TxHash:      doc.PaymentDetails.TxHash,
			FromAddress: doc.PaymentDetails.FromAddress,
			ChainID:     doc.PaymentDetails.ChainID,
		},
		TransactionHash: doc.PaymentDetails.TxHash,
		Notes:           fmt.Sprintf("Payment for %s", entryID),
	}
	id := doc.ID
	if ref.Kind == models.DocumentPayable {
		entry.Type = models.LedgerPayable
		entry.CounterpartyType = "vendor"
		entry.RelatedPayableID = &id
	} else {
		entry.Type = models.LedgerReceivable
		entry.CounterpartyType = "client"
		entry.RelatedInvoiceID = &id
	}
	return uc.ledger.UpsertLedgerEntry(ctx, entry)
}

// load returns the document and, for payables, the linked invoice id.
// Documents outside the scope are reported as not found.
func (uc *RecordPayment) load(ctx context.Context, scope models.OwnerScope, ref models.DocumentRef) (*models.Document, string, error) {
	switch ref.Kind {
	case models.DocumentPayable:
		p, err := uc.docs.GetPayable(ctx, ref.ID)
		if err != nil {
			return nil, "", err
		}
		if !p.VisibleTo(scope) {
			return nil, "", fmt.Errorf("payable %s: %w", ref.ID, domain.ErrNotFound)
		}
		return &p.Document, p.RelatedInvoiceID, nil
	case models.DocumentInvoice:
		inv, err := uc.docs.GetInvoice(ctx, ref.ID)
		if err != nil {
			return nil, "", err
		}
		if !inv.VisibleTo(scope) {
			return nil, "", fmt.Errorf("invoice %s: %w", ref.ID, domain.ErrNotFound)
		}
		return &inv.Document, "", nil
	default:
		return nil, "", domain.NewValidationError("kind", fmt.Sprintf("unknown document kind %q", ref.Kind))
	}
}

// alreadyPaid reports a no-op settlement. The ledger was not touched, so LedgerSynced stays false.
func alreadyPaid(ref models.DocumentRef) *RecordPaymentResult {
	return &RecordPaymentResult{
		Ref:         ref,
		Status:      models.StatusPaid,
		AlreadyPaid: true,
		Notice:      "already paid",
	}
}

func validateTxHash(hash string) error {
	if !txHashPattern.MatchString(hash) {
		return domain.NewValidationError("txHash", "Transaction hash must be a 0x-prefixed 32-byte hex string")
	}
	return nil
}
