package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/safepay-org/safepay/internal/chains"
	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/models"
)

// PayParams contains parameters for paying one or more documents
type PayParams struct {
	Session        models.Session
	OrganizationID string
	Wallet         *models.ConnectedWallet
	Refs           []models.DocumentRef
}

// PaymentResult is what the caller learns synchronously about a payment.
// For Safe payments only SafeTxHash is set; TxHash appears once the proposal executes.
type PaymentResult struct {
	Kind        models.SettlementKind
	Flow        *models.PaymentFlow
	Intent      *models.PaymentIntent
	Settlement  *models.Settlement
	TxHash      string
	SafeTxHash  string
	ExplorerURL string
	Records     []*RecordPaymentResult
}

// PaymentEngine validates payment intents and submits them through an EOA or a Safe
type PaymentEngine struct {
	registry    ChainRegistry
	settlements SettlementRepository
	methods     PaymentMethodRepository
	service     SafeService
	reader      ChainReader
	builder     SafeTxBuilder
	signer      ProposalSigner
	broadcaster TransactionBroadcaster
	encoder     TransferEncoder
	recorder    *RecordPayment
	metrics     Metrics
	progress    ProgressSink
	log         *slog.Logger
}

// NewPaymentEngine creates a new PaymentEngine. signer, broadcaster and reader may be nil.
func NewPaymentEngine(
	registry ChainRegistry,
	settlements SettlementRepository,
	methods PaymentMethodRepository,
	service SafeService,
	reader ChainReader,
	builder SafeTxBuilder,
	signer ProposalSigner,
	broadcaster TransactionBroadcaster,
	encoder TransferEncoder,
	recorder *RecordPayment,
	metrics Metrics,
	progress ProgressSink,
	log *slog.Logger,
) *PaymentEngine {
	return &PaymentEngine{
		registry:    registry,
		settlements: settlements,
		methods:     methods,
		service:     service,
		reader:      reader,
		builder:     builder,
		signer:      signer,
		broadcaster: broadcaster,
		encoder:     encoder,
		recorder:    recorder,
		metrics:     metrics,
		progress:    progress,
		log:         log.With("component", "payment_engine"),
	}
}

// Pay dispatches to the Safe or EOA path based on the connected wallet
func (e *PaymentEngine) Pay(ctx context.Context, params PayParams) (*PaymentResult, error) {
	if params.Wallet == nil || params.Wallet.Address == "" {
		return nil, domain.NewValidationError("wallet", "Connect a wallet before paying")
	}
	if params.Wallet.IsSafe() {
		return e.ProposeWithSafe(ctx, params)
	}
	return e.PayWithEOA(ctx, params)
}

// PayWithEOA encodes a token transfer, broadcasts it from the local signer and
// records the transaction hash against every document straight away.
func (e *PaymentEngine) PayWithEOA(ctx context.Context, params PayParams) (*PaymentResult, error) {
	if params.Wallet == nil || params.Wallet.IsSafe() {
		return nil, domain.NewValidationError("wallet", "An EOA wallet is required for direct payments")
	}
	if e.broadcaster == nil {
		return nil, domain.ErrNoSigner
	}

	flow := models.NewPaymentFlow()
	scope, intent, chain, err := e.prepare(ctx, params, flow)
	if err != nil {
		return nil, err
	}
	if len(intent.Transfers) != 1 {
		flow.Fail()
		return nil, domain.NewValidationError("documents", "EOA batch payments require a single payee; use a Safe wallet")
	}

	transfer := intent.Transfers[0]
	units, err := models.ToBaseUnits(transfer.Amount, intent.TokenDecimals)
	if err != nil {
		flow.Fail()
		return nil, err
	}
	data, err := e.encoder.EncodeTransfer(transfer.To, units)
	if err != nil {
		flow.Fail()
		return nil, fmt.Errorf("failed to encode transfer: %w", err)
	}

	if err := flow.Advance(models.PaymentBroadcasting); err != nil {
		return nil, err
	}
	e.progress.OnProgress(ctx, ProgressEvent{Stage: StageBroadcast, Message: "Broadcasting transfer", Spinner: true})
	txHash, err := e.broadcaster.Broadcast(ctx, BroadcastRequest{
		ChainID: intent.ChainID,
		To:      intent.TokenAddress,
		Data:    data,
	})
	if err != nil {
		flow.Fail()
		e.metrics.IncSettlement(string(models.SettlementEOA), "broadcast_failed")
		return nil, fmt.Errorf("failed to broadcast transfer: %w", err)
	}
	txHash = strings.ToLower(txHash)
	if err := flow.Advance(models.PaymentSubmitted); err != nil {
		return nil, err
	}
	e.log.Info("transfer broadcast", "tx_hash", txHash, "chain", intent.ChainID, "amount", transfer.Amount.String(), "to", transfer.To)

	from := strings.ToLower(e.broadcaster.From())
	now := time.Now().UTC()
	settlement := &models.Settlement{
		ID:           uuid.NewString(),
		Kind:         models.SettlementEOA,
		Status:       models.SettlementExecuted,
		TxHash:       txHash,
		FromAddress:  from,
		ChainID:      intent.ChainID,
		TokenAddress: intent.TokenAddress,
		InvoiceIDs:   intent.InvoiceIDs,
		PayableIDs:   intent.PayableIDs,
		Scope:        scope,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExecutedAt:   &now,
	}
	if err := e.settlements.CreateSettlement(ctx, settlement); err != nil {
		e.log.Error("failed to store settlement", "tx_hash", txHash, "error", err)
	}

	result := &PaymentResult{
		Kind:        models.SettlementEOA,
		Flow:        flow,
		Intent:      intent,
		Settlement:  settlement,
		TxHash:      txHash,
		ExplorerURL: chain.TxURL(txHash),
	}

	e.progress.OnProgress(ctx, ProgressEvent{Stage: StageReconciling, Message: "Recording payment"})
	evidence := PaymentEvidence{TxHash: txHash, FromAddress: from, ChainID: intent.ChainID}
	for _, ref := range settlement.Refs() {
		record, err := e.recorder.Apply(ctx, scope, ref, evidence)
		if err != nil {
			// the transfer is on its way; the watcher confirms it and the hash remains the evidence
			e.log.Error("failed to record broadcast payment", "kind", ref.Kind, "id", ref.ID, "tx_hash", txHash, "error", err)
			continue
		}
		result.Records = append(result.Records, record)
	}
	e.progress.OnProgress(ctx, ProgressEvent{Stage: StageCompleted, Message: "Payment submitted"})
	return result, nil
}

// ProposeWithSafe builds a Safe transaction for the documents, signs its hash as proposer and
// submits it to the Transaction Service. Documents stay unpaid until the proposal executes.
func (e *PaymentEngine) ProposeWithSafe(ctx context.Context, params PayParams) (*PaymentResult, error) {
	wallet := params.Wallet
	if wallet == nil || !wallet.IsSafe() {
		return nil, domain.NewValidationError("wallet", "A Safe wallet is required for proposals")
	}
	if wallet.IsReadOnly {
		return nil, domain.ErrSafeReadOnly
	}

	flow := models.NewPaymentFlow()
	scope, intent, chain, err := e.prepare(ctx, params, flow)
	if err != nil {
		return nil, err
	}
	method, err := e.methods.FindActiveSafe(ctx, scope, wallet.Address, wallet.ChainID)
	if err != nil {
		flow.Fail()
		if errors.Is(err, domain.ErrNotFound) {
			e.log.Warn("safe is not connected to the paying scope", "safe", wallet.Address, "chain_id", wallet.ChainID, "scope", scope.ID)
			return nil, fmt.Errorf("safe %s: %w", wallet.Address, domain.ErrAccessDenied)
		}
		return nil, fmt.Errorf("failed to load safe payment method: %w", err)
	}
	wallet = connectedSafe(wallet, method)
	if e.signer == nil {
		flow.Fail()
		return nil, domain.ErrNoSigner
	}

	calls := make([]models.SafeTxData, 0, len(intent.Transfers))
	for _, transfer := range intent.Transfers {
		units, err := models.ToBaseUnits(transfer.Amount, intent.TokenDecimals)
		if err != nil {
			flow.Fail()
			return nil, err
		}
		data, err := e.encoder.EncodeTransfer(transfer.To, units)
		if err != nil {
			flow.Fail()
			return nil, fmt.Errorf("failed to encode transfer: %w", err)
		}
		calls = append(calls, models.SafeTxData{
			To:        intent.TokenAddress,
			Value:     "0",
			Data:      hexutil.Encode(data),
			Operation: models.SafeOperationCall,
		})
	}

	e.progress.OnProgress(ctx, ProgressEvent{Stage: StageBuilding, Message: "Reading Safe nonce", Spinner: true})
	info, err := fetchSafeState(ctx, e.service, e.reader, intent.ChainID, wallet.Address)
	if err != nil {
		flow.Fail()
		return nil, err
	}
	if !strings.EqualFold(info.Address, wallet.Address) && info.Address != "" {
		flow.Fail()
		return nil, fmt.Errorf("safe service returned %s for %s", info.Address, wallet.Address)
	}

	proposal, err := e.builder.BuildProposal(chain, strings.ToLower(wallet.Address), info.Nonce, calls)
	if err != nil {
		flow.Fail()
		return nil, fmt.Errorf("failed to build safe transaction: %w", err)
	}

	e.progress.OnProgress(ctx, ProgressEvent{Stage: StageSigning, Message: "Signing Safe transaction hash"})
	signature, err := e.signer.SignSafeTxHash(proposal.SafeTxHash)
	if err != nil {
		flow.Fail()
		return nil, fmt.Errorf("failed to sign safe transaction: %w", err)
	}
	proposal.Sender = strings.ToLower(e.signer.Address())
	proposal.Signature = signature
	if !containsFold(info.Owners, proposal.Sender) {
		e.log.Debug("proposer is not a safe owner, relying on delegate rights", "sender", proposal.Sender, "safe", wallet.Address)
	}

	e.progress.OnProgress(ctx, ProgressEvent{Stage: StageProposing, Message: "Proposing to Safe Transaction Service", Spinner: true})
	if err := e.service.ProposeTransaction(ctx, proposal); err != nil {
		flow.Fail()
		if errors.Is(err, domain.ErrNonceConflict) {
			e.metrics.IncSafeProposal("nonce_conflict")
			e.log.Warn("safe nonce conflict", "safe", wallet.Address, "nonce", proposal.Nonce)
			return nil, fmt.Errorf("nonce %d already used on safe %s: %w", proposal.Nonce, wallet.Address, err)
		}
		e.metrics.IncSafeProposal("error")
		return nil, fmt.Errorf("failed to propose safe transaction: %w", err)
	}
	e.metrics.IncSafeProposal("proposed")
	if err := flow.Advance(models.PaymentProposedSafe); err != nil {
		return nil, err
	}

	threshold := info.Threshold
	if threshold == 0 {
		threshold = wallet.Threshold
	}
	now := time.Now().UTC()
	settlement := &models.Settlement{
		ID:                    uuid.NewString(),
		Kind:                  models.SettlementSafe,
		Status:                models.SettlementProposed,
		SafeTxHash:            strings.ToLower(proposal.SafeTxHash),
		FromAddress:           proposal.Sender,
		ChainID:               intent.ChainID,
		SafeAddress:           strings.ToLower(wallet.Address),
		SafeNonce:             proposal.Nonce,
		TokenAddress:          intent.TokenAddress,
		InvoiceIDs:            intent.InvoiceIDs,
		PayableIDs:            intent.PayableIDs,
		Scope:                 scope,
		Confirmations:         1,
		ConfirmationsRequired: threshold,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := e.settlements.CreateSettlement(ctx, settlement); err != nil {
		return nil, fmt.Errorf("safe transaction %s proposed but not stored: %w", settlement.SafeTxHash, err)
	}

	e.log.Info("safe transaction proposed", "safe", settlement.SafeAddress, "safe_tx_hash", settlement.SafeTxHash,
		"nonce", settlement.SafeNonce, "threshold", threshold, "documents", len(settlement.Refs()))
	e.progress.OnProgress(ctx, ProgressEvent{Stage: StageCompleted, Message: "Proposal awaiting co-signers"})

	return &PaymentResult{
		Kind:       models.SettlementSafe,
		Flow:       flow,
		Intent:     intent,
		Settlement: settlement,
		SafeTxHash: settlement.SafeTxHash,
	}, nil
}

// prepare resolves the scope, loads and validates documents, and moves the flow to proposing
func (e *PaymentEngine) prepare(ctx context.Context, params PayParams, flow *models.PaymentFlow) (models.OwnerScope, *models.PaymentIntent, chains.Chain, error) {
	scope, err := models.ResolveOwnerScope(params.Session, params.OrganizationID)
	if err != nil {
		return models.OwnerScope{}, nil, chains.Chain{}, err
	}
	if len(params.Refs) == 0 {
		return scope, nil, chains.Chain{}, domain.NewValidationError("documents", "Select at least one invoice to pay")
	}
	if err := flow.Advance(models.PaymentWalletConnected); err != nil {
		return scope, nil, chains.Chain{}, err
	}

	e.progress.OnProgress(ctx, ProgressEvent{Stage: StageValidating, Message: "Validating payment details"})
	docs, err := e.loadDocuments(ctx, scope, params.Refs)
	if err != nil {
		return scope, nil, chains.Chain{}, err
	}
	intent, chain, err := e.buildIntent(docs, params.Wallet)
	if err != nil {
		return scope, nil, chains.Chain{}, err
	}
	if err := flow.Advance(models.PaymentProposing); err != nil {
		return scope, nil, chains.Chain{}, err
	}
	return scope, intent, chain, nil
}

// connectedSafe takes owners and threshold from the stored payment method
func connectedSafe(wallet *models.ConnectedWallet, method *models.PaymentMethod) *models.ConnectedWallet {
	out := *wallet
	out.Address = method.Safe.SafeAddress
	out.Owners = method.Safe.Owners
	out.Threshold = method.Safe.Threshold
	return &out
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(candidate, v) {
			return true
		}
	}
	return false
}
