package usecase

import (
	"context"
	"math/big"

	"github.com/safepay-org/safepay/internal/chains"
	"github.com/safepay-org/safepay/internal/domain/models"
)

// ProgressEvent represents a progress update
type ProgressEvent struct {
	Stage    string
	Current  int
	Total    int
	Message  string
	Spinner  bool
	Metadata interface{}
}

// ProgressSink receives progress events
type ProgressSink interface {
	OnProgress(ctx context.Context, event ProgressEvent)
	Info(message string)
	Error(message string)
}

// NopProgress is a no-op implementation of ProgressSink
type NopProgress struct{}

func (NopProgress) OnProgress(context.Context, ProgressEvent) {}
func (NopProgress) Info(string)                               {}
func (NopProgress) Error(string)                              {}

// Progress stages
const (
	StageHandshake   = "handshake"
	StageValidating  = "validating"
	StageBuilding    = "building"
	StageSigning     = "signing"
	StageBroadcast   = "broadcasting"
	StageProposing   = "proposing"
	StageReconciling = "reconciling"
	StageWatching    = "watching"
	StageCompleted   = "completed"
)

// ChainRegistry resolves chain and token metadata
type ChainRegistry interface {
	Resolve(chainID uint64) (chains.Chain, error)
	ChainByID(id string) (chains.Chain, bool)
	ChainByNumericID(chainID uint64) (chains.Chain, bool)
	TokenByAddress(chainID uint64, address string) (chains.Token, bool)
	DefaultChain() chains.Chain
	Chains() []chains.Chain
}

// ---- Storage ports ----

// PaymentMethodRepository persists Safe-backed payment methods
type PaymentMethodRepository interface {
	CreatePaymentMethod(ctx context.Context, pm *models.PaymentMethod) error
	GetPaymentMethod(ctx context.Context, id string) (*models.PaymentMethod, error)
	FindActiveSafe(ctx context.Context, scope models.OwnerScope, safeAddress string, chainID uint64) (*models.PaymentMethod, error)
	ListActiveSafes(ctx context.Context, scope models.OwnerScope) ([]*models.PaymentMethod, error)
	UpdatePaymentMethod(ctx context.Context, pm *models.PaymentMethod) error
}

// OrganizationRepository maintains the Safe projection on organizations
type OrganizationRepository interface {
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)
	AttachSafeWallet(ctx context.Context, orgID, paymentMethodID string, safe models.SafeWalletDetails) error
	DetachSafeWallet(ctx context.Context, orgID, paymentMethodID string) error
}

// DocumentRepository reads invoices and payables and applies guarded status changes
type DocumentRepository interface {
	GetInvoice(ctx context.Context, id string) (*models.Invoice, error)
	GetPayable(ctx context.Context, id string) (*models.Payable, error)
	ListInvoices(ctx context.Context, scope models.OwnerScope) ([]*models.Invoice, error)
	ListPayables(ctx context.Context, scope models.OwnerScope) ([]*models.Payable, error)
	// MarkPaid sets status=paid, payment details and appends entry in one write,
	// only if the stored status still equals expected. Otherwise it returns domain.ErrStatusChanged.
	MarkPaid(ctx context.Context, ref models.DocumentRef, expected models.DocumentStatus, details models.PaymentDetails, entry models.StatusHistoryEntry) error
}

// LedgerRepository stores ledger projections keyed by owner and related document
type LedgerRepository interface {
	UpsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, ownerID string) ([]*models.LedgerEntry, error)
}

// SettlementRepository stores settlement records
type SettlementRepository interface {
	CreateSettlement(ctx context.Context, s *models.Settlement) error
	GetSettlement(ctx context.Context, id string) (*models.Settlement, error)
	FindBySafeTxHash(ctx context.Context, safeTxHash string) (*models.Settlement, error)
	FindByTxHash(ctx context.Context, txHash string) (*models.Settlement, error)
	ListSettlements(ctx context.Context, filter models.SettlementFilter) ([]*models.Settlement, error)
	// UpdateSettlement writes s only if the stored status still equals expected
	UpdateSettlement(ctx context.Context, s *models.Settlement, expected models.SettlementStatus) error
}

// SubscriptionRepository stores the subscription projection fed by webhooks
type SubscriptionRepository interface {
	GetSubscription(ctx context.Context, code string) (*models.Subscription, error)
	FindSubscriptionByCustomer(ctx context.Context, customerCode string) (*models.Subscription, error)
	SaveSubscription(ctx context.Context, sub *models.Subscription) error
	ChargeRecorded(ctx context.Context, reference string) (bool, error)
	// RecordCharge returns false when the reference was already recorded
	RecordCharge(ctx context.Context, charge *models.ProcessedCharge) (bool, error)
}

// ReplayGuard remembers webhook deliveries that were fully processed
type ReplayGuard interface {
	Seen(ctx context.Context, key string) (bool, error)
	MarkSeen(ctx context.Context, key string) error
}

// ---- Chain and Safe ports ----

// SafeService talks to the Safe Transaction Service
type SafeService interface {
	GetSafeInfo(ctx context.Context, chainID uint64, address string) (*models.SafeInfo, error)
	ProposeTransaction(ctx context.Context, proposal *models.SafeProposal) error
	GetExecutionInfo(ctx context.Context, chainID uint64, safeTxHash string) (*models.SafeExecutionInfo, error)
}

// ChainReader reads chain state over RPC
type ChainReader interface {
	ReadSafe(ctx context.Context, chainID uint64, address string) (*models.SafeInfo, error)
	GetReceipt(ctx context.Context, chainID uint64, txHash string) (*models.ReceiptStatus, error)
}

// BroadcastRequest is an unsigned call to send from the EOA signer
type BroadcastRequest struct {
	ChainID uint64
	To      string
	Data    []byte
	Value   *big.Int
}

// TransactionBroadcaster signs and sends EOA transactions
type TransactionBroadcaster interface {
	From() string
	Broadcast(ctx context.Context, req BroadcastRequest) (string, error)
}

// SafeTxBuilder turns calls into a hashed Safe transaction for a given nonce
type SafeTxBuilder interface {
	BuildProposal(chain chains.Chain, safeAddress string, nonce uint64, calls []models.SafeTxData) (*models.SafeProposal, error)
}

// ProposalSigner signs Safe transaction hashes as an owner or delegate
type ProposalSigner interface {
	Address() string
	SignSafeTxHash(safeTxHash string) (string, error)
}

// TransferEncoder encodes token transfer calldata
type TransferEncoder interface {
	EncodeTransfer(to string, amount *big.Int) ([]byte, error)
}

// ---- Wallet environment ports (per request or per CLI invocation) ----

// WalletEnvironment describes where the caller is running
type WalletEnvironment interface {
	IsEmbedded() bool
	HasInjectedProvider() bool
}

// InjectedProvider is a browser-style EOA provider
type InjectedProvider interface {
	RequestAccounts(ctx context.Context) ([]string, error)
	ChainID(ctx context.Context) (uint64, error)
}

// SafeAppBridge performs the Safe App handshake
type SafeAppBridge interface {
	Handshake(ctx context.Context) (*models.SafeAppInfo, error)
}

// WalletContext bundles the environment probes of one caller
type WalletContext struct {
	Env      WalletEnvironment
	Provider InjectedProvider
	Bridge   SafeAppBridge
}

// ---- Cross-cutting ----

// Metrics records operational counters
type Metrics interface {
	IncSettlement(kind, outcome string)
	IncLedgerSyncFailure(kind string)
	IncWebhookEvent(event, outcome string)
	IncWebhookRejection(reason string)
	IncSafeProposal(outcome string)
	IncHandshakeAttempt(outcome string)
}

// NopMetrics discards all counters
type NopMetrics struct{}

func (NopMetrics) IncSettlement(string, string)   {}
func (NopMetrics) IncLedgerSyncFailure(string)    {}
func (NopMetrics) IncWebhookEvent(string, string) {}
func (NopMetrics) IncWebhookRejection(string)     {}
func (NopMetrics) IncSafeProposal(string)         {}
func (NopMetrics) IncHandshakeAttempt(string)     {}

// InteractiveSelector handles interactive selection in the CLI
type InteractiveSelector interface {
	SelectSafe(ctx context.Context, safes []models.SafeWalletSummary, prompt string) (*models.SafeWalletSummary, error)
	SelectDocuments(ctx context.Context, docs []DocumentChoice, prompt string) ([]DocumentChoice, error)
}

// DocumentChoice is a selectable invoice or payable
type DocumentChoice struct {
	Ref   models.DocumentRef
	Label string
}

// ChainProbe reports the chain id an RPC endpoint answers with
type ChainProbe interface {
	RemoteChainID(ctx context.Context, chainID uint64) (uint64, error)
}
