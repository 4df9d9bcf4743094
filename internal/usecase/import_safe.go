package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/safepay-org/safepay/internal/chains"
	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/models"
)

// ImportSafeParams contains parameters for importing an existing Safe
type ImportSafeParams struct {
	Session        models.Session
	OrganizationID string
	SafeAddress    string
	// ChainID is a registry id ("celo") or a numeric chain id; empty selects the default chain
	ChainID string
	Name    string
}

// ImportSafeResult contains the imported or already connected Safe
type ImportSafeResult struct {
	PaymentMethod    *models.PaymentMethod
	AlreadyConnected bool
	Message          string
}

// ImportSafe imports a Safe as a payment method using live on-chain state
type ImportSafe struct {
	registry ChainRegistry
	service  SafeService
	reader   ChainReader
	methods  PaymentMethodRepository
	orgs     OrganizationRepository
	progress ProgressSink
	log      *slog.Logger
}

// NewImportSafe creates a new ImportSafe use case. reader may be nil.
func NewImportSafe(
	registry ChainRegistry,
	service SafeService,
	reader ChainReader,
	methods PaymentMethodRepository,
	orgs OrganizationRepository,
	progress ProgressSink,
	log *slog.Logger,
) *ImportSafe {
	return &ImportSafe{
		registry: registry,
		service:  service,
		reader:   reader,
		methods:  methods,
		orgs:     orgs,
		progress: progress,
		log:      log.With("component", "safe_resolver"),
	}
}

// Run imports the Safe, or returns the record already active for the scope
func (uc *ImportSafe) Run(ctx context.Context, params ImportSafeParams) (*ImportSafeResult, error) {
	scope, err := models.ResolveOwnerScope(params.Session, params.OrganizationID)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(params.SafeAddress) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, params.SafeAddress)
	}
	address := strings.ToLower(params.SafeAddress)

	chain, err := resolveChain(uc.registry, params.ChainID)
	if err != nil {
		return nil, err
	}

	uc.log.Info("importing safe", "safe", address, "chain", chain.ID, "scope", scope.ID)
	uc.progress.OnProgress(ctx, ProgressEvent{Stage: StageValidating, Message: "Fetching Safe state", Spinner: true})

	info, err := fetchSafeState(ctx, uc.service, uc.reader, chain.ChainID, address)
	if err != nil {
		return nil, err
	}

	details := models.SafeWalletDetails{
		SafeAddress:      address,
		Owners:           lowerAll(info.Owners),
		Threshold:        info.Threshold,
		Version:          info.Version,
		Modules:          lowerAll(info.Modules),
		Nonce:            info.Nonce,
		ChainID:          chain.ChainID,
		ConnectionMethod: models.ConnectionImported,
	}
	if err := details.Validate(); err != nil {
		return nil, err
	}

	existing, err := uc.methods.FindActiveSafe(ctx, scope, address, chain.ChainID)
	switch {
	case err == nil:
		uc.log.Warn("safe wallet already connected", "safe", address, "payment_method_id", existing.ID)
		return &ImportSafeResult{PaymentMethod: existing, AlreadyConnected: true, Message: "Safe wallet already connected"}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("failed to look up existing safe: %w", err)
	}

	name := strings.TrimSpace(params.Name)
	if name == "" {
		name = models.SafeWalletName(address)
	}
	now := time.Now().UTC()
	pm := &models.PaymentMethod{
		ID:             uuid.NewString(),
		Name:           name,
		Type:           models.PaymentMethodCrypto,
		OrganizationID: scope.OrganizationID(),
		UserID:         scope.UserKey(),
		IsActive:       true,
		Tags:           []string{"safe", "multisig"},
		Safe:           details,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := uc.methods.CreatePaymentMethod(ctx, pm); err != nil {
		if errors.Is(err, domain.ErrAlreadyConnected) {
			// lost an import race; the winner's record is the answer
			if winner, findErr := uc.methods.FindActiveSafe(ctx, scope, address, chain.ChainID); findErr == nil {
				return &ImportSafeResult{PaymentMethod: winner, AlreadyConnected: true, Message: "Safe wallet already connected"}, nil
			}
		}
		return nil, fmt.Errorf("failed to save payment method: %w", err)
	}

	if scope.IsOrganization() {
		if err := uc.orgs.AttachSafeWallet(ctx, scope.ID, pm.ID, details); err != nil {
			return nil, fmt.Errorf("failed to attach safe to organization: %w", err)
		}
	}

	uc.log.Info("safe wallet imported", "safe", address, "payment_method_id", pm.ID, "owners", len(details.Owners), "threshold", details.Threshold)
	uc.progress.OnProgress(ctx, ProgressEvent{Stage: StageCompleted, Message: "Safe wallet imported"})

	return &ImportSafeResult{PaymentMethod: pm, Message: "Safe wallet imported successfully"}, nil
}

// ConnectSafeWallet is the manual connection path; it imports the Safe.
// A Safe App connection is completed by authorizing the imported record.
func (uc *ImportSafe) ConnectSafeWallet(ctx context.Context, params ImportSafeParams) (*ImportSafeResult, error) {
	return uc.Run(ctx, params)
}

// fetchSafeState reads the Safe from the Transaction Service and, when a chain reader is wired,
// prefers the on-chain owners, threshold and nonce.
func fetchSafeState(ctx context.Context, service SafeService, reader ChainReader, chainID uint64, address string) (*models.SafeInfo, error) {
	info, err := service.GetSafeInfo(ctx, chainID, address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch safe info: %w", err)
	}
	if reader == nil {
		return info, nil
	}

	onChain, err := reader.ReadSafe(ctx, chainID, address)
	if err != nil {
		return nil, fmt.Errorf("failed to read safe on-chain: %w", err)
	}
	merged := *info
	merged.Owners = onChain.Owners
	merged.Threshold = onChain.Threshold
	if onChain.Nonce > merged.Nonce {
		merged.Nonce = onChain.Nonce
	}
	if onChain.Version != "" {
		merged.Version = onChain.Version
	}
	return &merged, nil
}

// resolveChain accepts a registry id, a numeric chain id, or "" for the default chain
func resolveChain(registry ChainRegistry, ref string) (chains.Chain, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return registry.DefaultChain(), nil
	}
	if n, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return registry.Resolve(n)
	}
	c, ok := registry.ChainByID(ref)
	if !ok {
		return chains.Chain{}, fmt.Errorf("%w: %s", domain.ErrChainNotFound, ref)
	}
	return c, nil
}

func lowerAll(values []string) []string {
	return lo.Map(values, func(v string, _ int) string { return strings.ToLower(v) })
}
