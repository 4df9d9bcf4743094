package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/models"
)

// SafeScopeParams identifies a stored Safe within the caller's scope
type SafeScopeParams struct {
	Session         models.Session
	OrganizationID  string
	PaymentMethodID string
}

// ListSafeWalletsParams contains parameters for listing connected Safes
type ListSafeWalletsParams struct {
	Session        models.Session
	OrganizationID string
}

// ListSafeWalletsResult contains the active Safes of a scope
type ListSafeWalletsResult struct {
	Scope   models.OwnerScope
	Wallets []models.SafeWalletSummary
}

// SafeDrift describes how a stored Safe differs from live state
type SafeDrift struct {
	OwnersChanged     bool
	ThresholdChanged  bool
	NonceAdvanced     bool
	PreviousOwners    []string
	PreviousThreshold int
	PreviousNonce     uint64
}

// Any reports whether anything differed
func (d SafeDrift) Any() bool {
	return d.OwnersChanged || d.ThresholdChanged || d.NonceAdvanced
}

// RefreshSafeResult contains the refreshed record and what changed
type RefreshSafeResult struct {
	PaymentMethod *models.PaymentMethod
	Drift         SafeDrift
}

// ManageSafes lists, disconnects, authorizes and refreshes stored Safes
type ManageSafes struct {
	service SafeService
	reader  ChainReader
	methods PaymentMethodRepository
	orgs    OrganizationRepository
	log     *slog.Logger
}

// NewManageSafes creates a new ManageSafes use case. reader may be nil.
func NewManageSafes(
	service SafeService,
	reader ChainReader,
	methods PaymentMethodRepository,
	orgs OrganizationRepository,
	log *slog.Logger,
) *ManageSafes {
	return &ManageSafes{
		service: service,
		reader:  reader,
		methods: methods,
		orgs:    orgs,
		log:     log.With("component", "safe_resolver"),
	}
}

// List returns the active Safes visible to the caller
func (uc *ManageSafes) List(ctx context.Context, params ListSafeWalletsParams) (*ListSafeWalletsResult, error) {
	scope, err := models.ResolveOwnerScope(params.Session, params.OrganizationID)
	if err != nil {
		return nil, err
	}
	methods, err := uc.methods.ListActiveSafes(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list safe wallets: %w", err)
	}
	uc.log.Debug("safe wallets fetched", "scope", scope.ID, "count", len(methods))
	return &ListSafeWalletsResult{
		Scope: scope,
		Wallets: lo.Map(methods, func(pm *models.PaymentMethod, _ int) models.SafeWalletSummary {
			return pm.Summary()
		}),
	}, nil
}

// Disconnect soft-deletes a Safe and removes it from the organization set.
// The record itself stays queryable for audit.
func (uc *ManageSafes) Disconnect(ctx context.Context, params SafeScopeParams) (*models.PaymentMethod, error) {
	pm, scope, err := uc.load(ctx, params)
	if err != nil {
		return nil, err
	}

	if pm.IsActive {
		pm.IsActive = false
		pm.UpdatedAt = time.Now().UTC()
		if err := uc.methods.UpdatePaymentMethod(ctx, pm); err != nil {
			return nil, fmt.Errorf("failed to deactivate payment method: %w", err)
		}
	}
	if scope.IsOrganization() {
		if err := uc.orgs.DetachSafeWallet(ctx, scope.ID, pm.ID); err != nil {
			return nil, fmt.Errorf("failed to detach safe from organization: %w", err)
		}
	}

	uc.log.Info("safe wallet disconnected", "payment_method_id", pm.ID, "safe", pm.Safe.SafeAddress, "scope", scope.ID)
	return pm, nil
}

// Authorize marks a stored Safe as connected through the Safe App
func (uc *ManageSafes) Authorize(ctx context.Context, params SafeScopeParams) (*models.PaymentMethod, error) {
	pm, scope, err := uc.load(ctx, params)
	if err != nil {
		return nil, err
	}
	if !pm.IsActive {
		return nil, domain.ErrAccessDenied
	}

	now := time.Now().UTC()
	pm.Safe.ConnectionMethod = models.ConnectionSafeApp
	pm.Safe.SafeAppAuthorized = true
	pm.Safe.AuthorizedAt = &now
	pm.UpdatedAt = now
	if err := uc.methods.UpdatePaymentMethod(ctx, pm); err != nil {
		return nil, fmt.Errorf("failed to authorize safe app: %w", err)
	}

	uc.log.Info("safe app authorized", "payment_method_id", pm.ID, "scope", scope.ID)
	return pm, nil
}

// Refresh re-reads live Safe state and stores owners, threshold and a non-decreasing nonce
func (uc *ManageSafes) Refresh(ctx context.Context, params SafeScopeParams) (*RefreshSafeResult, error) {
	pm, scope, err := uc.load(ctx, params)
	if err != nil {
		return nil, err
	}
	if !pm.IsActive {
		return nil, domain.ErrAccessDenied
	}

	info, err := fetchSafeState(ctx, uc.service, uc.reader, pm.Safe.ChainID, pm.Safe.SafeAddress)
	if err != nil {
		return nil, err
	}

	owners := lowerAll(info.Owners)
	drift := SafeDrift{
		PreviousOwners:    pm.Safe.Owners,
		PreviousThreshold: pm.Safe.Threshold,
		PreviousNonce:     pm.Safe.Nonce,
		OwnersChanged:     !sameMembers(pm.Safe.Owners, owners),
		ThresholdChanged:  pm.Safe.Threshold != info.Threshold,
		NonceAdvanced:     info.Nonce > pm.Safe.Nonce,
	}

	updated := pm.Safe
	updated.Owners = owners
	updated.Threshold = info.Threshold
	if info.Version != "" {
		updated.Version = info.Version
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if err := updated.UpdateNonce(info.Nonce); err != nil {
		// a lagging indexer must not roll the stored nonce back
		uc.log.Warn("observed safe nonce behind stored nonce", "payment_method_id", pm.ID, "error", err)
	}

	if !drift.Any() {
		return &RefreshSafeResult{PaymentMethod: pm, Drift: drift}, nil
	}

	pm.Safe = updated
	pm.UpdatedAt = time.Now().UTC()
	if err := uc.methods.UpdatePaymentMethod(ctx, pm); err != nil {
		return nil, fmt.Errorf("failed to store refreshed safe: %w", err)
	}
	if scope.IsOrganization() && (drift.OwnersChanged || drift.ThresholdChanged) {
		if err := uc.orgs.AttachSafeWallet(ctx, scope.ID, pm.ID, pm.Safe); err != nil {
			return nil, fmt.Errorf("failed to update organization safe projection: %w", err)
		}
	}

	uc.log.Info("safe wallet refreshed", "payment_method_id", pm.ID,
		"owners_changed", drift.OwnersChanged, "threshold_changed", drift.ThresholdChanged, "nonce", pm.Safe.Nonce)
	return &RefreshSafeResult{PaymentMethod: pm, Drift: drift}, nil
}

// load fetches a payment method and checks it against the caller's scope.
// Unknown ids and foreign records are indistinguishable to the caller.
func (uc *ManageSafes) load(ctx context.Context, params SafeScopeParams) (*models.PaymentMethod, models.OwnerScope, error) {
	scope, err := models.ResolveOwnerScope(params.Session, params.OrganizationID)
	if err != nil {
		return nil, models.OwnerScope{}, err
	}
	if strings.TrimSpace(params.PaymentMethodID) == "" {
		return nil, scope, domain.ErrAccessDenied
	}

	pm, err := uc.methods.GetPaymentMethod(ctx, params.PaymentMethodID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			uc.log.Warn("payment method not found or access denied", "payment_method_id", params.PaymentMethodID, "scope", scope.ID)
			return nil, scope, domain.ErrAccessDenied
		}
		return nil, scope, fmt.Errorf("failed to load payment method: %w", err)
	}
	if !pm.VisibleTo(scope) || pm.Safe.SafeAddress == "" {
		uc.log.Warn("payment method not found or access denied", "payment_method_id", params.PaymentMethodID, "scope", scope.ID)
		return nil, scope, domain.ErrAccessDenied
	}
	return pm, scope, nil
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := lowerAll(a)
	y := lowerAll(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
