package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/safepay-org/safepay/internal/adapters/repository/memory"
	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/usecase"
)

// importedSafe seeds a store with one org-owned Safe and returns its id
func importedSafe(t *testing.T, store *memory.Store, info *models.SafeInfo) string {
	t.Helper()
	ctx := context.Background()
	service := new(MockSafeService)
	service.On("GetSafeInfo", ctx, uint64(42220), mock.Anything).Return(info, nil)

	result, err := newImportSafe(store, service, nil).Run(ctx, usecase.ImportSafeParams{Session: orgSession(), SafeAddress: testSafe})
	require.NoError(t, err)
	return result.PaymentMethod.ID
}

func TestManageSafes_List(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	id := importedSafe(t, store, liveSafe(2, 0, testOwner1, testOwner2))
	uc := usecase.NewManageSafes(new(MockSafeService), nil, store, store, discardLogger())

	result, err := uc.List(ctx, usecase.ListSafeWalletsParams{Session: orgSession()})
	require.NoError(t, err)
	require.Len(t, result.Wallets, 1)
	assert.Equal(t, id, result.Wallets[0].PaymentMethodID)
	assert.Equal(t, 2, result.Wallets[0].Threshold)
	assert.Equal(t, uint64(42220), result.Wallets[0].ChainID)

	other, err := uc.List(ctx, usecase.ListSafeWalletsParams{Session: models.Session{UserID: "x", OrganizationID: "org-2"}})
	require.NoError(t, err)
	assert.Empty(t, other.Wallets)
}

func TestManageSafes_Disconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("soft deletes and removes from organization", func(t *testing.T) {
		store := memory.NewStore()
		id := importedSafe(t, store, liveSafe(2, 0, testOwner1, testOwner2, testOwner3))
		uc := usecase.NewManageSafes(new(MockSafeService), nil, store, store, discardLogger())

		pm, err := uc.Disconnect(ctx, usecase.SafeScopeParams{Session: orgSession(), PaymentMethodID: id})
		require.NoError(t, err)
		assert.False(t, pm.IsActive)

		stored, err := store.GetPaymentMethod(ctx, id)
		require.NoError(t, err)
		assert.False(t, stored.IsActive)
		assert.Equal(t, "0x1234567890abcdef1234567890abcdef12345678", stored.Safe.SafeAddress)

		org, err := store.GetOrganization(ctx, "org-1")
		require.NoError(t, err)
		assert.NotContains(t, org.ConnectedSafeWallets, id)

		list, err := uc.List(ctx, usecase.ListSafeWalletsParams{Session: orgSession()})
		require.NoError(t, err)
		assert.Empty(t, list.Wallets)
	})

	t.Run("foreign scope is denied", func(t *testing.T) {
		store := memory.NewStore()
		id := importedSafe(t, store, liveSafe(1, 0, testOwner1))
		uc := usecase.NewManageSafes(new(MockSafeService), nil, store, store, discardLogger())

		_, err := uc.Disconnect(ctx, usecase.SafeScopeParams{
			Session:         models.Session{UserID: "mallory", OrganizationID: "org-2"},
			PaymentMethodID: id,
		})
		assert.ErrorIs(t, err, domain.ErrAccessDenied)
		assert.Equal(t, "Payment method not found or access denied", err.Error())

		stored, err := store.GetPaymentMethod(ctx, id)
		require.NoError(t, err)
		assert.True(t, stored.IsActive)
	})

	t.Run("unknown id is denied", func(t *testing.T) {
		store := memory.NewStore()
		uc := usecase.NewManageSafes(new(MockSafeService), nil, store, store, discardLogger())

		_, err := uc.Disconnect(ctx, usecase.SafeScopeParams{Session: orgSession(), PaymentMethodID: "missing"})
		assert.ErrorIs(t, err, domain.ErrAccessDenied)
	})
}

func TestManageSafes_Authorize(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	id := importedSafe(t, store, liveSafe(1, 0, testOwner1))
	uc := usecase.NewManageSafes(new(MockSafeService), nil, store, store, discardLogger())

	pm, err := uc.Authorize(ctx, usecase.SafeScopeParams{Session: orgSession(), PaymentMethodID: id})
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionSafeApp, pm.Safe.ConnectionMethod)
	assert.True(t, pm.Safe.SafeAppAuthorized)
	require.NotNil(t, pm.Safe.AuthorizedAt)

	stored, err := store.GetPaymentMethod(ctx, id)
	require.NoError(t, err)
	assert.True(t, stored.Safe.SafeAppAuthorized)
}

func TestManageSafes_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("reports and stores drift", func(t *testing.T) {
		store := memory.NewStore()
		id := importedSafe(t, store, liveSafe(1, 3, testOwner1))
		service := new(MockSafeService)
		service.On("GetSafeInfo", ctx, uint64(42220), mock.Anything).Return(liveSafe(2, 9, testOwner1, testOwner2), nil)
		uc := usecase.NewManageSafes(service, nil, store, store, discardLogger())

		result, err := uc.Refresh(ctx, usecase.SafeScopeParams{Session: orgSession(), PaymentMethodID: id})
		require.NoError(t, err)
		assert.True(t, result.Drift.OwnersChanged)
		assert.True(t, result.Drift.ThresholdChanged)
		assert.True(t, result.Drift.NonceAdvanced)
		assert.Equal(t, uint64(3), result.Drift.PreviousNonce)

		stored, err := store.GetPaymentMethod(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.Safe.Threshold)
		assert.Equal(t, uint64(9), stored.Safe.Nonce)

		org, err := store.GetOrganization(ctx, "org-1")
		require.NoError(t, err)
		assert.Equal(t, 2, org.SafeThreshold)
	})

	t.Run("lagging nonce never decreases", func(t *testing.T) {
		store := memory.NewStore()
		id := importedSafe(t, store, liveSafe(1, 10, testOwner1))
		service := new(MockSafeService)
		service.On("GetSafeInfo", ctx, uint64(42220), mock.Anything).Return(liveSafe(1, 4, testOwner1), nil)
		uc := usecase.NewManageSafes(service, nil, store, store, discardLogger())

		result, err := uc.Refresh(ctx, usecase.SafeScopeParams{Session: orgSession(), PaymentMethodID: id})
		require.NoError(t, err)
		assert.False(t, result.Drift.Any())
		assert.Equal(t, uint64(10), result.PaymentMethod.Safe.Nonce)
	})
}
