package gormstore

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/models"
)

var orgScope = models.OwnerScope{Type: models.ScopeOrganization, ID: "org-1", UserID: "user-1"}

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	store := New(db)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedPayable(t *testing.T, s *Store, id string, status models.DocumentStatus) {
	t.Helper()
	require.NoError(t, s.SavePayable(context.Background(), &models.Payable{Document: models.Document{
		ID:             id,
		OrganizationID: "org-1",
		Total:          decimal.RequireFromString("100"),
		Currency:       "USDT",
		Status:         status,
		PaymentMethod: models.PaymentMethodDetails{CryptoDetails: &models.CryptoDetails{
			ChainID: 42220, TokenAddress: "0x48065fbbe25f71c9282ddf5e1cd6d6a887483d5e", Address: "0x9999999999999999999999999999999999999999",
		}},
	}}))
}

func TestStore_PaymentMethods(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	pm := &models.PaymentMethod{
		ID:             "pm-1",
		Name:           "Safe Wallet (0x1234...5678)",
		Type:           models.PaymentMethodCrypto,
		OrganizationID: "org-1",
		UserID:         "user-1",
		IsActive:       true,
		Safe: models.SafeWalletDetails{
			SafeAddress: "0x1234567890abcdef1234567890abcdef12345678",
			Owners:      []string{"0x1111111111111111111111111111111111111111"},
			Threshold:   1,
			ChainID:     42220,
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreatePaymentMethod(ctx, pm))

	t.Run("duplicate active safe is rejected", func(t *testing.T) {
		dup := *pm
		dup.ID = "pm-2"
		assert.ErrorIs(t, s.CreatePaymentMethod(ctx, &dup), domain.ErrAlreadyConnected)
	})

	t.Run("lookups are scoped", func(t *testing.T) {
		found, err := s.FindActiveSafe(ctx, orgScope, "0x1234567890ABCDEF1234567890abcdef12345678", 42220)
		require.NoError(t, err)
		assert.Equal(t, "pm-1", found.ID)
		assert.Equal(t, []string{"0x1111111111111111111111111111111111111111"}, found.Safe.Owners)

		other := models.OwnerScope{Type: models.ScopeOrganization, ID: "org-2"}
		_, err = s.FindActiveSafe(ctx, other, pm.Safe.SafeAddress, 42220)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		individual := models.OwnerScope{Type: models.ScopeIndividual, ID: "user-1", UserID: "user-1"}
		list, err := s.ListActiveSafes(ctx, individual)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("soft delete keeps the record", func(t *testing.T) {
		stored, err := s.GetPaymentMethod(ctx, "pm-1")
		require.NoError(t, err)
		stored.IsActive = false
		require.NoError(t, s.UpdatePaymentMethod(ctx, stored))

		list, err := s.ListActiveSafes(ctx, orgScope)
		require.NoError(t, err)
		assert.Empty(t, list)

		kept, err := s.GetPaymentMethod(ctx, "pm-1")
		require.NoError(t, err)
		assert.False(t, kept.IsActive)
	})
}

func TestStore_Organizations(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	safe := models.SafeWalletDetails{SafeAddress: "0xsafe", Owners: []string{"0x1"}, Threshold: 1}

	require.NoError(t, s.AttachSafeWallet(ctx, "org-1", "pm-1", safe))
	require.NoError(t, s.AttachSafeWallet(ctx, "org-1", "pm-1", safe))
	require.NoError(t, s.AttachSafeWallet(ctx, "org-1", "pm-2", safe))

	org, err := s.GetOrganization(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"pm-1", "pm-2"}, org.ConnectedSafeWallets)
	assert.Equal(t, 1, org.SafeThreshold)

	require.NoError(t, s.DetachSafeWallet(ctx, "org-1", "pm-1"))
	org, err = s.GetOrganization(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"pm-2"}, org.ConnectedSafeWallets)

	assert.NoError(t, s.DetachSafeWallet(ctx, "missing", "pm-1"))
}

func TestStore_MarkPaid(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	seedPayable(t, s, "p1", models.StatusApproved)
	ref := models.DocumentRef{Kind: models.DocumentPayable, ID: "p1"}
	now := time.Now().UTC()
	details := models.PaymentDetails{Method: "crypto", TxHash: "0xaaaa", ChainID: 42220, PaidAt: &now}
	entry := models.StatusHistoryEntry{Status: models.StatusPaid, ChangedBy: "user-1", ChangedAt: now}

	require.NoError(t, s.MarkPaid(ctx, ref, models.StatusApproved, details, entry))

	p, err := s.GetPayable(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, p.Status)
	assert.Equal(t, "0xaaaa", p.PaymentDetails.TxHash)
	assert.Len(t, p.StatusHistory, 1)
	assert.True(t, decimal.RequireFromString("100").Equal(p.Total))
	require.NotNil(t, p.PaymentMethod.CryptoDetails)
	assert.Equal(t, uint64(42220), p.PaymentMethod.CryptoDetails.ChainID)

	err = s.MarkPaid(ctx, ref, models.StatusApproved, details, entry)
	assert.ErrorIs(t, err, domain.ErrStatusChanged)

	err = s.MarkPaid(ctx, models.DocumentRef{Kind: models.DocumentInvoice, ID: "nope"}, models.StatusSent, details, entry)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_Ledger(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	payableID := "p1"
	entry := &models.LedgerEntry{
		EntryID:          "PAY-1",
		Type:             models.LedgerPayable,
		OwnerID:          "org-1",
		OwnerType:        models.ScopeOrganization,
		RelatedPayableID: &payableID,
		Amount:           decimal.RequireFromString("100"),
		Status:           models.LedgerApproved,
	}
	require.NoError(t, s.UpsertLedgerEntry(ctx, entry))

	again := *entry
	again.ID = ""
	again.Status = models.LedgerPaid
	require.NoError(t, s.UpsertLedgerEntry(ctx, &again))
	assert.Equal(t, entry.ID, again.ID)

	entries, err := s.ListLedgerEntries(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LedgerPaid, entries[0].Status)

	_, err = s.ListLedgerEntries(ctx, "")
	assert.Error(t, err)
}

func TestStore_Ledger_SharedNumberAcrossKinds(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	invoiceID, payableID := "inv-1", "pay-1"

	require.NoError(t, s.UpsertLedgerEntry(ctx, &models.LedgerEntry{
		EntryID:          "0001",
		Type:             models.LedgerReceivable,
		OwnerID:          "org-1",
		OwnerType:        models.ScopeOrganization,
		RelatedInvoiceID: &invoiceID,
		Amount:           decimal.RequireFromString("100"),
		Status:           models.LedgerPaid,
	}))
	require.NoError(t, s.UpsertLedgerEntry(ctx, &models.LedgerEntry{
		EntryID:          "0001",
		Type:             models.LedgerPayable,
		OwnerID:          "org-1",
		OwnerType:        models.ScopeOrganization,
		RelatedPayableID: &payableID,
		Amount:           decimal.RequireFromString("40"),
		Status:           models.LedgerPaid,
	}))

	entries, err := s.ListLedgerEntries(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	types := []models.LedgerEntryType{entries[0].Type, entries[1].Type}
	assert.ElementsMatch(t, []models.LedgerEntryType{models.LedgerReceivable, models.LedgerPayable}, types)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
}

func TestStore_Settlements(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	st := &models.Settlement{
		ID:         "s1",
		Kind:       models.SettlementSafe,
		Status:     models.SettlementProposed,
		SafeTxHash: "0xbbbb",
		ChainID:    42220,
		PayableIDs: []string{"p1"},
		Scope:      orgScope,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, s.CreateSettlement(ctx, st))

	found, err := s.FindBySafeTxHash(ctx, "0xBBBB")
	require.NoError(t, err)
	assert.Equal(t, orgScope, found.Scope)

	open, err := s.ListSettlements(ctx, models.SettlementFilter{Statuses: []models.SettlementStatus{models.SettlementProposed}, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, open, 1)

	found.Status = models.SettlementExecuted
	found.TxHash = "0xcccc"
	require.NoError(t, s.UpdateSettlement(ctx, found, models.SettlementProposed))

	byTx, err := s.FindByTxHash(ctx, "0xcccc")
	require.NoError(t, err)
	assert.Equal(t, models.SettlementExecuted, byTx.Status)

	stale := *st
	stale.Status = models.SettlementFailed
	assert.ErrorIs(t, s.UpdateSettlement(ctx, &stale, models.SettlementProposed), domain.ErrStatusChanged)

	missing := &models.Settlement{ID: "nope", Status: models.SettlementSigned}
	assert.ErrorIs(t, s.UpdateSettlement(ctx, missing, models.SettlementProposed), domain.ErrNotFound)
}

func TestStore_ListSettlements_Cursor(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)
	for i, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, s.CreateSettlement(ctx, &models.Settlement{
			ID:         id,
			Kind:       models.SettlementSafe,
			Status:     models.SettlementProposed,
			SafeTxHash: "0x" + id,
			ChainID:    42220,
			Scope:      orgScope,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	filter := models.SettlementFilter{Statuses: []models.SettlementStatus{models.SettlementProposed}, Limit: 2}
	first, err := s.ListSettlements(ctx, filter)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "s1", first[0].ID)
	assert.Equal(t, "s2", first[1].ID)

	filter.After = models.CursorOf(first[1])
	rest, err := s.ListSettlements(ctx, filter)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "s3", rest[0].ID)
}

func TestStore_Subscriptions(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	sub := &models.Subscription{SubscriptionCode: "SUB_1", CustomerCode: "CUS_1", Status: models.SubscriptionActive}
	require.NoError(t, s.SaveSubscription(ctx, sub))
	sub.Status = models.SubscriptionCancelled
	require.NoError(t, s.SaveSubscription(ctx, sub))

	got, err := s.FindSubscriptionByCustomer(ctx, "CUS_1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCancelled, got.Status)

	recorded, err := s.ChargeRecorded(ctx, "REF_1")
	require.NoError(t, err)
	assert.False(t, recorded)

	first, err := s.RecordCharge(ctx, &models.ProcessedCharge{Reference: "REF_1", ProcessedAt: time.Now()})
	require.NoError(t, err)
	second, err := s.RecordCharge(ctx, &models.ProcessedCharge{Reference: "REF_1", ProcessedAt: time.Now()})
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)

	recorded, err = s.ChargeRecorded(ctx, "REF_1")
	require.NoError(t, err)
	assert.True(t, recorded)
}

func TestStore_MarkPaid_PostgresGuard(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	s := New(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payables" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "total", "status_history"}).
			AddRow("p1", "approved", "100", "[]"))
	mock.ExpectExec(`UPDATE "payables" SET .* WHERE status = \$\d+ AND (?:"payables"\.)?"id" = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ref := models.DocumentRef{Kind: models.DocumentPayable, ID: "p1"}
	err = s.MarkPaid(context.Background(), ref, models.StatusApproved, models.PaymentDetails{TxHash: "0xaaaa"},
		models.StatusHistoryEntry{Status: models.StatusPaid, ChangedAt: time.Now()})
	assert.ErrorIs(t, err, domain.ErrStatusChanged)
	assert.NoError(t, mock.ExpectationsWereMet())
}
