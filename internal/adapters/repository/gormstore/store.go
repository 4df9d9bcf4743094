package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/config"
	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/usecase"
)

// Supported store drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store implements every storage port on top of gorm
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema
func Open(cfg *config.RuntimeConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Store.Driver) {
	case DriverPostgres:
		if cfg.Store.DSN == "" {
			return nil, fmt.Errorf("store.dsn is required for the postgres driver")
		}
		dialector = postgres.Open(cfg.Store.DSN)
	case DriverSQLite, "":
		dsn := cfg.Store.DSN
		if dsn == "" {
			dsn = "file:safepay.db?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}

	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logLevel), SkipDefaultTransaction: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	store := New(db)
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

// New wraps an open connection
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates every table
func (s *Store) Migrate() error {
	modelsToMigrate := []interface{}{
		&models.PaymentMethod{}, &models.Organization{}, &models.Invoice{}, &models.Payable{},
		&models.LedgerEntry{}, &models.Settlement{}, &models.Subscription{}, &models.ProcessedCharge{},
	}
	for _, m := range modelsToMigrate {
		if err := s.db.AutoMigrate(m); err != nil {
			return fmt.Errorf("automigrate %T: %w", m, err)
		}
	}
	return nil
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// ownerScope restricts a query to records visible to scope.
// Individual scopes only see records that belong to no organization.
func ownerScope(scope models.OwnerScope) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if scope.IsOrganization() {
			return db.Where("organization_id = ?", scope.ID)
		}
		return db.Where("(organization_id = '' OR organization_id IS NULL)")
	}
}

// ---- payment methods ----

func (s *Store) CreatePaymentMethod(ctx context.Context, pm *models.PaymentMethod) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if pm.IsActive {
			var existing models.PaymentMethod
			q := tx.Where("is_active = ? AND safe_safe_address = ? AND safe_chain_id = ?", true, pm.Safe.SafeAddress, pm.Safe.ChainID)
			if pm.OrganizationID != "" {
				q = q.Where("organization_id = ?", pm.OrganizationID)
			} else {
				q = q.Where("(organization_id = '' OR organization_id IS NULL) AND user_id = ?", pm.UserID)
			}
			err := q.Take(&existing).Error
			if err == nil {
				return fmt.Errorf("%w: %s", domain.ErrAlreadyConnected, existing.ID)
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to check existing safe: %w", err)
			}
		}
		if err := tx.Create(pm).Error; err != nil {
			return fmt.Errorf("failed to create payment method: %w", err)
		}
		return nil
	})
}

func (s *Store) GetPaymentMethod(ctx context.Context, id string) (*models.PaymentMethod, error) {
	var pm models.PaymentMethod
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&pm).Error; err != nil {
		return nil, notFound(err, "payment method "+id)
	}
	return &pm, nil
}

func (s *Store) FindActiveSafe(ctx context.Context, scope models.OwnerScope, safeAddress string, chainID uint64) (*models.PaymentMethod, error) {
	var candidates []models.PaymentMethod
	err := s.db.WithContext(ctx).Scopes(ownerScope(scope)).
		Where("is_active = ? AND safe_safe_address = ? AND safe_chain_id = ?", true, strings.ToLower(safeAddress), chainID).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find safe: %w", err)
	}
	for i := range candidates {
		if candidates[i].VisibleTo(scope) {
			return &candidates[i], nil
		}
	}
	return nil, fmt.Errorf("safe %s on chain %d: %w", safeAddress, chainID, domain.ErrNotFound)
}

func (s *Store) ListActiveSafes(ctx context.Context, scope models.OwnerScope) ([]*models.PaymentMethod, error) {
	var rows []*models.PaymentMethod
	err := s.db.WithContext(ctx).Scopes(ownerScope(scope)).
		Where("is_active = ?", true).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list safes: %w", err)
	}
	out := rows[:0]
	for _, pm := range rows {
		if pm.VisibleTo(scope) {
			out = append(out, pm)
		}
	}
	return out, nil
}

func (s *Store) UpdatePaymentMethod(ctx context.Context, pm *models.PaymentMethod) error {
	result := s.db.WithContext(ctx).Model(pm).Select("*").Omit("created_at").Updates(pm)
	if result.Error != nil {
		return fmt.Errorf("failed to update payment method: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("payment method %s: %w", pm.ID, domain.ErrNotFound)
	}
	return nil
}

// ---- organizations ----

// SaveOrganization creates or replaces an organization
func (s *Store) SaveOrganization(ctx context.Context, org *models.Organization) error {
	return s.db.WithContext(ctx).Save(org).Error
}

func (s *Store) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	var org models.Organization
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&org).Error; err != nil {
		return nil, notFound(err, "organization "+id)
	}
	return &org, nil
}

func (s *Store) AttachSafeWallet(ctx context.Context, orgID, paymentMethodID string, safe models.SafeWalletDetails) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org := models.Organization{ID: orgID}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", orgID).Take(&org).Error; err != nil &&
			!errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load organization: %w", err)
		}
		org.AddSafeWallet(paymentMethodID)
		org.SafeAddress = safe.SafeAddress
		org.SafeOwners = append([]string(nil), safe.Owners...)
		org.SafeThreshold = safe.Threshold
		return tx.Save(&org).Error
	})
}

func (s *Store) DetachSafeWallet(ctx context.Context, orgID, paymentMethodID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var org models.Organization
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", orgID).Take(&org).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load organization: %w", err)
		}
		if !org.RemoveSafeWallet(paymentMethodID) {
			return nil
		}
		return tx.Save(&org).Error
	})
}

// ---- documents ----

// SaveInvoice creates or replaces an invoice
func (s *Store) SaveInvoice(ctx context.Context, inv *models.Invoice) error {
	return s.db.WithContext(ctx).Save(inv).Error
}

// SavePayable creates or replaces a payable
func (s *Store) SavePayable(ctx context.Context, p *models.Payable) error {
	return s.db.WithContext(ctx).Save(p).Error
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	var inv models.Invoice
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&inv).Error; err != nil {
		return nil, notFound(err, "invoice "+id)
	}
	return &inv, nil
}

func (s *Store) GetPayable(ctx context.Context, id string) (*models.Payable, error) {
	var p models.Payable
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error; err != nil {
		return nil, notFound(err, "payable "+id)
	}
	return &p, nil
}

func (s *Store) ListInvoices(ctx context.Context, scope models.OwnerScope) ([]*models.Invoice, error) {
	var rows []*models.Invoice
	if err := s.db.WithContext(ctx).Scopes(ownerScope(scope)).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	out := rows[:0]
	for _, inv := range rows {
		if inv.VisibleTo(scope) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (s *Store) ListPayables(ctx context.Context, scope models.OwnerScope) ([]*models.Payable, error) {
	var rows []*models.Payable
	if err := s.db.WithContext(ctx).Scopes(ownerScope(scope)).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list payables: %w", err)
	}
	out := rows[:0]
	for _, p := range rows {
		if p.VisibleTo(scope) {
			out = append(out, p)
		}
	}
	return out, nil
}

// MarkPaid applies the paid transition with a status-guarded UPDATE.
// A concurrent writer that moved the status first leaves zero affected rows.
func (s *Store) MarkPaid(ctx context.Context, ref models.DocumentRef, expected models.DocumentStatus, details models.PaymentDetails, entry models.StatusHistoryEntry) error {
	db := s.db.WithContext(ctx)

	var target interface{}
	var doc *models.Document
	switch ref.Kind {
	case models.DocumentInvoice:
		inv := &models.Invoice{}
		target, doc = inv, &inv.Document
	case models.DocumentPayable:
		p := &models.Payable{}
		target, doc = p, &p.Document
	default:
		return fmt.Errorf("unknown document kind %q", ref.Kind)
	}

	if err := db.Where("id = ?", ref.ID).Take(target).Error; err != nil {
		return notFound(err, string(ref.Kind)+" "+ref.ID)
	}
	if doc.Status != expected {
		return fmt.Errorf("%s %s is %s: %w", ref.Kind, ref.ID, doc.Status, domain.ErrStatusChanged)
	}

	doc.Status = models.StatusPaid
	doc.PaymentDetails = details
	doc.StatusHistory = append(doc.StatusHistory, entry)
	doc.UpdatedAt = entry.ChangedAt

	result := db.Model(target).
		Where("status = ?", expected).
		Select("status", "payment_details", "status_history", "updated_at").
		Updates(target)
	if result.Error != nil {
		return fmt.Errorf("failed to mark %s %s paid: %w", ref.Kind, ref.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", ref.Kind, ref.ID, domain.ErrStatusChanged)
	}
	return nil
}

// ---- ledger ----

func (s *Store) UpsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if entry.OwnerID == "" {
		return fmt.Errorf("ledger entry requires an owner id")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("owner_id = ?", entry.OwnerID)
		switch {
		case entry.RelatedPayableID != nil:
			q = q.Where("related_payable_id = ?", *entry.RelatedPayableID)
		case entry.RelatedInvoiceID != nil:
			q = q.Where("related_invoice_id = ?", *entry.RelatedInvoiceID)
		default:
			q = q.Where("entry_id = ?", entry.EntryID)
		}

		var existing models.LedgerEntry
		err := q.Take(&existing).Error
		switch {
		case err == nil:
			entry.ID = existing.ID
			entry.CreatedAt = existing.CreatedAt
		case errors.Is(err, gorm.ErrRecordNotFound):
			if entry.ID == "" {
				entry.ID = uuid.NewString()
			}
		default:
			return fmt.Errorf("failed to load ledger entry: %w", err)
		}
		return tx.Save(entry).Error
	})
}

func (s *Store) ListLedgerEntries(ctx context.Context, ownerID string) ([]*models.LedgerEntry, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("ledger queries require an owner id")
	}
	var out []*models.LedgerEntry
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("entry_id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return out, nil
}

// ---- settlements ----

func (s *Store) CreateSettlement(ctx context.Context, st *models.Settlement) error {
	if err := s.db.WithContext(ctx).Create(st).Error; err != nil {
		return fmt.Errorf("failed to create settlement: %w", err)
	}
	return nil
}

func (s *Store) GetSettlement(ctx context.Context, id string) (*models.Settlement, error) {
	var st models.Settlement
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&st).Error; err != nil {
		return nil, notFound(err, "settlement "+id)
	}
	return &st, nil
}

func (s *Store) FindBySafeTxHash(ctx context.Context, safeTxHash string) (*models.Settlement, error) {
	var st models.Settlement
	if err := s.db.WithContext(ctx).Where("safe_tx_hash = ?", strings.ToLower(safeTxHash)).Take(&st).Error; err != nil {
		return nil, notFound(err, "settlement "+safeTxHash)
	}
	return &st, nil
}

func (s *Store) FindByTxHash(ctx context.Context, txHash string) (*models.Settlement, error) {
	var st models.Settlement
	if err := s.db.WithContext(ctx).Where("tx_hash = ?", strings.ToLower(txHash)).Take(&st).Error; err != nil {
		return nil, notFound(err, "settlement "+txHash)
	}
	return &st, nil
}

func (s *Store) ListSettlements(ctx context.Context, filter models.SettlementFilter) ([]*models.Settlement, error) {
	q := s.db.WithContext(ctx).Order("created_at").Order("id")
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if filter.After != nil {
		q = q.Where("created_at > ? OR (created_at = ? AND id > ?)", filter.After.CreatedAt, filter.After.CreatedAt, filter.After.ID)
	}
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if filter.ChainID != 0 {
		q = q.Where("chain_id = ?", filter.ChainID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var out []*models.Settlement
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateSettlement(ctx context.Context, st *models.Settlement, expected models.SettlementStatus) error {
	db := s.db.WithContext(ctx)
	st.UpdatedAt = time.Now()
	result := db.Model(st).Where("status = ?", expected).Select("*").Omit("created_at").Updates(st)
	if result.Error != nil {
		return fmt.Errorf("failed to update settlement: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	if _, err := s.GetSettlement(ctx, st.ID); err != nil {
		return err
	}
	return fmt.Errorf("settlement %s: %w", st.ID, domain.ErrStatusChanged)
}

// ---- subscriptions ----

func (s *Store) GetSubscription(ctx context.Context, code string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).Where("subscription_code = ?", code).Take(&sub).Error; err != nil {
		return nil, notFound(err, "subscription "+code)
	}
	return &sub, nil
}

func (s *Store) FindSubscriptionByCustomer(ctx context.Context, customerCode string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).Where("customer_code = ?", customerCode).Order("updated_at DESC").Take(&sub).Error
	if err != nil {
		return nil, notFound(err, "subscription for customer "+customerCode)
	}
	return &sub, nil
}

func (s *Store) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Subscription
		err := tx.Where("subscription_code = ?", sub.SubscriptionCode).Take(&existing).Error
		switch {
		case err == nil:
			sub.CreatedAt = existing.CreatedAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to load subscription: %w", err)
		}
		return tx.Save(sub).Error
	})
}

func (s *Store) ChargeRecorded(ctx context.Context, reference string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.ProcessedCharge{}).Where("reference = ?", reference).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up charge: %w", err)
	}
	return count > 0, nil
}

func (s *Store) RecordCharge(ctx context.Context, charge *models.ProcessedCharge) (bool, error) {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(charge)
	if result.Error != nil {
		return false, fmt.Errorf("failed to record charge: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

var (
	_ usecase.PaymentMethodRepository = (*Store)(nil)
	_ usecase.OrganizationRepository  = (*Store)(nil)
	_ usecase.DocumentRepository      = (*Store)(nil)
	_ usecase.LedgerRepository        = (*Store)(nil)
	_ usecase.SettlementRepository    = (*Store)(nil)
	_ usecase.SubscriptionRepository  = (*Store)(nil)
)
