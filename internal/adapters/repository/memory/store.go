package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/usecase"
)

// Store is an in-process implementation of every storage port.
// Records are copied on the way in and out so callers never share memory with the store.
type Store struct {
	mu             sync.RWMutex
	paymentMethods map[string]models.PaymentMethod
	organizations  map[string]models.Organization
	invoices       map[string]models.Invoice
	payables       map[string]models.Payable
	ledger         map[string]models.LedgerEntry
	settlements    map[string]models.Settlement
	subscriptions  map[string]models.Subscription
	charges        map[string]models.ProcessedCharge
	seq            int
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		paymentMethods: make(map[string]models.PaymentMethod),
		organizations:  make(map[string]models.Organization),
		invoices:       make(map[string]models.Invoice),
		payables:       make(map[string]models.Payable),
		ledger:         make(map[string]models.LedgerEntry),
		settlements:    make(map[string]models.Settlement),
		subscriptions:  make(map[string]models.Subscription),
		charges:        make(map[string]models.ProcessedCharge),
	}
}

// ---- payment methods ----

func (s *Store) CreatePaymentMethod(ctx context.Context, pm *models.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.paymentMethods[pm.ID]; exists {
		return fmt.Errorf("payment method %s already exists", pm.ID)
	}
	if pm.IsActive {
		for _, existing := range s.paymentMethods {
			sameOwner := existing.OrganizationID == pm.OrganizationID && (pm.OrganizationID != "" || existing.UserID == pm.UserID)
			if existing.IsActive && sameOwner &&
				existing.Safe.SafeAddress == pm.Safe.SafeAddress && existing.Safe.ChainID == pm.Safe.ChainID {
				return fmt.Errorf("%w: %s", domain.ErrAlreadyConnected, existing.ID)
			}
		}
	}
	s.paymentMethods[pm.ID] = clonePaymentMethod(*pm)
	return nil
}

func (s *Store) GetPaymentMethod(ctx context.Context, id string) (*models.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pm, ok := s.paymentMethods[id]
	if !ok {
		return nil, fmt.Errorf("payment method %s: %w", id, domain.ErrNotFound)
	}
	out := clonePaymentMethod(pm)
	return &out, nil
}

func (s *Store) FindActiveSafe(ctx context.Context, scope models.OwnerScope, safeAddress string, chainID uint64) (*models.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	address := strings.ToLower(safeAddress)
	for _, pm := range s.paymentMethods {
		if pm.IsActive && pm.VisibleTo(scope) && pm.Safe.SafeAddress == address && pm.Safe.ChainID == chainID {
			out := clonePaymentMethod(pm)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("safe %s on chain %d: %w", address, chainID, domain.ErrNotFound)
}

func (s *Store) ListActiveSafes(ctx context.Context, scope models.OwnerScope) ([]*models.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.PaymentMethod
	for _, pm := range s.paymentMethods {
		if pm.IsActive && pm.VisibleTo(scope) {
			c := clonePaymentMethod(pm)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdatePaymentMethod(ctx context.Context, pm *models.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.paymentMethods[pm.ID]; !ok {
		return fmt.Errorf("payment method %s: %w", pm.ID, domain.ErrNotFound)
	}
	s.paymentMethods[pm.ID] = clonePaymentMethod(*pm)
	return nil
}

// ---- organizations ----

// SaveOrganization creates or replaces an organization
func (s *Store) SaveOrganization(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.organizations[org.ID] = cloneOrganization(*org)
	return nil
}

func (s *Store) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.organizations[id]
	if !ok {
		return nil, fmt.Errorf("organization %s: %w", id, domain.ErrNotFound)
	}
	out := cloneOrganization(org)
	return &out, nil
}

func (s *Store) AttachSafeWallet(ctx context.Context, orgID, paymentMethodID string, safe models.SafeWalletDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.organizations[orgID]
	if !ok {
		org = models.Organization{ID: orgID}
	}
	org = cloneOrganization(org)
	org.AddSafeWallet(paymentMethodID)
	org.SafeAddress = safe.SafeAddress
	org.SafeOwners = append([]string(nil), safe.Owners...)
	org.SafeThreshold = safe.Threshold
	org.UpdatedAt = time.Now()
	s.organizations[orgID] = org
	return nil
}

func (s *Store) DetachSafeWallet(ctx context.Context, orgID, paymentMethodID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.organizations[orgID]
	if !ok {
		return nil
	}
	org = cloneOrganization(org)
	org.RemoveSafeWallet(paymentMethodID)
	org.UpdatedAt = time.Now()
	s.organizations[orgID] = org
	return nil
}

// ---- documents ----

// SaveInvoice creates or replaces an invoice
func (s *Store) SaveInvoice(ctx context.Context, inv *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[inv.ID] = models.Invoice{Document: cloneDocument(inv.Document)}
	return nil
}

// SavePayable creates or replaces a payable
func (s *Store) SavePayable(ctx context.Context, p *models.Payable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payables[p.ID] = models.Payable{Document: cloneDocument(p.Document), RelatedInvoiceID: p.RelatedInvoiceID}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %s: %w", id, domain.ErrNotFound)
	}
	return &models.Invoice{Document: cloneDocument(inv.Document)}, nil
}

func (s *Store) GetPayable(ctx context.Context, id string) (*models.Payable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payables[id]
	if !ok {
		return nil, fmt.Errorf("payable %s: %w", id, domain.ErrNotFound)
	}
	return &models.Payable{Document: cloneDocument(p.Document), RelatedInvoiceID: p.RelatedInvoiceID}, nil
}

func (s *Store) ListInvoices(ctx context.Context, scope models.OwnerScope) ([]*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Invoice
	for _, inv := range s.invoices {
		if inv.VisibleTo(scope) {
			out = append(out, &models.Invoice{Document: cloneDocument(inv.Document)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListPayables(ctx context.Context, scope models.OwnerScope) ([]*models.Payable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Payable
	for _, p := range s.payables {
		if p.VisibleTo(scope) {
			out = append(out, &models.Payable{Document: cloneDocument(p.Document), RelatedInvoiceID: p.RelatedInvoiceID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MarkPaid(ctx context.Context, ref models.DocumentRef, expected models.DocumentStatus, details models.PaymentDetails, entry models.StatusHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	apply := func(doc *models.Document) error {
		if doc.Status != expected {
			return fmt.Errorf("%s %s is %s: %w", ref.Kind, ref.ID, doc.Status, domain.ErrStatusChanged)
		}
		doc.Status = models.StatusPaid
		doc.PaymentDetails = details
		doc.StatusHistory = append(doc.StatusHistory, entry)
		doc.UpdatedAt = entry.ChangedAt
		return nil
	}

	switch ref.Kind {
	case models.DocumentInvoice:
		inv, ok := s.invoices[ref.ID]
		if !ok {
			return fmt.Errorf("invoice %s: %w", ref.ID, domain.ErrNotFound)
		}
		doc := cloneDocument(inv.Document)
		if err := apply(&doc); err != nil {
			return err
		}
		s.invoices[ref.ID] = models.Invoice{Document: doc}
	case models.DocumentPayable:
		p, ok := s.payables[ref.ID]
		if !ok {
			return fmt.Errorf("payable %s: %w", ref.ID, domain.ErrNotFound)
		}
		doc := cloneDocument(p.Document)
		if err := apply(&doc); err != nil {
			return err
		}
		s.payables[ref.ID] = models.Payable{Document: doc, RelatedInvoiceID: p.RelatedInvoiceID}
	default:
		return fmt.Errorf("unknown document kind %q", ref.Kind)
	}
	return nil
}

// ---- ledger ----

func (s *Store) UpsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if entry.OwnerID == "" {
		return fmt.Errorf("ledger entry requires an owner id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ledgerKey(entry)
	now := time.Now()
	if existing, ok := s.ledger[key]; ok {
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
	} else {
		if entry.ID == "" {
			s.seq++
			entry.ID = fmt.Sprintf("ledger-%d", s.seq)
		}
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	s.ledger[key] = *entry
	return nil
}

func (s *Store) ListLedgerEntries(ctx context.Context, ownerID string) ([]*models.LedgerEntry, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("ledger queries require an owner id")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.LedgerEntry
	for _, e := range s.ledger {
		if e.OwnerID == ownerID {
			c := e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID < out[j].EntryID })
	return out, nil
}

func ledgerKey(e *models.LedgerEntry) string {
	if e.RelatedPayableID != nil {
		return e.OwnerID + "|payable|" + *e.RelatedPayableID
	}
	if e.RelatedInvoiceID != nil {
		return e.OwnerID + "|invoice|" + *e.RelatedInvoiceID
	}
	return e.OwnerID + "|entry|" + e.EntryID
}

// ---- settlements ----

func (s *Store) CreateSettlement(ctx context.Context, st *models.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.settlements[st.ID]; exists {
		return fmt.Errorf("settlement %s already exists", st.ID)
	}
	s.settlements[st.ID] = cloneSettlement(*st)
	return nil
}

func (s *Store) GetSettlement(ctx context.Context, id string) (*models.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.settlements[id]
	if !ok {
		return nil, fmt.Errorf("settlement %s: %w", id, domain.ErrNotFound)
	}
	out := cloneSettlement(st)
	return &out, nil
}

func (s *Store) FindBySafeTxHash(ctx context.Context, safeTxHash string) (*models.Settlement, error) {
	return s.findSettlement(func(st models.Settlement) bool {
		return st.SafeTxHash != "" && strings.EqualFold(st.SafeTxHash, safeTxHash)
	}, safeTxHash)
}

func (s *Store) FindByTxHash(ctx context.Context, txHash string) (*models.Settlement, error) {
	return s.findSettlement(func(st models.Settlement) bool {
		return st.TxHash != "" && strings.EqualFold(st.TxHash, txHash)
	}, txHash)
}

func (s *Store) findSettlement(match func(models.Settlement) bool, key string) (*models.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.settlements {
		if match(st) {
			out := cloneSettlement(st)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("settlement %s: %w", key, domain.ErrNotFound)
}

func (s *Store) ListSettlements(ctx context.Context, filter models.SettlementFilter) ([]*models.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Settlement
	for _, st := range s.settlements {
		if filter.Kind != "" && st.Kind != filter.Kind {
			continue
		}
		if filter.ChainID != 0 && st.ChainID != filter.ChainID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, st.Status) {
			continue
		}
		if filter.After != nil && filter.After.Before(&st) {
			continue
		}
		c := cloneSettlement(st)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) UpdateSettlement(ctx context.Context, st *models.Settlement, expected models.SettlementStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.settlements[st.ID]
	if !ok {
		return fmt.Errorf("settlement %s: %w", st.ID, domain.ErrNotFound)
	}
	if current.Status != expected {
		return fmt.Errorf("settlement %s is %s: %w", st.ID, current.Status, domain.ErrStatusChanged)
	}
	st.UpdatedAt = time.Now()
	s.settlements[st.ID] = cloneSettlement(*st)
	return nil
}

func containsStatus(statuses []models.SettlementStatus, status models.SettlementStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// ---- subscriptions ----

func (s *Store) GetSubscription(ctx context.Context, code string) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[code]
	if !ok {
		return nil, fmt.Errorf("subscription %s: %w", code, domain.ErrNotFound)
	}
	return &sub, nil
}

func (s *Store) FindSubscriptionByCustomer(ctx context.Context, customerCode string) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Subscription
	for _, sub := range s.subscriptions {
		if sub.CustomerCode != customerCode {
			continue
		}
		if found == nil || sub.UpdatedAt.After(found.UpdatedAt) {
			c := sub
			found = &c
		}
	}
	if found == nil {
		return nil, fmt.Errorf("subscription for customer %s: %w", customerCode, domain.ErrNotFound)
	}
	return found, nil
}

func (s *Store) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if existing, ok := s.subscriptions[sub.SubscriptionCode]; ok {
		sub.CreatedAt = existing.CreatedAt
	} else if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	s.subscriptions[sub.SubscriptionCode] = *sub
	return nil
}

func (s *Store) ChargeRecorded(ctx context.Context, reference string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.charges[reference]
	return ok, nil
}

func (s *Store) RecordCharge(ctx context.Context, charge *models.ProcessedCharge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.charges[charge.Reference]; ok {
		return false, nil
	}
	s.charges[charge.Reference] = *charge
	return true, nil
}

// ---- cloning ----

func clonePaymentMethod(pm models.PaymentMethod) models.PaymentMethod {
	pm.Tags = append([]string(nil), pm.Tags...)
	pm.Safe.Owners = append([]string(nil), pm.Safe.Owners...)
	pm.Safe.Modules = append([]string(nil), pm.Safe.Modules...)
	return pm
}

func cloneOrganization(org models.Organization) models.Organization {
	org.ConnectedSafeWallets = append([]string(nil), org.ConnectedSafeWallets...)
	org.SafeOwners = append([]string(nil), org.SafeOwners...)
	return org
}

func cloneDocument(d models.Document) models.Document {
	d.StatusHistory = append([]models.StatusHistoryEntry(nil), d.StatusHistory...)
	if d.PaymentMethod.CryptoDetails != nil {
		crypto := *d.PaymentMethod.CryptoDetails
		d.PaymentMethod.CryptoDetails = &crypto
	}
	return d
}

func cloneSettlement(st models.Settlement) models.Settlement {
	st.InvoiceIDs = append([]string(nil), st.InvoiceIDs...)
	st.PayableIDs = append([]string(nil), st.PayableIDs...)
	return st
}

var (
	_ usecase.PaymentMethodRepository = (*Store)(nil)
	_ usecase.OrganizationRepository  = (*Store)(nil)
	_ usecase.DocumentRepository      = (*Store)(nil)
	_ usecase.LedgerRepository        = (*Store)(nil)
	_ usecase.SettlementRepository    = (*Store)(nil)
	_ usecase.SubscriptionRepository  = (*Store)(nil)
)
