package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntryType mirrors the document kind in accounting terms
type LedgerEntryType string

const (
	LedgerReceivable LedgerEntryType = "receivable"
	LedgerPayable    LedgerEntryType = "payable"
)

// LedgerStatus is the status of a ledger entry
type LedgerStatus string

const (
	LedgerDraft     LedgerStatus = "draft"
	LedgerPending   LedgerStatus = "pending"
	LedgerApproved  LedgerStatus = "approved"
	LedgerPaid      LedgerStatus = "paid"
	LedgerOverdue   LedgerStatus = "overdue"
	LedgerCancelled LedgerStatus = "cancelled"
)

// Valid reports whether s is a known ledger status
func (s LedgerStatus) Valid() bool {
	switch s {
	case LedgerDraft, LedgerPending, LedgerApproved, LedgerPaid, LedgerOverdue, LedgerCancelled:
		return true
	}
	return false
}

// LedgerPaymentDetails is the settlement evidence kept on a ledger entry
type LedgerPaymentDetails struct {
	Method      string `json:"method"`
	Network     string `json:"network,omitempty"`
	Address     string `json:"address,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
	FromAddress string `json:"fromAddress,omitempty"`
	ChainID     uint64 `json:"chainId,omitempty"`
}

// LedgerEntry is the ledger projection of a paid invoice or payable.
// OwnerID is an exact tenant key: organization id or individual email.
type LedgerEntry struct {
	ID               string               `json:"id" gorm:"primaryKey"`
	EntryID          string               `json:"entryId"`
	Type             LedgerEntryType      `json:"type"`
	OwnerID          string               `json:"ownerId" gorm:"not null;uniqueIndex:idx_ledger_owner_invoice;uniqueIndex:idx_ledger_owner_payable"`
	OwnerType        ScopeType            `json:"ownerType"`
	RelatedInvoiceID *string              `json:"relatedInvoiceId,omitempty" gorm:"uniqueIndex:idx_ledger_owner_invoice"`
	RelatedPayableID *string              `json:"relatedPayableId,omitempty" gorm:"uniqueIndex:idx_ledger_owner_payable"`
	CounterpartyName string               `json:"counterpartyName"`
	CounterpartyType string               `json:"counterpartyType"`
	Amount           decimal.Decimal      `json:"amount" gorm:"type:text"`
	Currency         string               `json:"currency"`
	Status           LedgerStatus         `json:"status"`
	PaymentDetails   LedgerPaymentDetails `json:"paymentDetails" gorm:"serializer:json"`
	TransactionHash  string               `json:"transactionHash,omitempty"`
	Notes            string               `json:"notes,omitempty"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

// RelatedID returns the id of the mirrored document
func (e *LedgerEntry) RelatedID() string {
	if e.RelatedPayableID != nil {
		return *e.RelatedPayableID
	}
	if e.RelatedInvoiceID != nil {
		return *e.RelatedInvoiceID
	}
	return ""
}

// LedgerEntryNumber derives the ledger entry id from the document number or id
func LedgerEntryNumber(kind DocumentKind, number, id string) string {
	if number != "" {
		return number
	}
	suffix := id
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	if kind == DocumentPayable {
		return fmt.Sprintf("PAY-%s", suffix)
	}
	return fmt.Sprintf("INV-%s", suffix)
}

// TableName keeps the ledger in its historical collection name
func (LedgerEntry) TableName() string {
	return "financial_ledger"
}
