package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentKind distinguishes invoices from payables
type DocumentKind string

const (
	DocumentInvoice DocumentKind = "invoice"
	DocumentPayable DocumentKind = "payable"
)

// DocumentStatus is the lifecycle status shared by invoices and payables
type DocumentStatus string

const (
	StatusDraft           DocumentStatus = "draft"
	StatusSent            DocumentStatus = "sent"
	StatusPending         DocumentStatus = "pending"
	StatusPendingApproval DocumentStatus = "pending_approval"
	StatusApproved        DocumentStatus = "approved"
	StatusPaid            DocumentStatus = "paid"
	StatusOverdue         DocumentStatus = "overdue"
	StatusCancelled       DocumentStatus = "cancelled"
	StatusRejected        DocumentStatus = "rejected"
)

var documentTransitions = map[DocumentStatus][]DocumentStatus{
	StatusDraft:           {StatusSent, StatusPending, StatusPendingApproval, StatusCancelled},
	StatusSent:            {StatusPending, StatusPaid, StatusOverdue, StatusCancelled},
	StatusPending:         {StatusPaid, StatusOverdue, StatusCancelled},
	StatusPendingApproval: {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:        {StatusPaid, StatusOverdue, StatusCancelled},
	StatusOverdue:         {StatusSent, StatusCancelled},
	StatusPaid:            {},
	StatusCancelled:       {},
	StatusRejected:        {},
}

// Valid reports whether s is a known status
func (s DocumentStatus) Valid() bool {
	_, ok := documentTransitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is permitted
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	for _, allowed := range documentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Payable reports whether a document in this status can be settled
func (s DocumentStatus) Payable() bool {
	return s.CanTransitionTo(StatusPaid)
}

// StatusHistoryEntry is one append-only status change record
type StatusHistoryEntry struct {
	Status    DocumentStatus `json:"status"`
	ChangedBy string         `json:"changedBy"`
	ChangedAt time.Time      `json:"changedAt"`
	Notes     string         `json:"notes,omitempty"`
}

// CryptoDetails is the nested crypto block of a payment method snapshot
type CryptoDetails struct {
	Network       string `json:"network,omitempty"`
	ChainID       uint64 `json:"chainId,omitempty"`
	TokenAddress  string `json:"tokenAddress,omitempty"`
	TokenDecimals int    `json:"tokenDecimals,omitempty"`
	TokenSymbol   string `json:"tokenSymbol,omitempty"`
	Address       string `json:"address,omitempty"`
}

// PaymentMethodDetails is the payee payment snapshot as captured on a document.
// Older documents carry crypto fields at the top level, newer ones nest them.
type PaymentMethodDetails struct {
	Method        string         `json:"method,omitempty"`
	CryptoDetails *CryptoDetails `json:"cryptoDetails,omitempty"`
	Network       string         `json:"cryptoNetwork,omitempty"`
	ChainID       uint64         `json:"chainId,omitempty"`
	TokenAddress  string         `json:"tokenAddress,omitempty"`
	TokenDecimals int            `json:"tokenDecimals,omitempty"`
	TokenSymbol   string         `json:"tokenSymbol,omitempty"`
	WalletAddress string         `json:"walletAddress,omitempty"`
	PayeeAddress  string         `json:"payeeAddress,omitempty"`
}

// PaymentTarget is the canonical destination of a payment
type PaymentTarget struct {
	ChainID      uint64 `json:"chainId"`
	Network      string `json:"network,omitempty"`
	TokenAddress string `json:"tokenAddress"`
	ToAddress    string `json:"toAddress"`
	Decimals     int    `json:"decimals"`
	Symbol       string `json:"symbol,omitempty"`
}

// NormalizePaymentTarget collapses the nested and legacy field locations into one PaymentTarget
func NormalizePaymentTarget(d PaymentMethodDetails) PaymentTarget {
	var nested CryptoDetails
	if d.CryptoDetails != nil {
		nested = *d.CryptoDetails
	}
	target := PaymentTarget{
		ChainID:      firstUint(nested.ChainID, d.ChainID),
		Network:      firstString(nested.Network, d.Network),
		TokenAddress: strings.ToLower(firstString(nested.TokenAddress, d.TokenAddress)),
		ToAddress:    strings.ToLower(firstString(nested.Address, d.PayeeAddress, d.WalletAddress)),
		Decimals:     firstInt(nested.TokenDecimals, d.TokenDecimals),
		Symbol:       firstString(nested.TokenSymbol, d.TokenSymbol),
	}
	return target
}

// Key identifies the (chain, token) group of a target
func (t PaymentTarget) Key() string {
	return strings.ToLower(strconv.FormatUint(t.ChainID, 10) + "-" + t.TokenAddress)
}

// PaymentDetails records the evidence of a settlement on a document
type PaymentDetails struct {
	Method      string     `json:"method,omitempty"`
	TxHash      string     `json:"txHash,omitempty"`
	FromAddress string     `json:"fromAddress,omitempty"`
	ChainID     uint64     `json:"chainId,omitempty"`
	PaidAt      *time.Time `json:"paidAt,omitempty"`
}

// Document is the payment-relevant view shared by invoices and payables
type Document struct {
	ID             string               `json:"id" gorm:"primaryKey"`
	Number         string               `json:"number"`
	IssuerID       string               `json:"issuerId"`
	UserID         string               `json:"userId" gorm:"index"`
	OrganizationID string               `json:"organizationId,omitempty" gorm:"index"`
	OwnerEmail     string               `json:"ownerEmail,omitempty" gorm:"index"`
	Counterparty   string               `json:"counterparty"`
	Currency       string               `json:"currency"`
	Total          decimal.Decimal      `json:"total" gorm:"type:text"`
	Status         DocumentStatus       `json:"status" gorm:"index"`
	PaymentMethod  PaymentMethodDetails `json:"paymentMethodDetails" gorm:"serializer:json"`
	PaymentDetails PaymentDetails       `json:"paymentDetails" gorm:"serializer:json"`
	StatusHistory  []StatusHistoryEntry `json:"statusHistory" gorm:"serializer:json"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

// VisibleTo reports whether the scope owns the document
func (d *Document) VisibleTo(scope OwnerScope) bool {
	if scope.IsOrganization() {
		return d.OrganizationID == scope.ID
	}
	if d.OrganizationID != "" {
		return false
	}
	key := scope.UserKey()
	return d.IssuerID == key || d.UserID == key || (d.OwnerEmail != "" && strings.EqualFold(d.OwnerEmail, scope.Email))
}

// Target returns the normalized payment target of the document
func (d *Document) Target() PaymentTarget {
	return NormalizePaymentTarget(d.PaymentMethod)
}

// Invoice is a receivable
type Invoice struct {
	Document
}

// Payable is an amount owed to a vendor
type Payable struct {
	Document
	RelatedInvoiceID string `json:"relatedInvoiceId,omitempty" gorm:"index"`
}

// DocumentRef points at a single invoice or payable
type DocumentRef struct {
	Kind DocumentKind `json:"kind"`
	ID   string       `json:"id"`
}

func firstString(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstUint(values ...uint64) uint64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstInt(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
