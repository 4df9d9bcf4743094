package models

import "time"

// SettlementKind is the wallet path that produced a settlement
type SettlementKind string

const (
	SettlementEOA  SettlementKind = "eoa"
	SettlementSafe SettlementKind = "safe"
)

// SettlementStatus is the lifecycle of a submitted payment
type SettlementStatus string

const (
	SettlementProposed  SettlementStatus = "proposed"
	SettlementSigned    SettlementStatus = "signed"
	SettlementExecuted  SettlementStatus = "executed"
	SettlementConfirmed SettlementStatus = "confirmed"
	SettlementFailed    SettlementStatus = "failed"
)

var settlementTransitions = map[SettlementStatus][]SettlementStatus{
	SettlementProposed:  {SettlementSigned, SettlementExecuted, SettlementConfirmed, SettlementFailed},
	SettlementSigned:    {SettlementExecuted, SettlementFailed},
	SettlementExecuted:  {SettlementConfirmed, SettlementFailed},
	SettlementConfirmed: {},
	SettlementFailed:    {},
}

// Valid reports whether s is a known settlement status
func (s SettlementStatus) Valid() bool {
	_, ok := settlementTransitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is permitted
func (s SettlementStatus) CanTransitionTo(next SettlementStatus) bool {
	for _, allowed := range settlementTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible
func (s SettlementStatus) Terminal() bool {
	return len(settlementTransitions[s]) == 0
}

// Settlement is the authoritative outcome of a payment proposal.
// SafeTxHash identifies a Safe proposal, TxHash an on-chain transaction; they are never interchangeable.
type Settlement struct {
	ID                    string           `json:"id" gorm:"primaryKey"`
	Kind                  SettlementKind   `json:"kind"`
	Status                SettlementStatus `json:"status" gorm:"index"`
	SafeTxHash            string           `json:"safeTxHash,omitempty" gorm:"index"`
	TxHash                string           `json:"txHash,omitempty" gorm:"index"`
	FromAddress           string           `json:"fromAddress"`
	ChainID               uint64           `json:"chainId"`
	SafeAddress           string           `json:"safeAddress,omitempty"`
	SafeNonce             uint64           `json:"safeNonce,omitempty"`
	TokenAddress          string           `json:"tokenAddress"`
	InvoiceIDs            []string         `json:"invoiceIds" gorm:"serializer:json"`
	PayableIDs            []string         `json:"payableIds" gorm:"serializer:json"`
	Scope                 OwnerScope       `json:"scope" gorm:"serializer:json"`
	Confirmations         int              `json:"confirmations"`
	ConfirmationsRequired int              `json:"confirmationsRequired"`
	BlockNumber           uint64           `json:"blockNumber,omitempty"`
	FailureReason         string           `json:"failureReason,omitempty"`
	CreatedAt             time.Time        `json:"createdAt"`
	UpdatedAt             time.Time        `json:"updatedAt"`
	ExecutedAt            *time.Time       `json:"executedAt,omitempty"`
}

// Refs lists the documents settled by this record
func (s *Settlement) Refs() []DocumentRef {
	refs := make([]DocumentRef, 0, len(s.InvoiceIDs)+len(s.PayableIDs))
	for _, id := range s.PayableIDs {
		refs = append(refs, DocumentRef{Kind: DocumentPayable, ID: id})
	}
	for _, id := range s.InvoiceIDs {
		refs = append(refs, DocumentRef{Kind: DocumentInvoice, ID: id})
	}
	return refs
}

// SettlementFilter selects settlements for listing and watching
type SettlementFilter struct {
	Statuses []SettlementStatus
	Kind     SettlementKind
	ChainID  uint64
	Limit    int

	// After resumes a listing past the given settlement in (created_at, id) order
	After *SettlementCursor
}

// SettlementCursor marks a position in a settlement listing
type SettlementCursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorOf returns the cursor positioned at s
func CursorOf(s *Settlement) *SettlementCursor {
	return &SettlementCursor{CreatedAt: s.CreatedAt, ID: s.ID}
}

// Before reports whether s sorts before or at the cursor
func (c *SettlementCursor) Before(s *Settlement) bool {
	if s.CreatedAt.Equal(c.CreatedAt) {
		return s.ID <= c.ID
	}
	return s.CreatedAt.Before(c.CreatedAt)
}
