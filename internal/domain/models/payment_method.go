package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/safepay-org/safepay/internal/domain"
)

// ConnectionMethod records how a Safe became known to the system
type ConnectionMethod string

const (
	ConnectionImported ConnectionMethod = "imported"
	ConnectionSafeApp  ConnectionMethod = "safe_app"
)

// PaymentMethodType is the payment method category
type PaymentMethodType string

const (
	PaymentMethodCrypto PaymentMethodType = "crypto"
)

// SafeWalletDetails is the on-chain state of a Safe as last observed
type SafeWalletDetails struct {
	SafeAddress       string           `json:"safeAddress" gorm:"index"`
	Owners            []string         `json:"owners" gorm:"serializer:json"`
	Threshold         int              `json:"threshold"`
	Version           string           `json:"version"`
	Modules           []string         `json:"modules" gorm:"serializer:json"`
	Nonce             uint64           `json:"nonce"`
	ChainID           uint64           `json:"chainId"`
	ConnectionMethod  ConnectionMethod `json:"connectionMethod"`
	SafeAppAuthorized bool             `json:"safeAppAuthorized"`
	AuthorizedAt      *time.Time       `json:"authorizedAt,omitempty"`
}

// Validate enforces the owner and threshold invariants
func (d *SafeWalletDetails) Validate() error {
	if len(d.Owners) == 0 {
		return fmt.Errorf("%w: safe has no owners", domain.ErrInvalidThreshold)
	}
	seen := make(map[string]struct{}, len(d.Owners))
	for _, owner := range d.Owners {
		key := strings.ToLower(owner)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate owner %s", domain.ErrInvalidThreshold, owner)
		}
		seen[key] = struct{}{}
	}
	if d.Threshold < 1 || d.Threshold > len(d.Owners) {
		return fmt.Errorf("%w: threshold %d with %d owners", domain.ErrInvalidThreshold, d.Threshold, len(d.Owners))
	}
	return nil
}

// IsOwner reports whether address is one of the Safe owners
func (d *SafeWalletDetails) IsOwner(address string) bool {
	for _, owner := range d.Owners {
		if strings.EqualFold(owner, address) {
			return true
		}
	}
	return false
}

// UpdateNonce advances the stored nonce, refusing to move it backwards
func (d *SafeWalletDetails) UpdateNonce(nonce uint64) error {
	if nonce < d.Nonce {
		return fmt.Errorf("%w: stored %d, observed %d", domain.ErrNonceDecrease, d.Nonce, nonce)
	}
	d.Nonce = nonce
	return nil
}

// PaymentMethod is a stored crypto payment method backed by a Safe
type PaymentMethod struct {
	ID             string            `json:"id" gorm:"primaryKey"`
	Name           string            `json:"name"`
	Type           PaymentMethodType `json:"type"`
	OrganizationID string            `json:"organizationId,omitempty" gorm:"index"`
	UserID         string            `json:"userId" gorm:"index"`
	IsActive       bool              `json:"isActive" gorm:"index"`
	IsDefault      bool              `json:"isDefault"`
	Tags           []string          `json:"tags" gorm:"serializer:json"`
	Safe           SafeWalletDetails `json:"safeDetails" gorm:"embedded;embeddedPrefix:safe_"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// VisibleTo reports whether the scope may read or change this payment method
func (p *PaymentMethod) VisibleTo(scope OwnerScope) bool {
	if scope.IsOrganization() {
		return p.OrganizationID == scope.ID
	}
	return p.OrganizationID == "" && p.UserID == scope.UserKey()
}

// SafeWalletSummary is the list view of a connected Safe
type SafeWalletSummary struct {
	PaymentMethodID string   `json:"paymentMethodId"`
	Name            string   `json:"name"`
	SafeAddress     string   `json:"safeAddress"`
	Owners          []string `json:"owners"`
	Threshold       int      `json:"threshold"`
	ChainID         uint64   `json:"chainId"`
	IsDefault       bool     `json:"isDefault"`
}

// Summary projects a payment method to its list view
func (p *PaymentMethod) Summary() SafeWalletSummary {
	return SafeWalletSummary{
		PaymentMethodID: p.ID,
		Name:            p.Name,
		SafeAddress:     p.Safe.SafeAddress,
		Owners:          p.Safe.Owners,
		Threshold:       p.Safe.Threshold,
		ChainID:         p.Safe.ChainID,
		IsDefault:       p.IsDefault,
	}
}

// SafeWalletName formats the display name for an imported Safe
func SafeWalletName(address string) string {
	if len(address) < 10 {
		return fmt.Sprintf("Safe Wallet (%s)", address)
	}
	return fmt.Sprintf("Safe Wallet (%s...%s)", address[:6], address[len(address)-4:])
}

// Organization holds the Safe-related projection of an organization
type Organization struct {
	ID                   string    `json:"id" gorm:"primaryKey"`
	Name                 string    `json:"name"`
	OwnerUserID          string    `json:"ownerUserId" gorm:"index"`
	ConnectedSafeWallets []string  `json:"connectedSafeWallets" gorm:"serializer:json"`
	SafeAddress          string    `json:"safeAddress,omitempty"`
	SafeOwners           []string  `json:"safeOwners,omitempty" gorm:"serializer:json"`
	SafeThreshold        int       `json:"safeThreshold,omitempty"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// AddSafeWallet adds a payment method id with set semantics
func (o *Organization) AddSafeWallet(id string) bool {
	for _, existing := range o.ConnectedSafeWallets {
		if existing == id {
			return false
		}
	}
	o.ConnectedSafeWallets = append(o.ConnectedSafeWallets, id)
	return true
}

// RemoveSafeWallet removes every occurrence of id
func (o *Organization) RemoveSafeWallet(id string) bool {
	kept := o.ConnectedSafeWallets[:0]
	removed := false
	for _, existing := range o.ConnectedSafeWallets {
		if existing == id {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	o.ConnectedSafeWallets = kept
	return removed
}
