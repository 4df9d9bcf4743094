package models

import (
	"fmt"
	"strings"

	"github.com/safepay-org/safepay/internal/domain"
)

// Session is the caller identity supplied by the upstream auth layer
type Session struct {
	UserID         string `json:"userId"`
	Email          string `json:"email"`
	OrganizationID string `json:"organizationId,omitempty"`
}

// ScopeType distinguishes organization-owned from individually-owned records
type ScopeType string

const (
	ScopeOrganization ScopeType = "organization"
	ScopeIndividual   ScopeType = "individual"
)

// OwnerScope is the tenant key every query must carry
type OwnerScope struct {
	Type   ScopeType `json:"scopeType"`
	ID     string    `json:"scopeId"`
	UserID string    `json:"userId,omitempty"`
	Email  string    `json:"email,omitempty"`
}

// ResolveOwnerScope picks the organization when one is known, else the session user.
// An explicit organization id must be the session's own organization.
func ResolveOwnerScope(session Session, explicitOrgID string) (OwnerScope, error) {
	email := strings.ToLower(strings.TrimSpace(session.Email))
	scope := OwnerScope{UserID: session.UserID, Email: email}

	orgID := strings.TrimSpace(session.OrganizationID)
	if explicit := strings.TrimSpace(explicitOrgID); explicit != "" && explicit != orgID {
		return OwnerScope{}, fmt.Errorf("organization %s: %w", explicit, domain.ErrOrganizationMismatch)
	}

	switch {
	case orgID != "":
		scope.Type = ScopeOrganization
		scope.ID = orgID
	case email != "":
		scope.Type = ScopeIndividual
		scope.ID = email
	case session.UserID != "":
		scope.Type = ScopeIndividual
		scope.ID = session.UserID
	default:
		return OwnerScope{}, domain.ErrUnauthenticated
	}
	return scope, nil
}

// IsOrganization reports whether the scope is an organization
func (s OwnerScope) IsOrganization() bool {
	return s.Type == ScopeOrganization
}

// OrganizationID returns the organization id, or "" for individual scopes
func (s OwnerScope) OrganizationID() string {
	if s.IsOrganization() {
		return s.ID
	}
	return ""
}

// UserKey is the identifier stored on individually-owned records
func (s OwnerScope) UserKey() string {
	if s.UserID != "" {
		return s.UserID
	}
	return s.ID
}

// Actor identifies who made a change, for status history
func (s OwnerScope) Actor() string {
	if s.UserID != "" {
		return s.UserID
	}
	if s.Email != "" {
		return s.Email
	}
	return s.ID
}

// Matches reports whether a record owned by (organizationID, userID, email) is visible to the scope
func (s OwnerScope) Matches(organizationID, userID, email string) bool {
	if s.IsOrganization() {
		return organizationID == s.ID
	}
	if organizationID != "" {
		return false
	}
	if s.UserID != "" && userID == s.UserID {
		return true
	}
	return email != "" && strings.EqualFold(email, s.ID)
}
