package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for domain operations
var (
	// ErrNotFound is returned when a requested resource doesn't exist or is outside the caller's scope
	ErrNotFound = errors.New("not found")

	// ErrAlreadyPaid is returned when a payable or invoice is already settled
	ErrAlreadyPaid = errors.New("already paid")

	// ErrAlreadyConnected is returned when a Safe is already active for the scope
	ErrAlreadyConnected = errors.New("safe wallet already connected")

	// ErrInvalidAddress is returned when an address is malformed
	ErrInvalidAddress = errors.New("invalid address")

	// ErrChainNotFound is returned when a chain is not in the registry
	ErrChainNotFound = errors.New("chain not found")

	// ErrTokenNotFound is returned when a token is not registered on a chain
	ErrTokenNotFound = errors.New("token not found")

	// ErrInvalidTransition is returned when a status change is not permitted
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStatusChanged is returned when a guarded update finds the status already moved
	ErrStatusChanged = errors.New("status changed concurrently")

	// ErrProposalHashNotSettlement is returned when a Safe proposal hash is reported as payment evidence
	ErrProposalHashNotSettlement = errors.New("hash identifies a Safe proposal, not an executed transaction")

	// ErrInvalidThreshold is returned when a Safe threshold violates 1 <= threshold <= owners
	ErrInvalidThreshold = errors.New("invalid safe threshold")

	// ErrNonceDecrease is returned when a stored Safe nonce would move backwards
	ErrNonceDecrease = errors.New("safe nonce cannot decrease")

	// ErrWalletNotFound is returned when no injected wallet provider exists
	ErrWalletNotFound = errors.New("MetaMask not found. Please install MetaMask extension.")

	// ErrNoAccounts is returned when the wallet provider exposes no accounts
	ErrNoAccounts = errors.New("No accounts found. Please unlock your wallet.")

	// ErrNotInSafeContext is returned when the app is not embedded in the Safe interface
	ErrNotInSafeContext = errors.New("This page must be opened from Safe App. Please use the 'Pay with Safe' button.")

	// ErrSafeTimeout is returned when the Safe handshake fails after exhausting retries
	ErrSafeTimeout = errors.New("Failed to connect to Safe after multiple attempts. Please try refreshing the page or ensure you're using the Safe App interface.")

	// ErrSafeReadOnly is returned when a viewer without signing rights attempts to pay
	ErrSafeReadOnly = errors.New("connected Safe session is read-only")

	// ErrNoSigner is returned when a signing key is required but not configured
	ErrNoSigner = errors.New("no signing key configured")

	// ErrNonceConflict is returned when the Safe service rejects a proposal for a used nonce
	ErrNonceConflict = errors.New("safe nonce conflict")

	// ErrAccessDenied is returned when the session scope cannot see the record
	ErrAccessDenied = errors.New("Payment method not found or access denied")

	// ErrOrganizationMismatch is returned when a request names an organization the session does not belong to
	ErrOrganizationMismatch = errors.New("You do not have access to this organization")

	// ErrUnauthenticated is returned when no session identity is available
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidSignature is returned for webhook HMAC mismatches
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrForbiddenSource is returned for webhook requests from non allow-listed IPs
	ErrForbiddenSource = errors.New("forbidden source address")
)

// ErrorClass groups errors by how callers should react to them
type ErrorClass string

const (
	ErrorClassValidation  ErrorClass = "validation"
	ErrorClassEnvironment ErrorClass = "environment"
	ErrorClassTransient   ErrorClass = "transient"
	ErrorClassIdempotent  ErrorClass = "idempotent"
	ErrorClassSecurity    ErrorClass = "security"
	ErrorClassNotFound    ErrorClass = "not_found"
	ErrorClassInternal    ErrorClass = "internal"
)

// ValidationError is a user-fixable input problem
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return e.Reason
}

// NewValidationError creates a validation error for a field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ChainMismatchError is returned when the connected wallet is on a different chain than required
type ChainMismatchError struct {
	Connected uint64
	Required  uint64
}

func (e ChainMismatchError) Error() string {
	return fmt.Sprintf("wallet is connected to chain %d but this payment requires chain %d, switch network and retry", e.Connected, e.Required)
}

// BatchMismatchError is returned when documents in a batch span chains or tokens
type BatchMismatchError struct {
	Groups []string
}

func (e BatchMismatchError) Error() string {
	return fmt.Sprintf("Invoices must use the same blockchain network and token (found: %s)", strings.Join(e.Groups, ", "))
}

// TransientError marks a failure of an external system that may succeed on retry
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as retryable
func NewTransientError(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

// IsRetryable reports whether the caller may retry the operation unchanged
func IsRetryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te) || errors.Is(err, ErrNonceConflict) || errors.Is(err, ErrSafeTimeout)
}

// Classify maps an error to its handling class
func Classify(err error) ErrorClass {
	var ve *ValidationError
	var cm *ChainMismatchError
	var bm *BatchMismatchError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve), errors.As(err, &bm), errors.Is(err, ErrInvalidAddress),
		errors.Is(err, ErrChainNotFound), errors.Is(err, ErrTokenNotFound),
		errors.Is(err, ErrInvalidThreshold), errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrProposalHashNotSettlement), errors.Is(err, ErrNonceDecrease):
		return ErrorClassValidation
	case errors.As(err, &cm), errors.Is(err, ErrNotInSafeContext), errors.Is(err, ErrWalletNotFound),
		errors.Is(err, ErrNoAccounts), errors.Is(err, ErrSafeReadOnly), errors.Is(err, ErrNoSigner):
		return ErrorClassEnvironment
	case IsRetryable(err):
		return ErrorClassTransient
	case errors.Is(err, ErrAlreadyPaid), errors.Is(err, ErrAlreadyConnected):
		return ErrorClassIdempotent
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrForbiddenSource), errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrOrganizationMismatch):
		return ErrorClassSecurity
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAccessDenied):
		return ErrorClassNotFound
	default:
		return ErrorClassInternal
	}
}
