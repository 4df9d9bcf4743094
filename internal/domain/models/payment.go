package models

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/safepay-org/safepay/internal/domain"
)

// PaymentState is a step in the life of one payment intent
type PaymentState string

const (
	PaymentIdle            PaymentState = "idle"
	PaymentWalletConnected PaymentState = "wallet_connected"
	PaymentProposing       PaymentState = "proposing"
	PaymentProposedSafe    PaymentState = "proposed_safe"
	PaymentBroadcasting    PaymentState = "broadcasting"
	PaymentSubmitted       PaymentState = "submitted"
	PaymentExecuted        PaymentState = "executed"
	PaymentConfirmed       PaymentState = "confirmed"
	PaymentFailed          PaymentState = "failed"
)

var paymentTransitions = map[PaymentState][]PaymentState{
	PaymentIdle:            {PaymentWalletConnected},
	PaymentWalletConnected: {PaymentProposing},
	PaymentProposing:       {PaymentProposedSafe, PaymentBroadcasting, PaymentFailed},
	PaymentProposedSafe:    {PaymentExecuted, PaymentFailed},
	PaymentExecuted:        {PaymentConfirmed, PaymentFailed},
	PaymentBroadcasting:    {PaymentSubmitted, PaymentFailed},
	PaymentSubmitted:       {PaymentConfirmed, PaymentFailed},
	PaymentConfirmed:       {},
	PaymentFailed:          {},
}

// Valid reports whether s is a known payment state
func (s PaymentState) Valid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

// CanTransition reports whether from -> to is a legal payment step
func CanTransition(from, to PaymentState) bool {
	for _, allowed := range paymentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// PaymentFlow tracks one intent through the payment state machine
type PaymentFlow struct {
	State   PaymentState   `json:"state"`
	History []PaymentState `json:"history"`
}

// NewPaymentFlow starts a flow in the idle state
func NewPaymentFlow() *PaymentFlow {
	return &PaymentFlow{State: PaymentIdle, History: []PaymentState{PaymentIdle}}
}

// Advance moves the flow to next or reports an illegal transition
func (f *PaymentFlow) Advance(next PaymentState) error {
	if !CanTransition(f.State, next) {
		return fmt.Errorf("%w: payment %s -> %s", domain.ErrInvalidTransition, f.State, next)
	}
	f.State = next
	f.History = append(f.History, next)
	return nil
}

// Fail moves the flow to failed from any non-terminal state
func (f *PaymentFlow) Fail() {
	if CanTransition(f.State, PaymentFailed) {
		f.State = PaymentFailed
		f.History = append(f.History, PaymentFailed)
	}
}

// Transfer is one token transfer within a payment
type Transfer struct {
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// PaymentIntent is the transient description of what to pay
type PaymentIntent struct {
	InvoiceIDs    []string        `json:"invoiceIds"`
	PayableIDs    []string        `json:"payableIds"`
	TokenAddress  string          `json:"tokenAddress"`
	ToAddress     string          `json:"toAddress"`
	Amount        decimal.Decimal `json:"amount"`
	ChainID       uint64          `json:"chainId"`
	TokenDecimals int             `json:"tokenDecimals"`
	Transfers     []Transfer      `json:"transfers"`
}

// Target returns the canonical target of the intent
func (p *PaymentIntent) Target() PaymentTarget {
	return PaymentTarget{
		ChainID:      p.ChainID,
		TokenAddress: p.TokenAddress,
		ToAddress:    p.ToAddress,
		Decimals:     p.TokenDecimals,
	}
}

// ToBaseUnits converts a human amount to integer token units using exact decimal arithmetic.
// Amounts with more fractional digits than decimals are rejected rather than rounded.
func ToBaseUnits(amount decimal.Decimal, decimals int) (*big.Int, error) {
	if decimals < 0 || decimals > 77 {
		return nil, domain.NewValidationError("tokenDecimals", fmt.Sprintf("unsupported token decimals %d", decimals))
	}
	if !amount.IsPositive() {
		return nil, domain.NewValidationError("amount", "amount must be greater than zero")
	}
	scaled := amount.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, domain.NewValidationError("amount", fmt.Sprintf("amount %s has more precision than the token's %d decimals", amount, decimals))
	}
	return scaled.BigInt(), nil
}

// FromBaseUnits converts integer token units back to a decimal amount
func FromBaseUnits(units *big.Int, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(units, -int32(decimals))
}
