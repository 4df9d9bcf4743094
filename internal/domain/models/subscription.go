package models

import (
	"encoding/json"
	"time"
)

// SubscriptionStatus is the billing state of a subscription
type SubscriptionStatus string

const (
	SubscriptionActive      SubscriptionStatus = "active"
	SubscriptionNonRenewing SubscriptionStatus = "non_renewing"
	SubscriptionPastDue     SubscriptionStatus = "past_due"
	SubscriptionCancelled   SubscriptionStatus = "cancelled"
)

var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionActive:      {SubscriptionNonRenewing, SubscriptionPastDue, SubscriptionCancelled},
	SubscriptionNonRenewing: {SubscriptionActive, SubscriptionPastDue, SubscriptionCancelled},
	SubscriptionPastDue:     {SubscriptionActive, SubscriptionNonRenewing, SubscriptionCancelled},
	SubscriptionCancelled:   {},
}

// Valid reports whether s is a known subscription status
func (s SubscriptionStatus) Valid() bool {
	_, ok := subscriptionTransitions[s]
	return ok
}

// CanTransitionTo reports whether s may move to next. Staying put is always allowed.
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range subscriptionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the subscription can no longer change status
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionCancelled
}

// Subscription is the local projection of a processor subscription, keyed by its code
type Subscription struct {
	SubscriptionCode    string             `json:"subscriptionCode" gorm:"primaryKey"`
	CustomerCode        string             `json:"customerCode" gorm:"index"`
	Email               string             `json:"email"`
	PlanCode            string             `json:"planCode"`
	PlanID              string             `json:"planId"`
	BillingPeriod       string             `json:"billingPeriod"`
	Status              SubscriptionStatus `json:"status"`
	NextPaymentDate     *time.Time         `json:"nextPaymentDate,omitempty"`
	LastChargeReference string             `json:"lastChargeReference,omitempty"`
	CreatedAt           time.Time          `json:"createdAt"`
	UpdatedAt           time.Time          `json:"updatedAt"`
}

// ProcessedCharge marks a charge reference as applied
type ProcessedCharge struct {
	Reference    string    `json:"reference" gorm:"primaryKey"`
	CustomerCode string    `json:"customerCode"`
	Event        string    `json:"event"`
	ProcessedAt  time.Time `json:"processedAt"`
}

// WebhookEvent is the envelope of an inbound processor event
type WebhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
