package usecase

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/config"
	"github.com/safepay-org/safepay/internal/domain/models"
)

// DefaultWebhookIPs are the addresses the payment processor sends webhooks from
var DefaultWebhookIPs = []string{"52.31.139.75", "52.49.173.169", "52.214.14.220"}

// SignatureHeader carries the hex HMAC-SHA512 of the raw body
const SignatureHeader = "x-paystack-signature"

// Webhook event types
const (
	EventSubscriptionCreate  = "subscription.create"
	EventSubscriptionUpdate  = "subscription.update"
	EventSubscriptionDisable = "subscription.disable"
	EventChargeSuccess       = "charge.success"
	EventChargeFailed        = "charge.failed"
)

// WebhookGate rejects webhook requests that fail the source-address or signature checks
type WebhookGate struct {
	secret        []byte
	allowed       map[string]struct{}
	skipIP        bool
	skipSignature bool
	metrics       Metrics
	log           *slog.Logger
}

// NewWebhookGate creates a gate from the webhook configuration
func NewWebhookGate(cfg *config.RuntimeConfig, metrics Metrics, log *slog.Logger) *WebhookGate {
	g := &WebhookGate{
		allowed: make(map[string]struct{}),
		metrics: metrics,
		log:     log.With("component", "webhook"),
	}
	ips := DefaultWebhookIPs
	if cfg != nil {
		g.secret = []byte(cfg.Webhook.Secret)
		g.skipIP = cfg.Webhook.DisableIPCheck
		g.skipSignature = cfg.Webhook.DisableSignatureCheck
		if len(cfg.Webhook.AllowedIPs) > 0 {
			ips = cfg.Webhook.AllowedIPs
		}
	}
	for _, ip := range ips {
		g.allowed[strings.TrimSpace(ip)] = struct{}{}
	}
	return g
}

// ClientIP returns the first hop of x-forwarded-for, x-real-ip or cf-connecting-ip, in that order
func ClientIP(header func(name string) string) string {
	if fwd := header("x-forwarded-for"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := strings.TrimSpace(header("x-real-ip")); ip != "" {
		return ip
	}
	return strings.TrimSpace(header("cf-connecting-ip"))
}

// CheckSource verifies the client address is allow-listed
func (g *WebhookGate) CheckSource(ip string) error {
	if g.skipIP {
		return nil
	}
	if parsed := net.ParseIP(ip); parsed != nil {
		ip = parsed.String()
	}
	if _, ok := g.allowed[ip]; ip == "" || !ok {
		g.reject("ip", "ip", ip)
		return fmt.Errorf("%w: %q", domain.ErrForbiddenSource, ip)
	}
	return nil
}

// VerifySignature checks the HMAC-SHA512 of body against the header value in constant time
func (g *WebhookGate) VerifySignature(body []byte, signature string) error {
	if g.skipSignature {
		return nil
	}
	if len(g.secret) == 0 {
		g.log.Error("webhook secret not configured; rejecting webhook")
		g.reject("no_secret")
		return domain.ErrInvalidSignature
	}
	expected := SignBody(g.secret, body)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) {
		g.reject("signature", "body_bytes", len(body))
		return domain.ErrInvalidSignature
	}
	return nil
}

func (g *WebhookGate) reject(reason string, attrs ...any) {
	g.metrics.IncWebhookRejection(reason)
	g.log.Warn("webhook rejected", append([]any{"event", "webhook_rejected", "reason", reason}, attrs...)...)
}

// SignBody returns the hex HMAC-SHA512 of body under secret
func SignBody(secret, body []byte) string {
	mac := hmac.New(sha512.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ProcessWebhookParams contains a verified webhook delivery
type ProcessWebhookParams struct {
	Body      []byte
	Signature string
}

// ProcessWebhookResult describes how an event was handled
type ProcessWebhookResult struct {
	Event   string
	Outcome string
	Replay  bool
}

// Webhook outcomes
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeTerminal  = "terminal"
	OutcomeIgnored   = "ignored"
	OutcomeReplay    = "replay"
	OutcomeError     = "error"
)

// ProcessWebhook applies subscription billing events so that redeliveries converge on the same state
type ProcessWebhook struct {
	subs    SubscriptionRepository
	guard   ReplayGuard
	metrics Metrics
	log     *slog.Logger
	now     func() time.Time
}

// NewProcessWebhook creates a new ProcessWebhook use case. guard may be nil.
func NewProcessWebhook(subs SubscriptionRepository, guard ReplayGuard, metrics Metrics, log *slog.Logger) *ProcessWebhook {
	return &ProcessWebhook{
		subs:    subs,
		guard:   guard,
		metrics: metrics,
		log:     log.With("component", "webhook"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type webhookCustomer struct {
	CustomerCode string `json:"customer_code"`
	Email        string `json:"email"`
}

type webhookPlan struct {
	PlanCode string `json:"plan_code"`
}

type webhookMetadata struct {
	PlanID        string `json:"planId"`
	BillingPeriod string `json:"billingPeriod"`
}

type webhookData struct {
	SubscriptionCode string          `json:"subscription_code"`
	Reference        string          `json:"reference"`
	Status           string          `json:"status"`
	NextPaymentDate  string          `json:"next_payment_date"`
	Customer         webhookCustomer `json:"customer"`
	Plan             webhookPlan     `json:"plan"`
	Metadata         json.RawMessage `json:"metadata"`
	Subscription     *struct {
		SubscriptionCode string `json:"subscription_code"`
	} `json:"subscription"`
}

func (d webhookData) metadata() webhookMetadata {
	var m webhookMetadata
	// processors send metadata as an object, a JSON-encoded string, or ""
	if err := json.Unmarshal(d.Metadata, &m); err != nil {
		var raw string
		if json.Unmarshal(d.Metadata, &raw) == nil && raw != "" {
			_ = json.Unmarshal([]byte(raw), &m)
		}
	}
	return m
}

func (d webhookData) subscriptionCode() string {
	if d.SubscriptionCode != "" {
		return d.SubscriptionCode
	}
	if d.Subscription != nil {
		return d.Subscription.SubscriptionCode
	}
	return ""
}

// Run decodes and applies one event. Malformed JSON is a validation error;
// unknown event types are acknowledged with the ignored outcome.
func (uc *ProcessWebhook) Run(ctx context.Context, params ProcessWebhookParams) (*ProcessWebhookResult, error) {
	var event models.WebhookEvent
	if err := json.Unmarshal(params.Body, &event); err != nil {
		return nil, domain.NewValidationError("body", "Invalid JSON")
	}
	result := &ProcessWebhookResult{Event: event.Event}

	key := replayKey(params)
	if uc.guard != nil {
		seen, err := uc.guard.Seen(ctx, key)
		if err != nil {
			uc.log.Warn("replay guard unavailable", "error", err)
		} else if seen {
			result.Outcome, result.Replay = OutcomeReplay, true
			uc.metrics.IncWebhookEvent(event.Event, OutcomeReplay)
			uc.log.Debug("webhook replay skipped", "event_type", event.Event)
			return result, nil
		}
	}

	var data webhookData
	if len(event.Data) > 0 {
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return nil, domain.NewValidationError("data", "Invalid JSON")
		}
	}

	outcome, err := uc.dispatch(ctx, event.Event, data)
	if err != nil {
		uc.metrics.IncWebhookEvent(event.Event, OutcomeError)
		return nil, fmt.Errorf("failed to process %s: %w", event.Event, err)
	}
	result.Outcome = outcome
	uc.metrics.IncWebhookEvent(event.Event, outcome)

	if uc.guard != nil {
		if err := uc.guard.MarkSeen(ctx, key); err != nil {
			uc.log.Warn("failed to mark webhook seen", "error", err)
		}
	}
	return result, nil
}

func (uc *ProcessWebhook) dispatch(ctx context.Context, eventType string, data webhookData) (string, error) {
	switch eventType {
	case EventSubscriptionCreate, EventSubscriptionUpdate:
		return uc.upsertSubscription(ctx, data, mapSubscriptionStatus(data.Status))
	case EventSubscriptionDisable:
		return uc.upsertSubscription(ctx, data, models.SubscriptionCancelled)
	case EventChargeSuccess:
		return uc.applyCharge(ctx, eventType, data, models.SubscriptionActive)
	case EventChargeFailed:
		return uc.applyCharge(ctx, eventType, data, models.SubscriptionPastDue)
	default:
		uc.log.Info("ignoring unhandled webhook event", "event_type", eventType)
		return OutcomeIgnored, nil
	}
}

func (uc *ProcessWebhook) upsertSubscription(ctx context.Context, data webhookData, status models.SubscriptionStatus) (string, error) {
	code := data.subscriptionCode()
	if code == "" || data.Customer.CustomerCode == "" {
		uc.log.Info("subscription event without subscription or customer code")
		return OutcomeIgnored, nil
	}

	sub, err := uc.subs.GetSubscription(ctx, code)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		sub = &models.Subscription{SubscriptionCode: code}
	case err != nil:
		return "", err
	case !sub.Status.CanTransitionTo(status):
		uc.log.Info("subscription already cancelled", "subscription_code", code, "status", status)
		return OutcomeTerminal, nil
	}

	meta := data.metadata()
	sub.CustomerCode = data.Customer.CustomerCode
	sub.Status = status
	sub.UpdatedAt = uc.now()
	if data.Customer.Email != "" {
		sub.Email = strings.ToLower(data.Customer.Email)
	}
	if data.Plan.PlanCode != "" {
		sub.PlanCode = data.Plan.PlanCode
	}
	if meta.PlanID != "" {
		sub.PlanID = meta.PlanID
	}
	if meta.BillingPeriod != "" {
		sub.BillingPeriod = meta.BillingPeriod
	}
	if next, err := time.Parse(time.RFC3339, data.NextPaymentDate); err == nil {
		next = next.UTC()
		sub.NextPaymentDate = &next
	}

	if err := uc.subs.SaveSubscription(ctx, sub); err != nil {
		return "", err
	}
	uc.log.Info("subscription updated", "subscription_code", code, "status", sub.Status, "plan_id", sub.PlanID)
	return OutcomeApplied, nil
}

func (uc *ProcessWebhook) applyCharge(ctx context.Context, eventType string, data webhookData, status models.SubscriptionStatus) (string, error) {
	if data.Reference == "" || data.Customer.CustomerCode == "" {
		uc.log.Info("charge event without reference or customer code", "event_type", eventType)
		return OutcomeIgnored, nil
	}

	seen, err := uc.subs.ChargeRecorded(ctx, data.Reference)
	if err != nil {
		return "", err
	}
	if seen {
		uc.log.Debug("charge already processed", "reference", data.Reference)
		return OutcomeDuplicate, nil
	}

	var sub *models.Subscription
	if code := data.subscriptionCode(); code != "" {
		sub, err = uc.subs.GetSubscription(ctx, code)
	} else {
		sub, err = uc.subs.FindSubscriptionByCustomer(ctx, data.Customer.CustomerCode)
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		uc.log.Info("charge for unknown subscription", "reference", data.Reference, "customer_code", data.Customer.CustomerCode)
		return uc.recordCharge(ctx, eventType, data, OutcomeApplied)
	case err != nil:
		return "", err
	case sub.Status.Terminal():
		return uc.recordCharge(ctx, eventType, data, OutcomeTerminal)
	}

	sub.Status = status
	sub.LastChargeReference = data.Reference
	sub.UpdatedAt = uc.now()
	if err := uc.subs.SaveSubscription(ctx, sub); err != nil {
		return "", err
	}
	outcome, err := uc.recordCharge(ctx, eventType, data, OutcomeApplied)
	if err != nil {
		return "", err
	}
	uc.log.Info("charge applied", "reference", data.Reference, "subscription_code", sub.SubscriptionCode, "status", sub.Status)
	return outcome, nil
}

// recordCharge marks the reference processed once its effects are stored.
// A concurrent delivery that recorded it first turns the outcome into a duplicate.
func (uc *ProcessWebhook) recordCharge(ctx context.Context, eventType string, data webhookData, outcome string) (string, error) {
	fresh, err := uc.subs.RecordCharge(ctx, &models.ProcessedCharge{
		Reference:    data.Reference,
		CustomerCode: data.Customer.CustomerCode,
		Event:        eventType,
		ProcessedAt:  uc.now(),
	})
	if err != nil {
		return "", err
	}
	if !fresh {
		return OutcomeDuplicate, nil
	}
	return outcome, nil
}

func mapSubscriptionStatus(status string) models.SubscriptionStatus {
	switch strings.ToLower(status) {
	case "non-renewing", "non_renewing":
		return models.SubscriptionNonRenewing
	case "attention", "past_due":
		return models.SubscriptionPastDue
	case "cancelled", "complete", "disabled":
		return models.SubscriptionCancelled
	default:
		return models.SubscriptionActive
	}
}

func replayKey(params ProcessWebhookParams) string {
	if params.Signature != "" {
		return "webhook:" + strings.ToLower(params.Signature)
	}
	sum := sha256.Sum256(params.Body)
	return "webhook:" + hex.EncodeToString(sum[:])
}
