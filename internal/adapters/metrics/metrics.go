package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/safepay-org/safepay/internal/usecase"
)

const namespace = "safepay"

// Metrics holds the Prometheus counters for settlement and webhook processing
type Metrics struct {
	Settlements        *prometheus.CounterVec
	LedgerSyncFailures *prometheus.CounterVec
	WebhookEvents      *prometheus.CounterVec
	WebhookRejections  *prometheus.CounterVec
	SafeProposals      *prometheus.CounterVec
	HandshakeAttempts  *prometheus.CounterVec
}

// New creates the counters and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Payments recorded, by wallet kind and outcome",
		}, []string{"kind", "outcome"}),
		LedgerSyncFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_sync_failures_total",
			Help:      "Ledger upserts that failed after a document was marked paid",
		}, []string{"kind"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment processor webhook events, by event and outcome",
		}, []string{"event", "outcome"}),
		WebhookRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_rejections_total",
			Help:      "Webhook deliveries rejected before processing",
		}, []string{"reason"}),
		SafeProposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safe_proposals_total",
			Help:      "Safe Transaction Service proposals, by outcome",
		}, []string{"outcome"}),
		HandshakeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safe_handshake_attempts_total",
			Help:      "Safe App handshake attempts, by outcome",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Settlements, m.LedgerSyncFailures, m.WebhookEvents, m.WebhookRejections, m.SafeProposals, m.HandshakeAttempts)
	}
	return m
}

func (m *Metrics) IncSettlement(kind, outcome string) {
	if m == nil || m.Settlements == nil {
		return
	}
	m.Settlements.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) IncLedgerSyncFailure(kind string) {
	if m == nil || m.LedgerSyncFailures == nil {
		return
	}
	m.LedgerSyncFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncWebhookEvent(event, outcome string) {
	if m == nil || m.WebhookEvents == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) IncWebhookRejection(reason string) {
	if m == nil || m.WebhookRejections == nil {
		return
	}
	m.WebhookRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncSafeProposal(outcome string) {
	if m == nil || m.SafeProposals == nil {
		return
	}
	m.SafeProposals.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncHandshakeAttempt(outcome string) {
	if m == nil || m.HandshakeAttempts == nil {
		return
	}
	m.HandshakeAttempts.WithLabelValues(outcome).Inc()
}

var _ usecase.Metrics = (*Metrics)(nil)
