package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncSettlement("safe", "proposed")
	m.IncSettlement("safe", "proposed")
	m.IncSettlement("eoa", "paid")
	m.IncLedgerSyncFailure("payable")
	m.IncWebhookEvent("charge.success", "applied")
	m.IncWebhookRejection("signature")
	m.IncSafeProposal("ok")
	m.IncHandshakeAttempt("timeout")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Settlements.WithLabelValues("safe", "proposed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Settlements.WithLabelValues("eoa", "paid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerSyncFailures.WithLabelValues("payable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandshakeAttempts.WithLabelValues("timeout")))

	expected := `
# HELP safepay_webhook_rejections_total Webhook deliveries rejected before processing
# TYPE safepay_webhook_rejections_total counter
safepay_webhook_rejections_total{reason="signature"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "safepay_webhook_rejections_total"))

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncSettlement("safe", "proposed")
		m.IncLedgerSyncFailure("invoice")
		m.IncWebhookEvent("x", "y")
		m.IncWebhookRejection("ip")
		m.IncSafeProposal("error")
		m.IncHandshakeAttempt("ok")
	})

	empty := &Metrics{}
	assert.NotPanics(t, func() { empty.IncSettlement("eoa", "paid") })
}
