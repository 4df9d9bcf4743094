package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safepay-org/safepay/internal/adapters/repository/memory"
	"github.com/safepay-org/safepay/internal/domain/config"
	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/server"
	"github.com/safepay-org/safepay/internal/usecase"
)

const (
	testSecret  = "sk_test_secret"
	paystackIP  = "52.31.139.75"
	payeeAddr   = "0x2222222222222222222222222222222222222222"
	usdtCelo    = "0x48065fbbe25f71c9282ddf5e1cd6d6a887483d5e"
	reportedTx  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	walletOwner = "0x1111111111111111111111111111111111111111"
)

type harness struct {
	store   *memory.Store
	handler http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.RuntimeConfig{Webhook: config.WebhookConfig{Secret: testSecret}}
	store := memory.NewStore()
	metrics := usecase.NopMetrics{}

	recorder := usecase.NewRecordPayment(store, store, store, metrics, log)
	deps := server.Deps{
		ManageSafes: usecase.NewManageSafes(nil, nil, store, store, log),
		Connector:   usecase.NewWalletConnector(cfg, metrics, log),
		Recorder:    recorder,
		Settlements: store,
		Gate:        usecase.NewWebhookGate(cfg, metrics, log),
		Webhooks:    usecase.NewProcessWebhook(store, nil, metrics, log),
	}
	return &harness{store: store, handler: server.New(cfg, deps, log).Handler()}
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Notice  string          `json:"notice"`
}

func (h *harness) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var resp response
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func orgHeaders() map[string]string {
	return map[string]string{
		server.HeaderUserID:         "user-1",
		server.HeaderUserEmail:      "alice@example.com",
		server.HeaderOrganizationID: "org-1",
	}
}

func (h *harness) seedPayable(t *testing.T, id string, status models.DocumentStatus) {
	t.Helper()
	require.NoError(t, h.store.SavePayable(context.Background(), &models.Payable{Document: models.Document{
		ID:             id,
		Number:         "BILL-" + id,
		OrganizationID: "org-1",
		UserID:         "user-1",
		Currency:       "USDT",
		Total:          decimal.RequireFromString("100"),
		Status:         status,
		PaymentMethod: models.PaymentMethodDetails{
			Method: "crypto",
			CryptoDetails: &models.CryptoDetails{
				ChainID:       42220,
				TokenAddress:  usdtCelo,
				TokenDecimals: 6,
				Address:       payeeAddr,
			},
		},
		CreatedAt: time.Now(),
	}}))
}

func TestServer_Health(t *testing.T) {
	h := newHarness(t)
	rec, _ := h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_RequiresSession(t *testing.T) {
	h := newHarness(t)
	rec, resp := h.do(t, http.MethodGet, "/api/v1/safes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Authentication required", resp.Error)
}

func TestServer_ListSafes_Empty(t *testing.T) {
	h := newHarness(t)
	rec, resp := h.do(t, http.MethodGet, "/api/v1/safes", "", orgHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `[]`, string(resp.Data))
}

func TestServer_PayWithHash(t *testing.T) {
	body := `{"txHash":"` + reportedTx + `","fromAddress":"` + walletOwner + `","chainId":42220}`

	t.Run("approved payable is marked paid", func(t *testing.T) {
		h := newHarness(t)
		h.seedPayable(t, "p1", models.StatusApproved)

		rec, resp := h.do(t, http.MethodPost, "/api/v1/payables/p1/pay-with-hash", body, orgHeaders())
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.True(t, resp.Success)
		assert.Empty(t, resp.Notice)

		p, err := h.store.GetPayable(context.Background(), "p1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPaid, p.Status)
		assert.Equal(t, reportedTx, p.PaymentDetails.TxHash)
	})

	t.Run("second report is an already paid notice", func(t *testing.T) {
		h := newHarness(t)
		h.seedPayable(t, "p1", models.StatusApproved)
		h.do(t, http.MethodPost, "/api/v1/payables/p1/pay-with-hash", body, orgHeaders())

		rec, resp := h.do(t, http.MethodPost, "/api/v1/payables/p1/pay-with-hash", body, orgHeaders())
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
		assert.Equal(t, "already paid", resp.Notice)
	})

	t.Run("malformed hash is a bad request", func(t *testing.T) {
		h := newHarness(t)
		h.seedPayable(t, "p1", models.StatusApproved)
		rec, resp := h.do(t, http.MethodPost, "/api/v1/payables/p1/pay-with-hash", `{"txHash":"0x12","chainId":42220}`, orgHeaders())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, resp.Success)
		assert.NotEmpty(t, resp.Error)
	})

	t.Run("invalid json", func(t *testing.T) {
		h := newHarness(t)
		rec, resp := h.do(t, http.MethodPost, "/api/v1/payables/p1/pay-with-hash", `{"txHash":`, orgHeaders())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid request format", resp.Error)
	})
}

func TestServer_GetSettlement(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.CreateSettlement(context.Background(), &models.Settlement{
		ID:     "s1",
		Kind:   models.SettlementEOA,
		Status: models.SettlementExecuted,
		TxHash: reportedTx,
		Scope:  models.OwnerScope{Type: models.ScopeOrganization, ID: "org-1"},
	}))

	rec, resp := h.do(t, http.MethodGet, "/api/v1/settlements/s1", "", orgHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	var st models.Settlement
	require.NoError(t, json.Unmarshal(resp.Data, &st))
	assert.Equal(t, reportedTx, st.TxHash)

	other := orgHeaders()
	other[server.HeaderOrganizationID] = "org-2"
	rec, _ = h.do(t, http.MethodGet, "/api/v1/settlements/s1", "", other)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = h.do(t, http.MethodGet, "/api/v1/settlements/missing", "", orgHeaders())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ConnectEOA(t *testing.T) {
	h := newHarness(t)
	headers := orgHeaders()
	headers["X-Wallet-Address"] = walletOwner
	headers["X-Chain-ID"] = "42220"

	rec, resp := h.do(t, http.MethodGet, "/api/v1/wallets/detect", "", headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hasSafe":false,"hasMetaMask":true,"hasWalletConnect":false}`, string(resp.Data))

	rec, resp = h.do(t, http.MethodPost, "/api/v1/wallets/eoa/connect", "", headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var data struct {
		Wallet models.ConnectedWallet `json:"wallet"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, walletOwner, data.Wallet.Address)
	assert.Equal(t, models.WalletEOA, data.Wallet.Type)
}

func TestServer_PaystackWebhook(t *testing.T) {
	body := `{"event":"subscription.create","data":{"subscription_code":"SUB_1","status":"active","customer":{"customer_code":"CUS_1","email":"a@b.co"}}}`

	post := func(h *harness, ip, payload, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", strings.NewReader(payload))
		req.Header.Set("X-Forwarded-For", ip)
		req.Header.Set(usecase.SignatureHeader, signature)
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("authentic delivery is applied", func(t *testing.T) {
		h := newHarness(t)
		rec := post(h, paystackIP, body, usecase.SignBody([]byte(testSecret), []byte(body)))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true}`, rec.Body.String())

		sub, err := h.store.GetSubscription(context.Background(), "SUB_1")
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionActive, sub.Status)
	})

	t.Run("unknown source is forbidden", func(t *testing.T) {
		h := newHarness(t)
		rec := post(h, "8.8.8.8", body, usecase.SignBody([]byte(testSecret), []byte(body)))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("bad signature is unauthorized", func(t *testing.T) {
		h := newHarness(t)
		rec := post(h, paystackIP, body, "deadbeef")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		_, err := h.store.GetSubscription(context.Background(), "SUB_1")
		assert.Error(t, err)
	})

	t.Run("malformed json is a bad request", func(t *testing.T) {
		h := newHarness(t)
		payload := `{"event":`
		rec := post(h, paystackIP, payload, usecase.SignBody([]byte(testSecret), []byte(payload)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown events are acknowledged", func(t *testing.T) {
		h := newHarness(t)
		payload := `{"event":"transfer.success","data":{}}`
		rec := post(h, paystackIP, payload, usecase.SignBody([]byte(testSecret), []byte(payload)))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	})
}
