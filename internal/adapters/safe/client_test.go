package safe

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safepay-org/safepay/internal/chains"
	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/config"
	"github.com/safepay-org/safepay/internal/domain/models"
)

const (
	testSafe       = "0x1234567890abcdef1234567890abcdef12345678"
	testSafeTxHash = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, apiKey string) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	chain := chains.BuiltinChains[0]
	chain.SafeServiceURL = server.URL + "/"
	registry, err := chains.NewRegistry([]chains.Chain{chain}, chains.DefaultChainID)
	require.NoError(t, err)

	cfg := &config.RuntimeConfig{Safe: config.SafeConfig{APIKey: apiKey}}
	return NewClient(cfg, registry, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_GetSafeInfo(t *testing.T) {
	t.Run("string nonce and checksummed path", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/safes/0x1234567890AbcdEF1234567890aBcdef12345678/", r.URL.Path)
			assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"address":"0x1234567890AbcdEF1234567890aBcdef12345678","nonce":"7","threshold":2,
				"owners":["0x1111111111111111111111111111111111111111","0x2222222222222222222222222222222222222222"],"version":"1.3.0"}`))
		}, "key-1")

		info, err := client.GetSafeInfo(context.Background(), 42220, testSafe)
		require.NoError(t, err)
		assert.Equal(t, testSafe, info.Address)
		assert.Equal(t, uint64(7), info.Nonce)
		assert.Equal(t, 2, info.Threshold)
		assert.Len(t, info.Owners, 2)
		assert.Equal(t, uint64(42220), info.ChainID)
	})

	t.Run("numeric nonce without api key", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"address":"` + testSafe + `","nonce":3,"threshold":1,"owners":[]}`))
		}, "")

		info, err := client.GetSafeInfo(context.Background(), 42220, testSafe)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), info.Nonce)
	})

	t.Run("missing safe", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}, "")

		_, err := client.GetSafeInfo(context.Background(), 42220, testSafe)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unknown chain", func(t *testing.T) {
		client := newTestClient(t, func(http.ResponseWriter, *http.Request) {
			t.Fatal("no request expected")
		}, "")

		_, err := client.GetSafeInfo(context.Background(), 1, testSafe)
		assert.ErrorIs(t, err, domain.ErrChainNotFound)
	})

	t.Run("server errors are transient", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}, "")

		_, err := client.GetSafeInfo(context.Background(), 42220, testSafe)
		assert.True(t, domain.IsRetryable(err))
	})
}

func TestClient_ProposeTransaction(t *testing.T) {
	proposal := &models.SafeProposal{
		SafeAddress: testSafe,
		ChainID:     42220,
		To:          "0x48065fbbe25f71c9282ddf5e1cd6d6a887483d5e",
		Value:       "0",
		Data:        "0xa9059cbb",
		Operation:   models.SafeOperationCall,
		Nonce:       4,
		SafeTxHash:  testSafeTxHash,
		Sender:      "0x1111111111111111111111111111111111111111",
		Signature:   "0xsig",
	}

	t.Run("posts the signed transaction", func(t *testing.T) {
		var body map[string]any
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/safes/0x1234567890AbcdEF1234567890aBcdef12345678/multisig-transactions/", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.WriteHeader(http.StatusCreated)
		}, "")

		require.NoError(t, client.ProposeTransaction(context.Background(), proposal))
		assert.Equal(t, "0x48065fbBE25f71C9282ddf5e1cD6D6A887483D5e", body["to"])
		assert.Equal(t, float64(4), body["nonce"])
		assert.Equal(t, testSafeTxHash, body["contractTransactionHash"])
		assert.Equal(t, "0", body["safeTxGas"])
		assert.Equal(t, "0x0000000000000000000000000000000000000000", body["refundReceiver"])
		assert.Equal(t, "0xsig", body["signature"])
	})

	t.Run("conflict maps to nonce conflict", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}, "")
		assert.ErrorIs(t, client.ProposeTransaction(context.Background(), proposal), domain.ErrNonceConflict)
	})

	t.Run("nonce validation error maps to nonce conflict", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"nonce":["Nonce=4 too low"]}`))
		}, "")
		assert.ErrorIs(t, client.ProposeTransaction(context.Background(), proposal), domain.ErrNonceConflict)
	})

	t.Run("other client errors are permanent", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"signature":["invalid"]}`))
		}, "")
		err := client.ProposeTransaction(context.Background(), proposal)
		require.Error(t, err)
		assert.False(t, domain.IsRetryable(err))
		assert.Contains(t, err.Error(), "status 400")
	})
}

func TestClient_GetExecutionInfo(t *testing.T) {
	t.Run("executed transaction", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/multisig-transactions/"+testSafeTxHash+"/", r.URL.Path)
			_, _ = w.Write([]byte(`{"safe":"` + testSafe + `","safeTxHash":"` + testSafeTxHash + `","nonce":4,
				"isExecuted":true,"isSuccessful":true,"executionDate":"2026-10-01T10:00:00Z",
				"transactionHash":"0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC",
				"confirmationsRequired":2,"submissionDate":"2026-10-01T09:00:00Z",
				"confirmations":[
					{"owner":"0x1111111111111111111111111111111111111111","submissionDate":"2026-10-01T09:00:00Z","signature":"0x01"},
					{"owner":"0x2222222222222222222222222222222222222222","submissionDate":"2026-10-01T09:30:00Z","signature":"0x02"}]}`))
		}, "")

		info, err := client.GetExecutionInfo(context.Background(), 42220, testSafeTxHash)
		require.NoError(t, err)
		assert.True(t, info.IsExecuted)
		require.NotNil(t, info.IsSuccessful)
		assert.True(t, *info.IsSuccessful)
		assert.Equal(t, "0xcccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc", info.TxHash)
		assert.Equal(t, 2, info.Confirmations)
		assert.Equal(t, 2, info.ConfirmationsRequired)
		require.Len(t, info.ConfirmationDetails, 2)
		require.NotNil(t, info.ExecutedAt)
	})

	t.Run("pending transaction has no tx hash", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"safeTxHash":"` + testSafeTxHash + `","nonce":"4","isExecuted":false,"transactionHash":null,
				"confirmationsRequired":2,"submissionDate":"2026-10-01T09:00:00Z","confirmations":[]}`))
		}, "")

		info, err := client.GetExecutionInfo(context.Background(), 42220, testSafeTxHash)
		require.NoError(t, err)
		assert.False(t, info.IsExecuted)
		assert.Empty(t, info.TxHash)
		assert.Zero(t, info.Confirmations)
	})

	t.Run("unknown hash", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}, "")

		_, err := client.GetExecutionInfo(context.Background(), 42220, testSafeTxHash)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
