package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safepay-org/safepay/internal/domain"
)

func TestFail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name      string
		err       error
		status    int
		success   bool
		message   string
		notice    string
		retryable bool
	}{
		{"validation reason", domain.NewValidationError("txHash", "Invalid transaction hash"), http.StatusBadRequest, false, "Invalid transaction hash", "", false},
		{"nonce conflict is retryable", errors.Join(errors.New("propose"), domain.ErrNonceConflict), http.StatusServiceUnavailable, false, "", "", true},
		{"already paid", domain.ErrAlreadyPaid, http.StatusOK, true, "", "already paid", false},
		{"already connected", domain.ErrAlreadyConnected, http.StatusOK, true, "", "already connected", false},
		{"read-only safe", domain.ErrSafeReadOnly, http.StatusConflict, false, domain.ErrSafeReadOnly.Error(), "", false},
		{"forbidden source", domain.ErrForbiddenSource, http.StatusForbidden, false, "", "", false},
		{"foreign organization", domain.ErrOrganizationMismatch, http.StatusForbidden, false, domain.ErrOrganizationMismatch.Error(), "", false},
		{"bad signature", domain.ErrInvalidSignature, http.StatusUnauthorized, false, "", "", false},
		{"internal is masked", errors.New("pq: connection refused"), http.StatusInternalServerError, false, "Something went wrong, please try again", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/payments/safe", nil)

			fail(c, log, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body envelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.success, body.Success)
			assert.Equal(t, tt.retryable, body.Retryable)
			assert.Equal(t, tt.notice, body.Notice)
			if tt.message != "" {
				assert.Equal(t, tt.message, body.Error)
			}
		})
	}
}
