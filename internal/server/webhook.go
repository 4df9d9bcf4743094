package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/usecase"
)

// maxWebhookBody caps the raw body read for signature verification
const maxWebhookBody = 1 << 20

// handlePaystackWebhook acknowledges every authentic delivery with 200.
func (s *Server) handlePaystackWebhook(c *gin.Context) {
	if err := s.deps.Gate.CheckSource(usecase.ClientIP(c.GetHeader)); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	signature := c.GetHeader(usecase.SignatureHeader)
	if err := s.deps.Gate.VerifySignature(body, signature); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	result, err := s.deps.Webhooks.Run(c.Request.Context(), usecase.ProcessWebhookParams{Body: body, Signature: signature})
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, gin.H{"error": ve.Reason})
			return
		}
		s.log.Error("webhook processing failed", "error", err)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	s.log.Info("webhook processed", "event", result.Event, "outcome", result.Outcome, "replay", result.Replay)
	c.JSON(http.StatusOK, gin.H{"received": true})
}
