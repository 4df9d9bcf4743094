package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/safepay-org/safepay/internal/adapters/wallet"
	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/usecase"
)

// Identity headers set by the upstream auth layer
const (
	HeaderUserID         = "X-User-ID"
	HeaderUserEmail      = "X-User-Email"
	HeaderOrganizationID = "X-Organization-ID"
)

const sessionKey = "session"

// requireSession rejects requests that carry no caller identity
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := models.Session{
			UserID:         strings.TrimSpace(c.GetHeader(HeaderUserID)),
			Email:          strings.TrimSpace(c.GetHeader(HeaderUserEmail)),
			OrganizationID: strings.TrimSpace(c.GetHeader(HeaderOrganizationID)),
		}
		if session.UserID == "" && session.Email == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Error: "Authentication required"})
			return
		}
		c.Set(sessionKey, session)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) models.Session {
	v, _ := c.Get(sessionKey)
	session, _ := v.(models.Session)
	return session
}

// walletContext derives the wallet environment from request headers
func (s *Server) walletContext(c *gin.Context) usecase.WalletContext {
	claims := wallet.ClaimsFromHeaders(c.GetHeader)
	return claims.Context(s.deps.SafeService, s.deps.ChainReader, s.deps.Injected)
}
