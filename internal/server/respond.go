package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/safepay-org/safepay/internal/domain"
)

// envelope is the body of every action response
type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Notice    string `json:"notice,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func okWithNotice(c *gin.Context, data any, notice string) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data, Notice: notice})
}

// fail converts err into an error envelope. Internal errors are logged and
// reported with a generic message.
func fail(c *gin.Context, log *slog.Logger, err error) {
	class := domain.Classify(err)
	switch class {
	case domain.ErrorClassIdempotent:
		notice := "already connected"
		if errors.Is(err, domain.ErrAlreadyPaid) {
			notice = "already paid"
		}
		okWithNotice(c, nil, notice)
		return
	case domain.ErrorClassInternal:
		log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, envelope{Error: "Something went wrong, please try again"})
		return
	}

	log.Debug("request rejected", "path", c.FullPath(), "class", class, "error", err)
	c.JSON(statusFor(class, err), envelope{
		Error:     errorMessage(err),
		Retryable: class == domain.ErrorClassTransient,
	})
}

func statusFor(class domain.ErrorClass, err error) int {
	switch class {
	case domain.ErrorClassValidation:
		return http.StatusBadRequest
	case domain.ErrorClassEnvironment:
		return http.StatusConflict
	case domain.ErrorClassTransient:
		return http.StatusServiceUnavailable
	case domain.ErrorClassNotFound:
		return http.StatusNotFound
	case domain.ErrorClassSecurity:
		if errors.Is(err, domain.ErrForbiddenSource) || errors.Is(err, domain.ErrOrganizationMismatch) {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage prefers the user-facing reason of a validation error
func errorMessage(err error) string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return err.Error()
}
