// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response helpers shared by all endpoints: the error
// envelope, the mapping from service and provider errors onto it, and small
// success writers. 5xx responses are logged with the request-scoped logger.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-translation-backend/internal/http/middleware"
	"github.com/tbourn/go-translation-backend/internal/provider"
	"github.com/tbourn/go-translation-backend/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
//
// The optional fields are only present for the codes that carry them:
// locked_lang and locked_until for language_locked, retry_after_seconds for
// window_quota, and retryable for provider failures.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"window_quota"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"active window quota of 5 reached, retry in 3600s"`

	LockedLang        string     `json:"locked_lang,omitempty" example:"fr"`
	LockedUntil       *time.Time `json:"locked_until,omitempty" example:"2025-03-10T21:00:00Z"`
	RetryAfterSeconds int        `json:"retry_after_seconds,omitempty" example:"3600"`
	Retryable         *bool      `json:"retryable,omitempty"`
}

// fail aborts the request with a structured error and logs server-side errors.
func fail(c *gin.Context, status int, code, msg string) {
	abort(c, status, ErrorResponse{Code: code, Message: msg})
}

// Fail is the exported variant of fail(), used by the router for NoRoute and
// NoMethod.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func abort(c *gin.Context, status int, resp ErrorResponse) {
	resp.RequestID = c.Writer.Header().Get("X-Request-ID")

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", resp.Code).
			Str("message", resp.Message).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// failErr maps an error returned by the translation service onto the error
// envelope. Unknown errors become 500 internal_error without leaking detail.
func failErr(c *gin.Context, err error) {
	var (
		locked *services.LanguageLockedError
		quota  *services.QuotaExceededError
		perr   *provider.Error
	)
	switch {
	case errors.As(err, &locked):
		until := locked.LockedUntil.UTC()
		abort(c, http.StatusConflict, ErrorResponse{
			Code:        ErrCodeLanguageLocked,
			Message:     err.Error(),
			LockedLang:  locked.LockedLang,
			LockedUntil: &until,
		})
	case errors.As(err, &quota):
		secs := quota.RetryAfterSeconds()
		c.Header("Retry-After", strconv.Itoa(secs))
		abort(c, http.StatusTooManyRequests, ErrorResponse{
			Code:              ErrCodeWindowQuota,
			Message:           err.Error(),
			RetryAfterSeconds: secs,
		})
	case errors.As(err, &perr):
		status, code := providerStatus(perr.Kind)
		retryable := perr.Retryable
		abort(c, status, ErrorResponse{Code: code, Message: perr.Message, Retryable: &retryable})
	case errors.Is(err, services.ErrStorageUnavailable):
		fail(c, http.StatusServiceUnavailable, ErrCodeStorageUnavailable, "storage unavailable")
	case errors.Is(err, services.ErrUnsupportedSource):
		fail(c, http.StatusBadRequest, ErrCodeUnsupportedSource, err.Error())
	case errors.Is(err, services.ErrSourceNotFound):
		fail(c, http.StatusNotFound, ErrCodeSourceNotFound, err.Error())
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeUserNotFound, err.Error())
	case errors.Is(err, services.ErrEmptyContent):
		fail(c, http.StatusBadRequest, ErrCodeEmptyContent, err.Error())
	case errors.Is(err, services.ErrBadRequest):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unmapped service error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

func providerStatus(k provider.Kind) (int, string) {
	switch k {
	case provider.KindBadRequest:
		return http.StatusBadRequest, ErrCodeProviderBadRequest
	case provider.KindUnsupportedLang:
		return http.StatusBadRequest, ErrCodeUnsupportedLanguage
	case provider.KindTimeout:
		return http.StatusServiceUnavailable, ErrCodeProviderTimeout
	case provider.KindRateLimit:
		return http.StatusServiceUnavailable, ErrCodeProviderRateLimited
	default:
		return http.StatusServiceUnavailable, ErrCodeProviderError
	}
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
