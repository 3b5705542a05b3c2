// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. Generic codes mirror HTTP status semantics, the rest name
// a specific translation or provider outcome.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "language_locked",
//	  "message": "content is locked to \"fr\" until 2025-03-10T21:00:00Z",
//	  "locked_lang": "fr",
//	  "locked_until": "2025-03-10T21:00:00Z"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Source resolution and input.
	ErrCodeUnsupportedSource = "unsupported_source"
	ErrCodeSourceNotFound    = "source_not_found"
	ErrCodeUserNotFound      = "user_not_found"
	ErrCodeEmptyContent      = "empty_content"

	// Window rules.
	ErrCodeLanguageLocked = "language_locked"
	ErrCodeWindowQuota    = "window_quota"

	// Provider failures.
	ErrCodeProviderBadRequest  = "provider_bad_request"
	ErrCodeUnsupportedLanguage = "unsupported_language"
	ErrCodeProviderTimeout     = "provider_timeout"
	ErrCodeProviderRateLimited = "provider_rate_limited"
	ErrCodeProviderError       = "provider_error"

	ErrCodeStorageUnavailable = "storage_unavailable"
)
