// Package services implements the translation window orchestrator and the
// background reaper.
//
// This file centralizes the service-level errors. Business errors are
// terminal and carry enough data for the caller to self-correct; storage
// failures are wrapped in ErrStorageUnavailable with the cause kept.
// Provider failures are returned as *provider.Error unchanged.
//
// Mapping into HTTP status codes happens in the handler layer.
package services

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrBadRequest covers malformed input: a missing or invalid target
	// language, both or neither of text and source, or an unusable reference.
	ErrBadRequest = errors.New("bad request")

	// ErrEmptyContent is returned when the text is empty after normalization.
	ErrEmptyContent = errors.New("content is empty")

	// ErrUserNotFound is returned when the caller has no users row.
	ErrUserNotFound = errors.New("user not found")

	// ErrSourceNotFound is returned when a content reference matches no row.
	ErrSourceNotFound = errors.New("source content not found")

	// ErrUnsupportedSource is returned for a table/field outside the allow-list.
	ErrUnsupportedSource = errors.New("source table or field not supported")

	// ErrStorageUnavailable wraps any window store or database failure.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrLanguageLocked matches *LanguageLockedError via errors.Is.
	ErrLanguageLocked = errors.New("language locked")

	// ErrQuotaExceeded matches *QuotaExceededError via errors.Is.
	ErrQuotaExceeded = errors.New("window quota exceeded")
)

// LanguageLockedError reports an active window in a different language.
type LanguageLockedError struct {
	LockedLang  string
	LockedUntil time.Time
}

func (e *LanguageLockedError) Error() string {
	return fmt.Sprintf("content is locked to %q until %s", e.LockedLang, e.LockedUntil.UTC().Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrLanguageLocked) hold.
func (e *LanguageLockedError) Is(target error) bool { return target == ErrLanguageLocked }

// QuotaExceededError reports that the user has no free window slot.
type QuotaExceededError struct {
	Limit      int
	RetryAfter time.Duration
	NextSlotAt *time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("active window quota of %d reached, retry in %ds", e.Limit, e.RetryAfterSeconds())
}

// Is makes errors.Is(err, ErrQuotaExceeded) hold.
func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func (e *QuotaExceededError) RetryAfterSeconds() int {
	s := int(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

func badRequest(msg string) error { return fmt.Errorf("%w: %s", ErrBadRequest, msg) }

func storageErr(err error) error { return fmt.Errorf("%w: %w", ErrStorageUnavailable, err) }
