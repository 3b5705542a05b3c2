// Package provider defines the translation provider contract consumed by the
// translation service, the concrete HTTP clients (Gemini, OpenAI-compatible),
// and resilience wrappers (outbound rate limiting, bounded retries).
//
// A provider is a stateless request/response capability: it either returns a
// Result or fails with an *Error carrying one of the Kind values below. The
// service never retries on its own; retries belong to WithRetry.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
)

// Translator translates text into a target language.
//
// Implementations must be safe for concurrent use and must honor ctx for
// cancellation and deadlines. Every failure is returned as *Error.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string, opts Options) (*Result, error)
	Name() string
}

// Options are per-request hints forwarded to the model.
type Options struct {
	Domain         string // general|review|social
	Formality      string // default|formal|informal
	PreserveEmojis bool
	RequestID      string
}

// DefaultOptions mirrors the defaults applied when a request omits them.
func DefaultOptions() Options {
	return Options{Domain: "review", Formality: "default", PreserveEmojis: true}
}

// Result is a successful translation.
type Result struct {
	TranslatedText string
	DetectedLang   string // as reported by the provider; may be empty
	TokensIn       int
	TokensOut      int
	LatencyMs      int64
	Provider       string
	Model          string
}

// Kind classifies provider failures.
type Kind string

const (
	KindTimeout         Kind = "TIMEOUT"
	KindRateLimit       Kind = "RATE_LIMIT"
	KindProviderError   Kind = "PROVIDER_ERROR"
	KindBadRequest      Kind = "BAD_REQUEST"
	KindUnsupportedLang Kind = "UNSUPPORTED_LANG"
)

// Retryable reports whether callers may retry a failure of this kind.
func (k Kind) Retryable() bool { return k == KindTimeout || k == KindRateLimit }

// Error is a classified provider failure.
type Error struct {
	Kind      Kind
	Retryable bool
	Status    int // upstream HTTP status, 0 if none
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("provider %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error whose Retryable flag follows kind.
func NewError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Retryable: kind.Retryable(), Message: msg, Err: cause}
}

var (
	rateRE        = regexp.MustCompile(`(?i)\bquota\b|rate.?limit|too many requests|resource.?exhausted`)
	unsupportedRE = regexp.MustCompile(`(?i)unsupported.*lang|language.*not supported`)
	badParamRE    = regexp.MustCompile(`(?i)invalid.*model|parameter`)
	authRE        = regexp.MustCompile(`(?i)api.?key|permission|unauthori[sz]ed`)
)

// Classify maps any error to an *Error. Existing *Error values pass through;
// deadlines and network timeouts become TIMEOUT; other errors are classified
// by message.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, "translation request timed out", err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return NewError(KindTimeout, "translation request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(KindProviderError, "translation request canceled", err)
	}
	return classifyMessage(0, err.Error(), err)
}

// classifyMessage applies the message heuristics, optionally refined by an
// upstream HTTP status.
func classifyMessage(status int, msg string, cause error) *Error {
	var kind Kind
	switch {
	case status == 429 || rateRE.MatchString(msg):
		kind = KindRateLimit
	case unsupportedRE.MatchString(msg):
		kind = KindUnsupportedLang
	case status == 401 || status == 403 || authRE.MatchString(msg):
		kind = KindProviderError
	case status == 400 || badParamRE.MatchString(msg):
		kind = KindBadRequest
	case status == 408 || status == 504:
		kind = KindTimeout
	default:
		kind = KindProviderError
	}
	e := NewError(kind, msg, cause)
	e.Status = status
	return e
}
