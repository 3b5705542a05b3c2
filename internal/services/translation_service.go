// Package services – TranslationService
//
// TranslationService is the window orchestrator. For one request it resolves
// the content, normalizes it, serves or rejects from an active window,
// enforces the active-window quota, calls the provider at most once, and
// commits the result through the store's atomic insert. A lost insert race is
// reconciled by re-reading the winner's window; writes are never retried.
//
// No in-process lock is held across store, resolver, or provider calls.
// Identical requests in flight in the same process are coalesced with
// singleflight so they share one provider call. The shared call runs detached
// from the caller that started it, so a client that goes away does not fail
// the others. Across processes the store's insert is the only arbiter.
//
// Observability: public methods open OpenTelemetry spans and record outcome
// metrics. Source and translated text are never logged.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/tbourn/go-translation-backend/internal/domain"
	"github.com/tbourn/go-translation-backend/internal/langdetect"
	"github.com/tbourn/go-translation-backend/internal/metrics"
	"github.com/tbourn/go-translation-backend/internal/provider"
	"github.com/tbourn/go-translation-backend/internal/repo"
	"github.com/tbourn/go-translation-backend/internal/source"
	"github.com/tbourn/go-translation-backend/internal/textutil"
)

const (
	// DefaultQuotaMax is the number of concurrently active windows per user.
	DefaultQuotaMax = 5
	// DefaultWindowTTL is the lifetime of a window.
	DefaultWindowTTL = 12 * time.Hour
	// DefaultProviderTimeout bounds a single provider call.
	DefaultProviderTimeout = 10 * time.Second

	// localProvider is recorded when the same-language short-circuit applies.
	localProvider = "local"
	unknownLang   = "unknown"
)

// WindowStore is the persistence contract the orchestrator depends on.
// InsertIfAbsent must fail with repo.ErrConflict when an active window for
// the same (user, key) exists, and with repo.ErrQuotaExceeded when the user
// already holds quotaMax active windows.
type WindowStore interface {
	FindActive(ctx context.Context, userID string, key domain.ContentKey, now time.Time) (*domain.TranslationWindow, error)
	CountActive(ctx context.Context, userID string, now time.Time) (int64, error)
	EarliestExpiry(ctx context.Context, userID string, now time.Time) (*time.Time, error)
	InsertIfAbsent(ctx context.Context, w *domain.TranslationWindow, quotaMax int) (*domain.TranslationWindow, error)
	ListActive(ctx context.Context, userID string, now time.Time, limit int) ([]domain.TranslationWindow, error)
	Stats(ctx context.Context, userID string, now time.Time) (int64, *time.Time, error)
}

// UserDirectory looks up the caller's company.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// TranslateRequest is one translation request. Exactly one of Text and
// Source must be set.
type TranslateRequest struct {
	UserID string
	// Company scopes source lookups. When Users is configured it is taken
	// from the users table and this field is ignored.
	Company    string
	Source     *domain.ContentKey
	Text       *string
	TargetLang string
	// AdhocID keys raw text; a fresh UUID is used when empty.
	AdhocID string
	Options provider.Options
}

// TranslateResult is the outcome of a successful request.
type TranslateResult struct {
	Cached          bool
	TranslatedText  string
	DetectedLang    string
	TargetLang      string
	WindowExpiresAt time.Time
	SourceRef       domain.ContentKey
}

// QuotaStatus summarizes a user's active-window usage.
type QuotaStatus struct {
	Limit      int
	Active     int64
	Remaining  int64
	NextSlotAt *time.Time // earliest expiry, only when no slot is free
}

// TranslationService orchestrates translation windows.
type TranslationService struct {
	Store    WindowStore
	Resolver source.Resolver
	Users    UserDirectory // optional
	Provider provider.Translator
	Hint     langdetect.Hinter // optional

	QuotaMax        int
	TTL             time.Duration
	ProviderTimeout time.Duration

	// Now is the clock; tests override it.
	Now func() time.Time

	// flight coalesces identical in-process requests onto one provider call.
	flight singleflight.Group
}

// NewTranslationService builds a service with default quota, TTL, and
// provider timeout. Callers may override the exported fields afterwards.
func NewTranslationService(store WindowStore, resolver source.Resolver, users UserDirectory, p provider.Translator) *TranslationService {
	return &TranslationService{
		Store:           store,
		Resolver:        resolver,
		Users:           users,
		Provider:        p,
		QuotaMax:        DefaultQuotaMax,
		TTL:             DefaultWindowTTL,
		ProviderTimeout: DefaultProviderTimeout,
	}
}

func (s *TranslationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *TranslationService) quotaMax() int {
	if s.QuotaMax <= 0 {
		return DefaultQuotaMax
	}
	return s.QuotaMax
}

func (s *TranslationService) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultWindowTTL
	}
	return s.TTL
}

// Translate runs the window state machine for one request.
func (s *TranslationService) Translate(ctx context.Context, req TranslateRequest) (*TranslateResult, error) {
	tr := otel.Tracer("services/TranslationService")
	ctx, span := tr.Start(ctx, "Translate",
		trace.WithAttributes(
			attribute.String("user.id", req.UserID),
			attribute.String("translation.target_lang", req.TargetLang),
		),
	)
	defer span.End()

	res, outcome, err := s.translate(ctx, req)
	metrics.Outcome(outcome)
	span.SetAttributes(attribute.String("translation.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("translation.cached", res.Cached))
	return res, nil
}

func (s *TranslationService) translate(ctx context.Context, req TranslateRequest) (*TranslateResult, string, error) {
	log := zerolog.Ctx(ctx)

	target, err := langdetect.NormalizeTag(req.TargetLang)
	if err != nil {
		return nil, metrics.OutcomeBadRequest, badRequest("target_lang must be a valid language tag")
	}

	text, key, company, err := s.resolve(ctx, req)
	if err != nil {
		return nil, outcomeFor(err), err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("content.key", key.String()))

	normalized := textutil.Normalize(text)
	if normalized == "" {
		return nil, metrics.OutcomeBadRequest, ErrEmptyContent
	}
	hash := textutil.Hash(normalized)

	now := s.now()
	existing, err := s.Store.FindActive(ctx, req.UserID, key, now)
	switch {
	case err == nil:
		res, err := fromWindow(existing, target, true)
		return res, outcomeFor(err), err
	case !errors.Is(err, repo.ErrNotFound):
		log.Error().Err(err).Str("content_key", key.String()).Msg("window lookup failed")
		return nil, metrics.OutcomeStorageError, storageErr(err)
	}

	// Pre-check only: the insert below re-checks atomically.
	active, err := s.Store.CountActive(ctx, req.UserID, now)
	if err != nil {
		log.Error().Err(err).Msg("active window count failed")
		return nil, metrics.OutcomeStorageError, storageErr(err)
	}
	if active >= int64(s.quotaMax()) {
		qerr := s.quotaError(ctx, req.UserID)
		return nil, outcomeFor(qerr), qerr
	}

	// The shared work is detached from any one caller's cancellation; each
	// caller only stops waiting when its own ctx ends. ran is written before
	// the result is sent on ch and read only after receiving it.
	ran := false
	work := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(flightKey(req.UserID, key, target), func() (any, error) {
		ran = true
		return s.produce(work, req, company, key, normalized, hash, target)
	})
	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		log.Debug().Err(ctx.Err()).Str("content_key", key.String()).Msg("caller left before translation finished")
		return nil, metrics.OutcomeProviderError, provider.Classify(ctx.Err())
	}
	v, err := r.Val, r.Err
	p, _ := v.(*produced)
	if p == nil {
		p = &produced{outcome: outcomeFor(err)}
	}
	if !ran {
		// Coalesced behind a concurrent identical request.
		if err != nil {
			return nil, p.outcome, err
		}
		if p.res == nil {
			return nil, metrics.OutcomeStorageError, storageErr(errors.New("coalesced request produced no result"))
		}
		shared := *p.res
		shared.Cached = true
		return &shared, metrics.OutcomeCached, nil
	}
	return p.res, p.outcome, err
}

// produced carries the leader's result through singleflight.
type produced struct {
	res     *TranslateResult
	outcome string
}

func flightKey(userID string, key domain.ContentKey, target string) string {
	return userID + "\x00" + key.String() + "\x00" + target
}

// produce translates (or short-circuits) and commits the window.
func (s *TranslationService) produce(ctx context.Context, req TranslateRequest, company string, key domain.ContentKey, normalized, hash, target string) (*produced, error) {
	log := zerolog.Ctx(ctx)
	p := &produced{}

	var (
		translated string
		detected   string
		meta       domain.ProviderMeta
	)
	hint := s.hint(normalized)
	if langdetect.SameLanguage(hint, target) {
		translated, detected = normalized, target
		meta = domain.ProviderMeta{Provider: localProvider}
	} else {
		out, err := s.callProvider(ctx, normalized, target, req.Options)
		if err != nil {
			log.Warn().Err(err).Str("content_key", key.String()).Str("target_lang", target).Msg("provider call failed")
			p.outcome = metrics.OutcomeProviderError
			return p, err
		}
		translated = out.TranslatedText
		detected = langdetect.NormalizeCode(out.DetectedLang)
		if detected == "" {
			detected = hint
		}
		if detected == "" {
			detected = unknownLang
		}
		meta = domain.ProviderMeta{
			Provider:  out.Provider,
			Model:     out.Model,
			TokensIn:  out.TokensIn,
			TokensOut: out.TokensOut,
			LatencyMs: out.LatencyMs,
		}
		if meta.Provider == "" {
			meta.Provider = s.Provider.Name()
		}
	}

	created := s.now()
	w := &domain.TranslationWindow{
		UserID:         req.UserID,
		CompanyName:    company,
		ContentHash:    hash,
		TargetLang:     target,
		DetectedLang:   detected,
		TranslatedText: translated,
		CreatedAt:      created,
		ExpiresAt:      created.Add(s.ttl()),
	}
	w.SetKey(key)
	w.SetMeta(meta)

	saved, err := s.Store.InsertIfAbsent(ctx, w, s.quotaMax())
	switch {
	case err == nil:
		p.res, _ = fromWindow(saved, target, false)
		p.outcome = metrics.OutcomeCreated
		return p, nil
	case errors.Is(err, repo.ErrConflict):
		p.res, p.outcome, err = s.reconcile(ctx, req.UserID, key, target)
		return p, err
	case errors.Is(err, repo.ErrQuotaExceeded):
		err = s.quotaError(ctx, req.UserID)
		p.outcome = outcomeFor(err)
		return p, err
	default:
		log.Error().Err(err).Str("content_key", key.String()).Msg("window insert failed")
		p.outcome = metrics.OutcomeStorageError
		return p, storageErr(err)
	}
}

// reconcile re-reads the window a concurrent request committed first and
// applies the same match/lock rules as the initial lookup.
func (s *TranslationService) reconcile(ctx context.Context, userID string, key domain.ContentKey, target string) (*TranslateResult, string, error) {
	log := zerolog.Ctx(ctx)
	winner, err := s.Store.FindActive(ctx, userID, key, s.now())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			err = errors.New("conflicting window vanished before re-read")
		}
		log.Error().Err(err).Str("content_key", key.String()).Msg("race recovery failed")
		return nil, metrics.OutcomeStorageError, storageErr(err)
	}
	log.Debug().Str("content_key", key.String()).Str("winner_lang", winner.TargetLang).Msg("lost window insert race")
	res, err := fromWindow(winner, target, true)
	if err != nil {
		return nil, outcomeFor(err), err
	}
	return res, metrics.OutcomeRaceRecovered, nil
}

// resolve validates the request shape and yields the raw text, its content
// key, and the company it was resolved under.
func (s *TranslationService) resolve(ctx context.Context, req TranslateRequest) (string, domain.ContentKey, string, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return "", domain.ContentKey{}, "", badRequest("user id is required")
	}
	hasText := req.Text != nil
	hasSource := req.Source != nil
	switch {
	case hasText && hasSource:
		return "", domain.ContentKey{}, "", badRequest("provide either text or source, not both")
	case !hasText && !hasSource:
		return "", domain.ContentKey{}, "", badRequest("text or source is required")
	}

	company := req.Company
	if s.Users != nil {
		u, err := s.Users.GetUser(ctx, req.UserID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return "", domain.ContentKey{}, "", ErrUserNotFound
		case err != nil:
			return "", domain.ContentKey{}, "", storageErr(err)
		}
		company = u.CompanyName
	}

	if hasText {
		id := strings.TrimSpace(req.AdhocID)
		if id == "" {
			id = uuid.NewString()
		}
		return *req.Text, domain.ContentKey{Table: domain.AdhocTable, ID: id, Field: domain.AdhocField}, company, nil
	}

	if s.Resolver == nil {
		return "", domain.ContentKey{}, "", ErrUnsupportedSource
	}
	c, err := s.Resolver.Resolve(ctx, company, *req.Source)
	switch {
	case err == nil:
		return c.Text, c.Key, company, nil
	case errors.Is(err, source.ErrBadReference):
		return "", domain.ContentKey{}, "", badRequest("source must name table, id and field")
	case errors.Is(err, source.ErrUnsupported):
		return "", domain.ContentKey{}, "", ErrUnsupportedSource
	case errors.Is(err, source.ErrNotFound):
		return "", domain.ContentKey{}, "", ErrSourceNotFound
	default:
		return "", domain.ContentKey{}, "", storageErr(err)
	}
}

func (s *TranslationService) hint(text string) string {
	if s.Hint == nil {
		return ""
	}
	return s.Hint.Detect(text)
}

// callProvider makes the single bounded provider call for a request.
func (s *TranslationService) callProvider(ctx context.Context, text, target string, opts provider.Options) (*provider.Result, error) {
	tr := otel.Tracer("services/TranslationService")
	ctx, span := tr.Start(ctx, "provider.Translate",
		trace.WithAttributes(attribute.String("provider.name", s.Provider.Name())),
	)
	defer span.End()

	timeout := s.ProviderTimeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	out, err := s.Provider.Translate(ctx, text, target, opts)
	if err == nil && strings.TrimSpace(out.TranslatedText) == "" {
		err = provider.NewError(provider.KindProviderError, "empty response", nil)
	}
	if err != nil {
		pe := provider.Classify(err)
		metrics.ProviderCall(s.Provider.Name(), string(pe.Kind), time.Since(started), 0, 0)
		span.RecordError(pe)
		span.SetStatus(codes.Error, string(pe.Kind))
		return nil, pe
	}
	metrics.ProviderCall(s.Provider.Name(), "ok", time.Since(started), out.TokensIn, out.TokensOut)
	return out, nil
}

// quotaError builds the QuotaExceeded error with retry information derived
// from the user's earliest active expiry.
func (s *TranslationService) quotaError(ctx context.Context, userID string) error {
	now := s.now()
	next, err := s.Store.EarliestExpiry(ctx, userID, now)
	if err != nil {
		return storageErr(err)
	}
	qe := &QuotaExceededError{Limit: s.quotaMax(), RetryAfter: time.Second}
	if next != nil {
		qe.NextSlotAt = next
		qe.RetryAfter = next.Sub(now)
	}
	return qe
}

// Quota reports the user's active-window usage.
func (s *TranslationService) Quota(ctx context.Context, userID string) (*QuotaStatus, error) {
	tr := otel.Tracer("services/TranslationService")
	ctx, span := tr.Start(ctx, "Quota", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	now := s.now()
	active, err := s.Store.CountActive(ctx, userID, now)
	if err != nil {
		return nil, storageErr(err)
	}
	limit := s.quotaMax()
	st := &QuotaStatus{Limit: limit, Active: active, Remaining: int64(limit) - active}
	if st.Remaining < 0 {
		st.Remaining = 0
	}
	if st.Remaining == 0 {
		next, err := s.Store.EarliestExpiry(ctx, userID, now)
		if err != nil {
			return nil, storageErr(err)
		}
		st.NextSlotAt = next
	}
	return st, nil
}

// ListActive returns up to limit of the user's active windows, soonest
// expiry first.
func (s *TranslationService) ListActive(ctx context.Context, userID string, limit int) ([]domain.TranslationWindow, error) {
	tr := otel.Tracer("services/TranslationService")
	ctx, span := tr.Start(ctx, "ListActive",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.Int("limit", limit)),
	)
	defer span.End()

	items, err := s.Store.ListActive(ctx, userID, s.now(), limit)
	if err != nil {
		return nil, storageErr(err)
	}
	return items, nil
}

// WindowStats returns the active window count and latest creation time,
// used by the handler layer for ETags.
func (s *TranslationService) WindowStats(ctx context.Context, userID string) (int64, *time.Time, error) {
	n, latest, err := s.Store.Stats(ctx, userID, s.now())
	if err != nil {
		return 0, nil, storageErr(err)
	}
	return n, latest, nil
}

// fromWindow serves an existing window when its language matches, and
// reports LanguageLocked otherwise.
func fromWindow(w *domain.TranslationWindow, target string, cached bool) (*TranslateResult, error) {
	if w.TargetLang != target {
		return nil, &LanguageLockedError{LockedLang: w.TargetLang, LockedUntil: w.ExpiresAt.UTC()}
	}
	return &TranslateResult{
		Cached:          cached,
		TranslatedText:  w.TranslatedText,
		DetectedLang:    w.DetectedLang,
		TargetLang:      w.TargetLang,
		WindowExpiresAt: w.ExpiresAt.UTC(),
		SourceRef:       w.Key(),
	}, nil
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeCached
	case errors.Is(err, ErrLanguageLocked):
		return metrics.OutcomeLanguageLocked
	case errors.Is(err, ErrQuotaExceeded):
		return metrics.OutcomeQuotaExceeded
	case errors.Is(err, ErrStorageUnavailable):
		return metrics.OutcomeStorageError
	default:
		return metrics.OutcomeBadRequest
	}
}
