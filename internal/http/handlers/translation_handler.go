// Translation HTTP handlers.
//
// This file exposes REST endpoints for translation windows:
//   - POST   /translations          (translate stored or ad-hoc text)
//   - GET    /translations/quota    (active-window usage)
//   - GET    /translations/windows  (active windows, ETag support)
//
// Handlers are transport-thin: they bind input, call the translation
// service, and map results and errors onto HTTP responses.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-translation-backend/internal/domain"
	"github.com/tbourn/go-translation-backend/internal/http/middleware"
	"github.com/tbourn/go-translation-backend/internal/provider"
	"github.com/tbourn/go-translation-backend/internal/services"
	"github.com/tbourn/go-translation-backend/internal/utils"
)

// TranslationService is the orchestrator contract consumed by the handlers.
//
// Implementations must be safe for concurrent use and honor ctx.
type TranslationService interface {
	Translate(ctx context.Context, req services.TranslateRequest) (*services.TranslateResult, error)
	Quota(ctx context.Context, userID string) (*services.QuotaStatus, error)
	ListActive(ctx context.Context, userID string, limit int) ([]domain.TranslationWindow, error)
	WindowStats(ctx context.Context, userID string) (int64, *time.Time, error)
}

// Handlers groups the translation endpoints.
type Handlers struct {
	svc TranslationService
}

// New constructs and returns a Handlers instance bound to svc.
func New(svc TranslationService) *Handlers {
	return &Handlers{svc: svc}
}

// userID returns the caller identity set by middleware.Identity, falling back
// to the X-User-ID header. An empty result means the caller is anonymous.
func userID(c *gin.Context) string {
	if v, ok := c.Get(middleware.CtxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		return strings.TrimSpace(c.GetHeader(middleware.HeaderUserID))
	}
	return ""
}

//
// DTOs
//

// SourceRefRequest points at a stored text field.
type SourceRefRequest struct {
	Table string `json:"table" example:"trustpilot_reviews"`
	ID    string `json:"id" example:"42"`
	Field string `json:"field" example:"review_body"`
}

// TranslationOptionsRequest are optional hints forwarded to the provider.
type TranslationOptionsRequest struct {
	Domain         string `json:"domain" binding:"omitempty,oneof=general review social" example:"review"`
	Formality      string `json:"formality" binding:"omitempty,oneof=default formal informal" example:"default"`
	PreserveEmojis *bool  `json:"preserve_emojis" example:"true"`
}

// TranslateRequest is the JSON payload for POST /translations. Exactly one
// of Text and Source must be provided.
type TranslateRequest struct {
	Text       *string                    `json:"text,omitempty" example:"Très bon service, livraison rapide"`
	Source     *SourceRefRequest          `json:"source,omitempty"`
	TargetLang string                     `json:"target_lang" example:"en"`
	Options    *TranslationOptionsRequest `json:"options,omitempty"`
}

// TranslationResponse is a served translation.
type TranslationResponse struct {
	Cached          bool              `json:"cached" example:"false"`
	TranslatedText  string            `json:"translated_text" example:"Very good service, fast delivery"`
	DetectedLang    string            `json:"detected_lang" example:"fr"`
	TargetLang      string            `json:"target_lang" example:"en"`
	WindowExpiresAt time.Time         `json:"window_expires_at" example:"2025-03-10T21:00:00Z"`
	SourceRef       domain.ContentKey `json:"source_ref"`
}

// QuotaResponse reports active-window usage for the caller.
type QuotaResponse struct {
	Limit      int        `json:"limit" example:"5"`
	Active     int64      `json:"active" example:"2"`
	Remaining  int64      `json:"remaining" example:"3"`
	NextSlotAt *time.Time `json:"next_slot_at,omitempty" example:"2025-03-10T21:00:00Z"`
}

// WindowSummary describes one active window without its translated text.
type WindowSummary struct {
	ID           string            `json:"id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	SourceRef    domain.ContentKey `json:"source_ref"`
	TargetLang   string            `json:"target_lang" example:"en"`
	DetectedLang string            `json:"detected_lang" example:"fr"`
	CreatedAt    time.Time         `json:"created_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
}

// ListWindowsResponse wraps the caller's active windows.
type ListWindowsResponse struct {
	Windows []WindowSummary `json:"windows"`
	Count   int             `json:"count" example:"1"`
}

func toServiceRequest(c *gin.Context, uid string, req TranslateRequest) services.TranslateRequest {
	opts := provider.DefaultOptions()
	if o := req.Options; o != nil {
		if o.Domain != "" {
			opts.Domain = o.Domain
		}
		if o.Formality != "" {
			opts.Formality = o.Formality
		}
		if o.PreserveEmojis != nil {
			opts.PreserveEmojis = *o.PreserveEmojis
		}
	}
	rid := c.Writer.Header().Get("X-Request-ID")
	opts.RequestID = rid

	out := services.TranslateRequest{
		UserID:     uid,
		Text:       req.Text,
		TargetLang: req.TargetLang,
		Options:    opts,
	}
	if req.Source != nil {
		out.Source = &domain.ContentKey{Table: req.Source.Table, ID: req.Source.ID, Field: req.Source.Field}
	}
	if req.Text != nil {
		// A client retry with the same Idempotency-Key lands on the same window.
		key, _ := middleware.GetIdempotencyKey(c)
		out.AdhocID = utils.FirstNonEmpty(key, rid)
	}
	return out
}

//
// Handlers
//

// Translate godoc
// @ID          translate
// @Summary     Translate text into a target language
// @Description Translates a stored review field or ad-hoc text. The first successful translation opens a window that
// @Description locks the content to the target language for the window TTL; repeats inside the window are served
// @Description from it without calling the provider.
// @Tags        Translations
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true   "User ID"                                   example(user123)
// @Param       Idempotency-Key  header  string  false  "Reuses the ad-hoc window on client retry"  example(req-7f1c)
// @Param       body             body    handlers.TranslateRequest  true  "Translation request"
//
// @Success     200  {object}  handlers.TranslationResponse  "New or active window; see cached"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     404  {object}  handlers.ErrorResponse  "User or source not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Content locked to another language"
// @Failure     429  {object}  handlers.ErrorResponse  "Active window quota reached"
// @Header      429  {integer} Retry-After  "Seconds until a slot frees"
// @Failure     503  {object}  handlers.ErrorResponse  "Provider or storage unavailable"
// @Router      /translations [post]
func (h *Handlers) Translate(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required")
		return
	}

	var req TranslateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.svc.Translate(c.Request.Context(), toServiceRequest(c, uid, req))
	if err != nil {
		failErr(c, err)
		return
	}

	// 200 for both outcomes; cached tells a new window from a reused one.
	ok(c, http.StatusOK, TranslationResponse{
		Cached:          res.Cached,
		TranslatedText:  res.TranslatedText,
		DetectedLang:    res.DetectedLang,
		TargetLang:      res.TargetLang,
		WindowExpiresAt: res.WindowExpiresAt,
		SourceRef:       res.SourceRef,
	})
}

// Quota godoc
// @ID          translationQuota
// @Summary     Active window quota
// @Description Returns how many translation windows the caller holds and when the next slot frees up.
// @Tags        Translations
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"  example(user123)
//
// @Success     200  {object}  handlers.QuotaResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /translations/quota [get]
func (h *Handlers) Quota(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required")
		return
	}

	st, err := h.svc.Quota(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, QuotaResponse{
		Limit:      st.Limit,
		Active:     st.Active,
		Remaining:  st.Remaining,
		NextSlotAt: st.NextSlotAt,
	})
}

// ListWindows godoc
// @ID          listTranslationWindows
// @Summary     List active translation windows
// @Description Returns the caller's active windows, soonest expiry first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Translations
// @Produce     json
//
// @Param       X-User-ID      header  string  true   "User ID"                     example(user123)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       limit          query   int     false  "Max windows"                 minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListWindowsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Missing identity"
// @Failure     503  {object} handlers.ErrorResponse "Storage unavailable"
// @Router      /translations/windows [get]
func (h *Handlers) ListWindows(c *gin.Context) {
	const (
		defaultLimit = 20
		maxLimit     = 100
	)
	ctx := c.Request.Context()
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required")
		return
	}
	limit := utils.LimitParam(c.Query("limit"), defaultLimit, maxLimit)

	// ETag pre-check (best effort).
	if count, latest, err := h.svc.WindowStats(ctx, uid); err == nil {
		var ts int64
		if latest != nil {
			ts = latest.UnixNano()
		}
		etag := fmt.Sprintf(`W/"windows:%s:%d:%d:%d"`, uid, count, ts, limit)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.svc.ListActive(ctx, uid, limit)
	if err != nil {
		failErr(c, err)
		return
	}
	resp := ListWindowsResponse{Windows: make([]WindowSummary, 0, len(items)), Count: len(items)}
	for i := range items {
		w := &items[i]
		resp.Windows = append(resp.Windows, WindowSummary{
			ID:           w.ID,
			SourceRef:    w.Key(),
			TargetLang:   w.TargetLang,
			DetectedLang: w.DetectedLang,
			CreatedAt:    w.CreatedAt.UTC(),
			ExpiresAt:    w.ExpiresAt.UTC(),
		})
	}
	ok(c, http.StatusOK, resp)
}
