// Package domain defines the persistence models for translation windows and
// the small value types shared across the repository, service, and HTTP
// layers. These types are mapped with GORM.
package domain

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Ad-hoc text has no backing row; it is keyed under this pseudo table/field.
const (
	AdhocTable = "adhoc"
	AdhocField = "text"
)

// ContentKey identifies the underlying text that was translated,
// independent of the target language.
type ContentKey struct {
	Table string `json:"table" example:"trustpilot_reviews"`
	ID    string `json:"id"    example:"42"`
	Field string `json:"field" example:"review_body"`
}

// String renders the key as table/id/field, mainly for logs and span attributes.
func (k ContentKey) String() string {
	return k.Table + "/" + k.ID + "/" + k.Field
}

// IsAdhoc reports whether the key was derived from raw request text.
func (k ContentKey) IsAdhoc() bool { return k.Table == AdhocTable }

// Valid reports whether every component of the key is non-blank.
func (k ContentKey) Valid() bool {
	return strings.TrimSpace(k.Table) != "" &&
		strings.TrimSpace(k.ID) != "" &&
		strings.TrimSpace(k.Field) != ""
}

// ProviderMeta is observability data about the call that produced a window.
type ProviderMeta struct {
	Provider  string `json:"provider"`
	Model     string `json:"model,omitempty"`
	TokensIn  int    `json:"tokens_in"`
	TokensOut int    `json:"tokens_out"`
	LatencyMs int64  `json:"latency_ms"`
}

// TranslationWindow is a cached, time-bounded translation locked to one
// target language for one (user, content key) pair. Rows are immutable once
// committed; expired rows are history and never match a lookup.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - UserID: owner of the quota slot and of the cache entry.
//   - CompanyName: tenant the source row was resolved under (empty for ad-hoc).
//   - SourceTable/SourceID/SourceField: the content key.
//   - ContentHash: sha256 of the normalized source text (recorded, not enforced).
//   - TargetLang / DetectedLang: lowercase language tags.
//   - ProviderMeta: JSON-encoded ProviderMeta.
//   - CreatedAt / ExpiresAt: the window bounds.
type TranslationWindow struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	UserID         string         `json:"user_id"         gorm:"type:varchar(64);not null;index:idx_window_user_key,priority:1;index:idx_window_user_expiry,priority:1"`
	CompanyName    string         `json:"company_name"    gorm:"type:varchar(255)"`
	SourceTable    string         `json:"source_table"    gorm:"type:varchar(64);not null;index:idx_window_user_key,priority:2"`
	SourceID       string         `json:"source_id"       gorm:"type:varchar(255);not null;index:idx_window_user_key,priority:3"`
	SourceField    string         `json:"source_field"    gorm:"type:varchar(64);not null;index:idx_window_user_key,priority:4"`
	ContentHash    string         `json:"content_hash"    gorm:"type:char(64);not null"`
	TargetLang     string         `json:"target_lang"     gorm:"type:varchar(35);not null"`
	DetectedLang   string         `json:"detected_lang"   gorm:"type:varchar(35)"`
	TranslatedText string         `json:"translated_text" gorm:"type:text;not null"`
	ProviderMeta   datatypes.JSON `json:"provider_meta"   gorm:"type:json"`
	CreatedAt      time.Time      `json:"created_at"      gorm:"not null"`
	ExpiresAt      time.Time      `json:"expires_at"      gorm:"not null;index:idx_window_user_expiry,priority:2;index:idx_window_expiry"`
}

// TableName returns the database table name for TranslationWindow.
func (TranslationWindow) TableName() string { return "translation_windows" }

// Key returns the window's content key.
func (w *TranslationWindow) Key() ContentKey {
	return ContentKey{Table: w.SourceTable, ID: w.SourceID, Field: w.SourceField}
}

// SetKey copies k into the window's source columns.
func (w *TranslationWindow) SetKey(k ContentKey) {
	w.SourceTable, w.SourceID, w.SourceField = k.Table, k.ID, k.Field
}

// ActiveAt reports whether the window is still active at t.
func (w *TranslationWindow) ActiveAt(t time.Time) bool { return w.ExpiresAt.After(t) }

// Meta decodes ProviderMeta. A missing or malformed column yields the zero value.
func (w *TranslationWindow) Meta() ProviderMeta {
	var m ProviderMeta
	if len(w.ProviderMeta) > 0 {
		_ = json.Unmarshal(w.ProviderMeta, &m)
	}
	return m
}

// SetMeta encodes m into the ProviderMeta column.
func (w *TranslationWindow) SetMeta(m ProviderMeta) {
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	w.ProviderMeta = datatypes.JSON(b)
}

// WindowGuard is a per-user lock row. Window inserts upsert the caller's
// guard first, so concurrent inserts for the same user serialize on it in
// every supported engine before the active-window checks run.
type WindowGuard struct {
	UserID    string    `gorm:"type:varchar(64);primaryKey"`
	Touches   int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the database table name for WindowGuard.
func (WindowGuard) TableName() string { return "translation_window_guards" }

// User is the subset of the shared users table this service reads.
type User struct {
	ID          string `gorm:"type:varchar(64);primaryKey"`
	CompanyName string `gorm:"type:varchar(255);index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }
