// Package source resolves content references into the raw text they point
// at. Only allow-listed (table, field) pairs are readable; everything else is
// rejected before any query is built.
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-translation-backend/internal/domain"
)

var (
	// ErrBadReference is returned for a reference with blank components.
	ErrBadReference = errors.New("source: bad content reference")
	// ErrUnsupported is returned for a table/field pair outside the allow-list.
	ErrUnsupported = errors.New("source: table or field not allowed")
	// ErrNotFound is returned when no row matches, or the field is empty.
	ErrNotFound = errors.New("source: content not found")
)

// Content is resolved text plus the canonical key for it.
type Content struct {
	Text string
	Key  domain.ContentKey
}

// Resolver turns a content reference into text for a company.
type Resolver interface {
	Resolve(ctx context.Context, company string, ref domain.ContentKey) (*Content, error)
}

// AllowList maps a table to the text fields that may be read from it.
type AllowList map[string][]string

// DefaultAllowList is the set of review/post tables the service reads.
func DefaultAllowList() AllowList {
	return AllowList{
		"trustpilot_reviews":  {"review_title", "review_body"},
		"feefo_reviews":       {"service_review", "product_review"},
		"google_maps_reviews": {"review_text"},
		"reddit_posts":        {"title", "full_review"},
	}
}

// Allowed reports whether field may be read from table.
func (a AllowList) Allowed(table, field string) bool {
	for _, f := range a[table] {
		if f == field {
			return true
		}
	}
	return false
}

// Tables returns the allow-listed tables in sorted order.
func (a AllowList) Tables() []string {
	out := make([]string, 0, len(a))
	for t := range a {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Canonical trims a reference and lowercases its table and field.
// The id is kept verbatim apart from surrounding whitespace.
func Canonical(ref domain.ContentKey) domain.ContentKey {
	return domain.ContentKey{
		Table: strings.ToLower(strings.TrimSpace(ref.Table)),
		ID:    strings.TrimSpace(ref.ID),
		Field: strings.ToLower(strings.TrimSpace(ref.Field)),
	}
}

// SQLResolver reads content rows through GORM. Rows are scoped to the
// caller's company via the company_name column.
type SQLResolver struct {
	DB    *gorm.DB
	Allow AllowList
}

// NewSQLResolver returns a resolver over db using DefaultAllowList.
func NewSQLResolver(db *gorm.DB) *SQLResolver {
	return &SQLResolver{DB: db, Allow: DefaultAllowList()}
}

// Resolve implements Resolver.
func (r *SQLResolver) Resolve(ctx context.Context, company string, ref domain.ContentKey) (*Content, error) {
	key := Canonical(ref)
	if !key.Valid() || key.IsAdhoc() {
		return nil, ErrBadReference
	}
	if !r.Allow.Allowed(key.Table, key.Field) {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnsupported, key.Table, key.Field)
	}

	// Identifiers come from the allow-list only, never from the request.
	stmt := r.DB.Statement
	q := fmt.Sprintf("SELECT %s AS text FROM %s WHERE company_name = ? AND CAST(id AS TEXT) = ? LIMIT 1",
		stmt.Quote(key.Field), stmt.Quote(key.Table))

	var rows []struct{ Text *string }
	if err := r.DB.WithContext(ctx).Raw(q, company, key.ID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0].Text == nil || strings.TrimSpace(*rows[0].Text) == "" {
		return nil, ErrNotFound
	}
	return &Content{Text: *rows[0].Text, Key: key}, nil
}
