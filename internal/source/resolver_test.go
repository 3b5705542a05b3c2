package source

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-translation-backend/internal/domain"
)

func newContentDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	stmts := []string{
		`CREATE TABLE trustpilot_reviews (id INTEGER PRIMARY KEY, company_name TEXT, review_title TEXT, review_body TEXT, secret TEXT)`,
		`CREATE TABLE reddit_posts (id TEXT PRIMARY KEY, company_name TEXT, title TEXT, full_review TEXT)`,
		`INSERT INTO trustpilot_reviews VALUES (42, 'acme', 'Great', '  Really   great service ', 'hidden')`,
		`INSERT INTO trustpilot_reviews VALUES (43, 'acme', 'Empty', '   ', NULL)`,
		`INSERT INTO trustpilot_reviews VALUES (44, 'acme', NULL, NULL, NULL)`,
		`INSERT INTO trustpilot_reviews VALUES (50, 'globex', 'Other', 'Other tenant', NULL)`,
		`INSERT INTO reddit_posts VALUES ('t3_abc', 'acme', 'Title here', 'Body here')`,
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			t.Fatalf("%s: %v", s, err)
		}
	}
	return db
}

func TestSQLResolver_Resolve(t *testing.T) {
	r := NewSQLResolver(newContentDB(t))
	ctx := context.Background()

	got, err := r.Resolve(ctx, "acme", domain.ContentKey{Table: " Trustpilot_Reviews ", ID: " 42 ", Field: "REVIEW_BODY"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := domain.ContentKey{Table: "trustpilot_reviews", ID: "42", Field: "review_body"}
	if got.Key != want {
		t.Fatalf("key = %+v, want %+v", got.Key, want)
	}
	if got.Text != "  Really   great service " {
		t.Fatalf("text = %q (resolver must not normalize)", got.Text)
	}

	post, err := r.Resolve(ctx, "acme", domain.ContentKey{Table: "reddit_posts", ID: "t3_abc", Field: "title"})
	if err != nil || post.Text != "Title here" {
		t.Fatalf("reddit: %+v %v", post, err)
	}
}

func TestSQLResolver_Errors(t *testing.T) {
	r := NewSQLResolver(newContentDB(t))
	ctx := context.Background()

	cases := []struct {
		name    string
		company string
		ref     domain.ContentKey
		want    error
	}{
		{"blank id", "acme", domain.ContentKey{Table: "trustpilot_reviews", Field: "review_body"}, ErrBadReference},
		{"adhoc key", "acme", domain.ContentKey{Table: domain.AdhocTable, ID: "x", Field: domain.AdhocField}, ErrBadReference},
		{"unlisted table", "acme", domain.ContentKey{Table: "users", ID: "1", Field: "company_name"}, ErrUnsupported},
		{"unlisted field", "acme", domain.ContentKey{Table: "trustpilot_reviews", ID: "42", Field: "secret"}, ErrUnsupported},
		{"injection attempt", "acme", domain.ContentKey{Table: "trustpilot_reviews", ID: "42", Field: "review_body; DROP TABLE x"}, ErrUnsupported},
		{"missing row", "acme", domain.ContentKey{Table: "trustpilot_reviews", ID: "999", Field: "review_body"}, ErrNotFound},
		{"other company", "acme", domain.ContentKey{Table: "trustpilot_reviews", ID: "50", Field: "review_body"}, ErrNotFound},
		{"blank text", "acme", domain.ContentKey{Table: "trustpilot_reviews", ID: "43", Field: "review_body"}, ErrNotFound},
		{"null text", "acme", domain.ContentKey{Table: "trustpilot_reviews", ID: "44", Field: "review_title"}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := r.Resolve(ctx, tc.company, tc.ref); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSQLResolver_MissingTableIsInfraError(t *testing.T) {
	// google_maps_reviews is allow-listed but not created in this DB.
	r := NewSQLResolver(newContentDB(t))
	_, err := r.Resolve(context.Background(), "acme", domain.ContentKey{Table: "google_maps_reviews", ID: "1", Field: "review_text"})
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected a raw storage error, got %v", err)
	}
}

func TestAllowList(t *testing.T) {
	a := DefaultAllowList()
	if !a.Allowed("feefo_reviews", "product_review") || a.Allowed("feefo_reviews", "review_body") {
		t.Fatal("Allowed mismatch")
	}
	tables := a.Tables()
	if len(tables) != 4 || tables[0] != "feefo_reviews" || tables[3] != "trustpilot_reviews" {
		t.Fatalf("Tables = %v", tables)
	}
}
