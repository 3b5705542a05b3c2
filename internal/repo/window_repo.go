// Package repo implements the persistence layer for translation windows,
// backed by GORM. This file provides the window queries and the atomic
// check-then-insert used to commit a new window.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
//
// "Active" always means expires_at > now, with now supplied by the caller so
// a single request evaluates every query against the same instant.
//
// Functions:
//
//   - FindActiveWindow(ctx, db, userID, key, now) -> *domain.TranslationWindow, error
//     Returns the unique active window for the pair, or ErrNotFound.
//
//   - CountActiveWindows(ctx, db, userID, now) -> int64, error
//
//   - EarliestActiveExpiry(ctx, db, userID, now) -> *time.Time, error
//     Returns nil when the user has no active window.
//
//   - ListActiveWindows(ctx, db, userID, now, limit) -> []domain.TranslationWindow, error
//
//   - InsertWindowIfAbsent(ctx, db, w, quotaMax) -> *domain.TranslationWindow, error
//     Returns ErrConflict or ErrQuotaExceeded instead of inserting.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-translation-backend/internal/domain"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = gorm.ErrRecordNotFound

	// ErrConflict means an active window already exists for the
	// (user, content key) pair of an insert.
	ErrConflict = errors.New("active window already exists")

	// ErrQuotaExceeded means the user already holds the maximum number of
	// active windows at commit time.
	ErrQuotaExceeded = errors.New("active window quota exceeded")
)

func activeForUser(db *gorm.DB, userID string, now time.Time) *gorm.DB {
	return db.Model(&domain.TranslationWindow{}).
		Where("user_id = ? AND expires_at > ?", userID, now.UTC())
}

func activeForKey(db *gorm.DB, userID string, key domain.ContentKey, now time.Time) *gorm.DB {
	return activeForUser(db, userID, now).
		Where("source_table = ? AND source_id = ? AND source_field = ?", key.Table, key.ID, key.Field)
}

// FindActiveWindow returns the active window for (userID, key) or ErrNotFound.
// When history rows overlap (which the insert path prevents) the one that
// expires last wins.
func FindActiveWindow(ctx context.Context, db *gorm.DB, userID string, key domain.ContentKey, now time.Time) (*domain.TranslationWindow, error) {
	var w domain.TranslationWindow
	err := activeForKey(db.WithContext(ctx), userID, key, now).
		Order("expires_at DESC").
		First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CountActiveWindows returns the number of windows the user holds at now.
func CountActiveWindows(ctx context.Context, db *gorm.DB, userID string, now time.Time) (int64, error) {
	var n int64
	err := activeForUser(db.WithContext(ctx), userID, now).Count(&n).Error
	return n, err
}

// EarliestActiveExpiry returns the soonest expires_at among the user's active
// windows, or nil when there are none.
func EarliestActiveExpiry(ctx context.Context, db *gorm.DB, userID string, now time.Time) (*time.Time, error) {
	// ORDER BY + LIMIT rather than MIN(): SQLite returns MIN() over DATETIME as TEXT.
	var rows []struct {
		ExpiresAt time.Time
	}
	err := activeForUser(db.WithContext(ctx), userID, now).
		Select("expires_at").
		Order("expires_at ASC").
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	at := rows[0].ExpiresAt.UTC()
	return &at, nil
}

// ListActiveWindows returns up to limit active windows, soonest expiry first.
// A limit <= 0 returns all of them.
func ListActiveWindows(ctx context.Context, db *gorm.DB, userID string, now time.Time, limit int) ([]domain.TranslationWindow, error) {
	q := activeForUser(db.WithContext(ctx), userID, now).Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.TranslationWindow
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// InsertWindowIfAbsent commits w unless the user already has an active
// window for the same content key (ErrConflict) or already holds quotaMax
// active windows (ErrQuotaExceeded). quotaMax <= 0 disables the quota check.
//
// The whole check-then-insert runs in one transaction that starts by
// upserting the user's guard row. That write takes the per-user lock (the
// database write lock on SQLite, a row lock on PostgreSQL), so two
// transactions for the same user can never both pass the checks.
//
// w.CreatedAt is the instant against which "active" is evaluated; it is set
// to the current UTC time when zero. An empty w.ID gets a new UUID.
func InsertWindowIfAbsent(ctx context.Context, db *gorm.DB, w *domain.TranslationWindow, quotaMax int) (*domain.TranslationWindow, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	w.CreatedAt = w.CreatedAt.UTC()
	w.ExpiresAt = w.ExpiresAt.UTC()
	now := w.CreatedAt

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUser(tx, w.UserID, now); err != nil {
			return err
		}

		var existing int64
		if err := activeForKey(tx, w.UserID, w.Key(), now).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrConflict
		}

		if quotaMax > 0 {
			var active int64
			if err := activeForUser(tx, w.UserID, now).Count(&active).Error; err != nil {
				return err
			}
			if active >= int64(quotaMax) {
				return ErrQuotaExceeded
			}
		}

		return tx.Create(w).Error
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// lockUser upserts the user's guard row, which blocks concurrent writers for
// the same user until the surrounding transaction ends.
func lockUser(tx *gorm.DB, userID string, now time.Time) error {
	g := domain.WindowGuard{UserID: userID, Touches: 1, UpdatedAt: now}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"touches":    gorm.Expr("translation_window_guards.touches + 1"),
			"updated_at": now,
		}),
	}).Create(&g).Error
}
