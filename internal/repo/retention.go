package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-translation-backend/internal/domain"
)

// PurgeExpiredWindows deletes windows whose expires_at is at or before cutoff
// and returns how many rows were removed. Callers pass a cutoff in the past,
// so active windows are never touched.
func PurgeExpiredWindows(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", cutoff.UTC()).
		Delete(&domain.TranslationWindow{})
	return res.RowsAffected, res.Error
}

// PurgeIdleGuards deletes guard rows not touched since cutoff. A purged guard
// is recreated by the next insert for that user.
func PurgeIdleGuards(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("updated_at <= ?", cutoff.UTC()).
		Delete(&domain.WindowGuard{})
	return res.RowsAffected, res.Error
}
