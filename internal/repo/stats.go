// Package repo implements the persistence layer for translation windows,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// WindowsStats returns aggregate metadata for a user's active windows at now:
// the number of rows and the greatest CreatedAt among them. When the user has
// no active windows, count is 0 and maxCreatedAt is nil.
//
// Windows are immutable, so (count, max created_at) changes whenever the
// active set changes, apart from expiries, which also change the count.
func WindowsStats(ctx context.Context, db *gorm.DB, userID string, now time.Time) (count int64, maxCreatedAt *time.Time, err error) {
	q := activeForUser(db.WithContext(ctx), userID, now)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Latest created_at (avoid MAX() -> TEXT in SQLite).
	var row struct {
		CreatedAt time.Time
	}
	if err = activeForUser(db.WithContext(ctx), userID, now).
		Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
