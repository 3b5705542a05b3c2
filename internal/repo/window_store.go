package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-translation-backend/internal/domain"
)

// SQLWindowStore binds the window free functions to a *gorm.DB so the service
// layer can depend on a narrow store interface.
type SQLWindowStore struct {
	DB *gorm.DB
}

// NewSQLWindowStore wraps db.
func NewSQLWindowStore(db *gorm.DB) *SQLWindowStore { return &SQLWindowStore{DB: db} }

// FindActive proxies FindActiveWindow.
func (s *SQLWindowStore) FindActive(ctx context.Context, userID string, key domain.ContentKey, now time.Time) (*domain.TranslationWindow, error) {
	return FindActiveWindow(ctx, s.DB, userID, key, now)
}

// CountActive proxies CountActiveWindows.
func (s *SQLWindowStore) CountActive(ctx context.Context, userID string, now time.Time) (int64, error) {
	return CountActiveWindows(ctx, s.DB, userID, now)
}

// EarliestExpiry proxies EarliestActiveExpiry.
func (s *SQLWindowStore) EarliestExpiry(ctx context.Context, userID string, now time.Time) (*time.Time, error) {
	return EarliestActiveExpiry(ctx, s.DB, userID, now)
}

// InsertIfAbsent proxies InsertWindowIfAbsent.
func (s *SQLWindowStore) InsertIfAbsent(ctx context.Context, w *domain.TranslationWindow, quotaMax int) (*domain.TranslationWindow, error) {
	return InsertWindowIfAbsent(ctx, s.DB, w, quotaMax)
}

// ListActive proxies ListActiveWindows.
func (s *SQLWindowStore) ListActive(ctx context.Context, userID string, now time.Time, limit int) ([]domain.TranslationWindow, error) {
	return ListActiveWindows(ctx, s.DB, userID, now, limit)
}

// Stats proxies WindowsStats.
func (s *SQLWindowStore) Stats(ctx context.Context, userID string, now time.Time) (int64, *time.Time, error) {
	return WindowsStats(ctx, s.DB, userID, now)
}

// PurgeExpired proxies PurgeExpiredWindows and PurgeIdleGuards.
func (s *SQLWindowStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := PurgeExpiredWindows(ctx, s.DB, cutoff)
	if err != nil {
		return n, err
	}
	_, err = PurgeIdleGuards(ctx, s.DB, cutoff)
	return n, err
}
