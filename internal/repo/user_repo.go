package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-translation-backend/internal/domain"
)

// GetUser loads a row from the shared users table, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	var u domain.User
	err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserStore binds GetUser to a *gorm.DB.
type UserStore struct {
	DB *gorm.DB
}

// NewUserStore wraps db.
func NewUserStore(db *gorm.DB) *UserStore { return &UserStore{DB: db} }

// GetUser proxies the free function.
func (s *UserStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return GetUser(ctx, s.DB, id)
}
