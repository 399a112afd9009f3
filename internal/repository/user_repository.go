package repository

import (
	"context"
	"errors"

	"roadmap_analysis/internal/model"
	"roadmap_analysis/internal/util"

	"gorm.io/gorm"
)

// UserRepository 只读访问用户表，用于把用户名解析为用户 id
type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) FindIDByUsername(ctx context.Context, username string) (string, error) {
	var user model.User
	err := r.DB.WithContext(ctx).Select("id").Where("username = ?", username).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", util.ErrUserNotFound
	}
	if err != nil {
		return "", util.StoreError("find user", err)
	}
	return user.ID, nil
}
