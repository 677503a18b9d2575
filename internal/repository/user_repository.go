package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/sale-promotion/internal/model"
)

// UserRepository 用户目录
type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepository{db: db} }

func (r *userRepository) Create(ctx context.Context, u *model.User) error {
	return mapErr(r.db.WithContext(ctx).Create(u).Error)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}
