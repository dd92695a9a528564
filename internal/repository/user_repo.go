package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tao2825/library-borrow-system/internal/model"
)

type UserRepository interface {
	WithTx(tx *gorm.DB) UserRepository
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByID(ctx context.Context, id uint) (*model.User, error)
	LockByID(ctx context.Context, id uint) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	FindAll(ctx context.Context) ([]model.User, error)
	Count(ctx context.Context) (int64, error)
	UpdateRole(ctx context.Context, id uint, role model.Role) error
	UpdateActive(ctx context.Context, id uint, active bool) error
	UpdatePassword(ctx context.Context, id uint, hashedPassword string, mustChange bool) error
	UpdateSession(ctx context.Context, id uint, tokenVersion string, loginAt time.Time) error
	UpdateTokenVersion(ctx context.Context, id uint, version string) error
}

type userRepo struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) UserRepository {
	return &userRepo{db}
}

func (r *userRepo) WithTx(tx *gorm.DB) UserRepository {
	return &userRepo{tx}
}

func (r *userRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// LockByID reads the user with FOR UPDATE so guards and writes see the same row.
func (r *userRepo) LockByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepo) FindAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).Order("id").Find(&users).Error
	return users, err
}

func (r *userRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Count(&n).Error
	return n, err
}

func (r *userRepo) UpdateRole(ctx context.Context, id uint, role model.Role) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("role", role).Error
}

func (r *userRepo) UpdateActive(ctx context.Context, id uint, active bool) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("is_active", active).Error
}

func (r *userRepo) UpdatePassword(ctx context.Context, id uint, hashedPassword string, mustChange bool) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"password_hash":        hashedPassword,
		"must_change_password": mustChange,
	}).Error
}

func (r *userRepo) UpdateSession(ctx context.Context, id uint, tokenVersion string, loginAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"token_version": tokenVersion,
		"last_login_at": loginAt,
	}).Error
}

func (r *userRepo) UpdateTokenVersion(ctx context.Context, id uint, version string) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("token_version", version).Error
}
