package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tao2825/library-borrow-system/internal/model"
)

type MemberRepository interface {
	WithTx(tx *gorm.DB) MemberRepository
	Create(ctx context.Context, member *model.Member) error
	Update(ctx context.Context, member *model.Member) error
	FindAll(ctx context.Context) ([]model.Member, error)
	FindActive(ctx context.Context) ([]model.Member, error)
	FindByID(ctx context.Context, id uint) (*model.Member, error)
	LockByID(ctx context.Context, id uint) (*model.Member, error)
	Delete(ctx context.Context, id uint, deletedBy string) error
	CodeTaken(ctx context.Context, code string, excludeID uint) (bool, error)
	EmailTaken(ctx context.Context, email string, excludeID uint) (bool, error)
}

type memberRepo struct {
	db *gorm.DB
}

func NewMemberRepo(db *gorm.DB) MemberRepository {
	return &memberRepo{db}
}

func (r *memberRepo) WithTx(tx *gorm.DB) MemberRepository {
	return &memberRepo{tx}
}

func (r *memberRepo) Create(ctx context.Context, member *model.Member) error {
	return r.db.WithContext(ctx).Create(member).Error
}

// Update saves the editable columns, including explicit false and NULL values.
func (r *memberRepo) Update(ctx context.Context, member *model.Member) error {
	return r.db.WithContext(ctx).Model(member).
		Select("member_code", "name", "gender", "email", "phone", "is_active", "updated_by").
		Updates(member).Error
}

func (r *memberRepo) FindAll(ctx context.Context) ([]model.Member, error) {
	var members []model.Member
	err := r.db.WithContext(ctx).Order("id").Find(&members).Error
	return members, err
}

func (r *memberRepo) FindActive(ctx context.Context) ([]model.Member, error) {
	var members []model.Member
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&members).Error
	return members, err
}

func (r *memberRepo) FindByID(ctx context.Context, id uint) (*model.Member, error) {
	var member model.Member
	if err := r.db.WithContext(ctx).First(&member, id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// LockByID reads the member with a shared lock so it cannot be deactivated mid-checkout.
func (r *memberRepo) LockByID(ctx context.Context, id uint) (*model.Member, error) {
	var member model.Member
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		First(&member, id).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *memberRepo) Delete(ctx context.Context, id uint, deletedBy string) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&model.Member{}).Where("id = ?", id).Update("deleted_by", deletedBy).Error; err != nil {
		return err
	}
	return db.Delete(&model.Member{}, id).Error
}

// CodeTaken checks every row, deleted ones included, since the unique index does too.
func (r *memberRepo) CodeTaken(ctx context.Context, code string, excludeID uint) (bool, error) {
	return r.taken(ctx, "member_code = ?", code, excludeID)
}

func (r *memberRepo) EmailTaken(ctx context.Context, email string, excludeID uint) (bool, error) {
	if email == "" {
		return false, nil
	}
	return r.taken(ctx, "email = ?", email, excludeID)
}

func (r *memberRepo) taken(ctx context.Context, cond string, value string, excludeID uint) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Unscoped().Model(&model.Member{}).Where(cond, value)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
