package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tao2825/library-borrow-system/internal/model"
)

type BorrowRepository interface {
	WithTx(tx *gorm.DB) BorrowRepository
	CreateTransaction(ctx context.Context, header *model.BorrowTransaction) error
	CreateItems(ctx context.Context, items []model.BorrowItem) error
	FindItem(ctx context.Context, id uint) (*model.BorrowItem, error)
	MarkItemReturned(ctx context.Context, id, staffID uint, at time.Time) (bool, error)
	CountBorrowed(ctx context.Context, txID uint) (int64, error)
	CloseTransaction(ctx context.Context, txID uint, at time.Time) error
	FindTransaction(ctx context.Context, id uint) (*model.BorrowTransaction, error)
	FindActiveItems(ctx context.Context, memberID uint) ([]model.BorrowItem, error)
	BookOnLoan(ctx context.Context, bookID uint) (bool, error)
	MemberHasLoans(ctx context.Context, memberID uint) (bool, error)
}

type borrowRepo struct {
	db *gorm.DB
}

func NewBorrowRepo(db *gorm.DB) BorrowRepository {
	return &borrowRepo{db}
}

func (r *borrowRepo) WithTx(tx *gorm.DB) BorrowRepository {
	return &borrowRepo{tx}
}

// CreateTransaction inserts the header only; items are written separately.
func (r *borrowRepo) CreateTransaction(ctx context.Context, header *model.BorrowTransaction) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(header).Error
}

func (r *borrowRepo) CreateItems(ctx context.Context, items []model.BorrowItem) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(&items).Error
}

func (r *borrowRepo) FindItem(ctx context.Context, id uint) (*model.BorrowItem, error) {
	var item model.BorrowItem
	if err := r.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// MarkItemReturned only touches an item still on loan and reports whether it did.
func (r *borrowRepo) MarkItemReturned(ctx context.Context, id, staffID uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.BorrowItem{}).
		Where("id = ? AND status = ?", id, model.ItemBorrowed).
		Updates(map[string]interface{}{
			"status":               model.ItemReturned,
			"return_date":          at,
			"return_staff_user_id": staffID,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *borrowRepo) CountBorrowed(ctx context.Context, txID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.BorrowItem{}).
		Where("tx_id = ? AND status = ?", txID, model.ItemBorrowed).
		Count(&n).Error
	return n, err
}

func (r *borrowRepo) CloseTransaction(ctx context.Context, txID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.BorrowTransaction{}).
		Where("id = ? AND status = ?", txID, model.TxOpen).
		Updates(map[string]interface{}{
			"status":    model.TxClosed,
			"closed_at": at,
		}).Error
}

func (r *borrowRepo) FindTransaction(ctx context.Context, id uint) (*model.BorrowTransaction, error) {
	var header model.BorrowTransaction
	err := r.db.WithContext(ctx).
		Preload("Member", unscoped).
		Preload("Staff").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Items.Book", unscoped).
		Preload("Items.ReturnStaff").
		First(&header, id).Error
	if err != nil {
		return nil, err
	}
	return &header, nil
}

// FindActiveItems lists items still on loan, oldest first. memberID 0 means every member.
func (r *borrowRepo) FindActiveItems(ctx context.Context, memberID uint) ([]model.BorrowItem, error) {
	var items []model.BorrowItem
	q := r.db.WithContext(ctx).
		Preload("Book", unscoped).
		Where("borrow_items.status = ?", model.ItemBorrowed)
	if memberID != 0 {
		q = q.Joins("JOIN borrow_tx ON borrow_tx.id = borrow_items.tx_id").
			Where("borrow_tx.member_id = ?", memberID)
	}
	err := q.Order("borrow_items.id").Find(&items).Error
	return items, err
}

func (r *borrowRepo) BookOnLoan(ctx context.Context, bookID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.BorrowItem{}).
		Where("book_id = ? AND status = ?", bookID, model.ItemBorrowed).
		Count(&n).Error
	return n > 0, err
}

func (r *borrowRepo) MemberHasLoans(ctx context.Context, memberID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.BorrowItem{}).
		Joins("JOIN borrow_tx ON borrow_tx.id = borrow_items.tx_id").
		Where("borrow_tx.member_id = ? AND borrow_items.status = ?", memberID, model.ItemBorrowed).
		Count(&n).Error
	return n > 0, err
}

func unscoped(db *gorm.DB) *gorm.DB {
	return db.Unscoped()
}
