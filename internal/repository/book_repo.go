package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tao2825/library-borrow-system/internal/model"
)

type BookRepository interface {
	WithTx(tx *gorm.DB) BookRepository
	Create(ctx context.Context, book *model.Book) error
	FindAll(ctx context.Context) ([]model.Book, error)
	FindAvailable(ctx context.Context) ([]model.Book, error)
	FindByID(ctx context.Context, id uint) (*model.Book, error)
	UpdateDetails(ctx context.Context, book *model.Book) error
	Delete(ctx context.Context, id uint, deletedBy string) error
	LockByIDs(ctx context.Context, ids []uint) ([]model.Book, error)
	MarkBorrowed(ctx context.Context, id uint) (bool, error)
	MarkAvailable(ctx context.Context, id uint) error
}

type bookRepo struct {
	db *gorm.DB
}

func NewBookRepo(db *gorm.DB) BookRepository {
	return &bookRepo{db}
}

// WithTx binds the repository to a running transaction
func (r *bookRepo) WithTx(tx *gorm.DB) BookRepository {
	return &bookRepo{tx}
}

func (r *bookRepo) Create(ctx context.Context, book *model.Book) error {
	return r.db.WithContext(ctx).Create(book).Error
}

func (r *bookRepo) FindAll(ctx context.Context) ([]model.Book, error) {
	var books []model.Book
	err := r.db.WithContext(ctx).Order("id").Find(&books).Error
	return books, err
}

func (r *bookRepo) FindAvailable(ctx context.Context) ([]model.Book, error) {
	var books []model.Book
	err := r.db.WithContext(ctx).Where("status = ?", model.BookAvailable).Order("id").Find(&books).Error
	return books, err
}

func (r *bookRepo) FindByID(ctx context.Context, id uint) (*model.Book, error) {
	var book model.Book
	if err := r.db.WithContext(ctx).First(&book, id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// UpdateDetails writes descriptive fields only; status belongs to circulation.
func (r *bookRepo) UpdateDetails(ctx context.Context, book *model.Book) error {
	return r.db.WithContext(ctx).Model(book).
		Select("title", "author", "updated_by").
		Updates(book).Error
}

func (r *bookRepo) Delete(ctx context.Context, id uint, deletedBy string) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&model.Book{}).Where("id = ?", id).Update("deleted_by", deletedBy).Error; err != nil {
		return err
	}
	return db.Delete(&model.Book{}, id).Error
}

// LockByIDs loads the requested books with a row lock for the rest of the transaction.
func (r *bookRepo) LockByIDs(ctx context.Context, ids []uint) ([]model.Book, error) {
	var books []model.Book
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&books).Error
	return books, err
}

// MarkBorrowed flips an available book to borrowed and reports whether it did.
func (r *bookRepo) MarkBorrowed(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Book{}).
		Where("id = ? AND status = ?", id, model.BookAvailable).
		Update("status", model.BookBorrowed)
	return res.RowsAffected == 1, res.Error
}

func (r *bookRepo) MarkAvailable(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Unscoped().Model(&model.Book{}).
		Where("id = ?", id).
		Update("status", model.BookAvailable).Error
}
