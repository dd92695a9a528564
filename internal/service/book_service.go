package service

import (
	"context"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/tao2825/library-borrow-system/internal/model"
	"github.com/tao2825/library-borrow-system/internal/repository"
	"github.com/tao2825/library-borrow-system/pkg/validator"
)

type BookService interface {
	CreateBook(ctx context.Context, req *BookRequest, actor string) (*model.Book, error)
	GetBooks(ctx context.Context, availableOnly bool) ([]model.Book, error)
	GetBook(ctx context.Context, id uint) (*model.Book, error)
	UpdateBook(ctx context.Context, id uint, req *BookRequest, actor string) (*model.Book, error)
	DeleteBook(ctx context.Context, id uint, actor string) error
}

// BookRequest carries the editable book fields. Status is never accepted from callers.
type BookRequest struct {
	Title  string `json:"title" validate:"required,max=255"`
	Author string `json:"author" validate:"max=255"`
}

type bookService struct {
	db         *gorm.DB
	bookRepo   repository.BookRepository
	borrowRepo repository.BorrowRepository
	logger     *slog.Logger
}

func NewBookService(db *gorm.DB, bRepo repository.BookRepository, brRepo repository.BorrowRepository, logger *slog.Logger) BookService {
	return &bookService{
		db:         db,
		bookRepo:   bRepo,
		borrowRepo: brRepo,
		logger:     logger,
	}
}

func (r *BookRequest) normalize() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Author = strings.TrimSpace(r.Author)
	if errs := validator.ValidateStruct(r); len(errs) > 0 {
		return invalid(validator.Messages(errs)...)
	}
	return nil
}

func (s *bookService) CreateBook(ctx context.Context, req *BookRequest, actor string) (*model.Book, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	book := &model.Book{
		Title:  req.Title,
		Author: req.Author,
		Status: model.BookAvailable,
	}
	book.CreatedBy = actor
	book.UpdatedBy = actor

	if err := s.bookRepo.Create(ctx, book); err != nil {
		return nil, err
	}
	s.logger.Info("book created", slog.Uint64("book_id", uint64(book.ID)), slog.String("by", actor))
	return book, nil
}

func (s *bookService) GetBooks(ctx context.Context, availableOnly bool) ([]model.Book, error) {
	if availableOnly {
		return s.bookRepo.FindAvailable(ctx)
	}
	return s.bookRepo.FindAll(ctx)
}

func (s *bookService) GetBook(ctx context.Context, id uint) (*model.Book, error) {
	book, err := s.bookRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrBookNotFound)
	}
	return book, nil
}

func (s *bookService) UpdateBook(ctx context.Context, id uint, req *BookRequest, actor string) (*model.Book, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	book, err := s.bookRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrBookNotFound)
	}
	book.Title = req.Title
	book.Author = req.Author
	book.UpdatedBy = actor

	if err := s.bookRepo.UpdateDetails(ctx, book); err != nil {
		return nil, err
	}
	return book, nil
}

// DeleteBook soft-deletes a book that is not on loan, so its history stays readable.
func (s *bookService) DeleteBook(ctx context.Context, id uint, actor string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		books := s.bookRepo.WithTx(tx)
		locked, err := books.LockByIDs(ctx, []uint{id})
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return ErrBookNotFound
		}
		onLoan, err := s.borrowRepo.WithTx(tx).BookOnLoan(ctx, id)
		if err != nil {
			return err
		}
		if onLoan || !locked[0].IsAvailable() {
			return ErrBookOnLoan
		}
		return books.Delete(ctx, id, actor)
	})
	if err != nil {
		return err
	}
	s.logger.Info("book deleted", slog.Uint64("book_id", uint64(id)), slog.String("by", actor))
	return nil
}
