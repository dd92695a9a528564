package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/tao2825/library-borrow-system/internal/metrics"
	"github.com/tao2825/library-borrow-system/internal/model"
	"github.com/tao2825/library-borrow-system/internal/repository"
	"github.com/tao2825/library-borrow-system/internal/ws"
	"github.com/tao2825/library-borrow-system/pkg/cache"
	"github.com/tao2825/library-borrow-system/pkg/logger"
	"github.com/tao2825/library-borrow-system/pkg/tracing"
	"github.com/tao2825/library-borrow-system/pkg/validator"
)

// BorrowRequest lends one or more books to a member in a single transaction.
type BorrowRequest struct {
	MemberID         uint            `json:"member_id" validate:"required"`
	BookIDs          []uint          `json:"book_ids" validate:"required,min=1,dive,required"`
	DefaultDueDate   string          `json:"default_due_date" validate:"isodate"`
	DueDateOverrides map[uint]string `json:"due_date_overrides" validate:"omitempty,dive,isodate"`
	Note             string          `json:"note" validate:"max=1000"`
}

// ReturnResult reports the outcome of a batch return per item id.
type ReturnResult struct {
	Succeeded []uint `json:"succeeded"`
	Failed    []uint `json:"failed"`
}

// EventPublisher receives circulation events after commit.
type EventPublisher interface {
	Publish(evt ws.Event)
}

type CirculationService interface {
	CreateBorrowTransaction(ctx context.Context, req *BorrowRequest, staffID uint) (uint, error)
	ReturnItem(ctx context.Context, itemID, staffID uint) (bool, error)
	ReturnItems(ctx context.Context, itemIDs []uint, staffID uint) (*ReturnResult, error)
	GetTransaction(ctx context.Context, id uint) (*model.BorrowTransaction, error)
	ActiveItems(ctx context.Context, memberID uint) ([]model.BorrowItem, error)
}

// CirculationOption configures the circulation service.
type CirculationOption func(*circulationService)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) CirculationOption {
	return func(s *circulationService) { s.now = now }
}

func WithEvents(p EventPublisher) CirculationOption {
	return func(s *circulationService) { s.events = p }
}

// WithReportCache invalidates cached reports whenever circulation commits.
func WithReportCache(c cache.Store) CirculationOption {
	return func(s *circulationService) { s.cache = c }
}

func WithLogger(l *slog.Logger) CirculationOption {
	return func(s *circulationService) { s.logger = l }
}

// WithDefaultLoanDays sets the due date used when a request names none. Zero keeps it empty.
func WithDefaultLoanDays(days int) CirculationOption {
	return func(s *circulationService) { s.loanDays = days }
}

type circulationService struct {
	db         *gorm.DB
	bookRepo   repository.BookRepository
	memberRepo repository.MemberRepository
	userRepo   repository.UserRepository
	borrowRepo repository.BorrowRepository

	events   EventPublisher
	cache    cache.Store
	logger   *slog.Logger
	now      func() time.Time
	loanDays int
}

func NewCirculationService(
	db *gorm.DB,
	bRepo repository.BookRepository,
	mRepo repository.MemberRepository,
	uRepo repository.UserRepository,
	brRepo repository.BorrowRepository,
	opts ...CirculationOption,
) CirculationService {
	s := &circulationService{
		db:         db,
		bookRepo:   bRepo,
		memberRepo: mRepo,
		userRepo:   uRepo,
		borrowRepo: brRepo,
		logger:     logger.Discard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// borrowPlan is a request that passed validation, with dates parsed.
type borrowPlan struct {
	bookIDs    []uint
	defaultDue *time.Time
	dueByBook  map[uint]*time.Time
	note       *string
}

func (s *circulationService) CreateBorrowTransaction(ctx context.Context, req *BorrowRequest, staffID uint) (uint, error) {
	ctx, span := tracing.Tracer().Start(ctx, "circulation.create_borrow")
	defer span.End()
	start := time.Now()

	txID, err := s.createBorrow(ctx, req, staffID)
	metrics.ObserveCirculation("borrow", resultLabel(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("borrow rejected",
			slog.Uint64("staff_id", uint64(staffID)),
			slog.String("error", err.Error()))
		return 0, err
	}
	span.SetAttributes(attribute.Int64("tx_id", int64(txID)))
	return txID, nil
}

func (s *circulationService) createBorrow(ctx context.Context, req *BorrowRequest, staffID uint) (uint, error) {
	now := s.now().UTC()
	plan, err := s.planBorrow(req, staffID, now)
	if err != nil {
		return 0, err
	}

	var header model.BorrowTransaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		books := s.bookRepo.WithTx(tx)
		borrows := s.borrowRepo.WithTx(tx)

		staff, err := s.userRepo.WithTx(tx).FindByID(ctx, staffID)
		if err != nil {
			return notFound(err, ErrUserNotFound)
		}
		if !staff.IsActive {
			return ErrStaffInactive
		}

		member, err := s.memberRepo.WithTx(tx).LockByID(ctx, req.MemberID)
		if err != nil {
			return notFound(err, ErrMemberNotFound)
		}
		if !member.IsActive {
			return ErrMemberInactive
		}

		found, err := books.LockByIDs(ctx, plan.bookIDs)
		if err != nil {
			return err
		}
		byID := make(map[uint]model.Book, len(found))
		for _, b := range found {
			byID[b.ID] = b
		}
		var missing, unavailable []uint
		for _, id := range plan.bookIDs {
			b, ok := byID[id]
			switch {
			case !ok:
				missing = append(missing, id)
			case !b.IsAvailable():
				unavailable = append(unavailable, id)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: %s", ErrBookNotFound, joinIDs(missing))
		}
		if len(unavailable) > 0 {
			return fmt.Errorf("%w: %s", ErrBookNotAvailable, joinIDs(unavailable))
		}

		header = model.BorrowTransaction{
			MemberID:       member.ID,
			StaffUserID:    staff.ID,
			BorrowDate:     now,
			DefaultDueDate: plan.defaultDue,
			Status:         model.TxOpen,
			Note:           plan.note,
		}
		if err := borrows.CreateTransaction(ctx, &header); err != nil {
			return err
		}

		items := make([]model.BorrowItem, 0, len(plan.bookIDs))
		for _, id := range plan.bookIDs {
			items = append(items, model.BorrowItem{
				TxID:    header.ID,
				BookID:  id,
				DueDate: plan.dueByBook[id],
				Status:  model.ItemBorrowed,
			})
		}
		if err := borrows.CreateItems(ctx, items); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrBookNotAvailable
			}
			return err
		}

		// The conditional flip is what makes two racing borrows produce one winner.
		for _, id := range plan.bookIDs {
			ok, err := books.MarkBorrowed(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %d", ErrBookNotAvailable, id)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.AddBorrowed(len(plan.bookIDs))
	s.afterCommit(ctx, ws.Event{
		Type:        ws.EventBorrowCreated,
		TxID:        header.ID,
		BookIDs:     plan.bookIDs,
		MemberID:    header.MemberID,
		StaffUserID: staffID,
		At:          now,
	})
	s.logger.Info("borrow transaction created",
		slog.Uint64("tx_id", uint64(header.ID)),
		slog.Uint64("member_id", uint64(header.MemberID)),
		slog.Uint64("staff_id", uint64(staffID)),
		slog.Int("books", len(plan.bookIDs)))

	return header.ID, nil
}

// planBorrow checks everything that can be checked without the store.
func (s *circulationService) planBorrow(req *BorrowRequest, staffID uint, now time.Time) (*borrowPlan, error) {
	if req == nil {
		return nil, invalid("request body is required")
	}

	var msgs []string
	if staffID == 0 {
		msgs = append(msgs, "acting staff is required")
	}
	if errs := validator.ValidateStruct(req); len(errs) > 0 {
		msgs = append(msgs, validator.Messages(errs)...)
	}

	seen := make(map[uint]bool, len(req.BookIDs))
	for _, id := range req.BookIDs {
		if seen[id] {
			msgs = append(msgs, fmt.Sprintf("book %d appears more than once", id))
		}
		seen[id] = true
	}
	for id := range req.DueDateOverrides {
		if !seen[id] {
			msgs = append(msgs, fmt.Sprintf("due date override for book %d which is not in the request", id))
		}
	}
	if len(msgs) > 0 {
		return nil, invalid(msgs...)
	}

	plan := &borrowPlan{
		bookIDs:   req.BookIDs,
		dueByBook: make(map[uint]*time.Time, len(req.BookIDs)),
	}
	if req.DefaultDueDate != "" {
		d, _ := validator.ParseDate(req.DefaultDueDate)
		plan.defaultDue = &d
	} else if s.loanDays > 0 {
		d := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, s.loanDays)
		plan.defaultDue = &d
	}
	for _, id := range req.BookIDs {
		plan.dueByBook[id] = plan.defaultDue
		if raw, ok := req.DueDateOverrides[id]; ok && raw != "" {
			d, _ := validator.ParseDate(raw)
			plan.dueByBook[id] = &d
		}
	}
	if req.Note != "" {
		note := req.Note
		plan.note = &note
	}
	return plan, nil
}

func (s *circulationService) ReturnItem(ctx context.Context, itemID, staffID uint) (bool, error) {
	ctx, span := tracing.Tracer().Start(ctx, "circulation.return_item")
	defer span.End()
	span.SetAttributes(attribute.Int64("item_id", int64(itemID)))
	start := time.Now()

	ok, err := s.returnItem(ctx, itemID, staffID)

	result := "returned"
	switch {
	case err != nil:
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case !ok:
		result = "skipped"
	}
	metrics.ObserveReturn(result)
	metrics.ObserveCirculation("return", resultLabel(err), time.Since(start))
	return ok, err
}

func (s *circulationService) returnItem(ctx context.Context, itemID, staffID uint) (bool, error) {
	if itemID == 0 || staffID == 0 {
		return false, invalid("item id and returning staff are required")
	}
	now := s.now().UTC()

	var (
		returned bool
		closed   bool
		item     *model.BorrowItem
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		borrows := s.borrowRepo.WithTx(tx)

		staff, err := s.userRepo.WithTx(tx).FindByID(ctx, staffID)
		if err != nil {
			return notFound(err, ErrUserNotFound)
		}
		if !staff.IsActive {
			return ErrStaffInactive
		}

		item, err = borrows.FindItem(ctx, itemID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if item.Status != model.ItemBorrowed {
			return nil
		}

		ok, err := borrows.MarkItemReturned(ctx, item.ID, staffID, now)
		if err != nil || !ok {
			return err
		}
		if err := s.bookRepo.WithTx(tx).MarkAvailable(ctx, item.BookID); err != nil {
			return err
		}

		remaining, err := borrows.CountBorrowed(ctx, item.TxID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if err := borrows.CloseTransaction(ctx, item.TxID, now); err != nil {
				return err
			}
			closed = true
		}
		returned = true
		return nil
	})
	if err != nil || !returned {
		return false, err
	}

	s.afterCommit(ctx, ws.Event{
		Type:        ws.EventItemReturned,
		TxID:        item.TxID,
		ItemID:      item.ID,
		BookIDs:     []uint{item.BookID},
		StaffUserID: staffID,
		At:          now,
	})
	if closed {
		metrics.IncrementClosed()
		s.publish(ws.Event{Type: ws.EventTransactionClosed, TxID: item.TxID, StaffUserID: staffID, At: now})
	}
	s.logger.Info("borrow item returned",
		slog.Uint64("item_id", uint64(item.ID)),
		slog.Uint64("tx_id", uint64(item.TxID)),
		slog.Uint64("staff_id", uint64(staffID)),
		slog.Bool("tx_closed", closed))

	return true, nil
}

// ReturnItems returns each item in its own unit of work. One failing item never stops the rest.
func (s *circulationService) ReturnItems(ctx context.Context, itemIDs []uint, staffID uint) (*ReturnResult, error) {
	if len(itemIDs) == 0 {
		return nil, invalid("at least one item id is required")
	}
	if staffID == 0 {
		return nil, invalid("acting staff is required")
	}

	res := &ReturnResult{Succeeded: []uint{}, Failed: []uint{}}
	for _, id := range itemIDs {
		ok, err := s.ReturnItem(ctx, id, staffID)
		if err != nil {
			s.logger.Error("return item failed",
				slog.Uint64("item_id", uint64(id)),
				slog.String("error", err.Error()))
		}
		if ok {
			res.Succeeded = append(res.Succeeded, id)
		} else {
			res.Failed = append(res.Failed, id)
		}
	}
	return res, nil
}

func (s *circulationService) GetTransaction(ctx context.Context, id uint) (*model.BorrowTransaction, error) {
	header, err := s.borrowRepo.FindTransaction(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrTxNotFound)
	}
	return header, nil
}

// ActiveItems lists items still on loan. memberID 0 lists every member's loans.
func (s *circulationService) ActiveItems(ctx context.Context, memberID uint) ([]model.BorrowItem, error) {
	return s.borrowRepo.FindActiveItems(ctx, memberID)
}

func (s *circulationService) afterCommit(ctx context.Context, evt ws.Event) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, ReportCachePrefix); err != nil {
			s.logger.Warn("report cache invalidation failed", slog.String("error", err.Error()))
		}
	}
	s.publish(evt)
}

func (s *circulationService) publish(evt ws.Event) {
	if s.events != nil {
		s.events.Publish(evt)
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrAuth):
		return "rejected"
	default:
		return "error"
	}
}
