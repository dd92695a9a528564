package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/tao2825/library-borrow-system/internal/metrics"
	"github.com/tao2825/library-borrow-system/internal/repository"
	"github.com/tao2825/library-borrow-system/pkg/cache"
	"github.com/tao2825/library-borrow-system/pkg/validator"
)

// ReportCachePrefix namespaces every cached report key; circulation commits drop it.
const ReportCachePrefix = "report:"

const defaultHistoryLimit = 200

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type ReportService interface {
	BookStatusSummary(ctx context.Context) ([]repository.StatusCount, error)
	MonthlyBorrowCounts(ctx context.Context, from, to string) ([]repository.MonthlyCount, error)
	Ledger(ctx context.Context, from, to, status string) ([]repository.LedgerRow, error)
	History(ctx context.Context, limit int) ([]repository.LedgerRow, error)
	Dashboard(ctx context.Context) (*repository.DashboardStats, error)
	WriteLedgerCSV(ctx context.Context, w io.Writer, from, to, status string) (int, error)
}

type reportService struct {
	reportRepo repository.ReportRepository
	cache      cache.Store
	ttl        time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewReportService(reportRepo repository.ReportRepository, store cache.Store, ttl time.Duration, logger *slog.Logger) ReportService {
	return &reportService{
		reportRepo: reportRepo,
		cache:      store,
		ttl:        ttl,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *reportService) BookStatusSummary(ctx context.Context) ([]repository.StatusCount, error) {
	var out []repository.StatusCount
	err := s.cached(ctx, ReportCachePrefix+"summary", &out, func() (interface{}, error) {
		return s.reportRepo.BookStatusSummary(ctx)
	})
	return out, err
}

// MonthlyBorrowCounts counts transactions per month for the inclusive date range.
func (s *reportService) MonthlyBorrowCounts(ctx context.Context, from, to string) ([]repository.MonthlyCount, error) {
	start, end, err := parseRange(from, to, true)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%smonthly:%s:%s", ReportCachePrefix, from, to)
	var out []repository.MonthlyCount
	err = s.cached(ctx, key, &out, func() (interface{}, error) {
		return s.reportRepo.MonthlyBorrowCounts(ctx, start, end)
	})
	return out, err
}

// Ledger lists borrow items in the inclusive date range, newest first. Empty bounds are open.
func (s *reportService) Ledger(ctx context.Context, from, to, status string) ([]repository.LedgerRow, error) {
	start, end, err := parseRange(from, to, false)
	if err != nil {
		return nil, err
	}
	switch status {
	case "", "all", "borrowed", "returned":
	default:
		return nil, invalid("status must be all, borrowed or returned")
	}
	return s.reportRepo.Ledger(ctx, repository.LedgerFilter{From: start, To: end, Status: status})
}

func (s *reportService) History(ctx context.Context, limit int) ([]repository.LedgerRow, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.reportRepo.Ledger(ctx, repository.LedgerFilter{Limit: uint(limit)})
}

func (s *reportService) Dashboard(ctx context.Context) (*repository.DashboardStats, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var out repository.DashboardStats
	err := s.cached(ctx, ReportCachePrefix+"dashboard:"+today.Format(validator.DateLayout), &out, func() (interface{}, error) {
		return s.reportRepo.Dashboard(ctx, today)
	})
	if err != nil {
		return nil, err
	}
	metrics.SetOnLoan(out.BorrowedBooks)
	return &out, nil
}

// WriteLedgerCSV streams the ledger as CSV and returns the number of data rows.
func (s *reportService) WriteLedgerCSV(ctx context.Context, w io.Writer, from, to, status string) (int, error) {
	rows, err := s.Ledger(ctx, from, to, status)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	header := []string{"item_id", "tx_id", "borrow_date", "member_code", "member_name", "book_id", "book_title", "due_date", "return_date", "status", "staff", "return_staff"}
	if err := cw.Write(header); err != nil {
		return 0, err
	}
	for _, r := range rows {
		rec := []string{
			strconv.FormatUint(uint64(r.ItemID), 10),
			strconv.FormatUint(uint64(r.TxID), 10),
			r.BorrowDate.UTC().Format(time.RFC3339),
			r.MemberCode,
			r.MemberName,
			strconv.FormatUint(uint64(r.BookID), 10),
			r.BookTitle,
			formatDate(r.DueDate, validator.DateLayout),
			formatDate(r.ReturnDate, time.RFC3339),
			r.Status,
			r.StaffUsername,
			derefString(r.ReturnStaffUsername),
		}
		if err := cw.Write(rec); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(rows), cw.Error()
}

// cached serves dst from the store, or fills it with load and stores the result.
// Cache failures are logged and fall through to the database.
func (s *reportService) cached(ctx context.Context, key string, dst interface{}, load func() (interface{}, error)) error {
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("report cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		} else if ok {
			if err := json.Unmarshal(raw, dst); err == nil {
				return nil
			}
		}
	}

	val, err := load()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			s.logger.Warn("report cache write failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	return nil
}

// parseRange turns inclusive YYYY-MM-DD bounds into [start, end) instants.
func parseRange(from, to string, required bool) (time.Time, time.Time, error) {
	var (
		start, end time.Time
		msgs       []string
	)
	if from == "" || to == "" {
		if required {
			msgs = append(msgs, "from and to dates are required")
		}
	}
	if from != "" {
		d, err := validator.ParseDate(from)
		if err != nil {
			msgs = append(msgs, "from must be YYYY-MM-DD")
		}
		start = d
	}
	if to != "" {
		d, err := validator.ParseDate(to)
		if err != nil {
			msgs = append(msgs, "to must be YYYY-MM-DD")
		}
		end = d.AddDate(0, 0, 1)
	}
	if len(msgs) == 0 && !start.IsZero() && !end.IsZero() && !start.Before(end) {
		msgs = append(msgs, "from must not be after to")
	}
	if len(msgs) > 0 {
		return time.Time{}, time.Time{}, invalid(msgs...)
	}
	return start, end, nil
}

func formatDate(t *time.Time, layout string) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(layout)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
