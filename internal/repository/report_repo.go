package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/jmoiron/sqlx"

	"github.com/tao2825/library-borrow-system/internal/model"
)

const (
	dialectSQLite = "sqlite3"

	tblBooks   = "books"
	tblMembers = "members"
	tblUsers   = "users"
	tblTx      = "borrow_tx"
	tblItems   = "borrow_items"

	colStatus    = "status"
	colDeletedAt = "deleted_at"
	aliasCount   = "count"
	aliasMonth   = "month"
)

// StatusCount is one row of the book status summary
type StatusCount struct {
	Status string `db:"status" json:"status"`
	Count  int64  `db:"count" json:"count"`
}

// MonthlyCount is the number of transactions opened in a YYYY-MM month
type MonthlyCount struct {
	Month string `db:"month" json:"month"`
	Count int64  `db:"count" json:"count"`
}

// LedgerRow is one borrow item joined with its member, book and staff
type LedgerRow struct {
	ItemID              uint       `db:"item_id" json:"item_id"`
	TxID                uint       `db:"tx_id" json:"tx_id"`
	BorrowDate          time.Time  `db:"borrow_date" json:"borrow_date"`
	MemberID            uint       `db:"member_id" json:"member_id"`
	MemberCode          string     `db:"member_code" json:"member_code"`
	MemberName          string     `db:"member_name" json:"member_name"`
	BookID              uint       `db:"book_id" json:"book_id"`
	BookTitle           string     `db:"book_title" json:"book_title"`
	DueDate             *time.Time `db:"due_date" json:"due_date,omitempty"`
	ReturnDate          *time.Time `db:"return_date" json:"return_date,omitempty"`
	Status              string     `db:"status" json:"status"`
	StaffUsername       string     `db:"staff_username" json:"staff_username"`
	ReturnStaffUsername *string    `db:"return_staff_username" json:"return_staff_username,omitempty"`
}

// DashboardStats is the overview shown on the dashboard.
type DashboardStats struct {
	TotalBooks       int64 `json:"total_books"`
	AvailableBooks   int64 `json:"available_books"`
	BorrowedBooks    int64 `json:"borrowed_books"`
	OpenTransactions int64 `json:"open_transactions"`
	ActiveMembers    int64 `json:"active_members"`
	OverdueItems     int64 `json:"overdue_items"`
}

// LedgerFilter narrows the ledger. Zero times mean unbounded.
type LedgerFilter struct {
	From   time.Time
	To     time.Time
	Status string
	Limit  uint
}

type ReportRepository interface {
	BookStatusSummary(ctx context.Context) ([]StatusCount, error)
	MonthlyBorrowCounts(ctx context.Context, from, to time.Time) ([]MonthlyCount, error)
	Ledger(ctx context.Context, f LedgerFilter) ([]LedgerRow, error)
	Dashboard(ctx context.Context, today time.Time) (*DashboardStats, error)
}

type reportRepo struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
	name    string
}

// NewReportRepo builds read-only report queries for the given goqu dialect.
func NewReportRepo(db *sqlx.DB, dialect string) ReportRepository {
	return &reportRepo{db: db, dialect: goqu.Dialect(dialect), name: dialect}
}

func (r *reportRepo) BookStatusSummary(ctx context.Context) ([]StatusCount, error) {
	ds := r.dialect.From(tblBooks).
		Select(goqu.C(colStatus), goqu.COUNT(goqu.Star()).As(aliasCount)).
		Where(goqu.C(colDeletedAt).IsNull()).
		GroupBy(goqu.C(colStatus)).
		Order(goqu.C(colStatus).Asc())

	var rows []StatusCount
	if err := r.selectInto(ctx, &rows, ds); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *reportRepo) MonthlyBorrowCounts(ctx context.Context, from, to time.Time) ([]MonthlyCount, error) {
	month := goqu.L("to_char(borrow_date, 'YYYY-MM')")
	if r.name == dialectSQLite {
		month = goqu.L("substr(borrow_date, 1, 7)")
	}

	ds := r.dialect.From(tblTx).
		Select(month.As(aliasMonth), goqu.COUNT(goqu.Star()).As(aliasCount)).
		Where(
			goqu.C("borrow_date").Gte(from),
			goqu.C("borrow_date").Lt(to),
		).
		GroupBy(goqu.C(aliasMonth)).
		Order(goqu.C(aliasMonth).Asc())

	var rows []MonthlyCount
	if err := r.selectInto(ctx, &rows, ds); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *reportRepo) Ledger(ctx context.Context, f LedgerFilter) ([]LedgerRow, error) {
	ds := r.dialect.From(goqu.T(tblItems).As("bi")).
		Join(goqu.T(tblTx).As("bt"), goqu.On(goqu.I("bt.id").Eq(goqu.I("bi.tx_id")))).
		Join(goqu.T(tblMembers).As("m"), goqu.On(goqu.I("m.id").Eq(goqu.I("bt.member_id")))).
		Join(goqu.T(tblBooks).As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("bi.book_id")))).
		Join(goqu.T(tblUsers).As("su"), goqu.On(goqu.I("su.id").Eq(goqu.I("bt.staff_user_id")))).
		LeftJoin(goqu.T(tblUsers).As("ru"), goqu.On(goqu.I("ru.id").Eq(goqu.I("bi.return_staff_user_id")))).
		Select(
			goqu.I("bi.id").As("item_id"),
			goqu.I("bt.id").As("tx_id"),
			goqu.I("bt.borrow_date").As("borrow_date"),
			goqu.I("m.id").As("member_id"),
			goqu.I("m.member_code").As("member_code"),
			goqu.I("m.name").As("member_name"),
			goqu.I("b.id").As("book_id"),
			goqu.I("b.title").As("book_title"),
			goqu.I("bi.due_date").As("due_date"),
			goqu.I("bi.return_date").As("return_date"),
			goqu.I("bi.status").As("status"),
			goqu.I("su.username").As("staff_username"),
			goqu.I("ru.username").As("return_staff_username"),
		).
		Order(goqu.I("bt.borrow_date").Desc(), goqu.I("bi.id").Desc())

	if !f.From.IsZero() {
		ds = ds.Where(goqu.I("bt.borrow_date").Gte(f.From))
	}
	if !f.To.IsZero() {
		ds = ds.Where(goqu.I("bt.borrow_date").Lt(f.To))
	}
	switch f.Status {
	case "", "all":
	case string(model.ItemBorrowed), string(model.ItemReturned):
		ds = ds.Where(goqu.I("bi.status").Eq(f.Status))
	default:
		return nil, fmt.Errorf("unknown ledger status %q", f.Status)
	}
	if f.Limit > 0 {
		ds = ds.Limit(f.Limit)
	}

	var rows []LedgerRow
	if err := r.selectInto(ctx, &rows, ds); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *reportRepo) Dashboard(ctx context.Context, today time.Time) (*DashboardStats, error) {
	summary, err := r.BookStatusSummary(ctx)
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{}
	for _, s := range summary {
		stats.TotalBooks += s.Count
		switch model.BookStatus(s.Status) {
		case model.BookAvailable:
			stats.AvailableBooks = s.Count
		case model.BookBorrowed:
			stats.BorrowedBooks = s.Count
		}
	}

	counts := []struct {
		dst *int64
		ds  *goqu.SelectDataset
	}{
		{&stats.OpenTransactions, r.dialect.From(tblTx).Where(goqu.C(colStatus).Eq(string(model.TxOpen)))},
		{&stats.ActiveMembers, r.dialect.From(tblMembers).Where(goqu.C("is_active").IsTrue(), goqu.C(colDeletedAt).IsNull())},
		{&stats.OverdueItems, r.dialect.From(tblItems).Where(
			goqu.C(colStatus).Eq(string(model.ItemBorrowed)),
			goqu.C("due_date").IsNotNull(),
			goqu.C("due_date").Lt(today),
		)},
	}
	for _, c := range counts {
		if err := r.getInto(ctx, c.dst, c.ds.Select(goqu.COUNT(goqu.Star()))); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func (r *reportRepo) selectInto(ctx context.Context, dest interface{}, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build report query: %w", err)
	}
	return r.db.SelectContext(ctx, dest, query, args...)
}

func (r *reportRepo) getInto(ctx context.Context, dest interface{}, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build report query: %w", err)
	}
	return r.db.GetContext(ctx, dest, query, args...)
}
