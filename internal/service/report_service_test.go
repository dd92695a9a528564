package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tao2825/library-borrow-system/internal/model"
	"github.com/tao2825/library-borrow-system/internal/repository"
	"github.com/tao2825/library-borrow-system/internal/testutil"
)

func setClock(e *env, at time.Time) {
	WithClock(func() time.Time { return at })(e.circulation.(*circulationService))
}

// seedLoans opens one transaction in May and one in June, then returns the May loan.
func seedLoans(t *testing.T, e *env) (may, june uint) {
	t.Helper()
	ctx := context.Background()
	staff := testutil.CreateUser(t, e.db, "desk", model.RoleStaff)
	ann := testutil.CreateMember(t, e.db, "M1", "Ann")
	bob := testutil.CreateMember(t, e.db, "M2", "Bob")
	books := testutil.CreateBooks(t, e.db, "Dune", "Emma", "Ulysses")

	setClock(e, time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC))
	may, err := e.circulation.CreateBorrowTransaction(ctx, &BorrowRequest{
		MemberID:       ann.ID,
		BookIDs:        []uint{books[0].ID},
		DefaultDueDate: "2025-06-01",
	}, staff.ID)
	require.NoError(t, err)

	setClock(e, fixedNow)
	june, err = e.circulation.CreateBorrowTransaction(ctx, &BorrowRequest{
		MemberID:       bob.ID,
		BookIDs:        []uint{books[1].ID, books[2].ID},
		DefaultDueDate: "2025-06-10",
	}, staff.ID)
	require.NoError(t, err)

	ok, err := e.circulation.ReturnItem(ctx, itemFor(t, e, may, books[0].ID).ID, staff.ID)
	require.NoError(t, err)
	require.True(t, ok)
	return may, june
}

func TestReportSummaryAndMonthly(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	seedLoans(t, e)

	summary, err := e.reports.BookStatusSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, []repository.StatusCount{
		{Status: "available", Count: 1},
		{Status: "borrowed", Count: 2},
	}, summary)

	monthly, err := e.reports.MonthlyBorrowCounts(ctx, "2025-01-01", "2025-12-31")
	require.NoError(t, err)
	assert.Equal(t, []repository.MonthlyCount{
		{Month: "2025-05", Count: 1},
		{Month: "2025-06", Count: 1},
	}, monthly)

	monthly, err = e.reports.MonthlyBorrowCounts(ctx, "2025-06-15", "2025-06-15")
	require.NoError(t, err)
	assert.Equal(t, []repository.MonthlyCount{{Month: "2025-06", Count: 1}}, monthly)
}

func TestReportRangeValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.reports.MonthlyBorrowCounts(ctx, "", "2025-12-31")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.reports.MonthlyBorrowCounts(ctx, "2025-12-31", "2025-01-01")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.reports.Ledger(ctx, "yesterday", "", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.reports.Ledger(ctx, "", "", "lost")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestReportLedgerFilters(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	may, june := seedLoans(t, e)

	all, err := e.reports.Ledger(ctx, "", "", "all")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, june, all[0].TxID)
	assert.Equal(t, may, all[2].TxID)
	assert.Equal(t, "Dune", all[2].BookTitle)
	assert.Equal(t, "desk", all[2].StaffUsername)
	require.NotNil(t, all[2].ReturnStaffUsername)
	assert.Equal(t, "desk", *all[2].ReturnStaffUsername)
	assert.Nil(t, all[0].ReturnStaffUsername)

	returned, err := e.reports.Ledger(ctx, "", "", "returned")
	require.NoError(t, err)
	require.Len(t, returned, 1)
	assert.Equal(t, "M1", returned[0].MemberCode)

	juneOnly, err := e.reports.Ledger(ctx, "2025-06-01", "2025-06-30", "")
	require.NoError(t, err)
	assert.Len(t, juneOnly, 2)

	history, err := e.reports.History(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestReportDashboard(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	seedLoans(t, e)
	e.reports.(*reportService).now = func() time.Time { return fixedNow }

	stats, err := e.reports.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, &repository.DashboardStats{
		TotalBooks:       3,
		AvailableBooks:   1,
		BorrowedBooks:    2,
		OpenTransactions: 1,
		ActiveMembers:    2,
		OverdueItems:     2,
	}, stats)
}

func TestReportCacheIsDroppedOnCommit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	staff := testutil.CreateUser(t, e.db, "desk", model.RoleStaff)
	member := testutil.CreateMember(t, e.db, "M1", "Ann")
	books := testutil.CreateBooks(t, e.db, "Dune")

	first, err := e.reports.BookStatusSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, []repository.StatusCount{{Status: "available", Count: 1}}, first)

	// Writes that bypass circulation leave the cached summary in place.
	testutil.CreateBooks(t, e.db, "Emma")
	cached, err := e.reports.BookStatusSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	_, err = e.circulation.CreateBorrowTransaction(ctx, &BorrowRequest{MemberID: member.ID, BookIDs: []uint{books[0].ID}}, staff.ID)
	require.NoError(t, err)

	fresh, err := e.reports.BookStatusSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, []repository.StatusCount{
		{Status: "available", Count: 1},
		{Status: "borrowed", Count: 1},
	}, fresh)
}

func TestWriteLedgerCSV(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	seedLoans(t, e)

	var buf bytes.Buffer
	n, err := e.reports.WriteLedgerCSV(ctx, &buf, "", "", "borrowed")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "item_id", records[0][0])
	assert.Equal(t, "2025-06-10", records[1][7])
	assert.Equal(t, "", records[1][8])
	assert.Equal(t, "borrowed", records[1][9])
}
