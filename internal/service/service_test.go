package service

import (
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tao2825/library-borrow-system/internal/repository"
	"github.com/tao2825/library-borrow-system/internal/testutil"
	"github.com/tao2825/library-borrow-system/internal/ws"
	"github.com/tao2825/library-borrow-system/pkg/cache"
	"github.com/tao2825/library-borrow-system/pkg/database"
	"github.com/tao2825/library-borrow-system/pkg/jwt"
	"github.com/tao2825/library-borrow-system/pkg/logger"
)

var fixedNow = time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

type eventSpy struct {
	mu     sync.Mutex
	events []ws.Event
}

func (s *eventSpy) Publish(evt ws.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *eventSpy) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

type env struct {
	db          *gorm.DB
	circulation CirculationService
	users       UserService
	auth        AuthService
	books       BookService
	members     MemberService
	reports     ReportService
	events      *eventSpy
	cache       *cache.Memory
}

func newEnv(t *testing.T, opts ...CirculationOption) *env {
	t.Helper()
	db := testutil.TempDB(t)
	log := logger.Discard()

	bookRepo := repository.NewBookRepo(db)
	memberRepo := repository.NewMemberRepo(db)
	userRepo := repository.NewUserRepo(db)
	borrowRepo := repository.NewBorrowRepo(db)

	sqlxDB, err := database.SQLX(db, "sqlite")
	if err != nil {
		t.Fatal(err)
	}
	reportRepo := repository.NewReportRepo(sqlxDB, database.Dialect("sqlite"))

	e := &env{db: db, events: &eventSpy{}, cache: cache.NewMemory()}
	base := []CirculationOption{
		WithClock(func() time.Time { return fixedNow }),
		WithEvents(e.events),
		WithReportCache(e.cache),
	}
	e.circulation = NewCirculationService(db, bookRepo, memberRepo, userRepo, borrowRepo, append(base, opts...)...)
	e.users = NewUserService(db, userRepo, log)
	e.auth = NewAuthService(userRepo, jwt.NewManager("test-secret", time.Hour), log)
	e.books = NewBookService(db, bookRepo, borrowRepo, log)
	e.members = NewMemberService(db, memberRepo, borrowRepo, log)
	e.reports = NewReportService(reportRepo, e.cache, time.Minute, log)
	return e
}
