package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tao2825/library-borrow-system/internal/model"
	"github.com/tao2825/library-borrow-system/internal/repository"
	"github.com/tao2825/library-borrow-system/internal/router"
	"github.com/tao2825/library-borrow-system/internal/service"
	"github.com/tao2825/library-borrow-system/internal/testutil"
	"github.com/tao2825/library-borrow-system/pkg/cache"
	"github.com/tao2825/library-borrow-system/pkg/database"
	"github.com/tao2825/library-borrow-system/pkg/jwt"
	"github.com/tao2825/library-borrow-system/pkg/logger"
)

type harness struct {
	t   *testing.T
	app *fiber.App
	db  *gorm.DB
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.TempDB(t)
	log := logger.Discard()

	bookRepo := repository.NewBookRepo(db)
	memberRepo := repository.NewMemberRepo(db)
	userRepo := repository.NewUserRepo(db)
	borrowRepo := repository.NewBorrowRepo(db)
	sqlxDB, err := database.SQLX(db, "sqlite")
	require.NoError(t, err)
	store := cache.NewMemory()

	circulation := service.NewCirculationService(db, bookRepo, memberRepo, userRepo, borrowRepo,
		service.WithReportCache(store), service.WithLogger(log))
	reportRepo := repository.NewReportRepo(sqlxDB, database.Dialect("sqlite"))

	deps := router.Deps{
		Auth:        service.NewAuthService(userRepo, jwt.NewManager("router-test", time.Hour), log),
		Users:       service.NewUserService(db, userRepo, log),
		Books:       service.NewBookService(db, bookRepo, borrowRepo, log),
		Members:     service.NewMemberService(db, memberRepo, borrowRepo, log),
		Circulation: circulation,
		Reports:     service.NewReportService(reportRepo, store, time.Minute, log),
	}
	return &harness{t: t, app: router.New(deps, router.Options{}), db: db}
}

// do sends a JSON request and decodes the JSON response into out when out is non-nil.
func (h *harness) do(method, path, token string, body interface{}, out interface{}) int {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.app.Test(req, -1)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (h *harness) login(username string) string {
	h.t.Helper()
	var resp service.LoginResponse
	status := h.do(http.MethodPost, "/api/v1/auth/login", "", fiber.Map{"username": username, "password": "secret"}, &resp)
	require.Equal(h.t, http.StatusOK, status)
	return resp.Token
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	var health map[string]string
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/healthz", "", nil, &health))
	assert.Equal(t, "ok", health["status"])

	resp, err := h.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "library_http_requests_total")
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t)
	testutil.CreateUser(t, h.db, "desk", model.RoleStaff)

	var body map[string]interface{}
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/v1/books", "", nil, &body))
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/v1/books", "not-a-jwt", nil, &body))

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/v1/auth/login", "",
		fiber.Map{"username": "desk", "password": "wrong"}, &body))
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/auth/login", "",
		fiber.Map{"username": ""}, &body))

	token := h.login("desk")
	var me model.UserResponse
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/auth/me", token, nil, &me))
	assert.Equal(t, "desk", me.Username)
	assert.Equal(t, []model.Permission{model.PermCirculation, model.PermManageBooks, model.PermManageMembers}, me.Permissions)
}

func TestStaffCannotManageUsersOrViewReports(t *testing.T) {
	h := newHarness(t)
	testutil.CreateUser(t, h.db, "desk", model.RoleStaff)
	token := h.login("desk")

	var body map[string]interface{}
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/api/v1/users", token, nil, &body))
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/api/v1/reports/summary", token, nil, &body))
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/books", token, nil, nil))
}

func TestAdminCannotDemoteSelf(t *testing.T) {
	h := newHarness(t)
	admin := testutil.CreateUser(t, h.db, "root", model.RoleAdmin)
	token := h.login("root")

	var body map[string]interface{}
	status := h.do(http.MethodPut, fmt.Sprintf("/api/v1/users/%d/role", admin.ID), token, fiber.Map{"role": "staff"}, &body)
	assert.Equal(t, http.StatusConflict, status)

	status = h.do(http.MethodPut, fmt.Sprintf("/api/v1/users/%d/active", admin.ID), token, fiber.Map{"is_active": false}, &body)
	assert.Equal(t, http.StatusConflict, status)

	status = h.do(http.MethodPut, fmt.Sprintf("/api/v1/users/%d/active", admin.ID), token, fiber.Map{}, &body)
	assert.Equal(t, http.StatusBadRequest, status)

	var created struct {
		Data model.UserResponse `json:"data"`
	}
	status = h.do(http.MethodPost, "/api/v1/users", token, fiber.Map{"username": "clerk", "password": "pass", "role": "staff"}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, model.RoleStaff, created.Data.Role)
}

func TestSeedAdminMustRotatePassword(t *testing.T) {
	h := newHarness(t)
	users := service.NewUserService(h.db, repository.NewUserRepo(h.db), logger.Discard())
	created, err := users.EnsureSeedAdmin(context.Background(), "admin", "secret")
	require.NoError(t, err)
	require.True(t, created)

	var login service.LoginResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/v1/auth/login", "",
		fiber.Map{"username": "admin", "password": "secret"}, &login))
	assert.True(t, login.User.MustChangePassword)
	token := login.Token

	var body map[string]interface{}
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/api/v1/users", token,
		fiber.Map{"username": "clerk", "password": "pass", "role": "staff"}, &body))
	assert.Contains(t, body["error"], "Password change required")
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/api/v1/reports/summary", token, nil, &body))
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/api/v1/books", token, nil, &body))

	var me model.UserResponse
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/auth/me", token, nil, &me))
	assert.True(t, me.MustChangePassword)

	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/v1/auth/change-password", token,
		fiber.Map{"old_password": "secret", "new_password": "rotated"}, &body))

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/reports/summary", token, nil, &body))
	assert.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/api/v1/users", token,
		fiber.Map{"username": "clerk", "password": "pass", "role": "staff"}, &body))
}

func TestCirculationOverHTTP(t *testing.T) {
	h := newHarness(t)
	testutil.CreateUser(t, h.db, "root", model.RoleAdmin)
	token := h.login("root")

	var member struct {
		Data model.Member `json:"data"`
	}
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/api/v1/members", token,
		fiber.Map{"member_code": "M010", "name": "Ten"}, &member))

	bookIDs := make([]uint, 0, 2)
	for _, title := range []string{"Four", "Seven"} {
		var book struct {
			Data model.Book `json:"data"`
		}
		require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/api/v1/books", token, fiber.Map{"title": title}, &book))
		bookIDs = append(bookIDs, book.Data.ID)
	}

	var created struct {
		TxID uint `json:"tx_id"`
	}
	status := h.do(http.MethodPost, "/api/v1/borrows", token, fiber.Map{
		"member_id":        member.Data.ID,
		"book_ids":         bookIDs,
		"default_due_date": "2025-07-01",
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	require.NotZero(t, created.TxID)

	var errBody map[string]interface{}
	status = h.do(http.MethodPost, "/api/v1/borrows", token, fiber.Map{
		"member_id": member.Data.ID,
		"book_ids":  []uint{bookIDs[0]},
	}, &errBody)
	assert.Equal(t, http.StatusConflict, status)

	var verr struct {
		Error    string   `json:"error"`
		Messages []string `json:"messages"`
	}
	status = h.do(http.MethodPost, "/api/v1/borrows", token, fiber.Map{
		"member_id": member.Data.ID,
		"book_ids":  []uint{bookIDs[0], bookIDs[0]},
	}, &verr)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, verr.Messages)

	status = h.do(http.MethodPost, "/api/v1/borrows", token, fiber.Map{
		"member_id": 999,
		"book_ids":  []uint{bookIDs[0]},
	}, &errBody)
	assert.Equal(t, http.StatusNotFound, status)

	var tx model.BorrowTransaction
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, fmt.Sprintf("/api/v1/borrows/%d", created.TxID), token, nil, &tx))
	require.Len(t, tx.Items, 2)
	assert.Equal(t, model.TxOpen, tx.Status)

	var active []model.BorrowItem
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, fmt.Sprintf("/api/v1/borrows/active?member_id=%d", member.Data.ID), token, nil, &active))
	assert.Len(t, active, 2)

	var returned map[string]interface{}
	status = h.do(http.MethodPost, fmt.Sprintf("/api/v1/borrows/items/%d/return", tx.Items[0].ID), token, nil, &returned)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, returned["returned"])

	status = h.do(http.MethodPost, fmt.Sprintf("/api/v1/borrows/items/%d/return", tx.Items[0].ID), token, nil, &returned)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, false, returned["returned"])

	var batch service.ReturnResult
	status = h.do(http.MethodPost, "/api/v1/borrows/items/return", token,
		fiber.Map{"item_ids": []uint{tx.Items[0].ID, tx.Items[1].ID}}, &batch)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []uint{tx.Items[1].ID}, batch.Succeeded)
	assert.Equal(t, []uint{tx.Items[0].ID}, batch.Failed)

	require.Equal(t, http.StatusOK, h.do(http.MethodGet, fmt.Sprintf("/api/v1/borrows/%d", created.TxID), token, nil, &tx))
	assert.Equal(t, model.TxClosed, tx.Status)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/v1/borrows/abc", token, nil, &errBody))
}

func TestReportsOverHTTP(t *testing.T) {
	h := newHarness(t)
	staff := testutil.CreateUser(t, h.db, "root", model.RoleAdmin)
	member := testutil.CreateMember(t, h.db, "M1", "Ann")
	books := testutil.CreateBooks(t, h.db, "Dune")
	require.NoError(t, h.db.Create(&model.BorrowTransaction{
		MemberID:    member.ID,
		StaffUserID: staff.ID,
		BorrowDate:  time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC),
		Status:      model.TxOpen,
		Items:       []model.BorrowItem{{BookID: books[0].ID, Status: model.ItemBorrowed}},
	}).Error)
	token := h.login("root")

	var monthly struct {
		Data []repository.MonthlyCount `json:"data"`
	}
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/reports/monthly?from=2025-01-01&to=2025-12-31", token, nil, &monthly))
	assert.Equal(t, []repository.MonthlyCount{{Month: "2025-03", Count: 1}}, monthly.Data)

	var errBody map[string]interface{}
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/v1/reports/monthly", token, nil, &errBody))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/ledger?format=csv&status=borrowed", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv"))
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "Dune")

	var dash repository.DashboardStats
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/reports/dashboard", token, nil, &dash))
	assert.Equal(t, int64(1), dash.OpenTransactions)
}
