package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tao2825/library-borrow-system/internal/model"
	"github.com/tao2825/library-borrow-system/internal/testutil"
)

func TestLogin(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	user := testutil.CreateUser(t, e.db, "alice", model.RoleStaff)
	idle := testutil.CreateUser(t, e.db, "idle", model.RoleStaff)
	require.NoError(t, e.db.Model(idle).Update("is_active", false).Error)

	t.Run("success", func(t *testing.T) {
		resp, err := e.auth.Login(ctx, " alice ", "secret")
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, user.ID, resp.User.ID)
		assert.Equal(t, model.RoleStaff, resp.User.Role)

		got, err := e.auth.Authenticate(ctx, resp.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.NotNil(t, got.LastLoginAt)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := e.auth.Login(ctx, "alice", "nope")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := e.auth.Login(ctx, "nobody", "secret")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("inactive user", func(t *testing.T) {
		_, err := e.auth.Login(ctx, "idle", "secret")
		assert.ErrorIs(t, err, ErrUserInactive)
		assert.ErrorIs(t, err, ErrAuth)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := e.auth.Login(ctx, "", "")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Len(t, verr.Messages, 2)
	})
}

func TestNewLoginEndsEarlierSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	testutil.CreateUser(t, e.db, "alice", model.RoleStaff)

	first, err := e.auth.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	second, err := e.auth.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	_, err = e.auth.Authenticate(ctx, first.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = e.auth.Authenticate(ctx, second.Token)
	assert.NoError(t, err)

	_, err = e.auth.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, ErrAuth)
}

func TestChangeAndResetPassword(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	user := testutil.CreateUser(t, e.db, "alice", model.RoleStaff)

	err := e.auth.ChangePassword(ctx, user.ID, "wrong", "newpass")
	assert.ErrorIs(t, err, ErrWrongPassword)

	err = e.auth.ChangePassword(ctx, user.ID, "secret", "abc")
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, e.auth.ChangePassword(ctx, user.ID, "secret", "newpass"))
	session, err := e.auth.Login(ctx, "alice", "newpass")
	require.NoError(t, err)
	assert.False(t, session.User.MustChangePassword)

	require.NoError(t, e.auth.ResetPassword(ctx, "alice", "reset1"))
	_, err = e.auth.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)

	after, err := e.auth.Login(ctx, "alice", "reset1")
	require.NoError(t, err)
	assert.True(t, after.User.MustChangePassword)

	assert.ErrorIs(t, e.auth.ResetPassword(ctx, "ghost", "reset1"), ErrUserNotFound)
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	user, err := e.users.CreateUser(ctx, &CreateUserRequest{Username: " clerk ", Password: "pass", Role: model.RoleStaff})
	require.NoError(t, err)
	assert.Equal(t, "clerk", user.Username)
	assert.True(t, user.IsActive)
	assert.True(t, user.CheckPassword("pass"))

	_, err = e.users.CreateUser(ctx, &CreateUserRequest{Username: "clerk", Password: "pass", Role: model.RoleStaff})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = e.users.CreateUser(ctx, &CreateUserRequest{Username: "boss", Password: "pass", Role: "owner"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.users.CreateUser(ctx, &CreateUserRequest{Username: "x", Password: "p", Role: model.RoleAdmin})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Messages, 2)
}

func TestAdminSelfGuards(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	admin := testutil.CreateUser(t, e.db, "root", model.RoleAdmin)
	clerk := testutil.CreateUser(t, e.db, "clerk", model.RoleStaff)

	_, err := e.users.SetUserRole(ctx, admin.ID, admin.ID, model.RoleStaff)
	assert.ErrorIs(t, err, ErrSelfDemotion)

	_, err = e.users.SetUserActive(ctx, admin.ID, admin.ID, false)
	assert.ErrorIs(t, err, ErrSelfDeactivation)

	self, err := e.users.GetUserByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, self.Role)
	assert.True(t, self.IsActive)

	promoted, err := e.users.SetUserRole(ctx, admin.ID, clerk.ID, model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, promoted.Role)

	_, err = e.users.SetUserRole(ctx, admin.ID, clerk.ID, "owner")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.users.SetUserRole(ctx, admin.ID, 999, model.RoleStaff)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDeactivationRevokesSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	admin := testutil.CreateUser(t, e.db, "root", model.RoleAdmin)
	clerk := testutil.CreateUser(t, e.db, "clerk", model.RoleStaff)

	session, err := e.auth.Login(ctx, "clerk", "secret")
	require.NoError(t, err)

	updated, err := e.users.SetUserActive(ctx, admin.ID, clerk.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	_, err = e.auth.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, ErrUserInactive)

	_, err = e.users.SetUserActive(ctx, admin.ID, clerk.ID, true)
	require.NoError(t, err)
	_, err = e.auth.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)

	// A deactivated account cannot act on anyone.
	_, err = e.users.SetUserActive(ctx, admin.ID, clerk.ID, false)
	require.NoError(t, err)
	_, err = e.users.SetUserRole(ctx, clerk.ID, admin.ID, model.RoleStaff)
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestEnsureSeedAdmin(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	created, err := e.users.EnsureSeedAdmin(ctx, "admin", "1234")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = e.users.EnsureSeedAdmin(ctx, "admin", "1234")
	require.NoError(t, err)
	assert.False(t, created)

	resp, err := e.auth.Login(ctx, "admin", "1234")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, resp.User.Role)
	assert.True(t, resp.User.MustChangePassword)
}
