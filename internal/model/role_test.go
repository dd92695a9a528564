package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRolePermissionMatrix(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleAdmin, PermCirculation, true},
		{RoleAdmin, PermManageBooks, true},
		{RoleAdmin, PermManageMembers, true},
		{RoleAdmin, PermManageUsers, true},
		{RoleAdmin, PermViewReports, true},
		{RoleStaff, PermCirculation, true},
		{RoleStaff, PermManageBooks, true},
		{RoleStaff, PermManageMembers, true},
		{RoleStaff, PermManageUsers, false},
		{RoleStaff, PermViewReports, false},
		{Role("guest"), PermCirculation, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.Can(tt.perm))
		})
	}
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleAdmin.Valid())
	assert.True(t, RoleStaff.Valid())
	assert.False(t, Role("Admin").Valid())
	assert.False(t, Role("").Valid())
}

func TestRolePermissions(t *testing.T) {
	assert.Len(t, RoleAdmin.Permissions(), len(AllPermissions))
	assert.Equal(t, []Permission{PermCirculation, PermManageBooks, PermManageMembers}, RoleStaff.Permissions())
}

func TestUserPasswordRoundTrip(t *testing.T) {
	u := &User{}
	assert.NoError(t, u.SetPassword("s3cret"))
	assert.NotEqual(t, "s3cret", u.PasswordHash)
	assert.True(t, u.CheckPassword("s3cret"))
	assert.False(t, u.CheckPassword("wrong"))
}

func TestBorrowItemIsOverdue(t *testing.T) {
	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	item := &BorrowItem{Status: ItemBorrowed, DueDate: &due}

	assert.False(t, item.IsOverdue(time.Date(2024, 1, 10, 23, 0, 0, 0, time.UTC)))
	assert.True(t, item.IsOverdue(time.Date(2024, 1, 11, 0, 0, 1, 0, time.UTC)))

	item.Status = ItemReturned
	assert.False(t, item.IsOverdue(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))

	assert.False(t, (&BorrowItem{Status: ItemBorrowed}).IsOverdue(time.Now()))
}
