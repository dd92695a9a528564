// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tao2825/library-borrow-system/internal/model"
	"github.com/tao2825/library-borrow-system/pkg/config"
	"github.com/tao2825/library-borrow-system/pkg/database"
)

// TempDB opens a migrated SQLite database inside t.TempDir.
func TempDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Connect(database.Options{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "library.db"),
		LogLevel:   "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts an active account with password "secret".
func CreateUser(t *testing.T, db *gorm.DB, username string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{Username: username, Role: role, IsActive: true}
	require.NoError(t, u.SetPassword("secret"))
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateMember inserts an active member.
func CreateMember(t *testing.T, db *gorm.DB, code, name string) *model.Member {
	t.Helper()
	m := &model.Member{MemberCode: code, Name: name, IsActive: true}
	require.NoError(t, db.Create(m).Error)
	return m
}

// CreateBooks inserts available books with the given titles.
func CreateBooks(t *testing.T, db *gorm.DB, titles ...string) []model.Book {
	t.Helper()
	books := make([]model.Book, 0, len(titles))
	for _, title := range titles {
		b := model.Book{Title: title, Author: "Anon", Status: model.BookAvailable}
		require.NoError(t, db.Create(&b).Error)
		books = append(books, b)
	}
	return books
}
