package model

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is a staff or admin account operating the system
type User struct {
	BaseModel
	Username           string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	PasswordHash       string     `gorm:"type:varchar(255);not null" json:"-"`
	Role               Role       `gorm:"type:varchar(16);not null;check:chk_users_role,role IN ('admin','staff')" json:"role"`
	IsActive           bool       `gorm:"not null" json:"is_active"`
	MustChangePassword bool       `gorm:"not null" json:"must_change_password"`
	TokenVersion       string     `gorm:"type:varchar(64);default:''" json:"-"` // For single session enforcement
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
}

// SetPassword hashes and sets the user's password
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

// CheckPassword verifies if the provided password matches the stored hash
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// UserResponse is used for API responses (without sensitive data)
type UserResponse struct {
	ID                 uint         `json:"id"`
	Username           string       `json:"username"`
	Role               Role         `json:"role"`
	IsActive           bool         `json:"is_active"`
	MustChangePassword bool         `json:"must_change_password"`
	LastLoginAt        *time.Time   `json:"last_login_at,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	Permissions        []Permission `json:"permissions"`
}

// ToResponse converts User to UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:                 u.ID,
		Username:           u.Username,
		Role:               u.Role,
		IsActive:           u.IsActive,
		MustChangePassword: u.MustChangePassword,
		LastLoginAt:        u.LastLoginAt,
		CreatedAt:          u.CreatedAt,
		Permissions:        u.Role.Permissions(),
	}
}
