package model

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel handles the numeric ID and timestamps
type BaseModel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CatalogModel is shared by books and members: soft delete keeps borrow history joinable.
type CatalogModel struct {
	BaseModel
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Audit User Tracking
	CreatedBy string `gorm:"type:varchar(64)" json:"created_by,omitempty"`
	UpdatedBy string `gorm:"type:varchar(64)" json:"updated_by,omitempty"`
	DeletedBy string `gorm:"type:varchar(64)" json:"-"`
}
