package model

// Member is a library patron. Email is nullable so that many members may have none.
type Member struct {
	CatalogModel
	MemberCode string  `gorm:"column:member_code;type:varchar(64);uniqueIndex;not null" json:"member_code"`
	Name       string  `gorm:"type:varchar(255);not null" json:"name"`
	Gender     string  `gorm:"type:varchar(16)" json:"gender"`
	Email      *string `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	Phone      string  `gorm:"type:varchar(32)" json:"phone"`
	IsActive   bool    `gorm:"not null" json:"is_active"`
}
