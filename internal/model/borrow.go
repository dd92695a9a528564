package model

import "time"

type TxStatus string

const (
	TxOpen   TxStatus = "open"
	TxClosed TxStatus = "closed"
)

type ItemStatus string

const (
	ItemBorrowed ItemStatus = "borrowed"
	ItemReturned ItemStatus = "returned"
)

// BorrowTransaction is the header of one checkout by one member, served by one staff user.
type BorrowTransaction struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	MemberID       uint         `gorm:"not null;index" json:"member_id"`
	Member         *Member      `gorm:"foreignKey:MemberID" json:"member,omitempty"`
	StaffUserID    uint         `gorm:"not null;index" json:"staff_user_id"`
	Staff          *User        `gorm:"foreignKey:StaffUserID" json:"staff,omitempty"`
	BorrowDate     time.Time    `gorm:"not null;index" json:"borrow_date"`
	DefaultDueDate *time.Time   `gorm:"type:date" json:"default_due_date,omitempty"`
	Status         TxStatus     `gorm:"type:varchar(16);not null;index" json:"status"`
	Note           *string      `gorm:"type:text" json:"note,omitempty"`
	ClosedAt       *time.Time   `json:"closed_at,omitempty"`
	Items          []BorrowItem `gorm:"foreignKey:TxID" json:"items,omitempty"`
}

func (BorrowTransaction) TableName() string {
	return "borrow_tx"
}

// BorrowItem is one book lent under a transaction.
type BorrowItem struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	TxID              uint       `gorm:"column:tx_id;not null;index" json:"tx_id"`
	BookID            uint       `gorm:"not null;index" json:"book_id"`
	Book              *Book      `gorm:"foreignKey:BookID" json:"book,omitempty"`
	DueDate           *time.Time `gorm:"type:date" json:"due_date,omitempty"`
	ReturnDate        *time.Time `json:"return_date,omitempty"`
	Status            ItemStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	ReturnStaffUserID *uint      `gorm:"index" json:"return_staff_user_id,omitempty"`
	ReturnStaff       *User      `gorm:"foreignKey:ReturnStaffUserID" json:"return_staff,omitempty"`
}

func (BorrowItem) TableName() string {
	return "borrow_items"
}

// IsOverdue reports whether a borrowed item is past its due date at the given instant.
func (i *BorrowItem) IsOverdue(now time.Time) bool {
	if i.Status != ItemBorrowed || i.DueDate == nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return i.DueDate.Before(today)
}
