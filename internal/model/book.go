package model

type BookStatus string

const (
	BookAvailable BookStatus = "available"
	BookBorrowed  BookStatus = "borrowed"
)

// Book is a single physical copy. Status is only changed by the circulation engine.
type Book struct {
	CatalogModel
	Title  string     `gorm:"type:varchar(255);not null" json:"title"`
	Author string     `gorm:"type:varchar(255)" json:"author"`
	Status BookStatus `gorm:"type:varchar(16);not null;default:available;index" json:"status"`
}

func (b *Book) IsAvailable() bool {
	return b.Status == BookAvailable
}
