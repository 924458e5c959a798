package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RentalStatus string

const (
	RentalStatusActive   RentalStatus = "ACTIVE"
	RentalStatusReturned RentalStatus = "RETURNED"
)

type Book struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title           string    `gorm:"size:255;not null;index" json:"title"`
	Author          string    `gorm:"size:255;not null;index" json:"author"`
	PublishedYear   int       `gorm:"not null" json:"published_year"`
	Publisher       *string   `gorm:"size:255" json:"publisher"`
	ISBN            *string   `gorm:"column:isbn;size:32;uniqueIndex" json:"isbn"`
	ImageURLSmall   *string   `gorm:"column:image_url_s" json:"image_url_s"`
	ImageURLMedium  *string   `gorm:"column:image_url_m" json:"image_url_m"`
	ImageURLLarge   *string   `gorm:"column:image_url_l" json:"image_url_l"`
	TotalCopies     int       `gorm:"not null" json:"total_copies"`
	AvailableCopies int       `gorm:"not null" json:"available_copies"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

// OnLoan is the number of copies currently held by active rentals.
func (b *Book) OnLoan() int {
	return b.TotalCopies - b.AvailableCopies
}

func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Phone     string    `gorm:"size:64;not null" json:"phone"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Rental references its book and user by nullable keys: deleting a parent
// that has no active rentals keeps the returned history with a NULL reference.
type Rental struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	BookID     *uuid.UUID `gorm:"type:uuid;index" json:"book_id"`
	Book       *Book      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"-"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	User       *User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"-"`
	Quantity   int        `gorm:"not null;default:1" json:"quantity"`
	RentedAt   time.Time  `gorm:"not null;index" json:"rented_at"`
	DueDate    time.Time  `gorm:"type:date;not null" json:"due_date"`
	ReturnedAt *time.Time `gorm:"index" json:"returned_at"`
}

func (r *Rental) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r *Rental) Status() RentalStatus {
	if r.ReturnedAt != nil {
		return RentalStatusReturned
	}
	return RentalStatusActive
}

// BookPatch carries a partial book update; nil fields are left untouched.
type BookPatch struct {
	Title          *string
	Author         *string
	PublishedYear  *int
	Publisher      *string
	ISBN           *string
	ImageURLSmall  *string
	ImageURLMedium *string
	ImageURLLarge  *string
	TotalCopies    *int
}

type UserPatch struct {
	Name  *string
	Email *string
	Phone *string
}

// RentalFilter narrows ListRentals. A nil Active lists both states.
type RentalFilter struct {
	Active *bool
	UserID *uuid.UUID
	BookID *uuid.UUID
}

type NewBook struct {
	Title          string
	Author         string
	PublishedYear  int
	Publisher      *string
	ISBN           *string
	ImageURLSmall  *string
	ImageURLMedium *string
	ImageURLLarge  *string
	TotalCopies    int
}

type NewUser struct {
	Name  string
	Email string
	Phone string
}

// ReturnRequest identifies the rental to close: either RentalID, or both
// UserID and BookID to pick that pair's most recent active rental.
type ReturnRequest struct {
	RentalID *uuid.UUID
	UserID   *uuid.UUID
	BookID   *uuid.UUID
}
