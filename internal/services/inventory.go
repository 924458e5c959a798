package services

import (
	"fmt"

	"gorm.io/gorm"

	"library-rental/internal/models"
	"library-rental/internal/repositories"
)

// InventoryLedger keeps a book's available_copies in step with its
// outstanding rentals. Every method runs on the caller's transaction and
// expects the book row to be locked already.
type InventoryLedger struct {
	books repositories.BookRepository
}

func NewInventoryLedger(books repositories.BookRepository) *InventoryLedger {
	return &InventoryLedger{books: books}
}

// Reserve takes quantity copies off the shelf.
func (l *InventoryLedger) Reserve(tx *gorm.DB, book *models.Book, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if book.AvailableCopies < quantity {
		return ErrInsufficientInventory
	}
	n, err := l.books.DecrementAvailable(tx, book.ID, quantity)
	if err != nil {
		return fmt.Errorf("reserve %d copies of book %s: %w", quantity, book.ID, err)
	}
	if n == 0 {
		return ErrInsufficientInventory
	}
	book.AvailableCopies -= quantity
	return nil
}

// Release puts quantity copies back. Going above total_copies means copies
// were returned twice and is reported, not absorbed.
func (l *InventoryLedger) Release(tx *gorm.DB, book *models.Book, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	next := clampedAdd(book.AvailableCopies, quantity)
	if next > book.TotalCopies {
		return ErrInventoryInvariant
	}
	n, err := l.books.IncrementAvailable(tx, book.ID, quantity)
	if err != nil {
		return fmt.Errorf("release %d copies of book %s: %w", quantity, book.ID, err)
	}
	if n == 0 {
		return ErrInventoryInvariant
	}
	book.AvailableCopies = next
	return nil
}

// Adjust applies an administrative change of total_copies to the in-memory
// book; the caller persists it. Stock cannot shrink below what is on loan.
func (l *InventoryLedger) Adjust(book *models.Book, newTotal int) error {
	if newTotal < 0 {
		return ErrInvalidTotal
	}
	if newTotal < book.OnLoan() {
		return ErrTotalBelowOnLoan
	}
	delta := newTotal - book.TotalCopies
	book.TotalCopies = newTotal
	book.AvailableCopies = clampedAdd(book.AvailableCopies, delta)
	return nil
}

func clampedAdd(available, delta int) int {
	if v := available + delta; v > 0 {
		return v
	}
	return 0
}
