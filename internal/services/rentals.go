package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"library-rental/internal/models"
)

// ─── Rent ─────────────────────────────────────────────────────────────────────

// Rent lends quantity copies of a book to a user for the given number of days.
//
// Steps (all in one transaction):
//  1. Lock the Book row (FOR UPDATE).
//  2. Validate quantity and days.
//  3. Validate the user exists.
//  4. Reserve the copies through the inventory ledger.
//  5. Insert the Rental, due today + days.
func (s *libraryService) Rent(ctx context.Context, userID, bookID uuid.UUID, quantity, days int) (*models.Rental, error) {
	var created *models.Rental

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		book, err := s.bookRepo.GetByIDForUpdate(tx, bookID)
		if err != nil {
			return s.mapNotFound(err, ErrBookNotFound)
		}

		if quantity < 1 {
			return ErrInvalidQuantity
		}
		if days < 1 {
			return ErrInvalidDays
		}

		if _, err := s.userRepo.GetByID(tx, userID); err != nil {
			return s.mapNotFound(err, ErrUserNotFound)
		}

		if err := s.ledger.Reserve(tx, book, quantity); err != nil {
			return err
		}

		now := s.now()
		rental := &models.Rental{
			BookID:   &bookID,
			UserID:   &userID,
			Quantity: quantity,
			RentedAt: now,
			DueDate:  dueDate(now, days),
		}
		if err := s.rentalRepo.Create(tx, rental); err != nil {
			return fmt.Errorf("create rental: %w", err)
		}
		created = rental
		return nil
	})
	if err != nil {
		s.logFailure("Rent", err, "book_id", bookID, "user_id", userID, "quantity", quantity)
		return nil, err
	}
	s.log.Info("rental created",
		"rental_id", created.ID,
		"book_id", bookID,
		"user_id", userID,
		"quantity", quantity,
		"due_date", created.DueDate.Format(time.DateOnly),
	)
	return created, nil
}

// ─── Return ───────────────────────────────────────────────────────────────────

// ReturnRental closes an active rental and puts its copies back.
// Returning a rental that is already returned yields it unchanged.
func (s *libraryService) ReturnRental(ctx context.Context, req models.ReturnRequest) (*models.Rental, error) {
	if req.RentalID == nil && (req.UserID == nil || req.BookID == nil) {
		return nil, ErrMissingReturnKeys
	}

	var result *models.Rental
	var released bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rental, err := s.findRentalForReturn(tx, req)
		if err != nil {
			return err
		}

		if rental.ReturnedAt != nil {
			result = rental
			return nil
		}

		if rental.BookID == nil {
			return ErrOrphanedRental
		}
		book, err := s.bookRepo.GetByIDForUpdate(tx, *rental.BookID)
		if err != nil {
			return s.mapNotFound(err, ErrOrphanedRental)
		}

		now := s.now()
		n, err := s.rentalRepo.MarkReturned(tx, rental.ID, now)
		if err != nil {
			return fmt.Errorf("mark rental %s returned: %w", rental.ID, err)
		}
		if n == 0 {
			// Another return committed first.
			reloaded, err := s.rentalRepo.GetByID(tx, rental.ID)
			if err != nil {
				return fmt.Errorf("reload rental %s: %w", rental.ID, err)
			}
			result = reloaded
			return nil
		}

		if err := s.ledger.Release(tx, book, rental.Quantity); err != nil {
			return err
		}
		rental.ReturnedAt = &now
		result = rental
		released = true
		return nil
	})
	if err != nil {
		s.logFailure("ReturnRental", err)
		return nil, err
	}
	if released {
		s.log.Info("rental returned", "rental_id", result.ID, "quantity", result.Quantity)
	} else {
		s.log.Warn("rental already returned", "rental_id", result.ID, "returned_at", result.ReturnedAt)
	}
	return result, nil
}

func (s *libraryService) findRentalForReturn(tx *gorm.DB, req models.ReturnRequest) (*models.Rental, error) {
	var (
		rental *models.Rental
		err    error
	)
	if req.RentalID != nil {
		rental, err = s.rentalRepo.GetByIDForUpdate(tx, *req.RentalID)
	} else {
		rental, err = s.rentalRepo.FindLatestActiveForUpdate(tx, *req.UserID, *req.BookID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRentalNotFound
		}
		return nil, fmt.Errorf("find rental: %w", err)
	}
	return rental, nil
}

// ─── Queries ──────────────────────────────────────────────────────────────────

// ListRentals returns rentals matching filter, most recently rented first.
func (s *libraryService) ListRentals(ctx context.Context, filter models.RentalFilter) ([]models.Rental, error) {
	rentals, err := s.rentalRepo.List(s.db.WithContext(ctx), filter)
	if err != nil {
		return nil, fmt.Errorf("list rentals: %w", err)
	}
	return rentals, nil
}

// dueDate is the calendar day days after the rent day, at midnight UTC.
func dueDate(rentedAt time.Time, days int) time.Time {
	y, m, d := rentedAt.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
}
