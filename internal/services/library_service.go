package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"library-rental/internal/models"
	"library-rental/internal/repositories"
)

// ─── Service Interface ────────────────────────────────────────────────────────

// LibraryService defines the application-level operations of the library system.
type LibraryService interface {
	CreateBook(ctx context.Context, in models.NewBook) (*models.Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*models.Book, error)
	GetBookByISBN(ctx context.Context, isbn string) (*models.Book, error)
	ListBooks(ctx context.Context, query string) ([]models.Book, error)
	UpdateBook(ctx context.Context, id uuid.UUID, patch models.BookPatch) (*models.Book, error)
	DeleteBook(ctx context.Context, id uuid.UUID) error

	CreateUser(ctx context.Context, in models.NewUser) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, patch models.UserPatch) (*models.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error

	Rent(ctx context.Context, userID, bookID uuid.UUID, quantity, days int) (*models.Rental, error)
	ReturnRental(ctx context.Context, req models.ReturnRequest) (*models.Rental, error)
	ListRentals(ctx context.Context, filter models.RentalFilter) ([]models.Rental, error)
}

// ─── Implementation ───────────────────────────────────────────────────────────

type libraryService struct {
	db         *gorm.DB
	userRepo   repositories.UserRepository
	bookRepo   repositories.BookRepository
	rentalRepo repositories.RentalRepository
	ledger     *InventoryLedger
	log        *slog.Logger
	now        func() time.Time
}

// Option configures a LibraryService.
type Option func(*libraryService)

// WithLogger sets the structured logger used for operation logs.
func WithLogger(logger *slog.Logger) Option {
	return func(s *libraryService) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *libraryService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewLibraryService wires up all dependencies and returns a LibraryService.
func NewLibraryService(
	db *gorm.DB,
	userRepo repositories.UserRepository,
	bookRepo repositories.BookRepository,
	rentalRepo repositories.RentalRepository,
	opts ...Option,
) LibraryService {
	s := &libraryService{
		db:         db,
		userRepo:   userRepo,
		bookRepo:   bookRepo,
		rentalRepo: rentalRepo,
		ledger:     NewInventoryLedger(bookRepo),
		log:        slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ─── Book Management ──────────────────────────────────────────────────────────

// CreateBook stores a new book with every copy on the shelf.
func (s *libraryService) CreateBook(ctx context.Context, in models.NewBook) (*models.Book, error) {
	if in.TotalCopies < 0 {
		return nil, ErrInvalidTotal
	}
	now := s.now()
	book := &models.Book{
		Title:           strings.TrimSpace(in.Title),
		Author:          strings.TrimSpace(in.Author),
		PublishedYear:   in.PublishedYear,
		Publisher:       in.Publisher,
		ISBN:            normalizeISBN(in.ISBN),
		ImageURLSmall:   in.ImageURLSmall,
		ImageURLMedium:  in.ImageURLMedium,
		ImageURLLarge:   in.ImageURLLarge,
		TotalCopies:     in.TotalCopies,
		AvailableCopies: in.TotalCopies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if book.ISBN != nil {
			if err := s.ensureISBNFree(tx, *book.ISBN, uuid.Nil); err != nil {
				return err
			}
		}
		if err := s.bookRepo.Create(tx, book); err != nil {
			if isUniqueViolation(err) {
				return ErrISBNExists
			}
			return fmt.Errorf("create book: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logFailure("CreateBook", err, "title", book.Title)
		return nil, err
	}
	s.log.Info("book created", "book_id", book.ID, "title", book.Title, "total_copies", book.TotalCopies)
	return book, nil
}

func (s *libraryService) GetBook(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	book, err := s.bookRepo.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, s.mapNotFound(err, ErrBookNotFound)
	}
	return book, nil
}

func (s *libraryService) GetBookByISBN(ctx context.Context, isbn string) (*models.Book, error) {
	key := normalizeISBN(&isbn)
	if key == nil {
		return nil, ErrBookNotFound
	}
	book, err := s.bookRepo.GetByISBN(s.db.WithContext(ctx), *key)
	if err != nil {
		return nil, s.mapNotFound(err, ErrBookNotFound)
	}
	return book, nil
}

// ListBooks returns books whose title or author contains query, ordered by title.
func (s *libraryService) ListBooks(ctx context.Context, query string) ([]models.Book, error) {
	books, err := s.bookRepo.List(s.db.WithContext(ctx), query)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// UpdateBook applies a partial update. A new total_copies moves
// available_copies by the same delta.
func (s *libraryService) UpdateBook(ctx context.Context, id uuid.UUID, patch models.BookPatch) (*models.Book, error) {
	var updated *models.Book

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		book, err := s.bookRepo.GetByIDForUpdate(tx, id)
		if err != nil {
			return s.mapNotFound(err, ErrBookNotFound)
		}

		if patch.ISBN != nil {
			isbn := normalizeISBN(patch.ISBN)
			if isbn != nil && (book.ISBN == nil || *book.ISBN != *isbn) {
				if err := s.ensureISBNFree(tx, *isbn, book.ID); err != nil {
					return err
				}
			}
			book.ISBN = isbn
		}
		if patch.Title != nil {
			book.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Author != nil {
			book.Author = strings.TrimSpace(*patch.Author)
		}
		if patch.PublishedYear != nil {
			book.PublishedYear = *patch.PublishedYear
		}
		if patch.Publisher != nil {
			book.Publisher = patch.Publisher
		}
		if patch.ImageURLSmall != nil {
			book.ImageURLSmall = patch.ImageURLSmall
		}
		if patch.ImageURLMedium != nil {
			book.ImageURLMedium = patch.ImageURLMedium
		}
		if patch.ImageURLLarge != nil {
			book.ImageURLLarge = patch.ImageURLLarge
		}
		if patch.TotalCopies != nil {
			if err := s.ledger.Adjust(book, *patch.TotalCopies); err != nil {
				return err
			}
		}

		book.UpdatedAt = s.now()
		if err := s.bookRepo.Update(tx, book); err != nil {
			if isUniqueViolation(err) {
				return ErrISBNExists
			}
			return fmt.Errorf("update book %s: %w", id, err)
		}
		updated = book
		return nil
	})
	if err != nil {
		s.logFailure("UpdateBook", err, "book_id", id)
		return nil, err
	}
	s.log.Info("book updated", "book_id", id, "total_copies", updated.TotalCopies, "available_copies", updated.AvailableCopies)
	return updated, nil
}

// DeleteBook removes a book that has no active rentals. Returned rentals
// are kept with their book reference cleared.
func (s *libraryService) DeleteBook(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.bookRepo.GetByIDForUpdate(tx, id); err != nil {
			return s.mapNotFound(err, ErrBookNotFound)
		}
		active, err := s.rentalRepo.CountActiveByBook(tx, id)
		if err != nil {
			return fmt.Errorf("count active rentals for book %s: %w", id, err)
		}
		if active > 0 {
			return ErrBookHasActiveRentals
		}
		if err := s.rentalRepo.DetachBook(tx, id); err != nil {
			return fmt.Errorf("detach rentals from book %s: %w", id, err)
		}
		if err := s.bookRepo.Delete(tx, id); err != nil {
			return fmt.Errorf("delete book %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		s.logFailure("DeleteBook", err, "book_id", id)
		return err
	}
	s.log.Info("book deleted", "book_id", id)
	return nil
}

// ─── User Management ──────────────────────────────────────────────────────────

func (s *libraryService) CreateUser(ctx context.Context, in models.NewUser) (*models.User, error) {
	now := s.now()
	user := &models.User{
		Name:      strings.TrimSpace(in.Name),
		Email:     normalizeEmail(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureEmailFree(tx, user.Email, uuid.Nil); err != nil {
			return err
		}
		if err := s.userRepo.Create(tx, user); err != nil {
			if isUniqueViolation(err) {
				return ErrEmailExists
			}
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logFailure("CreateUser", err, "email", user.Email)
		return nil, err
	}
	s.log.Info("user created", "user_id", user.ID)
	return user, nil
}

func (s *libraryService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.userRepo.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, s.mapNotFound(err, ErrUserNotFound)
	}
	return user, nil
}

// ListUsers returns all users, newest first.
func (s *libraryService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.userRepo.List(s.db.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *libraryService) UpdateUser(ctx context.Context, id uuid.UUID, patch models.UserPatch) (*models.User, error) {
	var updated *models.User

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.userRepo.GetByIDForUpdate(tx, id)
		if err != nil {
			return s.mapNotFound(err, ErrUserNotFound)
		}
		if patch.Email != nil {
			email := normalizeEmail(*patch.Email)
			if email != user.Email {
				if err := s.ensureEmailFree(tx, email, user.ID); err != nil {
					return err
				}
			}
			user.Email = email
		}
		if patch.Name != nil {
			user.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Phone != nil {
			user.Phone = strings.TrimSpace(*patch.Phone)
		}
		user.UpdatedAt = s.now()
		if err := s.userRepo.Update(tx, user); err != nil {
			if isUniqueViolation(err) {
				return ErrEmailExists
			}
			return fmt.Errorf("update user %s: %w", id, err)
		}
		updated = user
		return nil
	})
	if err != nil {
		s.logFailure("UpdateUser", err, "user_id", id)
		return nil, err
	}
	s.log.Info("user updated", "user_id", id)
	return updated, nil
}

// DeleteUser removes a user that has no active rentals, keeping returned
// rentals with their user reference cleared.
func (s *libraryService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.userRepo.GetByIDForUpdate(tx, id); err != nil {
			return s.mapNotFound(err, ErrUserNotFound)
		}
		active, err := s.rentalRepo.CountActiveByUser(tx, id)
		if err != nil {
			return fmt.Errorf("count active rentals for user %s: %w", id, err)
		}
		if active > 0 {
			return ErrUserHasActiveRentals
		}
		if err := s.rentalRepo.DetachUser(tx, id); err != nil {
			return fmt.Errorf("detach rentals from user %s: %w", id, err)
		}
		if err := s.userRepo.Delete(tx, id); err != nil {
			return fmt.Errorf("delete user %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		s.logFailure("DeleteUser", err, "user_id", id)
		return err
	}
	s.log.Info("user deleted", "user_id", id)
	return nil
}

// ─── Internal Helpers ─────────────────────────────────────────────────────────

func (s *libraryService) ensureISBNFree(tx *gorm.DB, isbn string, self uuid.UUID) error {
	existing, err := s.bookRepo.GetByISBN(tx, isbn)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("look up isbn %q: %w", isbn, err)
	}
	if existing.ID != self {
		return ErrISBNExists
	}
	return nil
}

func (s *libraryService) ensureEmailFree(tx *gorm.DB, email string, self uuid.UUID) error {
	existing, err := s.userRepo.GetByEmail(tx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("look up email: %w", err)
	}
	if existing.ID != self {
		return ErrEmailExists
	}
	return nil
}

// mapNotFound turns gorm's missing-row error into the given sentinel and
// wraps anything else as a store failure.
func (s *libraryService) mapNotFound(err error, notFound *Error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return fmt.Errorf("store: %w", err)
}

// logFailure logs business rejections at warn and store failures at error.
func (s *libraryService) logFailure(op string, err error, args ...any) {
	args = append(args, "op", op, "error", err)
	if KindOf(err) == KindInternal {
		s.log.Error("operation failed", args...)
		return
	}
	s.log.Warn("operation rejected", args...)
}

// normalizeISBN trims the key and treats an empty one as absent.
func normalizeISBN(isbn *string) *string {
	if isbn == nil {
		return nil
	}
	v := strings.TrimSpace(*isbn)
	if v == "" {
		return nil
	}
	return &v
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
