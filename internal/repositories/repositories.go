package repositories

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"library-rental/internal/models"
)

// Every method takes the handle to run on so callers can pass their
// transaction; a nil handle falls back to the repository's pool.

type UserRepository interface {
	Create(db *gorm.DB, user *models.User) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.User, error)
	GetByEmail(db *gorm.DB, email string) (*models.User, error)
	List(db *gorm.DB) ([]models.User, error)
	Update(db *gorm.DB, user *models.User) error
	Delete(db *gorm.DB, id uuid.UUID) error
}

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	GetByISBN(db *gorm.DB, isbn string) (*models.Book, error)
	List(db *gorm.DB, query string) ([]models.Book, error)
	Update(db *gorm.DB, book *models.Book) error
	Delete(db *gorm.DB, id uuid.UUID) error
	DecrementAvailable(db *gorm.DB, bookID uuid.UUID, quantity int) (int64, error)
	IncrementAvailable(db *gorm.DB, bookID uuid.UUID, quantity int) (int64, error)
}

type RentalRepository interface {
	Create(db *gorm.DB, rental *models.Rental) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Rental, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Rental, error)
	FindLatestActiveForUpdate(db *gorm.DB, userID, bookID uuid.UUID) (*models.Rental, error)
	MarkReturned(db *gorm.DB, rentalID uuid.UUID, returnedAt time.Time) (int64, error)
	CountActiveByBook(db *gorm.DB, bookID uuid.UUID) (int64, error)
	CountActiveByUser(db *gorm.DB, userID uuid.UUID) (int64, error)
	DetachBook(db *gorm.DB, bookID uuid.UUID) error
	DetachUser(db *gorm.DB, userID uuid.UUID) error
	List(db *gorm.DB, filter models.RentalFilter) ([]models.Rental, error)
}

// concrete implementations

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) conn(db *gorm.DB) *gorm.DB {
	if db == nil {
		return r.db
	}
	return db
}

func (r *userRepository) Create(db *gorm.DB, user *models.User) error {
	return r.conn(db).Create(user).Error
}

func (r *userRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.conn(db).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.conn(db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(db *gorm.DB, email string) (*models.User, error) {
	var user models.User
	if err := r.conn(db).First(&user, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) List(db *gorm.DB) ([]models.User, error) {
	var users []models.User
	if err := r.conn(db).Order("created_at DESC").Order("id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) Update(db *gorm.DB, user *models.User) error {
	return r.conn(db).Save(user).Error
}

func (r *userRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	return r.conn(db).Delete(&models.User{}, "id = ?", id).Error
}

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) conn(db *gorm.DB) *gorm.DB {
	if db == nil {
		return r.db
	}
	return db
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	return r.conn(db).Create(book).Error
}

func (r *bookRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	var book models.Book
	if err := r.conn(db).First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	var book models.Book
	err := r.conn(db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&book, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) GetByISBN(db *gorm.DB, isbn string) (*models.Book, error) {
	var book models.Book
	if err := r.conn(db).First(&book, "isbn = ?", isbn).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// List matches query case-insensitively against title or author.
func (r *bookRepository) List(db *gorm.DB, query string) ([]models.Book, error) {
	stmt := r.conn(db).Model(&models.Book{})
	if q := strings.TrimSpace(query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		stmt = stmt.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ?", like, like)
	}
	var books []models.Book
	if err := stmt.Order("title ASC").Order("id").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) Update(db *gorm.DB, book *models.Book) error {
	return r.conn(db).Save(book).Error
}

func (r *bookRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	return r.conn(db).Delete(&models.Book{}, "id = ?", id).Error
}

// DecrementAvailable takes quantity copies only if that many are available.
// Zero rows affected means the book is missing or short on stock.
func (r *bookRepository) DecrementAvailable(db *gorm.DB, bookID uuid.UUID, quantity int) (int64, error) {
	res := r.conn(db).Model(&models.Book{}).
		Where("id = ? AND available_copies >= ?", bookID, quantity).
		Updates(map[string]interface{}{
			"available_copies": gorm.Expr("available_copies - ?", quantity),
			"updated_at":       time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// IncrementAvailable puts quantity copies back, refusing to exceed total_copies.
func (r *bookRepository) IncrementAvailable(db *gorm.DB, bookID uuid.UUID, quantity int) (int64, error) {
	res := r.conn(db).Model(&models.Book{}).
		Where("id = ? AND available_copies + ? <= total_copies", bookID, quantity).
		Updates(map[string]interface{}{
			"available_copies": gorm.Expr("available_copies + ?", quantity),
			"updated_at":       time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

type rentalRepository struct {
	db *gorm.DB
}

func NewRentalRepository(db *gorm.DB) RentalRepository {
	return &rentalRepository{db: db}
}

func (r *rentalRepository) conn(db *gorm.DB) *gorm.DB {
	if db == nil {
		return r.db
	}
	return db
}

func (r *rentalRepository) Create(db *gorm.DB, rental *models.Rental) error {
	return r.conn(db).Create(rental).Error
}

func (r *rentalRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Rental, error) {
	var rental models.Rental
	if err := r.conn(db).First(&rental, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rental, nil
}

func (r *rentalRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Rental, error) {
	var rental models.Rental
	err := r.conn(db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&rental, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &rental, nil
}

func (r *rentalRepository) FindLatestActiveForUpdate(db *gorm.DB, userID, bookID uuid.UUID) (*models.Rental, error) {
	var rental models.Rental
	err := r.conn(db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND book_id = ? AND returned_at IS NULL", userID, bookID).
		Order("rented_at DESC").
		Limit(1).
		Take(&rental).Error
	if err != nil {
		return nil, err
	}
	return &rental, nil
}

// MarkReturned sets returned_at once; a rental that is already returned
// is left untouched and reports zero rows affected.
func (r *rentalRepository) MarkReturned(db *gorm.DB, rentalID uuid.UUID, returnedAt time.Time) (int64, error) {
	res := r.conn(db).Model(&models.Rental{}).
		Where("id = ? AND returned_at IS NULL", rentalID).
		Update("returned_at", returnedAt)
	return res.RowsAffected, res.Error
}

func (r *rentalRepository) CountActiveByBook(db *gorm.DB, bookID uuid.UUID) (int64, error) {
	var n int64
	err := r.conn(db).Model(&models.Rental{}).
		Where("book_id = ? AND returned_at IS NULL", bookID).
		Count(&n).Error
	return n, err
}

func (r *rentalRepository) CountActiveByUser(db *gorm.DB, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.conn(db).Model(&models.Rental{}).
		Where("user_id = ? AND returned_at IS NULL", userID).
		Count(&n).Error
	return n, err
}

func (r *rentalRepository) DetachBook(db *gorm.DB, bookID uuid.UUID) error {
	return r.conn(db).Model(&models.Rental{}).
		Where("book_id = ?", bookID).
		Update("book_id", nil).Error
}

func (r *rentalRepository) DetachUser(db *gorm.DB, userID uuid.UUID) error {
	return r.conn(db).Model(&models.Rental{}).
		Where("user_id = ?", userID).
		Update("user_id", nil).Error
}

func (r *rentalRepository) List(db *gorm.DB, filter models.RentalFilter) ([]models.Rental, error) {
	stmt := r.conn(db).Model(&models.Rental{})
	if filter.Active != nil {
		if *filter.Active {
			stmt = stmt.Where("returned_at IS NULL")
		} else {
			stmt = stmt.Where("returned_at IS NOT NULL")
		}
	}
	if filter.UserID != nil {
		stmt = stmt.Where("user_id = ?", *filter.UserID)
	}
	if filter.BookID != nil {
		stmt = stmt.Where("book_id = ?", *filter.BookID)
	}
	var rentals []models.Rental
	if err := stmt.Order("rented_at DESC").Order("id").Find(&rentals).Error; err != nil {
		return nil, err
	}
	return rentals, nil
}
