package services

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Kind classifies a service failure so the transport layer can pick a status.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidArgument
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified service failure. Sentinels below are compared with errors.Is.
type Error struct {
	kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Kind() Kind    { return e.kind }

func newError(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	ErrBookNotFound   = newError(KindNotFound, "book not found")
	ErrUserNotFound   = newError(KindNotFound, "user not found")
	ErrRentalNotFound = newError(KindNotFound, "active rental not found")

	// ErrOrphanedRental is returned when a rental's book no longer exists.
	ErrOrphanedRental = newError(KindNotFound, "book not found for rental")

	ErrInvalidQuantity   = newError(KindInvalidArgument, "quantity must be >= 1")
	ErrInvalidDays       = newError(KindInvalidArgument, "days must be >= 1")
	ErrInvalidTotal      = newError(KindInvalidArgument, "total_copies must be >= 0")
	ErrMissingReturnKeys = newError(KindInvalidArgument, "provide rental_id or both user_id and book_id")

	ErrInsufficientInventory = newError(KindConflict, "not enough available copies")
	ErrEmailExists           = newError(KindConflict, "email already exists")
	ErrISBNExists            = newError(KindConflict, "isbn already exists")
	ErrBookHasActiveRentals  = newError(KindConflict, "cannot delete a book with active rentals")
	ErrUserHasActiveRentals  = newError(KindConflict, "cannot delete a user with active rentals")
	ErrTotalBelowOnLoan      = newError(KindConflict, "total_copies cannot be lower than copies on loan")

	// ErrInventoryInvariant is returned when a release would push
	// available_copies above total_copies.
	ErrInventoryInvariant = newError(KindInternal, "inventory invariant violated: available copies would exceed total")
)

// KindOf reports the Kind of err; unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.kind
	}
	return KindInternal
}

// isUniqueViolation reports whether err is a unique-constraint failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
