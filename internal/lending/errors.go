package lending

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrlokans/lending/internal/database"
	"github.com/mrlokans/lending/internal/database/borrows"
	"github.com/mrlokans/lending/internal/database/inventory"
	"github.com/mrlokans/lending/internal/database/reservations"
	"github.com/mrlokans/lending/internal/pool"
)

// Kind classifies a failure by how the caller should react to it.
type Kind string

const (
	// KindGuard is a business rule rejection. It is never retried automatically.
	KindGuard Kind = "guard"
	// KindResource is an infrastructure failure (pool exhausted, connection lost). Safe to retry.
	KindResource Kind = "resource"
	// KindInvariant is a conditional write that matched no row although the
	// pre-check passed: a race was lost. Counters stay consistent; safe to retry.
	KindInvariant Kind = "invariant"
	// KindInternal is an unexpected store failure that repeats on every attempt.
	KindInternal Kind = "internal"
)

type Code string

const (
	CodeBookNotFound         Code = "BOOK_NOT_FOUND"
	CodeBookInactive         Code = "BOOK_INACTIVE"
	CodeNoCopiesAvailable    Code = "NO_COPIES_AVAILABLE"
	CodeBorrowLimitReached   Code = "BORROW_LIMIT_REACHED"
	CodeOverdueOutstanding   Code = "OVERDUE_OUTSTANDING"
	CodeDuplicateReservation Code = "DUPLICATE_RESERVATION"
	CodeInvalidState         Code = "INVALID_STATE"
	CodeRecordNotFound       Code = "RECORD_NOT_FOUND"
	CodeInvalidStock         Code = "INVALID_STOCK"
	CodePoolExhausted        Code = "POOL_EXHAUSTED"
	CodeConnectionLost       Code = "CONNECTION_LOST"
	CodeDatabaseBusy         Code = "DATABASE_BUSY"
	CodeDatabaseError        Code = "DATABASE_ERROR"
)

// Error is the typed failure returned by the lending services.
type Error struct {
	Code    Code
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, whatever its kind or message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrBookNotFound         = &Error{Code: CodeBookNotFound, Kind: KindGuard, Message: "book not found"}
	ErrBookInactive         = &Error{Code: CodeBookInactive, Kind: KindGuard, Message: "book is not available for lending"}
	ErrNoCopiesAvailable    = &Error{Code: CodeNoCopiesAvailable, Kind: KindGuard, Message: "no copies available"}
	ErrBorrowLimitReached   = &Error{Code: CodeBorrowLimitReached, Kind: KindGuard, Message: "borrow limit reached"}
	ErrOverdueOutstanding   = &Error{Code: CodeOverdueOutstanding, Kind: KindGuard, Message: "user has an overdue loan"}
	ErrDuplicateReservation = &Error{Code: CodeDuplicateReservation, Kind: KindGuard, Message: "user already has a pending reservation for this book"}
	ErrInvalidState         = &Error{Code: CodeInvalidState, Kind: KindGuard, Message: "record is not in the expected state"}
	ErrRecordNotFound       = &Error{Code: CodeRecordNotFound, Kind: KindGuard, Message: "record not found"}
	ErrInvalidStock         = &Error{Code: CodeInvalidStock, Kind: KindGuard, Message: "invalid stock values"}
	ErrPoolExhausted        = &Error{Code: CodePoolExhausted, Kind: KindResource, Message: "database busy, try again"}
	ErrConnectionLost       = &Error{Code: CodeConnectionLost, Kind: KindResource, Message: "database connection lost"}
	ErrDatabaseBusy         = &Error{Code: CodeDatabaseBusy, Kind: KindResource, Message: "database busy, try again"}
	ErrDatabase             = &Error{Code: CodeDatabaseError, Kind: KindInternal, Message: "database error"}
)

func newError(base *Error, kind Kind, err error) *Error {
	return &Error{Code: base.Code, Kind: kind, Message: base.Message, Err: err}
}

// raceLost reports a conditional write that matched no row inside a transaction.
func raceLost(base *Error, err error) *Error {
	return newError(base, KindInvariant, err)
}

// classify maps store, pool and context errors onto the lending taxonomy.
// Errors that already are *Error pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var lerr *Error
	if errors.As(err, &lerr) {
		return err
	}

	switch {
	case errors.Is(err, pool.ErrPoolExhausted):
		return newError(ErrPoolExhausted, KindResource, err)
	case errors.Is(err, pool.ErrConnectionLost), errors.Is(err, pool.ErrPoolClosed):
		return newError(ErrConnectionLost, KindResource, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, inventory.ErrBookNotFound):
		return newError(ErrBookNotFound, KindGuard, err)
	case errors.Is(err, inventory.ErrInvalidStock):
		return newError(ErrInvalidStock, KindGuard, err)
	case errors.Is(err, inventory.ErrNoAvailableCopies):
		return raceLost(ErrNoCopiesAvailable, err)
	case errors.Is(err, inventory.ErrAvailableAtCapacity),
		errors.Is(err, inventory.ErrBorrowedAtCapacity),
		errors.Is(err, inventory.ErrNoBorrowedCopies):
		return raceLost(ErrInvalidState, err)
	case errors.Is(err, borrows.ErrRecordNotFound), errors.Is(err, reservations.ErrRecordNotFound):
		return newError(ErrRecordNotFound, KindGuard, err)
	case errors.Is(err, reservations.ErrNotPending):
		return newError(ErrInvalidState, KindGuard, err)
	case database.IsTransient(err):
		return newError(ErrDatabaseBusy, KindResource, err)
	}
	return newError(ErrDatabase, KindInternal, err)
}

// CodeOf returns the code of a lending error, or "" for anything else.
func CodeOf(err error) Code {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Code
	}
	return ""
}

// KindOf returns the kind of a lending error, or "" for anything else.
func KindOf(err error) Kind {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return ""
}

func IsGuard(err error) bool {
	return KindOf(err) == KindGuard
}

// IsRetryable reports whether the failure is transient: resource failures and lost races.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindResource, KindInvariant:
		return true
	}
	return false
}
