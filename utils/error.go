package utils

import (
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

// ErrorRecordNotFound is matched by every NotFound DomainError.
var ErrorRecordNotFound = errors.New("record not found")

// ErrConcurrencyConflict is returned when a versioned update matched no row.
var ErrConcurrencyConflict = errors.New("concurrency conflict: row was modified by another writer")

const (
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeConflict   = "CONFLICT"
)

// DomainError is a rule violation the caller can act on.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func (e *DomainError) Unwrap() error {
	if e.Code == ErrCodeNotFound {
		return ErrorRecordNotFound
	}
	return nil
}

func NewNotFoundError(format string, args ...any) error {
	return &DomainError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewBadRequestError(format string, args ...any) error {
	return &DomainError{Code: ErrCodeBadRequest, Message: fmt.Sprintf(format, args...)}
}

func NewConflictError(format string, args ...any) error {
	return &DomainError{Code: ErrCodeConflict, Message: fmt.Sprintf(format, args...)}
}

func errorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrorRecordNotFound)
}

func IsBadRequest(err error) bool {
	return errorCode(err) == ErrCodeBadRequest
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) || errorCode(err) == ErrCodeConflict
}

// IsDuplicateKeyErr reports a MySQL unique constraint violation.
func IsDuplicateKeyErr(err error) bool {
	var me *mysqlDriver.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
