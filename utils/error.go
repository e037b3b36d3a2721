package utils

import (
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Shared error taxonomy. Operations wrap these sentinels with detail text via
// fmt.Errorf("%w: ..."); callers branch with errors.Is.
var (
	ErrorRecordNotFound     = errors.New("record not found")
	ErrorValidation         = errors.New("validation failed")
	ErrorInsufficientStock  = errors.New("insufficient stock")
	ErrorInvalidState       = errors.New("invalid state")
	ErrorConcurrencyTimeout = errors.New("lock wait timeout")
)

// ErrorAlreadyCompleted matches both itself and ErrorInvalidState under errors.Is.
var ErrorAlreadyCompleted = fmt.Errorf("%w: already completed", ErrorInvalidState)

func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrorValidation, fmt.Sprintf(format, args...))
}

func InvalidStateError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrorInvalidState, fmt.Sprintf(format, args...))
}

func InsufficientStockError(partNumber string, locationId int, requested decimal.Decimal, available decimal.Decimal) error {
	return fmt.Errorf("%w: part %s at location %d: requested %s, available %s",
		ErrorInsufficientStock, partNumber, locationId, requested.String(), available.String())
}

// MySQL server error numbers this codebase cares about.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrDuplicateEntry
	}
	return false
}

// TranslateDBError maps driver-level conflicts onto the shared taxonomy so
// callers can decide retryability without depending on driver types.
func TranslateDBError(err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock:
			return fmt.Errorf("%w: %s", ErrorConcurrencyTimeout, mysqlErr.Message)
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorRecordNotFound
	}
	return err
}

// IsRetryable reports whether the caller may safely retry the whole command.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrorConcurrencyTimeout)
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
