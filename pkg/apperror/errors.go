package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another *AppError by code, so errors.Is(err, ErrWalletFrozen())
// works regardless of the wrapped cause.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Error codes.
const (
	CodeInvalidAmount       = "WAL_001"
	CodeWalletInactive      = "WAL_002"
	CodeWalletFrozen        = "WAL_003"
	CodeInsufficientBalance = "WAL_004"
	CodeDailyLimitExceeded  = "WAL_005"
	CodeWalletNotFound      = "WAL_006"
	CodeInvalidEntryType    = "WAL_007"
	CodeInvalidTransfer     = "WAL_008"
	CodeUnsupportedCurrency = "WAL_009"
	CodePersistenceFailure  = "SYS_001"
	CodeConcurrentConflict  = "SYS_002"
	CodeInternal            = "SYS_003"
	CodeCompensationFailure = "SYS_004"
	CodeInvalidToken        = "AUTH_001"
	CodeForbidden           = "AUTH_002"
	CodeRateLimitExceeded   = "RATE_001"
	CodeValidation          = "REQ_001"
)

// ---- Wallet Business Logic (WAL) ----

func ErrInvalidAmount() *AppError {
	return New(CodeInvalidAmount, "Amount must be greater than zero", http.StatusBadRequest)
}

func ErrBalanceOverflow() *AppError {
	return New(CodeInvalidAmount, "Amount would overflow the wallet balance", http.StatusBadRequest)
}

func ErrWalletInactive() *AppError {
	return New(CodeWalletInactive, "Wallet is not active", http.StatusForbidden)
}

func ErrWalletFrozen() *AppError {
	return New(CodeWalletFrozen, "Wallet is frozen", http.StatusLocked)
}

func ErrInsufficientBalance() *AppError {
	return New(CodeInsufficientBalance, "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrDailyLimitExceeded() *AppError {
	return New(CodeDailyLimitExceeded, "Daily withdrawal limit exceeded", http.StatusUnprocessableEntity)
}

func ErrWalletNotFound() *AppError {
	return New(CodeWalletNotFound, "Wallet not found", http.StatusNotFound)
}

func ErrInvalidEntryType(entryType string) *AppError {
	return New(CodeInvalidEntryType, fmt.Sprintf("Unknown entry type %q", entryType), http.StatusBadRequest)
}

func ErrInvalidTransfer(message string) *AppError {
	return New(CodeInvalidTransfer, message, http.StatusBadRequest)
}

// ErrTransferReversed rejects a retry whose earlier attempt was compensated.
func ErrTransferReversed() *AppError {
	return New(CodeInvalidTransfer, "Transfer with this idempotency key was reversed, retry with a new key", http.StatusConflict)
}

func ErrUnsupportedCurrency(currency string) *AppError {
	return New(CodeUnsupportedCurrency, fmt.Sprintf("Unsupported currency %q", currency), http.StatusBadRequest)
}

// ---- System & Infrastructure (SYS) ----

func ErrPersistenceFailure(err error) *AppError {
	return Wrap(CodePersistenceFailure, "Storage temporarily unavailable", http.StatusServiceUnavailable, err)
}

func ErrConcurrentModification(err error) *AppError {
	return Wrap(CodeConcurrentConflict, "Wallet is busy, please retry", http.StatusConflict, err)
}

func ErrCompensationFailure(err error) *AppError {
	return Wrap(CodeCompensationFailure, "Transfer could not be reversed", http.StatusInternalServerError, err)
}

// ErrOutcomeUnknown reports a commit whose result could not be confirmed.
// It is not transient: the mutation may already be applied.
func ErrOutcomeUnknown(err error) *AppError {
	return Wrap(CodeInternal, "Mutation outcome unknown, check wallet history before retrying", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_003 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New(CodeForbidden, "Insufficient role for this operation", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// IsTransient reports whether err is worth retrying without caller intervention.
func IsTransient(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == CodePersistenceFailure || appErr.Code == CodeConcurrentConflict
}

// Kind returns the error code of err, or CodeInternal for foreign errors.
func Kind(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}
