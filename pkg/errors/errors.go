package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("resource not found")
	ErrChannelUnavailable   = errors.New("messaging channel unavailable")
	ErrGenerationTimeout    = errors.New("text generation timed out")
	ErrStorage              = errors.New("storage failure")
	ErrLoanAlreadyClosed    = errors.New("loan is already closed")
	ErrInvalidPaymentAmount = errors.New("invalid payment amount")
	ErrJobAlreadyRunning    = errors.New("job is already running")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeChannelUnavailable   = "CHANNEL_UNAVAILABLE"
	ErrCodeGenerationTimeout    = "GENERATION_TIMEOUT"
	ErrCodeDatabaseError        = "DATABASE_ERROR"
	ErrCodeLoanAlreadyClosed    = "LOAN_ALREADY_CLOSED"
	ErrCodeInvalidPaymentAmount = "INVALID_PAYMENT_AMOUNT"
	ErrCodeJobAlreadyRunning    = "JOB_ALREADY_RUNNING"
)

// CodeOf returns the code of the outermost BusinessError in err's chain, or "".
func CodeOf(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func WrapValidation(field, message string) *BusinessError {
	msg := message
	if field != "" {
		msg = fmt.Sprintf("%s: %s", field, message)
	}
	return NewBusinessError(ErrCodeValidation, msg, ErrValidation)
}

func WrapNotFound(kind, id string) *BusinessError {
	return NewBusinessError(
		ErrCodeNotFound,
		fmt.Sprintf("%s with ID %s not found", kind, id),
		ErrNotFound,
	)
}

func WrapChannelUnavailable(state string) *BusinessError {
	return NewBusinessError(
		ErrCodeChannelUnavailable,
		fmt.Sprintf("channel is %s", state),
		ErrChannelUnavailable,
	)
}

func WrapGenerationTimeout(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeGenerationTimeout,
		"text generation did not answer in time",
		fmt.Errorf("%w: %w", ErrGenerationTimeout, err),
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		fmt.Errorf("%w: %w", ErrStorage, err),
	)
}

func WrapLoanAlreadyClosed(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanAlreadyClosed,
		fmt.Sprintf("Loan with ID %s is already closed", loanID),
		ErrLoanAlreadyClosed,
	)
}

func WrapInvalidPaymentAmount(amount string, reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidPaymentAmount,
		fmt.Sprintf("Invalid payment amount %s: %s", amount, reason),
		ErrInvalidPaymentAmount,
	)
}

func WrapJobAlreadyRunning(job string) *BusinessError {
	return NewBusinessError(
		ErrCodeJobAlreadyRunning,
		fmt.Sprintf("job %s is already running", job),
		ErrJobAlreadyRunning,
	)
}
