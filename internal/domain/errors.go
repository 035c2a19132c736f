package domain

import "errors"

var (
	ErrInvalidAmount                = errors.New("invalid amount")
	ErrInsufficientAllocationTarget = errors.New("no fee lines to allocate to")
	ErrInsufficientBalance          = errors.New("insufficient wallet balance")
	ErrReceiptNotFound              = errors.New("receipt not found")
	// ErrConcurrentModification is the only retryable error: the caller must
	// redo the whole operation against fresh state.
	ErrConcurrentModification = errors.New("concurrent modification")

	ErrFeeNotFound          = errors.New("fee line not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrFeeStructureNotFound = errors.New("fee structure not found")
	ErrFeeStructureInUse    = errors.New("fee structure is assigned to students")
	ErrDiscountExceedsTotal = errors.New("discount exceeds amount plus tax plus previous debt")
	ErrInvalidPaymentState  = errors.New("payment cannot be reversed in its current state")
	ErrReasonRequired       = errors.New("reason is required")
	ErrTenantRequired       = errors.New("tenant id is required")
	ErrStudentRequired      = errors.New("student id is required")
	ErrDuplicate            = errors.New("duplicate record")
	ErrInvalidInput         = errors.New("invalid input")
)
