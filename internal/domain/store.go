package domain

import (
	"context"
	"time"
)

// LedgerReader is the read side of the persistence layer. Every method is
// scoped by tenant id.
type LedgerReader interface {
	FeeStructure(ctx context.Context, tenantID, id string) (FeeStructure, error)
	FeeStructures(ctx context.Context, tenantID string) ([]FeeStructure, error)
	StructureAssignmentCount(ctx context.Context, tenantID, structureID string) (int64, error)

	StudentFee(ctx context.Context, tenantID, id string) (StudentFee, error)
	StudentFees(ctx context.Context, tenantID, studentID string) ([]StudentFee, error)
	StudentFeesByIDs(ctx context.Context, tenantID string, ids []string) ([]StudentFee, error)
	// OpenStudentFees returns lines with a positive outstanding balance.
	OpenStudentFees(ctx context.Context, tenantID string) ([]StudentFee, error)

	Payment(ctx context.Context, tenantID, id string) (FeePayment, error)
	PaymentsByConsolidatedReceipt(ctx context.Context, tenantID, receiptNo string) ([]FeePayment, error)
	// PaymentByReceiptNoOrID matches a single payment by its receipt number or raw id.
	PaymentByReceiptNoOrID(ctx context.Context, tenantID, key string) (FeePayment, error)
	Payments(ctx context.Context, tenantID string, f PaymentsFilter) ([]FeePayment, error)
	CountPayments(ctx context.Context, tenantID string, f PaymentsFilter) (int64, error)

	// Wallet returns a zero wallet (empty ID) when the student has none yet.
	Wallet(ctx context.Context, tenantID, studentID string) (Wallet, error)
	WalletTransactions(ctx context.Context, tenantID, studentID string) ([]WalletTransaction, error)
	WalletTransactionsByReceipt(ctx context.Context, tenantID, receiptNo string) ([]WalletTransaction, error)
	WalletsBelow(ctx context.Context, tenantID string, threshold Money) ([]Wallet, error)
}

// LedgerTx is a unit of work. Rows read through the ForUpdate methods stay
// locked until the transaction ends.
type LedgerTx interface {
	LedgerReader

	StudentFeesForUpdate(ctx context.Context, tenantID, studentID string, ids []string) ([]StudentFee, error)
	StudentFeeForUpdate(ctx context.Context, tenantID, id string) (StudentFee, error)
	// UpdateStudentFeePaid stores PaidAmount guarded by Version and returns
	// ErrConcurrentModification when the row moved underneath.
	UpdateStudentFeePaid(ctx context.Context, fee StudentFee) error
	InsertStudentFee(ctx context.Context, fee StudentFee) (StudentFee, error)

	CreateFeeStructure(ctx context.Context, fs FeeStructure) error
	DeleteFeeStructure(ctx context.Context, tenantID, id string) error

	InsertFeePayment(ctx context.Context, p FeePayment) error
	PaymentForUpdate(ctx context.Context, tenantID, id string) (FeePayment, error)
	UpdatePaymentStatus(ctx context.Context, p FeePayment) error

	// WalletForUpdate locks the student's wallet, creating it when missing.
	WalletForUpdate(ctx context.Context, tenantID, studentID string) (Wallet, error)
	// AppendWalletTransaction inserts the entry and sets the wallet balance to
	// its BalanceAfter.
	AppendWalletTransaction(ctx context.Context, t WalletTransaction) error

	// ClaimIdempotencyKey records key -> receiptNo. If the key was claimed
	// before it returns the earlier receipt number and claimed == false.
	ClaimIdempotencyKey(ctx context.Context, tenantID, key, receiptNo string) (existing string, claimed bool, err error)
}

type LedgerStore interface {
	LedgerReader
	// InTx runs fn in one atomic transaction: committed when fn returns nil,
	// rolled back otherwise.
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ReceiptNumbers issues receipt identifiers. Uniqueness is the only hard requirement.
type ReceiptNumbers interface {
	ReceiptNo(now time.Time) string
	ConsolidatedNo(now time.Time) string
	NewID() string
}
