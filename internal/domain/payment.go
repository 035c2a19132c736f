package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSuccess   PaymentStatus = "SUCCESS"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Settled payments count towards collected money and may be reversed.
func (s PaymentStatus) Settled() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusCompleted
}

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodOnline       PaymentMethod = "ONLINE"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodCheque       PaymentMethod = "CHEQUE"
	MethodUPI          PaymentMethod = "UPI"
	MethodCard         PaymentMethod = "CARD"
	// MethodWallet marks fee payments funded from the student's advance balance.
	MethodWallet PaymentMethod = "WALLET"
)

var CollectableMethods = []PaymentMethod{MethodCash, MethodOnline, MethodBankTransfer, MethodCheque, MethodUPI, MethodCard}

func (m PaymentMethod) Collectable() bool {
	for _, c := range CollectableMethods {
		if m == c {
			return true
		}
	}
	return false
}

// FeePayment is money applied to exactly one StudentFee. Once settled it only
// ever moves to REFUNDED and is never deleted.
type FeePayment struct {
	ID                    string
	TenantID              string
	StudentID             string
	StudentFeeID          string
	Amount                Money
	Date                  time.Time
	Method                PaymentMethod
	Status                PaymentStatus
	ReceiptNo             string
	ConsolidatedReceiptNo *string
	Reference             string
	Remarks               string
	CollectedBy           string
	RefundReason          *string
	RefundedAt            *time.Time
}

// EffectiveReceiptNo is the number printed on the receipt this payment belongs to.
func (p FeePayment) EffectiveReceiptNo() string {
	if p.ConsolidatedReceiptNo != nil && *p.ConsolidatedReceiptNo != "" {
		return *p.ConsolidatedReceiptNo
	}
	return p.ReceiptNo
}

type PaymentsFilter struct {
	From    *time.Time
	To      *time.Time
	Methods []PaymentMethod
	// SettledOnly keeps SUCCESS and COMPLETED payments.
	SettledOnly bool
	StudentID   *string
}
