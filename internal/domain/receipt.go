package domain

import "time"

// ReceiptLine is one fee line covered by a receipt, with live figures.
type ReceiptLine struct {
	PaymentID    string
	ReceiptNo    string
	StudentFeeID string
	FeeName      string
	Amount       Money
	Status       PaymentStatus
	Method       PaymentMethod
	Outstanding  Money
	FeeStatus    FeeStatus
}

// Receipt is reconstructed on every read from FeePayment rows sharing a
// receipt number. It is never stored.
type Receipt struct {
	ReceiptNo    string
	Consolidated bool
	StudentID    string
	Date         time.Time
	Method       PaymentMethod
	Reference    string
	CollectedBy  string
	Lines        []ReceiptLine

	TotalBase         Money
	TotalDiscount     Money
	TotalTax          Money
	TotalPreviousDebt Money
	GrandTotal        Money
	TotalPaid         Money
	TotalRefunded     Money
	TotalOutstanding  Money
	AdvanceAmount     Money
	WalletBalance     Money
}

// TotalReceived is what the payer handed over: fee payments plus advance.
func (r Receipt) TotalReceived() Money {
	return r.TotalPaid + r.AdvanceAmount
}
