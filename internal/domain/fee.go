package domain

import (
	"fmt"
	"time"
)

type FeeStatus string

const (
	FeeStatusPending FeeStatus = "PENDING"
	FeeStatusPartial FeeStatus = "PARTIAL"
	FeeStatusPaid    FeeStatus = "PAID"
	FeeStatusOverdue FeeStatus = "OVERDUE"
)

// Open reports whether the status still expects money.
func (s FeeStatus) Open() bool {
	return s != FeeStatusPaid
}

type Frequency string

const (
	FrequencyOneTime   Frequency = "ONE_TIME"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyTerm      Frequency = "TERM"
	FrequencyAnnual    Frequency = "ANNUAL"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyOneTime, FrequencyMonthly, FrequencyQuarterly, FrequencyTerm, FrequencyAnnual:
		return true
	}
	return false
}

// FeeStructure is the template a StudentFee is assigned from.
type FeeStructure struct {
	ID                 string
	TenantID           string
	Name               string
	Amount             Money
	TaxRateBasisPoints int64
	Frequency          Frequency
	ClassID            *string
	CreatedAt          time.Time
}

// TaxFor returns the tax charged on amount under this structure's policy.
func (fs FeeStructure) TaxFor(amount Money) Money {
	if fs.TaxRateBasisPoints <= 0 {
		return 0
	}
	return amount.ApplyBasisPoints(fs.TaxRateBasisPoints)
}

// StudentFee is one billable obligation of a student. Status is never stored.
type StudentFee struct {
	ID             string
	TenantID       string
	StudentID      string
	FeeStructureID string
	Name           string

	Amount       Money
	Discount     Money
	TaxAmount    Money
	PreviousDebt Money
	PaidAmount   Money

	DueDate time.Time

	// Seq is the insertion order, used as allocation tie-break.
	Seq     int64
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (f StudentFee) PayableTotal() Money {
	return f.Amount + f.TaxAmount - f.Discount + f.PreviousDebt
}

func (f StudentFee) Outstanding() Money {
	return MaxMoney(0, f.PayableTotal()-f.PaidAmount)
}

// DeriveStatus is the one place fee status is computed. OVERDUE overlays
// PENDING and PARTIAL once now is past the due date.
func (f StudentFee) DeriveStatus(now time.Time) FeeStatus {
	if f.Outstanding() == 0 {
		return FeeStatusPaid
	}
	if !f.DueDate.IsZero() && now.After(f.DueDate) {
		return FeeStatusOverdue
	}
	if f.PaidAmount > 0 {
		return FeeStatusPartial
	}
	return FeeStatusPending
}

// ValidateAssignment rejects a fee line whose figures cannot form a sane
// payable total. Discounts are never clamped later on.
func (f StudentFee) ValidateAssignment() error {
	switch {
	case f.Amount < 0:
		return fmt.Errorf("%w: amount is negative", ErrInvalidAmount)
	case f.Discount < 0:
		return fmt.Errorf("%w: discount is negative", ErrInvalidAmount)
	case f.TaxAmount < 0:
		return fmt.Errorf("%w: tax is negative", ErrInvalidAmount)
	case f.PreviousDebt < 0:
		return fmt.Errorf("%w: previous debt is negative", ErrInvalidAmount)
	case f.PaidAmount < 0:
		return fmt.Errorf("%w: paid amount is negative", ErrInvalidAmount)
	}
	if f.Discount > f.Amount+f.TaxAmount+f.PreviousDebt {
		return fmt.Errorf("%w: discount %s, ceiling %s", ErrDiscountExceedsTotal, f.Discount, f.Amount+f.TaxAmount+f.PreviousDebt)
	}
	if f.PaidAmount > f.PayableTotal() {
		return fmt.Errorf("%w: paid amount exceeds payable total", ErrInvalidAmount)
	}
	return nil
}

// FeeLineView is a fee line as presented to callers.
type FeeLineView struct {
	StudentFee
	Payable     Money
	Outstanding Money
	Status      FeeStatus
}

func ViewFee(f StudentFee, now time.Time) FeeLineView {
	return FeeLineView{
		StudentFee:  f,
		Payable:     f.PayableTotal(),
		Outstanding: f.Outstanding(),
		Status:      f.DeriveStatus(now),
	}
}
