package rest

import (
	"time"

	"school-ledger/internal/domain"
	"school-ledger/internal/service"
)

type FeeStructureDTO struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Amount             domain.Money     `json:"amount"`
	TaxRateBasisPoints int64            `json:"tax_rate_bp"`
	Frequency          domain.Frequency `json:"frequency"`
	ClassID            *string          `json:"class_id"`
	CreatedAt          time.Time        `json:"created_at"`
}

func toFeeStructureDTO(fs domain.FeeStructure) FeeStructureDTO {
	return FeeStructureDTO{
		ID:                 fs.ID,
		Name:               fs.Name,
		Amount:             fs.Amount,
		TaxRateBasisPoints: fs.TaxRateBasisPoints,
		Frequency:          fs.Frequency,
		ClassID:            fs.ClassID,
		CreatedAt:          fs.CreatedAt,
	}
}

type FeeLineDTO struct {
	ID             string           `json:"id"`
	StudentID      string           `json:"student_id"`
	FeeStructureID string           `json:"fee_structure_id"`
	Name           string           `json:"name"`
	Amount         domain.Money     `json:"amount"`
	Discount       domain.Money     `json:"discount"`
	TaxAmount      domain.Money     `json:"tax_amount"`
	PreviousDebt   domain.Money     `json:"previous_debt"`
	Payable        domain.Money     `json:"payable"`
	PaidAmount     domain.Money     `json:"paid_amount"`
	Outstanding    domain.Money     `json:"outstanding"`
	Status         domain.FeeStatus `json:"status"`
	DueDate        *string          `json:"due_date"`
}

func toFeeLineDTO(v domain.FeeLineView) FeeLineDTO {
	out := FeeLineDTO{
		ID:             v.ID,
		StudentID:      v.StudentID,
		FeeStructureID: v.FeeStructureID,
		Name:           v.Name,
		Amount:         v.Amount,
		Discount:       v.Discount,
		TaxAmount:      v.TaxAmount,
		PreviousDebt:   v.PreviousDebt,
		Payable:        v.Payable,
		PaidAmount:     v.PaidAmount,
		Outstanding:    v.Outstanding,
		Status:         v.Status,
	}
	if !v.DueDate.IsZero() {
		d := v.DueDate.Format(dateLayout)
		out.DueDate = &d
	}
	return out
}

type PaymentDTO struct {
	ID                    string               `json:"id"`
	StudentID             string               `json:"student_id"`
	StudentFeeID          string               `json:"student_fee_id"`
	Amount                domain.Money         `json:"amount"`
	Date                  time.Time            `json:"date"`
	Method                domain.PaymentMethod `json:"method"`
	Status                domain.PaymentStatus `json:"status"`
	ReceiptNo             string               `json:"receipt_no"`
	ConsolidatedReceiptNo *string              `json:"consolidated_receipt_no"`
	Reference             string               `json:"reference,omitempty"`
	Remarks               string               `json:"remarks,omitempty"`
	CollectedBy           string               `json:"collected_by,omitempty"`
	RefundReason          *string              `json:"refund_reason,omitempty"`
	RefundedAt            *time.Time           `json:"refunded_at,omitempty"`
}

func toPaymentDTO(p domain.FeePayment) PaymentDTO {
	return PaymentDTO{
		ID:                    p.ID,
		StudentID:             p.StudentID,
		StudentFeeID:          p.StudentFeeID,
		Amount:                p.Amount,
		Date:                  p.Date,
		Method:                p.Method,
		Status:                p.Status,
		ReceiptNo:             p.ReceiptNo,
		ConsolidatedReceiptNo: p.ConsolidatedReceiptNo,
		Reference:             p.Reference,
		Remarks:               p.Remarks,
		CollectedBy:           p.CollectedBy,
		RefundReason:          p.RefundReason,
		RefundedAt:            p.RefundedAt,
	}
}

type WalletTxDTO struct {
	ID           string              `json:"id"`
	Type         domain.WalletTxType `json:"type"`
	Amount       domain.Money        `json:"amount"`
	BalanceAfter domain.Money        `json:"balance_after"`
	Description  string              `json:"description"`
	ReceiptNo    *string             `json:"receipt_no"`
	Date         time.Time           `json:"date"`
}

func toWalletTxDTO(t domain.WalletTransaction) WalletTxDTO {
	return WalletTxDTO{
		ID:           t.ID,
		Type:         t.Type,
		Amount:       t.Amount,
		BalanceAfter: t.BalanceAfter,
		Description:  t.Description,
		ReceiptNo:    t.ReceiptNo,
		Date:         t.Date,
	}
}

type WalletDTO struct {
	StudentID    string        `json:"student_id"`
	Balance      domain.Money  `json:"balance"`
	UpdatedAt    *time.Time    `json:"updated_at"`
	Transactions []WalletTxDTO `json:"transactions"`
}

func toWalletDTO(studentID string, st service.WalletStatement) WalletDTO {
	out := WalletDTO{
		StudentID:    studentID,
		Balance:      st.Wallet.Balance,
		Transactions: make([]WalletTxDTO, 0, len(st.Transactions)),
	}
	if !st.Wallet.UpdatedAt.IsZero() {
		t := st.Wallet.UpdatedAt
		out.UpdatedAt = &t
	}
	for _, t := range st.Transactions {
		out.Transactions = append(out.Transactions, toWalletTxDTO(t))
	}
	return out
}

type ReconciliationDTO struct {
	StudentID  string       `json:"student_id"`
	Balance    domain.Money `json:"balance"`
	LedgerSum  domain.Money `json:"ledger_sum"`
	Drift      domain.Money `json:"drift"`
	Consistent bool         `json:"consistent"`
}

type ReceiptLineDTO struct {
	PaymentID    string               `json:"payment_id"`
	ReceiptNo    string               `json:"receipt_no"`
	StudentFeeID string               `json:"student_fee_id"`
	FeeName      string               `json:"fee_name"`
	Amount       domain.Money         `json:"amount"`
	Status       domain.PaymentStatus `json:"status"`
	Method       domain.PaymentMethod `json:"method"`
	Outstanding  domain.Money         `json:"outstanding"`
	FeeStatus    domain.FeeStatus     `json:"fee_status"`
}

type ReceiptDTO struct {
	ReceiptNo         string               `json:"receipt_no"`
	Consolidated      bool                 `json:"consolidated"`
	StudentID         string               `json:"student_id"`
	Date              time.Time            `json:"date"`
	Method            domain.PaymentMethod `json:"method"`
	Reference         string               `json:"reference,omitempty"`
	CollectedBy       string               `json:"collected_by,omitempty"`
	Lines             []ReceiptLineDTO     `json:"lines"`
	TotalBase         domain.Money         `json:"total_base"`
	TotalDiscount     domain.Money         `json:"total_discount"`
	TotalTax          domain.Money         `json:"total_tax"`
	TotalPreviousDebt domain.Money         `json:"total_previous_debt"`
	GrandTotal        domain.Money         `json:"grand_total"`
	TotalPaid         domain.Money         `json:"total_paid"`
	TotalRefunded     domain.Money         `json:"total_refunded"`
	TotalOutstanding  domain.Money         `json:"total_outstanding"`
	AdvanceAmount     domain.Money         `json:"advance_amount"`
	TotalReceived     domain.Money         `json:"total_received"`
	WalletBalance     domain.Money         `json:"wallet_balance"`
}

func toReceiptDTO(r domain.Receipt) ReceiptDTO {
	out := ReceiptDTO{
		ReceiptNo:         r.ReceiptNo,
		Consolidated:      r.Consolidated,
		StudentID:         r.StudentID,
		Date:              r.Date,
		Method:            r.Method,
		Reference:         r.Reference,
		CollectedBy:       r.CollectedBy,
		Lines:             make([]ReceiptLineDTO, 0, len(r.Lines)),
		TotalBase:         r.TotalBase,
		TotalDiscount:     r.TotalDiscount,
		TotalTax:          r.TotalTax,
		TotalPreviousDebt: r.TotalPreviousDebt,
		GrandTotal:        r.GrandTotal,
		TotalPaid:         r.TotalPaid,
		TotalRefunded:     r.TotalRefunded,
		TotalOutstanding:  r.TotalOutstanding,
		AdvanceAmount:     r.AdvanceAmount,
		TotalReceived:     r.TotalReceived(),
		WalletBalance:     r.WalletBalance,
	}
	for _, l := range r.Lines {
		out.Lines = append(out.Lines, ReceiptLineDTO{
			PaymentID:    l.PaymentID,
			ReceiptNo:    l.ReceiptNo,
			StudentFeeID: l.StudentFeeID,
			FeeName:      l.FeeName,
			Amount:       l.Amount,
			Status:       l.Status,
			Method:       l.Method,
			Outstanding:  l.Outstanding,
			FeeStatus:    l.FeeStatus,
		})
	}
	return out
}

type RefundDTO struct {
	ReceiptNo       string       `json:"receipt_no"`
	Refunded        []PaymentDTO `json:"refunded"`
	RefundedAmount  domain.Money `json:"refunded_amount"`
	AdvanceReversed domain.Money `json:"advance_reversed"`
	WalletBalance   domain.Money `json:"wallet_balance"`
}

func toRefundDTO(r *service.RefundResult) RefundDTO {
	out := RefundDTO{
		ReceiptNo:       r.ReceiptNo,
		Refunded:        make([]PaymentDTO, 0, len(r.Refunded)),
		RefundedAmount:  r.RefundedAmount,
		AdvanceReversed: r.AdvanceReversed,
		WalletBalance:   r.WalletBalance,
	}
	for _, p := range r.Refunded {
		out.Refunded = append(out.Refunded, toPaymentDTO(p))
	}
	return out
}
