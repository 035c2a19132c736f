package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"school-ledger/internal/domain"
)

type ReceiptService struct {
	deps LedgerDeps
}

func NewReceiptService(deps LedgerDeps) *ReceiptService {
	return &ReceiptService{deps: deps.withDefaults()}
}

// Receipt rebuilds the receipt identified by a consolidated receipt number, a
// single receipt number or a raw payment id. Outstanding figures are live.
func (s *ReceiptService) Receipt(ctx context.Context, tenantID, receiptID string) (domain.Receipt, error) {
	if strings.TrimSpace(tenantID) == "" {
		return domain.Receipt{}, domain.ErrTenantRequired
	}
	receiptID = strings.TrimSpace(receiptID)
	if receiptID == "" {
		return domain.Receipt{}, domain.ErrReceiptNotFound
	}
	return buildReceipt(ctx, s.deps.Store, s.deps.Clock, tenantID, receiptID)
}

// receiptPayments resolves a receipt id to its payments: consolidated number
// first, then a single payment by receipt number or id.
func receiptPayments(ctx context.Context, r domain.LedgerReader, tenantID, receiptID string) ([]domain.FeePayment, bool, error) {
	payments, err := r.PaymentsByConsolidatedReceipt(ctx, tenantID, receiptID)
	if err != nil {
		return nil, false, err
	}
	if len(payments) > 0 {
		return payments, true, nil
	}

	p, err := r.PaymentByReceiptNoOrID(ctx, tenantID, receiptID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, false, fmt.Errorf("%w: %s", domain.ErrReceiptNotFound, receiptID)
	}
	if err != nil {
		return nil, false, err
	}
	return []domain.FeePayment{p}, false, nil
}

func buildReceipt(ctx context.Context, r domain.LedgerReader, clock domain.Clock, tenantID, receiptID string) (domain.Receipt, error) {
	payments, consolidated, err := receiptPayments(ctx, r, tenantID, receiptID)
	if errors.Is(err, domain.ErrReceiptNotFound) {
		return advanceOnlyReceipt(ctx, r, tenantID, receiptID)
	}
	if err != nil {
		return domain.Receipt{}, err
	}

	first := payments[0]
	rc := domain.Receipt{
		ReceiptNo:    first.EffectiveReceiptNo(),
		Consolidated: consolidated,
		StudentID:    first.StudentID,
		Date:         first.Date,
		Method:       first.Method,
		Reference:    first.Reference,
		CollectedBy:  first.CollectedBy,
	}
	if !consolidated {
		// a single payment looked up by id still prints its own number
		rc.ReceiptNo = first.ReceiptNo
	}

	feeIDs := make([]string, 0, len(payments))
	seen := map[string]bool{}
	for _, p := range payments {
		if !seen[p.StudentFeeID] {
			seen[p.StudentFeeID] = true
			feeIDs = append(feeIDs, p.StudentFeeID)
		}
	}
	fees, err := r.StudentFeesByIDs(ctx, tenantID, feeIDs)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("load receipt fee lines: %w", err)
	}
	byID := make(map[string]domain.StudentFee, len(fees))
	for _, f := range fees {
		byID[f.ID] = f
		rc.TotalBase += f.Amount
		rc.TotalDiscount += f.Discount
		rc.TotalTax += f.TaxAmount
		rc.TotalPreviousDebt += f.PreviousDebt
		rc.TotalOutstanding += f.Outstanding()
	}
	rc.GrandTotal = rc.TotalBase - rc.TotalDiscount + rc.TotalTax + rc.TotalPreviousDebt

	now := clock.Now()
	for _, p := range payments {
		rc.TotalPaid += p.Amount
		if p.Status == domain.PaymentStatusRefunded {
			rc.TotalRefunded += p.Amount
		}
		f := byID[p.StudentFeeID]
		rc.Lines = append(rc.Lines, domain.ReceiptLine{
			PaymentID:    p.ID,
			ReceiptNo:    p.ReceiptNo,
			StudentFeeID: p.StudentFeeID,
			FeeName:      f.Name,
			Amount:       p.Amount,
			Status:       p.Status,
			Method:       p.Method,
			Outstanding:  f.Outstanding(),
			FeeStatus:    f.DeriveStatus(now),
		})
	}

	txs, err := r.WalletTransactionsByReceipt(ctx, tenantID, rc.ReceiptNo)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("load receipt advance: %w", err)
	}
	for _, t := range txs {
		if t.Type == domain.WalletCredit {
			rc.AdvanceAmount += t.Amount
		}
	}

	w, err := r.Wallet(ctx, tenantID, rc.StudentID)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("load wallet: %w", err)
	}
	rc.WalletBalance = w.Balance

	return rc, nil
}

// advanceOnlyReceipt covers a collection whose whole amount went to the
// wallet: no payment rows exist, only credits tagged with the number.
func advanceOnlyReceipt(ctx context.Context, r domain.LedgerReader, tenantID, receiptNo string) (domain.Receipt, error) {
	credits, err := receiptCredits(ctx, r, tenantID, receiptNo)
	if err != nil {
		return domain.Receipt{}, err
	}

	rc := domain.Receipt{
		ReceiptNo:    receiptNo,
		Consolidated: true,
		StudentID:    credits[0].StudentID,
		Date:         credits[0].Date,
	}
	for _, t := range credits {
		rc.AdvanceAmount += t.Amount
	}

	w, err := r.Wallet(ctx, tenantID, rc.StudentID)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("load wallet: %w", err)
	}
	rc.WalletBalance = w.Balance
	return rc, nil
}

func receiptCredits(ctx context.Context, r domain.LedgerReader, tenantID, receiptNo string) ([]domain.WalletTransaction, error) {
	txs, err := r.WalletTransactionsByReceipt(ctx, tenantID, receiptNo)
	if err != nil {
		return nil, fmt.Errorf("load receipt advance: %w", err)
	}
	var credits []domain.WalletTransaction
	for _, t := range txs {
		if t.Type == domain.WalletCredit {
			credits = append(credits, t)
		}
	}
	if len(credits) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrReceiptNotFound, receiptNo)
	}
	return credits, nil
}
