package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"school-ledger/internal/domain"

	"go.uber.org/zap"
)

type RefundResult struct {
	ReceiptNo       string
	Refunded        []domain.FeePayment
	RefundedAmount  domain.Money
	AdvanceReversed domain.Money
	WalletBalance   domain.Money
}

type ReversalService struct {
	deps LedgerDeps
}

func NewReversalService(deps LedgerDeps) *ReversalService {
	return &ReversalService{deps: deps.withDefaults()}
}

// RefundPayment marks a settled payment REFUNDED and gives the amount back to
// its fee line. Wallet-funded payments go back to the wallet.
func (s *ReversalService) RefundPayment(ctx context.Context, tenantID, paymentID, reason string) (domain.FeePayment, error) {
	if strings.TrimSpace(tenantID) == "" {
		return domain.FeePayment{}, domain.ErrTenantRequired
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.FeePayment{}, domain.ErrReasonRequired
	}

	var out domain.FeePayment
	err := withRetry(ctx, s.deps, "refund_payment", func() error {
		return s.deps.Store.InTx(ctx, func(tx domain.LedgerTx) error {
			p, err := tx.PaymentForUpdate(ctx, tenantID, paymentID)
			if err != nil {
				return err
			}
			p, err = s.reverse(ctx, tx, p, reason)
			if err != nil {
				return err
			}
			if p.Method == domain.MethodWallet {
				if _, err := postWalletEntry(ctx, tx, s.deps, domain.WalletCredit, WalletEntry{
					TenantID:    tenantID,
					StudentID:   p.StudentID,
					Amount:      p.Amount,
					Description: fmt.Sprintf("Refund of wallet payment %s", p.ReceiptNo),
				}); err != nil {
					return err
				}
			}
			out = p
			return nil
		})
	})
	if err != nil {
		return domain.FeePayment{}, err
	}

	s.deps.Logger.Info("payment refunded",
		zap.String("tenant_id", tenantID),
		zap.String("payment_id", out.ID),
		zap.Stringer("amount", out.Amount),
	)
	return out, nil
}

// MovePaymentToAdvance reverses a payment and parks its amount in the wallet,
// correlated with the payment's receipt number.
func (s *ReversalService) MovePaymentToAdvance(ctx context.Context, tenantID, paymentID, actor string) (domain.FeePayment, domain.WalletTransaction, error) {
	if strings.TrimSpace(tenantID) == "" {
		return domain.FeePayment{}, domain.WalletTransaction{}, domain.ErrTenantRequired
	}

	var (
		out    domain.FeePayment
		credit domain.WalletTransaction
	)
	err := withRetry(ctx, s.deps, "move_to_advance", func() error {
		return s.deps.Store.InTx(ctx, func(tx domain.LedgerTx) error {
			p, err := tx.PaymentForUpdate(ctx, tenantID, paymentID)
			if err != nil {
				return err
			}
			reason := "Moved to advance"
			if actor != "" {
				reason += " by " + actor
			}
			p, err = s.reverse(ctx, tx, p, reason)
			if err != nil {
				return err
			}
			t, err := postWalletEntry(ctx, tx, s.deps, domain.WalletCredit, WalletEntry{
				TenantID:    tenantID,
				StudentID:   p.StudentID,
				Amount:      p.Amount,
				Description: fmt.Sprintf("Payment %s moved to advance", p.ReceiptNo),
			})
			if err != nil {
				return err
			}
			out, credit = p, t
			return nil
		})
	})
	if err != nil {
		return domain.FeePayment{}, domain.WalletTransaction{}, err
	}

	s.deps.Logger.Info("payment moved to advance",
		zap.String("tenant_id", tenantID),
		zap.String("payment_id", out.ID),
		zap.Stringer("amount", out.Amount),
	)
	return out, credit, nil
}

// RefundReceipt refunds every settled payment of a receipt and takes back the
// advance it generated. Nothing is written if the advance was already spent.
func (s *ReversalService) RefundReceipt(ctx context.Context, tenantID, receiptID, reason string) (*RefundResult, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, domain.ErrTenantRequired
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrReasonRequired
	}

	var res *RefundResult
	err := withRetry(ctx, s.deps, "refund_receipt", func() error {
		return s.deps.Store.InTx(ctx, func(tx domain.LedgerTx) error {
			r, err := s.refundReceipt(ctx, tx, tenantID, strings.TrimSpace(receiptID), reason)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.Info("receipt refunded",
		zap.String("tenant_id", tenantID),
		zap.String("receipt_no", res.ReceiptNo),
		zap.Int("payments", len(res.Refunded)),
		zap.Stringer("advance_reversed", res.AdvanceReversed),
	)
	return res, nil
}

func (s *ReversalService) refundReceipt(ctx context.Context, tx domain.LedgerTx, tenantID, receiptID, reason string) (*RefundResult, error) {
	var receiptNo, studentID string
	payments, consolidated, err := receiptPayments(ctx, tx, tenantID, receiptID)
	switch {
	case err == nil:
		receiptNo = payments[0].ReceiptNo
		if consolidated {
			receiptNo = payments[0].EffectiveReceiptNo()
		}
		studentID = payments[0].StudentID
	case errors.Is(err, domain.ErrReceiptNotFound):
		// the whole collection went to the wallet
		credits, err := receiptCredits(ctx, tx, tenantID, receiptID)
		if err != nil {
			return nil, err
		}
		receiptNo, studentID = receiptID, credits[0].StudentID
	default:
		return nil, err
	}

	res := &RefundResult{ReceiptNo: receiptNo}
	var walletBack domain.Money

	for _, listed := range payments {
		if !listed.Status.Settled() {
			continue
		}
		p, err := tx.PaymentForUpdate(ctx, tenantID, listed.ID)
		if err != nil {
			return nil, err
		}
		p, err = s.reverse(ctx, tx, p, reason)
		if err != nil {
			return nil, err
		}
		if p.Method == domain.MethodWallet {
			walletBack += p.Amount
		}
		res.Refunded = append(res.Refunded, p)
		res.RefundedAmount += p.Amount
	}

	txs, err := tx.WalletTransactionsByReceipt(ctx, tenantID, receiptNo)
	if err != nil {
		return nil, err
	}
	var advance domain.Money
	for _, t := range txs {
		advance += t.Signed()
	}
	if advance < 0 {
		// the receipt consumed wallet money rather than producing it
		advance = 0
	}

	if len(res.Refunded) == 0 && advance == 0 {
		return nil, fmt.Errorf("%w: receipt %s has nothing left to refund", domain.ErrInvalidPaymentState, receiptNo)
	}

	if walletBack > 0 {
		if _, err := postWalletEntry(ctx, tx, s.deps, domain.WalletCredit, WalletEntry{
			TenantID:    tenantID,
			StudentID:   studentID,
			Amount:      walletBack,
			Description: fmt.Sprintf("Refund of wallet payments on receipt %s", receiptNo),
		}); err != nil {
			return nil, err
		}
	}
	if advance > 0 {
		if _, err := postWalletEntry(ctx, tx, s.deps, domain.WalletDebit, WalletEntry{
			TenantID:    tenantID,
			StudentID:   studentID,
			Amount:      advance,
			Description: fmt.Sprintf("Advance reversed, receipt %s refunded: %s", receiptNo, reason),
			ReceiptNo:   strPtr(receiptNo),
		}); err != nil {
			return nil, err
		}
		res.AdvanceReversed = advance
	}

	w, err := tx.Wallet(ctx, tenantID, studentID)
	if err != nil {
		return nil, err
	}
	res.WalletBalance = w.Balance
	return res, nil
}

// reverse flips a settled payment to REFUNDED and takes its amount off the fee line.
func (s *ReversalService) reverse(ctx context.Context, tx domain.LedgerTx, p domain.FeePayment, reason string) (domain.FeePayment, error) {
	if !p.Status.Settled() {
		return domain.FeePayment{}, fmt.Errorf("%w: payment %s is %s", domain.ErrInvalidPaymentState, p.ID, p.Status)
	}

	fee, err := tx.StudentFeeForUpdate(ctx, p.TenantID, p.StudentFeeID)
	if err != nil {
		return domain.FeePayment{}, err
	}
	if fee.PaidAmount < p.Amount {
		return domain.FeePayment{}, fmt.Errorf("%w: fee line %s paid %s is below payment %s", domain.ErrInvalidPaymentState, fee.ID, fee.PaidAmount, p.Amount)
	}

	now := s.deps.Clock.Now()
	fee.PaidAmount -= p.Amount
	fee.UpdatedAt = now
	if err := tx.UpdateStudentFeePaid(ctx, fee); err != nil {
		return domain.FeePayment{}, err
	}

	p.Status = domain.PaymentStatusRefunded
	p.RefundReason = strPtr(reason)
	p.RefundedAt = &now
	if err := tx.UpdatePaymentStatus(ctx, p); err != nil {
		return domain.FeePayment{}, err
	}
	return p, nil
}
