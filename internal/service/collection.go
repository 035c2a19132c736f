package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"school-ledger/internal/domain"

	"go.uber.org/zap"
)

// Notifier is told about committed collections. Failures are logged only.
type Notifier interface {
	NotifyPaymentCollected(ctx context.Context, tenantID, studentID, receiptNo string, amount domain.Money) error
}

type CollectRequest struct {
	TenantID    string
	StudentID   string
	Amount      domain.Money
	FeeIDs      []string
	Method      domain.PaymentMethod
	Reference   string
	Remarks     string
	CollectedBy string
	// IdempotencyKey makes a resubmitted request return the first result.
	IdempotencyKey string
}

type ApplyAdvanceRequest struct {
	TenantID    string
	StudentID   string
	Amount      domain.Money
	FeeIDs      []string
	CollectedBy string
}

type LineResult struct {
	StudentFeeID string           `json:"student_fee_id"`
	FeeName      string           `json:"fee_name"`
	PaymentID    string           `json:"payment_id,omitempty"`
	ReceiptNo    string           `json:"receipt_no,omitempty"`
	Outstanding  domain.Money     `json:"outstanding_before"`
	Applied      domain.Money     `json:"applied"`
	Remaining    domain.Money     `json:"outstanding_after"`
	Status       domain.FeeStatus `json:"status"`
}

type CollectionResult struct {
	ReceiptNo             string       `json:"receipt_no"`
	ConsolidatedReceiptNo *string      `json:"consolidated_receipt_no"`
	StudentID             string       `json:"student_id"`
	Date                  time.Time    `json:"date"`
	Amount                domain.Money `json:"amount"`
	Applied               domain.Money `json:"applied"`
	AdvanceCredit         domain.Money `json:"advance_credit"`
	WalletDebit           domain.Money `json:"wallet_debit"`
	WalletBalance         domain.Money `json:"wallet_balance"`
	Lines                 []LineResult `json:"lines"`
	Replayed              bool         `json:"replayed"`
}

type CollectionService struct {
	deps     LedgerDeps
	notifier Notifier
}

func NewCollectionService(deps LedgerDeps, notifier Notifier) *CollectionService {
	return &CollectionService{deps: deps.withDefaults(), notifier: notifier}
}

// Collect allocates req.Amount over the targeted fee lines and credits any
// excess to the student's wallet, all in one transaction.
func (s *CollectionService) Collect(ctx context.Context, req CollectRequest) (*CollectionResult, error) {
	if err := requireTenantStudent(req.TenantID, req.StudentID); err != nil {
		return nil, err
	}
	if len(req.FeeIDs) == 0 {
		return nil, domain.ErrInsufficientAllocationTarget
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", domain.ErrInvalidAmount)
	}
	if req.Method == "" {
		req.Method = domain.MethodCash
	}
	if !req.Method.Collectable() {
		return nil, fmt.Errorf("%w: payment method %q", domain.ErrInvalidInput, req.Method)
	}
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	var (
		res      *CollectionResult
		replayOf string
	)
	err := withRetry(ctx, s.deps, "collect", func() error {
		res, replayOf = nil, ""
		return s.deps.Store.InTx(ctx, func(tx domain.LedgerTx) error {
			r, replay, err := s.collect(ctx, tx, req)
			if err != nil {
				return err
			}
			res, replayOf = r, replay
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if replayOf != "" {
		s.deps.Logger.Info("collection replayed",
			zap.String("tenant_id", req.TenantID),
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("receipt_no", replayOf),
		)
		return s.replay(ctx, req.TenantID, replayOf)
	}

	s.deps.Logger.Info("payment collected",
		zap.String("tenant_id", req.TenantID),
		zap.String("student_id", req.StudentID),
		zap.String("receipt_no", res.ReceiptNo),
		zap.Stringer("amount", res.Amount),
		zap.Stringer("advance", res.AdvanceCredit),
		zap.Int("lines", len(res.Lines)),
	)
	s.notify(ctx, req.TenantID, res)
	return res, nil
}

func (s *CollectionService) collect(ctx context.Context, tx domain.LedgerTx, req CollectRequest) (*CollectionResult, string, error) {
	fees, err := lockTargetFees(ctx, tx, req.TenantID, req.StudentID, req.FeeIDs)
	if err != nil {
		return nil, "", err
	}

	now := s.deps.Clock.Now()
	allocs, overflow := Allocate(fees, req.Amount)

	paid := 0
	for _, a := range allocs {
		if a.Applied > 0 {
			paid++
		}
	}

	receiptNos := make([]string, len(allocs))
	for i, a := range allocs {
		if a.Applied > 0 {
			receiptNos[i] = s.deps.Numbers.ReceiptNo(now)
		}
	}
	var consolidated *string
	if paid >= 2 || overflow > 0 {
		consolidated = strPtr(s.deps.Numbers.ConsolidatedNo(now))
	}
	effective := ""
	if consolidated != nil {
		effective = *consolidated
	} else {
		for _, no := range receiptNos {
			if no != "" {
				effective = no
				break
			}
		}
	}

	if req.IdempotencyKey != "" {
		existing, claimed, err := tx.ClaimIdempotencyKey(ctx, req.TenantID, req.IdempotencyKey, effective)
		if err != nil {
			return nil, "", fmt.Errorf("claim idempotency key: %w", err)
		}
		if !claimed {
			return nil, existing, nil
		}
	}

	res := &CollectionResult{
		ReceiptNo:             effective,
		ConsolidatedReceiptNo: consolidated,
		StudentID:             req.StudentID,
		Date:                  now,
		Amount:                req.Amount,
		AdvanceCredit:         overflow,
	}

	for i, a := range allocs {
		line := LineResult{
			StudentFeeID: a.Fee.ID,
			FeeName:      a.Fee.Name,
			Outstanding:  a.Outstanding,
			Applied:      a.Applied,
			Remaining:    a.Outstanding - a.Applied,
		}
		fee := a.Fee
		if a.Applied > 0 {
			fee.PaidAmount += a.Applied
			fee.UpdatedAt = now
			if err := tx.UpdateStudentFeePaid(ctx, fee); err != nil {
				return nil, "", fmt.Errorf("update fee line %s: %w", fee.ID, err)
			}

			p := domain.FeePayment{
				ID:                    s.deps.Numbers.NewID(),
				TenantID:              req.TenantID,
				StudentID:             req.StudentID,
				StudentFeeID:          fee.ID,
				Amount:                a.Applied,
				Date:                  now,
				Method:                req.Method,
				Status:                domain.PaymentStatusCompleted,
				ReceiptNo:             receiptNos[i],
				ConsolidatedReceiptNo: consolidated,
				Reference:             req.Reference,
				Remarks:               req.Remarks,
				CollectedBy:           req.CollectedBy,
			}
			if err := tx.InsertFeePayment(ctx, p); err != nil {
				return nil, "", fmt.Errorf("insert payment: %w", err)
			}
			line.PaymentID = p.ID
			line.ReceiptNo = p.ReceiptNo
			res.Applied += a.Applied
		}
		line.Status = fee.DeriveStatus(now)
		res.Lines = append(res.Lines, line)
	}

	if overflow > 0 {
		t, err := postWalletEntry(ctx, tx, s.deps, domain.WalletCredit, WalletEntry{
			TenantID:    req.TenantID,
			StudentID:   req.StudentID,
			Amount:      overflow,
			Description: fmt.Sprintf("Advance from receipt %s", effective),
			ReceiptNo:   strPtr(effective),
		})
		if err != nil {
			return nil, "", err
		}
		res.WalletBalance = t.BalanceAfter
	} else {
		w, err := tx.Wallet(ctx, req.TenantID, req.StudentID)
		if err != nil {
			return nil, "", err
		}
		res.WalletBalance = w.Balance
	}

	return res, "", nil
}

// ApplyAdvance pays fee lines out of the student's wallet. Only the amount the
// lines actually absorb is debited.
func (s *CollectionService) ApplyAdvance(ctx context.Context, req ApplyAdvanceRequest) (*CollectionResult, error) {
	if err := requireTenantStudent(req.TenantID, req.StudentID); err != nil {
		return nil, err
	}
	if len(req.FeeIDs) == 0 {
		return nil, domain.ErrInsufficientAllocationTarget
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", domain.ErrInvalidAmount)
	}

	var res *CollectionResult
	err := withRetry(ctx, s.deps, "apply_advance", func() error {
		return s.deps.Store.InTx(ctx, func(tx domain.LedgerTx) error {
			r, err := s.applyAdvance(ctx, tx, req)
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

	s.deps.Logger.Info("advance applied",
		zap.String("tenant_id", req.TenantID),
		zap.String("student_id", req.StudentID),
		zap.String("receipt_no", res.ReceiptNo),
		zap.Stringer("debited", res.WalletDebit),
	)
	s.notify(ctx, req.TenantID, res)
	return res, nil
}

func (s *CollectionService) applyAdvance(ctx context.Context, tx domain.LedgerTx, req ApplyAdvanceRequest) (*CollectionResult, error) {
	fees, err := lockTargetFees(ctx, tx, req.TenantID, req.StudentID, req.FeeIDs)
	if err != nil {
		return nil, err
	}

	w, err := tx.WalletForUpdate(ctx, req.TenantID, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	if req.Amount > w.Balance {
		return nil, fmt.Errorf("%w: balance %s, requested %s", domain.ErrInsufficientBalance, w.Balance, req.Amount)
	}

	now := s.deps.Clock.Now()
	allocs, _ := Allocate(fees, req.Amount)
	applied := AppliedTotal(allocs)
	if applied == 0 {
		return nil, fmt.Errorf("%w: targeted fee lines are already paid", domain.ErrInsufficientAllocationTarget)
	}

	paid := 0
	for _, a := range allocs {
		if a.Applied > 0 {
			paid++
		}
	}
	var consolidated *string
	if paid >= 2 {
		consolidated = strPtr(s.deps.Numbers.ConsolidatedNo(now))
	}

	res := &CollectionResult{
		ConsolidatedReceiptNo: consolidated,
		StudentID:             req.StudentID,
		Date:                  now,
		Amount:                req.Amount,
	}
	for _, a := range allocs {
		line := LineResult{
			StudentFeeID: a.Fee.ID,
			FeeName:      a.Fee.Name,
			Outstanding:  a.Outstanding,
			Applied:      a.Applied,
			Remaining:    a.Outstanding - a.Applied,
		}
		fee := a.Fee
		if a.Applied > 0 {
			fee.PaidAmount += a.Applied
			fee.UpdatedAt = now
			if err := tx.UpdateStudentFeePaid(ctx, fee); err != nil {
				return nil, fmt.Errorf("update fee line %s: %w", fee.ID, err)
			}
			p := domain.FeePayment{
				ID:                    s.deps.Numbers.NewID(),
				TenantID:              req.TenantID,
				StudentID:             req.StudentID,
				StudentFeeID:          fee.ID,
				Amount:                a.Applied,
				Date:                  now,
				Method:                domain.MethodWallet,
				Status:                domain.PaymentStatusCompleted,
				ReceiptNo:             s.deps.Numbers.ReceiptNo(now),
				ConsolidatedReceiptNo: consolidated,
				Remarks:               "Paid from advance balance",
				CollectedBy:           req.CollectedBy,
			}
			if err := tx.InsertFeePayment(ctx, p); err != nil {
				return nil, fmt.Errorf("insert payment: %w", err)
			}
			if res.ReceiptNo == "" {
				res.ReceiptNo = p.EffectiveReceiptNo()
			}
			line.PaymentID = p.ID
			line.ReceiptNo = p.ReceiptNo
			res.Applied += a.Applied
		}
		line.Status = fee.DeriveStatus(now)
		res.Lines = append(res.Lines, line)
	}

	t, err := postWalletEntry(ctx, tx, s.deps, domain.WalletDebit, WalletEntry{
		TenantID:    req.TenantID,
		StudentID:   req.StudentID,
		Amount:      applied,
		Description: fmt.Sprintf("Applied to receipt %s", res.ReceiptNo),
		ReceiptNo:   strPtr(res.ReceiptNo),
	})
	if err != nil {
		return nil, err
	}
	res.WalletDebit = applied
	res.WalletBalance = t.BalanceAfter
	return res, nil
}

// lockTargetFees loads and locks the requested lines of one student. Every id
// must resolve; duplicates are ignored.
func lockTargetFees(ctx context.Context, tx domain.LedgerTx, tenantID, studentID string, ids []string) ([]domain.StudentFee, error) {
	unique := make([]string, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil, domain.ErrInsufficientAllocationTarget
	}

	fees, err := tx.StudentFeesForUpdate(ctx, tenantID, studentID, unique)
	if err != nil {
		return nil, fmt.Errorf("lock fee lines: %w", err)
	}
	if len(fees) != len(unique) {
		found := map[string]bool{}
		for _, f := range fees {
			found[f.ID] = true
		}
		for _, id := range unique {
			if !found[id] {
				return nil, fmt.Errorf("%w: %s", domain.ErrFeeNotFound, id)
			}
		}
	}
	return fees, nil
}

// replay rebuilds the result of an earlier collection from stored rows.
func (s *CollectionService) replay(ctx context.Context, tenantID, receiptNo string) (*CollectionResult, error) {
	res := &CollectionResult{ReceiptNo: receiptNo, Replayed: true}

	rc, err := buildReceipt(ctx, s.deps.Store, s.deps.Clock, tenantID, receiptNo)
	if err != nil {
		return nil, err
	}
	res.StudentID = rc.StudentID
	res.Date = rc.Date
	res.Applied = rc.TotalPaid
	res.AdvanceCredit = rc.AdvanceAmount
	res.Amount = rc.TotalReceived()
	res.WalletBalance = rc.WalletBalance
	if rc.Consolidated {
		res.ConsolidatedReceiptNo = strPtr(rc.ReceiptNo)
	}
	for _, l := range rc.Lines {
		res.Lines = append(res.Lines, LineResult{
			StudentFeeID: l.StudentFeeID,
			FeeName:      l.FeeName,
			PaymentID:    l.PaymentID,
			ReceiptNo:    l.ReceiptNo,
			Applied:      l.Amount,
			Remaining:    l.Outstanding,
			Status:       l.FeeStatus,
		})
	}
	return res, nil
}

func (s *CollectionService) notify(ctx context.Context, tenantID string, res *CollectionResult) {
	if s.notifier == nil || res == nil {
		return
	}
	if err := s.notifier.NotifyPaymentCollected(ctx, tenantID, res.StudentID, res.ReceiptNo, res.Amount); err != nil {
		s.deps.Logger.Warn("payment notification failed", zap.Error(err), zap.String("receipt_no", res.ReceiptNo))
	}
}
