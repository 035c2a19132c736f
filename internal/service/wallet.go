package service

import (
	"context"
	"fmt"
	"strings"

	"school-ledger/internal/domain"

	"go.uber.org/zap"
)

type WalletEntry struct {
	TenantID    string
	StudentID   string
	Amount      domain.Money
	Description string
	ReceiptNo   *string
}

type WalletStatement struct {
	Wallet       domain.Wallet
	Transactions []domain.WalletTransaction
}

// Reconciliation compares the stored balance against the ledger it came from.
type Reconciliation struct {
	StudentID string
	Balance   domain.Money
	LedgerSum domain.Money
	Drift     domain.Money
}

func (r Reconciliation) Consistent() bool { return r.Drift == 0 }

type WalletService struct {
	deps LedgerDeps
}

func NewWalletService(deps LedgerDeps) *WalletService {
	return &WalletService{deps: deps.withDefaults()}
}

func (s *WalletService) Credit(ctx context.Context, e WalletEntry) (domain.WalletTransaction, error) {
	return s.post(ctx, domain.WalletCredit, e)
}

// Debit fails with ErrInsufficientBalance when the amount exceeds the balance.
func (s *WalletService) Debit(ctx context.Context, e WalletEntry) (domain.WalletTransaction, error) {
	return s.post(ctx, domain.WalletDebit, e)
}

func (s *WalletService) post(ctx context.Context, typ domain.WalletTxType, e WalletEntry) (domain.WalletTransaction, error) {
	if err := requireTenantStudent(e.TenantID, e.StudentID); err != nil {
		return domain.WalletTransaction{}, err
	}
	if !e.Amount.IsPositive() {
		return domain.WalletTransaction{}, fmt.Errorf("%w: wallet amount must be positive", domain.ErrInvalidAmount)
	}
	if strings.TrimSpace(e.Description) == "" {
		e.Description = fmt.Sprintf("Manual %s", strings.ToLower(string(typ)))
	}

	var out domain.WalletTransaction
	err := withRetry(ctx, s.deps, "wallet."+strings.ToLower(string(typ)), func() error {
		return s.deps.Store.InTx(ctx, func(tx domain.LedgerTx) error {
			t, err := postWalletEntry(ctx, tx, s.deps, typ, e)
			if err != nil {
				return err
			}
			out = t
			return nil
		})
	})
	if err != nil {
		return domain.WalletTransaction{}, err
	}

	s.deps.Logger.Info("wallet entry posted",
		zap.String("tenant_id", e.TenantID),
		zap.String("student_id", e.StudentID),
		zap.String("type", string(typ)),
		zap.Stringer("amount", out.Amount),
		zap.Stringer("balance_after", out.BalanceAfter),
	)
	return out, nil
}

// postWalletEntry locks the wallet and appends one entry inside tx. It is the
// only path that moves a wallet balance.
func postWalletEntry(ctx context.Context, tx domain.LedgerTx, deps LedgerDeps, typ domain.WalletTxType, e WalletEntry) (domain.WalletTransaction, error) {
	w, err := tx.WalletForUpdate(ctx, e.TenantID, e.StudentID)
	if err != nil {
		return domain.WalletTransaction{}, fmt.Errorf("lock wallet: %w", err)
	}

	balance := w.Balance
	switch typ {
	case domain.WalletCredit:
		balance += e.Amount
	case domain.WalletDebit:
		if e.Amount > w.Balance {
			return domain.WalletTransaction{}, fmt.Errorf("%w: balance %s, requested %s", domain.ErrInsufficientBalance, w.Balance, e.Amount)
		}
		balance -= e.Amount
	default:
		return domain.WalletTransaction{}, fmt.Errorf("%w: wallet entry type %q", domain.ErrInvalidInput, typ)
	}

	t := domain.WalletTransaction{
		ID:           deps.Numbers.NewID(),
		TenantID:     e.TenantID,
		WalletID:     w.ID,
		StudentID:    e.StudentID,
		Type:         typ,
		Amount:       e.Amount,
		BalanceAfter: balance,
		Description:  e.Description,
		ReceiptNo:    e.ReceiptNo,
		Date:         deps.Clock.Now(),
	}
	if err := tx.AppendWalletTransaction(ctx, t); err != nil {
		return domain.WalletTransaction{}, fmt.Errorf("append wallet transaction: %w", err)
	}
	return t, nil
}

func (s *WalletService) Balance(ctx context.Context, tenantID, studentID string) (domain.Money, error) {
	if err := requireTenantStudent(tenantID, studentID); err != nil {
		return 0, err
	}
	w, err := s.deps.Store.Wallet(ctx, tenantID, studentID)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

// Statement returns the wallet with its transactions, newest first.
func (s *WalletService) Statement(ctx context.Context, tenantID, studentID string) (WalletStatement, error) {
	if err := requireTenantStudent(tenantID, studentID); err != nil {
		return WalletStatement{}, err
	}
	w, err := s.deps.Store.Wallet(ctx, tenantID, studentID)
	if err != nil {
		return WalletStatement{}, err
	}
	txs, err := s.deps.Store.WalletTransactions(ctx, tenantID, studentID)
	if err != nil {
		return WalletStatement{}, err
	}
	return WalletStatement{Wallet: w, Transactions: txs}, nil
}

func (s *WalletService) Reconcile(ctx context.Context, tenantID, studentID string) (Reconciliation, error) {
	st, err := s.Statement(ctx, tenantID, studentID)
	if err != nil {
		return Reconciliation{}, err
	}
	sum := domain.LedgerSum(st.Transactions)
	r := Reconciliation{
		StudentID: studentID,
		Balance:   st.Wallet.Balance,
		LedgerSum: sum,
		Drift:     st.Wallet.Balance - sum,
	}
	if !r.Consistent() {
		s.deps.Logger.Error("wallet drift detected",
			zap.String("tenant_id", tenantID),
			zap.String("student_id", studentID),
			zap.Stringer("balance", r.Balance),
			zap.Stringer("ledger_sum", r.LedgerSum),
		)
	}
	return r, nil
}
