package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"school-ledger/internal/domain"

	"github.com/google/uuid"
)

const walletColumns = `id, tenant_id, student_id, balance, updated_at`

const walletTxColumns = `id, tenant_id, wallet_id, student_id, type, amount, balance_after, description, receipt_no, created_at`

func scanWallet(s scanner) (domain.Wallet, error) {
	var (
		w       domain.Wallet
		balance int64
	)
	if err := s.Scan(&w.ID, &w.TenantID, &w.StudentID, &balance, &w.UpdatedAt); err != nil {
		return domain.Wallet{}, err
	}
	w.Balance = money(balance)
	return w, nil
}

func scanWalletTx(s scanner) (domain.WalletTransaction, error) {
	var (
		t                    domain.WalletTransaction
		amount, balanceAfter int64
		receiptNo            sql.NullString
	)
	if err := s.Scan(&t.ID, &t.TenantID, &t.WalletID, &t.StudentID, &t.Type, &amount, &balanceAfter, &t.Description, &receiptNo, &t.Date); err != nil {
		return domain.WalletTransaction{}, err
	}
	t.Amount = money(amount)
	t.BalanceAfter = money(balanceAfter)
	t.ReceiptNo = stringPtr(receiptNo)
	return t, nil
}

func (r queries) walletTxs(ctx context.Context, query string, args ...any) ([]domain.WalletTransaction, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []domain.WalletTransaction
	for rows.Next() {
		t, err := scanWalletTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (r queries) Wallet(ctx context.Context, tenantID, studentID string) (domain.Wallet, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+walletColumns+` FROM wallets WHERE tenant_id = $1 AND student_id = $2`, tenantID, studentID)
	w, err := scanWallet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Wallet{TenantID: tenantID, StudentID: studentID}, nil
	}
	if err != nil {
		return domain.Wallet{}, mapError(err)
	}
	return w, nil
}

// WalletTransactions lists a student's entries, newest first.
func (r queries) WalletTransactions(ctx context.Context, tenantID, studentID string) ([]domain.WalletTransaction, error) {
	return r.walletTxs(ctx, `SELECT `+walletTxColumns+` FROM wallet_transactions
		WHERE tenant_id = $1 AND student_id = $2
		ORDER BY seq DESC`, tenantID, studentID)
}

func (r queries) WalletTransactionsByReceipt(ctx context.Context, tenantID, receiptNo string) ([]domain.WalletTransaction, error) {
	return r.walletTxs(ctx, `SELECT `+walletTxColumns+` FROM wallet_transactions
		WHERE tenant_id = $1 AND receipt_no = $2
		ORDER BY seq`, tenantID, receiptNo)
}

func (r queries) WalletsBelow(ctx context.Context, tenantID string, threshold domain.Money) ([]domain.Wallet, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+walletColumns+` FROM wallets
		WHERE tenant_id = $1 AND balance < $2
		ORDER BY balance, student_id`, tenantID, int64(threshold))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, mapError(rows.Err())
}

func (t *ledgerTx) WalletForUpdate(ctx context.Context, tenantID, studentID string) (domain.Wallet, error) {
	if _, err := t.q.ExecContext(ctx, `INSERT INTO wallets (id, tenant_id, student_id, balance, updated_at)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (tenant_id, student_id) DO NOTHING`,
		uuid.NewString(), tenantID, studentID, time.Now().UTC()); err != nil {
		return domain.Wallet{}, mapError(err)
	}
	row := t.q.QueryRowContext(ctx, `SELECT `+walletColumns+` FROM wallets WHERE tenant_id = $1 AND student_id = $2 FOR UPDATE`, tenantID, studentID)
	w, err := scanWallet(row)
	if err != nil {
		return domain.Wallet{}, mapError(err)
	}
	return w, nil
}

func (t *ledgerTx) AppendWalletTransaction(ctx context.Context, wt domain.WalletTransaction) error {
	if _, err := t.q.ExecContext(ctx, `INSERT INTO wallet_transactions (`+walletTxColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		wt.ID,
		wt.TenantID,
		wt.WalletID,
		wt.StudentID,
		string(wt.Type),
		int64(wt.Amount),
		int64(wt.BalanceAfter),
		wt.Description,
		nullString(wt.ReceiptNo),
		wt.Date,
	); err != nil {
		return mapError(err)
	}
	res, err := t.q.ExecContext(ctx, `UPDATE wallets SET balance = $1, updated_at = $2 WHERE id = $3 AND tenant_id = $4`,
		int64(wt.BalanceAfter), wt.Date, wt.WalletID, wt.TenantID)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

func (t *ledgerTx) ClaimIdempotencyKey(ctx context.Context, tenantID, key, receiptNo string) (string, bool, error) {
	res, err := t.q.ExecContext(ctx, `INSERT INTO idempotency_keys (tenant_id, key, receipt_no, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id, key) DO NOTHING`, tenantID, key, receiptNo)
	if err != nil {
		return "", false, mapError(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return "", false, err
	} else if n == 1 {
		return "", true, nil
	}

	var existing string
	if err := t.q.QueryRowContext(ctx, `SELECT receipt_no FROM idempotency_keys WHERE tenant_id = $1 AND key = $2`, tenantID, key).Scan(&existing); err != nil {
		return "", false, mapError(err)
	}
	return existing, false, nil
}
