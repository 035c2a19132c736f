package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"school-ledger/internal/domain"
)

const paymentColumns = `p.id, p.tenant_id, p.student_id, p.student_fee_id, p.amount, p.payment_date, p.method, p.status, p.receipt_no, p.consolidated_receipt_no, p.reference, p.remarks, p.collected_by, p.refund_reason, p.refunded_at`

func scanPayment(s scanner) (domain.FeePayment, error) {
	var (
		p            domain.FeePayment
		amount       int64
		consolidated sql.NullString
		refundReason sql.NullString
		refundedAt   sql.NullTime
	)
	if err := s.Scan(
		&p.ID,
		&p.TenantID,
		&p.StudentID,
		&p.StudentFeeID,
		&amount,
		&p.Date,
		&p.Method,
		&p.Status,
		&p.ReceiptNo,
		&consolidated,
		&p.Reference,
		&p.Remarks,
		&p.CollectedBy,
		&refundReason,
		&refundedAt,
	); err != nil {
		return domain.FeePayment{}, err
	}
	p.Amount = money(amount)
	p.ConsolidatedReceiptNo = stringPtr(consolidated)
	p.RefundReason = stringPtr(refundReason)
	p.RefundedAt = timePtr(refundedAt)
	return p, nil
}

// paymentsWhere builds the WHERE clause for a payments filter. Placeholders
// start at $start; the returned int is the next free one.
func paymentsWhere(tenantID string, f domain.PaymentsFilter, start int) (string, []any, int) {
	where := []string{fmt.Sprintf("p.tenant_id = $%d", start)}
	args := []any{tenantID}
	i := start + 1

	if f.From != nil {
		where = append(where, fmt.Sprintf("p.payment_date >= $%d", i))
		args = append(args, *f.From)
		i++
	}
	if f.To != nil {
		where = append(where, fmt.Sprintf("p.payment_date <= $%d", i))
		args = append(args, *f.To)
		i++
	}
	if f.StudentID != nil && *f.StudentID != "" {
		where = append(where, fmt.Sprintf("p.student_id = $%d", i))
		args = append(args, *f.StudentID)
		i++
	}
	if len(f.Methods) > 0 {
		methods := make([]string, 0, len(f.Methods))
		for _, m := range f.Methods {
			methods = append(methods, string(m))
		}
		where = append(where, fmt.Sprintf("p.method = ANY($%d)", i))
		args = append(args, methods)
		i++
	}
	if f.SettledOnly {
		where = append(where, fmt.Sprintf("p.status IN ('%s', '%s')", domain.PaymentStatusSuccess, domain.PaymentStatusCompleted))
	}

	return strings.Join(where, " AND "), args, i
}

func (r queries) payments(ctx context.Context, query string, args ...any) ([]domain.FeePayment, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []domain.FeePayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (r queries) Payment(ctx context.Context, tenantID, id string) (domain.FeePayment, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM fee_payments p WHERE p.tenant_id = $1 AND p.id = $2`, tenantID, id)
	p, err := scanPayment(row)
	if err != nil {
		return domain.FeePayment{}, notFound(err, domain.ErrPaymentNotFound)
	}
	return p, nil
}

func (r queries) PaymentsByConsolidatedReceipt(ctx context.Context, tenantID, receiptNo string) ([]domain.FeePayment, error) {
	return r.payments(ctx, `SELECT `+paymentColumns+` FROM fee_payments p
		WHERE p.tenant_id = $1 AND p.consolidated_receipt_no = $2
		ORDER BY p.payment_date, p.receipt_no`, tenantID, receiptNo)
}

func (r queries) PaymentByReceiptNoOrID(ctx context.Context, tenantID, key string) (domain.FeePayment, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM fee_payments p
		WHERE p.tenant_id = $1 AND (p.receipt_no = $2 OR p.id = $2)
		ORDER BY (p.receipt_no = $2) DESC
		LIMIT 1`, tenantID, key)
	p, err := scanPayment(row)
	if err != nil {
		return domain.FeePayment{}, notFound(err, domain.ErrPaymentNotFound)
	}
	return p, nil
}

func (r queries) Payments(ctx context.Context, tenantID string, f domain.PaymentsFilter) ([]domain.FeePayment, error) {
	where, args, _ := paymentsWhere(tenantID, f, 1)
	return r.payments(ctx, `SELECT `+paymentColumns+` FROM fee_payments p WHERE `+where+` ORDER BY p.payment_date DESC, p.receipt_no`, args...)
}

func (r queries) CountPayments(ctx context.Context, tenantID string, f domain.PaymentsFilter) (int64, error) {
	where, args, _ := paymentsWhere(tenantID, f, 1)
	var n int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM fee_payments p WHERE `+where, args...).Scan(&n); err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func (t *ledgerTx) InsertFeePayment(ctx context.Context, p domain.FeePayment) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO fee_payments
		(id, tenant_id, student_id, student_fee_id, amount, payment_date, method, status, receipt_no, consolidated_receipt_no, reference, remarks, collected_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID,
		p.TenantID,
		p.StudentID,
		p.StudentFeeID,
		int64(p.Amount),
		p.Date,
		string(p.Method),
		string(p.Status),
		p.ReceiptNo,
		nullString(p.ConsolidatedReceiptNo),
		p.Reference,
		p.Remarks,
		p.CollectedBy,
	)
	return mapError(err)
}

func (t *ledgerTx) PaymentForUpdate(ctx context.Context, tenantID, id string) (domain.FeePayment, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM fee_payments p WHERE p.tenant_id = $1 AND p.id = $2 FOR UPDATE`, tenantID, id)
	p, err := scanPayment(row)
	if err != nil {
		return domain.FeePayment{}, notFound(err, domain.ErrPaymentNotFound)
	}
	return p, nil
}

func (t *ledgerTx) UpdatePaymentStatus(ctx context.Context, p domain.FeePayment) error {
	var refundedAt sql.NullTime
	if p.RefundedAt != nil {
		refundedAt = sql.NullTime{Time: *p.RefundedAt, Valid: true}
	}
	res, err := t.q.ExecContext(ctx, `UPDATE fee_payments SET status = $1, refund_reason = $2, refunded_at = $3 WHERE tenant_id = $4 AND id = $5`,
		string(p.Status), nullString(p.RefundReason), refundedAt, p.TenantID, p.ID)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}
