package repository

import (
	"context"
	"database/sql"
	"fmt"

	"school-ledger/internal/domain"
)

const feeStructureColumns = `id, tenant_id, name, amount, tax_rate_bp, frequency, class_id, created_at`

const studentFeeColumns = `id, seq, tenant_id, student_id, fee_structure_id, name, amount, discount, tax_amount, previous_debt, paid_amount, due_date, version, created_at, updated_at`

func scanFeeStructure(s scanner) (domain.FeeStructure, error) {
	var (
		fs      domain.FeeStructure
		amount  int64
		classID sql.NullString
	)
	if err := s.Scan(&fs.ID, &fs.TenantID, &fs.Name, &amount, &fs.TaxRateBasisPoints, &fs.Frequency, &classID, &fs.CreatedAt); err != nil {
		return domain.FeeStructure{}, err
	}
	fs.Amount = money(amount)
	fs.ClassID = stringPtr(classID)
	return fs, nil
}

func scanStudentFee(s scanner) (domain.StudentFee, error) {
	var (
		f                                         domain.StudentFee
		amount, discount, tax, previousDebt, paid int64
		due                                       sql.NullTime
	)
	if err := s.Scan(
		&f.ID,
		&f.Seq,
		&f.TenantID,
		&f.StudentID,
		&f.FeeStructureID,
		&f.Name,
		&amount,
		&discount,
		&tax,
		&previousDebt,
		&paid,
		&due,
		&f.Version,
		&f.CreatedAt,
		&f.UpdatedAt,
	); err != nil {
		return domain.StudentFee{}, err
	}
	f.Amount = money(amount)
	f.Discount = money(discount)
	f.TaxAmount = money(tax)
	f.PreviousDebt = money(previousDebt)
	f.PaidAmount = money(paid)
	if due.Valid {
		f.DueDate = due.Time
	}
	return f, nil
}

func (r queries) studentFees(ctx context.Context, query string, args ...any) ([]domain.StudentFee, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []domain.StudentFee
	for rows.Next() {
		f, err := scanStudentFee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// allocation order: oldest due date first, undated last, insertion order on ties
const feeOrder = ` ORDER BY due_date ASC NULLS LAST, seq ASC`

func (r queries) FeeStructure(ctx context.Context, tenantID, id string) (domain.FeeStructure, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+feeStructureColumns+` FROM fee_structures WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	fs, err := scanFeeStructure(row)
	if err != nil {
		return domain.FeeStructure{}, notFound(err, domain.ErrFeeStructureNotFound)
	}
	return fs, nil
}

func (r queries) FeeStructures(ctx context.Context, tenantID string) ([]domain.FeeStructure, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+feeStructureColumns+` FROM fee_structures WHERE tenant_id = $1 ORDER BY name, id`, tenantID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []domain.FeeStructure
	for rows.Next() {
		fs, err := scanFeeStructure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fs)
	}
	return out, mapError(rows.Err())
}

func (r queries) StructureAssignmentCount(ctx context.Context, tenantID, structureID string) (int64, error) {
	var n int64
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM student_fees WHERE tenant_id = $1 AND fee_structure_id = $2`, tenantID, structureID).Scan(&n)
	return n, mapError(err)
}

func (r queries) StudentFee(ctx context.Context, tenantID, id string) (domain.StudentFee, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+studentFeeColumns+` FROM student_fees WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	f, err := scanStudentFee(row)
	if err != nil {
		return domain.StudentFee{}, notFound(err, domain.ErrFeeNotFound)
	}
	return f, nil
}

func (r queries) StudentFees(ctx context.Context, tenantID, studentID string) ([]domain.StudentFee, error) {
	return r.studentFees(ctx, `SELECT `+studentFeeColumns+` FROM student_fees WHERE tenant_id = $1 AND student_id = $2`+feeOrder, tenantID, studentID)
}

func (r queries) StudentFeesByIDs(ctx context.Context, tenantID string, ids []string) ([]domain.StudentFee, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.studentFees(ctx, `SELECT `+studentFeeColumns+` FROM student_fees WHERE tenant_id = $1 AND id = ANY($2)`+feeOrder, tenantID, ids)
}

func (r queries) OpenStudentFees(ctx context.Context, tenantID string) ([]domain.StudentFee, error) {
	return r.studentFees(ctx, `SELECT `+studentFeeColumns+` FROM student_fees
		WHERE tenant_id = $1 AND paid_amount < amount + tax_amount - discount + previous_debt`+feeOrder, tenantID)
}

// StudentFeesForUpdate locks the lines in id order so concurrent collections
// over overlapping lines queue instead of deadlocking.
func (t *ledgerTx) StudentFeesForUpdate(ctx context.Context, tenantID, studentID string, ids []string) ([]domain.StudentFee, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	fees, err := t.studentFees(ctx, `SELECT `+studentFeeColumns+` FROM student_fees
		WHERE tenant_id = $1 AND student_id = $2 AND id = ANY($3)
		ORDER BY id
		FOR UPDATE`, tenantID, studentID, ids)
	if err != nil {
		return nil, err
	}
	return fees, nil
}

func (t *ledgerTx) StudentFeeForUpdate(ctx context.Context, tenantID, id string) (domain.StudentFee, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+studentFeeColumns+` FROM student_fees WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id)
	f, err := scanStudentFee(row)
	if err != nil {
		return domain.StudentFee{}, notFound(err, domain.ErrFeeNotFound)
	}
	return f, nil
}

func (t *ledgerTx) UpdateStudentFeePaid(ctx context.Context, fee domain.StudentFee) error {
	res, err := t.q.ExecContext(ctx, `UPDATE student_fees
		SET paid_amount = $1, version = version + 1, updated_at = $2
		WHERE tenant_id = $3 AND id = $4 AND version = $5`,
		int64(fee.PaidAmount), fee.UpdatedAt, fee.TenantID, fee.ID, fee.Version)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: fee line %s version %d", domain.ErrConcurrentModification, fee.ID, fee.Version)
	}
	return nil
}

func (t *ledgerTx) InsertStudentFee(ctx context.Context, fee domain.StudentFee) (domain.StudentFee, error) {
	err := t.q.QueryRowContext(ctx, `INSERT INTO student_fees
		(id, tenant_id, student_id, fee_structure_id, name, amount, discount, tax_amount, previous_debt, paid_amount, due_date, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13)
		RETURNING seq, version`,
		fee.ID,
		fee.TenantID,
		fee.StudentID,
		fee.FeeStructureID,
		fee.Name,
		int64(fee.Amount),
		int64(fee.Discount),
		int64(fee.TaxAmount),
		int64(fee.PreviousDebt),
		int64(fee.PaidAmount),
		timeArg(fee.DueDate),
		fee.CreatedAt,
		fee.UpdatedAt,
	).Scan(&fee.Seq, &fee.Version)
	if err != nil {
		return domain.StudentFee{}, mapError(err)
	}
	return fee, nil
}

func (t *ledgerTx) CreateFeeStructure(ctx context.Context, fs domain.FeeStructure) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO fee_structures (`+feeStructureColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		fs.ID, fs.TenantID, fs.Name, int64(fs.Amount), fs.TaxRateBasisPoints, string(fs.Frequency), nullString(fs.ClassID), fs.CreatedAt)
	return mapError(err)
}

func (t *ledgerTx) DeleteFeeStructure(ctx context.Context, tenantID, id string) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM fee_structures WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrFeeStructureInUse
		}
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrFeeStructureNotFound
	}
	return nil
}
