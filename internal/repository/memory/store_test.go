package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"school-ledger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ domain.LedgerStore = (*Store)(nil)

func insertFee(t *testing.T, s *Store, id string, due time.Time) domain.StudentFee {
	t.Helper()
	var out domain.StudentFee
	require.NoError(t, s.InTx(context.Background(), func(tx domain.LedgerTx) error {
		f, err := tx.InsertStudentFee(context.Background(), domain.StudentFee{ID: id, TenantID: "t1", StudentID: "s1", Amount: 100, DueDate: due})
		out = f
		return err
	}))
	return out
}

func TestStore_RollbackDiscardsWrites(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	f := insertFee(t, s, "f1", time.Time{})

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx domain.LedgerTx) error {
		f.PaidAmount = 50
		if err := tx.UpdateStudentFeePaid(ctx, f); err != nil {
			return err
		}
		if _, err := tx.WalletForUpdate(ctx, "t1", "s1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.StudentFee(ctx, "t1", "f1")
	require.NoError(t, err)
	assert.Zero(t, got.PaidAmount)
	w, err := s.Wallet(ctx, "t1", "s1")
	require.NoError(t, err)
	assert.Empty(t, w.ID, "wallet created in a rolled back tx must not survive")
}

func TestStore_VersionGuard(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	stale := insertFee(t, s, "f1", time.Time{})

	require.NoError(t, s.InTx(ctx, func(tx domain.LedgerTx) error {
		fresh := stale
		fresh.PaidAmount = 10
		return tx.UpdateStudentFeePaid(ctx, fresh)
	}))

	err := s.InTx(ctx, func(tx domain.LedgerTx) error {
		stale.PaidAmount = 20
		return tx.UpdateStudentFeePaid(ctx, stale)
	})
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
}

func TestStore_FeeOrdering(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	insertFee(t, s, "undated", time.Time{})
	insertFee(t, s, "late", base.AddDate(0, 1, 0))
	insertFee(t, s, "early-1", base)
	insertFee(t, s, "early-2", base)

	fees, err := s.StudentFees(context.Background(), "t1", "s1")
	require.NoError(t, err)
	var ids []string
	for _, f := range fees {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []string{"early-1", "early-2", "late", "undated"}, ids)
}

func TestStore_ClaimIdempotencyKey(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	claim := func(tenant, key, receipt string) (string, bool) {
		var (
			existing string
			claimed  bool
		)
		require.NoError(t, s.InTx(ctx, func(tx domain.LedgerTx) error {
			var err error
			existing, claimed, err = tx.ClaimIdempotencyKey(ctx, tenant, key, receipt)
			return err
		}))
		return existing, claimed
	}

	_, ok := claim("t1", "k", "R1")
	assert.True(t, ok)
	existing, ok := claim("t1", "k", "R2")
	assert.False(t, ok)
	assert.Equal(t, "R1", existing)
	_, ok = claim("t2", "k", "R3")
	assert.True(t, ok)
}

func TestStore_DuplicateReceiptNo(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p := domain.FeePayment{ID: "p1", TenantID: "t1", ReceiptNo: "RCPT-1", Amount: 1}

	require.NoError(t, s.InTx(ctx, func(tx domain.LedgerTx) error { return tx.InsertFeePayment(ctx, p) }))
	p.ID = "p2"
	err := s.InTx(ctx, func(tx domain.LedgerTx) error { return tx.InsertFeePayment(ctx, p) })
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	p.TenantID = "t2"
	assert.NoError(t, s.InTx(ctx, func(tx domain.LedgerTx) error { return tx.InsertFeePayment(ctx, p) }))
}
