package service

import (
	"context"
	"testing"

	"school-ledger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWallet_CreditDebit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	bal, err := e.wallet.Balance(ctx, tenantA, "stu-1")
	require.NoError(t, err)
	assert.Zero(t, bal, "missing wallet reads as zero")

	c, err := e.wallet.Credit(ctx, WalletEntry{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(300), Description: "Top up"})
	require.NoError(t, err)
	assert.Equal(t, domain.Major(300), c.BalanceAfter)

	d, err := e.wallet.Debit(ctx, WalletEntry{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(120)})
	require.NoError(t, err)
	assert.Equal(t, domain.Major(180), d.BalanceAfter)
	assert.Equal(t, "Manual debit", d.Description)

	_, err = e.wallet.Debit(ctx, WalletEntry{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(181)})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	bal, err = e.wallet.Balance(ctx, tenantA, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Major(180), bal)

	st, err := e.wallet.Statement(ctx, tenantA, "stu-1")
	require.NoError(t, err)
	assert.Len(t, st.Transactions, 2)

	e.requireLedgerInvariants(t, tenantA, "stu-1")
}

func TestWallet_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.wallet.Credit(ctx, WalletEntry{TenantID: tenantA, StudentID: "stu-1"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = e.wallet.Credit(ctx, WalletEntry{TenantID: tenantA, StudentID: "stu-1", Amount: -5})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = e.wallet.Credit(ctx, WalletEntry{StudentID: "stu-1", Amount: 5})
	assert.ErrorIs(t, err, domain.ErrTenantRequired)

	_, err = e.wallet.Debit(ctx, WalletEntry{TenantID: tenantA, Amount: 5})
	assert.ErrorIs(t, err, domain.ErrStudentRequired)
}

func TestWallet_TenantsAreIsolated(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.wallet.Credit(ctx, WalletEntry{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(50)})
	require.NoError(t, err)

	bal, err := e.wallet.Balance(ctx, tenantB, "stu-1")
	require.NoError(t, err)
	assert.Zero(t, bal)

	_, err = e.wallet.Debit(ctx, WalletEntry{TenantID: tenantB, StudentID: "stu-1", Amount: domain.Major(1)})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestWallet_ReconcileHoldsAfterMixedActivity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.feeLine(t, tenantA, "stu-1", domain.Major(100), day(3))
	b := e.feeLine(t, tenantA, "stu-1", domain.Major(100), day(6))

	_, err := e.collect.Collect(ctx, CollectRequest{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(250), FeeIDs: []string{a.ID}})
	require.NoError(t, err)
	_, err = e.collect.ApplyAdvance(ctx, ApplyAdvanceRequest{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(100), FeeIDs: []string{b.ID}})
	require.NoError(t, err)
	_, err = e.wallet.Debit(ctx, WalletEntry{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(25)})
	require.NoError(t, err)

	r, err := e.wallet.Reconcile(ctx, tenantA, "stu-1")
	require.NoError(t, err)
	assert.True(t, r.Consistent())
	assert.Equal(t, domain.Major(25), r.Balance)
	assert.Equal(t, r.Balance, r.LedgerSum)
}
