package service

import (
	"context"
	"testing"

	"school-ledger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlerts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := NewAlertService(e.deps, domain.Major(50))

	e.feeLine(t, tenantA, "stu-1", domain.Major(100), day(-3))
	e.feeLine(t, tenantA, "stu-1", domain.Major(200), day(10))
	paid := e.feeLine(t, tenantA, "stu-2", domain.Major(40), day(10))
	e.feeLine(t, tenantA, "stu-3", domain.Major(500), day(10))
	e.feeLine(t, tenantB, "stu-9", domain.Major(999), day(10))

	_, err := e.collect.Collect(ctx, CollectRequest{TenantID: tenantA, StudentID: "stu-2", Amount: domain.Major(60), FeeIDs: []string{paid.ID}})
	require.NoError(t, err)
	_, err = e.wallet.Credit(ctx, WalletEntry{TenantID: tenantA, StudentID: "stu-4", Amount: domain.Major(500)})
	require.NoError(t, err)

	a, err := svc.Alerts(ctx, tenantA)
	require.NoError(t, err)
	assert.Equal(t, domain.Major(50), a.Threshold)

	require.Len(t, a.PendingFees, 2)
	assert.Equal(t, PendingFeeAlert{StudentID: "stu-3", Lines: 1, Outstanding: domain.Major(500)}, a.PendingFees[0])
	assert.Equal(t, PendingFeeAlert{StudentID: "stu-1", Lines: 2, Overdue: 1, Outstanding: domain.Major(300)}, a.PendingFees[1])

	require.Len(t, a.LowBalances, 1)
	assert.Equal(t, LowBalanceAlert{StudentID: "stu-2", Balance: domain.Major(20)}, a.LowBalances[0])
}

func TestAlerts_DefaultThreshold(t *testing.T) {
	e := newEnv(t)
	svc := NewAlertService(e.deps, 0)

	a, err := svc.Alerts(context.Background(), tenantA)
	require.NoError(t, err)
	assert.Equal(t, DefaultLowBalance, a.Threshold)
	assert.Empty(t, a.PendingFees)
	assert.Empty(t, a.LowBalances)

	_, err = svc.Alerts(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrTenantRequired)
}
