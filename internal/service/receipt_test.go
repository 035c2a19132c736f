package service

import (
	"context"
	"testing"

	"school-ledger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceipt_LookupByEveryIdentifier(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.feeLine(t, tenantA, "stu-1", domain.Major(300), day(5))
	b := e.feeLine(t, tenantA, "stu-1", domain.Major(500), day(15))

	res, err := e.collect.Collect(ctx, CollectRequest{
		TenantID:    tenantA,
		StudentID:   "stu-1",
		Amount:      domain.Major(600),
		FeeIDs:      []string{a.ID, b.ID},
		Method:      domain.MethodBankTransfer,
		Reference:   "TRX-991",
		CollectedBy: "bursar",
	})
	require.NoError(t, err)
	require.NotNil(t, res.ConsolidatedReceiptNo)

	rc, err := e.receipts.Receipt(ctx, tenantA, *res.ConsolidatedReceiptNo)
	require.NoError(t, err)
	assert.True(t, rc.Consolidated)
	assert.Equal(t, *res.ConsolidatedReceiptNo, rc.ReceiptNo)
	assert.Len(t, rc.Lines, 2)
	assert.Equal(t, domain.Major(600), rc.TotalPaid)
	assert.Equal(t, domain.Major(800), rc.GrandTotal)
	assert.Equal(t, domain.Major(200), rc.TotalOutstanding)
	assert.Equal(t, "TRX-991", rc.Reference)
	assert.Equal(t, "bursar", rc.CollectedBy)
	assert.Equal(t, domain.MethodBankTransfer, rc.Method)

	single, err := e.receipts.Receipt(ctx, tenantA, res.Lines[1].ReceiptNo)
	require.NoError(t, err)
	assert.False(t, single.Consolidated)
	assert.Equal(t, res.Lines[1].ReceiptNo, single.ReceiptNo)
	require.Len(t, single.Lines, 1)
	assert.Equal(t, domain.Major(300), single.TotalPaid)

	byID, err := e.receipts.Receipt(ctx, tenantA, res.Lines[0].PaymentID)
	require.NoError(t, err)
	assert.Equal(t, res.Lines[0].ReceiptNo, byID.ReceiptNo)

	_, err = e.receipts.Receipt(ctx, tenantA, "RCPT-nope")
	assert.ErrorIs(t, err, domain.ErrReceiptNotFound)
	_, err = e.receipts.Receipt(ctx, tenantB, *res.ConsolidatedReceiptNo)
	assert.ErrorIs(t, err, domain.ErrReceiptNotFound)
	_, err = e.receipts.Receipt(ctx, tenantA, "  ")
	assert.ErrorIs(t, err, domain.ErrReceiptNotFound)
}

func TestReceipt_OutstandingIsLive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.feeLine(t, tenantA, "stu-1", domain.Major(500), day(5))

	first, err := e.collect.Collect(ctx, CollectRequest{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(200), FeeIDs: []string{a.ID}})
	require.NoError(t, err)

	rc, err := e.receipts.Receipt(ctx, tenantA, first.ReceiptNo)
	require.NoError(t, err)
	assert.Equal(t, domain.Major(300), rc.TotalOutstanding)
	assert.Equal(t, domain.FeeStatusPartial, rc.Lines[0].FeeStatus)

	_, err = e.collect.Collect(ctx, CollectRequest{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(300), FeeIDs: []string{a.ID}})
	require.NoError(t, err)

	rc, err = e.receipts.Receipt(ctx, tenantA, first.ReceiptNo)
	require.NoError(t, err)
	assert.Zero(t, rc.TotalOutstanding)
	assert.Equal(t, domain.FeeStatusPaid, rc.Lines[0].FeeStatus)
	assert.Equal(t, domain.Major(200), rc.TotalPaid, "the receipt still shows what it collected")
}

func TestReceipt_CollectionThatWentEntirelyToWallet(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	line := e.feeLine(t, tenantA, "stu-1", domain.Major(100), day(5))

	_, err := e.collect.Collect(ctx, CollectRequest{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(100), FeeIDs: []string{line.ID}})
	require.NoError(t, err)
	res, err := e.collect.Collect(ctx, CollectRequest{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(50), FeeIDs: []string{line.ID}})
	require.NoError(t, err)
	require.NotNil(t, res.ConsolidatedReceiptNo)
	assert.Equal(t, domain.Major(50), res.AdvanceCredit)

	rc, err := e.receipts.Receipt(ctx, tenantA, res.ReceiptNo)
	require.NoError(t, err)
	assert.True(t, rc.Consolidated)
	assert.Equal(t, res.ReceiptNo, rc.ReceiptNo)
	assert.Equal(t, "stu-1", rc.StudentID)
	assert.Empty(t, rc.Lines)
	assert.Zero(t, rc.TotalPaid)
	assert.Equal(t, domain.Major(50), rc.AdvanceAmount)
	assert.Equal(t, domain.Major(50), rc.TotalReceived())
	assert.Equal(t, domain.Major(50), rc.WalletBalance)

	_, err = e.receipts.Receipt(ctx, tenantB, res.ReceiptNo)
	assert.ErrorIs(t, err, domain.ErrReceiptNotFound)

	out, err := e.reversal.RefundReceipt(ctx, tenantA, res.ReceiptNo, "paid twice")
	require.NoError(t, err)
	assert.Empty(t, out.Refunded)
	assert.Equal(t, domain.Major(50), out.AdvanceReversed)
	assert.Zero(t, out.WalletBalance)

	_, err = e.reversal.RefundReceipt(ctx, tenantA, res.ReceiptNo, "again")
	assert.ErrorIs(t, err, domain.ErrInvalidPaymentState)
	e.requireLedgerInvariants(t, tenantA, "stu-1")
}

func TestReceipt_UnknownNumber(t *testing.T) {
	e := newEnv(t)
	_, err := e.receipts.Receipt(context.Background(), tenantA, "CRCPT-404")
	assert.ErrorIs(t, err, domain.ErrReceiptNotFound)
}
