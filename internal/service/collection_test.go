package service

import (
	"context"
	"sync"
	"testing"

	"school-ledger/internal/domain"
	"school-ledger/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCollect_ExactPayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	line := e.feeLine(t, tenantA, "stu-1", domain.Major(1000), day(30))

	res, err := e.collect.Collect(ctx, CollectRequest{
		TenantID:  tenantA,
		StudentID: "stu-1",
		Amount:    domain.Major(1000),
		FeeIDs:    []string{line.ID},
		Method:    domain.MethodCash,
	})
	require.NoError(t, err)

	f := e.fee(t, tenantA, line.ID)
	assert.Equal(t, domain.Major(1000), f.PaidAmount)
	assert.Equal(t, domain.Money(0), f.Outstanding())
	assert.Equal(t, domain.FeeStatusPaid, f.DeriveStatus(e.clock.Now()))

	assert.Equal(t, domain.Money(0), res.AdvanceCredit)
	assert.Nil(t, res.ConsolidatedReceiptNo, "single line without advance keeps its own receipt number")
	require.Len(t, res.Lines, 1)
	assert.Equal(t, res.Lines[0].ReceiptNo, res.ReceiptNo)

	bal, err := e.wallet.Balance(ctx, tenantA, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Money(0), bal)

	assert.Len(t, e.notifier.calls, 1)
	e.requireLedgerInvariants(t, tenantA, "stu-1")
}

func TestCollect_OverpaymentGoesToWallet(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	line := e.feeLine(t, tenantA, "stu-1", domain.Major(1000), day(30))

	res, err := e.collect.Collect(ctx, CollectRequest{
		TenantID:  tenantA,
		StudentID: "stu-1",
		Amount:    domain.Major(1200),
		FeeIDs:    []string{line.ID},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.Major(1000), e.fee(t, tenantA, line.ID).PaidAmount)
	assert.Equal(t, domain.Major(200), res.AdvanceCredit)
	assert.Equal(t, domain.Major(200), res.WalletBalance)
	require.NotNil(t, res.ConsolidatedReceiptNo)
	assert.Equal(t, *res.ConsolidatedReceiptNo, res.ReceiptNo)

	rc, err := e.receipts.Receipt(ctx, tenantA, res.ReceiptNo)
	require.NoError(t, err)
	assert.Equal(t, domain.Major(200), rc.AdvanceAmount)
	assert.Equal(t, domain.Major(1000), rc.TotalPaid)
	assert.Equal(t, domain.Major(1200), rc.TotalReceived())
	assert.Equal(t, domain.Major(200), rc.WalletBalance)

	e.requireLedgerInvariants(t, tenantA, "stu-1")
}

func TestCollect_MultiLineOldestFirst(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	later := e.feeLine(t, tenantA, "stu-1", domain.Major(500), day(60))
	earlier := e.feeLine(t, tenantA, "stu-1", domain.Major(300), day(30))

	res, err := e.collect.Collect(ctx, CollectRequest{
		TenantID:  tenantA,
		StudentID: "stu-1",
		Amount:    domain.Major(600),
		FeeIDs:    []string{later.ID, earlier.ID},
	})
	require.NoError(t, err)

	first := e.fee(t, tenantA, earlier.ID)
	second := e.fee(t, tenantA, later.ID)
	assert.Equal(t, domain.Major(300), first.PaidAmount)
	assert.Equal(t, domain.FeeStatusPaid, first.DeriveStatus(e.clock.Now()))
	assert.Equal(t, domain.Major(300), second.PaidAmount)
	assert.Equal(t, domain.Major(200), second.Outstanding())
	assert.Equal(t, domain.FeeStatusPartial, second.DeriveStatus(e.clock.Now()))
	assert.Equal(t, domain.Money(0), res.AdvanceCredit)

	require.NotNil(t, res.ConsolidatedReceiptNo)
	require.Len(t, res.Lines, 2)
	assert.Equal(t, earlier.ID, res.Lines[0].StudentFeeID)
	assert.NotEqual(t, res.Lines[0].ReceiptNo, res.Lines[1].ReceiptNo)

	payments, err := e.store.PaymentsByConsolidatedReceipt(ctx, tenantA, *res.ConsolidatedReceiptNo)
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	e.requireLedgerInvariants(t, tenantA, "stu-1")
}

func TestCollect_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	line := e.feeLine(t, tenantA, "stu-1", domain.Major(100), day(10))
	other := e.feeLine(t, tenantA, "stu-2", domain.Major(100), day(10))
	foreign := e.feeLine(t, tenantB, "stu-1", domain.Major(100), day(10))

	tests := []struct {
		name string
		req  CollectRequest
		want error
	}{
		{name: "no targets", req: CollectRequest{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(1)}, want: domain.ErrInsufficientAllocationTarget},
		{name: "zero amount", req: CollectRequest{TenantID: tenantA, StudentID: "stu-1", FeeIDs: []string{line.ID}}, want: domain.ErrInvalidAmount},
		{name: "negative amount", req: CollectRequest{TenantID: tenantA, StudentID: "stu-1", Amount: -1, FeeIDs: []string{line.ID}}, want: domain.ErrInvalidAmount},
		{name: "missing tenant", req: CollectRequest{StudentID: "stu-1", Amount: 1, FeeIDs: []string{line.ID}}, want: domain.ErrTenantRequired},
		{name: "other student's line", req: CollectRequest{TenantID: tenantA, StudentID: "stu-1", Amount: 1, FeeIDs: []string{other.ID}}, want: domain.ErrFeeNotFound},
		{name: "other tenant's line", req: CollectRequest{TenantID: tenantA, StudentID: "stu-1", Amount: 1, FeeIDs: []string{foreign.ID}}, want: domain.ErrFeeNotFound},
		{name: "wallet is not a collection method", req: CollectRequest{TenantID: tenantA, StudentID: "stu-1", Amount: 1, FeeIDs: []string{line.ID}, Method: domain.MethodWallet}, want: domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.collect.Collect(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, domain.Money(0), e.fee(t, tenantA, line.ID).PaidAmount)
	assert.Empty(t, e.notifier.calls)
}

func TestCollect_FailureLeavesNoPartialState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	line := e.feeLine(t, tenantA, "stu-1", domain.Major(100), day(10))

	_, err := e.collect.Collect(ctx, CollectRequest{
		TenantID:  tenantA,
		StudentID: "stu-1",
		Amount:    domain.Major(500),
		FeeIDs:    []string{line.ID, "missing"},
	})
	require.ErrorIs(t, err, domain.ErrFeeNotFound)

	assert.Equal(t, domain.Money(0), e.fee(t, tenantA, line.ID).PaidAmount)
	n, err := e.store.CountPayments(ctx, tenantA, domain.PaymentsFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
	bal, err := e.wallet.Balance(ctx, tenantA, "stu-1")
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestCollect_Conservation(t *testing.T) {
	amounts := []domain.Money{1, domain.Major(250), domain.Major(799), domain.Major(800), domain.Major(801), domain.MustMoney("1234.56")}

	for _, amount := range amounts {
		t.Run(amount.String(), func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			a := e.feeLine(t, tenantA, "stu-1", domain.Major(300), day(5))
			b := e.feeLine(t, tenantA, "stu-1", domain.Major(500), day(20))
			outstanding := a.Outstanding + b.Outstanding

			res, err := e.collect.Collect(ctx, CollectRequest{
				TenantID:  tenantA,
				StudentID: "stu-1",
				Amount:    amount,
				FeeIDs:    []string{a.ID, b.ID},
			})
			require.NoError(t, err)

			if amount <= outstanding {
				assert.Equal(t, amount, res.Applied)
				assert.Zero(t, res.AdvanceCredit)
			} else {
				assert.Equal(t, outstanding, res.Applied)
				assert.Equal(t, amount-outstanding, res.AdvanceCredit)
			}
			assert.Equal(t, amount, res.Applied+res.AdvanceCredit)

			rc, err := e.receipts.Receipt(ctx, tenantA, res.ReceiptNo)
			require.NoError(t, err)
			assert.Equal(t, res.Applied, rc.TotalPaid)
			assert.Equal(t, domain.MaxMoney(0, amount-outstanding), rc.AdvanceAmount)

			e.requireLedgerInvariants(t, tenantA, "stu-1")
		})
	}
}

func TestCollect_Deterministic(t *testing.T) {
	run := func() []domain.Money {
		e := newEnv(t)
		ids := []string{
			e.feeLine(t, tenantA, "stu-1", domain.Major(200), day(10)).ID,
			e.feeLine(t, tenantA, "stu-1", domain.Major(200), day(10)).ID,
			e.feeLine(t, tenantA, "stu-1", domain.Major(200), day(3)).ID,
			e.feeLine(t, tenantA, "stu-1", domain.Major(200), day(40)).ID,
		}
		res, err := e.collect.Collect(context.Background(), CollectRequest{
			TenantID:  tenantA,
			StudentID: "stu-1",
			Amount:    domain.Major(500),
			FeeIDs:    ids,
		})
		require.NoError(t, err)
		var applied []domain.Money
		for _, id := range ids {
			applied = append(applied, domain.Money(0))
			for _, l := range res.Lines {
				if l.StudentFeeID == id {
					applied[len(applied)-1] = l.Applied
				}
			}
		}
		return applied
	}

	first := run()
	assert.Equal(t, []domain.Money{domain.Major(200), domain.Major(100), domain.Major(200), 0}, first)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, run())
	}
}

func TestCollect_IdempotentReplay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	line := e.feeLine(t, tenantA, "stu-1", domain.Major(1000), day(30))

	req := CollectRequest{
		TenantID:       tenantA,
		StudentID:      "stu-1",
		Amount:         domain.Major(1200),
		FeeIDs:         []string{line.ID},
		IdempotencyKey: "form-7f3a",
	}
	first, err := e.collect.Collect(ctx, req)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := e.collect.Collect(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.ReceiptNo, second.ReceiptNo)
	assert.Equal(t, first.Applied, second.Applied)
	assert.Equal(t, first.AdvanceCredit, second.AdvanceCredit)

	assert.Equal(t, domain.Major(1000), e.fee(t, tenantA, line.ID).PaidAmount)
	n, err := e.store.CountPayments(ctx, tenantA, domain.PaymentsFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	bal, err := e.wallet.Balance(ctx, tenantA, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Major(200), bal)
	assert.Len(t, e.notifier.calls, 1, "replays are not announced")

	// the same key in another tenant is independent
	other := e.feeLine(t, tenantB, "stu-1", domain.Major(1000), day(30))
	req.TenantID, req.FeeIDs = tenantB, []string{other.ID}
	third, err := e.collect.Collect(ctx, req)
	require.NoError(t, err)
	assert.False(t, third.Replayed)
}

func TestCollect_ReplayOfAdvanceOnlyCollection(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	line := e.feeLine(t, tenantA, "stu-1", domain.Major(100), day(30))
	_, err := e.collect.Collect(ctx, CollectRequest{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(100), FeeIDs: []string{line.ID}})
	require.NoError(t, err)

	req := CollectRequest{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(40), FeeIDs: []string{line.ID}, IdempotencyKey: "k1"}
	first, err := e.collect.Collect(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.Major(40), first.AdvanceCredit)
	assert.Zero(t, first.Applied)

	again, err := e.collect.Collect(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, domain.Major(40), again.AdvanceCredit)
	assert.Equal(t, domain.Major(40), again.WalletBalance)
}

func TestCollect_RetriesConcurrentModification(t *testing.T) {
	store := &flakyStore{LedgerStore: memory.NewStore()}
	deps := LedgerDeps{Store: store, Clock: &testClock{now: baseTime}, Numbers: &seqNumbers{}, Logger: zap.NewNop(), MaxRetries: 3}
	fees := NewFeeService(LedgerDeps{Store: store.LedgerStore, Clock: deps.Clock, Numbers: deps.Numbers})
	svc := NewCollectionService(deps, nil)
	ctx := context.Background()

	fs, err := fees.CreateStructure(ctx, CreateStructureInput{TenantID: tenantA, Name: "Bus", Amount: domain.Major(50)})
	require.NoError(t, err)
	line, err := fees.AssignFee(ctx, AssignFeeInput{TenantID: tenantA, StudentID: "stu-1", StructureID: fs.ID})
	require.NoError(t, err)

	store.failures.Store(2)
	res, err := svc.Collect(ctx, CollectRequest{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(50), FeeIDs: []string{line.ID}})
	require.NoError(t, err)
	assert.Equal(t, domain.Major(50), res.Applied)
	assert.Equal(t, int64(3), store.calls.Load())

	store.calls.Store(0)
	store.failures.Store(10)
	_, err = svc.Collect(ctx, CollectRequest{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(5), FeeIDs: []string{line.ID}})
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.Equal(t, int64(3), store.calls.Load())
}

func TestCollect_ConcurrentCollectionsNeverOverpay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	line := e.feeLine(t, tenantA, "stu-1", domain.Major(1000), day(30))

	var wg sync.WaitGroup
	errs := make(chan error, 25)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.collect.Collect(ctx, CollectRequest{
				TenantID:  tenantA,
				StudentID: "stu-1",
				Amount:    domain.Major(70),
				FeeIDs:    []string{line.ID},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	f := e.fee(t, tenantA, line.ID)
	assert.Equal(t, domain.Major(1000), f.PaidAmount)

	payments, err := e.store.Payments(ctx, tenantA, domain.PaymentsFilter{})
	require.NoError(t, err)
	var applied domain.Money
	for _, p := range payments {
		applied += p.Amount
	}
	assert.Equal(t, domain.Major(1000), applied)

	bal, err := e.wallet.Balance(ctx, tenantA, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Major(25*70-1000), bal)
	e.requireLedgerInvariants(t, tenantA, "stu-1")
}

func TestApplyAdvance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.feeLine(t, tenantA, "stu-1", domain.Major(100), day(5))
	b := e.feeLine(t, tenantA, "stu-1", domain.Major(100), day(9))

	_, err := e.collect.ApplyAdvance(ctx, ApplyAdvanceRequest{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(10), FeeIDs: []string{a.ID}})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = e.wallet.Credit(ctx, WalletEntry{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(500), Description: "Opening advance"})
	require.NoError(t, err)

	res, err := e.collect.ApplyAdvance(ctx, ApplyAdvanceRequest{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(300), FeeIDs: []string{a.ID, b.ID}})
	require.NoError(t, err)
	assert.Equal(t, domain.Major(200), res.WalletDebit, "only what the lines absorb is debited")
	assert.Equal(t, domain.Major(300), res.WalletBalance)
	require.NotNil(t, res.ConsolidatedReceiptNo)

	for _, id := range []string{a.ID, b.ID} {
		assert.Zero(t, e.fee(t, tenantA, id).Outstanding())
	}

	payments, err := e.store.PaymentsByConsolidatedReceipt(ctx, tenantA, *res.ConsolidatedReceiptNo)
	require.NoError(t, err)
	for _, p := range payments {
		assert.Equal(t, domain.MethodWallet, p.Method)
	}

	_, err = e.collect.ApplyAdvance(ctx, ApplyAdvanceRequest{TenantID: tenantA, StudentID: "stu-1", Amount: domain.Major(10), FeeIDs: []string{a.ID}})
	assert.ErrorIs(t, err, domain.ErrInsufficientAllocationTarget)

	e.requireLedgerInvariants(t, tenantA, "stu-1")
}
