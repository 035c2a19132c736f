package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"school-ledger/internal/domain"
	"school-ledger/internal/repository/memory"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	tenantA = "school-a"
	tenantB = "school-b"
)

var baseTime = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type seqNumbers struct {
	n atomic.Int64
}

func (s *seqNumbers) ReceiptNo(time.Time) string {
	return fmt.Sprintf("RCPT-%04d", s.n.Add(1))
}

func (s *seqNumbers) ConsolidatedNo(time.Time) string {
	return fmt.Sprintf("CRCPT-%04d", s.n.Add(1))
}

func (s *seqNumbers) NewID() string {
	return fmt.Sprintf("id-%04d", s.n.Add(1))
}

// flakyStore fails the first n transactions with a concurrency conflict.
type flakyStore struct {
	domain.LedgerStore
	failures atomic.Int64
	calls    atomic.Int64
}

func (f *flakyStore) InTx(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return domain.ErrConcurrentModification
	}
	return f.LedgerStore.InTx(ctx, fn)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) NotifyPaymentCollected(_ context.Context, tenantID, studentID, receiptNo string, amount domain.Money) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, fmt.Sprintf("%s/%s/%s/%s", tenantID, studentID, receiptNo, amount))
	return nil
}

type env struct {
	store    *memory.Store
	clock    *testClock
	deps     LedgerDeps
	fees     *FeeService
	collect  *CollectionService
	wallet   *WalletService
	receipts *ReceiptService
	reversal *ReversalService
	notifier *recordingNotifier
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.NewStore()
	clock := &testClock{now: baseTime}
	deps := LedgerDeps{
		Store:   store,
		Clock:   clock,
		Numbers: &seqNumbers{},
		Logger:  zap.NewNop(),
	}
	n := &recordingNotifier{}
	return &env{
		store:    store,
		clock:    clock,
		deps:     deps,
		fees:     NewFeeService(deps),
		collect:  NewCollectionService(deps, n),
		wallet:   NewWalletService(deps),
		receipts: NewReceiptService(deps),
		reversal: NewReversalService(deps),
		notifier: n,
	}
}

// structure creates a tax-free fee structure of the given amount.
func (e *env) structure(t *testing.T, tenantID string, amount domain.Money) domain.FeeStructure {
	t.Helper()
	fs, err := e.fees.CreateStructure(context.Background(), CreateStructureInput{
		TenantID:  tenantID,
		Name:      "Tuition",
		Amount:    amount,
		Frequency: domain.FrequencyTerm,
	})
	require.NoError(t, err)
	return fs
}

// feeLine assigns a fresh fee line with the given amount and due date.
func (e *env) feeLine(t *testing.T, tenantID, studentID string, amount domain.Money, due time.Time) domain.FeeLineView {
	t.Helper()
	fs := e.structure(t, tenantID, amount)
	v, err := e.fees.AssignFee(context.Background(), AssignFeeInput{
		TenantID:    tenantID,
		StudentID:   studentID,
		StructureID: fs.ID,
		DueDate:     due,
	})
	require.NoError(t, err)
	return v
}

func (e *env) fee(t *testing.T, tenantID, id string) domain.StudentFee {
	t.Helper()
	f, err := e.store.StudentFee(context.Background(), tenantID, id)
	require.NoError(t, err)
	return f
}

// requireLedgerInvariants checks paid bounds on every fee line and
// balance == credits - debits for the student's wallet.
func (e *env) requireLedgerInvariants(t *testing.T, tenantID, studentID string) {
	t.Helper()
	ctx := context.Background()
	fees, err := e.store.StudentFees(ctx, tenantID, studentID)
	require.NoError(t, err)
	for _, f := range fees {
		require.GreaterOrEqual(t, int64(f.PaidAmount), int64(0), "fee %s", f.ID)
		require.LessOrEqual(t, int64(f.PaidAmount), int64(f.PayableTotal()), "fee %s", f.ID)
	}
	r, err := e.wallet.Reconcile(ctx, tenantID, studentID)
	require.NoError(t, err)
	require.True(t, r.Consistent(), "wallet drift %s", r.Drift)
	require.GreaterOrEqual(t, int64(r.Balance), int64(0))
}

func day(n int) time.Time {
	return baseTime.AddDate(0, 0, n)
}
