// Package memory is an in-process LedgerStore. Transactions are serialized by
// one mutex and work on a copy of the state that replaces the original on commit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"school-ledger/internal/domain"

	"github.com/google/uuid"
)

type walletKey struct {
	tenantID  string
	studentID string
}

type state struct {
	structures map[string]domain.FeeStructure
	fees       map[string]domain.StudentFee
	payments   []domain.FeePayment
	wallets    map[walletKey]domain.Wallet
	walletTxs  []domain.WalletTransaction
	idem       map[string]string
	seq        int64
}

func newState() *state {
	return &state{
		structures: map[string]domain.FeeStructure{},
		fees:       map[string]domain.StudentFee{},
		wallets:    map[walletKey]domain.Wallet{},
		idem:       map[string]string{},
	}
}

func (s *state) clone() *state {
	c := &state{
		structures: make(map[string]domain.FeeStructure, len(s.structures)),
		fees:       make(map[string]domain.StudentFee, len(s.fees)),
		payments:   append([]domain.FeePayment(nil), s.payments...),
		wallets:    make(map[walletKey]domain.Wallet, len(s.wallets)),
		walletTxs:  append([]domain.WalletTransaction(nil), s.walletTxs...),
		idem:       make(map[string]string, len(s.idem)),
		seq:        s.seq,
	}
	for k, v := range s.structures {
		c.structures[k] = v
	}
	for k, v := range s.fees {
		c.fees[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.idem {
		c.idem[k] = v
	}
	return c
}

type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) InTx(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(&view{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) read() *view {
	return &view{st: s.st}
}

func (s *Store) FeeStructure(ctx context.Context, tenantID, id string) (domain.FeeStructure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().FeeStructure(ctx, tenantID, id)
}

func (s *Store) FeeStructures(ctx context.Context, tenantID string) ([]domain.FeeStructure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().FeeStructures(ctx, tenantID)
}

func (s *Store) StructureAssignmentCount(ctx context.Context, tenantID, structureID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().StructureAssignmentCount(ctx, tenantID, structureID)
}

func (s *Store) StudentFee(ctx context.Context, tenantID, id string) (domain.StudentFee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().StudentFee(ctx, tenantID, id)
}

func (s *Store) StudentFees(ctx context.Context, tenantID, studentID string) ([]domain.StudentFee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().StudentFees(ctx, tenantID, studentID)
}

func (s *Store) StudentFeesByIDs(ctx context.Context, tenantID string, ids []string) ([]domain.StudentFee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().StudentFeesByIDs(ctx, tenantID, ids)
}

func (s *Store) OpenStudentFees(ctx context.Context, tenantID string) ([]domain.StudentFee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().OpenStudentFees(ctx, tenantID)
}

func (s *Store) Payment(ctx context.Context, tenantID, id string) (domain.FeePayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().Payment(ctx, tenantID, id)
}

func (s *Store) PaymentsByConsolidatedReceipt(ctx context.Context, tenantID, receiptNo string) ([]domain.FeePayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().PaymentsByConsolidatedReceipt(ctx, tenantID, receiptNo)
}

func (s *Store) PaymentByReceiptNoOrID(ctx context.Context, tenantID, key string) (domain.FeePayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().PaymentByReceiptNoOrID(ctx, tenantID, key)
}

func (s *Store) Payments(ctx context.Context, tenantID string, f domain.PaymentsFilter) ([]domain.FeePayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().Payments(ctx, tenantID, f)
}

func (s *Store) CountPayments(ctx context.Context, tenantID string, f domain.PaymentsFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().CountPayments(ctx, tenantID, f)
}

func (s *Store) Wallet(ctx context.Context, tenantID, studentID string) (domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().Wallet(ctx, tenantID, studentID)
}

func (s *Store) WalletTransactions(ctx context.Context, tenantID, studentID string) ([]domain.WalletTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().WalletTransactions(ctx, tenantID, studentID)
}

func (s *Store) WalletTransactionsByReceipt(ctx context.Context, tenantID, receiptNo string) ([]domain.WalletTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().WalletTransactionsByReceipt(ctx, tenantID, receiptNo)
}

func (s *Store) WalletsBelow(ctx context.Context, tenantID string, threshold domain.Money) ([]domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().WalletsBelow(ctx, tenantID, threshold)
}

// view implements both the reader and the transaction over one state.
type view struct {
	st *state
}

func (v *view) FeeStructure(_ context.Context, tenantID, id string) (domain.FeeStructure, error) {
	fs, ok := v.st.structures[id]
	if !ok || fs.TenantID != tenantID {
		return domain.FeeStructure{}, domain.ErrFeeStructureNotFound
	}
	return fs, nil
}

func (v *view) FeeStructures(_ context.Context, tenantID string) ([]domain.FeeStructure, error) {
	var out []domain.FeeStructure
	for _, fs := range v.st.structures {
		if fs.TenantID == tenantID {
			out = append(out, fs)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) StructureAssignmentCount(_ context.Context, tenantID, structureID string) (int64, error) {
	var n int64
	for _, f := range v.st.fees {
		if f.TenantID == tenantID && f.FeeStructureID == structureID {
			n++
		}
	}
	return n, nil
}

func (v *view) StudentFee(_ context.Context, tenantID, id string) (domain.StudentFee, error) {
	f, ok := v.st.fees[id]
	if !ok || f.TenantID != tenantID {
		return domain.StudentFee{}, domain.ErrFeeNotFound
	}
	return f, nil
}

func (v *view) StudentFees(_ context.Context, tenantID, studentID string) ([]domain.StudentFee, error) {
	var out []domain.StudentFee
	for _, f := range v.st.fees {
		if f.TenantID == tenantID && f.StudentID == studentID {
			out = append(out, f)
		}
	}
	sortFees(out)
	return out, nil
}

func (v *view) StudentFeesByIDs(_ context.Context, tenantID string, ids []string) ([]domain.StudentFee, error) {
	var out []domain.StudentFee
	seen := map[string]bool{}
	for _, id := range ids {
		f, ok := v.st.fees[id]
		if !ok || f.TenantID != tenantID || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, f)
	}
	sortFees(out)
	return out, nil
}

func (v *view) OpenStudentFees(_ context.Context, tenantID string) ([]domain.StudentFee, error) {
	var out []domain.StudentFee
	for _, f := range v.st.fees {
		if f.TenantID == tenantID && f.Outstanding() > 0 {
			out = append(out, f)
		}
	}
	sortFees(out)
	return out, nil
}

func (v *view) Payment(_ context.Context, tenantID, id string) (domain.FeePayment, error) {
	for _, p := range v.st.payments {
		if p.TenantID == tenantID && p.ID == id {
			return p, nil
		}
	}
	return domain.FeePayment{}, domain.ErrPaymentNotFound
}

func (v *view) PaymentsByConsolidatedReceipt(_ context.Context, tenantID, receiptNo string) ([]domain.FeePayment, error) {
	var out []domain.FeePayment
	for _, p := range v.st.payments {
		if p.TenantID == tenantID && p.ConsolidatedReceiptNo != nil && *p.ConsolidatedReceiptNo == receiptNo {
			out = append(out, p)
		}
	}
	return out, nil
}

func (v *view) PaymentByReceiptNoOrID(_ context.Context, tenantID, key string) (domain.FeePayment, error) {
	for _, p := range v.st.payments {
		if p.TenantID == tenantID && (p.ReceiptNo == key || p.ID == key) {
			return p, nil
		}
	}
	return domain.FeePayment{}, domain.ErrPaymentNotFound
}

func (v *view) Payments(_ context.Context, tenantID string, f domain.PaymentsFilter) ([]domain.FeePayment, error) {
	var out []domain.FeePayment
	for _, p := range v.st.payments {
		if p.TenantID == tenantID && matches(p, f) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (v *view) CountPayments(ctx context.Context, tenantID string, f domain.PaymentsFilter) (int64, error) {
	ps, err := v.Payments(ctx, tenantID, f)
	return int64(len(ps)), err
}

func (v *view) Wallet(_ context.Context, tenantID, studentID string) (domain.Wallet, error) {
	w, ok := v.st.wallets[walletKey{tenantID, studentID}]
	if !ok {
		return domain.Wallet{TenantID: tenantID, StudentID: studentID}, nil
	}
	return w, nil
}

func (v *view) WalletTransactions(_ context.Context, tenantID, studentID string) ([]domain.WalletTransaction, error) {
	var out []domain.WalletTransaction
	for i := len(v.st.walletTxs) - 1; i >= 0; i-- {
		t := v.st.walletTxs[i]
		if t.TenantID == tenantID && t.StudentID == studentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (v *view) WalletTransactionsByReceipt(_ context.Context, tenantID, receiptNo string) ([]domain.WalletTransaction, error) {
	var out []domain.WalletTransaction
	for _, t := range v.st.walletTxs {
		if t.TenantID == tenantID && t.ReceiptNo != nil && *t.ReceiptNo == receiptNo {
			out = append(out, t)
		}
	}
	return out, nil
}

func (v *view) WalletsBelow(_ context.Context, tenantID string, threshold domain.Money) ([]domain.Wallet, error) {
	var out []domain.Wallet
	for _, w := range v.st.wallets {
		if w.TenantID == tenantID && w.Balance < threshold {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance < out[j].Balance
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out, nil
}

func (v *view) StudentFeesForUpdate(ctx context.Context, tenantID, studentID string, ids []string) ([]domain.StudentFee, error) {
	fees, err := v.StudentFeesByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	out := fees[:0]
	for _, f := range fees {
		if f.StudentID == studentID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (v *view) StudentFeeForUpdate(ctx context.Context, tenantID, id string) (domain.StudentFee, error) {
	return v.StudentFee(ctx, tenantID, id)
}

func (v *view) UpdateStudentFeePaid(_ context.Context, fee domain.StudentFee) error {
	cur, ok := v.st.fees[fee.ID]
	if !ok || cur.TenantID != fee.TenantID {
		return domain.ErrFeeNotFound
	}
	if cur.Version != fee.Version {
		return domain.ErrConcurrentModification
	}
	cur.PaidAmount = fee.PaidAmount
	cur.Version++
	cur.UpdatedAt = fee.UpdatedAt
	v.st.fees[fee.ID] = cur
	return nil
}

func (v *view) InsertStudentFee(_ context.Context, fee domain.StudentFee) (domain.StudentFee, error) {
	if fee.ID == "" {
		fee.ID = uuid.NewString()
	}
	if _, exists := v.st.fees[fee.ID]; exists {
		return domain.StudentFee{}, domain.ErrDuplicate
	}
	v.st.seq++
	fee.Seq = v.st.seq
	fee.Version = 1
	v.st.fees[fee.ID] = fee
	return fee, nil
}

func (v *view) CreateFeeStructure(_ context.Context, fs domain.FeeStructure) error {
	if _, exists := v.st.structures[fs.ID]; exists {
		return domain.ErrDuplicate
	}
	v.st.structures[fs.ID] = fs
	return nil
}

func (v *view) DeleteFeeStructure(_ context.Context, tenantID, id string) error {
	fs, ok := v.st.structures[id]
	if !ok || fs.TenantID != tenantID {
		return domain.ErrFeeStructureNotFound
	}
	delete(v.st.structures, id)
	return nil
}

func (v *view) InsertFeePayment(_ context.Context, p domain.FeePayment) error {
	for _, existing := range v.st.payments {
		if existing.ID == p.ID || (existing.TenantID == p.TenantID && existing.ReceiptNo == p.ReceiptNo) {
			return domain.ErrDuplicate
		}
	}
	v.st.payments = append(v.st.payments, p)
	return nil
}

func (v *view) PaymentForUpdate(ctx context.Context, tenantID, id string) (domain.FeePayment, error) {
	return v.Payment(ctx, tenantID, id)
}

func (v *view) UpdatePaymentStatus(_ context.Context, p domain.FeePayment) error {
	for i, existing := range v.st.payments {
		if existing.TenantID == p.TenantID && existing.ID == p.ID {
			existing.Status = p.Status
			existing.RefundReason = p.RefundReason
			existing.RefundedAt = p.RefundedAt
			v.st.payments[i] = existing
			return nil
		}
	}
	return domain.ErrPaymentNotFound
}

func (v *view) WalletForUpdate(_ context.Context, tenantID, studentID string) (domain.Wallet, error) {
	k := walletKey{tenantID, studentID}
	w, ok := v.st.wallets[k]
	if !ok {
		w = domain.Wallet{ID: uuid.NewString(), TenantID: tenantID, StudentID: studentID, UpdatedAt: time.Now().UTC()}
		v.st.wallets[k] = w
	}
	return w, nil
}

func (v *view) AppendWalletTransaction(_ context.Context, t domain.WalletTransaction) error {
	k := walletKey{t.TenantID, t.StudentID}
	w, ok := v.st.wallets[k]
	if !ok || w.ID != t.WalletID {
		return domain.ErrConcurrentModification
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	w.Balance = t.BalanceAfter
	w.UpdatedAt = t.Date
	v.st.wallets[k] = w
	v.st.walletTxs = append(v.st.walletTxs, t)
	return nil
}

func (v *view) ClaimIdempotencyKey(_ context.Context, tenantID, key, receiptNo string) (string, bool, error) {
	k := tenantID + "\x00" + key
	if existing, ok := v.st.idem[k]; ok {
		return existing, false, nil
	}
	v.st.idem[k] = receiptNo
	return "", true, nil
}

func sortFees(fees []domain.StudentFee) {
	sort.Slice(fees, func(i, j int) bool {
		di, dj := fees[i].DueDate, fees[j].DueDate
		if di.IsZero() != dj.IsZero() {
			return dj.IsZero()
		}
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return fees[i].Seq < fees[j].Seq
	})
}

func matches(p domain.FeePayment, f domain.PaymentsFilter) bool {
	if f.From != nil && p.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && p.Date.After(*f.To) {
		return false
	}
	if f.SettledOnly && !p.Status.Settled() {
		return false
	}
	if f.StudentID != nil && p.StudentID != *f.StudentID {
		return false
	}
	if len(f.Methods) > 0 {
		ok := false
		for _, m := range f.Methods {
			if p.Method == m {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
