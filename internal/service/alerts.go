package service

import (
	"context"
	"sort"
	"strings"

	"school-ledger/internal/domain"
)

// DefaultLowBalance is the wallet level below which a student is flagged.
var DefaultLowBalance = domain.Major(100)

type PendingFeeAlert struct {
	StudentID   string       `json:"student_id"`
	Lines       int          `json:"lines"`
	Overdue     int          `json:"overdue"`
	Outstanding domain.Money `json:"outstanding"`
}

type LowBalanceAlert struct {
	StudentID string       `json:"student_id"`
	Balance   domain.Money `json:"balance"`
}

type Alerts struct {
	PendingFees []PendingFeeAlert `json:"pending_fees"`
	LowBalances []LowBalanceAlert `json:"low_balances"`
	Threshold   domain.Money      `json:"low_balance_threshold"`
}

type AlertService struct {
	deps      LedgerDeps
	threshold domain.Money
}

func NewAlertService(deps LedgerDeps, threshold domain.Money) *AlertService {
	if threshold <= 0 {
		threshold = DefaultLowBalance
	}
	return &AlertService{deps: deps.withDefaults(), threshold: threshold}
}

func (s *AlertService) Alerts(ctx context.Context, tenantID string) (Alerts, error) {
	if strings.TrimSpace(tenantID) == "" {
		return Alerts{}, domain.ErrTenantRequired
	}

	fees, err := s.deps.Store.OpenStudentFees(ctx, tenantID)
	if err != nil {
		return Alerts{}, err
	}
	now := s.deps.Clock.Now()
	byStudent := map[string]*PendingFeeAlert{}
	for _, f := range fees {
		st := f.DeriveStatus(now)
		if !st.Open() {
			continue
		}
		a := byStudent[f.StudentID]
		if a == nil {
			a = &PendingFeeAlert{StudentID: f.StudentID}
			byStudent[f.StudentID] = a
		}
		a.Lines++
		a.Outstanding += f.Outstanding()
		if st == domain.FeeStatusOverdue {
			a.Overdue++
		}
	}

	out := Alerts{Threshold: s.threshold, PendingFees: []PendingFeeAlert{}, LowBalances: []LowBalanceAlert{}}
	for _, a := range byStudent {
		out.PendingFees = append(out.PendingFees, *a)
	}
	sort.Slice(out.PendingFees, func(i, j int) bool {
		if out.PendingFees[i].Outstanding != out.PendingFees[j].Outstanding {
			return out.PendingFees[i].Outstanding > out.PendingFees[j].Outstanding
		}
		return out.PendingFees[i].StudentID < out.PendingFees[j].StudentID
	})

	wallets, err := s.deps.Store.WalletsBelow(ctx, tenantID, s.threshold)
	if err != nil {
		return Alerts{}, err
	}
	for _, w := range wallets {
		out.LowBalances = append(out.LowBalances, LowBalanceAlert{StudentID: w.StudentID, Balance: w.Balance})
	}
	return out, nil
}
