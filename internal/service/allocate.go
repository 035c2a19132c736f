package service

import (
	"sort"

	"school-ledger/internal/domain"
)

// Allocation is the share of a collected amount that lands on one fee line.
type Allocation struct {
	Fee         domain.StudentFee
	Outstanding domain.Money
	Applied     domain.Money
}

// Allocate spreads amount over fees, oldest due date first and insertion order
// on ties. Whatever the lines cannot absorb is returned as overflow. fees is
// not modified.
func Allocate(fees []domain.StudentFee, amount domain.Money) ([]Allocation, domain.Money) {
	ordered := make([]domain.StudentFee, len(fees))
	copy(ordered, fees)
	sort.SliceStable(ordered, func(i, j int) bool {
		di, dj := ordered[i].DueDate, ordered[j].DueDate
		if di.IsZero() != dj.IsZero() {
			// lines without a due date go last
			return dj.IsZero()
		}
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return ordered[i].Seq < ordered[j].Seq
	})

	out := make([]Allocation, 0, len(ordered))
	remaining := amount
	for _, f := range ordered {
		outstanding := f.Outstanding()
		applied := domain.MinMoney(remaining, outstanding)
		if applied < 0 {
			applied = 0
		}
		out = append(out, Allocation{Fee: f, Outstanding: outstanding, Applied: applied})
		remaining -= applied
	}
	return out, remaining
}

// AppliedTotal sums what the allocation put on fee lines.
func AppliedTotal(allocs []Allocation) domain.Money {
	var sum domain.Money
	for _, a := range allocs {
		sum += a.Applied
	}
	return sum
}
