package service

import (
	"testing"
	"time"

	"school-ledger/internal/domain"

	"github.com/stretchr/testify/assert"
)

func line(id string, seq int64, payable, paid domain.Money, due time.Time) domain.StudentFee {
	return domain.StudentFee{ID: id, Seq: seq, Amount: payable, PaidAmount: paid, DueDate: due}
}

func TestAllocate(t *testing.T) {
	tests := []struct {
		name     string
		fees     []domain.StudentFee
		amount   domain.Money
		want     map[string]domain.Money
		overflow domain.Money
	}{
		{
			name:   "oldest due first",
			fees:   []domain.StudentFee{line("late", 1, 500, 0, day(60)), line("early", 2, 300, 0, day(30))},
			amount: 600,
			want:   map[string]domain.Money{"early": 300, "late": 300},
		},
		{
			name:   "tie broken by insertion order",
			fees:   []domain.StudentFee{line("b", 2, 100, 0, day(10)), line("a", 1, 100, 0, day(10))},
			amount: 150,
			want:   map[string]domain.Money{"a": 100, "b": 50},
		},
		{
			name:   "no due date goes last",
			fees:   []domain.StudentFee{line("undated", 1, 100, 0, time.Time{}), line("dated", 2, 100, 0, day(90))},
			amount: 120,
			want:   map[string]domain.Money{"dated": 100, "undated": 20},
		},
		{
			name:     "overflow beyond outstanding",
			fees:     []domain.StudentFee{line("a", 1, 100, 40, day(1))},
			amount:   100,
			want:     map[string]domain.Money{"a": 60},
			overflow: 40,
		},
		{
			name:     "paid lines absorb nothing",
			fees:     []domain.StudentFee{line("a", 1, 100, 100, day(1))},
			amount:   30,
			want:     map[string]domain.Money{"a": 0},
			overflow: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allocs, overflow := Allocate(tt.fees, tt.amount)
			got := map[string]domain.Money{}
			for _, a := range allocs {
				got[a.Fee.ID] = a.Applied
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.overflow, overflow)
			assert.Equal(t, tt.amount, AppliedTotal(allocs)+overflow)
		})
	}
}

func TestAllocate_DoesNotReorderInput(t *testing.T) {
	fees := []domain.StudentFee{line("late", 1, 500, 0, day(60)), line("early", 2, 300, 0, day(30))}
	allocs, _ := Allocate(fees, 100)

	assert.Equal(t, "late", fees[0].ID)
	assert.Equal(t, "early", allocs[0].Fee.ID)
	assert.Equal(t, domain.Money(300), allocs[0].Outstanding)
}
