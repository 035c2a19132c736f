package domain

import "time"

type WalletTxType string

const (
	WalletCredit WalletTxType = "CREDIT"
	WalletDebit  WalletTxType = "DEBIT"
)

// Wallet holds a student's advance balance. Balance only moves through
// WalletTransaction entries.
type Wallet struct {
	ID        string
	TenantID  string
	StudentID string
	Balance   Money
	UpdatedAt time.Time
}

type WalletTransaction struct {
	ID           string
	TenantID     string
	WalletID     string
	StudentID    string
	Type         WalletTxType
	Amount       Money
	BalanceAfter Money
	Description  string
	// ReceiptNo correlates the entry with the receipt that produced or consumed it.
	ReceiptNo *string
	Date      time.Time
}

// Signed returns the entry's effect on the balance.
func (t WalletTransaction) Signed() Money {
	if t.Type == WalletDebit {
		return -t.Amount
	}
	return t.Amount
}

// LedgerSum folds a transaction list into the balance it implies.
func LedgerSum(txs []WalletTransaction) Money {
	var sum Money
	for _, t := range txs {
		sum += t.Signed()
	}
	return sum
}
