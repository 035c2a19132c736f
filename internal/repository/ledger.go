package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"school-ledger/internal/domain"

	"go.uber.org/zap"
)

// querier is what *sql.DB and *sql.Tx have in common.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// queries holds the read side; it runs against the pool or inside a tx.
type queries struct {
	q querier
}

// LedgerRepository is the postgres domain.LedgerStore.
type LedgerRepository struct {
	queries
	db  *sql.DB
	log *zap.Logger
}

func NewLedgerRepository(db *sql.DB, log *zap.Logger) *LedgerRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &LedgerRepository{queries: queries{q: db}, db: db, log: log}
}

// ledgerTx adds the locking reads and the writes.
type ledgerTx struct {
	queries
}

func (r *LedgerRepository) InTx(ctx context.Context, fn func(tx domain.LedgerTx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapError(err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&ledgerTx{queries{q: tx}}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			r.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapError(err))
	}
	return nil
}

func money(v int64) domain.Money { return domain.Money(v) }

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// timeArg stores the zero time as NULL.
func timeArg(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

var (
	_ domain.LedgerStore = (*LedgerRepository)(nil)
	_ domain.LedgerTx    = (*ledgerTx)(nil)
)
