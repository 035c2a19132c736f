package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"school-ledger/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultMaxRetries = 3

// LedgerDeps is what every ledger service is built from.
type LedgerDeps struct {
	Store      domain.LedgerStore
	Clock      domain.Clock
	Numbers    domain.ReceiptNumbers
	Logger     *zap.Logger
	MaxRetries int
}

func (d LedgerDeps) withDefaults() LedgerDeps {
	if d.Clock == nil {
		d.Clock = domain.SystemClock{}
	}
	if d.Numbers == nil {
		d.Numbers = UUIDReceiptNumbers{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.MaxRetries <= 0 {
		d.MaxRetries = defaultMaxRetries
	}
	return d
}

// UUIDReceiptNumbers issues RCPT-YYYYMMDD-XXXXXXXX style numbers.
type UUIDReceiptNumbers struct{}

func (UUIDReceiptNumbers) ReceiptNo(now time.Time) string {
	return receiptToken("RCPT", now)
}

func (UUIDReceiptNumbers) ConsolidatedNo(now time.Time) string {
	return receiptToken("CRCPT", now)
}

func (UUIDReceiptNumbers) NewID() string {
	return uuid.NewString()
}

func receiptToken(prefix string, now time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s-%s-%s", prefix, now.UTC().Format("20060102"), strings.ToUpper(id[:12]))
}

// withRetry re-runs fn from scratch while it fails with ErrConcurrentModification.
func withRetry(ctx context.Context, d LedgerDeps, op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, domain.ErrConcurrentModification) {
			return err
		}
		if attempt >= d.MaxRetries {
			return fmt.Errorf("%s: gave up after %d attempts: %w", op, attempt, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		d.Logger.Warn("concurrent modification, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
		)
	}
}

func requireTenantStudent(tenantID, studentID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return domain.ErrTenantRequired
	}
	if strings.TrimSpace(studentID) == "" {
		return domain.ErrStudentRequired
	}
	return nil
}

func strPtr(s string) *string {
	return &s
}
