package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"school-ledger/internal/domain"

	"go.uber.org/zap"
)

type CreateStructureInput struct {
	TenantID           string
	Name               string
	Amount             domain.Money
	TaxRateBasisPoints int64
	Frequency          domain.Frequency
	ClassID            *string
}

type AssignFeeInput struct {
	TenantID     string
	StudentID    string
	StructureID  string
	Discount     domain.Money
	PreviousDebt domain.Money
	DueDate      time.Time
	// Name overrides the structure name on the fee line, e.g. "Tuition - March".
	Name string
}

type FeeService struct {
	deps LedgerDeps
}

func NewFeeService(deps LedgerDeps) *FeeService {
	return &FeeService{deps: deps.withDefaults()}
}

func (s *FeeService) CreateStructure(ctx context.Context, in CreateStructureInput) (domain.FeeStructure, error) {
	if strings.TrimSpace(in.TenantID) == "" {
		return domain.FeeStructure{}, domain.ErrTenantRequired
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.FeeStructure{}, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if in.Amount < 0 {
		return domain.FeeStructure{}, fmt.Errorf("%w: structure amount is negative", domain.ErrInvalidAmount)
	}
	if in.TaxRateBasisPoints < 0 || in.TaxRateBasisPoints > 10000 {
		return domain.FeeStructure{}, fmt.Errorf("%w: tax rate must be between 0 and 10000 basis points", domain.ErrInvalidInput)
	}
	if in.Frequency == "" {
		in.Frequency = domain.FrequencyOneTime
	}
	if !in.Frequency.Valid() {
		return domain.FeeStructure{}, fmt.Errorf("%w: frequency %q", domain.ErrInvalidInput, in.Frequency)
	}

	fs := domain.FeeStructure{
		ID:                 s.deps.Numbers.NewID(),
		TenantID:           in.TenantID,
		Name:               name,
		Amount:             in.Amount,
		TaxRateBasisPoints: in.TaxRateBasisPoints,
		Frequency:          in.Frequency,
		ClassID:            in.ClassID,
		CreatedAt:          s.deps.Clock.Now(),
	}
	err := s.deps.Store.InTx(ctx, func(tx domain.LedgerTx) error {
		return tx.CreateFeeStructure(ctx, fs)
	})
	if err != nil {
		return domain.FeeStructure{}, err
	}
	return fs, nil
}

func (s *FeeService) ListStructures(ctx context.Context, tenantID string) ([]domain.FeeStructure, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, domain.ErrTenantRequired
	}
	return s.deps.Store.FeeStructures(ctx, tenantID)
}

// DeleteStructure refuses while any student fee line still references it.
func (s *FeeService) DeleteStructure(ctx context.Context, tenantID, id string) error {
	if strings.TrimSpace(tenantID) == "" {
		return domain.ErrTenantRequired
	}
	return s.deps.Store.InTx(ctx, func(tx domain.LedgerTx) error {
		if _, err := tx.FeeStructure(ctx, tenantID, id); err != nil {
			return err
		}
		n, err := tx.StructureAssignmentCount(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d fee lines", domain.ErrFeeStructureInUse, n)
		}
		return tx.DeleteFeeStructure(ctx, tenantID, id)
	})
}

// AssignFee creates a fee line for a student from a structure. Tax comes from
// the structure's rate; the figures are validated before anything is stored.
func (s *FeeService) AssignFee(ctx context.Context, in AssignFeeInput) (domain.FeeLineView, error) {
	if err := requireTenantStudent(in.TenantID, in.StudentID); err != nil {
		return domain.FeeLineView{}, err
	}

	now := s.deps.Clock.Now()
	var created domain.StudentFee
	err := s.deps.Store.InTx(ctx, func(tx domain.LedgerTx) error {
		fs, err := tx.FeeStructure(ctx, in.TenantID, in.StructureID)
		if err != nil {
			return err
		}

		name := strings.TrimSpace(in.Name)
		if name == "" {
			name = fs.Name
		}
		fee := domain.StudentFee{
			ID:             s.deps.Numbers.NewID(),
			TenantID:       in.TenantID,
			StudentID:      in.StudentID,
			FeeStructureID: fs.ID,
			Name:           name,
			Amount:         fs.Amount,
			TaxAmount:      fs.TaxFor(fs.Amount),
			Discount:       in.Discount,
			PreviousDebt:   in.PreviousDebt,
			DueDate:        in.DueDate,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := fee.ValidateAssignment(); err != nil {
			return err
		}
		created, err = tx.InsertStudentFee(ctx, fee)
		return err
	})
	if err != nil {
		return domain.FeeLineView{}, err
	}

	s.deps.Logger.Info("fee assigned",
		zap.String("tenant_id", in.TenantID),
		zap.String("student_id", in.StudentID),
		zap.String("fee_id", created.ID),
		zap.Stringer("payable", created.PayableTotal()),
	)
	return domain.ViewFee(created, now), nil
}

// StudentFees lists a student's fee lines with status derived at call time.
func (s *FeeService) StudentFees(ctx context.Context, tenantID, studentID string) ([]domain.FeeLineView, error) {
	if err := requireTenantStudent(tenantID, studentID); err != nil {
		return nil, err
	}
	fees, err := s.deps.Store.StudentFees(ctx, tenantID, studentID)
	if err != nil {
		return nil, err
	}
	now := s.deps.Clock.Now()
	out := make([]domain.FeeLineView, 0, len(fees))
	for _, f := range fees {
		out = append(out, domain.ViewFee(f, now))
	}
	return out, nil
}
