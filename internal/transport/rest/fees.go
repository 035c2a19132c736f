package rest

import (
	"net/http"
	"time"

	"school-ledger/internal/domain"
	"school-ledger/internal/service"

	"github.com/go-chi/chi/v5"
)

type CreateStructureRequest struct {
	Name               string       `json:"name" validate:"required,max=200"`
	Amount             domain.Money `json:"amount" validate:"gte=0"`
	TaxRateBasisPoints int64        `json:"tax_rate_bp" validate:"gte=0,lte=10000"`
	Frequency          string       `json:"frequency" validate:"omitempty,oneof=ONE_TIME MONTHLY QUARTERLY TERM ANNUAL"`
	ClassID            string       `json:"class_id" validate:"omitempty,max=64"`
}

type AssignFeeRequest struct {
	FeeStructureID string       `json:"fee_structure_id" validate:"required"`
	Name           string       `json:"name" validate:"omitempty,max=200"`
	Discount       domain.Money `json:"discount" validate:"gte=0"`
	PreviousDebt   domain.Money `json:"previous_debt" validate:"gte=0"`
	DueDate        string       `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) createStructure(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req CreateStructureRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "createStructure", err)
		return
	}

	fs, err := h.svc.Fees.CreateStructure(r.Context(), service.CreateStructureInput{
		TenantID:           p.TenantID,
		Name:               req.Name,
		Amount:             req.Amount,
		TaxRateBasisPoints: req.TaxRateBasisPoints,
		Frequency:          domain.Frequency(req.Frequency),
		ClassID:            toStringPtr(req.ClassID),
	})
	if err != nil {
		h.writeError(w, r, "createStructure", err)
		return
	}
	SuccessCreated(w, "fee structure created", toFeeStructureDTO(fs))
}

func (h *Handler) listStructures(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	list, err := h.svc.Fees.ListStructures(r.Context(), p.TenantID)
	if err != nil {
		h.writeError(w, r, "listStructures", err)
		return
	}
	out := make([]FeeStructureDTO, 0, len(list))
	for _, fs := range list {
		out = append(out, toFeeStructureDTO(fs))
	}
	Success(w, "", out)
}

func (h *Handler) deleteStructure(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	if err := h.svc.Fees.DeleteStructure(r.Context(), p.TenantID, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, "deleteStructure", err)
		return
	}
	Success(w, "fee structure deleted", nil)
}

func (h *Handler) assignFee(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req AssignFeeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "assignFee", err)
		return
	}
	due, err := toDatePtr("due_date", req.DueDate)
	if err != nil {
		h.writeError(w, r, "assignFee", err)
		return
	}
	var dueDate time.Time
	if due != nil {
		dueDate = *due
	}

	line, err := h.svc.Fees.AssignFee(r.Context(), service.AssignFeeInput{
		TenantID:     p.TenantID,
		StudentID:    chi.URLParam(r, "studentID"),
		StructureID:  req.FeeStructureID,
		Discount:     req.Discount,
		PreviousDebt: req.PreviousDebt,
		DueDate:      dueDate,
		Name:         req.Name,
	})
	if err != nil {
		h.writeError(w, r, "assignFee", err)
		return
	}
	SuccessCreated(w, "fee assigned", toFeeLineDTO(line))
}

func (h *Handler) studentFees(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	lines, err := h.svc.Fees.StudentFees(r.Context(), p.TenantID, chi.URLParam(r, "studentID"))
	if err != nil {
		h.writeError(w, r, "studentFees", err)
		return
	}
	out := make([]FeeLineDTO, 0, len(lines))
	for _, l := range lines {
		out = append(out, toFeeLineDTO(l))
	}
	Success(w, "", out)
}
