package rest

import (
	"net/http"
	"strings"

	"school-ledger/internal/domain"
	"school-ledger/internal/service"

	"github.com/go-chi/chi/v5"
)

const idempotencyHeader = "Idempotency-Key"

type CollectRequest struct {
	Amount         domain.Money `json:"amount" validate:"gt=0"`
	FeeIDs         []string     `json:"fee_ids" validate:"required,min=1,dive,required"`
	Method         string       `json:"method" validate:"omitempty,oneof=CASH ONLINE BANK_TRANSFER CHEQUE UPI CARD"`
	Reference      string       `json:"reference" validate:"omitempty,max=120"`
	Remarks        string       `json:"remarks" validate:"omitempty,max=500"`
	IdempotencyKey string       `json:"idempotency_key" validate:"omitempty,max=120"`
}

type ApplyAdvanceRequest struct {
	Amount domain.Money `json:"amount" validate:"gt=0"`
	FeeIDs []string     `json:"fee_ids" validate:"required,min=1,dive,required"`
}

// collect answers 201 for a new receipt and 200 when the idempotency key
// replays an earlier one.
func (h *Handler) collect(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req CollectRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "collect", err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key == "" {
		key = req.IdempotencyKey
	}

	res, err := h.svc.Collections.Collect(r.Context(), service.CollectRequest{
		TenantID:       p.TenantID,
		StudentID:      chi.URLParam(r, "studentID"),
		Amount:         req.Amount,
		FeeIDs:         req.FeeIDs,
		Method:         domain.PaymentMethod(req.Method),
		Reference:      req.Reference,
		Remarks:        req.Remarks,
		CollectedBy:    actor(p),
		IdempotencyKey: key,
	})
	if err != nil {
		h.writeError(w, r, "collect", err)
		return
	}
	if res.Replayed {
		Success(w, "payment already recorded", res)
		return
	}
	SuccessCreated(w, "payment collected", res)
}

func (h *Handler) applyAdvance(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req ApplyAdvanceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "applyAdvance", err)
		return
	}

	res, err := h.svc.Collections.ApplyAdvance(r.Context(), service.ApplyAdvanceRequest{
		TenantID:    p.TenantID,
		StudentID:   chi.URLParam(r, "studentID"),
		Amount:      req.Amount,
		FeeIDs:      req.FeeIDs,
		CollectedBy: actor(p),
	})
	if err != nil {
		h.writeError(w, r, "applyAdvance", err)
		return
	}
	SuccessCreated(w, "advance applied", res)
}
