package rest

import (
	"context"
	"net/http"

	"school-ledger/internal/domain"
	"school-ledger/internal/service"

	"github.com/go-chi/chi/v5"
)

type WalletAdjustmentRequest struct {
	Amount      domain.Money `json:"amount" validate:"gt=0"`
	Description string       `json:"description" validate:"required,max=255"`
}

func (h *Handler) getWallet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	studentID := chi.URLParam(r, "studentID")
	st, err := h.svc.Wallets.Statement(r.Context(), p.TenantID, studentID)
	if err != nil {
		h.writeError(w, r, "getWallet", err)
		return
	}
	Success(w, "", toWalletDTO(studentID, st))
}

func (h *Handler) reconcileWallet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Wallets.Reconcile(r.Context(), p.TenantID, chi.URLParam(r, "studentID"))
	if err != nil {
		h.writeError(w, r, "reconcileWallet", err)
		return
	}
	Success(w, "", ReconciliationDTO{
		StudentID:  rec.StudentID,
		Balance:    rec.Balance,
		LedgerSum:  rec.LedgerSum,
		Drift:      rec.Drift,
		Consistent: rec.Consistent(),
	})
}

func (h *Handler) creditWallet(w http.ResponseWriter, r *http.Request) {
	h.adjustWallet(w, r, "creditWallet", h.svc.Wallets.Credit)
}

func (h *Handler) debitWallet(w http.ResponseWriter, r *http.Request) {
	h.adjustWallet(w, r, "debitWallet", h.svc.Wallets.Debit)
}

func (h *Handler) adjustWallet(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	post func(ctx context.Context, e service.WalletEntry) (domain.WalletTransaction, error),
) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req WalletAdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, op, err)
		return
	}

	tx, err := post(r.Context(), service.WalletEntry{
		TenantID:    p.TenantID,
		StudentID:   chi.URLParam(r, "studentID"),
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		h.writeError(w, r, op, err)
		return
	}
	SuccessCreated(w, "wallet updated", toWalletTxDTO(tx))
}
