package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type ReasonRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	rcpt, err := h.svc.Receipts.Receipt(r.Context(), p.TenantID, chi.URLParam(r, "receiptID"))
	if err != nil {
		h.writeError(w, r, "getReceipt", err)
		return
	}
	Success(w, "", toReceiptDTO(rcpt))
}

func (h *Handler) refundReceipt(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req ReasonRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "refundReceipt", err)
		return
	}
	res, err := h.svc.Reversals.RefundReceipt(r.Context(), p.TenantID, chi.URLParam(r, "receiptID"), req.Reason)
	if err != nil {
		h.writeError(w, r, "refundReceipt", err)
		return
	}
	Success(w, "receipt refunded", toRefundDTO(res))
}

func (h *Handler) refundPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req ReasonRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "refundPayment", err)
		return
	}
	pay, err := h.svc.Reversals.RefundPayment(r.Context(), p.TenantID, chi.URLParam(r, "paymentID"), req.Reason)
	if err != nil {
		h.writeError(w, r, "refundPayment", err)
		return
	}
	Success(w, "payment refunded", toPaymentDTO(pay))
}

func (h *Handler) movePaymentToAdvance(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	pay, tx, err := h.svc.Reversals.MovePaymentToAdvance(r.Context(), p.TenantID, chi.URLParam(r, "paymentID"), actor(p))
	if err != nil {
		h.writeError(w, r, "movePaymentToAdvance", err)
		return
	}
	Success(w, "payment moved to advance", map[string]any{
		"payment":            toPaymentDTO(pay),
		"wallet_transaction": toWalletTxDTO(tx),
	})
}
