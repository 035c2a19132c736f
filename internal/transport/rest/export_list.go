package rest

import (
	"net/http"
	"time"

	"school-ledger/internal/domain"

	"github.com/go-chi/chi/v5"
)

type CollectionsExportRequest struct {
	Fields      []string `json:"fields" validate:"required,min=1,dive,required"`
	From        string   `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To          string   `json:"to" validate:"omitempty,datetime=2006-01-02"`
	StudentID   string   `json:"student_id" validate:"omitempty,max=64"`
	Methods     []string `json:"methods" validate:"omitempty,dive,oneof=CASH ONLINE BANK_TRANSFER CHEQUE UPI CARD WALLET"`
	SettledOnly bool     `json:"settled_only"`
}

func (req CollectionsExportRequest) toFilter() (domain.PaymentsFilter, error) {
	from, err := toDatePtr("from", req.From)
	if err != nil {
		return domain.PaymentsFilter{}, err
	}
	to, err := toDatePtr("to", req.To)
	if err != nil {
		return domain.PaymentsFilter{}, err
	}
	if to != nil {
		end := to.Add(24*time.Hour - time.Nanosecond)
		to = &end
	}
	f := domain.PaymentsFilter{
		From:        from,
		To:          to,
		StudentID:   toStringPtr(req.StudentID),
		SettledOnly: req.SettledOnly,
	}
	for _, m := range req.Methods {
		f.Methods = append(f.Methods, domain.PaymentMethod(m))
	}
	return f, nil
}

func (h *Handler) exportCollections(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req CollectionsExportRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "exportCollections", err)
		return
	}
	filter, err := req.toFilter()
	if err != nil {
		h.writeError(w, r, "exportCollections", err)
		return
	}

	exportID, err := h.svc.Reports.StartCollectionsExport(r.Context(), p.TenantID, p.UserID, req.Fields, filter)
	if err != nil {
		h.writeError(w, r, "exportCollections", err)
		return
	}
	SuccessAccepted(w, "export queued", map[string]any{"export_id": exportID})
}

func (h *Handler) listExports(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	exports, err := h.svc.Exports.GetExports(r.Context(), p.TenantID, p.UserID)
	if err != nil {
		h.writeError(w, r, "listExports", err)
		return
	}
	Success(w, "", exports)
}

func (h *Handler) getExport(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	exportIDParam := chi.URLParam(r, "export_id")
	if exportIDParam == "" {
		ErrorBadRequest(w, "export_id is required")
		return
	}
	exportID := "exports:" + exportIDParam

	export, err := h.svc.Exports.GetExport(r.Context(), p.TenantID, p.UserID, exportID)
	if err != nil {
		h.writeError(w, r, "getExport", err)
		return
	}
	Success(w, "", export)
}
