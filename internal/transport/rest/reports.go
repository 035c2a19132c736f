package rest

import (
	"net/http"
	"time"
)

func (h *Handler) collectionSummary(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	from, err := toDatePtr("from", q.Get("from"))
	if err != nil {
		h.writeError(w, r, "collectionSummary", err)
		return
	}
	to, err := toDatePtr("to", q.Get("to"))
	if err != nil {
		h.writeError(w, r, "collectionSummary", err)
		return
	}
	if from == nil || to == nil {
		ErrorValidation(w, &ValidationError{Field: "from", Message: "from and to are required"})
		return
	}

	// to is a whole day
	end := to.Add(24*time.Hour - time.Nanosecond)
	summary, err := h.svc.Reports.CollectionSummary(r.Context(), p.TenantID, *from, end)
	if err != nil {
		h.writeError(w, r, "collectionSummary", err)
		return
	}
	Success(w, "", summary)
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	a, err := h.svc.Alerts.Alerts(r.Context(), p.TenantID)
	if err != nil {
		h.writeError(w, r, "alerts", err)
		return
	}
	Success(w, "", a)
}
