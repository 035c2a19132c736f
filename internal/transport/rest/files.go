package rest

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"school-ledger/internal/transport/auth"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// serveFile streams a generated report. The random storage prefix is
// stripped from the download name.
func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	path, err := h.svc.Files.Path(file)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		h.log.Warn("stat export file failed", zap.String("file", file), zap.Error(err))
		http.Error(w, "failed to access file", http.StatusInternalServerError)
		return
	}

	orig := file
	if idx := strings.IndexByte(file, '_'); idx >= 0 {
		orig = file[idx+1:]
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", orig))
	http.ServeFile(w, r, path)
}

func (h *Handler) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	p, err := auth.PrincipalFrom(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	h.log.Debug("websocket connected", zap.String("tenant_id", p.TenantID), zap.Int64("user_id", p.UserID))
	h.svc.Hub.HandleWebSocket(w, r, p.TenantID, p.UserID)
}
