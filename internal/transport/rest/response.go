package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"school-ledger/internal/domain"
	"school-ledger/internal/service"

	"go.uber.org/zap"
)

type APIResponse struct {
	ErrorCode int    `json:"error_code"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
}

func Response(w http.ResponseWriter, message string, data any, errorCode int, status string, httpStatus int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	response := APIResponse{
		ErrorCode: errorCode,
		Status:    status,
		Message:   message,
		Data:      data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		zap.L().Warn("write response failed", zap.Error(err))
	}
}

func Success(w http.ResponseWriter, message string, data any) {
	Response(w, message, data, 0, "success", http.StatusOK)
}

func SuccessCreated(w http.ResponseWriter, message string, data any) {
	Response(w, message, data, 0, "success", http.StatusCreated)
}

func SuccessAccepted(w http.ResponseWriter, message string, data any) {
	Response(w, message, data, 0, "success", http.StatusAccepted)
}

func Error(w http.ResponseWriter, message string, errorCode int, httpStatus int) {
	Response(w, message, nil, errorCode, "error", httpStatus)
}

func ErrorBadRequest(w http.ResponseWriter, message string) {
	Error(w, message, 400, http.StatusBadRequest)
}

func ErrorUnauthorized(w http.ResponseWriter, message string) {
	Error(w, message, 401, http.StatusUnauthorized)
}

func ErrorNotFound(w http.ResponseWriter, message string) {
	Error(w, message, 404, http.StatusNotFound)
}

func ErrorConflict(w http.ResponseWriter, message string) {
	Error(w, message, 409, http.StatusConflict)
}

func ErrorUnprocessable(w http.ResponseWriter, message string) {
	Error(w, message, 422, http.StatusUnprocessableEntity)
}

func ErrorInternal(w http.ResponseWriter, message string) {
	Error(w, message, 500, http.StatusInternalServerError)
}

// ErrorValidation answers 400 with the offending field in data.
func ErrorValidation(w http.ResponseWriter, ve *ValidationError) {
	Response(w, ve.Message, map[string]string{"field": ve.Field}, 400, "error", http.StatusBadRequest)
}

// writeError maps ledger errors onto HTTP statuses. Unknown errors are
// logged and hidden behind a generic 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		ErrorValidation(w, ve)
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrDiscountExceedsTotal),
		errors.Is(err, domain.ErrReasonRequired),
		errors.Is(err, domain.ErrTenantRequired),
		errors.Is(err, domain.ErrStudentRequired):
		ErrorBadRequest(w, err.Error())
	case errors.Is(err, domain.ErrReceiptNotFound),
		errors.Is(err, domain.ErrFeeNotFound),
		errors.Is(err, domain.ErrPaymentNotFound),
		errors.Is(err, domain.ErrFeeStructureNotFound),
		errors.Is(err, service.ErrExportNotFound):
		ErrorNotFound(w, err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientAllocationTarget):
		ErrorUnprocessable(w, err.Error())
	case errors.Is(err, domain.ErrInvalidPaymentState),
		errors.Is(err, domain.ErrFeeStructureInUse),
		errors.Is(err, domain.ErrDuplicate),
		errors.Is(err, domain.ErrConcurrentModification):
		ErrorConflict(w, err.Error())
	default:
		h.log.Error("request failed",
			zap.String("op", op),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		ErrorInternal(w, "internal error")
	}
}
