package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"school-ledger/internal/domain"
	"school-ledger/internal/service"
	"school-ledger/internal/transport/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type FeeManager interface {
	CreateStructure(ctx context.Context, in service.CreateStructureInput) (domain.FeeStructure, error)
	ListStructures(ctx context.Context, tenantID string) ([]domain.FeeStructure, error)
	DeleteStructure(ctx context.Context, tenantID, id string) error
	AssignFee(ctx context.Context, in service.AssignFeeInput) (domain.FeeLineView, error)
	StudentFees(ctx context.Context, tenantID, studentID string) ([]domain.FeeLineView, error)
}

type Collector interface {
	Collect(ctx context.Context, req service.CollectRequest) (*service.CollectionResult, error)
	ApplyAdvance(ctx context.Context, req service.ApplyAdvanceRequest) (*service.CollectionResult, error)
}

type WalletManager interface {
	Credit(ctx context.Context, e service.WalletEntry) (domain.WalletTransaction, error)
	Debit(ctx context.Context, e service.WalletEntry) (domain.WalletTransaction, error)
	Statement(ctx context.Context, tenantID, studentID string) (service.WalletStatement, error)
	Reconcile(ctx context.Context, tenantID, studentID string) (service.Reconciliation, error)
}

type ReceiptReader interface {
	Receipt(ctx context.Context, tenantID, receiptID string) (domain.Receipt, error)
}

type Reverser interface {
	RefundPayment(ctx context.Context, tenantID, paymentID, reason string) (domain.FeePayment, error)
	MovePaymentToAdvance(ctx context.Context, tenantID, paymentID, actor string) (domain.FeePayment, domain.WalletTransaction, error)
	RefundReceipt(ctx context.Context, tenantID, receiptID, reason string) (*service.RefundResult, error)
}

type Reporter interface {
	CollectionSummary(ctx context.Context, tenantID string, from, to time.Time) (service.CollectionSummary, error)
	StartCollectionsExport(ctx context.Context, tenantID string, userID int64, selected []string, filter domain.PaymentsFilter) (string, error)
}

type AlertReader interface {
	Alerts(ctx context.Context, tenantID string) (service.Alerts, error)
}

type ExportListService interface {
	GetExports(ctx context.Context, tenantID string, userID int64) ([]service.ExportView, error)
	GetExport(ctx context.Context, tenantID string, userID int64, exportID string) (service.ExportView, error)
}

// SocketHub upgrades a request into a tenant-scoped notification socket.
type SocketHub interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request, tenantID string, userID int64)
}

// FileLocator maps a stored report name to a local path.
type FileLocator interface {
	Path(fileName string) (string, error)
}

// Services is everything the router dispatches to. Nil members leave
// their routes unmounted.
type Services struct {
	Fees        FeeManager
	Collections Collector
	Wallets     WalletManager
	Receipts    ReceiptReader
	Reversals   Reverser
	Reports     Reporter
	Alerts      AlertReader
	Exports     ExportListService
	Hub         SocketHub
	Files       FileLocator
}

type Handler struct {
	svc Services
	log *zap.Logger
}

func NewHandler(svc Services, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) InitRouter() *chi.Mux {
	return h.InitRouterWithAuth(nil)
}

// InitRouterWithAuth keeps /health and /files public and puts everything
// else behind authMiddleware.
func (h *Handler) InitRouterWithAuth(authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	if h.svc.Files != nil {
		r.Get("/files/{file}", h.serveFile)
	}

	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}

		if h.svc.Hub != nil {
			r.Get("/ws", h.serveWebSocket)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			h.mountLedger(r)
		})
	})

	return r
}

func (h *Handler) mountLedger(r chi.Router) {
	if h.svc.Fees != nil {
		r.Route("/fee-structures", func(r chi.Router) {
			r.Get("/", h.listStructures)
			r.Post("/", h.createStructure)
			r.Delete("/{id}", h.deleteStructure)
		})
	}

	r.Route("/students/{studentID}", func(r chi.Router) {
		if h.svc.Fees != nil {
			r.Get("/fees", h.studentFees)
			r.Post("/fees", h.assignFee)
		}
		if h.svc.Collections != nil {
			r.Post("/collections", h.collect)
			r.Post("/advance/apply", h.applyAdvance)
		}
		if h.svc.Wallets != nil {
			r.Get("/wallet", h.getWallet)
			r.Get("/wallet/reconcile", h.reconcileWallet)
			r.Post("/wallet/credit", h.creditWallet)
			r.Post("/wallet/debit", h.debitWallet)
		}
	})

	if h.svc.Receipts != nil {
		r.Get("/receipts/{receiptID}", h.getReceipt)
	}
	if h.svc.Reversals != nil {
		r.Post("/receipts/{receiptID}/refund", h.refundReceipt)
		r.Post("/payments/{paymentID}/refund", h.refundPayment)
		r.Post("/payments/{paymentID}/move-to-advance", h.movePaymentToAdvance)
	}

	if h.svc.Reports != nil {
		r.Get("/reports/collections", h.collectionSummary)
	}
	if h.svc.Alerts != nil {
		r.Get("/alerts", h.alerts)
	}

	r.Route("/export", func(r chi.Router) {
		if h.svc.Exports != nil {
			r.Get("/", h.listExports)
			r.Get("/{export_id}", h.getExport)
		}
		if h.svc.Reports != nil {
			r.Post("/collections", h.exportCollections)
		}
	})
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, err := auth.PrincipalFrom(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return auth.Principal{}, false
	}
	return p, true
}

func actor(p auth.Principal) string {
	return fmt.Sprintf("user:%d", p.UserID)
}
