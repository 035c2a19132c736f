package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"school-ledger/internal/domain"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type MethodTotal struct {
	Method domain.PaymentMethod `json:"method"`
	Count  int                  `json:"count"`
	Total  domain.Money         `json:"total"`
}

type CollectionSummary struct {
	From     time.Time     `json:"from"`
	To       time.Time     `json:"to"`
	Count    int           `json:"count"`
	Total    domain.Money  `json:"total"`
	ByMethod []MethodTotal `json:"by_method"`
}

// FileStore keeps generated report files and hands out download URLs.
type FileStore interface {
	Save(ctx context.Context, fileName string, data []byte) (string, error)
	URL(ctx context.Context, name string) (string, error)
}

type ExportNotifier interface {
	NotifyExportProgress(ctx context.Context, tenantID string, userID int64, exportID string, progress float64, stage string) error
	NotifyExportComplete(ctx context.Context, tenantID string, userID int64, exportID, url, filename string) error
	NotifyExportFailed(ctx context.Context, tenantID string, userID int64, exportID, errMsg string) error
}

type collectionRow struct {
	Payment domain.FeePayment
	FeeName string
}

type collectionColumn struct {
	Header string
	Value  func(r collectionRow) any
}

var collectionColumns = map[string]collectionColumn{
	"date":       {Header: "Date", Value: func(r collectionRow) any { return r.Payment.Date.Format("2006-01-02 15:04:05") }},
	"receipt_no": {Header: "Receipt No", Value: func(r collectionRow) any { return r.Payment.ReceiptNo }},
	"consolidated_receipt_no": {Header: "Consolidated Receipt No", Value: func(r collectionRow) any {
		if r.Payment.ConsolidatedReceiptNo == nil {
			return ""
		}
		return *r.Payment.ConsolidatedReceiptNo
	}},
	"student_id":   {Header: "Student", Value: func(r collectionRow) any { return r.Payment.StudentID }},
	"fee_name":     {Header: "Fee", Value: func(r collectionRow) any { return r.FeeName }},
	"amount":       {Header: "Amount", Value: func(r collectionRow) any { return r.Payment.Amount.Decimal().InexactFloat64() }},
	"method":       {Header: "Method", Value: func(r collectionRow) any { return string(r.Payment.Method) }},
	"status":       {Header: "Status", Value: func(r collectionRow) any { return string(r.Payment.Status) }},
	"reference":    {Header: "Reference", Value: func(r collectionRow) any { return r.Payment.Reference }},
	"collected_by": {Header: "Collected By", Value: func(r collectionRow) any { return r.Payment.CollectedBy }},
	"remarks":      {Header: "Remarks", Value: func(r collectionRow) any { return r.Payment.Remarks }},
	"refund_reason": {Header: "Refund Reason", Value: func(r collectionRow) any {
		if r.Payment.RefundReason == nil {
			return ""
		}
		return *r.Payment.RefundReason
	}},
	"refunded_at": {Header: "Refunded At", Value: func(r collectionRow) any { return timePtr(r.Payment.RefundedAt) }},
}

var defaultCollectionFields = []string{"date", "receipt_no", "consolidated_receipt_no", "student_id", "fee_name", "amount", "method", "status", "reference", "collected_by"}

const maxPaymentsForExport = 500_000

type ReportService struct {
	deps     LedgerDeps
	statuses exportStatuses
	files    FileStore
	ws       ExportNotifier
}

func NewReportService(deps LedgerDeps, cache ExportStatusCache, cachePrefix string, files FileStore, ws ExportNotifier) *ReportService {
	return &ReportService{
		deps:     deps.withDefaults(),
		statuses: newExportStatuses(cache, cachePrefix),
		files:    files,
		ws:       ws,
	}
}

// CollectionSummary totals settled payments dated within [from, to].
func (s *ReportService) CollectionSummary(ctx context.Context, tenantID string, from, to time.Time) (CollectionSummary, error) {
	if strings.TrimSpace(tenantID) == "" {
		return CollectionSummary{}, domain.ErrTenantRequired
	}
	if to.Before(from) {
		return CollectionSummary{}, fmt.Errorf("%w: report range ends before it starts", domain.ErrInvalidInput)
	}

	payments, err := s.deps.Store.Payments(ctx, tenantID, domain.PaymentsFilter{From: &from, To: &to, SettledOnly: true})
	if err != nil {
		return CollectionSummary{}, err
	}

	out := CollectionSummary{From: from, To: to, ByMethod: []MethodTotal{}}
	byMethod := map[domain.PaymentMethod]*MethodTotal{}
	for _, p := range payments {
		out.Count++
		out.Total += p.Amount
		m := byMethod[p.Method]
		if m == nil {
			m = &MethodTotal{Method: p.Method}
			byMethod[p.Method] = m
		}
		m.Count++
		m.Total += p.Amount
	}
	for _, m := range byMethod {
		out.ByMethod = append(out.ByMethod, *m)
	}
	sort.Slice(out.ByMethod, func(i, j int) bool { return out.ByMethod[i].Method < out.ByMethod[j].Method })
	return out, nil
}

// StartCollectionsExport queues an XLSX export of payments and returns its id.
// Progress is stored in redis and pushed over the websocket hub.
func (s *ReportService) StartCollectionsExport(ctx context.Context, tenantID string, userID int64, selected []string, filter domain.PaymentsFilter) (string, error) {
	if strings.TrimSpace(tenantID) == "" {
		return "", domain.ErrTenantRequired
	}
	if len(selected) == 0 {
		selected = defaultCollectionFields
	}
	for _, key := range selected {
		if _, ok := collectionColumns[key]; !ok {
			return "", fmt.Errorf("%w: unknown export field %q", domain.ErrInvalidInput, key)
		}
	}

	n, err := s.deps.Store.CountPayments(ctx, tenantID, filter)
	if err != nil {
		return "", err
	}
	if n > maxPaymentsForExport {
		return "", fmt.Errorf("%w: too many payments to export (more than %d)", domain.ErrInvalidInput, maxPaymentsForExport)
	}

	exportID := fmt.Sprintf("exports:%s", uuid.NewString())
	status := &ExportStatus{
		Key:      exportID,
		Type:     "collections",
		TenantID: tenantID,
		UserID:   userID,
		Filters:  buildCollectionsFiltersMap(filter, selected),
		Created:  s.deps.Clock.Now(),
	}
	if err := s.statuses.save(ctx, status); err != nil {
		s.deps.Logger.Warn("save export status failed", zap.String("export_id", exportID), zap.Error(err))
	}

	go s.runCollectionsExport(context.Background(), status, selected, filter)

	return exportID, nil
}

func (s *ReportService) runCollectionsExport(ctx context.Context, status *ExportStatus, selected []string, filter domain.PaymentsFilter) {
	log := s.deps.Logger.With(zap.String("export_id", status.Key), zap.String("tenant_id", status.TenantID))

	fail := func(msg string) {
		log.Error("collections export failed", zap.String("error", msg))
		status.Error = &msg
		status.Progress = 100
		_ = s.statuses.save(ctx, status)
		if s.ws != nil {
			_ = s.ws.NotifyExportFailed(ctx, status.TenantID, status.UserID, status.Key, msg)
		}
	}

	payments, err := s.deps.Store.Payments(ctx, status.TenantID, filter)
	if err != nil {
		fail(fmt.Sprintf("load payments: %v", err))
		return
	}
	names, err := s.feeNames(ctx, status.TenantID, payments)
	if err != nil {
		fail(fmt.Sprintf("load fee lines: %v", err))
		return
	}

	var cols []collectionColumn
	for _, key := range selected {
		if col, ok := collectionColumns[key]; ok {
			cols = append(cols, col)
		}
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Collections"
	_ = f.SetSheetName(f.GetSheetName(0), sheet)
	_ = f.SetDocProps(&excelize.DocProperties{Creator: fmt.Sprintf("user_%d", status.UserID)})

	for i, col := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, col.Header)
	}

	total := len(payments)
	const chunkSize = 1000
	for i, p := range payments {
		row := collectionRow{Payment: p, FeeName: names[p.StudentFeeID]}
		for colIdx, col := range cols {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, i+2)
			_ = f.SetCellValue(sheet, cell, col.Value(row))
		}

		if (i+1)%chunkSize == 0 || i == total-1 {
			progress := math.Round(float64(i+1) / float64(total) * 100.0)
			if progress >= 100 {
				progress = 95
			}
			status.Progress = progress
			_ = s.statuses.save(ctx, status)
			if s.ws != nil {
				_ = s.ws.NotifyExportProgress(ctx, status.TenantID, status.UserID, status.Key, progress, "generating")
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		fail(fmt.Sprintf("render xlsx: %v", err))
		return
	}

	if s.files == nil {
		fail("file storage not configured")
		return
	}

	fileName := fmt.Sprintf("collections_%s.xlsx", s.deps.Clock.Now().Format("20060102_150405"))
	status.Progress = 95
	_ = s.statuses.save(ctx, status)
	if s.ws != nil {
		_ = s.ws.NotifyExportProgress(ctx, status.TenantID, status.UserID, status.Key, 95, "uploading")
	}

	saved, err := s.files.Save(ctx, fileName, buf.Bytes())
	if err != nil {
		fail(fmt.Sprintf("save export failed: %v", err))
		return
	}
	url, err := s.files.URL(ctx, saved)
	if err != nil {
		fail(fmt.Sprintf("build download url: %v", err))
		return
	}

	status.FileURL = &url
	status.Progress = 100
	_ = s.statuses.save(ctx, status)
	if s.ws != nil {
		_ = s.ws.NotifyExportProgress(ctx, status.TenantID, status.UserID, status.Key, 100, "ready")
		_ = s.ws.NotifyExportComplete(ctx, status.TenantID, status.UserID, status.Key, url, fileName)
	}
	log.Info("collections export ready", zap.Int("rows", total), zap.String("file", saved))
}

func (s *ReportService) feeNames(ctx context.Context, tenantID string, payments []domain.FeePayment) (map[string]string, error) {
	ids := make([]string, 0, len(payments))
	seen := map[string]bool{}
	for _, p := range payments {
		if !seen[p.StudentFeeID] {
			seen[p.StudentFeeID] = true
			ids = append(ids, p.StudentFeeID)
		}
	}
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	fees, err := s.deps.Store.StudentFeesByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	for _, f := range fees {
		names[f.ID] = f.Name
	}
	return names, nil
}

func buildCollectionsFiltersMap(f domain.PaymentsFilter, fields []string) map[string]interface{} {
	m := map[string]interface{}{
		"from":         nil,
		"to":           nil,
		"student_id":   nil,
		"methods":      nil,
		"settled_only": f.SettledOnly,
		"fields":       fields,
	}
	if f.From != nil {
		m["from"] = f.From.Format("2006-01-02")
	}
	if f.To != nil {
		m["to"] = f.To.Format("2006-01-02")
	}
	if f.StudentID != nil {
		m["student_id"] = *f.StudentID
	}
	if len(f.Methods) > 0 {
		m["methods"] = f.Methods
	}
	return m
}

func timePtr(p *time.Time) string {
	if p == nil {
		return ""
	}
	return p.Format("2006-01-02 15:04:05")
}
