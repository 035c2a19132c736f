package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
)

// ExportStatus is kept in redis while an export runs and for a while after.
type ExportStatus struct {
	Key      string    `json:"key"`
	Type     string    `json:"type"`
	TenantID string    `json:"tenant_id"`
	UserID   int64     `json:"user_id"`
	Filters  any       `json:"filters"`
	Progress float64   `json:"progress"`
	FileURL  *string   `json:"file_url"`
	Error    *string   `json:"error,omitempty"`
	Created  time.Time `json:"created_at"`
}

// ExportView is an ExportStatus as listed to its owner.
type ExportView struct {
	Key       string    `json:"key"`
	Type      string    `json:"type"`
	UserID    int64     `json:"user_id"`
	Progress  float64   `json:"progress"`
	FileURL   *string   `json:"file_url"`
	Error     *string   `json:"error,omitempty"`
	Filters   any       `json:"filters"`
	CreatedAt time.Time `json:"created_at"`
	Age       string    `json:"created_ago"`
}

const (
	exportSetKey = "export_ids"
	exportTTL    = 20 * time.Minute
)

var ErrExportNotFound = errors.New("export not found")

// ExportStatusCache keeps export statuses with a TTL plus an index of their keys.
type ExportStatusCache interface {
	SaveTracked(ctx context.Context, setKey, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Members(ctx context.Context, setKey string) ([]string, error)
	Forget(ctx context.Context, setKey string, keys ...string) error
}

type exportStatuses struct {
	cache  ExportStatusCache
	setKey string
}

func newExportStatuses(cache ExportStatusCache, cachePrefix string) exportStatuses {
	return exportStatuses{cache: cache, setKey: cachePrefix + exportSetKey}
}

func (e exportStatuses) save(ctx context.Context, st *ExportStatus) error {
	if e.cache == nil {
		return nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return e.cache.SaveTracked(ctx, e.setKey, st.Key, string(data), exportTTL)
}

func (e exportStatuses) load(ctx context.Context, key string) (ExportStatus, error) {
	data, found, err := e.cache.Get(ctx, key)
	if err != nil {
		return ExportStatus{}, fmt.Errorf("failed to read export status: %w", err)
	}
	if !found {
		return ExportStatus{}, ErrExportNotFound
	}
	var st ExportStatus
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return ExportStatus{}, fmt.Errorf("failed to parse export status: %w", err)
	}
	return st, nil
}

type ExportService struct {
	statuses exportStatuses
	now      func() time.Time
}

func NewExportService(cache ExportStatusCache, cachePrefix string) *ExportService {
	return &ExportService{
		statuses: newExportStatuses(cache, cachePrefix),
		now:      time.Now,
	}
}

// GetExports lists the caller's exports, newest first. Expired entries are skipped.
func (s *ExportService) GetExports(ctx context.Context, tenantID string, userID int64) ([]ExportView, error) {
	if s.statuses.cache == nil {
		return nil, errors.New("redis client not configured")
	}

	keys, err := s.statuses.cache.Members(ctx, s.statuses.setKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get export keys: %w", err)
	}

	var (
		statuses []ExportStatus
		expired  []string
	)
	for _, key := range keys {
		st, err := s.statuses.load(ctx, key)
		if errors.Is(err, ErrExportNotFound) {
			expired = append(expired, key)
			continue
		}
		if err != nil {
			continue
		}
		if st.TenantID == tenantID && st.UserID == userID {
			statuses = append(statuses, st)
		}
	}
	if len(expired) > 0 {
		// best effort, the next listing retries
		_ = s.statuses.cache.Forget(ctx, s.statuses.setKey, expired...)
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Created.After(statuses[j].Created)
	})

	exports := make([]ExportView, 0, len(statuses))
	for _, st := range statuses {
		exports = append(exports, s.view(st))
	}
	return exports, nil
}

func (s *ExportService) GetExport(ctx context.Context, tenantID string, userID int64, exportID string) (ExportView, error) {
	if s.statuses.cache == nil {
		return ExportView{}, errors.New("redis client not configured")
	}

	st, err := s.statuses.load(ctx, exportID)
	if err != nil {
		return ExportView{}, err
	}
	if st.TenantID != tenantID || st.UserID != userID {
		return ExportView{}, ErrExportNotFound
	}
	return s.view(st), nil
}

func (s *ExportService) view(st ExportStatus) ExportView {
	return ExportView{
		Key:       st.Key,
		Type:      st.Type,
		UserID:    st.UserID,
		Progress:  st.Progress,
		FileURL:   st.FileURL,
		Error:     st.Error,
		Filters:   st.Filters,
		CreatedAt: st.Created,
		Age:       humanize.RelTime(st.Created, s.now(), "ago", "from now"),
	}
}
