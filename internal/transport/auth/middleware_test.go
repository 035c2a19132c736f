package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"school-ledger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens map[string]domain.PersonalAccessToken

func (f fakeTokens) FindTokenByPlainToken(_ context.Context, plain string) (*domain.PersonalAccessToken, error) {
	t, ok := f[plain]
	if !ok {
		return nil, errors.New("token not found")
	}
	return &t, nil
}

func TestSanctumMiddleware(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	tokens := fakeTokens{
		"1|good":    {ID: 1, UserID: 42, TenantID: "school-a"},
		"2|expired": {ID: 2, UserID: 43, TenantID: "school-a", ExpiresAt: &past},
		"3|orphan":  {ID: 3, UserID: 44},
	}

	var got Principal
	h := SanctumMiddleware(tokens, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := PrincipalFrom(r.Context())
		require.NoError(t, err)
		got = p
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "bearer header", header: "Bearer 1|good", want: http.StatusNoContent},
		{name: "query fallback", query: "1|good", want: http.StatusNoContent},
		{name: "bad header falls back to query", header: "Bearer nope", query: "1|good", want: http.StatusNoContent},
		{name: "missing", want: http.StatusUnauthorized},
		{name: "unknown", header: "Bearer 9|x", want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer 2|expired", want: http.StatusUnauthorized},
		{name: "no tenant", header: "Bearer 3|orphan", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = Principal{}
			target := "/alerts"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusNoContent {
				assert.Equal(t, Principal{UserID: 42, TenantID: "school-a"}, got)
			}
		})
	}
}

func TestPrincipalHelpers(t *testing.T) {
	_, err := GetTenantID(context.Background())
	assert.Error(t, err)

	ctx := WithPrincipal(context.Background(), Principal{UserID: 5, TenantID: "school-b"})
	tenant, err := GetTenantID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "school-b", tenant)
	user, err := GetUserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), user)
}
