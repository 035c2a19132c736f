package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"school-ledger/internal/domain"

	"go.uber.org/zap"
)

type ctxKey string

const principalKey ctxKey = "principal"

// Principal is the authenticated caller. TenantID scopes every ledger call.
type Principal struct {
	UserID   int64
	TenantID string
}

type TokenFinder interface {
	FindTokenByPlainToken(ctx context.Context, plainToken string) (*domain.PersonalAccessToken, error)
}

// SanctumMiddleware accepts "Authorization: Bearer <id>|<token>" or, for
// websocket upgrades, a ?token= query parameter.
func SanctumMiddleware(tokens TokenFinder, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var pat *domain.PersonalAccessToken

			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				if plain := strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")); plain != "" {
					p, err := tokens.FindTokenByPlainToken(r.Context(), plain)
					if err != nil {
						log.Debug("bearer token rejected", zap.Error(err), zap.String("path", r.URL.Path))
					} else {
						pat = p
					}
				}
			}

			if pat == nil {
				if plain := r.URL.Query().Get("token"); plain != "" {
					p, err := tokens.FindTokenByPlainToken(r.Context(), plain)
					if err != nil {
						log.Debug("query token rejected", zap.Error(err), zap.String("path", r.URL.Path))
					} else {
						pat = p
					}
				}
			}

			if pat == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if pat.Expired(time.Now()) {
				http.Error(w, "Token expired", http.StatusUnauthorized)
				return
			}
			if strings.TrimSpace(pat.TenantID) == "" {
				log.Warn("token has no tenant", zap.Int64("token_id", pat.ID), zap.Int64("user_id", pat.UserID))
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			ctx := WithPrincipal(r.Context(), Principal{UserID: pat.UserID, TenantID: pat.TenantID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return Principal{}, errors.New("principal not found in context")
	}
	return p, nil
}

func GetUserID(ctx context.Context) (int64, error) {
	p, err := PrincipalFrom(ctx)
	if err != nil {
		return 0, err
	}
	return p.UserID, nil
}

func GetTenantID(ctx context.Context) (string, error) {
	p, err := PrincipalFrom(ctx)
	if err != nil {
		return "", err
	}
	return p.TenantID, nil
}
