package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"school-ledger/internal/domain"
)

var errUnknownToken = errors.New("token not found")

// StaticTokens serves a fixed token table, used with the in-memory store
// where there is no personal_access_tokens table.
type StaticTokens map[string]domain.PersonalAccessToken

// ParseStaticTokens reads "token=tenant:user_id" pairs separated by commas.
func ParseStaticTokens(raw string) (StaticTokens, error) {
	out := StaticTokens{}
	for i, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, owner, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(token) == "" {
			return nil, fmt.Errorf("static token %d: want token=tenant:user_id", i+1)
		}
		tenant, user, ok := strings.Cut(owner, ":")
		if !ok || strings.TrimSpace(tenant) == "" {
			return nil, fmt.Errorf("static token %d: want token=tenant:user_id", i+1)
		}
		userID, err := strconv.ParseInt(strings.TrimSpace(user), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("static token %d: bad user id: %w", i+1, err)
		}
		out[strings.TrimSpace(token)] = domain.PersonalAccessToken{
			ID:       int64(i + 1),
			UserID:   userID,
			TenantID: strings.TrimSpace(tenant),
		}
	}
	return out, nil
}

func (s StaticTokens) FindTokenByPlainToken(_ context.Context, plainToken string) (*domain.PersonalAccessToken, error) {
	t, ok := s[strings.TrimSpace(plainToken)]
	if !ok {
		return nil, errUnknownToken
	}
	return &t, nil
}
