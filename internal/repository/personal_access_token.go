package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"school-ledger/internal/domain"

	"go.uber.org/zap"
)

const userTokenableType = "App\\Models\\User"

var ErrTokenNotFound = errors.New("token not found")

type PersonalAccessTokenRepository struct {
	db  *sql.DB
	log *zap.Logger
}

func NewPersonalAccessTokenRepository(db *sql.DB, log *zap.Logger) *PersonalAccessTokenRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &PersonalAccessTokenRepository{db: db, log: log}
}

// splitPlainToken parses "<id>|<secret>" tokens. Tokens without an id prefix
// come back with a nil id.
func splitPlainToken(plainToken string) (*int64, string) {
	idx := strings.Index(plainToken, "|")
	if idx <= 0 {
		return nil, plainToken
	}
	id, err := strconv.ParseInt(plainToken[:idx], 10, 64)
	if err != nil {
		return nil, plainToken[idx+1:]
	}
	return &id, plainToken[idx+1:]
}

func hashToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return fmt.Sprintf("%x", sum)
}

func (r *PersonalAccessTokenRepository) FindTokenByPlainToken(ctx context.Context, plainToken string) (*domain.PersonalAccessToken, error) {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return nil, ErrTokenNotFound
	}

	tokenID, secret := splitPlainToken(plainToken)
	hash := hashToken(secret)
	now := time.Now()

	var pat domain.PersonalAccessToken
	scan := func(row *sql.Row) error {
		var abilities sql.NullString
		var expiresAt sql.NullTime
		if err := row.Scan(&pat.ID, &pat.TokenHash, &pat.UserID, &pat.TenantID, &abilities, &expiresAt); err != nil {
			return err
		}
		pat.Abilities = abilities.String
		pat.ExpiresAt = timePtr(expiresAt)
		return nil
	}

	if tokenID != nil {
		err := scan(r.db.QueryRowContext(ctx, `
			SELECT id, token, tokenable_id, tenant_id, abilities, expires_at
			FROM personal_access_tokens
			WHERE id = $1
			  AND tokenable_type = $2
			  AND (expires_at IS NULL OR expires_at > $3)
		`, *tokenID, userTokenableType, now))
		switch {
		case err == nil && (pat.TokenHash == hash || pat.TokenHash == secret):
			return &pat, nil
		case err == nil:
			r.log.Debug("token secret mismatch", zap.Int64("token_id", pat.ID))
		case !errors.Is(err, sql.ErrNoRows):
			r.log.Warn("token lookup by id failed", zap.Int64("token_id", *tokenID), zap.Error(err))
		}
	}

	err := scan(r.db.QueryRowContext(ctx, `
		SELECT id, token, tokenable_id, tenant_id, abilities, expires_at
		FROM personal_access_tokens
		WHERE tokenable_type = $1
		  AND token IN ($2, $3)
		  AND (expires_at IS NULL OR expires_at > $4)
		ORDER BY created_at DESC
		LIMIT 1
	`, userTokenableType, hash, secret, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		r.log.Warn("token lookup failed", zap.Error(err))
		return nil, ErrTokenNotFound
	}
	return &pat, nil
}
