package domain

import "time"

// PersonalAccessToken is a bearer token issued to a school staff user. The
// tenant it belongs to scopes every ledger call made with it.
type PersonalAccessToken struct {
	ID        int64
	TokenHash string
	UserID    int64
	TenantID  string
	Abilities string
	ExpiresAt *time.Time
}

func (t PersonalAccessToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}
