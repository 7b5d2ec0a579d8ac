package model

import "time"

// Scope distinguishes which plane a token authorizes calls against. The
// broker data plane and the admin/management plane use different scopes and
// are refreshed independently by the auth state manager.
type Scope string

const (
	ScopeDataPlane  Scope = "data-plane"
	ScopeAdminPlane Scope = "admin-plane"
)

// AuthToken is an acquired OAuth token along with the instant it should be
// treated as expired. ExpiresAt is derived from the server's expires_in at
// acquisition time minus a configured safety margin, so callers never race a
// token that the server considers valid only in theory.
type AuthToken struct {
	Token     string
	TokenType string
	ExpiresAt time.Time
}

// Expired reports whether the token is no longer safe to present, given now.
func (t AuthToken) Expired(now time.Time) bool {
	if t.Token == "" {
		return true
	}
	return !now.Before(t.ExpiresAt)
}

// NewAuthToken derives ExpiresAt from expiresIn (as reported by the token
// endpoint) minus safetyMargin, anchored at acquiredAt.
func NewAuthToken(token, tokenType string, expiresIn time.Duration, safetyMargin time.Duration, acquiredAt time.Time) AuthToken {
	margin := safetyMargin
	if margin <= 0 {
		margin = 45 * time.Second
	}
	exp := acquiredAt.Add(expiresIn - margin)
	if exp.Before(acquiredAt) {
		exp = acquiredAt
	}
	return AuthToken{Token: token, TokenType: tokenType, ExpiresAt: exp}
}
