package model

import "time"

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to a user and contains metadata for expiry
// and revocation.  The plain token is not stored; only its
// SHA‑256 hash.
//
// Fields:
//
//	ID         – primary key identifier.
//	UserID     – owner of the token.
//	TokenHash  – SHA‑256 hex digest of the token value.
//	Persistent – issued with "remember me"; rotation keeps the same lifetime policy.
//	ExpiresAt  – expiration timestamp of the token.
//	RevokedAt  – when the token was revoked (null if still active).
//	CreatedAt  – timestamp of creation.
type RefreshToken struct {
	ID         uint64     // refresh_tokens.id
	UserID     uint64     // refresh_tokens.user_id
	TokenHash  string     // refresh_tokens.token_hash
	Persistent bool       // refresh_tokens.persistent
	ExpiresAt  time.Time  // refresh_tokens.expires_at
	RevokedAt  *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt  time.Time  // refresh_tokens.created_at
}

// Usable reports whether the token may still be exchanged at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
