package model

import "time"

// TokenStatus is the lifecycle state of a TokenRecord. Once Revoked, a
// record never transitions back to Active.
type TokenStatus string

const (
	TokenActive  TokenStatus = "active"
	TokenRevoked TokenStatus = "revoked"
)

// TokenRecord is the server-side state backing one signed credential,
// keyed by ID. Records are never deleted: revocation flips Status and sets
// RevokedAt, nothing else changes.
type TokenRecord struct {
	ID          string      `json:"id"`
	Name        string      `json:"name,omitempty"`
	Groups      []string    `json:"groups"`
	Status      TokenStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
	RevokedAt   *time.Time  `json:"revoked_at,omitempty"`
	Fingerprint string      `json:"fingerprint,omitempty"`
}

// IsExpired reports whether the record's ExpiresAt, if any, is in the past.
func (r *TokenRecord) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// MarshalBinary implements encoding.BinaryMarshaler via JSON.
func (r TokenRecord) MarshalBinary() ([]byte, error) {
	return jsonMarshal(r)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler via JSON.
func (r *TokenRecord) UnmarshalBinary(data []byte) error {
	return jsonUnmarshal(data, r)
}

// TokenInfo is the ephemeral result of a successful verification. It lives
// only in memory for the duration of the caller's request and is never
// persisted.
type TokenInfo struct {
	Credential string    `json:"-"`
	RecordID   string     `json:"record_id"`
	Groups     []string   `json:"groups"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}
