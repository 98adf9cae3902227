package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// claims is the exact, closed claim set a signed credential carries: jti
// (the record id), groups, iat, exp (optional), nbf (always == iat), and
// aud. The record's human-readable name is never embedded here.
type claims struct {
	Groups []string `json:"groups"`
	jwt.RegisteredClaims
}

func newClaims(id string, groups []string, issuedAt time.Time, expiresAt *time.Time, audience string) claims {
	c := claims{
		Groups: groups,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			Audience:  jwt.ClaimStrings{audience},
		},
	}
	if expiresAt != nil {
		c.ExpiresAt = jwt.NewNumericDate(*expiresAt)
	}
	return c
}
