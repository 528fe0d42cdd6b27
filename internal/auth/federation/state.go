package federation

import (
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
)

// stateClaims travel in a signed cookie between start and callback. Nonce
// is also sent to the provider as the OAuth state parameter.
type stateClaims struct {
	jwt.RegisteredClaims

	Provider        string `json:"prv"`
	Nonce           string `json:"nonce"`
	Verifier        string `json:"pkce"`
	InvitationToken string `json:"inv,omitempty"`
}

func newStateClaims(issuer, provider, nonce, verifier, invitation string, ttl time.Duration, now time.Time) stateClaims {
	return stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{jwtx.AudienceFederationState},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Provider:        provider,
		Nonce:           nonce,
		Verifier:        verifier,
		InvitationToken: invitation,
	}
}

func (c stateClaims) Validate() error {
	if c.Provider == "" || c.Nonce == "" || c.Verifier == "" {
		return jwtx.ErrInvalidClaim
	}
	return nil
}
