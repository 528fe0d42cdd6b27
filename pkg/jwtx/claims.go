package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Stage is how far a session has progressed through authentication. Only a
// full session reaches protected endpoints; the other stages can only
// complete the second factor.
type Stage string

const (
	StageFull         Stage = "full"
	StageMFAChallenge Stage = "mfa_challenge" // second factor enrolled, code pending
	StageMFAEnroll    Stage = "mfa_enroll"    // second factor required but not yet enrolled
)

func (s Stage) Valid() bool {
	return s == StageFull || s == StageMFAChallenge || s == StageMFAEnroll
}

// Authentication Methods Reference values.
const (
	AMRPassword  = "pwd"
	AMRFederated = "fed"
	AMROTP       = "otp"
	AMRMFA       = "mfa"
)

// Audiences keep the two token kinds from being accepted in place of each other.
const (
	AudienceSession         = "gatehouse:session"
	AudienceFederationState = "gatehouse:federation-state"
)

// SessionClaims are carried by every session token.
type SessionClaims struct {
	jwt.RegisteredClaims

	Email string   `json:"email"`
	Role  string   `json:"role"`
	Stage Stage    `json:"stage"`
	AMR   []string `json:"amr,omitempty"`
}

// NewSessionClaims builds claims for subject valid for ttl from now.
func NewSessionClaims(subject, email, role string, stage Stage, amr []string, ttl time.Duration, issuer string, now time.Time) SessionClaims {
	return SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{AudienceSession},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Email: email,
		Role:  role,
		Stage: stage,
		AMR:   amr,
	}
}

// Validate is called by the parser after the registered claims pass.
func (c SessionClaims) Validate() error {
	if c.Subject == "" || !c.Stage.Valid() {
		return ErrInvalidClaim
	}
	return nil
}

// Full reports whether the session completed every required factor.
func (c SessionClaims) Full() bool { return c.Stage == StageFull }

func (c SessionClaims) HasAMR(method string) bool { return slices.Contains(c.AMR, method) }

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
