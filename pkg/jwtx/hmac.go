package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinKeySize is the shortest HS256 secret accepted, in bytes.
const MinKeySize = 32

var (
	ErrWeakKey = errors.New("jwtx: signing key shorter than 32 bytes")

	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrInvalidSig   = errors.New("jwtx: invalid signature")
	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// Verifier validates a session token and returns its claims.
type Verifier interface {
	Verify(token string) (SessionClaims, error)
}

// HMAC signs and verifies HS256 tokens with one shared secret. Sessions and
// federation state never leave this service, so no public key distribution
// is needed.
type HMAC struct {
	key    []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

func NewHMAC(key []byte, issuer string) (*HMAC, error) {
	if len(key) < MinKeySize {
		return nil, ErrWeakKey
	}
	return &HMAC{key: key, issuer: issuer, leeway: 30 * time.Second}, nil
}

func (h *HMAC) Issuer() string { return h.issuer }

// WithClock makes verification judge expiry against now instead of the
// wall clock.
func (h *HMAC) WithClock(now func() time.Time) *HMAC {
	h.now = now
	return h
}

func (h *HMAC) Sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.key)
}

// ParseInto verifies token and decodes it into claims. The issuer must match
// and audience, when set, must be present.
func (h *HMAC) ParseInto(token string, claims jwt.Claims, audience string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(h.issuer),
		jwt.WithLeeway(h.leeway),
		jwt.WithExpirationRequired(),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	if h.now != nil {
		opts = append(opts, jwt.WithTimeFunc(h.now))
	}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return h.key, nil
	}, opts...)
	return mapParseErr(err)
}

// Verify implements Verifier for session tokens.
func (h *HMAC) Verify(token string) (SessionClaims, error) {
	var c SessionClaims
	if err := h.ParseInto(token, &c, AudienceSession); err != nil {
		return SessionClaims{}, err
	}
	return c, nil
}

func mapParseErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrAudience
	case errors.Is(err, ErrInvalidClaim):
		return ErrInvalidClaim
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
}
