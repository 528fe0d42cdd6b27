package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var (
	ErrInvalidTOTPCode   = errors.New("invalid TOTP code")
	ErrMFANotEnrolled    = errors.New("MFA not enrolled for this user")
	ErrMFANotEnabled     = errors.New("MFA not enabled for this user")
	ErrMFAAlreadyEnabled = errors.New("MFA already enabled for this user")
)

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type MFAService struct {
	Store  store.Store
	Issuer string // shown in authenticator apps
	Now    func() time.Time
}

// EnrollTOTP stores a fresh secret. MFA stays off until ConfirmTOTP sees a
// valid code. Re-enrolling before confirmation replaces the secret.
func (s *MFAService) EnrollTOTP(ctx context.Context, userID string) (domain.MFAEnrollment, error) {
	u, err := getUser(ctx, s.Store, userID)
	if err != nil {
		return domain.MFAEnrollment{}, err
	}
	if u.MFAEnabled() {
		return domain.MFAEnrollment{}, ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: u.Email,
		Period:      totpOpts.Period,
		Digits:      totpOpts.Digits,
		Algorithm:   totpOpts.Algorithm,
	})
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("generate TOTP key: %w", err)
	}

	if err := s.Store.Users().UpdateMFASecret(ctx, userID, key.Secret(), nowFrom(s.Now)); err != nil {
		return domain.MFAEnrollment{}, unavailable(err)
	}

	return domain.MFAEnrollment{
		Secret:  key.Secret(),
		URL:     key.URL(),
		Issuer:  s.Issuer,
		Account: u.Email,
	}, nil
}

// ConfirmTOTP enables MFA once the user proves the secret was imported.
func (s *MFAService) ConfirmTOTP(ctx context.Context, userID, code string) error {
	u, err := getUser(ctx, s.Store, userID)
	if err != nil {
		return err
	}
	if u.MFAEnabled() {
		return ErrMFAAlreadyEnabled
	}
	if u.MFASecret == nil {
		return ErrMFANotEnrolled
	}
	if !s.validate(code, *u.MFASecret) {
		return ErrInvalidTOTPCode
	}
	return unavailable(s.Store.Users().EnableMFA(ctx, userID, nowFrom(s.Now)))
}

// VerifyTOTP checks a code against an enabled second factor.
func (s *MFAService) VerifyTOTP(ctx context.Context, userID, code string) error {
	u, err := getUser(ctx, s.Store, userID)
	if err != nil {
		return err
	}
	return s.verifyUser(u, code)
}

func (s *MFAService) verifyUser(u domain.User, code string) error {
	if !u.MFAEnabled() || u.MFASecret == nil {
		return ErrMFANotEnabled
	}
	if !s.validate(code, *u.MFASecret) {
		return ErrInvalidTOTPCode
	}
	return nil
}

// RemoveTOTP disables MFA after a valid code. If settings require a second
// factor the next login asks for enrolment again.
func (s *MFAService) RemoveTOTP(ctx context.Context, userID, code string) error {
	if err := s.VerifyTOTP(ctx, userID, code); err != nil {
		return err
	}
	return unavailable(s.Store.Users().DisableMFA(ctx, userID, nowFrom(s.Now)))
}

func (s *MFAService) validate(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, nowFrom(s.Now), totpOpts)
	return err == nil && ok
}
