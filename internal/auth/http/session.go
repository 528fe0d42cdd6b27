package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
)

// SessionHandler serves the local sign in, registration and second factor
// endpoints.
type SessionHandler struct {
	Authenticator *service.Authenticator
	CookieSecure  bool
}

// HandleLogin godoc
//
//	@Summary		Sign in with email and password
//	@Description	Verifies local credentials. When a second factor is enabled or required the session stage is mfa_challenge or mfa_enroll and only POST /v1/auth/mfa accepts it.
//	@Tags			Sessions
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.SessionResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed request"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid credentials or TOTP code"
//	@Failure		403		{object}	authsdk.ErrorResponse	"Sign in rejected"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limited"
//	@Failure		503		{object}	authsdk.ErrorResponse	"Store unavailable"
//	@Router			/v1/auth/login [post].
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	s, err := h.Authenticator.LoginPassword(r.Context(), req.Email, req.Password, strings.TrimSpace(req.TOTPCode))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSession(w, http.StatusOK, s, h.CookieSecure)
}

// HandleRegister godoc
//
//	@Summary		Create a local account
//	@Description	Redeems the invitation named by invitation_token, or the newest valid invitation for the email. Without either, succeeds only while open registration is enabled.
//	@Tags			Sessions
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest	true	"Registration"
//	@Success		201		{object}	authsdk.SessionResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed request"
//	@Failure		403		{object}	authsdk.ErrorResponse	"no_valid_invitation, invitation_expired, invitation_already_used or registration_closed"
//	@Failure		409		{object}	authsdk.ErrorResponse	"Account already exists"
//	@Failure		503		{object}	authsdk.ErrorResponse	"Store unavailable"
//	@Router			/v1/auth/register [post].
func (h *SessionHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	s, err := h.Authenticator.Register(r.Context(), service.RegisterRequest{
		Email:           req.Email,
		Password:        req.Password,
		DisplayName:     strings.TrimSpace(req.DisplayName),
		InvitationToken: strings.TrimSpace(req.InvitationToken),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSession(w, http.StatusCreated, s, h.CookieSecure)
}

// HandleCompleteMFA godoc
//
//	@Summary		Complete the second factor
//	@Description	Upgrades an mfa_challenge or mfa_enroll session to a full session. For mfa_enroll the code confirms the secret from POST /v1/mfa/totp/enroll.
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFACodeRequest	true	"TOTP code"
//	@Success		200		{object}	authsdk.SessionResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid session or code"
//	@Failure		409		{object}	authsdk.ErrorResponse	"No secret pending confirmation"
//	@Router			/v1/auth/mfa [post].
func (h *SessionHandler) HandleCompleteMFA(w http.ResponseWriter, r *http.Request) {
	partial, ok := httpx.SessionFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, authsdk.CodeInvalidToken, "Authentication required")
		return
	}

	var req authsdk.MFACodeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	s, err := h.Authenticator.CompleteMFA(r.Context(), partial, strings.TrimSpace(req.Code))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSession(w, http.StatusOK, s, h.CookieSecure)
}

// HandleLogout godoc
//
//	@Summary	Clear the session cookie
//	@Tags		Sessions
//	@Success	204
//	@Router		/v1/auth/logout [post].
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     httpx.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func toSessionResponse(s service.Session) authsdk.SessionResponse {
	res := s.Resolution
	return authsdk.SessionResponse{
		Token:       s.Token,
		Stage:       string(s.Stage),
		ExpiresAt:   s.ExpiresAt,
		UserID:      res.User.ID,
		Email:       res.User.Email,
		Role:        string(res.Role),
		IsNewUser:   res.IsNewUser,
		Requires2FA: res.Requires2FA,
	}
}

// setSessionCookie stores the token for browser clients.
func setSessionCookie(w http.ResponseWriter, s service.Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     httpx.SessionCookie,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeSession(w http.ResponseWriter, code int, s service.Session, secure bool) {
	setSessionCookie(w, s, secure)
	httpx.WriteJSON(w, code, toSessionResponse(s))
}
