package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// MFAHandler handles TOTP management endpoints.
type MFAHandler struct {
	MFAService *service.MFAService
}

// HandleEnroll handles POST /v1/mfa/totp/enroll
//
//	@Summary		Enroll in TOTP MFA
//	@Description	Generates a TOTP secret. It takes effect once a code is confirmed through POST /v1/mfa/totp/verify, or POST /v1/auth/mfa from an mfa_enroll session.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TOTPEnrollResponse	"TOTP secret and otpauth URL"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Invalid or missing session"
//	@Failure		409	{object}	authsdk.ErrorResponse		"MFA already enabled"
//	@Router			/v1/mfa/totp/enroll [post].
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromContext(ctx)

	e, err := h.MFAService.EnrollTOTP(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	slogx.FromContext(ctx).Info("TOTP enrolment started", "user_id", userID)
	httpx.WriteJSON(w, http.StatusOK, authsdk.TOTPEnrollResponse{
		Secret:  e.Secret,
		URL:     e.URL,
		Issuer:  e.Issuer,
		Account: e.Account,
	})
}

// HandleVerify handles POST /v1/mfa/totp/verify
//
//	@Summary		Confirm TOTP enrolment
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.MFACodeRequest	true	"TOTP code"
//	@Success		204
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid session or code"
//	@Failure		409	{object}	authsdk.ErrorResponse	"Not enrolled or already enabled"
//	@Router			/v1/mfa/totp/verify [post].
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.MFACodeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	userID := httpx.UserIDFromContext(ctx)
	if err := h.MFAService.ConfirmTOTP(ctx, userID, strings.TrimSpace(req.Code)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	slogx.FromContext(ctx).Info("TOTP enabled", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleRemove handles DELETE /v1/mfa/totp
//
//	@Summary		Remove TOTP MFA
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.MFACodeRequest	true	"Current TOTP code"
//	@Success		204
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid session or code"
//	@Failure		409	{object}	authsdk.ErrorResponse	"MFA not enabled"
//	@Router			/v1/mfa/totp [delete].
func (h *MFAHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.MFACodeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	userID := httpx.UserIDFromContext(ctx)
	if err := h.MFAService.RemoveTOTP(ctx, userID, strings.TrimSpace(req.Code)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	slogx.FromContext(ctx).Info("TOTP removed", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}
