package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
)

type SettingsHandler struct {
	SettingsService *service.SettingsService
}

// HandleGet godoc
//
//	@Summary	Read the security settings
//	@Tags		Settings
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	authsdk.SecuritySettings
//	@Router		/v1/settings [get].
func (h *SettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	s, err := h.SettingsService.Current(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSettings(s))
}

// HandleUpdate godoc
//
//	@Summary		Replace the security settings
//	@Description	Takes effect for the next sign in attempt on this instance and within the cache TTL on others.
//	@Tags			Settings
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.SecuritySettings	true	"Settings"
//	@Success		200		{object}	authsdk.SecuritySettings
//	@Failure		400		{object}	authsdk.ErrorResponse	"Session timeout out of range"
//	@Router			/v1/settings [put].
func (h *SettingsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.SecuritySettings
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	s, err := h.SettingsService.Update(ctx, httpx.UserIDFromContext(ctx), domain.SecuritySettings{
		InviteOnlyMode:          req.InviteOnlyMode,
		OpenRegistrationAllowed: req.OpenRegistrationAllowed,
		Require2FAAllUsers:      req.Require2FAAllUsers,
		Require2FAAdminsOnly:    req.Require2FAAdminsOnly,
		SessionTimeoutSeconds:   req.SessionTimeoutSeconds,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSettings(s))
}

func toSettings(s domain.SecuritySettings) authsdk.SecuritySettings {
	return authsdk.SecuritySettings{
		InviteOnlyMode:          s.InviteOnlyMode,
		OpenRegistrationAllowed: s.OpenRegistrationAllowed,
		Require2FAAllUsers:      s.Require2FAAllUsers,
		Require2FAAdminsOnly:    s.Require2FAAdminsOnly,
		SessionTimeoutSeconds:   s.SessionTimeoutSeconds,
		UpdatedAt:               s.UpdatedAt,
	}
}
