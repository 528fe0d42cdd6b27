package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
)

type UserInfoHandler struct {
	UserService *service.UserService
}

// ServeHTTP godoc
//
//	@Summary		Get the signed in principal
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserInfoResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid or missing session"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Second factor pending"
//	@Router			/v1/me [get].
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := h.UserService.GetProfile(ctx, httpx.UserIDFromContext(ctx))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	u := p.User
	res := authsdk.UserInfoResponse{
		UserID:      u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Role:        string(p.Role),
		Roles:       make([]string, 0, len(p.Roles)),
		HasPassword: u.HasPassword(),
		MFAEnabled:  u.MFAEnabled(),
	}
	for _, role := range p.Roles {
		res.Roles = append(res.Roles, string(role))
	}
	if u.FederatedProvider != nil {
		res.FederatedProvider = *u.FederatedProvider
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}
