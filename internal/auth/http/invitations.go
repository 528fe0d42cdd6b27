package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
)

// InvitationHandler serves the administrative invitation endpoints.
type InvitationHandler struct {
	InvitationService *service.InvitationService
	Now               func() time.Time
}

// HandleCreate godoc
//
//	@Summary		Create an invitation
//	@Description	Issues an invitation for a role. The token is returned once and is not recoverable; invitations bound to an email are also sent to that address.
//	@Tags			Invitations
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.CreateInvitationRequest	true	"Invitation"
//	@Success		201		{object}	authsdk.CreateInvitationResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid role, email or expiry"
//	@Failure		403		{object}	authsdk.ErrorResponse	"Not an administrator"
//	@Router			/v1/invitations [post].
func (h *InvitationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.CreateInvitationRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	inv, token, err := h.InvitationService.Create(ctx, service.CreateInvitationRequest{
		Role:      domain.Role(strings.TrimSpace(req.Role)),
		Email:     strings.TrimSpace(req.Email),
		ExpiresAt: req.ExpiresAt,
		CreatedBy: httpx.UserIDFromContext(ctx),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.CreateInvitationResponse{
		Invitation: toInvitation(inv, h.Now()),
		Token:      token,
	})
}

// HandleList godoc
//
//	@Summary	List invitations
//	@Tags		Invitations
//	@Security	BearerAuth
//	@Produce	json
//	@Param		status	query		string	false	"pending, used or expired"
//	@Param		email	query		string	false	"Bound email"
//	@Param		after	query		string	false	"next_cursor of the previous page"
//	@Param		limit	query		int		false	"Page size, at most 200"
//	@Success	200		{object}	authsdk.ListInvitationsResponse
//	@Failure	400		{object}	authsdk.ErrorResponse	"Invalid filter"
//	@Router		/v1/invitations [get].
func (h *InvitationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := service.InvitationFilter{Email: q.Get("email")}

	if s := q.Get("status"); s != "" {
		status, err := domain.ParseInvitationStatus(s)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, authsdk.CodeInvalidRequest, "status must be pending, used or expired")
			return
		}
		f.Status = status
	}
	if after := q.Get("after"); after != "" {
		id, err := idx.Parse(after)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, authsdk.CodeInvalidRequest, "after must be a cursor from a previous page")
			return
		}
		f.After = id.String()
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			httpx.WriteError(w, http.StatusBadRequest, authsdk.CodeInvalidRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}

	page, err := h.InvitationService.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	now := h.Now()
	res := authsdk.ListInvitationsResponse{
		Invitations: make([]authsdk.Invitation, 0, len(page.Invitations)),
		NextCursor:  page.NextCursor,
	}
	for _, inv := range page.Invitations {
		res.Invitations = append(res.Invitations, toInvitation(inv, now))
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// HandleRevoke godoc
//
//	@Summary	Revoke an unused invitation
//	@Tags		Invitations
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Invitation id"
//	@Success	204
//	@Failure	404	{object}	authsdk.ErrorResponse	"Unknown invitation"
//	@Failure	409	{object}	authsdk.ErrorResponse	"Already used"
//	@Router		/v1/invitations/{id} [delete].
func (h *InvitationHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.InvitationService.Revoke(ctx, httpx.UserIDFromContext(ctx), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toInvitation(inv domain.Invitation, now time.Time) authsdk.Invitation {
	out := authsdk.Invitation{
		ID:        inv.ID,
		Email:     inv.EmailOrEmpty(),
		Role:      string(inv.Role),
		Status:    string(inv.StatusAt(now)),
		CreatedAt: inv.CreatedAt,
		ExpiresAt: inv.ExpiresAt,
		UsedAt:    inv.UsedAt,
	}
	if inv.CreatedBy != nil {
		out.CreatedBy = *inv.CreatedBy
	}
	if inv.UsedBy != nil {
		out.UsedBy = *inv.UsedBy
	}
	return out
}
