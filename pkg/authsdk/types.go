package authsdk

import "time"

// Session stages.
const (
	StageFull         = "full"
	StageMFAChallenge = "mfa_challenge"
	StageMFAEnroll    = "mfa_enroll"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error            string `json:"error" example:"no_valid_invitation"`
	ErrorDescription string `json:"error_description,omitempty" example:"No valid invitation was found for this account."`
	// ErrorKind qualifies provider_error: state_mismatch, provider_rejected
	// or transient_network_error.
	ErrorKind string `json:"error_kind,omitempty" example:"state_mismatch"`
}

// LoginRequest signs in with a local password. TOTPCode may be supplied up
// front to skip the challenge step.
type LoginRequest struct {
	Email    string `json:"email" example:"carol@example.com"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

// RegisterRequest creates a local account, with an invitation or through open
// registration.
type RegisterRequest struct {
	Email           string `json:"email" example:"bob@example.com"`
	Password        string `json:"password"`
	DisplayName     string `json:"display_name,omitempty"`
	InvitationToken string `json:"invitation_token,omitempty"`
}

// SessionResponse is returned by every sign in step.
type SessionResponse struct {
	Token       string    `json:"token"`
	Stage       string    `json:"stage" example:"full"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	Role        string    `json:"role" example:"editor"`
	IsNewUser   bool      `json:"is_new_user"`
	Requires2FA bool      `json:"requires_2fa"`
}

// MFACodeRequest carries a six digit TOTP code.
type MFACodeRequest struct {
	Code string `json:"code" example:"123456"`
}

// TOTPEnrollResponse is shown once while setting up an authenticator app.
type TOTPEnrollResponse struct {
	Secret  string `json:"secret" example:"JBSWY3DPEHPK3PXP"`
	URL     string `json:"url" example:"otpauth://totp/Gatehouse:bob@example.com?secret=JBSWY3DPEHPK3PXP&issuer=Gatehouse"`
	Issuer  string `json:"issuer"`
	Account string `json:"account"`
}

// UserInfoResponse describes the signed in principal.
type UserInfoResponse struct {
	UserID            string   `json:"user_id"`
	Email             string   `json:"email"`
	DisplayName       string   `json:"display_name"`
	AvatarURL         string   `json:"avatar_url,omitempty"`
	Role              string   `json:"role"`
	Roles             []string `json:"roles"`
	FederatedProvider string   `json:"federated_provider,omitempty"`
	HasPassword       bool     `json:"has_password"`
	MFAEnabled        bool     `json:"mfa_enabled"`
}

// CreateInvitationRequest issues an invitation. Email is omitted for an open
// invitation, which can only be redeemed with its token.
type CreateInvitationRequest struct {
	Email     string     `json:"email,omitempty" example:"bob@example.com"`
	Role      string     `json:"role" example:"editor"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Invitation is an invitation as listed to administrators. The token is never
// included.
type Invitation struct {
	ID        string     `json:"id"`
	Email     string     `json:"email,omitempty"`
	Role      string     `json:"role"`
	Status    string     `json:"status" example:"pending"`
	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	UsedBy    string     `json:"used_by,omitempty"`
}

// CreateInvitationResponse carries the raw token, which cannot be retrieved
// again.
type CreateInvitationResponse struct {
	Invitation Invitation `json:"invitation"`
	Token      string     `json:"token"`
}

type ListInvitationsResponse struct {
	Invitations []Invitation `json:"invitations"`
	NextCursor  string       `json:"next_cursor,omitempty"`
}

// SecuritySettings is the runtime registration and second factor policy.
type SecuritySettings struct {
	InviteOnlyMode          bool      `json:"invite_only_mode"`
	OpenRegistrationAllowed bool      `json:"open_registration_allowed"`
	Require2FAAllUsers      bool      `json:"require_2fa_all_users"`
	Require2FAAdminsOnly    bool      `json:"require_2fa_admins_only"`
	SessionTimeoutSeconds   int       `json:"session_timeout_seconds" example:"86400"`
	UpdatedAt               time.Time `json:"updated_at,omitzero"`
}

// BootstrapRequest creates the first owner of an empty installation.
type BootstrapRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type BootstrapResponse struct {
	OwnerID string `json:"owner_id"`
}

// HealthResponse is served by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
}
