package domain

import (
	"errors"
	"time"
)

// RejectionReason is the stable machine-readable code of an authorization
// rejection. Presentation layers localize from it.
type RejectionReason string

const (
	ReasonNoValidInvitation     RejectionReason = "no_valid_invitation"
	ReasonInvitationExpired     RejectionReason = "invitation_expired"
	ReasonInvitationAlreadyUsed RejectionReason = "invitation_already_used"
	ReasonProviderError         RejectionReason = "provider_error"
	ReasonRegistrationClosed    RejectionReason = "registration_closed"
)

var rejectionMessages = map[RejectionReason]string{
	ReasonNoValidInvitation:     "No valid invitation was found for this account.",
	ReasonInvitationExpired:     "This invitation has expired.",
	ReasonInvitationAlreadyUsed: "This invitation has already been used.",
	ReasonProviderError:         "The identity provider could not complete the sign in.",
	ReasonRegistrationClosed:    "Registration is currently closed.",
}

// Rejection is an expected, user-facing refusal to resolve an identity. It is
// returned as an error so callers can errors.As it out of any wrapping.
type Rejection struct {
	Reason  RejectionReason
	Message string

	// ProviderKind qualifies ReasonProviderError (state_mismatch,
	// provider_rejected, transient_network_error).
	ProviderKind string
}

func (r *Rejection) Error() string {
	if r.ProviderKind != "" {
		return "rejected: " + string(r.Reason) + " (" + r.ProviderKind + ")"
	}
	return "rejected: " + string(r.Reason)
}

// Reject builds a rejection carrying the default message for reason.
func Reject(reason RejectionReason) *Rejection {
	return &Rejection{Reason: reason, Message: rejectionMessages[reason]}
}

// RejectProvider builds a provider_error rejection for the given failure kind.
func RejectProvider(kind, message string) *Rejection {
	if message == "" {
		message = rejectionMessages[ReasonProviderError]
	}
	return &Rejection{Reason: ReasonProviderError, Message: message, ProviderKind: kind}
}

// AsRejection unwraps a *Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// Decision is the branch the resolver took.
type Decision string

const (
	DecisionLinkExisting Decision = "link_existing"
	DecisionCreateNew    Decision = "create_new"
	DecisionReject       Decision = "reject"
)

// Resolution is the successful outcome of resolving an assertion.
type Resolution struct {
	User         User
	Role         Role
	IsNewUser    bool
	Decision     Decision
	InvitationID string // set when an invitation was consumed
	Claimed      bool   // a federated identity was attached to an existing principal
	Requires2FA  bool
	SessionTTL   time.Duration
}
