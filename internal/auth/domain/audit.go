package domain

import "time"

// Audit event types.
const (
	EventIdentityResolved   = "identity.resolved"
	EventIdentityRejected   = "identity.rejected"
	EventInvitationCreated  = "invitation.created"
	EventInvitationRevoked  = "invitation.revoked"
	EventInvitationConsumed = "invitation.consumed"
	EventSettingsUpdated    = "settings.updated"
)

// AuditEvent is a structured record of one security-relevant decision.
type AuditEvent struct {
	ID           string
	Type         string
	Actor        string // principal id performing or receiving the action
	Email        string
	Decision     Decision
	Reason       RejectionReason
	InvitationID string
	Candidates   []string // invitation ids considered on a failed resolution
	Provider     string
	OccurredAt   time.Time
}

// EventBootstrapped marks creation of the first owner account.
const EventBootstrapped = "system.bootstrapped"
