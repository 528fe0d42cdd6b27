package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

type auditRepo struct {
	q queryer
}

func (r *auditRepo) AppendEvent(ctx context.Context, ev domain.AuditEvent) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_events
			(id, type, actor, email, decision, reason, invitation_id, candidates, provider, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ev.ID, ev.Type, ev.Actor, ev.Email, string(ev.Decision), string(ev.Reason),
		ev.InvitationID, strings.Join(ev.Candidates, " "), ev.Provider, ev.OccurredAt.UTC(),
	)
	return mapWriteErr(err)
}

func (r *auditRepo) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM audit_events WHERE occurred_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
