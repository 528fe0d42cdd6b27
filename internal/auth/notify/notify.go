// Package notify delivers invitation messages. Delivery is fire and forget:
// the caller never waits on it and a failure never undoes the invitation.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// Invitation is what a recipient needs to redeem an invitation.
type Invitation struct {
	InvitationID string
	Email        string
	Role         string
	Token        string
	ExpiresAt    *time.Time
}

type Sender interface {
	SendInvitation(ctx context.Context, inv Invitation) error
}

// LogSender logs the invitation instead of delivering it. The token is never
// written to the log.
type LogSender struct{}

func (LogSender) SendInvitation(ctx context.Context, inv Invitation) error {
	attrs := []any{
		slog.String("invitation_id", inv.InvitationID),
		slog.String("email", inv.Email),
		slog.String("role", inv.Role),
	}
	if inv.ExpiresAt != nil {
		attrs = append(attrs, slog.Time("expires_at", *inv.ExpiresAt))
	}
	slogx.FromContext(ctx).Info("invitation ready for delivery", attrs...)
	return nil
}

// Async dispatches sends on background goroutines bounded by Timeout.
type Async struct {
	Sender  Sender
	Timeout time.Duration

	wg sync.WaitGroup
}

func NewAsync(s Sender, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Async{Sender: s, Timeout: timeout}
}

// Dispatch returns immediately. ctx only contributes its logger.
func (a *Async) Dispatch(ctx context.Context, inv Invitation) {
	if a == nil || a.Sender == nil {
		return
	}
	log := slogx.FromContext(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		sendCtx, cancel := context.WithTimeout(slogx.WithContext(context.Background(), log), a.Timeout)
		defer cancel()

		if err := a.Sender.SendInvitation(sendCtx, inv); err != nil {
			log.Warn("invitation delivery failed",
				slog.String("invitation_id", inv.InvitationID),
				slog.Any("error", err),
			)
		}
	}()
}

// Wait blocks until every dispatched send has returned.
func (a *Async) Wait() {
	if a != nil {
		a.wg.Wait()
	}
}
