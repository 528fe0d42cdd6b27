package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/audit"
	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

const DefaultSettingsTTL = 30 * time.Second

// SettingsSource yields one consistent settings snapshot per call.
type SettingsSource interface {
	Current(ctx context.Context) (domain.SecuritySettings, error)
}

// SettingsService serves the settings row from a short lived cache. Writes
// through Update invalidate it immediately; changes made elsewhere are seen
// within TTL.
type SettingsService struct {
	Store store.Store
	Audit audit.Sink
	TTL   time.Duration
	Now   func() time.Time

	mu        sync.RWMutex
	cached    domain.SecuritySettings
	fetchedAt time.Time
	valid     bool
	// gen counts invalidations. A read only fills the cache if no
	// invalidation happened while it was in flight.
	gen uint64
}

func (s *SettingsService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultSettingsTTL
}

func (s *SettingsService) Current(ctx context.Context) (domain.SecuritySettings, error) {
	now := nowFrom(s.Now)

	s.mu.RLock()
	if s.valid && now.Sub(s.fetchedAt) < s.ttl() {
		cur := s.cached
		s.mu.RUnlock()
		return cur, nil
	}
	gen := s.gen
	s.mu.RUnlock()

	cur, err := s.Store.Settings().GetSecuritySettings(ctx)
	if err != nil {
		return domain.SecuritySettings{}, unavailable(err)
	}

	s.mu.Lock()
	if s.gen == gen {
		s.cached, s.fetchedAt, s.valid = cur, now, true
	}
	s.mu.Unlock()
	return cur, nil
}

// Update validates and stores next, then drops the cached snapshot.
func (s *SettingsService) Update(ctx context.Context, actor string, next domain.SecuritySettings) (domain.SecuritySettings, error) {
	if err := next.Validate(); err != nil {
		return domain.SecuritySettings{}, err
	}
	next.UpdatedAt = nowFrom(s.Now)

	if err := s.Store.Settings().UpdateSecuritySettings(ctx, next); err != nil {
		return domain.SecuritySettings{}, unavailable(err)
	}
	s.Invalidate()

	slogx.FromContext(ctx).Info("security settings updated",
		slog.String("actor", actor),
		slog.Bool("invite_only", next.InviteOnlyMode),
		slog.Bool("open_registration", next.OpenRegistrationAllowed),
		slog.Bool("require_2fa_all", next.Require2FAAllUsers),
		slog.Bool("require_2fa_admins", next.Require2FAAdminsOnly),
		slog.Int("session_timeout_seconds", next.SessionTimeoutSeconds),
	)
	audit.Emit(ctx, s.Audit, domain.AuditEvent{
		Type:       domain.EventSettingsUpdated,
		Actor:      actor,
		OccurredAt: next.UpdatedAt,
	})
	return next, nil
}

func (s *SettingsService) Invalidate() {
	s.mu.Lock()
	s.valid = false
	s.gen++
	s.mu.Unlock()
}
