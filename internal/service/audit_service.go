package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go-auth-service/internal/model"
)

// AuditService records account security events. Logging is best-effort and
// never fails the request that triggered it.
type AuditService struct {
	store AuditStore
	now   func() time.Time
}

func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store, now: time.Now}
}

func (s *AuditService) Log(ctx context.Context, action string, actor model.AuditActor, status string, errText string) {
	if s == nil || s.store == nil {
		return
	}

	entry := model.AuditEntry{
		Action:     action,
		OccurredAt: s.now().UTC(),
		Actor:      actor,
		Status:     status,
		Error:      errText,
	}

	// The request context may already be cancelled once the response is written.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.store.Log(writeCtx, entry); err != nil {
		slog.WarnContext(ctx, "audit entry dropped", "action", action, "error", err)
	}
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query.Action = strings.ToLower(strings.TrimSpace(query.Action))
	query.Normalize()

	items, meta, err := s.store.Query(ctx, query)
	if err != nil {
		return nil, model.Meta{}, internalError("query audit", err)
	}
	return items, meta, nil
}
