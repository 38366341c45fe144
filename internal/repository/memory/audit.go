package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go-auth-service/internal/model"
)

type AuditLog struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (a *AuditLog) Log(_ context.Context, entry model.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *AuditLog) Query(_ context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query.Normalize()

	a.mu.RLock()
	matched := make([]model.AuditEntry, 0, len(a.entries))
	for i := len(a.entries) - 1; i >= 0; i-- {
		e := a.entries[i]
		if query.UserID != "" && e.Actor.UserID != query.UserID {
			continue
		}
		if query.Action != "" && !strings.EqualFold(e.Action, query.Action) {
			continue
		}
		matched = append(matched, e)
	}
	a.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})

	meta := model.NewMeta(query.Page, query.Limit, len(matched))
	start := (query.Page - 1) * query.Limit
	if start >= len(matched) {
		return []model.AuditEntry{}, meta, nil
	}
	end := min(start+query.Limit, len(matched))
	return matched[start:end], meta, nil
}
