package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go-auth-service/internal/database"
	"go-auth-service/internal/model"
)

type AuditRepository struct {
	db database.DBTX
}

func NewAuditRepository(db database.DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Log(ctx context.Context, entry model.AuditEntry) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO audit_entries
		 (action, occurred_at, actor_user_id, actor_email, actor_ip, actor_user_agent, status, error_text)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.Action, entry.OccurredAt.UTC(),
		entry.Actor.UserID, entry.Actor.Email, entry.Actor.IP, entry.Actor.UserAgent,
		entry.Status, entry.Error)
	if err != nil {
		return fmt.Errorf("log audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query.Normalize()

	where := make([]string, 0)
	args := make([]any, 0)
	argIdx := 1

	if userID := strings.TrimSpace(query.UserID); userID != "" {
		where = append(where, fmt.Sprintf("actor_user_id = $%d", argIdx))
		args = append(args, userID)
		argIdx++
	}
	if action := strings.TrimSpace(query.Action); action != "" {
		where = append(where, fmt.Sprintf("action = lower($%d)", argIdx))
		args = append(args, action)
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_entries %s", whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, model.Meta{}, fmt.Errorf("count audit entries: %w", err)
	}
	meta := model.NewMeta(query.Page, query.Limit, total)

	offset := (query.Page - 1) * query.Limit
	dataQuery := fmt.Sprintf(
		`SELECT action, occurred_at, actor_user_id, actor_email, actor_ip, actor_user_agent, status, error_text
		 FROM audit_entries %s
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT $%d OFFSET $%d`, whereClause, argIdx, argIdx+1)
	args = append(args, query.Limit, offset)

	rows, err := r.db.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]model.AuditEntry, 0)
	for rows.Next() {
		var e model.AuditEntry
		var occurredAt time.Time
		if err := rows.Scan(&e.Action, &occurredAt,
			&e.Actor.UserID, &e.Actor.Email, &e.Actor.IP, &e.Actor.UserAgent,
			&e.Status, &e.Error); err != nil {
			return nil, model.Meta{}, fmt.Errorf("scan audit entry: %w", err)
		}
		e.OccurredAt = occurredAt.UTC()
		entries = append(entries, e)
	}

	return entries, meta, rows.Err()
}
