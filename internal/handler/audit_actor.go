package handler

import (
	"net/http"
	"strings"

	"go-auth-service/internal/middleware"
	"go-auth-service/internal/model"
)

func actorFromRequest(r *http.Request) model.AuditActor {
	actor := model.AuditActor{
		IP:        middleware.ClientIP(r),
		UserAgent: truncate(strings.TrimSpace(r.UserAgent()), 256),
	}

	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		actor.UserID = claims.UserID
		actor.Email = claims.Email
	}

	return actor
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
