package handler

import (
	"net/http"
	"strconv"
	"strings"

	"go-auth-service/internal/middleware"
	"go-auth-service/internal/model"
	"go-auth-service/internal/service"
	"go-auth-service/pkg/apierror"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(service *service.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// Activity lists the caller's own security events, newest first.
func (h *AuditHandler) Activity(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, apierror.Unauthorized("authentication required"))
		return
	}

	query := r.URL.Query()
	items, meta, err := h.service.Query(r.Context(), model.AuditQuery{
		UserID: claims.UserID,
		Action: strings.TrimSpace(query.Get("action")),
		Page:   parseIntOrDefault(query.Get("page"), 1),
		Limit:  parseIntOrDefault(query.Get("limit"), 50),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if items == nil {
		items = []model.AuditEntry{}
	}
	writeSuccess(w, http.StatusOK, model.AuditListData{Items: items}, &meta)
}

func parseIntOrDefault(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}
