package handler

import (
	"net/http"

	"go-auth-service/internal/middleware"
	"go-auth-service/internal/service"
	"go-auth-service/pkg/apierror"
)

type UserHandler struct {
	service *service.CredentialService
}

func NewUserHandler(service *service.CredentialService) *UserHandler {
	return &UserHandler{service: service}
}

// Me returns the public profile of the authenticated caller.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, apierror.Unauthorized("authentication required"))
		return
	}

	user, err := h.service.GetUser(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}
