package handler

import (
	"net/http"
	"strings"

	"go-auth-service/internal/model"
	"go-auth-service/internal/service"
)

type AuthHandler struct {
	service *service.CredentialService
	audit   *service.AuditService
}

func NewAuthHandler(service *service.CredentialService, audit *service.AuditService) *AuthHandler {
	return &AuthHandler{service: service, audit: audit}
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var payload model.SignupRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateSignup(&payload); err != nil {
		writeError(w, r, err)
		return
	}

	actor := actorFromRequest(r)
	actor.Email = payload.Email

	result, err := h.service.Signup(r.Context(), payload)
	if err != nil {
		h.record(r, model.AuditActionSignup, actor, err)
		writeError(w, r, err)
		return
	}

	actor.UserID = result.User.ID
	h.record(r, model.AuditActionSignup, actor, nil)
	writeSuccess(w, http.StatusCreated, result, nil)
}

func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var payload model.SigninRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateSignin(&payload); err != nil {
		writeError(w, r, err)
		return
	}

	actor := actorFromRequest(r)
	actor.Email = payload.Email

	result, err := h.service.Signin(r.Context(), payload)
	if err != nil {
		h.record(r, model.AuditActionSignin, actor, err)
		writeError(w, r, err)
		return
	}

	actor.UserID = result.User.ID
	h.record(r, model.AuditActionSignin, actor, nil)
	writeSuccess(w, http.StatusOK, result, nil)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.EmailRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateEmailRequest(&payload); err != nil {
		writeError(w, r, err)
		return
	}

	actor := actorFromRequest(r)
	actor.Email = payload.Email

	result, err := h.service.ForgotPassword(r.Context(), payload)
	h.record(r, model.AuditActionForgotPassword, actor, err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, result, nil)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.ResetPasswordRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateResetPassword(&payload); err != nil {
		writeError(w, r, err)
		return
	}

	actor := h.purposeActor(r, payload.Token, model.TokenKindPasswordReset)

	result, err := h.service.ResetPassword(r.Context(), payload)
	h.record(r, model.AuditActionResetPassword, actor, err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, result, nil)
}

// VerifyAccount redeems a verification token posted in the request body.
func (h *AuthHandler) VerifyAccount(w http.ResponseWriter, r *http.Request) {
	var payload model.TokenRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	h.verify(w, r, payload)
}

// VerifyAccountLink serves the link embedded in the verification email.
func (h *AuthHandler) VerifyAccountLink(w http.ResponseWriter, r *http.Request) {
	h.verify(w, r, model.TokenRequest{Token: r.URL.Query().Get("token")})
}

func (h *AuthHandler) verify(w http.ResponseWriter, r *http.Request, payload model.TokenRequest) {
	if err := validateToken(&payload); err != nil {
		writeError(w, r, err)
		return
	}

	actor := h.purposeActor(r, payload.Token, model.TokenKindEmailVerification)

	result, err := h.service.VerifyAccount(r.Context(), payload)
	h.record(r, model.AuditActionVerifyAccount, actor, err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, result, nil)
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var payload model.EmailRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateEmailRequest(&payload); err != nil {
		writeError(w, r, err)
		return
	}

	actor := actorFromRequest(r)
	actor.Email = payload.Email

	result, err := h.service.ResendVerification(r.Context(), payload)
	h.record(r, model.AuditActionResendVerification, actor, err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, result, nil)
}

func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var payload model.RefreshRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateRefresh(&payload); err != nil {
		writeError(w, r, err)
		return
	}

	actor := actorFromRequest(r)

	pair, err := h.service.RefreshToken(r.Context(), payload)
	if err != nil {
		h.record(r, model.AuditActionRefreshToken, actor, err)
		writeError(w, r, err)
		return
	}

	if claims, claimsErr := h.service.ValidateAccessToken(pair.AccessToken); claimsErr == nil {
		actor.UserID = claims.UserID
		actor.Email = claims.Email
	}
	h.record(r, model.AuditActionRefreshToken, actor, nil)
	writeSuccess(w, http.StatusOK, pair, nil)
}

func (h *AuthHandler) purposeActor(r *http.Request, raw string, kind model.TokenKind) model.AuditActor {
	actor := actorFromRequest(r)
	if userID, emailAddr, ok := h.service.PurposeTokenSubject(strings.TrimSpace(raw), kind); ok {
		actor.UserID = userID
		actor.Email = emailAddr
	}
	return actor
}

func (h *AuthHandler) record(r *http.Request, action string, actor model.AuditActor, err error) {
	if h.audit == nil {
		return
	}
	if err != nil {
		h.audit.Log(r.Context(), action, actor, model.AuditStatusFailure, errorText(err))
		return
	}
	h.audit.Log(r.Context(), action, actor, model.AuditStatusSuccess, "")
}
