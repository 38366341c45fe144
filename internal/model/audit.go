package model

import "time"

const (
	AuditActionSignup             = "signup"
	AuditActionSignin             = "signin"
	AuditActionForgotPassword     = "forgot_password"
	AuditActionResetPassword      = "reset_password"
	AuditActionVerifyAccount      = "verify_account"
	AuditActionResendVerification = "resend_verification"
	AuditActionRefreshToken       = "refresh_token"

	AuditStatusSuccess = "success"
	AuditStatusFailure = "failure"
)

type AuditActor struct {
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type AuditEntry struct {
	Action     string     `json:"action"`
	OccurredAt time.Time  `json:"occurred_at"`
	Actor      AuditActor `json:"actor"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
}

type AuditQuery struct {
	UserID string
	Action string
	Page   int
	Limit  int
}

type AuditListData struct {
	Items []AuditEntry `json:"items"`
}
