package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-auth-service/internal/email"
	"go-auth-service/internal/model"
	"go-auth-service/internal/password"
	"go-auth-service/internal/token"
	"go-auth-service/pkg/apierror"
)

const (
	MsgInvalidCredentials   = "Invalid email or password"
	MsgInvalidToken         = "Invalid or expired token"
	MsgInvalidRefreshToken  = "Invalid or expired refresh token"
	MsgEmailTaken           = "Email is already registered"
	MsgUserNotFound         = "User not found"
	MsgPasswordMismatch     = "Passwords do not match"
	MsgForgotPasswordSent   = "If an account exists for that email, a password reset link has been sent"
	MsgVerificationResent   = "If the account exists and is not verified, a verification email has been sent"
	MsgPasswordReset        = "Password has been reset successfully"
	MsgAccountVerified      = "Account verified successfully"
	MsgAccountAlreadyActive = "Account is already verified"
)

const tokenTypeBearer = "Bearer"

type CredentialConfig struct {
	VerificationTTL     time.Duration
	ResetTTL            time.Duration
	PasswordHistorySize int
	AppBaseURL          string
	Now                 func() time.Time
}

type CredentialService struct {
	users       UserStore
	ledger      TokenLedger
	hasher      *password.Hasher
	codec       *token.Codec
	mailer      email.Sender
	cfg         CredentialConfig
	now         func() time.Time
	decoyDigest string
}

func NewCredentialService(
	users UserStore,
	ledger TokenLedger,
	hasher *password.Hasher,
	codec *token.Codec,
	mailer email.Sender,
	cfg CredentialConfig,
) (*CredentialService, error) {
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	if cfg.PasswordHistorySize <= 0 {
		cfg.PasswordHistorySize = 5
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	// Signin compares against this digest when the email is unknown so both
	// failure branches pay the same hashing cost.
	decoy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("prepare decoy digest: %w", err)
	}

	return &CredentialService{
		users:       users,
		ledger:      ledger,
		hasher:      hasher,
		codec:       codec,
		mailer:      mailer,
		cfg:         cfg,
		now:         now,
		decoyDigest: decoy,
	}, nil
}

func (s *CredentialService) Signup(ctx context.Context, req model.SignupRequest) (model.AuthResult, error) {
	if req.Password != req.ConfirmPassword {
		return model.AuthResult{}, apierror.Validation(MsgPasswordMismatch, "confirm_password")
	}

	emailAddr := normalizeEmail(req.Email)
	exists, err := s.users.ExistsByEmail(ctx, emailAddr)
	if err != nil {
		return model.AuthResult{}, internalError("signup", err)
	}
	if exists {
		return model.AuthResult{}, apierror.Conflict(MsgEmailTaken, "")
	}

	digest, err := s.hashPassword(req.Password)
	if err != nil {
		return model.AuthResult{}, err
	}

	now := s.now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        emailAddr,
		PasswordHash: digest,
		IsVerified:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	user.PushPasswordHistory(digest, now, s.cfg.PasswordHistorySize)

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrUserAlreadyExists) {
			return model.AuthResult{}, apierror.Conflict(MsgEmailTaken, "").WithCause(err)
		}
		return model.AuthResult{}, internalError("signup", err)
	}

	if err := s.sendVerification(ctx, user); err != nil {
		slog.WarnContext(ctx, "verification email not sent", "user_id", user.ID, "error", err)
	}

	return s.authResult(user)
}

// Signin does not require a verified account.
func (s *CredentialService) Signin(ctx context.Context, req model.SigninRequest) (model.AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, model.ErrUserNotFound) {
		s.hasher.Verify(req.Password, s.decoyDigest)
		return model.AuthResult{}, apierror.Unauthorized(MsgInvalidCredentials)
	}
	if err != nil {
		return model.AuthResult{}, internalError("signin", err)
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return model.AuthResult{}, apierror.Unauthorized(MsgInvalidCredentials)
	}

	return s.authResult(user)
}

// ForgotPassword answers identically whether or not the account exists. A
// failed send is a hard error.
func (s *CredentialService) ForgotPassword(ctx context.Context, req model.EmailRequest) (model.MessageResult, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, model.ErrUserNotFound) {
		return model.MessageResult{Message: MsgForgotPasswordSent}, nil
	}
	if err != nil {
		return model.MessageResult{}, internalError("forgot password", err)
	}

	if err := s.sendPurposeEmail(ctx, user, model.TokenKindPasswordReset); err != nil {
		return model.MessageResult{}, internalError("forgot password", err)
	}

	return model.MessageResult{Message: MsgForgotPasswordSent}, nil
}

func (s *CredentialService) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) (model.MessageResult, error) {
	if req.Password != req.ConfirmPassword {
		return model.MessageResult{}, apierror.Validation(MsgPasswordMismatch, "confirm_password")
	}

	user, err := s.redeemablePurposeToken(ctx, req.Token, model.TokenKindPasswordReset)
	if err != nil {
		return model.MessageResult{}, err
	}

	// History already holds the current hash, so it counts as one of the
	// PasswordHistorySize retained passwords.
	retained := make([]string, 0, len(user.PasswordHistory)+1)
	retained = append(retained, user.PasswordHash)
	for _, entry := range user.PasswordHistory {
		retained = append(retained, entry.PasswordHash)
	}
	if s.hasher.MatchesAny(req.Password, retained...) {
		return model.MessageResult{}, apierror.Validation(
			fmt.Sprintf("New password must differ from your last %d passwords", s.cfg.PasswordHistorySize), "password")
	}

	digest, err := s.hashPassword(req.Password)
	if err != nil {
		return model.MessageResult{}, err
	}

	if err := s.consume(ctx, req.Token, model.TokenKindPasswordReset); err != nil {
		return model.MessageResult{}, err
	}

	now := s.now().UTC()
	user.PasswordHash = digest
	user.PushPasswordHistory(digest, now, s.cfg.PasswordHistorySize)
	user.UpdatedAt = now

	if err := s.saveUser(ctx, "reset password", user); err != nil {
		return model.MessageResult{}, err
	}

	return model.MessageResult{Message: MsgPasswordReset}, nil
}

// VerifyAccount burns the token even when the account is already verified.
func (s *CredentialService) VerifyAccount(ctx context.Context, req model.TokenRequest) (model.MessageResult, error) {
	user, err := s.redeemablePurposeToken(ctx, req.Token, model.TokenKindEmailVerification)
	if err != nil {
		return model.MessageResult{}, err
	}

	if err := s.consume(ctx, req.Token, model.TokenKindEmailVerification); err != nil {
		return model.MessageResult{}, err
	}

	if user.IsVerified {
		return model.MessageResult{Message: MsgAccountAlreadyActive}, nil
	}

	user.IsVerified = true
	user.UpdatedAt = s.now().UTC()
	if err := s.saveUser(ctx, "verify account", user); err != nil {
		return model.MessageResult{}, err
	}

	return model.MessageResult{Message: MsgAccountVerified}, nil
}

// ResendVerification issues a fresh verification token for an unverified
// account. The answer never reveals account state.
func (s *CredentialService) ResendVerification(ctx context.Context, req model.EmailRequest) (model.MessageResult, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, model.ErrUserNotFound) {
		return model.MessageResult{Message: MsgVerificationResent}, nil
	}
	if err != nil {
		return model.MessageResult{}, internalError("resend verification", err)
	}

	if !user.IsVerified {
		if err := s.sendVerification(ctx, user); err != nil {
			slog.WarnContext(ctx, "verification email not sent", "user_id", user.ID, "error", err)
		}
	}

	return model.MessageResult{Message: MsgVerificationResent}, nil
}

// RefreshToken rotates both tokens. The presented refresh token is not
// revoked and stays valid until it expires.
func (s *CredentialService) RefreshToken(_ context.Context, req model.RefreshRequest) (model.TokenPair, error) {
	claims, err := s.codec.Verify(req.RefreshToken, token.KeyRefresh)
	if err != nil {
		return model.TokenPair{}, apierror.Unauthorized(MsgInvalidRefreshToken).WithCause(err)
	}

	return s.issuePair(claims.UserID, claims.Email)
}

func (s *CredentialService) GetUser(ctx context.Context, userID string) (model.PublicUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.PublicUser{}, apierror.NotFound(MsgUserNotFound, "")
	}
	if err != nil {
		return model.PublicUser{}, internalError("get user", err)
	}
	return user.Public(), nil
}

func (s *CredentialService) ValidateAccessToken(accessToken string) (*token.Claims, error) {
	claims, err := s.codec.Verify(accessToken, token.KeyAccess)
	if err != nil {
		return nil, apierror.Unauthorized(MsgInvalidToken).WithCause(err)
	}
	return claims, nil
}

// PurposeTokenSubject reports who a correctly signed purpose token names.
// It does not consult the ledger and is only used to attribute audit entries.
func (s *CredentialService) PurposeTokenSubject(raw string, kind model.TokenKind) (userID string, emailAddr string, ok bool) {
	claims, err := s.codec.VerifyPurpose(raw, kind)
	if err != nil {
		return "", "", false
	}
	return claims.UserID, claims.Email, true
}

// redeemablePurposeToken checks signature, ledger state and subject without
// consuming the token.
func (s *CredentialService) redeemablePurposeToken(ctx context.Context, raw string, kind model.TokenKind) (model.User, error) {
	claims, err := s.codec.VerifyPurpose(raw, kind)
	if err != nil {
		return model.User{}, apierror.Unauthorized(MsgInvalidToken).WithCause(err)
	}

	entry, err := s.ledger.Lookup(ctx, raw, kind)
	if err != nil {
		return model.User{}, ledgerError(string(kind), err)
	}

	user, err := s.users.FindByEmail(ctx, claims.Email)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.User{}, apierror.NotFound(MsgUserNotFound, "")
	}
	if err != nil {
		return model.User{}, internalError(string(kind), err)
	}
	if user.ID != entry.SubjectUserID || user.ID != claims.UserID {
		return model.User{}, apierror.Unauthorized(MsgInvalidToken)
	}

	return user, nil
}

func (s *CredentialService) consume(ctx context.Context, raw string, kind model.TokenKind) error {
	if err := s.ledger.Consume(ctx, raw, kind); err != nil {
		return ledgerError(string(kind), err)
	}
	return nil
}

func (s *CredentialService) saveUser(ctx context.Context, op string, user model.User) error {
	err := s.users.Update(ctx, user)
	if errors.Is(err, model.ErrUserNotFound) {
		return apierror.NotFound(MsgUserNotFound, "")
	}
	if err != nil {
		return internalError(op, err)
	}
	return nil
}

func (s *CredentialService) sendVerification(ctx context.Context, user model.User) error {
	return s.sendPurposeEmail(ctx, user, model.TokenKindEmailVerification)
}

// sendPurposeEmail mints, ledgers and mails a purpose token for user.
func (s *CredentialService) sendPurposeEmail(ctx context.Context, user model.User, kind model.TokenKind) error {
	ttl, templateID, path := s.cfg.VerificationTTL, email.TemplateEmailVerification, "verify-account"
	if kind == model.TokenKindPasswordReset {
		ttl, templateID, path = s.cfg.ResetTTL, email.TemplatePasswordReset, "reset-password"
	}

	raw, _, err := s.codec.SignPurpose(kind, user.ID, user.Email, ttl)
	if err != nil {
		return err
	}
	if err := s.ledger.Issue(ctx, raw, kind, user.ID, ttl); err != nil {
		return err
	}

	link, err := buildLink(s.cfg.AppBaseURL, path, raw)
	if err != nil {
		return err
	}

	return s.mailer.SendTemplated(ctx, templateID, user.Email, map[string]string{
		"name":       user.Name,
		"link":       link,
		"expires_in": humanizeTTL(ttl),
	})
}

func (s *CredentialService) authResult(user model.User) (model.AuthResult, error) {
	pair, err := s.issuePair(user.ID, user.Email)
	if err != nil {
		return model.AuthResult{}, err
	}
	return model.AuthResult{
		User:         user.Public(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

func (s *CredentialService) issuePair(userID string, emailAddr string) (model.TokenPair, error) {
	access, accessExp, err := s.codec.SignAccess(userID, emailAddr)
	if err != nil {
		return model.TokenPair{}, internalError("issue tokens", err)
	}
	refresh, _, err := s.codec.SignRefresh(userID, emailAddr)
	if err != nil {
		return model.TokenPair{}, internalError("issue tokens", err)
	}

	return model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
		ExpiresAt:    accessExp,
	}, nil
}

func (s *CredentialService) hashPassword(plain string) (string, error) {
	digest, err := s.hasher.Hash(plain)
	if errors.Is(err, password.ErrTooLong) {
		return "", apierror.Validation("Password must be at most 72 bytes", "password")
	}
	if err != nil {
		return "", internalError("hash password", err)
	}
	return digest, nil
}

func ledgerError(op string, err error) error {
	switch {
	case errors.Is(err, model.ErrTokenNotFound),
		errors.Is(err, model.ErrTokenAlreadyUsed),
		errors.Is(err, model.ErrTokenExpired):
		return apierror.Unauthorized(MsgInvalidToken).WithCause(err)
	default:
		return internalError(op, err)
	}
}

func internalError(op string, err error) error {
	return apierror.Internal(fmt.Errorf("%s: %w", op, err))
}

func normalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func buildLink(base string, path string, rawToken string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse app base url: %w", err)
	}
	u = u.JoinPath(path)
	q := u.Query()
	q.Set("token", rawToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func humanizeTTL(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}
