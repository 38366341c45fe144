package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-auth-service/internal/email"
	"go-auth-service/internal/model"
	"go-auth-service/internal/password"
	"go-auth-service/internal/repository/memory"
	"go-auth-service/internal/token"
	"go-auth-service/pkg/apierror"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentEmail struct {
	templateID string
	to         string
	subs       map[string]string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (m *recordingMailer) SendTemplated(_ context.Context, templateID string, to string, subs map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentEmail{templateID: templateID, to: to, subs: subs})
	return nil
}

// lastToken returns the token carried in the most recent link for templateID.
func (m *recordingMailer) lastToken(t *testing.T, templateID string) string {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].templateID != templateID {
			continue
		}
		link, err := url.Parse(m.sent[i].subs["link"])
		require.NoError(t, err)
		return link.Query().Get("token")
	}
	t.Fatalf("no %s email sent", templateID)
	return ""
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type harness struct {
	svc    *CredentialService
	users  *memory.UserStore
	ledger *memory.Ledger
	codec  *token.Codec
	mailer *recordingMailer
	clock  *testClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	codec, err := token.NewCodec(token.Config{
		AccessSecret:  "access-secret-for-tests-0123456789abc",
		RefreshSecret: "refresh-secret-for-tests-0123456789ab",
		PurposeSecret: "purpose-secret-for-tests-0123456789ab",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Now:           clock.Now,
	})
	require.NoError(t, err)

	users := memory.NewUserStore()
	ledger := memory.NewLedger(clock.Now)
	mailer := &recordingMailer{}

	svc, err := NewCredentialService(users, ledger, password.NewHasher(bcrypt.MinCost), codec, mailer, CredentialConfig{
		VerificationTTL:     24 * time.Hour,
		ResetTTL:            time.Hour,
		PasswordHistorySize: 5,
		AppBaseURL:          "https://app.example.com",
		Now:                 clock.Now,
	})
	require.NoError(t, err)

	return &harness{svc: svc, users: users, ledger: ledger, codec: codec, mailer: mailer, clock: clock}
}

func (h *harness) signup(t *testing.T, name string, emailAddr string, pw string) model.AuthResult {
	t.Helper()

	result, err := h.svc.Signup(context.Background(), model.SignupRequest{
		Name: name, Email: emailAddr, Password: pw, ConfirmPassword: pw,
	})
	require.NoError(t, err)
	return result
}

func (h *harness) resetTo(t *testing.T, emailAddr string, pw string) error {
	t.Helper()

	ctx := context.Background()
	_, err := h.svc.ForgotPassword(ctx, model.EmailRequest{Email: emailAddr})
	require.NoError(t, err)

	raw := h.mailer.lastToken(t, email.TemplatePasswordReset)
	_, err = h.svc.ResetPassword(ctx, model.ResetPasswordRequest{Token: raw, Password: pw, ConfirmPassword: pw})
	return err
}

func requireAPIError(t *testing.T, err error, code string) *apierror.APIError {
	t.Helper()

	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, code, apiErr.Code)
	return apiErr
}

func TestSignup(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	result := h.signup(t, "Jane", "Jane@X.com", "Secret123!")

	require.Equal(t, "jane@x.com", result.User.Email)
	require.False(t, result.User.IsVerified)
	require.Equal(t, "Bearer", result.TokenType)
	require.EqualValues(t, 900, result.ExpiresIn)

	access, err := h.codec.Verify(result.AccessToken, token.KeyAccess)
	require.NoError(t, err)
	require.Equal(t, result.User.ID, access.UserID)
	require.Equal(t, "jane@x.com", access.Email)

	refresh, err := h.codec.Verify(result.RefreshToken, token.KeyRefresh)
	require.NoError(t, err)
	require.Equal(t, result.User.ID, refresh.UserID)

	stored, err := h.users.FindByEmail(context.Background(), "jane@x.com")
	require.NoError(t, err)
	require.NotEqual(t, "Secret123!", stored.PasswordHash)
	require.Len(t, stored.PasswordHistory, 1)
	require.Equal(t, stored.PasswordHash, stored.PasswordHistory[0].PasswordHash)

	require.Equal(t, 1, h.mailer.count())
	require.Equal(t, 1, h.ledger.Len())
}

func TestSignupDuplicateEmailIsConflict(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.signup(t, "Jane", "jane@x.com", "Secret123!")

	_, err := h.svc.Signup(context.Background(), model.SignupRequest{
		Name: "Other", Email: "JANE@x.com", Password: "Another123!", ConfirmPassword: "Another123!",
	})
	requireAPIError(t, err, apierror.CodeConflict)
}

func TestSignupSucceedsWhenEmailFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.mailer.err = errors.New("smtp down")

	result := h.signup(t, "Jane", "jane@x.com", "Secret123!")
	require.NotEmpty(t, result.AccessToken)
	require.Equal(t, 0, h.mailer.count())
}

func TestSignupRejectsMismatchedConfirmation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.svc.Signup(context.Background(), model.SignupRequest{
		Name: "Jane", Email: "jane@x.com", Password: "Secret123!", ConfirmPassword: "Secret124!",
	})
	requireAPIError(t, err, apierror.CodeValidation)
}

func TestSigninFailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.signup(t, "Jane", "jane@x.com", "Secret123!")
	ctx := context.Background()

	_, wrongPassword := h.svc.Signin(ctx, model.SigninRequest{Email: "jane@x.com", Password: "Wrong123!"})
	_, unknownUser := h.svc.Signin(ctx, model.SigninRequest{Email: "nobody@x.com", Password: "Secret123!"})

	a := requireAPIError(t, wrongPassword, apierror.CodeUnauthorized)
	b := requireAPIError(t, unknownUser, apierror.CodeUnauthorized)
	require.Equal(t, a.Message, b.Message)
	require.Equal(t, MsgInvalidCredentials, a.Message)
}

func TestSigninAllowsUnverifiedAccount(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.signup(t, "Jane", "jane@x.com", "Secret123!")

	result, err := h.svc.Signin(context.Background(), model.SigninRequest{Email: " JANE@x.com ", Password: "Secret123!"})
	require.NoError(t, err)
	require.False(t, result.User.IsVerified)
}

func TestForgotPasswordIsEnumerationResistant(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.signup(t, "Jane", "jane@x.com", "Secret123!")
	ctx := context.Background()

	known, err := h.svc.ForgotPassword(ctx, model.EmailRequest{Email: "jane@x.com"})
	require.NoError(t, err)
	unknown, err := h.svc.ForgotPassword(ctx, model.EmailRequest{Email: "nobody@x.com"})
	require.NoError(t, err)

	require.Equal(t, known, unknown)
	require.Equal(t, 2, h.mailer.count())
}

func TestForgotPasswordEmailFailureIsServerError(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.signup(t, "Jane", "jane@x.com", "Secret123!")
	h.mailer.err = errors.New("smtp down")

	_, err := h.svc.ForgotPassword(context.Background(), model.EmailRequest{Email: "jane@x.com"})
	apiErr := requireAPIError(t, err, apierror.CodeInternal)
	require.Equal(t, apierror.InternalMessage, apiErr.Message)
	require.NotContains(t, apiErr.Error(), "smtp")
}

func TestResetPasswordConsumesTokenOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.signup(t, "Jane", "jane@x.com", "Secret123!")
	ctx := context.Background()

	_, err := h.svc.ForgotPassword(ctx, model.EmailRequest{Email: "jane@x.com"})
	require.NoError(t, err)
	raw := h.mailer.lastToken(t, email.TemplatePasswordReset)

	msg, err := h.svc.ResetPassword(ctx, model.ResetPasswordRequest{Token: raw, Password: "Fresh123!", ConfirmPassword: "Fresh123!"})
	require.NoError(t, err)
	require.Equal(t, MsgPasswordReset, msg.Message)

	_, err = h.svc.ResetPassword(ctx, model.ResetPasswordRequest{Token: raw, Password: "Other123!", ConfirmPassword: "Other123!"})
	apiErr := requireAPIError(t, err, apierror.CodeUnauthorized)
	require.ErrorIs(t, apiErr, model.ErrTokenAlreadyUsed)

	_, err = h.svc.Signin(ctx, model.SigninRequest{Email: "jane@x.com", Password: "Fresh123!"})
	require.NoError(t, err)
	_, err = h.svc.Signin(ctx, model.SigninRequest{Email: "jane@x.com", Password: "Secret123!"})
	requireAPIError(t, err, apierror.CodeUnauthorized)
}

func TestResetPasswordHistory(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.signup(t, "Jane", "jane@x.com", "Password-0")

	for i := 1; i <= 5; i++ {
		require.NoError(t, h.resetTo(t, "jane@x.com", fmt.Sprintf("Password-%d", i)))
	}

	// Password-1..5 are the last five; Password-5 is current.
	for i := 1; i <= 5; i++ {
		err := h.resetTo(t, "jane@x.com", fmt.Sprintf("Password-%d", i))
		requireAPIError(t, err, apierror.CodeValidation)
	}

	require.NoError(t, h.resetTo(t, "jane@x.com", "Password-0"))

	stored, err := h.users.FindByEmail(context.Background(), "jane@x.com")
	require.NoError(t, err)
	require.Len(t, stored.PasswordHistory, 5)
	require.Equal(t, stored.PasswordHash, stored.PasswordHistory[4].PasswordHash)
}

func TestResetPasswordValidationDoesNotBurnToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.signup(t, "Jane", "jane@x.com", "Secret123!")
	ctx := context.Background()

	_, err := h.svc.ForgotPassword(ctx, model.EmailRequest{Email: "jane@x.com"})
	require.NoError(t, err)
	raw := h.mailer.lastToken(t, email.TemplatePasswordReset)

	_, err = h.svc.ResetPassword(ctx, model.ResetPasswordRequest{Token: raw, Password: "Secret123!", ConfirmPassword: "Secret123!"})
	requireAPIError(t, err, apierror.CodeValidation)

	_, err = h.svc.ResetPassword(ctx, model.ResetPasswordRequest{Token: raw, Password: "Fresh123!", ConfirmPassword: "Fresh123!"})
	require.NoError(t, err)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.signup(t, "Jane", "jane@x.com", "Secret123!")
	ctx := context.Background()

	before, err := h.users.FindByEmail(ctx, "jane@x.com")
	require.NoError(t, err)

	_, err = h.svc.ForgotPassword(ctx, model.EmailRequest{Email: "jane@x.com"})
	require.NoError(t, err)
	raw := h.mailer.lastToken(t, email.TemplatePasswordReset)

	h.clock.Advance(61 * time.Minute)
	_, err = h.svc.ResetPassword(ctx, model.ResetPasswordRequest{Token: raw, Password: "Fresh123!", ConfirmPassword: "Fresh123!"})
	apiErr := requireAPIError(t, err, apierror.CodeUnauthorized)
	require.ErrorIs(t, apiErr, token.ErrExpired)

	after, err := h.users.FindByEmail(ctx, "jane@x.com")
	require.NoError(t, err)
	require.Equal(t, before.PasswordHash, after.PasswordHash)
}

func TestResetPasswordRejectsUnledgeredToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	result := h.signup(t, "Jane", "jane@x.com", "Secret123!")

	// Correctly signed but never issued through the ledger.
	raw, _, err := h.codec.SignPurpose(model.TokenKindPasswordReset, result.User.ID, "jane@x.com", time.Hour)
	require.NoError(t, err)

	_, err = h.svc.ResetPassword(context.Background(), model.ResetPasswordRequest{Token: raw, Password: "Fresh123!", ConfirmPassword: "Fresh123!"})
	apiErr := requireAPIError(t, err, apierror.CodeUnauthorized)
	require.ErrorIs(t, apiErr, model.ErrTokenNotFound)
}

func TestResetPasswordRejectsVerificationToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.signup(t, "Jane", "jane@x.com", "Secret123!")
	raw := h.mailer.lastToken(t, email.TemplateEmailVerification)

	_, err := h.svc.ResetPassword(context.Background(), model.ResetPasswordRequest{Token: raw, Password: "Fresh123!", ConfirmPassword: "Fresh123!"})
	requireAPIError(t, err, apierror.CodeUnauthorized)
}

func TestResetPasswordUserVanished(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	// Ledgered token whose subject was never stored.
	raw, _, err := h.codec.SignPurpose(model.TokenKindPasswordReset, "ghost-id", "ghost@x.com", time.Hour)
	require.NoError(t, err)
	require.NoError(t, h.ledger.Issue(ctx, raw, model.TokenKindPasswordReset, "ghost-id", time.Hour))

	_, err = h.svc.ResetPassword(ctx, model.ResetPasswordRequest{Token: raw, Password: "Fresh123!", ConfirmPassword: "Fresh123!"})
	requireAPIError(t, err, apierror.CodeNotFound)
}

func TestConcurrentResetHasOneWinner(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.signup(t, "Jane", "jane@x.com", "Secret123!")
	ctx := context.Background()

	_, err := h.svc.ForgotPassword(ctx, model.EmailRequest{Email: "jane@x.com"})
	require.NoError(t, err)
	raw := h.mailer.lastToken(t, email.TemplatePasswordReset)

	const workers = 8
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pw := fmt.Sprintf("Racer-%d-pass", i)
			_, err := h.svc.ResetPassword(ctx, model.ResetPasswordRequest{Token: raw, Password: pw, ConfirmPassword: pw})
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, wins.Load())
}

func TestVerifyAccount(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.signup(t, "Jane", "jane@x.com", "Secret123!")
	ctx := context.Background()
	raw := h.mailer.lastToken(t, email.TemplateEmailVerification)

	msg, err := h.svc.VerifyAccount(ctx, model.TokenRequest{Token: raw})
	require.NoError(t, err)
	require.Equal(t, MsgAccountVerified, msg.Message)

	stored, err := h.users.FindByEmail(ctx, "jane@x.com")
	require.NoError(t, err)
	require.True(t, stored.IsVerified)

	_, err = h.svc.VerifyAccount(ctx, model.TokenRequest{Token: raw})
	apiErr := requireAPIError(t, err, apierror.CodeUnauthorized)
	require.ErrorIs(t, apiErr, model.ErrTokenAlreadyUsed)
}

func TestVerifyAccountAlreadyVerified(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.signup(t, "Jane", "jane@x.com", "Secret123!")
	ctx := context.Background()
	first := h.mailer.lastToken(t, email.TemplateEmailVerification)

	_, err := h.svc.ResendVerification(ctx, model.EmailRequest{Email: "jane@x.com"})
	require.NoError(t, err)
	second := h.mailer.lastToken(t, email.TemplateEmailVerification)
	require.NotEqual(t, first, second)

	_, err = h.svc.VerifyAccount(ctx, model.TokenRequest{Token: first})
	require.NoError(t, err)

	before, err := h.users.FindByEmail(ctx, "jane@x.com")
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	msg, err := h.svc.VerifyAccount(ctx, model.TokenRequest{Token: second})
	require.NoError(t, err)
	require.Equal(t, MsgAccountAlreadyActive, msg.Message)

	after, err := h.users.FindByEmail(ctx, "jane@x.com")
	require.NoError(t, err)
	require.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestResendVerificationSkipsVerifiedAccounts(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.signup(t, "Jane", "jane@x.com", "Secret123!")
	ctx := context.Background()

	_, err := h.svc.VerifyAccount(ctx, model.TokenRequest{Token: h.mailer.lastToken(t, email.TemplateEmailVerification)})
	require.NoError(t, err)

	sent := h.mailer.count()
	verified, err := h.svc.ResendVerification(ctx, model.EmailRequest{Email: "jane@x.com"})
	require.NoError(t, err)
	unknown, err := h.svc.ResendVerification(ctx, model.EmailRequest{Email: "nobody@x.com"})
	require.NoError(t, err)

	require.Equal(t, verified, unknown)
	require.Equal(t, sent, h.mailer.count())
}

func TestRefreshTokenRotatesPair(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	result := h.signup(t, "Jane", "jane@x.com", "Secret123!")
	h.clock.Advance(time.Second)

	pair, err := h.svc.RefreshToken(context.Background(), model.RefreshRequest{RefreshToken: result.RefreshToken})
	require.NoError(t, err)
	require.NotEqual(t, result.AccessToken, pair.AccessToken)
	require.NotEqual(t, result.RefreshToken, pair.RefreshToken)

	claims, err := h.codec.Verify(pair.AccessToken, token.KeyAccess)
	require.NoError(t, err)
	require.Equal(t, result.User.ID, claims.UserID)
}

func TestRefreshTokenRejectsAccessToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	result := h.signup(t, "Jane", "jane@x.com", "Secret123!")

	_, err := h.svc.RefreshToken(context.Background(), model.RefreshRequest{RefreshToken: result.AccessToken})
	apiErr := requireAPIError(t, err, apierror.CodeUnauthorized)
	require.ErrorIs(t, apiErr, token.ErrInvalidSignature)
}

func TestGetUserAndValidateAccessToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	result := h.signup(t, "Jane", "jane@x.com", "Secret123!")

	claims, err := h.svc.ValidateAccessToken(result.AccessToken)
	require.NoError(t, err)

	user, err := h.svc.GetUser(context.Background(), claims.UserID)
	require.NoError(t, err)
	require.Equal(t, "Jane", user.Name)

	_, err = h.svc.ValidateAccessToken(result.RefreshToken)
	requireAPIError(t, err, apierror.CodeUnauthorized)

	_, err = h.svc.GetUser(context.Background(), "missing")
	requireAPIError(t, err, apierror.CodeNotFound)
}

func TestBuildLink(t *testing.T) {
	t.Parallel()

	link, err := buildLink("https://app.example.com/base/", "reset-password", "a.b+c")
	require.NoError(t, err)
	require.Equal(t, "https://app.example.com/base/reset-password?token=a.b%2Bc", link)

	require.Equal(t, "1 hour", humanizeTTL(time.Hour))
	require.Equal(t, "24 hours", humanizeTTL(24*time.Hour))
	require.Equal(t, "30 minutes", humanizeTTL(30*time.Minute))
}
