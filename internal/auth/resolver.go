package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/wayfarer/backend/internal/identity"
	"github.com/wayfarer/backend/internal/logging"
	"github.com/wayfarer/backend/internal/models"
)

const (
	defaultVerifyAttempts   = 3
	defaultRetryDelay       = time.Second
	defaultNewAccountWindow = 3 * time.Minute
	welcomeTimeout          = 10 * time.Second
)

// Provider is the subset of the identity provider the resolver depends on.
type Provider interface {
	SendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) (models.Session, error)
	GetUser(ctx context.Context, accessToken string) (models.SessionUser, error)
	SignOut(ctx context.Context, accessToken string) error
}

// UserRecorder keeps the local users table in step with provider sign-ins.
type UserRecorder interface {
	RecordSignIn(ctx context.Context, user models.SessionUser) (models.User, error)
}

// WelcomeSender greets accounts created by their first sign-in.
type WelcomeSender interface {
	Welcome(ctx context.Context, email string) error
}

// VerifyRequest carries a code submission from one client context. AccessToken is
// an optional session the client already holds from an earlier sign-in.
type VerifyRequest struct {
	ClientID    string
	Email       string
	Code        string
	AccessToken string
}

// Resolver turns a one-time code into a session. Transient provider failures are
// retried; when retries run out the resolver falls back to an existing session for
// the client and, failing that, emails a fresh code.
type Resolver struct {
	Provider Provider
	Sessions SessionStore
	Users    UserRecorder
	Welcome  WelcomeSender

	Attempts         int
	RetryDelay       time.Duration
	NewAccountWindow time.Duration
}

// Verify exchanges an emailed code for a session.
//
// Errors: *AuthError for rejections the user can fix, ErrCodeResent when a new
// code was issued after retries were exhausted, and wrapped provider or context
// errors otherwise.
func (r *Resolver) Verify(ctx context.Context, req VerifyRequest) (models.Session, error) {
	if r.Provider == nil {
		return models.Session{}, errors.New("identity provider not configured")
	}

	email := normalizeEmail(req.Email)
	code := strings.TrimSpace(req.Code)
	if email == "" || code == "" {
		return models.Session{}, &AuthError{Message: "Email and code are required.", Status: http.StatusBadRequest, Err: ErrInvalidInput}
	}

	ctx, span := logging.StartSpan(ctx, "auth.verify", "clientId", req.ClientID)
	defer span.End()
	logger := logging.FromContext(ctx)

	session, err := r.verifyWithRetry(ctx, email, code)
	switch {
	case err == nil:
		return r.establish(ctx, req.ClientID, session), nil
	case ctx.Err() != nil:
		span.Fail(err)
		return models.Session{}, err
	case identity.IsTransient(err):
		logger.Warn("code verification retries exhausted", "error", err)
		session, err = r.fallback(ctx, req, email, err)
		if err != nil {
			if !errors.Is(err, ErrCodeResent) {
				span.Fail(err)
			}
			return models.Session{}, err
		}
		return session, nil
	default:
		span.Fail(err)
		if ue := userFacing(err); ue != err {
			return models.Session{}, ue
		}
		return models.Session{}, fmt.Errorf("verify code: %w", err)
	}
}

// verifyWithRetry tries the provider up to the configured number of attempts.
// Only server-side failures are retried; anything else returns after one call.
func (r *Resolver) verifyWithRetry(ctx context.Context, email, code string) (models.Session, error) {
	logger := logging.FromContext(ctx)
	attempts := r.Attempts
	if attempts < 1 {
		attempts = defaultVerifyAttempts
	}
	delay := r.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(delay))

	var (
		session models.Session
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		s, err := r.Provider.VerifyOTP(ctx, email, code)
		if err == nil {
			session = s
			return nil
		}
		if identity.IsTransient(err) {
			logger.Warn("transient code verification failure", "attempt", attempt, "maxAttempts", attempts, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	return session, err
}

// fallback runs once retries are exhausted. A still-valid session for the same
// email counts as success; otherwise a new code is sent.
func (r *Resolver) fallback(ctx context.Context, req VerifyRequest, email string, cause error) (models.Session, error) {
	logger := logging.FromContext(ctx)

	for _, candidate := range r.candidateSessions(ctx, req) {
		user, err := r.Provider.GetUser(ctx, candidate.AccessToken)
		if err != nil {
			logger.Info("existing session not usable", "error", err)
			continue
		}
		if !strings.EqualFold(user.Email, email) {
			logger.Info("existing session belongs to another account")
			continue
		}
		logger.Info("recovered existing session after verification failure")
		session := models.Session{
			AccessToken:  candidate.AccessToken,
			RefreshToken: candidate.RefreshToken,
			ExpiresAt:    candidate.ExpiresAt,
			User:         user,
		}
		return r.establish(ctx, req.ClientID, session), nil
	}

	if err := r.Provider.SendOTP(ctx, email); err != nil {
		logger.Error("re-issuing verification code failed", "error", err)
		return models.Session{}, fmt.Errorf("verify code: %w", cause)
	}
	logger.Info("issued a new verification code")
	return models.Session{}, ErrCodeResent
}

func (r *Resolver) candidateSessions(ctx context.Context, req VerifyRequest) []ClientSession {
	var candidates []ClientSession
	if token := strings.TrimSpace(req.AccessToken); token != "" {
		candidates = append(candidates, ClientSession{ClientID: req.ClientID, AccessToken: token})
	}
	if req.ClientID == "" || r.Sessions == nil {
		return candidates
	}

	stored, err := r.Sessions.Find(ctx, req.ClientID)
	switch {
	case err == nil && stored.AccessToken != "":
		if len(candidates) == 0 || candidates[0].AccessToken != stored.AccessToken {
			candidates = append(candidates, stored)
		}
	case err != nil && !errors.Is(err, ErrSessionNotFound):
		logging.FromContext(ctx).Warn("failed to load stored session", "error", err)
	}
	return candidates
}

// establish records a successful sign-in. Everything after the provider has
// accepted the code is best-effort so the user is never refused a valid session.
func (r *Resolver) establish(ctx context.Context, clientID string, session models.Session) models.Session {
	logger := logging.FromContext(ctx)

	if clientID != "" && r.Sessions != nil {
		err := r.Sessions.Save(ctx, ClientSession{
			ClientID:     clientID,
			UserID:       session.User.ID,
			Email:        session.User.Email,
			AccessToken:  session.AccessToken,
			RefreshToken: session.RefreshToken,
			ExpiresAt:    session.ExpiresAt,
		})
		if err != nil {
			logger.Error("failed to persist client session", "error", err)
		}
	}

	if r.Users != nil {
		if _, err := r.Users.RecordSignIn(ctx, session.User); err != nil {
			logger.Error("failed to record sign-in", "error", err)
		}
	}

	if r.isNewAccount(session.User) {
		r.sendWelcome(ctx, session.User.Email)
	}
	return session
}

// isNewAccount reports whether this sign-in created the account: the provider
// stamps created-at and last-sign-in-at moments apart on the first login.
func (r *Resolver) isNewAccount(user models.SessionUser) bool {
	if user.CreatedAt.IsZero() || user.LastSignInAt.IsZero() {
		return false
	}
	window := r.NewAccountWindow
	if window <= 0 {
		window = defaultNewAccountWindow
	}
	gap := user.LastSignInAt.Sub(user.CreatedAt)
	if gap < 0 {
		gap = -gap
	}
	return gap <= window
}

func (r *Resolver) sendWelcome(ctx context.Context, email string) {
	if r.Welcome == nil || email == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), welcomeTimeout)
	defer cancel()

	if err := r.Welcome.Welcome(ctx, email); err != nil {
		logging.FromContext(ctx).Warn("welcome email failed", "error", err)
		return
	}
	logging.FromContext(ctx).Info("welcome email sent")
}

// RequestCode emails a one-time code, creating the account on first use.
func (r *Resolver) RequestCode(ctx context.Context, email string) error {
	if r.Provider == nil {
		return errors.New("identity provider not configured")
	}
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return &AuthError{Message: "A valid email address is required.", Status: http.StatusBadRequest, Err: ErrInvalidInput}
	}

	if err := r.Provider.SendOTP(ctx, email); err != nil {
		if ue := userFacing(err); ue != err {
			return ue
		}
		return fmt.Errorf("send code: %w", err)
	}
	return nil
}

// Logout forgets the client's session and revokes it with the provider. Revocation
// failures are logged; the local session is removed regardless.
func (r *Resolver) Logout(ctx context.Context, clientID string) error {
	if r.Sessions == nil {
		return errors.New("session store not configured")
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return ErrSessionNotFound
	}

	stored, err := r.Sessions.Find(ctx, clientID)
	if err != nil {
		return err
	}
	if err := r.Sessions.Delete(ctx, clientID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if r.Provider != nil && stored.AccessToken != "" {
		if err := r.Provider.SignOut(ctx, stored.AccessToken); err != nil {
			logging.FromContext(ctx).Warn("provider sign-out failed", "error", err)
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
