package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer/backend/internal/identity"
	"github.com/wayfarer/backend/internal/models"
)

type fakeProvider struct {
	mu sync.Mutex

	verifyErrs    []error
	verifySession models.Session
	verifyCalls   int

	users    map[string]models.SessionUser
	sendErr  error
	sent     []string
	signOuts []string
}

func (p *fakeProvider) SendOTP(_ context.Context, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, email)
	return nil
}

func (p *fakeProvider) VerifyOTP(_ context.Context, _, _ string) (models.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.verifyCalls
	p.verifyCalls++
	if idx < len(p.verifyErrs) && p.verifyErrs[idx] != nil {
		return models.Session{}, p.verifyErrs[idx]
	}
	return p.verifySession, nil
}

func (p *fakeProvider) GetUser(_ context.Context, token string) (models.SessionUser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	user, ok := p.users[token]
	if !ok {
		return models.SessionUser{}, &identity.ProviderError{Status: http.StatusUnauthorized, Message: "invalid JWT"}
	}
	return user, nil
}

func (p *fakeProvider) SignOut(_ context.Context, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOuts = append(p.signOuts, token)
	return nil
}

type fakeUsers struct {
	recorded []models.SessionUser
	err      error
}

func (u *fakeUsers) RecordSignIn(_ context.Context, user models.SessionUser) (models.User, error) {
	u.recorded = append(u.recorded, user)
	return models.User{ID: user.ID, Email: user.Email}, u.err
}

type fakeWelcome struct {
	sent []string
	err  error
}

func (w *fakeWelcome) Welcome(_ context.Context, email string) error {
	w.sent = append(w.sent, email)
	return w.err
}

func serverError() error {
	return &identity.ProviderError{Status: http.StatusBadGateway, Message: "upstream unavailable"}
}

func newTestResolver(p *fakeProvider) (*Resolver, *InMemorySessionStore, *fakeUsers, *fakeWelcome) {
	store := NewInMemorySessionStore()
	users := &fakeUsers{}
	welcome := &fakeWelcome{}
	return &Resolver{
		Provider:         p,
		Sessions:         store,
		Users:            users,
		Welcome:          welcome,
		Attempts:         3,
		RetryDelay:       time.Millisecond,
		NewAccountWindow: 3 * time.Minute,
	}, store, users, welcome
}

func returningUser() models.Session {
	created := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	return models.Session{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    created.Add(time.Hour),
		User: models.SessionUser{
			ID:           "u-1",
			Email:        "ana@example.com",
			CreatedAt:    created,
			LastSignInAt: created.Add(72 * time.Hour),
		},
	}
}

func TestVerifySucceedsFirstAttempt(t *testing.T) {
	provider := &fakeProvider{verifySession: returningUser()}
	resolver, store, users, welcome := newTestResolver(provider)

	session, err := resolver.Verify(context.Background(), VerifyRequest{ClientID: "browser-1", Email: " Ana@Example.com ", Code: "123456"})
	require.NoError(t, err)

	assert.Equal(t, "at-1", session.AccessToken)
	assert.Equal(t, 1, provider.verifyCalls)

	stored, err := store.Find(context.Background(), "browser-1")
	require.NoError(t, err)
	assert.Equal(t, "at-1", stored.AccessToken)
	assert.Equal(t, "u-1", stored.UserID)

	require.Len(t, users.recorded, 1)
	assert.Empty(t, welcome.sent, "returning users are not welcomed")
}

func TestVerifyRetriesServerErrorsUntilSuccess(t *testing.T) {
	for _, failures := range []int{1, 2} {
		provider := &fakeProvider{verifySession: returningUser()}
		for i := 0; i < failures; i++ {
			provider.verifyErrs = append(provider.verifyErrs, serverError())
		}
		resolver, _, _, _ := newTestResolver(provider)

		session, err := resolver.Verify(context.Background(), VerifyRequest{Email: "ana@example.com", Code: "123456"})
		require.NoError(t, err, "failures=%d", failures)
		assert.Equal(t, "at-1", session.AccessToken)
		assert.Equal(t, failures+1, provider.verifyCalls)
		assert.Empty(t, provider.sent, "no fallback code expected")
	}
}

func TestVerifyClientErrorsAreNotRetried(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"expired", &identity.ProviderError{Status: http.StatusForbidden, Code: "otp_expired", Message: "Token has expired"}, http.StatusUnauthorized},
		{"rateLimited", &identity.ProviderError{Status: http.StatusTooManyRequests, Message: "slow down"}, http.StatusTooManyRequests},
		{"badRequest", &identity.ProviderError{Status: http.StatusBadRequest, Message: "email invalid"}, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := &fakeProvider{verifyErrs: []error{tc.err}}
			resolver, _, _, _ := newTestResolver(provider)

			_, err := resolver.Verify(context.Background(), VerifyRequest{Email: "ana@example.com", Code: "000000"})
			require.Error(t, err)

			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tc.wantStatus, authErr.Status)
			assert.NotEmpty(t, authErr.Message)
			assert.Equal(t, 1, provider.verifyCalls)
			assert.Empty(t, provider.sent)
		})
	}
}

func TestVerifyNetworkErrorIsNotRetried(t *testing.T) {
	provider := &fakeProvider{verifyErrs: []error{errors.New("dial tcp: connection refused")}}
	resolver, _, _, _ := newTestResolver(provider)

	_, err := resolver.Verify(context.Background(), VerifyRequest{Email: "ana@example.com", Code: "000000"})
	require.Error(t, err)

	var authErr *AuthError
	assert.False(t, errors.As(err, &authErr))
	assert.Equal(t, 1, provider.verifyCalls)
}

func TestVerifyFallsBackToStoredSession(t *testing.T) {
	provider := &fakeProvider{
		verifyErrs: []error{serverError(), serverError(), serverError()},
		users: map[string]models.SessionUser{
			"existing-token": {ID: "u-1", Email: "ana@example.com"},
		},
	}
	resolver, store, users, _ := newTestResolver(provider)
	require.NoError(t, store.Save(context.Background(), ClientSession{
		ClientID:    "browser-1",
		Email:       "ana@example.com",
		AccessToken: "existing-token",
	}))

	session, err := resolver.Verify(context.Background(), VerifyRequest{ClientID: "browser-1", Email: "ana@example.com", Code: "123456"})
	require.NoError(t, err)

	assert.Equal(t, "existing-token", session.AccessToken)
	assert.Equal(t, 3, provider.verifyCalls)
	assert.Empty(t, provider.sent)
	assert.Len(t, users.recorded, 1)
}

func TestVerifyFallbackUsesClientSuppliedToken(t *testing.T) {
	provider := &fakeProvider{
		verifyErrs: []error{serverError(), serverError(), serverError()},
		users: map[string]models.SessionUser{
			"device-token": {ID: "u-1", Email: "ana@example.com"},
		},
	}
	resolver, store, _, _ := newTestResolver(provider)

	session, err := resolver.Verify(context.Background(), VerifyRequest{
		ClientID:    "browser-2",
		Email:       "ana@example.com",
		Code:        "123456",
		AccessToken: "device-token",
	})
	require.NoError(t, err)
	assert.Equal(t, "device-token", session.AccessToken)
	assert.Equal(t, 1, store.Len())
}

func TestVerifyFallbackIgnoresSessionForAnotherAccount(t *testing.T) {
	provider := &fakeProvider{
		verifyErrs: []error{serverError(), serverError(), serverError()},
		users: map[string]models.SessionUser{
			"other-token": {ID: "u-2", Email: "bo@example.com"},
		},
	}
	resolver, store, _, _ := newTestResolver(provider)
	require.NoError(t, store.Save(context.Background(), ClientSession{ClientID: "browser-1", AccessToken: "other-token"}))

	_, err := resolver.Verify(context.Background(), VerifyRequest{ClientID: "browser-1", Email: "ana@example.com", Code: "123456"})
	require.ErrorIs(t, err, ErrCodeResent)
	assert.Equal(t, []string{"ana@example.com"}, provider.sent)
}

func TestVerifyResendsCodeWhenNoSessionExists(t *testing.T) {
	provider := &fakeProvider{verifyErrs: []error{serverError(), serverError(), serverError()}}
	resolver, store, users, _ := newTestResolver(provider)

	_, err := resolver.Verify(context.Background(), VerifyRequest{ClientID: "browser-1", Email: "ana@example.com", Code: "123456"})
	require.ErrorIs(t, err, ErrCodeResent)

	assert.Equal(t, 3, provider.verifyCalls)
	assert.Equal(t, []string{"ana@example.com"}, provider.sent)
	assert.Zero(t, store.Len())
	assert.Empty(t, users.recorded)
}

func TestVerifyReturnsOriginalErrorWhenResendFails(t *testing.T) {
	provider := &fakeProvider{
		verifyErrs: []error{serverError(), serverError(), serverError()},
		sendErr:    errors.New("mail provider down"),
	}
	resolver, _, _, _ := newTestResolver(provider)

	_, err := resolver.Verify(context.Background(), VerifyRequest{Email: "ana@example.com", Code: "123456"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCodeResent)
	assert.True(t, identity.IsTransient(err))
}

func TestVerifyWelcomesNewAccounts(t *testing.T) {
	created := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	session := models.Session{
		AccessToken: "at-new",
		User:        models.SessionUser{ID: "u-3", Email: "new@example.com", CreatedAt: created, LastSignInAt: created.Add(20 * time.Second)},
	}
	provider := &fakeProvider{verifySession: session}
	resolver, _, _, welcome := newTestResolver(provider)
	welcome.err = errors.New("mail bounced")

	got, err := resolver.Verify(context.Background(), VerifyRequest{Email: "new@example.com", Code: "123456"})
	require.NoError(t, err, "welcome failures must not fail sign-in")
	assert.Equal(t, "at-new", got.AccessToken)
	assert.Equal(t, []string{"new@example.com"}, welcome.sent)
}

func TestVerifyRequiresEmailAndCode(t *testing.T) {
	provider := &fakeProvider{}
	resolver, _, _, _ := newTestResolver(provider)

	_, err := resolver.Verify(context.Background(), VerifyRequest{Email: "ana@example.com"})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, provider.verifyCalls)
}

func TestVerifyStopsWhenContextCancelled(t *testing.T) {
	provider := &fakeProvider{verifyErrs: []error{serverError(), serverError(), serverError()}}
	resolver, _, _, _ := newTestResolver(provider)
	resolver.RetryDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := resolver.Verify(ctx, VerifyRequest{Email: "ana@example.com", Code: "123456"})
	require.Error(t, err)
	assert.Equal(t, 1, provider.verifyCalls)
	assert.Empty(t, provider.sent)
}

func TestRequestCode(t *testing.T) {
	provider := &fakeProvider{}
	resolver, _, _, _ := newTestResolver(provider)

	require.NoError(t, resolver.RequestCode(context.Background(), " Ana@Example.com"))
	assert.Equal(t, []string{"ana@example.com"}, provider.sent)

	err := resolver.RequestCode(context.Background(), "not-an-email")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestLogoutRemovesSessionAndRevokes(t *testing.T) {
	provider := &fakeProvider{}
	resolver, store, _, _ := newTestResolver(provider)
	require.NoError(t, store.Save(context.Background(), ClientSession{ClientID: "browser-1", AccessToken: "at-1"}))

	require.NoError(t, resolver.Logout(context.Background(), "browser-1"))
	assert.Zero(t, store.Len())
	assert.Equal(t, []string{"at-1"}, provider.signOuts)

	require.ErrorIs(t, resolver.Logout(context.Background(), "browser-1"), ErrSessionNotFound)
}

func TestInMemorySessionStoreReplacesPerClient(t *testing.T) {
	store := NewInMemorySessionStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, ClientSession{ClientID: "c", AccessToken: "first"}))
	require.NoError(t, store.Save(ctx, ClientSession{ClientID: "c", AccessToken: "second"}))

	got, err := store.Find(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "second", got.AccessToken)
	assert.Equal(t, 1, store.Len())
}
