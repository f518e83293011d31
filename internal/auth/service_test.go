package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store mirroring the repository's semantics.
type fakeStore struct {
	mu      sync.Mutex
	byID    map[string]User
	failErr error
	findErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: make(map[string]User)}
}

func (f *fakeStore) FindUserByUsername(_ context.Context, username string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return User{}, f.findErr
	}
	for _, user := range f.byID {
		if user.Username == username {
			return user, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (f *fakeStore) FindUserByID(_ context.Context, id string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return User{}, f.findErr
	}
	user, ok := f.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (f *fakeStore) CreateUser(_ context.Context, user User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Username == user.Username {
			return ErrUsernameTaken
		}
	}
	f.byID[user.ID] = user
	return nil
}

func (f *fakeStore) RecordLoginFailure(_ context.Context, userID string, threshold int, lockFor time.Duration, now time.Time) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	user, ok := f.byID[userID]
	if !ok {
		return nil, ErrUserNotFound
	}

	user.FailedLoginAttempts++
	if user.FailedLoginAttempts >= threshold {
		until := now.Add(lockFor)
		user.LockUntil = &until
	}
	user.UpdatedAt = now
	f.byID[userID] = user

	return user.LockUntil, nil
}

func (f *fakeStore) ResetLoginAttempts(_ context.Context, userID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.FailedLoginAttempts = 0
	user.LockUntil = nil
	user.UpdatedAt = now
	f.byID[userID] = user
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	return NewService(store, newTestIssuer(t)), store
}

func TestService_RegisterThenLogin(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return current }
	service.tokens.now = service.now

	user, err := service.Register(ctx, "alice", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.Equal(t, "alice", user.Username)
	require.NotEqual(t, "secret1", user.PasswordHash)
	require.Zero(t, user.FailedLoginAttempts)
	require.Nil(t, user.LockUntil)

	first, err := service.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, first.AccessToken)
	require.NotEmpty(t, first.RefreshToken)

	// Each login mints a fresh token; iat moves with the clock.
	current = current.Add(time.Second)
	second, err := service.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	require.NotEqual(t, first.AccessToken, second.AccessToken)
}

func TestService_RegisterDuplicateUsername(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Register(ctx, "alice", "secret1")
	require.NoError(t, err)

	_, err = service.Register(ctx, "alice", "other-password")
	require.ErrorIs(t, err, ErrUsernameTaken)
}

func TestService_LoginUnknownUser(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.Login(context.Background(), "nobody", "secret1")
	require.ErrorIs(t, err, ErrUserNotFound)
}

// Unknown usernames never touch lockout accounting, so probing a missing
// account leaves no failure trail behind.
func TestService_UnknownUserDoesNotRecordFailure(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, "alice", "secret1")
	require.NoError(t, err)

	_, err = service.Login(ctx, "bob", "whatever")
	require.ErrorIs(t, err, ErrUserNotFound)

	stored, err := store.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, stored.FailedLoginAttempts)
}

func TestService_LoginWrongPassword(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, "alice", "secret1")
	require.NoError(t, err)

	_, err = service.Login(ctx, "alice", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	stored, err := store.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.FailedLoginAttempts)
	require.Nil(t, stored.LockUntil)
}

func TestService_LockoutLifecycle(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return current }

	user, err := service.Register(ctx, "alice", "secret1")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err = service.Login(ctx, "alice", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// The fifth failure crosses the threshold and engages the lock.
	_, err = service.Login(ctx, "alice", "wrong")
	var locked ErrAccountLocked
	require.ErrorAs(t, err, &locked)
	require.Equal(t, current.Add(time.Hour), locked.Until)

	// Correct password while locked still fails locked, and must not leak
	// that the password would have matched by recording another failure.
	_, err = service.Login(ctx, "alice", "secret1")
	require.ErrorAs(t, err, &locked)

	stored, err := store.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 5, stored.FailedLoginAttempts)

	// The lock expires by time passage alone; no write needed.
	current = current.Add(time.Hour + time.Minute)
	pair, err := service.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	stored, err = store.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, stored.FailedLoginAttempts)
	require.Nil(t, stored.LockUntil)
}

func TestService_RefreshSession(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Register(ctx, "alice", "secret1")
	require.NoError(t, err)
	pair, err := service.Login(ctx, "alice", "secret1")
	require.NoError(t, err)

	rotated, err := service.RefreshSession(ctx, pair.RefreshToken)
	require.NoError(t, err)

	original, err := service.tokens.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	subject, err := service.tokens.VerifyAccess(rotated.AccessToken)
	require.NoError(t, err)
	require.Equal(t, original, subject)
}

func TestService_RefreshSessionMissingToken(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.RefreshSession(context.Background(), "   ")
	require.ErrorIs(t, err, ErrMissingRefreshToken)
}

func TestService_RefreshSessionInvalidToken(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.RefreshSession(context.Background(), "not-a-token")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	// An access token is not accepted in place of a refresh token.
	_, err = service.Register(context.Background(), "alice", "secret1")
	require.NoError(t, err)
	pair, err := service.Login(context.Background(), "alice", "secret1")
	require.NoError(t, err)

	_, err = service.RefreshSession(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}
