package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMaxAttempts  = 5
	defaultLockDuration = time.Hour
)

// Store is the persistence contract the workflow depends on. The SQL
// repository implements it; tests substitute an in-memory fake.
type Store interface {
	FindUserByUsername(ctx context.Context, username string) (User, error)
	FindUserByID(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, user User) error
	// RecordLoginFailure atomically increments the failure counter and, at
	// the threshold, sets the lock. Returns the lock deadline when one is
	// active after the write.
	RecordLoginFailure(ctx context.Context, userID string, threshold int, lockFor time.Duration, now time.Time) (*time.Time, error)
	ResetLoginAttempts(ctx context.Context, userID string, now time.Time) error
}

type Service struct {
	store        Store
	tokens       *TokenIssuer
	maxAttempts  int
	lockDuration time.Duration
	now          func() time.Time
}

func NewService(store Store, tokens *TokenIssuer) *Service {
	return &Service{
		store:        store,
		tokens:       tokens,
		maxAttempts:  defaultMaxAttempts,
		lockDuration: defaultLockDuration,
		now:          time.Now,
	}
}

func (s *Service) WithLockoutConfig(maxAttempts int, lockDuration time.Duration) {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if lockDuration > 0 {
		s.lockDuration = lockDuration
	}
}

// Register creates the user with zeroed lockout state. It does not log the
// new user in; no tokens are issued.
func (s *Service) Register(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)

	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	now := s.now().UTC()
	user := User{
		ID:           id.String(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return User{}, err
	}

	return user, nil
}

// Login validates credentials under the lockout policy and issues a token
// pair. The lockout check runs before the password comparison so a locked
// account never reveals whether the password would have matched.
func (s *Service) Login(ctx context.Context, username, password string) (TokenPair, error) {
	username = strings.TrimSpace(username)

	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return TokenPair{}, err
	}

	now := s.now().UTC()
	if user.IsLocked(now) {
		return TokenPair{}, ErrAccountLocked{Until: *user.LockUntil}
	}

	if !VerifyPassword(password, user.PasswordHash) {
		lockedUntil, recErr := s.store.RecordLoginFailure(ctx, user.ID, s.maxAttempts, s.lockDuration, now)
		if recErr != nil {
			return TokenPair{}, recErr
		}
		if lockedUntil != nil && now.Before(*lockedUntil) {
			return TokenPair{}, ErrAccountLocked{Until: *lockedUntil}
		}
		return TokenPair{}, ErrInvalidCredentials
	}

	if err := s.store.ResetLoginAttempts(ctx, user.ID, now); err != nil {
		return TokenPair{}, err
	}

	return s.tokens.IssuePair(user.ID)
}

// RefreshSession rotates a refresh token into a new access+refresh pair.
func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, ErrMissingRefreshToken
	}

	return s.tokens.Rotate(refreshToken)
}
