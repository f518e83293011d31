package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenConfig{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
	})
	require.NoError(t, err)
	return issuer
}

func TestNewTokenIssuer_RequiresBothSecrets(t *testing.T) {
	_, err := NewTokenIssuer(TokenConfig{AccessSecret: "only-access"})
	require.Error(t, err)

	_, err = NewTokenIssuer(TokenConfig{RefreshSecret: "only-refresh"})
	require.Error(t, err)
}

func TestTokenIssuer_IssueAndVerify(t *testing.T) {
	issuer := newTestIssuer(t)

	access, err := issuer.IssueAccess("user-1")
	require.NoError(t, err)
	subject, err := issuer.VerifyAccess(access)
	require.NoError(t, err)
	require.Equal(t, "user-1", subject)

	refresh, err := issuer.IssueRefresh("user-1")
	require.NoError(t, err)
	subject, err = issuer.VerifyRefresh(refresh)
	require.NoError(t, err)
	require.Equal(t, "user-1", subject)
}

func TestTokenIssuer_KindsAreNotInterchangeable(t *testing.T) {
	issuer := newTestIssuer(t)

	access, err := issuer.IssueAccess("user-1")
	require.NoError(t, err)
	refresh, err := issuer.IssueRefresh("user-1")
	require.NoError(t, err)

	_, err = issuer.VerifyRefresh(access)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = issuer.VerifyAccess(refresh)
	require.ErrorIs(t, err, ErrInvalidAccessToken)
}

func TestTokenIssuer_TypClaimCheckedEvenWithSharedSecret(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenConfig{
		AccessSecret:  "same-secret",
		RefreshSecret: "same-secret",
	})
	require.NoError(t, err)

	access, err := issuer.IssueAccess("user-1")
	require.NoError(t, err)

	_, err = issuer.VerifyRefresh(access)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestTokenIssuer_ExpiredTokenRejected(t *testing.T) {
	issuer := newTestIssuer(t)

	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return current }

	access, err := issuer.IssueAccess("user-1")
	require.NoError(t, err)

	current = current.Add(16 * time.Minute)
	_, err = issuer.VerifyAccess(access)
	require.ErrorIs(t, err, ErrInvalidAccessToken)
}

func TestTokenIssuer_GarbageTokenRejected(t *testing.T) {
	issuer := newTestIssuer(t)

	_, err := issuer.VerifyAccess("garbage")
	require.ErrorIs(t, err, ErrInvalidAccessToken)

	_, err = issuer.VerifyRefresh("")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestTokenIssuer_RotatePreservesSubject(t *testing.T) {
	issuer := newTestIssuer(t)

	refresh, err := issuer.IssueRefresh("user-7")
	require.NoError(t, err)

	pair, err := issuer.Rotate(refresh)
	require.NoError(t, err)

	subject, err := issuer.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-7", subject)

	subject, err = issuer.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, "user-7", subject)
}

// Rotation supersedes the old refresh token but does not revoke it: with no
// server-side token state, the old token stays usable until its own expiry.
func TestTokenIssuer_OldRefreshTokenStaysValidAfterRotation(t *testing.T) {
	issuer := newTestIssuer(t)

	original, err := issuer.IssueRefresh("user-1")
	require.NoError(t, err)

	_, err = issuer.Rotate(original)
	require.NoError(t, err)

	pair, err := issuer.Rotate(original)
	require.NoError(t, err)

	subject, err := issuer.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", subject)
}
