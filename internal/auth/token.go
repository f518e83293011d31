package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenConfig carries the signing material and lifetimes for both token
// kinds. Secrets are injected once at construction and never re-read.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenIssuer fails when either secret is absent; a service without
// signing material must not start.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("access and refresh token secrets must both be set")
	}

	issuer := &TokenIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
	if issuer.accessTTL <= 0 {
		issuer.accessTTL = 15 * time.Minute
	}
	if issuer.refreshTTL <= 0 {
		issuer.refreshTTL = 7 * 24 * time.Hour
	}

	return issuer, nil
}

func (t *TokenIssuer) IssueAccess(userID string) (string, error) {
	return t.sign(userID, tokenTypeAccess, t.accessSecret, t.accessTTL)
}

func (t *TokenIssuer) IssueRefresh(userID string) (string, error) {
	return t.sign(userID, tokenTypeRefresh, t.refreshSecret, t.refreshTTL)
}

// IssuePair mints a fresh access+refresh pair bound to the same subject.
func (t *TokenIssuer) IssuePair(userID string) (TokenPair, error) {
	access, err := t.IssueAccess(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.IssueRefresh(userID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess returns the subject of a valid access token.
func (t *TokenIssuer) VerifyAccess(token string) (string, error) {
	subject, err := t.verify(token, tokenTypeAccess, t.accessSecret)
	if err != nil {
		return "", ErrInvalidAccessToken
	}
	return subject, nil
}

// VerifyRefresh returns the subject of a valid refresh token. A valid
// access token presented here fails: the kinds use distinct secrets and
// carry their own typ claim.
func (t *TokenIssuer) VerifyRefresh(token string) (string, error) {
	subject, err := t.verify(token, tokenTypeRefresh, t.refreshSecret)
	if err != nil {
		return "", ErrInvalidRefreshToken
	}
	return subject, nil
}

// Rotate verifies the old refresh token and mints a wholly new pair for the
// same subject. The old token is not revoked; it stays cryptographically
// valid until its own expiry.
func (t *TokenIssuer) Rotate(refreshToken string) (TokenPair, error) {
	userID, err := t.VerifyRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	return t.IssuePair(userID)
}

func (t *TokenIssuer) sign(userID, tokenType string, secret []byte, ttl time.Duration) (string, error) {
	now := t.now().UTC()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"typ": tokenType,
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}

	return encoded, nil
}

func (t *TokenIssuer) verify(token, wantType string, secret []byte) (string, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("parse %s token: invalid", wantType)
	}

	if tokenType, _ := claims["typ"].(string); tokenType != wantType {
		return "", fmt.Errorf("parse %s token: wrong token type", wantType)
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		return "", fmt.Errorf("parse %s token: missing subject", wantType)
	}

	return subject, nil
}
