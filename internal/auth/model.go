package auth

import "time"

type User struct {
	ID                  string
	Username            string
	PasswordHash        string
	FailedLoginAttempts int
	LockUntil           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLocked reports whether the account is under an active lockout.
// An elapsed lock counts as unlocked without requiring a write.
func (u User) IsLocked(now time.Time) bool {
	return u.LockUntil != nil && now.Before(*u.LockUntil)
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
