package models

import "time"

type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}

// ResetToken is a one-time password reset token mailed to the account owner.
type ResetToken struct {
	UserID  string
	Token   string
	Expires time.Time
}
