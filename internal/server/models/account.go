// Package models defines server-side data models persisted in the database.
package models

import "time"

// Account is an identity the backend can sign in. SecretHash is a bcrypt hash.
type Account struct {
	ID         string
	Email      string
	SecretHash []byte
	CreatedAt  time.Time
}
