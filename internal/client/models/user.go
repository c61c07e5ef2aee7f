package models

import "time"

// Document field names shared by the Users and inspections collections.
const (
	FieldUserID       = "userId"
	FieldName         = "name"
	FieldEmail        = "email"
	FieldImage        = "image"
	FieldCreatedAt    = "createdAt"
	FieldRegistration = "registration"
	FieldBrakes       = "brakes"
	FieldLights       = "lights"
	FieldSeatBelt     = "seatBelt"
	FieldHandBrake    = "handBrake"
	FieldComments     = "comments"
)

// Credentials is the locally persisted session. It is stored as JSON under a
// single key and is the source of truth for "who is logged in" on cold start.
type Credentials struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
}

// UserRecord mirrors a Users document.
type UserRecord struct {
	UserID    string
	Name      string
	Email     string
	Image     *string
	CreatedAt *time.Time
}

// DisplayName falls back to the email when no name has been set.
func (u UserRecord) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
