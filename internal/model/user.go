// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a registered account.
//
// PasswordHash carries the `json:"-"` tag so a User can never leak its
// hash through an API response, even if a handler encodes it directly.
// Email is stored lower-cased; the UNIQUE constraint on the column is what
// makes it case-insensitively unique.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Name         string    `json:"name"      db:"name"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// PublicUser is the subset of User returned by register, login and /auth/me.
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Public strips everything but the public fields.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email}
}
