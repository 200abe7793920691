package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NicolasHaas/posterchat/pkg/identity"
)

const (
	DefaultAvatar = "default-avatar.png"

	MaxDescriptionLength = 2000
)

var ErrUserEmailRequired = errors.New("users must have an email address")
var ErrUserFirstNameRequired = errors.New("users must have a first name")
var ErrUserLastNameRequired = errors.New("users must have a last name")
var ErrUserUsernameRequired = errors.New("users must have a username")
var ErrUserDescriptionTooLong = fmt.Errorf("bio must not exceed %d characters", MaxDescriptionLength)

// User represents a registered account. Email is the login identifier;
// Username is the public handle used in profile URLs.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	IsStaff      bool      `json:"is_staff"`
	Avatar       string    `json:"avatar"`
	Description  string    `json:"description"`
	DateJoined   time.Time `json:"date_joined"`
}

// FullName returns "First Last" with surrounding whitespace removed.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ShortName returns the first name.
func (u *User) ShortName() string {
	return strings.TrimSpace(u.FirstName)
}

func (u *User) String() string {
	return fmt.Sprintf("%s <%s>", u.FullName(), u.Email)
}

// Validate checks presence of the required fields and runs the identity
// validators over them. It returns the first failure; callers that need
// every field's error use the account service.
func (u *User) Validate() error {
	switch {
	case u.Email == "":
		return ErrUserEmailRequired
	case u.FirstName == "":
		return ErrUserFirstNameRequired
	case u.LastName == "":
		return ErrUserLastNameRequired
	case u.Username == "":
		return ErrUserUsernameRequired
	}

	checks := []identity.Result{
		identity.ValidateEmail(u.Email),
		identity.ValidateName(u.FirstName).For("first_name"),
		identity.ValidateName(u.LastName).For("last_name"),
		identity.ValidateUsername(u.Username),
		identity.CheckMaxLength(identity.FieldUsername, u.Username, identity.MaxUsernameLength),
	}
	for _, res := range checks {
		if err := res.Err(); err != nil {
			return err
		}
	}

	if len([]rune(u.Description)) > MaxDescriptionLength {
		return ErrUserDescriptionTooLong
	}
	return nil
}
