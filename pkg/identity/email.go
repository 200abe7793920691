package identity

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxEmailLength matches the width of the users.email column.
	MaxEmailLength = 255

	// MaxEmailLocalPart is the RFC 5321 limit on the part before '@'.
	MaxEmailLocalPart = 64
)

// emailValidator is safe for concurrent use once built.
var emailValidator = validator.New()

// ValidateEmail checks an email address: non-empty, at most MaxEmailLength
// characters, a local part of at most MaxEmailLocalPart characters and a
// syntax accepted by the validator package's "email" rule.
func ValidateEmail(email string) Result {
	if len(email) > MaxEmailLength {
		res := invalid(FieldEmail, email, ReasonTooLong)
		res.Limit = MaxEmailLength
		return res
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return invalid(FieldEmail, email, ReasonInvalidEmail)
	}
	if at > MaxEmailLocalPart {
		return invalid(FieldEmail, email, ReasonInvalidEmail)
	}
	if err := emailValidator.Var(email, "required,email"); err != nil {
		return invalid(FieldEmail, email, ReasonInvalidEmail)
	}
	return valid(FieldEmail, email)
}

// NormalizeEmail lower-cases the domain part of an address and trims
// surrounding whitespace. The local part is left untouched.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return email
	}
	return email[:at+1] + strings.ToLower(email[at+1:])
}
