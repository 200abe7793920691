// Package identity validates the identity fields of a PosterChat account:
// display names, usernames and email addresses.
//
// Every check returns a Result value; nothing here panics or returns an
// error for bad input. Results carry a closed Reason code so callers can map
// failures to form errors, API responses or CLI output.
//
//	res := identity.ValidateUsername("user__name")
//	if !res.Valid() {
//		fmt.Println(res.Reason, res.Message()) // repeated_underscore ...
//	}
package identity

import (
	"errors"
	"fmt"
)

// Reason identifies why a value was rejected. The zero value means valid.
type Reason string

const (
	ReasonNone                        Reason = ""
	ReasonLeadingOrTrailingHyphen     Reason = "leading_or_trailing_hyphen"
	ReasonLeadingOrTrailingSpace      Reason = "leading_or_trailing_space"
	ReasonInvalidCharacter            Reason = "invalid_character"
	ReasonRepeatedHyphen              Reason = "repeated_hyphen"
	ReasonRepeatedSpace               Reason = "repeated_space"
	ReasonTooShort                    Reason = "too_short"
	ReasonTooLong                     Reason = "too_long"
	ReasonStartsWithDigit             Reason = "starts_with_digit"
	ReasonLeadingOrTrailingUnderscore Reason = "leading_or_trailing_underscore"
	ReasonRepeatedUnderscore          Reason = "repeated_underscore"
	ReasonInvalidEmail                Reason = "invalid_email"
)

// templates maps each reason to its message. The first verb is always the
// field name; length reasons take the limit as a second verb.
var templates = map[Reason]string{
	ReasonLeadingOrTrailingHyphen:     "%s cannot start or end with '-'.",
	ReasonLeadingOrTrailingSpace:      "%s cannot start or end with a space.",
	ReasonInvalidCharacter:            "%s contains a character that is not allowed.",
	ReasonRepeatedHyphen:              "%s cannot contain '-' more than once in a row.",
	ReasonRepeatedSpace:               "%s cannot contain more than one space in a row.",
	ReasonTooShort:                    "%s must contain at least %d letters or digits.",
	ReasonTooLong:                     "%s must be at most %d characters long.",
	ReasonStartsWithDigit:             "%s cannot start with a digit.",
	ReasonLeadingOrTrailingUnderscore: "%s cannot start or end with '_'.",
	ReasonRepeatedUnderscore:          "%s cannot contain '_' more than once in a row.",
	ReasonInvalidEmail:                "%s is not a valid email address.",
}

// Reasons returns every rejection reason in declaration order.
func Reasons() []Reason {
	return []Reason{
		ReasonLeadingOrTrailingHyphen,
		ReasonLeadingOrTrailingSpace,
		ReasonInvalidCharacter,
		ReasonRepeatedHyphen,
		ReasonRepeatedSpace,
		ReasonTooShort,
		ReasonTooLong,
		ReasonStartsWithDigit,
		ReasonLeadingOrTrailingUnderscore,
		ReasonRepeatedUnderscore,
		ReasonInvalidEmail,
	}
}

// Known reports whether r is one of the declared reasons.
func (r Reason) Known() bool {
	_, ok := templates[r]
	return ok
}

// Format renders the reason's message for the given field.
func (r Reason) Format(field string, limit int) string {
	tmpl, ok := templates[r]
	if !ok {
		return fmt.Sprintf("%s is invalid.", field)
	}
	switch r {
	case ReasonTooShort, ReasonTooLong:
		return fmt.Sprintf(tmpl, field, limit)
	default:
		return fmt.Sprintf(tmpl, field)
	}
}

// Result is the outcome of validating one field value.
type Result struct {
	Reason Reason `json:"reason,omitempty"`
	Field  string `json:"field"`
	Value  string `json:"-"`
	Limit  int    `json:"limit,omitempty"` // only set for too_short / too_long
}

func valid(field, value string) Result {
	return Result{Field: field, Value: value}
}

func invalid(field, value string, reason Reason) Result {
	return Result{Reason: reason, Field: field, Value: value}
}

// Valid reports whether the value was accepted.
func (r Result) Valid() bool {
	return r.Reason == ReasonNone
}

// For returns a copy of r reported against a different field name.
func (r Result) For(field string) Result {
	r.Field = field
	return r
}

// Message returns the human readable rejection message, or "" if valid.
func (r Result) Message() string {
	if r.Valid() {
		return ""
	}
	return r.Reason.Format(r.Field, r.Limit)
}

// Err returns nil for a valid result and a *FieldError otherwise.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &FieldError{Field: r.Field, Value: r.Value, Reason: r.Reason, Limit: r.Limit}
}

// FieldError is the error form of a rejected Result.
type FieldError struct {
	Field  string
	Value  string
	Reason Reason
	Limit  int
}

func (e *FieldError) Error() string {
	return e.Reason.Format(e.Field, e.Limit)
}

// ReasonOf extracts the reason from an error chain containing a *FieldError.
func ReasonOf(err error) Reason {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ReasonNone
}
