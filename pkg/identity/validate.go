package identity

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxNameLength is the longest first or last name accepted.
	MaxNameLength = 30

	// MinUsernameAlnum is the minimum number of letters and digits in a username.
	MinUsernameAlnum = 5

	// MaxUsernameLength is the field-level ceiling for usernames. ValidateUsername
	// does not apply it; callers enforce it with CheckMaxLength.
	MaxUsernameLength = 16
)

// Field names used in results when the caller does not relabel them.
const (
	FieldName     = "name"
	FieldUsername = "username"
	FieldEmail    = "email"
)

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// ValidateName checks a first or last name. Only ASCII letters, single
// spaces and single hyphens are allowed, never at either end.
//
// Checks run in a fixed order and the first failure is reported:
// hyphen at an end, space at an end, disallowed character (or empty),
// repeated hyphen, repeated space, length.
func ValidateName(name string) Result {
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return invalid(FieldName, name, ReasonLeadingOrTrailingHyphen)
	}
	if strings.HasPrefix(name, " ") || strings.HasSuffix(name, " ") {
		return invalid(FieldName, name, ReasonLeadingOrTrailingSpace)
	}
	if name == "" {
		return invalid(FieldName, name, ReasonInvalidCharacter)
	}
	for _, r := range name {
		if !isLetter(r) && r != ' ' && r != '-' {
			return invalid(FieldName, name, ReasonInvalidCharacter)
		}
	}
	if strings.Contains(name, "--") {
		return invalid(FieldName, name, ReasonRepeatedHyphen)
	}
	if strings.Contains(name, "  ") {
		return invalid(FieldName, name, ReasonRepeatedSpace)
	}
	if len(name) > MaxNameLength {
		res := invalid(FieldName, name, ReasonTooLong)
		res.Limit = MaxNameLength
		return res
	}
	return valid(FieldName, name)
}

// ValidateUsername checks a handle. Only ASCII letters, digits and single
// underscores are allowed; at least MinUsernameAlnum of the characters must
// be letters or digits, the first may not be a digit and underscores may not
// appear at either end.
//
// The upper length bound is a field constraint, see MaxUsernameLength.
func ValidateUsername(name string) Result {
	alnum := 0
	for _, r := range name {
		switch {
		case isLetter(r), isDigit(r):
			alnum++
		case r == '_':
		default:
			return invalid(FieldUsername, name, ReasonInvalidCharacter)
		}
	}
	if alnum < MinUsernameAlnum {
		res := invalid(FieldUsername, name, ReasonTooShort)
		res.Limit = MinUsernameAlnum
		return res
	}
	if isDigit(rune(name[0])) {
		return invalid(FieldUsername, name, ReasonStartsWithDigit)
	}
	if strings.HasPrefix(name, "_") || strings.HasSuffix(name, "_") {
		return invalid(FieldUsername, name, ReasonLeadingOrTrailingUnderscore)
	}
	if strings.Contains(name, "__") {
		return invalid(FieldUsername, name, ReasonRepeatedUnderscore)
	}
	return valid(FieldUsername, name)
}

// CheckMaxLength rejects values longer than limit characters with too_long.
func CheckMaxLength(field, value string, limit int) Result {
	if utf8.RuneCountInString(value) > limit {
		res := invalid(field, value, ReasonTooLong)
		res.Limit = limit
		return res
	}
	return valid(field, value)
}
