// Package model defines the core domain types for PosterChat.
package model

import "errors"

var ErrInvalidRole = errors.New("invalid role: must be organizer, attendee, or guest")

// Role is a user's membership level within one conference.
type Role int

const (
	RoleGuest     Role = iota // Can view posters and comments
	RoleAttendee              // Can also comment on posters
	RoleOrganizer             // Full control: posters, members, comment moderation
)

func (r Role) String() string {
	switch r {
	case RoleGuest:
		return "guest"
	case RoleAttendee:
		return "attendee"
	case RoleOrganizer:
		return "organizer"
	default:
		return "unknown"
	}
}

// ParseRole converts a string to a Role. ok is false for unknown names.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "organizer", "organizers":
		return RoleOrganizer, true
	case "attendee", "attendees":
		return RoleAttendee, true
	case "guest", "guests":
		return RoleGuest, true
	default:
		return RoleGuest, false
	}
}

// Valid returns true if the role is a recognised value.
func (r Role) Valid() bool {
	return r >= RoleGuest && r <= RoleOrganizer
}

// MarshalText encodes the role by name so JSON and YAML carry "organizer"
// rather than a number.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrInvalidRole
	}
	return []byte(r.String()), nil
}

// UnmarshalText accepts the names ParseRole accepts.
func (r *Role) UnmarshalText(text []byte) error {
	role, ok := ParseRole(string(text))
	if !ok {
		return ErrInvalidRole
	}
	*r = role
	return nil
}

// Roles lists every role from most to least privileged.
func Roles() []Role {
	return []Role{RoleOrganizer, RoleAttendee, RoleGuest}
}

// Permission represents a specific action that can be checked against a role.
type Permission int

const (
	PermViewConference Permission = iota
	PermCreatePoster
	PermEditPoster
	PermComment
	PermModerateComments
	PermManageMembers
)
