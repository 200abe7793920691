// Package rbac provides conference role-based access control checks.
package rbac

import (
	"errors"

	"github.com/NicolasHaas/posterchat/pkg/model"
)

// ErrPermissionDenied is wrapped by every error returned from Require.
var ErrPermissionDenied = errors.New("permission denied")

// permissionMatrix maps roles to their allowed permissions.
var permissionMatrix = map[model.Role]map[model.Permission]bool{
	model.RoleOrganizer: {
		model.PermViewConference:   true,
		model.PermCreatePoster:     true,
		model.PermEditPoster:       true,
		model.PermComment:          true,
		model.PermModerateComments: true,
		model.PermManageMembers:    true,
	},
	model.RoleAttendee: {
		model.PermViewConference: true,
		model.PermComment:        true,
	},
	model.RoleGuest: {
		model.PermViewConference: true,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role model.Role, perm model.Permission) bool {
	perms, ok := permissionMatrix[role]
	if !ok {
		return false
	}
	return perms[perm]
}

// Subject is the acting user as seen by access checks. A nil Role means the
// user is not a member of the conference.
type Subject struct {
	UserID  int64
	IsStaff bool
	Role    *model.Role
}

// Can reports whether the subject may perform perm. Staff may do anything;
// non-members may only view public conferences.
func (s Subject) Can(perm model.Permission, public bool) bool {
	if s.IsStaff {
		return true
	}
	if s.Role == nil {
		return perm == model.PermViewConference && public
	}
	return HasPermission(*s.Role, perm)
}

// Require returns nil if allowed or an error wrapping ErrPermissionDenied.
func (s Subject) Require(perm model.Permission, public bool) error {
	if s.Can(perm, public) {
		return nil
	}
	return &DeniedError{Perm: perm}
}

// DeniedError names the permission that was missing.
type DeniedError struct {
	Perm model.Permission
}

func (e *DeniedError) Error() string {
	return "permission denied: " + PermName(e.Perm) + " requires a higher conference role"
}

func (e *DeniedError) Unwrap() error {
	return ErrPermissionDenied
}

// PermName returns the snake_case name of a permission.
func PermName(p model.Permission) string {
	switch p {
	case model.PermViewConference:
		return "view_conference"
	case model.PermCreatePoster:
		return "create_poster"
	case model.PermEditPoster:
		return "edit_poster"
	case model.PermComment:
		return "comment"
	case model.PermModerateComments:
		return "moderate_comments"
	case model.PermManageMembers:
		return "manage_members"
	default:
		return "unknown"
	}
}
