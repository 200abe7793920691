package rbac

import (
	"errors"
	"testing"

	"github.com/NicolasHaas/posterchat/pkg/model"
)

func rolePtr(r model.Role) *model.Role { return &r }

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role model.Role
		perm model.Permission
		want bool
	}{
		{model.RoleOrganizer, model.PermManageMembers, true},
		{model.RoleOrganizer, model.PermCreatePoster, true},
		{model.RoleAttendee, model.PermComment, true},
		{model.RoleAttendee, model.PermCreatePoster, false},
		{model.RoleAttendee, model.PermModerateComments, false},
		{model.RoleGuest, model.PermViewConference, true},
		{model.RoleGuest, model.PermComment, false},
		{model.Role(42), model.PermViewConference, false},
	}

	for _, tt := range tests {
		t.Run(tt.role.String()+"/"+PermName(tt.perm), func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("HasPermission(%v, %v) = %v, want %v", tt.role, PermName(tt.perm), got, tt.want)
			}
		})
	}
}

func TestSubjectCan(t *testing.T) {
	tests := []struct {
		name    string
		subject Subject
		perm    model.Permission
		public  bool
		want    bool
	}{
		{"staff bypass", Subject{IsStaff: true}, model.PermManageMembers, false, true},
		{"outsider views public", Subject{}, model.PermViewConference, true, true},
		{"outsider views private", Subject{}, model.PermViewConference, false, false},
		{"outsider comments public", Subject{}, model.PermComment, true, false},
		{"guest views private", Subject{Role: rolePtr(model.RoleGuest)}, model.PermViewConference, false, true},
		{"attendee comments", Subject{Role: rolePtr(model.RoleAttendee)}, model.PermComment, true, true},
		{"attendee creates poster", Subject{Role: rolePtr(model.RoleAttendee)}, model.PermCreatePoster, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.subject.Can(tt.perm, tt.public); got != tt.want {
				t.Errorf("Can() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequire(t *testing.T) {
	s := Subject{Role: rolePtr(model.RoleGuest)}
	if err := s.Require(model.PermViewConference, false); err != nil {
		t.Fatalf("Require(view) = %v", err)
	}
	err := s.Require(model.PermComment, true)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Require(comment) = %v, want ErrPermissionDenied", err)
	}
	if err.Error() != "permission denied: comment requires a higher conference role" {
		t.Errorf("Error() = %q", err.Error())
	}
}
