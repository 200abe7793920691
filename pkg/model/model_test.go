package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/NicolasHaas/posterchat/pkg/identity"
)

func validUser() *User {
	return &User{
		Email:     "simple@example.com",
		FirstName: "Seran",
		LastName:  "Seran-Seran",
		Username:  "user_user1452",
	}
}

func TestUserValidate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(u *User)
		wantErr    error
		wantReason identity.Reason
	}{
		{"valid", func(u *User) {}, nil, identity.ReasonNone},
		{"missing email", func(u *User) { u.Email = "" }, ErrUserEmailRequired, identity.ReasonNone},
		{"missing first name", func(u *User) { u.FirstName = "" }, ErrUserFirstNameRequired, identity.ReasonNone},
		{"missing last name", func(u *User) { u.LastName = "" }, ErrUserLastNameRequired, identity.ReasonNone},
		{"missing username", func(u *User) { u.Username = "" }, ErrUserUsernameRequired, identity.ReasonNone},
		{"bad email", func(u *User) { u.Email = "Abc.example.com" }, nil, identity.ReasonInvalidEmail},
		{"bad first name", func(u *User) { u.FirstName = "-Seran" }, nil, identity.ReasonLeadingOrTrailingHyphen},
		{"bad last name", func(u *User) { u.LastName = "Seran--Seran" }, nil, identity.ReasonRepeatedHyphen},
		{"bad username", func(u *User) { u.Username = "1username" }, nil, identity.ReasonStartsWithDigit},
		{"username too long", func(u *User) { u.Username = "usernameusername1" }, nil, identity.ReasonTooLong},
		{"bio too long", func(u *User) { u.Description = strings.Repeat("x", MaxDescriptionLength+1) }, ErrUserDescriptionTooLong, identity.ReasonNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := validUser()
			tt.mutate(u)
			err := u.Validate()

			if tt.wantErr == nil && tt.wantReason == identity.ReasonNone {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
			if tt.wantReason != identity.ReasonNone {
				if got := identity.ReasonOf(err); got != tt.wantReason {
					t.Errorf("ReasonOf(Validate()) = %q, want %q", got, tt.wantReason)
				}
			}
		})
	}
}

func TestUserNames(t *testing.T) {
	u := &User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}
	if got := u.FullName(); got != "Ada Lovelace" {
		t.Errorf("FullName() = %q", got)
	}
	if got := u.ShortName(); got != "Ada" {
		t.Errorf("ShortName() = %q", got)
	}
	if got := u.String(); got != "Ada Lovelace <ada@example.com>" {
		t.Errorf("String() = %q", got)
	}
	if got := (&User{FirstName: "Ada"}).FullName(); got != "Ada" {
		t.Errorf("FullName() without last name = %q", got)
	}
}

func TestRoleValid(t *testing.T) {
	tests := []struct {
		name string
		role Role
		want bool
	}{
		{"RoleGuest", RoleGuest, true},
		{"RoleAttendee", RoleAttendee, true},
		{"RoleOrganizer", RoleOrganizer, true},
		{"negative", Role(-1), false},
		{"three", Role(3), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.role.Valid(); got != tt.want {
				t.Errorf("Role(%d).Valid() = %v, want %v", tt.role, got, tt.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		input  string
		want   Role
		wantOK bool
	}{
		{"organizer", RoleOrganizer, true},
		{"organizers", RoleOrganizer, true},
		{"attendee", RoleAttendee, true},
		{"attendees", RoleAttendee, true},
		{"guest", RoleGuest, true},
		{"guests", RoleGuest, true},
		{"", RoleGuest, false},
		{"admin", RoleGuest, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseRole(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseRole(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
			if ok && got.String()+"s" != tt.input && got.String() != tt.input {
				t.Errorf("String() round trip mismatch for %q", tt.input)
			}
		})
	}
}

func TestMemberJSONRole(t *testing.T) {
	data, err := json.Marshal(Member{ConferenceID: 1, UserID: 2, Username: "alice", Role: RoleAttendee})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"role":"attendee"`) {
		t.Errorf("Marshal = %s, want role by name", data)
	}

	var m Member
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m.Role != RoleAttendee {
		t.Errorf("Role = %v, want attendee", m.Role)
	}

	if err := json.Unmarshal([]byte(`{"role":"admin"}`), &m); err == nil {
		t.Error("Unmarshal(admin) succeeded, want error")
	}
	if _, err := json.Marshal(Member{Role: Role(7)}); err == nil {
		t.Error("Marshal(Role(7)) succeeded, want error")
	}
}

func TestConferenceValidate(t *testing.T) {
	c := NewConference("PyCon Posters", "University of Somewhere")
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if !c.IsPublic {
		t.Errorf("NewConference should be public by default")
	}

	c.Title = ""
	if err := c.Validate(); !errors.Is(err, ErrConferenceInvalid) || !strings.Contains(err.Error(), "title is required") {
		t.Errorf("empty title: got %v", err)
	}

	c.Title = strings.Repeat("t", MaxConferenceTitleLength+1)
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "title must not exceed 50") {
		t.Errorf("long title: got %v", err)
	}

	c.Title = "ok"
	c.Institution = ""
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "institution is required") {
		t.Errorf("empty institution: got %v", err)
	}
}

func TestPosterValidate(t *testing.T) {
	p := &Poster{ConferenceID: 1, Title: "Deep Sea Vents"}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	p.ConferenceID = 0
	if err := p.Validate(); !errors.Is(err, ErrPosterInvalid) {
		t.Errorf("missing conference: got %v", err)
	}

	p.ConferenceID = 1
	p.Subtitle = strings.Repeat("s", MaxPosterSubtitleLength+1)
	if err := p.Validate(); !errors.Is(err, ErrPosterInvalid) {
		t.Errorf("long subtitle: got %v", err)
	}
}

func TestCommentValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"normal", "Great poster!", false},
		{"empty", "", true},
		{"whitespace", "   \n\t", true},
		{"max length", strings.Repeat("a", MaxCommentBodyLength), false},
		{"too long", strings.Repeat("a", MaxCommentBodyLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Comment{PosterID: 1, AuthorID: 1, Body: tt.body}
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrCommentInvalid) {
				t.Errorf("Validate() = %v, want ErrCommentInvalid", err)
			}
		})
	}
}

func TestMemberDiff(t *testing.T) {
	add, remove := MemberDiff([]int64{1, 2, 3}, []int64{3, 4, 4, 5})
	if len(add) != 2 || add[0] != 4 || add[1] != 5 {
		t.Errorf("add = %v, want [4 5]", add)
	}
	if len(remove) != 2 || remove[0] != 1 || remove[1] != 2 {
		t.Errorf("remove = %v, want [1 2]", remove)
	}

	add, remove = MemberDiff(nil, nil)
	if add != nil || remove != nil {
		t.Errorf("empty diff = %v, %v", add, remove)
	}
}
