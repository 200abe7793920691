package model

import (
	"errors"
	"time"
)

const (
	MaxConferenceTitleLength       = 50
	MaxConferenceInstitutionLength = 50
)

var ErrConferenceInvalid = errors.New("invalid conference")

// Conference groups posters and the users taking part in them.
type Conference struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title" validate:"required,max=50"`
	Institution string    `json:"institution" validate:"required,max=50"`
	Description string    `json:"description" validate:"max=5000"`
	IsPublic    bool      `json:"is_public"`
	CreatedAt   time.Time `json:"created_date"`
}

// NewConference returns a public conference with the given title and institution.
func NewConference(title, institution string) *Conference {
	return &Conference{
		Title:       title,
		Institution: institution,
		IsPublic:    true,
	}
}

// Validate checks the conference's field constraints.
func (c *Conference) Validate() error {
	return checkFields(c, ErrConferenceInvalid)
}

// Member is one user's role in one conference.
type Member struct {
	ConferenceID int64     `json:"conference_id"`
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username"`
	Role         Role      `json:"role"`
	JoinedAt     time.Time `json:"joined_at"`
}

// MemberDiff returns the user IDs to add to and remove from current to
// reach desired. Order follows the input slices; duplicates are ignored.
func MemberDiff(current, desired []int64) (add, remove []int64) {
	have := make(map[int64]bool, len(current))
	for _, id := range current {
		have[id] = true
	}
	want := make(map[int64]bool, len(desired))
	for _, id := range desired {
		if want[id] {
			continue
		}
		want[id] = true
		if !have[id] {
			add = append(add, id)
		}
	}
	for _, id := range current {
		if !want[id] {
			remove = append(remove, id)
		}
	}
	return add, remove
}
