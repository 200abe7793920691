package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	MaxPosterTitleLength    = 50
	MaxPosterSubtitleLength = 50
	MaxCommentBodyLength    = 2000
)

var ErrPosterInvalid = errors.New("invalid poster")
var ErrCommentInvalid = errors.New("invalid comment")

// Poster is a piece of work presented at a conference.
type Poster struct {
	ID           int64     `json:"id"`
	ConferenceID int64     `json:"conference_id" validate:"gt=0"`
	Title        string    `json:"title" validate:"required,max=50"`
	Subtitle     string    `json:"subtitle" validate:"max=50"`
	Description  string    `json:"description" validate:"max=10000"`
	Image        string    `json:"image,omitempty"`
	AuthorIDs    []int64   `json:"author_ids"`
	CreatedAt    time.Time `json:"created_date"`
}

// Validate checks the poster's field constraints.
func (p *Poster) Validate() error {
	return checkFields(p, ErrPosterInvalid)
}

// HasAuthor reports whether userID is one of the poster's authors.
func (p *Poster) HasAuthor(userID int64) bool {
	for _, id := range p.AuthorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Comment is a remark left on a poster. Inactive comments are hidden
// rather than deleted.
type Comment struct {
	ID        int64     `json:"id"`
	PosterID  int64     `json:"poster_id" validate:"gt=0"`
	AuthorID  int64     `json:"author_id" validate:"gt=0"`
	Author    string    `json:"author,omitempty"`
	Body      string    `json:"body" validate:"required,max=2000"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_date"`
}

// Validate checks the comment's field constraints. A body made only of
// whitespace counts as missing.
func (c *Comment) Validate() error {
	if err := checkFields(c, ErrCommentInvalid); err != nil {
		return err
	}
	if strings.TrimSpace(c.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrCommentInvalid)
	}
	return nil
}

// CommentFilters narrows ListComments.
type CommentFilters struct {
	PosterID        int64
	IncludeInactive bool
	PageSize        *int64
	Offset          *int64
}
