// Package conference implements conferences, their membership, posters and
// poster comments, with access checks applied per conference role.
package conference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/NicolasHaas/posterchat/pkg/datastore"
	"github.com/NicolasHaas/posterchat/pkg/model"
	"github.com/NicolasHaas/posterchat/pkg/rbac"
)

var (
	ErrNotFound       = errors.New("conference: not found")
	ErrUnknownUser    = errors.New("conference: unknown user")
	ErrNoOrganizer    = errors.New("conference: a conference needs at least one organizer")
	ErrStaffOnly      = fmt.Errorf("%w: only staff can create conferences", rbac.ErrPermissionDenied)
	ErrNotAuthor      = fmt.Errorf("%w: not an author of this poster", rbac.ErrPermissionDenied)
	ErrNotOwnComment  = fmt.Errorf("%w: not the author of this comment", rbac.ErrPermissionDenied)
	ErrDuplicateTitle = errors.New("conference: a conference with that title already exists")
)

// Publisher receives newly created comments for live delivery.
type Publisher interface {
	PublishComment(conferenceID int64, comment model.Comment)
}

type nopPublisher struct{}

func (nopPublisher) PublishComment(int64, model.Comment) {}

// Service is the conference workflow on top of a datastore.
type Service struct {
	store datastore.DataProviderFactory
	pub   Publisher
}

// NewService creates a conference service. pub may be nil.
func NewService(store datastore.DataProviderFactory, pub Publisher) *Service {
	if pub == nil {
		pub = nopPublisher{}
	}
	return &Service{store: store, pub: pub}
}

// Detail is a conference with its members and posters.
type Detail struct {
	model.Conference
	Members []model.Member `json:"members"`
	Posters []model.Poster `json:"posters"`
}

// PosterInput holds the writable poster fields. Nil fields are left
// unchanged on update.
type PosterInput struct {
	Title       *string  `json:"title"`
	Subtitle    *string  `json:"subtitle"`
	Description *string  `json:"description"`
	Image       *string  `json:"image"`
	Authors     []string `json:"authors"`
}

func subjectFor(ctx context.Context, st datastore.DataStore, actor *model.User, conferenceID int64) (rbac.Subject, error) {
	if actor == nil {
		return rbac.Subject{}, nil
	}
	sub := rbac.Subject{UserID: actor.ID, IsStaff: actor.IsStaff}
	role, err := st.GetMemberRole(ctx, conferenceID, actor.ID)
	if err != nil {
		return sub, err
	}
	sub.Role = role
	return sub, nil
}

// authorize loads the conference and checks perm for actor.
func authorize(ctx context.Context, st datastore.DataStore, actor *model.User, conferenceID int64, perm model.Permission) (*model.Conference, rbac.Subject, error) {
	conf, err := st.GetConference(ctx, conferenceID)
	if err != nil {
		return nil, rbac.Subject{}, err
	}
	if conf == nil {
		return nil, rbac.Subject{}, ErrNotFound
	}
	sub, err := subjectFor(ctx, st, actor, conferenceID)
	if err != nil {
		return nil, sub, err
	}
	// Hide private conferences from outsiders entirely.
	if !sub.Can(model.PermViewConference, conf.IsPublic) {
		return nil, sub, ErrNotFound
	}
	if err := sub.Require(perm, conf.IsPublic); err != nil {
		return nil, sub, err
	}
	return conf, sub, nil
}

// ---- Conferences ----

// Create stores a new conference. Only staff may create conferences; the
// creator becomes its first organizer.
func (s *Service) Create(ctx context.Context, actor *model.User, conf *model.Conference) error {
	if actor == nil || !actor.IsStaff {
		return ErrStaffOnly
	}
	tx, err := s.store.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := tx.GetConferenceByTitle(ctx, conf.Title)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrDuplicateTitle
	}
	if err := tx.CreateConference(ctx, conf); err != nil {
		return err
	}
	if err := tx.PutMember(ctx, conf.ID, actor.ID, model.RoleOrganizer); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("conference: create: %w", err)
	}
	slog.Info("conference created", "conference_id", conf.ID, "title", conf.Title, "by", actor.Username)
	return nil
}

// ListVisible returns the conferences actor may view: every conference for
// staff, otherwise public ones plus those actor is a member of.
func (s *Service) ListVisible(ctx context.Context, actor *model.User) ([]model.Conference, error) {
	st := s.store.NonTx()
	all, err := st.ListConferences(ctx)
	if err != nil {
		return nil, err
	}
	if actor != nil && actor.IsStaff {
		return all, nil
	}
	member := map[int64]bool{}
	if actor != nil {
		memberships, err := st.ListUserMemberships(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range memberships {
			member[m.ConferenceID] = true
		}
	}
	visible := make([]model.Conference, 0, len(all))
	for _, c := range all {
		if c.IsPublic || member[c.ID] {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

// Get returns a conference with its members and posters.
func (s *Service) Get(ctx context.Context, actor *model.User, conferenceID int64) (*Detail, error) {
	st := s.store.NonTx()
	conf, _, err := authorize(ctx, st, actor, conferenceID, model.PermViewConference)
	if err != nil {
		return nil, err
	}
	members, err := st.ListMembers(ctx, conferenceID)
	if err != nil {
		return nil, err
	}
	posters, err := st.ListPosters(ctx, conferenceID)
	if err != nil {
		return nil, err
	}
	return &Detail{Conference: *conf, Members: members, Posters: posters}, nil
}

// SetMembers replaces the set of users holding role in a conference. Users
// moving in from another role change role; users dropped from the set
// leave the conference.
func (s *Service) SetMembers(ctx context.Context, actor *model.User, conferenceID int64, role model.Role, usernames []string) error {
	if !role.Valid() {
		return model.ErrInvalidRole
	}
	tx, err := s.store.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, _, err := authorize(ctx, tx, actor, conferenceID, model.PermManageMembers); err != nil {
		return err
	}

	desired := make([]int64, 0, len(usernames))
	for _, name := range usernames {
		u, err := tx.GetUserByUsername(ctx, name)
		if err != nil {
			return err
		}
		if u == nil || !u.IsActive {
			return fmt.Errorf("%w: %s", ErrUnknownUser, name)
		}
		desired = append(desired, u.ID)
	}
	if role == model.RoleOrganizer && len(desired) == 0 {
		return ErrNoOrganizer
	}

	members, err := tx.ListMembers(ctx, conferenceID)
	if err != nil {
		return err
	}
	var current []int64
	for _, m := range members {
		if m.Role == role {
			current = append(current, m.UserID)
		}
	}

	add, remove := model.MemberDiff(current, desired)
	for _, id := range add {
		if err := tx.PutMember(ctx, conferenceID, id, role); err != nil {
			return err
		}
	}
	for _, id := range remove {
		if err := tx.RemoveMember(ctx, conferenceID, id); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("conference: set members: %w", err)
	}
	slog.Info("conference members updated", "conference_id", conferenceID, "role", role.String(),
		"added", len(add), "removed", len(remove))
	return nil
}

// ---- Posters ----

func resolveAuthors(ctx context.Context, st datastore.DataStore, usernames []string) ([]int64, error) {
	ids := make([]int64, 0, len(usernames))
	for _, name := range usernames {
		u, err := st.GetUserByUsername(ctx, name)
		if err != nil {
			return nil, err
		}
		if u == nil || !u.IsActive {
			return nil, fmt.Errorf("%w: %s", ErrUnknownUser, name)
		}
		ids = append(ids, u.ID)
	}
	return ids, nil
}

func (in *PosterInput) apply(p *model.Poster) {
	if in.Title != nil {
		p.Title = *in.Title
	}
	if in.Subtitle != nil {
		p.Subtitle = *in.Subtitle
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Image != nil {
		p.Image = *in.Image
	}
}

// CreatePoster adds a poster to a conference. Without explicit authors the
// actor is the author.
func (s *Service) CreatePoster(ctx context.Context, actor *model.User, conferenceID int64, in PosterInput) (*model.Poster, error) {
	tx, err := s.store.Tx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, _, err := authorize(ctx, tx, actor, conferenceID, model.PermCreatePoster); err != nil {
		return nil, err
	}

	p := &model.Poster{ConferenceID: conferenceID}
	in.apply(p)
	if len(in.Authors) == 0 {
		p.AuthorIDs = []int64{actor.ID}
	} else if p.AuthorIDs, err = resolveAuthors(ctx, tx, in.Authors); err != nil {
		return nil, err
	}
	if err := tx.CreatePoster(ctx, p); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("conference: create poster: %w", err)
	}
	slog.Info("poster created", "conference_id", conferenceID, "poster_id", p.ID, "title", p.Title)
	return p, nil
}

// posterIn loads a poster and checks it belongs to the conference.
func posterIn(ctx context.Context, st datastore.DataStore, conferenceID, posterID int64) (*model.Poster, error) {
	p, err := st.GetPoster(ctx, posterID)
	if err != nil {
		return nil, err
	}
	if p == nil || p.ConferenceID != conferenceID {
		return nil, ErrNotFound
	}
	return p, nil
}

// UpdatePoster edits a poster. Organizers may edit any poster, authors
// their own.
func (s *Service) UpdatePoster(ctx context.Context, actor *model.User, conferenceID, posterID int64, in PosterInput) (*model.Poster, error) {
	tx, err := s.store.Tx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	conf, sub, err := authorize(ctx, tx, actor, conferenceID, model.PermViewConference)
	if err != nil {
		return nil, err
	}
	p, err := posterIn(ctx, tx, conferenceID, posterID)
	if err != nil {
		return nil, err
	}
	if !sub.Can(model.PermEditPoster, conf.IsPublic) && (actor == nil || !p.HasAuthor(actor.ID)) {
		return nil, ErrNotAuthor
	}

	in.apply(p)
	if in.Authors != nil {
		if p.AuthorIDs, err = resolveAuthors(ctx, tx, in.Authors); err != nil {
			return nil, err
		}
	}
	if err := tx.UpdatePoster(ctx, p); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("conference: update poster: %w", err)
	}
	return p, nil
}

// GetPoster returns a single poster.
func (s *Service) GetPoster(ctx context.Context, actor *model.User, conferenceID, posterID int64) (*model.Poster, error) {
	st := s.store.NonTx()
	if _, _, err := authorize(ctx, st, actor, conferenceID, model.PermViewConference); err != nil {
		return nil, err
	}
	return posterIn(ctx, st, conferenceID, posterID)
}

// ListPosters returns the posters of a conference.
func (s *Service) ListPosters(ctx context.Context, actor *model.User, conferenceID int64) ([]model.Poster, error) {
	st := s.store.NonTx()
	if _, _, err := authorize(ctx, st, actor, conferenceID, model.PermViewConference); err != nil {
		return nil, err
	}
	return st.ListPosters(ctx, conferenceID)
}

// ---- Comments ----

// AddComment stores a comment and publishes it to live subscribers.
func (s *Service) AddComment(ctx context.Context, actor *model.User, conferenceID, posterID int64, body string) (*model.Comment, error) {
	st := s.store.NonTx()
	if _, _, err := authorize(ctx, st, actor, conferenceID, model.PermComment); err != nil {
		return nil, err
	}
	if _, err := posterIn(ctx, st, conferenceID, posterID); err != nil {
		return nil, err
	}
	c := &model.Comment{PosterID: posterID, AuthorID: actor.ID, Author: actor.Username, Body: body}
	if err := st.CreateComment(ctx, c); err != nil {
		return nil, err
	}
	s.pub.PublishComment(conferenceID, *c)
	return c, nil
}

// ListComments returns the active comments on a poster, oldest first.
func (s *Service) ListComments(ctx context.Context, actor *model.User, conferenceID, posterID int64, pageSize, offset *int64) ([]model.Comment, error) {
	st := s.store.NonTx()
	if _, _, err := authorize(ctx, st, actor, conferenceID, model.PermViewConference); err != nil {
		return nil, err
	}
	if _, err := posterIn(ctx, st, conferenceID, posterID); err != nil {
		return nil, err
	}
	return st.ListComments(ctx, model.CommentFilters{PosterID: posterID, PageSize: pageSize, Offset: offset})
}

// DeactivateComment hides a comment. Authors may hide their own comments,
// organizers any comment in the conference.
func (s *Service) DeactivateComment(ctx context.Context, actor *model.User, conferenceID, posterID, commentID int64) error {
	st := s.store.NonTx()
	conf, sub, err := authorize(ctx, st, actor, conferenceID, model.PermViewConference)
	if err != nil {
		return err
	}
	c, err := st.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if c == nil || c.PosterID != posterID {
		return ErrNotFound
	}
	if _, err := posterIn(ctx, st, conferenceID, posterID); err != nil {
		return err
	}
	if !sub.Can(model.PermModerateComments, conf.IsPublic) && (actor == nil || c.AuthorID != actor.ID) {
		return ErrNotOwnComment
	}
	return st.SetCommentActive(ctx, commentID, false)
}
