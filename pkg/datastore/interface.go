package datastore

import (
	"context"
	"time"

	"github.com/NicolasHaas/posterchat/pkg/model"
)

type DataProviderFactory interface {
	NonTx() DataStore
	Tx(context.Context) (DataStoreTx, error)
	Close() error
}

type DataStoreTx interface {
	DataStore
	Rollback() error
	Commit() error
}

// DataStore defines the persistence interface for all PosterChat entities.
// Lookups return (nil, nil) when the row does not exist.
type DataStore interface {
	ConfigReadProvider

	UserReadProvider
	UserWriteProvider

	SessionProvider

	ConferenceReadProvider
	ConferenceWriteProvider

	MemberReadProvider
	MemberWriteProvider

	PosterReadProvider
	PosterWriteProvider

	CommentReadProvider
	CommentWriteProvider
}

// Compile-time check: *ProviderFactory implements DataProviderFactory.
var _ DataProviderFactory = (*ProviderFactory)(nil)

type ConfigReadProvider interface {
	Now() time.Time
}

type UserReadProvider interface {
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
}

type UserWriteProvider interface {
	CreateUser(ctx context.Context, user *model.User) error
	UpdateUserProfile(ctx context.Context, user *model.User) error
	SetUserActive(ctx context.Context, userID int64, active bool) error
}

type SessionProvider interface {
	CreateSession(ctx context.Context, hash string, userID int64, expiresAt time.Time) error
	GetUserBySession(ctx context.Context, hash string) (*model.User, error)
	DeleteSession(ctx context.Context, hash string) error
}

type ConferenceReadProvider interface {
	GetConference(ctx context.Context, id int64) (*model.Conference, error)
	GetConferenceByTitle(ctx context.Context, title string) (*model.Conference, error)
	ListConferences(ctx context.Context) ([]model.Conference, error)
}

type ConferenceWriteProvider interface {
	CreateConference(ctx context.Context, conference *model.Conference) error
}

type MemberReadProvider interface {
	ListMembers(ctx context.Context, conferenceID int64) ([]model.Member, error)
	ListUserMemberships(ctx context.Context, userID int64) ([]model.Member, error)
	GetMemberRole(ctx context.Context, conferenceID, userID int64) (*model.Role, error)
}

type MemberWriteProvider interface {
	PutMember(ctx context.Context, conferenceID, userID int64, role model.Role) error
	RemoveMember(ctx context.Context, conferenceID, userID int64) error
}

type PosterReadProvider interface {
	GetPoster(ctx context.Context, id int64) (*model.Poster, error)
	ListPosters(ctx context.Context, conferenceID int64) ([]model.Poster, error)
}

type PosterWriteProvider interface {
	CreatePoster(ctx context.Context, poster *model.Poster) error
	UpdatePoster(ctx context.Context, poster *model.Poster) error
}

type CommentReadProvider interface {
	GetComment(ctx context.Context, id int64) (*model.Comment, error)
	ListComments(ctx context.Context, filters model.CommentFilters) ([]model.Comment, error)
}

type CommentWriteProvider interface {
	CreateComment(ctx context.Context, comment *model.Comment) error
	SetCommentActive(ctx context.Context, commentID int64, active bool) error
}
