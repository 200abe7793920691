// Package datastore provides SQLite-backed persistence for users, sessions,
// conferences, posters and comments.
package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/NicolasHaas/posterchat/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

var (
	ErrDuplicateEmail    = errors.New("datastore: email already in use")
	ErrDuplicateUsername = errors.New("datastore: username already in use")
)

// uniqueViolation reports whether err is a SQLite UNIQUE failure on column
// (written "table.column").
func uniqueViolation(err error, column string) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) || serr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return false
	}
	return strings.Contains(serr.Error(), column)
}

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type baseProvider struct {
	DB
	now func() time.Time
}

// Now returns the current time truncated to the storage resolution.
func (p *baseProvider) Now() time.Time {
	return p.now().UTC().Truncate(time.Second)
}

type nonTxProvider struct {
	baseProvider
}

type txProvider struct {
	baseProvider
	tx *sql.Tx
}

func (c *txProvider) Rollback() error {
	return c.tx.Rollback()
}

func (c *txProvider) Commit() error {
	return c.tx.Commit()
}

// ProviderFactory hands out transactional and non-transactional stores
// sharing one database handle.
type ProviderFactory struct {
	DB  *sql.DB
	now func() time.Time
}

func (sf *ProviderFactory) NonTx() DataStore {
	return &nonTxProvider{
		baseProvider: baseProvider{
			DB:  sf.DB,
			now: sf.now,
		},
	}
}

func (sf *ProviderFactory) Tx(ctx context.Context) (DataStoreTx, error) {
	tx, err := sf.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("datastore: begin tx: %w", err)
	}

	return &txProvider{
		baseProvider: baseProvider{
			DB:  tx,
			now: sf.now,
		},
		tx: tx,
	}, nil
}

// NewProviderFactory opens (or creates) a SQLite database and runs migrations.
func NewProviderFactory(dbPath string) (*ProviderFactory, error) {
	return NewProviderFactoryWithClock(dbPath, time.Now)
}

// NewProviderFactoryWithClock is NewProviderFactory with a custom clock.
func NewProviderFactoryWithClock(dbPath string, now func() time.Time) (*ProviderFactory, error) {
	if now == nil {
		now = time.Now
	}
	DB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("datastore: open DB: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := DB.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: set WAL: %w", err)
	}
	if _, err := DB.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: enable FK: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := DB.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: set busy_timeout: %w", err)
	}
	// PRAGMAs are per connection; a single connection keeps foreign_keys on
	// for every statement and serialises writers.
	DB.SetMaxOpenConns(1)

	s := &ProviderFactory{DB: DB, now: now}
	if err := s.migrate(ctx); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *ProviderFactory) Close() error {
	return s.DB.Close()
}

func (s *ProviderFactory) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		email         TEXT    NOT NULL UNIQUE CHECK(length(email) > 0 AND length(email) <= 255),
		first_name    TEXT    NOT NULL CHECK(length(first_name) <= 30),
		last_name     TEXT    NOT NULL CHECK(length(last_name) <= 30),
		username      TEXT    NOT NULL UNIQUE CHECK(length(username) > 0 AND length(username) <= 16),
		password_hash TEXT    NOT NULL DEFAULT '',
		is_active     INTEGER NOT NULL DEFAULT 1,
		is_staff      INTEGER NOT NULL DEFAULT 0,
		avatar        TEXT    NOT NULL DEFAULT 'default-avatar.png',
		description   TEXT    NOT NULL DEFAULT '',
		date_joined   TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS sessions (
		hash       TEXT    PRIMARY KEY,
		user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at TEXT    NOT NULL,
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS conferences (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		title       TEXT    NOT NULL CHECK(length(title) > 0 AND length(title) <= 50),
		institution TEXT    NOT NULL CHECK(length(institution) <= 50),
		description TEXT    NOT NULL DEFAULT '',
		is_public   INTEGER NOT NULL DEFAULT 1,
		created_at  TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS conference_members (
		conference_id INTEGER NOT NULL REFERENCES conferences(id) ON DELETE CASCADE,
		user_id       INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role          INTEGER NOT NULL DEFAULT 0 CHECK(role >= 0 AND role <= 2),
		joined_at     TEXT    NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (conference_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS posters (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		conference_id INTEGER NOT NULL REFERENCES conferences(id) ON DELETE CASCADE,
		title         TEXT    NOT NULL CHECK(length(title) > 0 AND length(title) <= 50),
		subtitle      TEXT    NOT NULL DEFAULT '',
		description   TEXT    NOT NULL DEFAULT '',
		image         TEXT    NOT NULL DEFAULT '',
		created_at    TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS poster_authors (
		poster_id INTEGER NOT NULL REFERENCES posters(id) ON DELETE CASCADE,
		user_id   INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (poster_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS comments (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		poster_id  INTEGER NOT NULL REFERENCES posters(id) ON DELETE CASCADE,
		author_id  INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		body       TEXT    NOT NULL,
		active     INTEGER NOT NULL DEFAULT 1,
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);
	`
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version      int
		statements   []string
		ignoreErrors bool
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version: 2,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS idx_comments_poster ON comments(poster_id, created_at)",
				"CREATE INDEX IF NOT EXISTS idx_posters_conference ON posters(conference_id)",
				"CREATE INDEX IF NOT EXISTS idx_members_user ON conference_members(user_id)",
			},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if err := s.execMigration(ctx, stmt, m.ignoreErrors); err != nil {
				return err
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *ProviderFactory) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.DB.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *ProviderFactory) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.DB.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}

func (s *ProviderFactory) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.DB.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("datastore: update schema version: %w", err)
	}
	return nil
}

func (s *ProviderFactory) execMigration(ctx context.Context, stmt string, ignoreErrors bool) error {
	if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
		if ignoreErrors {
			return nil
		}
		return fmt.Errorf("datastore: migrate: %w", err)
	}
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scanner interface {
	Scan(dest ...any) error
}

// ---- Users ----

const userColumns = "id, email, first_name, last_name, username, password_hash, is_active, is_staff, avatar, description, date_joined"

func scanUser(row scanner) (*model.User, error) {
	u := &model.User{}
	var active, staff int
	var joined string
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Username, &u.PasswordHash,
		&active, &staff, &u.Avatar, &u.Description, &joined); err != nil {
		return nil, err
	}
	u.IsActive = active != 0
	u.IsStaff = staff != 0
	parsed, err := parseDBTime(joined)
	if err != nil {
		return nil, err
	}
	u.DateJoined = parsed
	return u, nil
}

func (s *baseProvider) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	u, err := scanUser(s.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get user: %w", err)
	}
	return u, nil
}

// CreateUser validates and inserts a user, filling in ID and DateJoined.
func (s *baseProvider) CreateUser(ctx context.Context, user *model.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("datastore: create user: %w", err)
	}
	if user.Avatar == "" {
		user.Avatar = model.DefaultAvatar
	}
	joined := s.Now()
	res, err := s.ExecContext(ctx,
		"INSERT INTO users (email, first_name, last_name, username, password_hash, is_active, is_staff, avatar, description, date_joined) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		user.Email, user.FirstName, user.LastName, user.Username, user.PasswordHash,
		boolToInt(user.IsActive), boolToInt(user.IsStaff), user.Avatar, user.Description, formatDBTime(joined))
	switch {
	case uniqueViolation(err, "users.email"):
		return ErrDuplicateEmail
	case uniqueViolation(err, "users.username"):
		return ErrDuplicateUsername
	case err != nil:
		return fmt.Errorf("datastore: create user: %w", err)
	}
	user.ID, _ = res.LastInsertId()
	user.DateJoined = joined
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *baseProvider) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByUsername retrieves a user by username.
func (s *baseProvider) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.getUser(ctx, "username = ?", username)
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (s *baseProvider) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, "email = ? COLLATE NOCASE", email)
}

// ListUsers returns all users.
func (s *baseProvider) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("datastore: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUserProfile writes the editable profile fields of user.
func (s *baseProvider) UpdateUserProfile(ctx context.Context, user *model.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("datastore: update user: %w", err)
	}
	_, err := s.ExecContext(ctx,
		"UPDATE users SET first_name = ?, last_name = ?, avatar = ?, description = ? WHERE id = ?",
		user.FirstName, user.LastName, user.Avatar, user.Description, user.ID)
	if err != nil {
		return fmt.Errorf("datastore: update user: %w", err)
	}
	return nil
}

// SetUserActive marks a user active or inactive. Inactive users are treated
// as deleted.
func (s *baseProvider) SetUserActive(ctx context.Context, userID int64, active bool) error {
	if _, err := s.ExecContext(ctx, "UPDATE users SET is_active = ? WHERE id = ?", boolToInt(active), userID); err != nil {
		return fmt.Errorf("datastore: set user active: %w", err)
	}
	return nil
}

// ---- Sessions ----

// CreateSession stores a session token hash for a user.
func (s *baseProvider) CreateSession(ctx context.Context, hash string, userID int64, expiresAt time.Time) error {
	_, err := s.ExecContext(ctx,
		"INSERT INTO sessions (hash, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		hash, userID, formatDBTime(expiresAt), formatDBTime(s.Now()))
	if err != nil {
		return fmt.Errorf("datastore: create session: %w", err)
	}
	return nil
}

// GetUserBySession returns the active user owning an unexpired session.
func (s *baseProvider) GetUserBySession(ctx context.Context, hash string) (*model.User, error) {
	u, err := scanUser(s.QueryRowContext(ctx,
		"SELECT u.id, u.email, u.first_name, u.last_name, u.username, u.password_hash, u.is_active, u.is_staff, u.avatar, u.description, u.date_joined "+
			"FROM sessions s JOIN users u ON u.id = s.user_id "+
			"WHERE s.hash = ? AND s.expires_at > ? AND u.is_active = 1",
		hash, formatDBTime(s.Now())))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get session: %w", err)
	}
	return u, nil
}

// DeleteSession removes a session token.
func (s *baseProvider) DeleteSession(ctx context.Context, hash string) error {
	if _, err := s.ExecContext(ctx, "DELETE FROM sessions WHERE hash = ?", hash); err != nil {
		return fmt.Errorf("datastore: delete session: %w", err)
	}
	return nil
}

// ---- Conferences ----

const conferenceColumns = "id, title, institution, description, is_public, created_at"

func scanConference(row scanner) (*model.Conference, error) {
	c := &model.Conference{}
	var public int
	var created string
	if err := row.Scan(&c.ID, &c.Title, &c.Institution, &c.Description, &public, &created); err != nil {
		return nil, err
	}
	c.IsPublic = public != 0
	parsed, err := parseDBTime(created)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = parsed
	return c, nil
}

// CreateConference validates and inserts a conference.
func (s *baseProvider) CreateConference(ctx context.Context, conference *model.Conference) error {
	if err := conference.Validate(); err != nil {
		return fmt.Errorf("datastore: create conference: %w", err)
	}
	created := s.Now()
	res, err := s.ExecContext(ctx,
		"INSERT INTO conferences (title, institution, description, is_public, created_at) VALUES (?, ?, ?, ?, ?)",
		conference.Title, conference.Institution, conference.Description, boolToInt(conference.IsPublic), formatDBTime(created))
	if err != nil {
		return fmt.Errorf("datastore: create conference: %w", err)
	}
	conference.ID, _ = res.LastInsertId()
	conference.CreatedAt = created
	return nil
}

// GetConference retrieves a conference by ID.
func (s *baseProvider) GetConference(ctx context.Context, id int64) (*model.Conference, error) {
	c, err := scanConference(s.QueryRowContext(ctx, "SELECT "+conferenceColumns+" FROM conferences WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get conference: %w", err)
	}
	return c, nil
}

// GetConferenceByTitle retrieves the oldest conference with the given title.
func (s *baseProvider) GetConferenceByTitle(ctx context.Context, title string) (*model.Conference, error) {
	c, err := scanConference(s.QueryRowContext(ctx, "SELECT "+conferenceColumns+" FROM conferences WHERE title = ? ORDER BY id LIMIT 1", title))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get conference by title: %w", err)
	}
	return c, nil
}

// ListConferences returns all conferences, newest first.
func (s *baseProvider) ListConferences(ctx context.Context) ([]model.Conference, error) {
	rows, err := s.QueryContext(ctx, "SELECT "+conferenceColumns+" FROM conferences ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("datastore: list conferences: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conferences []model.Conference
	for rows.Next() {
		c, err := scanConference(rows)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan conference: %w", err)
		}
		conferences = append(conferences, *c)
	}
	return conferences, rows.Err()
}

// ---- Members ----

func (s *baseProvider) queryMembers(ctx context.Context, where string, arg any) ([]model.Member, error) {
	rows, err := s.QueryContext(ctx,
		"SELECT m.conference_id, m.user_id, u.username, m.role, m.joined_at "+
			"FROM conference_members m JOIN users u ON u.id = m.user_id WHERE "+where+
			" ORDER BY m.role DESC, u.username", arg)
	if err != nil {
		return nil, fmt.Errorf("datastore: list members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var members []model.Member
	for rows.Next() {
		var m model.Member
		var roleInt int
		var joined string
		if err := rows.Scan(&m.ConferenceID, &m.UserID, &m.Username, &roleInt, &joined); err != nil {
			return nil, fmt.Errorf("datastore: scan member: %w", err)
		}
		m.Role = model.Role(roleInt)
		parsed, err := parseDBTime(joined)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan member: %w", err)
		}
		m.JoinedAt = parsed
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListMembers returns every member of a conference, organizers first.
func (s *baseProvider) ListMembers(ctx context.Context, conferenceID int64) ([]model.Member, error) {
	return s.queryMembers(ctx, "m.conference_id = ?", conferenceID)
}

// ListUserMemberships returns every conference membership of a user.
func (s *baseProvider) ListUserMemberships(ctx context.Context, userID int64) ([]model.Member, error) {
	return s.queryMembers(ctx, "m.user_id = ?", userID)
}

// GetMemberRole returns the user's role in a conference, or nil if the user
// is not a member.
func (s *baseProvider) GetMemberRole(ctx context.Context, conferenceID, userID int64) (*model.Role, error) {
	var roleInt int
	err := s.QueryRowContext(ctx,
		"SELECT role FROM conference_members WHERE conference_id = ? AND user_id = ?", conferenceID, userID).
		Scan(&roleInt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get member role: %w", err)
	}
	role := model.Role(roleInt)
	return &role, nil
}

// PutMember adds a user to a conference or changes their role.
func (s *baseProvider) PutMember(ctx context.Context, conferenceID, userID int64, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("datastore: put member: %w", model.ErrInvalidRole)
	}
	_, err := s.ExecContext(ctx,
		"INSERT INTO conference_members (conference_id, user_id, role, joined_at) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT(conference_id, user_id) DO UPDATE SET role = excluded.role",
		conferenceID, userID, int(role), formatDBTime(s.Now()))
	if err != nil {
		return fmt.Errorf("datastore: put member: %w", err)
	}
	return nil
}

// RemoveMember removes a user from a conference.
func (s *baseProvider) RemoveMember(ctx context.Context, conferenceID, userID int64) error {
	_, err := s.ExecContext(ctx, "DELETE FROM conference_members WHERE conference_id = ? AND user_id = ?", conferenceID, userID)
	if err != nil {
		return fmt.Errorf("datastore: remove member: %w", err)
	}
	return nil
}

// ---- Posters ----

const posterColumns = "id, conference_id, title, subtitle, description, image, created_at"

func scanPoster(row scanner) (*model.Poster, error) {
	p := &model.Poster{}
	var created string
	if err := row.Scan(&p.ID, &p.ConferenceID, &p.Title, &p.Subtitle, &p.Description, &p.Image, &created); err != nil {
		return nil, err
	}
	parsed, err := parseDBTime(created)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = parsed
	return p, nil
}

func (s *baseProvider) posterAuthors(ctx context.Context, posterID int64) ([]int64, error) {
	rows, err := s.QueryContext(ctx, "SELECT user_id FROM poster_authors WHERE poster_id = ? ORDER BY user_id", posterID)
	if err != nil {
		return nil, fmt.Errorf("datastore: list poster authors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("datastore: scan poster author: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreatePoster inserts a poster and its author links. Call it on a
// transactional store to make both writes atomic.
func (s *baseProvider) CreatePoster(ctx context.Context, poster *model.Poster) error {
	if err := poster.Validate(); err != nil {
		return fmt.Errorf("datastore: create poster: %w", err)
	}
	created := s.Now()
	res, err := s.ExecContext(ctx,
		"INSERT INTO posters (conference_id, title, subtitle, description, image, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		poster.ConferenceID, poster.Title, poster.Subtitle, poster.Description, poster.Image, formatDBTime(created))
	if err != nil {
		return fmt.Errorf("datastore: create poster: %w", err)
	}
	poster.ID, _ = res.LastInsertId()
	poster.CreatedAt = created

	for _, authorID := range poster.AuthorIDs {
		if _, err := s.ExecContext(ctx,
			"INSERT OR IGNORE INTO poster_authors (poster_id, user_id) VALUES (?, ?)", poster.ID, authorID); err != nil {
			return fmt.Errorf("datastore: add poster author: %w", err)
		}
	}
	return nil
}

// UpdatePoster writes the editable poster fields. A non-empty AuthorIDs
// replaces the author links; call it on a transactional store in that case.
func (s *baseProvider) UpdatePoster(ctx context.Context, poster *model.Poster) error {
	if err := poster.Validate(); err != nil {
		return fmt.Errorf("datastore: update poster: %w", err)
	}
	_, err := s.ExecContext(ctx,
		"UPDATE posters SET title = ?, subtitle = ?, description = ?, image = ? WHERE id = ?",
		poster.Title, poster.Subtitle, poster.Description, poster.Image, poster.ID)
	if err != nil {
		return fmt.Errorf("datastore: update poster: %w", err)
	}
	if len(poster.AuthorIDs) == 0 {
		return nil
	}
	if _, err := s.ExecContext(ctx, "DELETE FROM poster_authors WHERE poster_id = ?", poster.ID); err != nil {
		return fmt.Errorf("datastore: update poster authors: %w", err)
	}
	for _, authorID := range poster.AuthorIDs {
		if _, err := s.ExecContext(ctx,
			"INSERT OR IGNORE INTO poster_authors (poster_id, user_id) VALUES (?, ?)", poster.ID, authorID); err != nil {
			return fmt.Errorf("datastore: update poster authors: %w", err)
		}
	}
	return nil
}

// GetPoster retrieves a poster and its authors by ID.
func (s *baseProvider) GetPoster(ctx context.Context, id int64) (*model.Poster, error) {
	p, err := scanPoster(s.QueryRowContext(ctx, "SELECT "+posterColumns+" FROM posters WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get poster: %w", err)
	}
	if p.AuthorIDs, err = s.posterAuthors(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPosters returns the posters of a conference in creation order.
func (s *baseProvider) ListPosters(ctx context.Context, conferenceID int64) ([]model.Poster, error) {
	rows, err := s.QueryContext(ctx, "SELECT "+posterColumns+" FROM posters WHERE conference_id = ? ORDER BY id", conferenceID)
	if err != nil {
		return nil, fmt.Errorf("datastore: list posters: %w", err)
	}

	var posters []model.Poster
	for rows.Next() {
		p, err := scanPoster(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("datastore: scan poster: %w", err)
		}
		posters = append(posters, *p)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("datastore: list posters: %w", err)
	}
	_ = rows.Close()

	// Authors are loaded after the rows are closed; the pool has a single
	// connection.
	for i := range posters {
		if posters[i].AuthorIDs, err = s.posterAuthors(ctx, posters[i].ID); err != nil {
			return nil, err
		}
	}
	return posters, nil
}

// ---- Comments ----

// CreateComment validates and inserts an active comment.
func (s *baseProvider) CreateComment(ctx context.Context, comment *model.Comment) error {
	if err := comment.Validate(); err != nil {
		return fmt.Errorf("datastore: comment failed validation: %w", err)
	}
	created := s.Now()
	res, err := s.ExecContext(ctx,
		"INSERT INTO comments (poster_id, author_id, body, active, created_at) VALUES (?, ?, ?, 1, ?)",
		comment.PosterID, comment.AuthorID, comment.Body, formatDBTime(created))
	if err != nil {
		return fmt.Errorf("datastore: create comment: %w", err)
	}
	comment.ID, _ = res.LastInsertId()
	comment.Active = true
	comment.CreatedAt = created
	return nil
}

const commentSelect = "SELECT c.id, c.poster_id, c.author_id, u.username, c.body, c.active, c.created_at " +
	"FROM comments c JOIN users u ON u.id = c.author_id "

func scanComment(row scanner) (*model.Comment, error) {
	c := &model.Comment{}
	var active int
	var created string
	if err := row.Scan(&c.ID, &c.PosterID, &c.AuthorID, &c.Author, &c.Body, &active, &created); err != nil {
		return nil, err
	}
	c.Active = active != 0
	parsed, err := parseDBTime(created)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = parsed
	return c, nil
}

// GetComment retrieves a comment by ID, active or not.
func (s *baseProvider) GetComment(ctx context.Context, id int64) (*model.Comment, error) {
	c, err := scanComment(s.QueryRowContext(ctx, commentSelect+"WHERE c.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get comment: %w", err)
	}
	return c, nil
}

// ListComments returns a poster's comments, oldest first.
func (s *baseProvider) ListComments(ctx context.Context, filters model.CommentFilters) ([]model.Comment, error) {
	query := commentSelect + `
		WHERE c.poster_id = ?
		AND (? = 1 OR c.active = 1)
		ORDER BY c.created_at, c.id
		LIMIT COALESCE(?, 100)
		OFFSET COALESCE(?, 0)
	`
	rows, err := s.QueryContext(ctx, query,
		filters.PosterID, boolToInt(filters.IncludeInactive), filters.PageSize, filters.Offset)
	if err != nil {
		return nil, fmt.Errorf("datastore: list comments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var comments []model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan comment: %w", err)
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}

// SetCommentActive hides or restores a comment.
func (s *baseProvider) SetCommentActive(ctx context.Context, commentID int64, active bool) error {
	if _, err := s.ExecContext(ctx, "UPDATE comments SET active = ? WHERE id = ?", boolToInt(active), commentID); err != nil {
		return fmt.Errorf("datastore: set comment active: %w", err)
	}
	return nil
}
