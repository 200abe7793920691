// Package account implements signup, login and profile management on top of
// the identity validators and the datastore.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/NicolasHaas/posterchat/pkg/crypto"
	"github.com/NicolasHaas/posterchat/pkg/datastore"
	"github.com/NicolasHaas/posterchat/pkg/identity"
	"github.com/NicolasHaas/posterchat/pkg/model"
)

const (
	MinPasswordLength = 8
	SessionLifetime   = 14 * 24 * time.Hour
)

var (
	ErrInvalidCredentials = errors.New("account: invalid email or password")
	ErrUserNotFound       = errors.New("account: user not found")
	ErrInactive           = errors.New("account: user is inactive")
)

// ValidationError collects every rejected field of one request.
type ValidationError struct {
	Fields  map[string]string // field -> message
	Reasons map[string]identity.Reason
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return "account: " + strings.Join(msgs, " ")
}

type validationCollector struct {
	err *ValidationError
}

func (c *validationCollector) result(res identity.Result) {
	if res.Valid() {
		return
	}
	c.add(res.Field, res.Message(), res.Reason)
}

func (c *validationCollector) add(field, msg string, reason identity.Reason) {
	if c.err == nil {
		c.err = &ValidationError{Fields: map[string]string{}, Reasons: map[string]identity.Reason{}}
	}
	if _, exists := c.err.Fields[field]; exists {
		return
	}
	c.err.Fields[field] = msg
	if reason != identity.ReasonNone {
		c.err.Reasons[field] = reason
	}
}

func (c *validationCollector) errOrNil() error {
	if c.err == nil {
		return nil
	}
	return c.err
}

// SignupRequest is the input of Register.
type SignupRequest struct {
	Email           string `json:"email"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// UpdateRequest carries the editable profile fields. Nil fields are left
// unchanged.
type UpdateRequest struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Description *string `json:"description"`
}

// Service manages user accounts and sessions.
type Service struct {
	store datastore.DataProviderFactory
}

// NewService creates an account service backed by store.
func NewService(store datastore.DataProviderFactory) *Service {
	return &Service{store: store}
}

// ValidateField runs the validator for a single named field. Unknown field
// names return ok=false.
func ValidateField(field, value string) (res identity.Result, ok bool) {
	switch field {
	case "name", "first_name", "last_name":
		return identity.ValidateName(value).For(field), true
	case identity.FieldUsername:
		res = identity.ValidateUsername(value)
		if res.Valid() {
			res = identity.CheckMaxLength(identity.FieldUsername, value, identity.MaxUsernameLength)
		}
		return res, true
	case identity.FieldEmail:
		return identity.ValidateEmail(value), true
	default:
		return identity.Result{}, false
	}
}

func (s *Service) validateSignup(req *SignupRequest) error {
	var c validationCollector
	for _, f := range []struct{ name, value string }{
		{"email", req.Email},
		{"first_name", req.FirstName},
		{"last_name", req.LastName},
		{"username", req.Username},
	} {
		res, _ := ValidateField(f.name, f.value)
		c.result(res)
	}
	if len(req.Password) < MinPasswordLength {
		c.add("password", fmt.Sprintf("password must be at least %d characters long.", MinPasswordLength), identity.ReasonTooShort)
	} else if req.Password != req.PasswordConfirm {
		c.add("password_confirm", "passwords do not match.", identity.ReasonNone)
	}
	return c.errOrNil()
}

// Register validates a signup request, checks that the email and username
// are free, and stores the new active user.
func (s *Service) Register(ctx context.Context, req SignupRequest) (*model.User, error) {
	return s.create(ctx, req, false)
}

// CreateSuperuser is Register for staff accounts.
func (s *Service) CreateSuperuser(ctx context.Context, req SignupRequest) (*model.User, error) {
	return s.create(ctx, req, true)
}

func (s *Service) create(ctx context.Context, req SignupRequest, staff bool) (*model.User, error) {
	req.Email = identity.NormalizeEmail(req.Email)
	if err := s.validateSignup(&req); err != nil {
		return nil, err
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("account: register: %w", err)
	}

	// Lookups and insert share one transaction.
	tx, err := s.store.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("account: register: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var c validationCollector
	if existing, err := tx.GetUserByEmail(ctx, req.Email); err != nil {
		return nil, fmt.Errorf("account: register: %w", err)
	} else if existing != nil {
		c.add("email", msgEmailTaken, identity.ReasonNone)
	}
	if existing, err := tx.GetUserByUsername(ctx, req.Username); err != nil {
		return nil, fmt.Errorf("account: register: %w", err)
	} else if existing != nil {
		c.add("username", msgUsernameTaken, identity.ReasonNone)
	}
	if err := c.errOrNil(); err != nil {
		return nil, err
	}

	user := &model.User{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Username:     req.Username,
		PasswordHash: hash,
		IsActive:     true,
		IsStaff:      staff,
		Avatar:       model.DefaultAvatar,
	}
	if err := tx.CreateUser(ctx, user); err != nil {
		return nil, duplicateOr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, duplicateOr(err)
	}
	slog.Info("user registered", "user_id", user.ID, "username", user.Username, "staff", staff)
	return user, nil
}

const (
	msgEmailTaken    = "a user with that email address already exists."
	msgUsernameTaken = "a user with that username already exists."
)

// duplicateOr turns a datastore uniqueness failure into the same
// ValidationError a lookup would have produced.
func duplicateOr(err error) error {
	var c validationCollector
	switch {
	case errors.Is(err, datastore.ErrDuplicateEmail):
		c.add("email", msgEmailTaken, identity.ReasonNone)
	case errors.Is(err, datastore.ErrDuplicateUsername):
		c.add("username", msgUsernameTaken, identity.ReasonNone)
	default:
		return fmt.Errorf("account: register: %w", err)
	}
	return c.errOrNil()
}

// Profile returns an active user by username.
func (s *Service) Profile(ctx context.Context, username string) (*model.User, error) {
	u, err := s.store.NonTx().GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("account: profile: %w", err)
	}
	if u == nil || !u.IsActive {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// UpdateProfile applies req to the user and re-validates the names.
func (s *Service) UpdateProfile(ctx context.Context, username string, req UpdateRequest) (*model.User, error) {
	u, err := s.Profile(ctx, username)
	if err != nil {
		return nil, err
	}

	var c validationCollector
	if req.FirstName != nil {
		c.result(identity.ValidateName(*req.FirstName).For("first_name"))
		u.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		c.result(identity.ValidateName(*req.LastName).For("last_name"))
		u.LastName = *req.LastName
	}
	if req.Description != nil {
		if len([]rune(*req.Description)) > model.MaxDescriptionLength {
			c.add("description", model.ErrUserDescriptionTooLong.Error()+".", identity.ReasonTooLong)
		}
		u.Description = *req.Description
	}
	if err := c.errOrNil(); err != nil {
		return nil, err
	}

	if err := s.store.NonTx().UpdateUserProfile(ctx, u); err != nil {
		return nil, fmt.Errorf("account: update profile: %w", err)
	}
	return u, nil
}

// SetAvatar records a new avatar path for the user and returns the path it
// replaced.
func (s *Service) SetAvatar(ctx context.Context, userID int64, path string) (string, error) {
	st := s.store.NonTx()
	u, err := st.GetUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("account: set avatar: %w", err)
	}
	if u == nil {
		return "", ErrUserNotFound
	}
	previous := u.Avatar
	u.Avatar = path
	if err := st.UpdateUserProfile(ctx, u); err != nil {
		return "", fmt.Errorf("account: set avatar: %w", err)
	}
	return previous, nil
}

// Deactivate marks the account inactive; it can no longer log in.
func (s *Service) Deactivate(ctx context.Context, userID int64) error {
	return s.store.NonTx().SetUserActive(ctx, userID, false)
}

// Authenticate checks credentials and opens a session. It returns the raw
// session token; only its hash is stored.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, *model.User, error) {
	st := s.store.NonTx()
	u, err := st.GetUserByEmail(ctx, identity.NormalizeEmail(email))
	if err != nil {
		return "", nil, fmt.Errorf("account: authenticate: %w", err)
	}
	if u == nil {
		return "", nil, ErrInvalidCredentials
	}
	if err := crypto.VerifyPassword(password, u.PasswordHash); err != nil {
		if !errors.Is(err, crypto.ErrPasswordMismatch) {
			slog.Warn("stored password hash unusable", "user_id", u.ID, "err", err)
		}
		return "", nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return "", nil, ErrInactive
	}

	raw, err := crypto.GenerateToken()
	if err != nil {
		return "", nil, fmt.Errorf("account: authenticate: %w", err)
	}
	if err := st.CreateSession(ctx, crypto.HashToken(raw), u.ID, st.Now().Add(SessionLifetime)); err != nil {
		return "", nil, fmt.Errorf("account: authenticate: %w", err)
	}
	return raw, u, nil
}

// UserForToken resolves a raw session token to its user, or nil.
func (s *Service) UserForToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}
	return s.store.NonTx().GetUserBySession(ctx, crypto.HashToken(token))
}

// Logout revokes a session token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.store.NonTx().DeleteSession(ctx, crypto.HashToken(token))
}
