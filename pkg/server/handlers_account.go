package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/NicolasHaas/posterchat/pkg/account"
	"github.com/NicolasHaas/posterchat/pkg/identity"
	"github.com/NicolasHaas/posterchat/pkg/logging"
	"github.com/NicolasHaas/posterchat/pkg/model"
)

type validateRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type validateResponse struct {
	Field   string          `json:"field"`
	Valid   bool            `json:"valid"`
	Reason  identity.Reason `json:"reason,omitempty"`
	Message string          `json:"message,omitempty"`
	Limit   int             `json:"limit,omitempty"`
}

// handleValidate checks a single identity field, for inline form feedback.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, ok := account.ValidateField(req.Field, req.Value)
	if !ok {
		writeErr(w, http.StatusBadRequest, "unknown field "+req.Field)
		return
	}
	if !res.Valid() {
		s.metrics.FailedValidations.Add(1)
	}
	writeJSON(w, http.StatusOK, validateResponse{
		Field:   req.Field,
		Valid:   res.Valid(),
		Reason:  res.Reason,
		Message: res.Message(),
		Limit:   res.Limit,
	})
}

// profileView is a user as shown to other users. Email is only included
// for the user themself and for staff.
type profileView struct {
	Username    string    `json:"username"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	FullName    string    `json:"full_name"`
	Email       string    `json:"email,omitempty"`
	Avatar      string    `json:"avatar"`
	Description string    `json:"description"`
	IsStaff     bool      `json:"is_staff"`
	DateJoined  time.Time `json:"date_joined"`
}

func viewProfile(u *model.User, viewer *model.User) profileView {
	v := profileView{
		Username:    u.Username,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		FullName:    u.FullName(),
		Avatar:      u.Avatar,
		Description: u.Description,
		IsStaff:     u.IsStaff,
		DateJoined:  u.DateJoined,
	}
	if viewer != nil && (viewer.ID == u.ID || viewer.IsStaff) {
		v.Email = u.Email
	}
	return v
}

func (s *Server) countValidationFailures(err error) {
	var verr *account.ValidationError
	if errors.As(err, &verr) {
		s.metrics.FailedValidations.Add(int64(len(verr.Reasons)))
	}
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req account.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.accounts.Register(r.Context(), req)
	if err != nil {
		s.countValidationFailures(err)
		s.writeError(w, r, err)
		return
	}
	s.metrics.Signups.Add(1)
	writeJSON(w, http.StatusCreated, viewProfile(u, u))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.optionalUser(w, r)
	if !ok {
		return
	}
	u, err := s.accounts.Profile(r.Context(), r.PathValue("username"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewProfile(u, viewer))
}

// selfOrStaff resolves the {username} path user and checks that the
// caller may edit it.
func (s *Server) selfOrStaff(w http.ResponseWriter, r *http.Request) (caller, target *model.User, ok bool) {
	caller, ok = s.requireUser(w, r)
	if !ok {
		return nil, nil, false
	}
	target, err := s.accounts.Profile(r.Context(), r.PathValue("username"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, nil, false
	}
	if caller.ID != target.ID && !caller.IsStaff {
		writeErr(w, http.StatusForbidden, "you can only edit your own profile")
		return nil, nil, false
	}
	return caller, target, true
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	caller, target, ok := s.selfOrStaff(w, r)
	if !ok {
		return
	}
	var req account.UpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.accounts.UpdateProfile(r.Context(), target.Username, req)
	if err != nil {
		s.countValidationFailures(err)
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewProfile(u, caller))
}

func (s *Server) handleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	_, target, ok := s.selfOrStaff(w, r)
	if !ok {
		return
	}
	path, err := s.avatars.Save(r.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	log := logging.FromContext(r.Context())
	previous, err := s.accounts.SetAvatar(r.Context(), target.ID, path)
	if err != nil {
		_ = s.avatars.Remove(path)
		s.writeError(w, r, err)
		return
	}
	if previous != model.DefaultAvatar && previous != path {
		if err := s.avatars.Remove(previous); err != nil {
			log.Warn("remove old avatar", "path", previous, "err", err)
		}
	}
	s.metrics.AvatarsUploaded.Add(1)
	log.Info("avatar updated", "username", target.Username, "path", path)
	writeJSON(w, http.StatusOK, map[string]string{"avatar": path})
}

func (s *Server) handleGetAvatar(w http.ResponseWriter, r *http.Request) {
	u, err := s.accounts.Profile(r.Context(), r.PathValue("username"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if u.Avatar == model.DefaultAvatar {
		writeErr(w, http.StatusNotFound, "no avatar uploaded")
		return
	}
	f, err := s.avatars.Open(u.Avatar)
	if err != nil {
		writeErr(w, http.StatusNotFound, "avatar missing")
		return
	}
	defer func() { _ = f.Close() }()
	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, "", time.Time{}, f)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  profileView `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token, u, err := s.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.metrics.LoginsFailed.Add(1)
		s.writeError(w, r, err)
		return
	}
	s.metrics.LoginsOK.Add(1)
	writeJSON(w, http.StatusCreated, loginResponse{Token: token, User: viewProfile(u, u)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeErr(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := s.accounts.Logout(r.Context(), token); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
