package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/NicolasHaas/posterchat/pkg/account"
	"github.com/NicolasHaas/posterchat/pkg/avatar"
	"github.com/NicolasHaas/posterchat/pkg/conference"
	"github.com/NicolasHaas/posterchat/pkg/logging"
	"github.com/NicolasHaas/posterchat/pkg/model"
	"github.com/NicolasHaas/posterchat/pkg/rbac"
	"github.com/NicolasHaas/posterchat/pkg/version"
)

const maxJSONBody = 1 << 20

// Handler returns the API handler with request logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/validate", s.handleValidate)

	mux.HandleFunc("POST /api/users", s.handleSignup)
	mux.HandleFunc("GET /api/users/{username}", s.handleGetUser)
	mux.HandleFunc("PATCH /api/users/{username}", s.handleUpdateUser)
	mux.HandleFunc("PUT /api/users/{username}/avatar", s.handleUploadAvatar)
	mux.HandleFunc("GET /api/users/{username}/avatar", s.handleGetAvatar)

	mux.HandleFunc("POST /api/sessions", s.handleLogin)
	mux.HandleFunc("DELETE /api/sessions", s.handleLogout)

	mux.HandleFunc("GET /api/conferences", s.handleListConferences)
	mux.HandleFunc("POST /api/conferences", s.handleCreateConference)
	mux.HandleFunc("GET /api/conferences/{cid}", s.handleGetConference)
	mux.HandleFunc("PUT /api/conferences/{cid}/members/{role}", s.handleSetMembers)
	mux.HandleFunc("POST /api/conferences/{cid}/posters", s.handleCreatePoster)
	mux.HandleFunc("GET /api/conferences/{cid}/posters/{pid}", s.handleGetPoster)
	mux.HandleFunc("PATCH /api/conferences/{cid}/posters/{pid}", s.handleUpdatePoster)
	mux.HandleFunc("GET /api/conferences/{cid}/posters/{pid}/comments", s.handleListComments)
	mux.HandleFunc("POST /api/conferences/{cid}/posters/{pid}/comments", s.handleAddComment)
	mux.HandleFunc("DELETE /api/conferences/{cid}/posters/{pid}/comments/{id}", s.handleDeactivateComment)
	mux.HandleFunc("GET /api/conferences/{cid}/posters/{pid}/live", s.handleLive)

	mux.HandleFunc("GET /api/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, version.Get())
	})
	mux.HandleFunc("GET /healthz", handleHealthz)

	return s.withRequestLog(mux)
}

// ---- Middleware ----

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("server: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logging.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := logging.WithRequest(r.Context(), id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		s.metrics.Requests.Add(1)
		if rec.status >= 500 {
			s.metrics.ServerErrors.Add(1)
		}
		logging.FromContext(ctx).Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// ---- Helpers ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
	Reasons map[string]string `json:"reasons,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeError maps service errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *account.ValidationError
	switch {
	case errors.As(err, &verr):
		body := errorBody{Error: "validation failed", Fields: verr.Fields, Reasons: map[string]string{}}
		for f, reason := range verr.Reasons {
			body.Reasons[f] = string(reason)
		}
		writeJSON(w, http.StatusBadRequest, body)
	case errors.Is(err, account.ErrInvalidCredentials):
		writeErr(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, account.ErrInactive), errors.Is(err, rbac.ErrPermissionDenied):
		writeErr(w, http.StatusForbidden, err.Error())
	case errors.Is(err, account.ErrUserNotFound), errors.Is(err, conference.ErrNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, conference.ErrDuplicateTitle):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, avatar.ErrTooLarge):
		writeErr(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, model.ErrConferenceInvalid),
		errors.Is(err, model.ErrPosterInvalid),
		errors.Is(err, model.ErrCommentInvalid),
		errors.Is(err, model.ErrInvalidRole),
		errors.Is(err, conference.ErrUnknownUser),
		errors.Is(err, conference.ErrNoOrganizer),
		errors.Is(err, avatar.ErrUnsupported):
		writeErr(w, http.StatusBadRequest, err.Error())
	default:
		logging.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeErr(w, http.StatusNotFound, "not found")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("invalid %s %q", name, raw)
	}
	return &v, nil
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	// Browsers cannot set headers on websocket handshakes.
	return r.URL.Query().Get("token")
}

// currentUser returns the authenticated user, or nil for anonymous requests.
func (s *Server) currentUser(r *http.Request) (*model.User, error) {
	return s.accounts.UserForToken(r.Context(), bearerToken(r))
}

// requireUser is currentUser that answers 401 for anonymous requests.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	u, err := s.currentUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	if u == nil {
		writeErr(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return u, true
}

// optionalUser is currentUser that answers 500 on lookup failure.
func (s *Server) optionalUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	u, err := s.currentUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return u, true
}
