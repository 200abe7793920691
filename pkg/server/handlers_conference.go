package server

import (
	"net/http"

	"github.com/NicolasHaas/posterchat/pkg/conference"
	"github.com/NicolasHaas/posterchat/pkg/model"
)

type createConferenceRequest struct {
	Title       string `json:"title"`
	Institution string `json:"institution"`
	Description string `json:"description"`
	IsPublic    *bool  `json:"is_public"`
}

type setMembersRequest struct {
	Usernames []string `json:"usernames"`
}

type commentRequest struct {
	Body string `json:"body"`
}

func (s *Server) handleListConferences(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.optionalUser(w, r)
	if !ok {
		return
	}
	confs, err := s.conferences.ListVisible(r.Context(), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if confs == nil {
		confs = []model.Conference{}
	}
	writeJSON(w, http.StatusOK, confs)
}

func (s *Server) handleCreateConference(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req createConferenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	conf := model.NewConference(req.Title, req.Institution)
	conf.Description = req.Description
	if req.IsPublic != nil {
		conf.IsPublic = *req.IsPublic
	}
	if err := s.conferences.Create(r.Context(), actor, conf); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.ConferencesCreated.Add(1)
	writeJSON(w, http.StatusCreated, conf)
}

func (s *Server) handleGetConference(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.optionalUser(w, r)
	if !ok {
		return
	}
	cid, ok := pathID(w, r, "cid")
	if !ok {
		return
	}
	d, err := s.conferences.Get(r.Context(), actor, cid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleSetMembers(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	cid, ok := pathID(w, r, "cid")
	if !ok {
		return
	}
	role, known := model.ParseRole(r.PathValue("role"))
	if !known {
		writeErr(w, http.StatusNotFound, "unknown role "+r.PathValue("role"))
		return
	}
	var req setMembersRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.conferences.SetMembers(r.Context(), actor, cid, role, req.Usernames); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.conferences.Get(r.Context(), actor, cid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Members)
}

func (s *Server) handleCreatePoster(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	cid, ok := pathID(w, r, "cid")
	if !ok {
		return
	}
	var in conference.PosterInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := s.conferences.CreatePoster(r.Context(), actor, cid, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.PostersCreated.Add(1)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPoster(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.optionalUser(w, r)
	if !ok {
		return
	}
	cid, ok := pathID(w, r, "cid")
	if !ok {
		return
	}
	pid, ok := pathID(w, r, "pid")
	if !ok {
		return
	}
	p, err := s.conferences.GetPoster(r.Context(), actor, cid, pid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdatePoster(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	cid, ok := pathID(w, r, "cid")
	if !ok {
		return
	}
	pid, ok := pathID(w, r, "pid")
	if !ok {
		return
	}
	var in conference.PosterInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := s.conferences.UpdatePoster(r.Context(), actor, cid, pid, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.optionalUser(w, r)
	if !ok {
		return
	}
	cid, ok := pathID(w, r, "cid")
	if !ok {
		return
	}
	pid, ok := pathID(w, r, "pid")
	if !ok {
		return
	}
	pageSize, err := queryInt(r, "page_size")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	comments, err := s.conferences.ListComments(r.Context(), actor, cid, pid, pageSize, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if comments == nil {
		comments = []model.Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	cid, ok := pathID(w, r, "cid")
	if !ok {
		return
	}
	pid, ok := pathID(w, r, "pid")
	if !ok {
		return
	}
	var req commentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.conferences.AddComment(r.Context(), actor, cid, pid, req.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.CommentsPosted.Add(1)
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleDeactivateComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	cid, ok := pathID(w, r, "cid")
	if !ok {
		return
	}
	pid, ok := pathID(w, r, "pid")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.conferences.DeactivateComment(r.Context(), actor, cid, pid, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLive streams new comments on a poster over a websocket.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.optionalUser(w, r)
	if !ok {
		return
	}
	cid, ok := pathID(w, r, "cid")
	if !ok {
		return
	}
	pid, ok := pathID(w, r, "pid")
	if !ok {
		return
	}
	if _, err := s.conferences.GetPoster(r.Context(), actor, cid, pid); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.live.serve(w, r, pid)
}
