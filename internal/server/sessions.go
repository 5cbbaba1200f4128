package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/coursebot/internal/retrieval"
	"github.com/ziadkadry99/coursebot/internal/study"
)

// sessionResponse is the participant-facing view of a session. The
// retrieval mode of a task is not disclosed.
type sessionResponse struct {
	StudyID           string                      `json:"study_id"`
	Phase             study.Phase                 `json:"phase"`
	CurrentTask       int                         `json:"current_task"`
	TaskCount         int                         `json:"task_count"`
	Task              string                      `json:"task,omitempty"`
	Chat              map[string][]study.Exchange `json:"chat"`
	ParticipationCode string                      `json:"participation_code,omitempty"`
}

type sessionQueryRequest struct {
	Query   string           `json:"query"`
	Filters retrieval.Filter `json:"filters"`
}

type feedbackRequest struct {
	Responses map[string]any `json:"responses"`
}

func (s *Server) sessionView(sess *study.Session) sessionResponse {
	return sessionResponse{
		StudyID:           sess.ID,
		Phase:             sess.Phase,
		CurrentTask:       sess.CurrentTask,
		TaskCount:         len(sess.Methods),
		Task:              s.studies.TaskDescription(sess),
		Chat:              sess.Chat,
		ParticipationCode: sess.ParticipationCode,
	}
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.studies.Start(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.sessionView(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.studies.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(sess))
}

func (s *Server) handleSessionQuery(w http.ResponseWriter, r *http.Request) {
	var req sessionQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, retrieval.ErrInvalidFilter) {
			s.handleError(w, r, err)
		} else {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		}
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_query", "query is required")
		return
	}

	ans, err := s.studies.Ask(r.Context(), chi.URLParam(r, "id"), study.Question{Text: req.Query, Filter: req.Filters})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.answerResponse(r, ans))
}

func (s *Server) handleSessionFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
			return
		}
	}
	sess, err := s.studies.Submit(r.Context(), chi.URLParam(r, "id"), req.Responses)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(sess))
}

func (s *Server) handleSessionAdvance(w http.ResponseWriter, r *http.Request) {
	sess, err := s.studies.Advance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(sess))
}

func (s *Server) handleSessionLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var buf bytes.Buffer
	if err := s.studies.Export(r.Context(), id, &buf); err != nil {
		s.handleError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="study_%s.json"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
