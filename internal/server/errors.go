package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ziadkadry99/coursebot/internal/logger"
	"github.com/ziadkadry99/coursebot/internal/retrieval"
	"github.com/ziadkadry99/coursebot/internal/study"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorMapping maps a sentinel to a response. An empty message exposes the
// error text to the caller.
type errorMapping struct {
	sentinel error
	status   int
	code     string
	message  string
}

var errorMappings = []errorMapping{
	{retrieval.ErrInvalidMode, http.StatusBadRequest, "invalid_mode", ""},
	{retrieval.ErrInvalidK, http.StatusBadRequest, "invalid_k", ""},
	{retrieval.ErrInvalidFilter, http.StatusBadRequest, "invalid_filter", ""},
	{study.ErrNotFound, http.StatusNotFound, "session_not_found", ""},
	{study.ErrWrongPhase, http.StatusConflict, "wrong_phase", ""},
	{study.ErrNoQuestions, http.StatusConflict, "no_questions", ""},
	{retrieval.ErrRetrievalDegraded, http.StatusServiceUnavailable, "retrieval_degraded",
		"The search service is temporarily unavailable. Please try again."},
	{retrieval.ErrIndexUnavailable, http.StatusServiceUnavailable, "index_unavailable",
		"The course material index is unavailable."},
	{retrieval.ErrMalformedAnswer, http.StatusBadGateway, "malformed_answer",
		"The answer could not be generated. Please rephrase your question."},
}

// classify returns the status, code and client-safe message for err.
func classify(err error) (int, errorResponse) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.sentinel) {
			continue
		}
		msg := m.message
		if msg == "" {
			msg = err.Error()
		}
		return m.status, errorResponse{Code: m.code, Message: msg}
	}
	return http.StatusInternalServerError, errorResponse{Code: "internal_error", Message: "internal error"}
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classify(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		log.Warn("request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
