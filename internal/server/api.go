package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ziadkadry99/coursebot/internal/logger"
	"github.com/ziadkadry99/coursebot/internal/retrieval"
)

// queryRequest is the body of /api/query and /api/retrieve.
type queryRequest struct {
	Query   string           `json:"query"`
	Mode    string           `json:"mode"`
	Filters retrieval.Filter `json:"filters"`
	Expand  bool             `json:"expand"`
	// K is optional; an explicit zero is rejected.
	K *int `json:"k"`
}

// answerResponse carries a generated answer and its HTML rendering.
type answerResponse struct {
	Answer    string               `json:"answer"`
	HTML      string               `json:"html,omitempty"`
	Citations []retrieval.Citation `json:"citations"`
	NoAnswer  bool                 `json:"no_answer"`
}

type retrieveResponse struct {
	Documents []retrieval.Document `json:"documents"`
}

func (s *Server) handleFacets(w http.ResponseWriter, r *http.Request) {
	if s.facets == nil {
		writeError(w, http.StatusNotFound, "not_configured", "facets are not available")
		return
	}
	f, err := s.facets.Facets(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	ans, err := s.pipeline.ProcessQuery(r.Context(), q)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.answerResponse(r, ans))
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	q, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	docs, err := s.pipeline.Retrieve(r.Context(), q)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if docs == nil {
		docs = []retrieval.Document{}
	}
	writeJSON(w, http.StatusOK, retrieveResponse{Documents: docs})
}

// decodeQuery parses and validates a query body, writing the error response
// itself when it fails.
func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (retrieval.Query, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, retrieval.ErrInvalidFilter) {
			s.handleError(w, r, err)
		} else {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		}
		return retrieval.Query{}, false
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_query", "query is required")
		return retrieval.Query{}, false
	}
	mode, err := retrieval.ParseMode(req.Mode)
	if err != nil {
		s.handleError(w, r, err)
		return retrieval.Query{}, false
	}
	k := s.cfg.DefaultK
	if req.K != nil {
		k = *req.K
	}
	return retrieval.Query{
		Text:   req.Query,
		Mode:   mode,
		Filter: req.Filters,
		Expand: req.Expand,
		K:      k,
	}, true
}

func (s *Server) answerResponse(r *http.Request, ans retrieval.Answer) answerResponse {
	resp := answerResponse{Answer: ans.Text, Citations: ans.Citations, NoAnswer: ans.NoAnswer}
	if resp.Citations == nil {
		resp.Citations = []retrieval.Citation{}
	}
	html, err := s.renderer.Render(ans.Text)
	if err != nil {
		logger.FromContext(r.Context()).Warn("answer not rendered", zap.Error(err))
	} else {
		resp.HTML = html
	}
	return resp
}
