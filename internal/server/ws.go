package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ziadkadry99/coursebot/internal/logger"
	"github.com/ziadkadry99/coursebot/internal/retrieval"
	"github.com/ziadkadry99/coursebot/internal/study"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// chatRequest is the incoming WebSocket message format.
type chatRequest struct {
	Type      string           `json:"type"`       // "ask"
	SessionID string           `json:"session_id"` // empty for a stateless query
	Content   string           `json:"content"`
	Mode      string           `json:"mode"` // stateless queries only
	Filters   retrieval.Filter `json:"filters"`
	K         int              `json:"k"`
}

// chatResponse is the outgoing WebSocket message format.
type chatResponse struct {
	Type      string               `json:"type"` // "response" or "error"
	SessionID string               `json:"session_id,omitempty"`
	Content   string               `json:"content"`
	HTML      string               `json:"html,omitempty"`
	Citations []retrieval.Citation `json:"citations,omitempty"`
	NoAnswer  bool                 `json:"no_answer,omitempty"`
	Status    int                  `json:"status,omitempty"`
}

// handleWebSocket serves the chat. Messages bound to a session are
// answered with the session's current mode and recorded in its history.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()
	// Deadlines set by the http.Server survive the hijack.
	_ = conn.SetReadDeadline(time.Time{})

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read", zap.Error(err))
			}
			if _, ok := err.(*websocket.CloseError); ok {
				return
			}
			if !s.send(conn, log, chatResponse{Type: "error", Content: "invalid message format", Status: http.StatusBadRequest}) {
				return
			}
			continue
		}

		if req.Content == "" {
			s.send(conn, log, chatResponse{Type: "error", SessionID: req.SessionID, Content: "content is required", Status: http.StatusBadRequest})
			continue
		}
		if req.Type != "ask" {
			s.send(conn, log, chatResponse{Type: "error", SessionID: req.SessionID, Content: "unknown message type: " + req.Type, Status: http.StatusBadRequest})
			continue
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		resp := s.answerChat(ctx, req)
		cancel()
		if !s.send(conn, log, resp) {
			return
		}
	}
}

func (s *Server) answerChat(ctx context.Context, req chatRequest) chatResponse {
	var (
		ans retrieval.Answer
		err error
	)
	if req.SessionID != "" && s.studies != nil {
		ans, err = s.studies.Ask(ctx, req.SessionID, study.Question{Text: req.Content, Filter: req.Filters})
	} else {
		var mode retrieval.Mode
		if mode, err = retrieval.ParseMode(req.Mode); err == nil {
			k := req.K
			if k == 0 {
				k = s.cfg.DefaultK
			}
			ans, err = s.pipeline.ProcessQuery(ctx, retrieval.Query{Text: req.Content, Mode: mode, Filter: req.Filters, K: k})
		}
	}
	if err != nil {
		status, body := classify(err)
		logger.FromContext(ctx).Warn("chat query failed", zap.Int("status", status), zap.Error(err))
		return chatResponse{Type: "error", SessionID: req.SessionID, Content: body.Message, Status: status}
	}

	resp := chatResponse{
		Type:      "response",
		SessionID: req.SessionID,
		Content:   ans.Text,
		Citations: ans.Citations,
		NoAnswer:  ans.NoAnswer,
	}
	if html, err := s.renderer.Render(ans.Text); err == nil {
		resp.HTML = html
	}
	return resp
}

func (s *Server) send(conn *websocket.Conn, log *zap.Logger, resp chatResponse) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(resp); err != nil {
		log.Warn("websocket write", zap.Error(err))
		return false
	}
	return true
}
