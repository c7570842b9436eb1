package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"quiz-leaderboard-service/internal/auth"
	"quiz-leaderboard-service/internal/domain"
)

const (
	wsReadLimit    = 1 << 16
	wsWriteTimeout = 10 * time.Second
)

// WSHandler offers the same operations as the REST API over one WebSocket per
// quiz. Every inbound message gets exactly one reply; nothing is pushed.
type WSHandler struct {
	handler  *Handler
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(handler *Handler, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Any origin may connect; the caller still needs an identity.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Payload   any    `json:"payload"`
}

// ServeWS upgrades the request and serves register, submit, result and
// leaderboard requests for the quiz named by ?quizId=.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}
	id, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	ctx := r.Context()
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("ws read error", "quiz_id", quizID, "user_id", id.UserID, "error", err)
			}
			return
		}

		reply := h.dispatch(ctx, id, quizID, inbound)
		reply.RequestID = inbound.RequestID
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			h.logger.Warn("ws write error", "quiz_id", quizID, "user_id", id.UserID, "error", err)
			return
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, id auth.Identity, quizID string, in inboundMessage) outboundMessage {
	var (
		typ    string
		result any
		err    error
	)
	switch in.Type {
	case "register":
		var p registerPayload
		if err = decodePayload(in.Payload, &p); err == nil {
			typ = "registered"
			result, err = h.handler.register(ctx, id, quizID, p)
		}
	case "submit":
		var p submitPayload
		if err = decodePayload(in.Payload, &p); err == nil {
			typ = "submitResult"
			result, err = h.handler.submit(ctx, id, quizID, p)
		}
	case "result":
		var p resultPayload
		if err = decodePayload(in.Payload, &p); err == nil {
			typ = "result"
			result, err = h.handler.result(ctx, id, quizID, p)
		}
	case "review":
		var p resultPayload
		if err = decodePayload(in.Payload, &p); err == nil {
			typ = "review"
			result, err = h.handler.review(ctx, id, quizID, p)
		}
	case "leaderboard":
		typ = "leaderboard"
		result, err = h.handler.service.GetLeaderboard(ctx, quizID, id.UserID)
	default:
		return outboundMessage{Type: "error", Payload: errorBody{
			Error:   "unsupported_type",
			Message: "unsupported message type " + in.Type,
		}}
	}

	if err != nil {
		status, body := describeError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("ws request failed", "type", in.Type, "quiz_id", quizID, "user_id", id.UserID, "error", err)
		}
		return outboundMessage{Type: "error", Payload: body}
	}
	return outboundMessage{Type: typ, Payload: result}
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.NewValidationError("payload", "malformed JSON payload")
	}
	return nil
}
