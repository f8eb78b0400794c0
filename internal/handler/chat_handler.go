package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Sandro385/expert-tune/internal/apperr"
	"github.com/Sandro385/expert-tune/internal/model"
	"github.com/Sandro385/expert-tune/internal/service"
	"github.com/Sandro385/expert-tune/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ChatHandler streams an interview over a WebSocket. Each text frame from the
// client is one answer; the reply comes back as raw text chunks followed by a
// JSON completion frame.
type ChatHandler struct {
	chatService service.ChatService
	userService service.UserService
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(chatService service.ChatService, userService service.UserService) *ChatHandler {
	return &ChatHandler{chatService: chatService, userService: userService}
}

// Handle serves GET /chat/:token?domain=...
func (h *ChatHandler) Handle(c *gin.Context) {
	user, _, err := h.userService.Authenticate(c.Request.Context(), c.Param("token"))
	if err != nil {
		fail(c, http.StatusUnauthorized, "invalid token")
		return
	}
	key := model.ConversationKey{Username: user.Username, Domain: c.Query("domain")}
	history, err := h.chatService.Transcript(c.Request.Context(), key)
	if err != nil {
		failWithError(c, "ChatHandler", err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket upgrade failed", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket connection established for %s", key)
	if err := writeJSON(conn, gin.H{"type": "history", "messages": history}); err != nil {
		return
	}

	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("WebSocket read failed for %s: %v", key, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		reply, err := h.chatService.Submit(c.Request.Context(), key, string(message), conn)
		if err != nil {
			if apperr.IsValidation(err) {
				_ = writeJSON(conn, gin.H{"type": "error", "message": err.Error()})
				continue
			}
			log.Errorf("WebSocket submit failed for %s: %v", key, err)
			_ = writeJSON(conn, gin.H{"type": "error", "message": "the answer could not be saved"})
			return
		}

		if reply.Warning != nil {
			log.Warnw("WebSocket provider warning", "conversation", key.String(), "error", reply.Warning)
			if err := writeJSON(conn, gin.H{
				"type":    "warning",
				"message": reply.Warning.Error(),
				"reply":   reply.Message.Content,
			}); err != nil {
				return
			}
		}

		now := time.Now()
		if err := writeJSON(conn, gin.H{
			"type":      "completion",
			"status":    "finished",
			"reply":     reply.Message.Content,
			"timestamp": now.UnixMilli(),
			"date":      now.Format("2006-01-02T15:04:05"),
		}); err != nil {
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}
