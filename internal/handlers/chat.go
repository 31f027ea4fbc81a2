package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kosarica/catalog-service/internal/chat"
	"github.com/kosarica/catalog-service/internal/database"
	"github.com/kosarica/catalog-service/internal/middleware"
)

// ChatHandler exposes internal/chat.Run over HTTP as a literal SSE stream —
// `data: {"type": ..., "content": ...}\n\n` per §4.H, not gin's built-in
// c.SSEvent helper, which emits a distinct `event:`/`data:` framing the spec
// doesn't call for.
type ChatHandler struct {
	provider chat.Provider
}

func NewChatHandler(provider chat.Provider) *ChatHandler {
	return &ChatHandler{provider: provider}
}

type chatV2Request struct {
	SessionID   string `json:"session_id"`
	MessageText string `json:"message_text" binding:"required"`
}

// ginEmitter implements chat.Emitter over a gin ResponseWriter, flushing
// after every event so the client sees each part as soon as it's produced.
type ginEmitter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (e *ginEmitter) Emit(ev chat.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal SSE event failed", "error", err)
		return
	}
	if _, err := e.w.Write([]byte("data: ")); err != nil {
		return
	}
	if _, err := e.w.Write(body); err != nil {
		return
	}
	if _, err := e.w.Write([]byte("\n\n")); err != nil {
		return
	}
	e.f.Flush()
}

// ChatV2 runs one chat turn and streams its SSE parts to the client.
// POST /v2/chat_v2
func (h *ChatHandler) ChatV2(c *gin.Context) {
	var req chatV2Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	emit := &ginEmitter{w: c.Writer, f: flusher}

	userID := middleware.UserIDFromContext(c)
	var displayName string
	if userID != nil {
		if u, err := database.GetUserByID(c.Request.Context(), *userID); err == nil {
			displayName = u.Email
		}
	}

	chat.Run(c.Request.Context(), h.provider, emit, userID, req.SessionID, displayName, req.MessageText)
}

// RegisterChatRoutes mounts /v2/chat_v2.
func RegisterChatRoutes(r *gin.RouterGroup, provider chat.Provider) {
	h := NewChatHandler(provider)
	r.POST("/chat_v2", h.ChatV2)
}
