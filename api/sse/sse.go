package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/questengine/cache"
	"github.com/kasuganosora/questengine/game/quest"
	"go.uber.org/zap"
)

const defaultKeepalive = 30 * time.Second

// Handler streams a character's quest lifecycle events as server-sent events.
type Handler struct {
	pubsub    cache.PubSub
	prefix    string
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new SSE Handler reading from the channel family that
// quest.PubSubPublisher writes with the same prefix.
func NewHandler(pubsub cache.PubSub, prefix string, logger *zap.Logger) *Handler {
	if prefix == "" {
		prefix = "quest:events"
	}
	return &Handler{pubsub: pubsub, prefix: prefix, keepalive: defaultKeepalive, logger: logger}
}

// WithKeepalive overrides the comment-line keepalive interval.
func (h *Handler) WithKeepalive(d time.Duration) *Handler {
	h.keepalive = d
	return h
}

// ServeQuestEvents handles GET /api/characters/:id/quest-events.
// Each published quest.Event is forwarded with its type as the SSE event name.
func (h *Handler) ServeQuestEvents(c *gin.Context) {
	characterID := c.Param("id")
	if characterID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "character id is required"})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, quest.EventChannel(h.prefix, characterID))
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.String("character_id", characterID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"character_id\":%q}\n\n", characterID)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", eventName(msg.Payload), msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

func eventName(payload string) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(payload), &head); err != nil || head.Type == "" {
		return "message"
	}
	return head.Type
}
