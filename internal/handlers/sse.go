package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/internal/services"
	"github.com/labelpizza/backend/internal/utils"
	"github.com/labelpizza/backend/pkg/logger"
	"github.com/labelpizza/backend/pkg/response"
)

// SSEHandler streams import progress as Server-Sent Events.
type SSEHandler struct {
	importHub *services.ImportEventHub
}

func NewSSEHandler(hub *services.ImportEventHub) *SSEHandler {
	return &SSEHandler{importHub: hub}
}

// StreamImportEvents accepts the token as ?token= because EventSource cannot
// set headers. Admins see every task, other users only their own.
// GET /api/events/imports
func (h *SSEHandler) StreamImportEvents(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		response.Unauthorized(c, "Unauthorized")
		return
	}
	claims, err := utils.ParseToken(token)
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		return
	}
	isAdmin := claims.Role == models.UserTypeAdmin

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	events := h.importHub.Subscribe(clientID)
	defer h.importHub.Unsubscribe(clientID)

	logger.Info().Str("client_id", clientID).Uint("user_id", claims.UserID).Msg("[SSE] Import client connected")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			if !isAdmin && event.RequestedBy != claims.UserID {
				return true
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error().Err(err).Msg("[SSE] Import event marshal error")
				return true
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Status, data)
			c.Writer.Flush()
			return true
		case <-c.Request.Context().Done():
			logger.Info().Str("client_id", clientID).Msg("[SSE] Import client disconnected")
			return false
		}
	})
}
