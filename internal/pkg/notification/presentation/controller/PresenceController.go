package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-mensajeria/internal/apperr"
	"go-mensajeria/internal/infrastructure/identity"
	"go-mensajeria/internal/pkg/notification/application/presence"
)

// PresenceController lets clients without a socket report the conversation on screen.
// A null conversation_id clears it.
type PresenceController struct {
	Tracker *presence.Tracker
}

func NewPresenceController(t *presence.Tracker) *PresenceController {
	return &PresenceController{Tracker: t}
}

type presenceRequest struct {
	ConversationID *string `json:"conversation_id"`
}

func (h *PresenceController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := identity.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		var req presenceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		conv := ""
		if req.ConversationID != nil {
			conv = *req.ConversationID
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		if err := h.Tracker.SetActive(ctx, claims.UserID(), conv); err != nil {
			c.JSON(apperr.Response(apperr.Transient("presence.SetActive", err)))
			return
		}
		c.Status(http.StatusNoContent)
	}
}
