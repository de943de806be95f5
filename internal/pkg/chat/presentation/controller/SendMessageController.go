package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-mensajeria/internal/apperr"
	"go-mensajeria/internal/infrastructure/identity"
	"go-mensajeria/internal/pkg/chat/application/usecase"
)

// SendMessageController handles the send-message endpoint only (one controller per endpoint)
type SendMessageController struct {
	UC      *usecase.SendMessageUseCase
	Timeout time.Duration
}

func NewSendMessageController(uc *usecase.SendMessageUseCase) *SendMessageController {
	// room for the append retries
	return &SendMessageController{UC: uc, Timeout: 10 * time.Second}
}

// sendMessageRequest is the DTO for the HTTP request body
type sendMessageRequest struct {
	Body          string  `json:"body"`
	AttachmentRef *string `json:"attachment_ref"`
}

// Handle returns a gin handler that appends a message to the caller's conversation with :peerId
func (h *SendMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := identity.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
		defer cancel()
		msg, err := h.UC.Execute(ctx, usecase.SendMessageInput{
			SenderID:      claims.UserID(),
			ReceiverID:    c.Param("peerId"),
			Body:          req.Body,
			AttachmentRef: req.AttachmentRef,
		})
		if err != nil {
			c.JSON(apperr.Response(err))
			return
		}

		c.JSON(http.StatusCreated, msg)
	}
}
