package controller

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"go-mensajeria/internal/apperr"
	"go-mensajeria/internal/infrastructure/identity"
	"go-mensajeria/internal/pkg/chat/application/usecase"
)

const defaultPageSize = 100

// GetMessageController handles fetching the ordered history of a conversation (one controller per endpoint)
type GetMessageController struct {
	UC *usecase.GetMessageUseCase
}

func NewGetMessageController(uc *usecase.GetMessageUseCase) *GetMessageController {
	return &GetMessageController{UC: uc}
}

func (h *GetMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := identity.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		// Defaults
		limit := defaultPageSize
		var afterSeq int64

		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}
		if v := c.Query("after_seq"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "after_seq must be a non-negative integer"})
				return
			}
			afterSeq = n
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		msgs, err := h.UC.Execute(ctx, usecase.GetMessageInput{
			UserID:   claims.UserID(),
			PeerID:   c.Param("peerId"),
			AfterSeq: afterSeq,
			Limit:    limit,
		})
		if err != nil {
			c.JSON(apperr.Response(err))
			return
		}

		next := afterSeq
		if n := len(msgs); n > 0 {
			next = msgs[n-1].Seq
		}
		c.JSON(http.StatusOK, gin.H{
			"messages":  msgs,
			"count":     len(msgs),
			"after_seq": afterSeq,
			"next_seq":  next,
		})
	}
}
