package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-mensajeria/internal/apperr"
	"go-mensajeria/internal/infrastructure/identity"
	"go-mensajeria/internal/pkg/notification/application/token"
)

const requestTimeout = 5 * time.Second

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// IssueTokenController records a token the push provider issued to an installation.
// It runs before sign-in, so a session is optional; once the installation is bound
// only its owner may replace the token.
type IssueTokenController struct {
	Tokens *token.Manager
}

func NewIssueTokenController(m *token.Manager) *IssueTokenController {
	return &IssueTokenController{Tokens: m}
}

func (h *IssueTokenController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		var callerID string
		if claims, ok := identity.CurrentUser(c); ok {
			callerID = claims.UserID()
		}
		if err := h.Tokens.StoreIssued(ctx, c.Param("installationId"), callerID, req.Token); err != nil {
			c.JSON(apperr.Response(err))
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type RotateTokenController struct {
	Tokens *token.Manager
}

func NewRotateTokenController(m *token.Manager) *RotateTokenController {
	return &RotateTokenController{Tokens: m}
}

type rotateRequest struct {
	OldToken string `json:"old_token"`
	NewToken string `json:"new_token" binding:"required"`
}

func (h *RotateTokenController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := identity.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		var req rotateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		if err := h.Tokens.RotateToken(ctx, c.Param("installationId"), claims.UserID(), req.OldToken, req.NewToken); err != nil {
			c.JSON(apperr.Response(err))
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// SyncTokenController binds an installation to the signed-in user.
type SyncTokenController struct {
	Tokens *token.Manager
}

func NewSyncTokenController(m *token.Manager) *SyncTokenController {
	return &SyncTokenController{Tokens: m}
}

func (h *SyncTokenController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := identity.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		synced, err := h.Tokens.SyncWithProfile(ctx, c.Param("installationId"), claims.UserID())
		if err != nil {
			c.JSON(apperr.Response(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"synced": synced})
	}
}

type RegisterTokenController struct {
	Tokens *token.Manager
}

func NewRegisterTokenController(m *token.Manager) *RegisterTokenController {
	return &RegisterTokenController{Tokens: m}
}

func (h *RegisterTokenController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := identity.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		if err := h.Tokens.RegisterToken(ctx, claims.UserID(), req.Token); err != nil {
			c.JSON(apperr.Response(err))
			return
		}
		c.Status(http.StatusNoContent)
	}
}
