package controller

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"go-mensajeria/internal/apperr"
	"go-mensajeria/internal/infrastructure/identity"
	profile "go-mensajeria/internal/pkg/profile/application/domain"
	"go-mensajeria/internal/pkg/profile/application/usecase"
)

const requestTimeout = 5 * time.Second

// publicProfile is what other users may see.
type publicProfile struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	PhotoRef    *string    `json:"photo_ref,omitempty"`
	About       string     `json:"about"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
}

func toPublic(p profile.Profile) publicProfile {
	return publicProfile{ID: p.ID, DisplayName: p.Name(), PhotoRef: p.PhotoRef, About: p.About, LastSeen: p.LastSeen}
}

func currentUser(c *gin.Context) (*identity.Claims, bool) {
	claims, ok := identity.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	}
	return claims, ok
}

// EnsureProfileController starts a session: creates or merges the caller's profile and
// refreshes last_seen.
type EnsureProfileController struct {
	UC *usecase.EnsureProfileUseCase
}

func NewEnsureProfileController(uc *usecase.EnsureProfileUseCase) *EnsureProfileController {
	return &EnsureProfileController{UC: uc}
}

func (h *EnsureProfileController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}
		// covers the retry schedule
		ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
		defer cancel()
		p, err := h.UC.Execute(ctx, claims.Identity())
		if err != nil {
			c.JSON(apperr.Response(err))
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

type GetMeController struct {
	UC *usecase.GetProfileUseCase
}

func NewGetMeController(uc *usecase.GetProfileUseCase) *GetMeController {
	return &GetMeController{UC: uc}
}

func (h *GetMeController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		p, err := h.UC.Execute(ctx, claims.UserID())
		if err != nil {
			c.JSON(apperr.Response(err))
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

type UpdateMeController struct {
	UC *usecase.UpdateProfileUseCase
}

func NewUpdateMeController(uc *usecase.UpdateProfileUseCase) *UpdateMeController {
	return &UpdateMeController{UC: uc}
}

type updateMeRequest struct {
	DisplayName *string `json:"display_name"`
	About       *string `json:"about"`
}

func (h *UpdateMeController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}
		var req updateMeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		p, err := h.UC.Execute(ctx, claims.UserID(), profile.Patch{DisplayName: req.DisplayName, About: req.About})
		if err != nil {
			c.JSON(apperr.Response(err))
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

type GetProfileController struct {
	UC *usecase.GetProfileUseCase
}

func NewGetProfileController(uc *usecase.GetProfileUseCase) *GetProfileController {
	return &GetProfileController{UC: uc}
}

func (h *GetProfileController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := currentUser(c); !ok {
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		p, err := h.UC.Execute(ctx, c.Param("id"))
		if err != nil {
			c.JSON(apperr.Response(err))
			return
		}
		c.JSON(http.StatusOK, toPublic(p))
	}
}

type ListProfilesController struct {
	UC *usecase.ListProfilesUseCase
}

func NewListProfilesController(uc *usecase.ListProfilesUseCase) *ListProfilesController {
	return &ListProfilesController{UC: uc}
}

func (h *ListProfilesController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}
		limit := 0
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		ps, err := h.UC.Execute(ctx, claims.UserID(), limit)
		if err != nil {
			c.JSON(apperr.Response(err))
			return
		}
		out := make([]publicProfile, 0, len(ps))
		for _, p := range ps {
			out = append(out, toPublic(p))
		}
		c.JSON(http.StatusOK, gin.H{"profiles": out, "count": len(out)})
	}
}
