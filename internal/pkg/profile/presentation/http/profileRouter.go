package http

import (
	"github.com/gin-gonic/gin"

	"go-mensajeria/internal/pkg/profile/application/usecase"
	"go-mensajeria/internal/pkg/profile/presentation/controller"
)

type Deps struct {
	Ensure *usecase.EnsureProfileUseCase
	Get    *usecase.GetProfileUseCase
	List   *usecase.ListProfilesUseCase
	Update *usecase.UpdateProfileUseCase
}

// RegisterRoutes registers profile endpoints under the given (authenticated) router group.
func RegisterRoutes(g *gin.RouterGroup, d Deps) {
	// POST /api/v1/me -> session start: ensure profile from identity claims
	g.POST("/me", controller.NewEnsureProfileController(d.Ensure).Handle())
	g.GET("/me", controller.NewGetMeController(d.Get).Handle())
	g.PATCH("/me", controller.NewUpdateMeController(d.Update).Handle())

	// GET /api/v1/profiles -> contacts list
	g.GET("/profiles", controller.NewListProfilesController(d.List).Handle())
	g.GET("/profiles/:id", controller.NewGetProfileController(d.Get).Handle())
}
