package http

import (
	"github.com/gin-gonic/gin"

	"go-mensajeria/internal/pkg/notification/application/presence"
	"go-mensajeria/internal/pkg/notification/application/token"
	"go-mensajeria/internal/pkg/notification/presentation/controller"
)

type Deps struct {
	Tokens   *token.Manager
	Presence *presence.Tracker
}

// RegisterPublicRoutes registers endpoints reachable without a session. g should carry
// identity.OptionalMiddleware so signed-in callers are recognised.
func RegisterPublicRoutes(g *gin.RouterGroup, d Deps) {
	g.POST("/devices/:installationId/token", controller.NewIssueTokenController(d.Tokens).Handle())
}

// RegisterRoutes registers device and presence endpoints under the authenticated group.
func RegisterRoutes(g *gin.RouterGroup, d Deps) {
	g.POST("/devices/:installationId/rotate", controller.NewRotateTokenController(d.Tokens).Handle())
	g.POST("/devices/:installationId/sync", controller.NewSyncTokenController(d.Tokens).Handle())
	g.POST("/me/tokens", controller.NewRegisterTokenController(d.Tokens).Handle())
	g.PUT("/presence", controller.NewPresenceController(d.Presence).Handle())
}
