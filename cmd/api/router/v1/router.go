package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-mensajeria/internal/infrastructure/identity"
	chatHTTP "go-mensajeria/internal/pkg/chat/presentation/http"
	notificationHTTP "go-mensajeria/internal/pkg/notification/presentation/http"
	profileHTTP "go-mensajeria/internal/pkg/profile/presentation/http"
)

// Pinger is a backing service checked by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Verifier     *identity.Verifier
	Chat         chatHTTP.Deps
	Profile      profileHTTP.Deps
	Notification notificationHTTP.Deps
	// BlobDir is served read-only under /blobs when set.
	BlobDir string
	Health  map[string]Pinger
	// Sessions reports open websocket sessions on this node.
	Sessions func() int
}

// RegisterRoutes mounts all version 1 API routes under /api/v1
func RegisterRoutes(r *gin.Engine, d Dependencies) {
	r.GET("/healthz", healthz(d.Health, d.Sessions))
	if d.BlobDir != "" {
		r.StaticFS("/blobs", gin.Dir(d.BlobDir, false))
	}

	v1 := r.Group("/api/v1")
	notificationHTTP.RegisterPublicRoutes(v1.Group("", identity.OptionalMiddleware(d.Verifier)), d.Notification)

	authed := v1.Group("", identity.Middleware(d.Verifier))
	chatHTTP.RegisterRoutes(authed, d.Chat)
	profileHTTP.RegisterRoutes(authed, d.Profile)
	notificationHTTP.RegisterRoutes(authed, d.Notification)
}

func healthz(deps map[string]Pinger, sessions func() int) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := make(map[string]string, len(deps))
		status := http.StatusOK
		for name, p := range deps {
			if err := p.Ping(ctx); err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		body := gin.H{"status": http.StatusText(status), "checks": checks}
		if sessions != nil {
			body["sessions"] = sessions()
		}
		c.JSON(status, body)
	}
}
