package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	blobport "go-mensajeria/internal/infrastructure/blob/port"
	"go-mensajeria/internal/infrastructure/realtime"
	"go-mensajeria/internal/pkg/chat/application/usecase"
	"go-mensajeria/internal/pkg/chat/presentation/controller"
)

// Deps carries what the chat endpoints need.
type Deps struct {
	Send      *usecase.SendMessageUseCase
	History   *usecase.GetMessageUseCase
	Subscribe *usecase.SubscribeConversationUseCase
	Blobs     blobport.Store
	Realtime  *realtime.Router
	Presence  controller.PresenceWriter
	Log       zerolog.Logger
}

// RegisterRoutes registers chat-related HTTP endpoints under the given (authenticated) router group
// It constructs per-endpoint controllers and binds them directly to routes.
func RegisterRoutes(g *gin.RouterGroup, d Deps) {
	sendMsgCtl := controller.NewSendMessageController(d.Send)
	getMsgCtl := controller.NewGetMessageController(d.History)
	uploadCtl := controller.NewUploadAttachmentController(d.Blobs)
	socketCtl := controller.NewChatSocketController(d.Realtime, d.Send, d.Subscribe, d.Presence, d.Log)

	// POST /api/v1/conversations/:peerId/messages -> append a message to the pair conversation
	g.POST("/conversations/:peerId/messages", sendMsgCtl.Handle())

	// GET /api/v1/conversations/:peerId/messages -> ordered history, paged by after_seq
	g.GET("/conversations/:peerId/messages", getMsgCtl.Handle())

	// POST /api/v1/conversations/:peerId/attachments -> upload an image, returns its url
	g.POST("/conversations/:peerId/attachments", uploadCtl.Handle())

	// GET /api/v1/ws -> websocket endpoint for realtime chat
	g.GET("/ws", socketCtl.Handle())
}
