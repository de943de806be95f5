package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-mensajeria/internal/apperr"
	"go-mensajeria/internal/infrastructure/identity"
	"go-mensajeria/internal/infrastructure/realtime"
	chat "go-mensajeria/internal/pkg/chat/application/domain"
	"go-mensajeria/internal/pkg/chat/application/usecase"
)

// PresenceWriter records which conversation a user has open.
type PresenceWriter interface {
	SetActive(ctx context.Context, userID, conversationID string) error
}

// ChatSocketController handles the websocket endpoint for realtime chat traffic.
type ChatSocketController struct {
	router          *realtime.Router
	sendMessageUC   *usecase.SendMessageUseCase
	subscribeUC     *usecase.SubscribeConversationUseCase
	presence        PresenceWriter
	log             zerolog.Logger
	inflightTimeout time.Duration
}

func NewChatSocketController(router *realtime.Router, send *usecase.SendMessageUseCase, subscribe *usecase.SubscribeConversationUseCase, presence PresenceWriter, log zerolog.Logger) *ChatSocketController {
	return &ChatSocketController{
		router:          router,
		sendMessageUC:   send,
		subscribeUC:     subscribe,
		presence:        presence,
		log:             log,
		inflightTimeout: 10 * time.Second,
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// bearer token is checked before the upgrade
		return true
	},
}

type inboundFrame struct {
	Type           string  `json:"type"`
	PeerID         string  `json:"peer_id,omitempty"`
	AfterSeq       int64   `json:"after_seq,omitempty"`
	Body           string  `json:"body,omitempty"`
	AttachmentRef  *string `json:"attachment_ref,omitempty"`
	ConversationID *string `json:"conversation_id,omitempty"`
}

type errorFrame struct {
	Type           string `json:"type"`
	Code           string `json:"code"`
	Error          string `json:"error"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type ackFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
}

type outboundMessage struct {
	Type           string       `json:"type"`
	ConversationID string       `json:"conversation_id"`
	Message        chat.Message `json:"message"`
}

const defaultReadTimeout = 60 * time.Second

// session is the per-socket state; it is only touched from the read goroutine.
type session struct {
	conn   *realtime.Connection
	ctx    context.Context
	active string
}

// Handle upgrades HTTP connections to websocket and processes frames until the client disconnects.
func (ctl *ChatSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := identity.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		userID := claims.UserID()

		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response; just log and return.
			ctl.log.Debug().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
			return
		}

		// streams live as long as the socket, not the upgrade request
		ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
		conn := realtime.NewConnection(userID, ws)
		s := &session{conn: conn, ctx: ctx}
		ctl.router.Attach(conn)
		defer func() {
			cancel()
			if ctl.router.Detach(conn) {
				ctl.setPresence(s, "")
			}
			conn.Close(websocket.CloseNormalClosure, "session closed")
		}()

		ws.SetReadLimit(1 << 20) // 1MB payload cap
		_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		ws.SetPongHandler(func(string) error {
			if s.active != "" {
				ctl.setPresence(s, s.active)
			}
			return ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		})

		_ = conn.SendJSON(ackFrame{Type: "connected", UserID: userID})

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
					errors.Is(err, websocket.ErrCloseSent) {
					return
				}
				ctl.log.Debug().Err(err).Str("user_id", userID).Msg("websocket read ended")
				return
			}

			var frame inboundFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				ctl.replyError(conn, "bad_request", "invalid payload", "")
				continue
			}

			switch frame.Type {
			case "subscribe":
				ctl.handleSubscribe(s, frame)
			case "unsubscribe":
				ctl.handleUnsubscribe(s, frame)
			case "message":
				ctl.handleMessage(s, frame)
			case "presence":
				ctl.handlePresence(s, frame)
			default:
				ctl.replyError(conn, "unsupported_type", "unknown frame type", "")
			}
		}
	}
}

func (ctl *ChatSocketController) handleSubscribe(s *session, frame inboundFrame) {
	if frame.PeerID == "" {
		ctl.replyError(s.conn, "bad_request", "peer_id is required", "")
		return
	}

	sub, err := ctl.subscribeUC.Execute(s.ctx, usecase.SubscribeConversationInput{
		UserID:   s.conn.UserID,
		PeerID:   frame.PeerID,
		AfterSeq: frame.AfterSeq,
	})
	if err != nil {
		ctl.handleUseCaseError(s.conn, err, "")
		return
	}
	if !ctl.router.Follow(s.conn, sub.ConversationID, sub) {
		return
	}
	ctl.setPresence(s, sub.ConversationID)

	_ = s.conn.SendJSON(ackFrame{Type: "subscribed", ConversationID: sub.ConversationID})
	go ctl.forward(s.conn, sub)
}

// forward relays a subscription to the socket until either side ends.
func (ctl *ChatSocketController) forward(conn *realtime.Connection, sub *usecase.Subscription) {
	defer ctl.router.Release(conn, sub.ConversationID, sub)
	for m := range sub.C() {
		if err := conn.SendJSON(outboundMessage{Type: "message", ConversationID: m.ConversationID, Message: m}); err != nil {
			sub.Close()
			return
		}
	}
	if err := sub.Err(); err != nil {
		ctl.replyError(conn, "subscription_lost", "resubscribe to resume", sub.ConversationID)
	}
}

func (ctl *ChatSocketController) handleUnsubscribe(s *session, frame inboundFrame) {
	if frame.PeerID == "" {
		ctl.replyError(s.conn, "bad_request", "peer_id is required", "")
		return
	}
	convID := chat.ConversationID(s.conn.UserID, frame.PeerID)
	ctl.router.Unfollow(s.conn, convID)
	if s.active == convID {
		ctl.setPresence(s, "")
	}
	_ = s.conn.SendJSON(ackFrame{Type: "unsubscribed", ConversationID: convID})
}

func (ctl *ChatSocketController) handleMessage(s *session, frame inboundFrame) {
	ctx, cancel := context.WithTimeout(s.ctx, ctl.inflightTimeout)
	defer cancel()

	msg, err := ctl.sendMessageUC.Execute(ctx, usecase.SendMessageInput{
		SenderID:      s.conn.UserID,
		ReceiverID:    frame.PeerID,
		Body:          frame.Body,
		AttachmentRef: frame.AttachmentRef,
	})
	if err != nil {
		ctl.handleUseCaseError(s.conn, err, "")
		return
	}

	// a followed conversation echoes the message through its stream
	for _, id := range ctl.router.Following(s.conn) {
		if id == msg.ConversationID {
			return
		}
	}
	_ = s.conn.SendJSON(outboundMessage{Type: "message", ConversationID: msg.ConversationID, Message: *msg})
}

func (ctl *ChatSocketController) handlePresence(s *session, frame inboundFrame) {
	conv := ""
	if frame.ConversationID != nil {
		conv = *frame.ConversationID
	}
	ctl.setPresence(s, conv)
}

func (ctl *ChatSocketController) setPresence(s *session, conversationID string) {
	s.active = conversationID
	if ctl.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 2*time.Second)
	defer cancel()
	if err := ctl.presence.SetActive(ctx, s.conn.UserID, conversationID); err != nil {
		ctl.log.Warn().Err(err).Str("user_id", s.conn.UserID).Msg("presence update failed")
	}
}

func (ctl *ChatSocketController) handleUseCaseError(conn *realtime.Connection, err error, conversationID string) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		ctl.replyError(conn, "bad_request", err.Error(), conversationID)
	case apperr.KindNotFound:
		ctl.replyError(conn, "not_found", err.Error(), conversationID)
	case apperr.KindPermission:
		ctl.replyError(conn, "forbidden", err.Error(), conversationID)
	case apperr.KindTransient:
		ctl.replyError(conn, "unavailable", "temporarily unavailable, retry", conversationID)
	default:
		ctl.log.Error().Err(err).Str("user_id", conn.UserID).Msg("websocket frame failed")
		ctl.replyError(conn, "internal_error", "unexpected error", conversationID)
	}
}

func (ctl *ChatSocketController) replyError(conn *realtime.Connection, code string, message string, conversationID string) {
	_ = conn.SendJSON(errorFrame{
		Type:           "error",
		Code:           code,
		Error:          message,
		ConversationID: conversationID,
	})
}
