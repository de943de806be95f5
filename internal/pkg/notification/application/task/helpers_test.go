package task

import (
	"context"

	qport "go-mensajeria/internal/infrastructure/queue/port"
	chat "go-mensajeria/internal/pkg/chat/application/domain"
)

type handlerCapture func(qport.Handler)

func (h handlerCapture) Register(_ string, fn qport.Handler) { h(fn) }
func (h handlerCapture) Run(ctx context.Context) error       { <-ctx.Done(); return nil }

func chatMessage(id string) chat.Message {
	return chat.Message{ID: id, ConversationID: "a_b", Seq: 1, SenderID: "a", ReceiverID: "b", Body: "hi"}
}
