package usecase

import (
	"strings"

	chat "go-mensajeria/internal/pkg/chat/application/domain"
)

const (
	ImageAlertBody   = "Te envió una imagen"
	GenericAlertBody = "Tienes un nuevo mensaje"
)

// TapTarget is where the device navigates when the alert is opened.
type TapTarget struct {
	ConversationID string `json:"conversation_id"`
	PeerName       string `json:"peer_name"`
}

// Alert is the user-visible notification for one message.
type Alert struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	TapTarget TapTarget `json:"tap_target"`
}

// BuildAlert renders the alert the receiver of m sees. An attachment wins over text.
func BuildAlert(m chat.Message, senderName string) Alert {
	body := GenericAlertBody
	switch {
	case m.HasAttachment():
		body = ImageAlertBody
	case strings.TrimSpace(m.Body) != "":
		body = strings.TrimSpace(m.Body)
	}
	return Alert{
		Title: senderName,
		Body:  body,
		TapTarget: TapTarget{
			ConversationID: m.ConversationID,
			PeerName:       senderName,
		},
	}
}
