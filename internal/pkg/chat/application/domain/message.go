package chat

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrMissingParticipant  = errors.New("chat: sender_id and receiver_id are required")
	ErrEmptyMessage        = errors.New("chat: empty message (no body or attachment)")
	ErrInvalidConversation = errors.New("chat: conversation id does not match sender/receiver")
)

// Message is an immutable entry of a conversation log.
// Seq and CreatedAt are assigned by the store on append; (CreatedAt, Seq) is the total order.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Seq            int64     `db:"seq" json:"seq"`
	SenderID       string    `db:"sender_id" json:"sender_id"`
	ReceiverID     string    `db:"receiver_id" json:"receiver_id"`
	Body           string    `db:"body" json:"body"`
	AttachmentRef  *string   `db:"attachment_ref" json:"attachment_ref,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// HasAttachment reports whether the message carries a non-blank attachment reference.
func (m Message) HasAttachment() bool {
	return m.AttachmentRef != nil && strings.TrimSpace(*m.AttachmentRef) != ""
}

// NewMessage validates a draft and normalizes it: body trimmed, blank attachment dropped,
// conversation id derived from the participants. Store-owned fields are cleared.
func NewMessage(senderID, receiverID, body string, attachmentRef *string) (Message, error) {
	senderID = strings.TrimSpace(senderID)
	receiverID = strings.TrimSpace(receiverID)
	if senderID == "" || receiverID == "" {
		return Message{}, ErrMissingParticipant
	}

	m := Message{
		ConversationID: ConversationID(senderID, receiverID),
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Body:           strings.TrimSpace(body),
	}
	if attachmentRef != nil {
		if ref := strings.TrimSpace(*attachmentRef); ref != "" {
			m.AttachmentRef = &ref
		}
	}
	if m.Body == "" && m.AttachmentRef == nil {
		return Message{}, ErrEmptyMessage
	}
	return m, nil
}

// Validate checks that m belongs to conversationID.
func (m Message) Validate(conversationID string) error {
	if m.SenderID == "" || m.ReceiverID == "" {
		return ErrMissingParticipant
	}
	if conversationID == "" || ConversationID(m.SenderID, m.ReceiverID) != conversationID {
		return ErrInvalidConversation
	}
	if m.Body == "" && !m.HasAttachment() {
		return ErrEmptyMessage
	}
	return nil
}

// NextCreatedAt returns the timestamp for the next append: now, but never before last.
func NextCreatedAt(last, now time.Time) time.Time {
	now = now.UTC()
	if now.Before(last) {
		return last.UTC()
	}
	return now
}
