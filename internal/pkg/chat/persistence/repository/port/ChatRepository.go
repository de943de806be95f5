package repository

import (
	"context"

	chat "go-mensajeria/internal/pkg/chat/application/domain"
)

// ChatRepository is the durable, per-conversation ordered message log.
type ChatRepository interface {
	// Append assigns Seq and CreatedAt (and ID when empty), persists m and returns the
	// stored record. Seq is contiguous per conversation and CreatedAt never decreases.
	// Appending an ID that is already stored returns the stored record unchanged.
	Append(ctx context.Context, conversationID string, m chat.Message) (chat.Message, error)

	// History returns messages with Seq > afterSeq ordered by (CreatedAt, Seq).
	// limit <= 0 returns everything.
	History(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]chat.Message, error)
}
