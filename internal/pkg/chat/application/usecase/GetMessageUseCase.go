package usecase

import (
	"context"
	"strings"

	"go-mensajeria/internal/apperr"
	chat "go-mensajeria/internal/pkg/chat/application/domain"
	repository "go-mensajeria/internal/pkg/chat/persistence/repository/port"
)

const MaxHistoryPage = 500

type GetMessageInput struct {
	UserID   string
	PeerID   string
	AfterSeq int64
	Limit    int
}

type GetMessageUseCase struct {
	Repo repository.ChatRepository
}

func NewGetMessageUseCase(repo repository.ChatRepository) *GetMessageUseCase {
	return &GetMessageUseCase{Repo: repo}
}

// Execute returns the caller's conversation with PeerID ordered by (created_at, seq).
func (uc *GetMessageUseCase) Execute(ctx context.Context, in GetMessageInput) ([]chat.Message, error) {
	const op = "chat.History"

	userID, peerID := strings.TrimSpace(in.UserID), strings.TrimSpace(in.PeerID)
	if userID == "" || peerID == "" {
		return nil, apperr.New(apperr.KindValidation, op, chat.ErrMissingParticipant)
	}
	if in.AfterSeq < 0 {
		return nil, apperr.Validation(op, "after_seq must be >= 0")
	}
	limit := in.Limit
	if limit <= 0 || limit > MaxHistoryPage {
		limit = MaxHistoryPage
	}

	msgs, err := uc.Repo.History(ctx, chat.ConversationID(userID, peerID), in.AfterSeq, limit)
	if err != nil {
		return nil, persistenceErr(op, err)
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return msgs, nil
}
