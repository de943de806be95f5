package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	chat "go-mensajeria/internal/pkg/chat/application/domain"
	repository "go-mensajeria/internal/pkg/chat/persistence/repository/port"
)

type PgChatRepository struct {
	pool *pgxpool.Pool
}

func NewPgChatRepository(pool *pgxpool.Pool) *PgChatRepository {
	return &PgChatRepository{pool: pool}
}

var _ repository.ChatRepository = (*PgChatRepository)(nil)

const messagesPkey = "conversation_messages_pkey"

// Append bumps the conversation row (taking its row lock) to obtain the next seq and a
// non-decreasing created_at, then inserts the message in the same transaction.
// A message whose ID is already stored is returned as stored.
func (r *PgChatRepository) Append(ctx context.Context, conversationID string, m chat.Message) (chat.Message, error) {
	if r == nil || r.pool == nil {
		return chat.Message{}, errors.New("PgChatRepository: nil pool")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.ConversationID = conversationID

	var existing *chat.Message
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		prev, err := r.byID(ctx, tx, m.ID)
		if err != nil {
			return err
		}
		if prev != nil {
			existing = prev
			return nil
		}

		var createdAt time.Time
		if err := tx.QueryRow(ctx, `
			INSERT INTO conversations (id, last_seq, last_created_at)
			VALUES ($1, 1, clock_timestamp())
			ON CONFLICT (id) DO UPDATE
			SET last_seq = conversations.last_seq + 1,
			    last_created_at = GREATEST(conversations.last_created_at, clock_timestamp())
			RETURNING last_seq, last_created_at
		`, conversationID).Scan(&m.Seq, &createdAt); err != nil {
			return err
		}
		m.CreatedAt = createdAt.UTC()

		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_messages (
				id, conversation_id, seq, sender_id, receiver_id, body, attachment_ref, created_at
			) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)
		`, m.ID, m.ConversationID, m.Seq, m.SenderID, m.ReceiverID, m.Body, m.AttachmentRef, m.CreatedAt)
		return err
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == messagesPkey {
		// a concurrent attempt with the same ID committed first
		prev, lerr := r.byID(ctx, r.pool, m.ID)
		if lerr != nil {
			return chat.Message{}, lerr
		}
		if prev != nil {
			return *prev, nil
		}
	}
	if err != nil {
		return chat.Message{}, err
	}
	if existing != nil {
		return *existing, nil
	}
	return m, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PgChatRepository) byID(ctx context.Context, q querier, id string) (*chat.Message, error) {
	var msg chat.Message
	err := q.QueryRow(ctx, `
		SELECT id::text, conversation_id, seq, sender_id, receiver_id, body, attachment_ref, created_at
		FROM conversation_messages
		WHERE id = $1::uuid
	`, id).Scan(&msg.ID, &msg.ConversationID, &msg.Seq, &msg.SenderID, &msg.ReceiverID,
		&msg.Body, &msg.AttachmentRef, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return &msg, nil
}

func (r *PgChatRepository) History(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, conversation_id, seq, sender_id, receiver_id, body, attachment_ref, created_at
		FROM conversation_messages
		WHERE conversation_id = $1 AND seq > $2
		ORDER BY created_at ASC, seq ASC
		LIMIT $3
	`, conversationID, afterSeq, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var msg chat.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Seq, &msg.SenderID, &msg.ReceiverID,
			&msg.Body, &msg.AttachmentRef, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		msgs = append(msgs, msg)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return msgs, nil
}
