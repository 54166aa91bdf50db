package storage

import (
	"context"
	"time"

	"github.com/estrella/internal/models"
	"github.com/estrella/internal/types"
	"github.com/google/uuid"
)

// MessageRepository handles message persistence
type MessageRepository struct {
	db *PostgresDB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *PostgresDB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create persists a message
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Kind == "" {
		msg.Kind = types.MessageKindText
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (id, conversation_id, sender_id, recipient_id, content, message_type, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.RecipientID,
		msg.Content,
		string(msg.Kind),
		msg.Read,
		msg.CreatedAt,
	)
	if err != nil {
		return storeError("create message", err)
	}

	return nil
}

// ListByConversation returns a conversation's messages in chronological order.
// A non-positive limit returns all of them.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, recipient_id, content, message_type, read, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`
	args := []interface{}{conversationID}

	if limit > 0 {
		query = `
			SELECT id, conversation_id, sender_id, recipient_id, content, message_type, read, created_at
			FROM (
				SELECT id, conversation_id, sender_id, recipient_id, content, message_type, read, created_at
				FROM messages
				WHERE conversation_id = $1
				ORDER BY created_at DESC
				LIMIT $2
			) recent
			ORDER BY created_at ASC
		`
		args = append(args, limit)
	}

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, storeError("list messages", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var (
			msg  models.Message
			kind string
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.RecipientID,
			&msg.Content,
			&kind,
			&msg.Read,
			&msg.CreatedAt,
		); err != nil {
			return nil, storeError("scan message", err)
		}
		msg.Kind = types.MessageKind(kind)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list messages", err)
	}

	return messages, nil
}

// MarkRead flags every unread message addressed to recipientID in the conversation
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID, recipientID string) (int, error) {
	query := `
		UPDATE messages
		SET read = TRUE
		WHERE conversation_id = $1 AND recipient_id = $2 AND NOT read
	`

	tag, err := r.db.Pool().Exec(ctx, query, conversationID, recipientID)
	if err != nil {
		return 0, storeError("mark messages read", err)
	}

	return int(tag.RowsAffected()), nil
}
