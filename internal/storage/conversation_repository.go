package storage

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/estrella/internal/errors"
	"github.com/estrella/internal/models"
	"github.com/estrella/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ConversationRepository handles conversation persistence
type ConversationRepository struct {
	db *PostgresDB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *PostgresDB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// FindByPair looks up the conversation for {userA, userB} in either stored order
func (r *ConversationRepository) FindByPair(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	query := `
		SELECT id, user1_id, user2_id, created_at, last_activity_at
		FROM conversations
		WHERE (user1_id = $1 AND user2_id = $2)
		   OR (user1_id = $2 AND user2_id = $1)
		ORDER BY created_at ASC
		LIMIT 1
	`

	conv, err := scanConversation(r.db.Pool().QueryRow(ctx, query, userA, userB))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storeError("find conversation", err)
	}

	return conv, nil
}

// Create inserts a conversation. Losing the race on the member-pair index yields
// CONVERSATION_CONFLICT.
func (r *ConversationRepository) Create(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.LastActivityAt = now

	query := `
		INSERT INTO conversations (id, user1_id, user2_id, created_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool().Exec(ctx, query, conv.ID, conv.User1ID, conv.User2ID, conv.CreatedAt, conv.LastActivityAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConversationConflictError(err)
		}
		return storeError("create conversation", err)
	}

	return nil
}

// GetByID retrieves a conversation by ID
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	query := `
		SELECT id, user1_id, user2_id, created_at, last_activity_at
		FROM conversations
		WHERE id = $1
	`

	conv, err := scanConversation(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("conversation", id)
		}
		return nil, storeError("get conversation", err)
	}

	return conv, nil
}

// Touch moves the conversation's last activity forward
func (r *ConversationRepository) Touch(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE conversations
		SET last_activity_at = GREATEST(last_activity_at, $2)
		WHERE id = $1
	`

	if _, err := r.db.Pool().Exec(ctx, query, id, at); err != nil {
		return storeError("touch conversation", err)
	}
	return nil
}

// ListForUser returns the user's conversations, most recent activity first, with the
// other member, the last message and the number of unread messages addressed to the user
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]*models.ConversationSummary, error) {
	query := `
		SELECT c.id, c.user1_id, c.user2_id, c.created_at, c.last_activity_at,
			u.id, u.name, u.age, u.gender, u.profile_photo_url, u.stars, u.level,
			lm.id, lm.sender_id, lm.recipient_id, lm.content, lm.message_type, lm.read, lm.created_at,
			(SELECT COUNT(*) FROM messages um
			 WHERE um.conversation_id = c.id AND um.recipient_id = $1 AND NOT um.read) AS unread
		FROM conversations c
		JOIN users u ON u.id = CASE WHEN c.user1_id = $1 THEN c.user2_id ELSE c.user1_id END
		LEFT JOIN LATERAL (
			SELECT m.id, m.sender_id, m.recipient_id, m.content, m.message_type, m.read, m.created_at
			FROM messages m
			WHERE m.conversation_id = c.id
			ORDER BY m.created_at DESC
			LIMIT 1
		) lm ON TRUE
		WHERE c.user1_id = $1 OR c.user2_id = $1
		ORDER BY c.last_activity_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, storeError("list conversations", err)
	}
	defer rows.Close()

	var summaries []*models.ConversationSummary
	for rows.Next() {
		var (
			s     models.ConversationSummary
			other models.User
			level string

			msgID, msgSender, msgRecipient, msgContent, msgKind *string
			msgRead                                             *bool
			msgCreatedAt                                        *time.Time
			unread                                              int64
		)

		err := rows.Scan(
			&s.ID, &s.User1ID, &s.User2ID, &s.CreatedAt, &s.LastActivityAt,
			&other.ID, &other.Name, &other.Age, &other.Gender, &other.PhotoURL, &other.Stars, &level,
			&msgID, &msgSender, &msgRecipient, &msgContent, &msgKind, &msgRead, &msgCreatedAt,
			&unread,
		)
		if err != nil {
			return nil, storeError("scan conversation", err)
		}

		if parsed, err := types.ParseLevel(level); err == nil {
			other.Level = parsed
		}
		s.OtherUser = &other
		s.UnreadCount = int(unread)

		if msgID != nil {
			s.LastMessage = &models.Message{
				ID:             *msgID,
				ConversationID: s.ID,
				SenderID:       *msgSender,
				RecipientID:    *msgRecipient,
				Content:        *msgContent,
				Kind:           types.MessageKind(*msgKind),
				Read:           *msgRead,
				CreatedAt:      *msgCreatedAt,
			}
		}

		summaries = append(summaries, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list conversations", err)
	}

	return summaries, nil
}

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var conv models.Conversation
	if err := row.Scan(&conv.ID, &conv.User1ID, &conv.User2ID, &conv.CreatedAt, &conv.LastActivityAt); err != nil {
		return nil, err
	}
	return &conv, nil
}
