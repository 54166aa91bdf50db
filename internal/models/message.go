package models

import (
	"time"

	"github.com/estrella/internal/types"
)

// Message is a single chat entry within a conversation
type Message struct {
	ID             string            `json:"id" db:"id"`
	ConversationID string            `json:"conversationId" db:"conversation_id"`
	SenderID       string            `json:"senderId" db:"sender_id"`
	RecipientID    string            `json:"recipientId" db:"recipient_id"`
	Content        string            `json:"content" db:"content"`
	Kind           types.MessageKind `json:"messageType" db:"message_type"`
	Read           bool              `json:"read" db:"read"`
	CreatedAt      time.Time         `json:"createdAt" db:"created_at"`
}
