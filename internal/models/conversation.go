package models

import "time"

// Conversation is the single record shared by an unordered pair of users.
// New rows store the members in canonical order (User1ID < User2ID).
type Conversation struct {
	ID             string    `json:"id" db:"id"`
	User1ID        string    `json:"user1Id" db:"user1_id"`
	User2ID        string    `json:"user2Id" db:"user2_id"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	LastActivityAt time.Time `json:"lastActivityAt" db:"last_activity_at"`
}

// HasMember reports whether userID belongs to the conversation
func (c *Conversation) HasMember(userID string) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// OtherMember returns the member that is not userID
func (c *Conversation) OtherMember(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// ConversationSummary is a row of a user's inbox
type ConversationSummary struct {
	Conversation
	OtherUser   *User    `json:"otherUser,omitempty"`
	LastMessage *Message `json:"lastMessage,omitempty"`
	UnreadCount int      `json:"unreadCount"`
}
