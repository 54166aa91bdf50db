package service

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/estrella/internal/errors"
	"github.com/estrella/internal/logging"
	"github.com/estrella/internal/models"
	"github.com/estrella/internal/types"
)

// Message listing bounds
const (
	DefaultMessagePageSize = 100
	MaxMessagePageSize     = 500
)

// beerInviteFormat is the system message left in the conversation by a beer invitation
const beerInviteFormat = "🍺 %s invited you to a beer! 🍺"

// MessagingServiceConfig wires the messaging service
type MessagingServiceConfig struct {
	Users         UserRepository
	Conversations ConversationRepository
	Messages      MessageRepository
	Beers         BeerRepository
	Ledger        *QuotaLedger
	BeerBonus     int
	// Activity is optional
	Activity ActivityRecorder
}

// MessagingService orchestrates message sends, beer invitations and inbox reads
type MessagingService struct {
	users         UserRepository
	conversations ConversationRepository
	messages      MessageRepository
	beers         BeerRepository
	resolver      *ConversationResolver
	ledger        *QuotaLedger
	beerBonus     int
	activity      ActivityRecorder
}

// NewMessagingService creates a new messaging service
func NewMessagingService(cfg *MessagingServiceConfig) *MessagingService {
	return &MessagingService{
		users:         cfg.Users,
		conversations: cfg.Conversations,
		messages:      cfg.Messages,
		beers:         cfg.Beers,
		resolver:      NewConversationResolver(cfg.Conversations),
		ledger:        cfg.Ledger,
		beerBonus:     cfg.BeerBonus,
		activity:      cfg.Activity,
	}
}

// SendMessageInput represents input for sending a message
type SendMessageInput struct {
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
}

// BeerResult is the outcome of a beer invitation
type BeerResult struct {
	Beer    *models.Beer        `json:"beer"`
	Message *models.Message     `json:"message"`
	Quota   *models.QuotaStatus `json:"quota"`
}

// SendMessage stores a chat message from sender to recipient, charging one message
// against the sender's allowance for today.
//
// The slot is taken atomically before the message is written and given back if the
// write fails, so the stored count never exceeds the allowance and never includes a
// message that does not exist.
func (s *MessagingService) SendMessage(ctx context.Context, input *SendMessageInput) (*models.Message, error) {
	if input.SenderID == input.RecipientID {
		return nil, apperrors.NewSelfMessageError()
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, apperrors.NewEmptyContentError()
	}

	sender, recipient, err := s.loadPair(ctx, input.SenderID, input.RecipientID)
	if err != nil {
		return nil, err
	}

	conv, err := s.resolver.ResolveConversation(ctx, sender.ID, recipient.ID)
	if err != nil {
		return nil, err
	}

	day := s.ledger.Today()
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"sender":       sender.ID,
		"conversation": conv.ID,
		"day":          day.String(),
	})

	status, err := s.ledger.GetStatus(ctx, sender.ID, sender.Level, day)
	if err != nil {
		return nil, err
	}
	if !status.CanSend {
		s.recordRejected(sender.ID, day, conv.ID)
		return nil, quotaExceeded(status)
	}

	if _, err := s.ledger.RecordSend(ctx, sender.ID, sender.Level, day); err != nil {
		if apperrors.HasCode(err, apperrors.CodeQuotaExceeded) {
			s.recordRejected(sender.ID, day, conv.ID)
		}
		return nil, err
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		RecipientID:    recipient.ID,
		Content:        content,
		Kind:           types.MessageKindText,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		if releaseErr := s.ledger.ReleaseSend(ctx, sender.ID, day); releaseErr != nil {
			logger.WithError(releaseErr).Error("Failed to release quota slot after message write failure")
		}
		return nil, err
	}

	// The message is stored and charged. A stale last-activity time only affects
	// conversation ordering, so it does not fail the send.
	if err := s.conversations.Touch(ctx, conv.ID, msg.CreatedAt); err != nil {
		logger.WithError(err).Warn("Failed to update conversation activity")
	}

	recordActivity(s.activity, models.ActivityEvent{
		UserID:     sender.ID,
		Day:        day,
		Kind:       models.ActivityMessageSent,
		Amount:     1,
		RelatedID:  msg.ID,
		OccurredAt: msg.CreatedAt,
	})

	return msg, nil
}

// SendBeer records a beer invitation, leaves a beer_invite message in the pair's
// conversation and grants the sender the beer bonus for today. The recipient's
// quota is not touched.
//
// If the invitation message cannot be stored the beer is removed and no bonus is
// granted. If the grant itself fails the invitation stands and the error is returned.
func (s *MessagingService) SendBeer(ctx context.Context, senderID, recipientID string) (*BeerResult, error) {
	if senderID == recipientID {
		return nil, apperrors.NewSelfMessageError()
	}

	sender, recipient, err := s.loadPair(ctx, senderID, recipientID)
	if err != nil {
		return nil, err
	}

	conv, err := s.resolver.ResolveConversation(ctx, sender.ID, recipient.ID)
	if err != nil {
		return nil, err
	}

	day := s.ledger.Today()
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"sender":    sender.ID,
		"recipient": recipient.ID,
		"day":       day.String(),
	})

	beer := &models.Beer{SenderID: sender.ID, RecipientID: recipient.ID}
	if err := s.beers.Create(ctx, beer); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		RecipientID:    recipient.ID,
		Content:        fmt.Sprintf(beerInviteFormat, sender.Name),
		Kind:           types.MessageKindBeerInvite,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		if deleteErr := s.beers.Delete(ctx, beer.ID); deleteErr != nil {
			logger.WithError(deleteErr).Error("Failed to remove beer after invitation message failure")
		}
		return nil, err
	}

	if err := s.conversations.Touch(ctx, conv.ID, msg.CreatedAt); err != nil {
		logger.WithError(err).Warn("Failed to update conversation activity")
	}

	quota, err := s.ledger.grantBonus(ctx, sender.ID, day, s.beerBonus)
	if err != nil {
		logger.WithError(err).WithField("beer", beer.ID).Error("Beer recorded but bonus grant failed")
		return nil, err
	}

	recordActivity(s.activity, models.ActivityEvent{
		UserID:     sender.ID,
		Day:        day,
		Kind:       models.ActivityBeerSent,
		Amount:     s.beerBonus,
		RelatedID:  beer.ID,
		OccurredAt: beer.CreatedAt,
	})

	return &BeerResult{
		Beer:    beer,
		Message: msg,
		Quota:   s.ledger.statusOf(quota, sender.Level),
	}, nil
}

// ResolveConversation returns the conversation between userID and otherUserID,
// creating it if needed
func (s *MessagingService) ResolveConversation(ctx context.Context, userID, otherUserID string) (*models.Conversation, error) {
	if userID == otherUserID {
		return nil, apperrors.NewInvalidArgumentError("userId", "a conversation needs two distinct users")
	}
	if _, _, err := s.loadPair(ctx, userID, otherUserID); err != nil {
		return nil, err
	}
	return s.resolver.ResolveConversation(ctx, userID, otherUserID)
}

// ListConversations returns the user's inbox, most recent activity first
func (s *MessagingService) ListConversations(ctx context.Context, userID string) ([]*models.ConversationSummary, error) {
	if err := validateID("userId", userID); err != nil {
		return nil, err
	}
	summaries, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []*models.ConversationSummary{}
	}
	return summaries, nil
}

// ListMessages returns a conversation's messages in chronological order.
// Only members may read a conversation.
func (s *MessagingService) ListMessages(ctx context.Context, conversationID, userID string, limit int) ([]*models.Message, error) {
	if _, err := s.memberConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = DefaultMessagePageSize
	case limit > MaxMessagePageSize:
		limit = MaxMessagePageSize
	}

	messages, err := s.messages.ListByConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	return messages, nil
}

// MarkRead marks every unread message addressed to userID in the conversation as read
// and returns how many changed
func (s *MessagingService) MarkRead(ctx context.Context, conversationID, userID string) (int, error) {
	if _, err := s.memberConversation(ctx, conversationID, userID); err != nil {
		return 0, err
	}
	return s.messages.MarkRead(ctx, conversationID, userID)
}

// ListBeers returns the beers userID has received, newest first
func (s *MessagingService) ListBeers(ctx context.Context, userID string) ([]*models.Beer, error) {
	if err := validateID("userId", userID); err != nil {
		return nil, err
	}
	beers, err := s.beers.ListReceived(ctx, userID)
	if err != nil {
		return nil, err
	}
	if beers == nil {
		beers = []*models.Beer{}
	}
	return beers, nil
}

// loadPair validates and loads both participants
func (s *MessagingService) loadPair(ctx context.Context, senderID, recipientID string) (*models.User, *models.User, error) {
	if err := validateID("senderId", senderID); err != nil {
		return nil, nil, err
	}
	if err := validateID("recipientId", recipientID); err != nil {
		return nil, nil, err
	}
	if senderID == recipientID {
		return nil, nil, apperrors.NewSelfMessageError()
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, nil, err
	}
	recipient, err := s.users.GetByID(ctx, recipientID)
	if err != nil {
		return nil, nil, err
	}

	return sender, recipient, nil
}

func (s *MessagingService) memberConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	if err := validateID("conversationId", conversationID); err != nil {
		return nil, err
	}
	if err := validateID("userId", userID); err != nil {
		return nil, err
	}

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(userID) {
		return nil, apperrors.NewForbiddenError("not a member of this conversation")
	}
	return conv, nil
}

func (s *MessagingService) recordRejected(userID string, day types.Day, conversationID string) {
	recordActivity(s.activity, models.ActivityEvent{
		UserID:     userID,
		Day:        day,
		Kind:       models.ActivitySendRejected,
		Amount:     1,
		RelatedID:  conversationID,
		OccurredAt: s.ledger.clock.Now().UTC(),
	})
}
