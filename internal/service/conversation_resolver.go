package service

import (
	"context"
	"errors"

	apperrors "github.com/estrella/internal/errors"
	"github.com/estrella/internal/logging"
	"github.com/estrella/internal/models"
	"github.com/estrella/internal/retry"
)

// ConversationResolver maps an unordered pair of users to their single conversation
type ConversationResolver struct {
	repo  ConversationRepository
	retry *retry.Policy
}

// NewConversationResolver creates a new conversation resolver
func NewConversationResolver(repo ConversationRepository) *ConversationResolver {
	return &ConversationResolver{
		repo: repo,
		retry: retry.ConflictPolicy(func(err error) bool {
			return apperrors.HasCode(err, apperrors.CodeConversationConflict)
		}),
	}
}

// canonicalPair orders two identifiers lexicographically
func canonicalPair(userA, userB string) (string, string) {
	if userB < userA {
		return userB, userA
	}
	return userA, userB
}

// Resolve returns the identifier of the conversation shared by userA and userB,
// creating it on first use. Argument order does not matter.
func (r *ConversationResolver) Resolve(ctx context.Context, userA, userB string) (string, error) {
	conv, err := r.ResolveConversation(ctx, userA, userB)
	if err != nil {
		return "", err
	}
	return conv.ID, nil
}

// ResolveConversation is Resolve returning the full record.
// A concurrent creator winning the member-pair index makes the loser re-read and
// return the winner's row.
func (r *ConversationResolver) ResolveConversation(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	if err := validateID("userA", userA); err != nil {
		return nil, err
	}
	if err := validateID("userB", userB); err != nil {
		return nil, err
	}
	if userA == userB {
		return nil, apperrors.NewInvalidArgumentError("userB", "a conversation needs two distinct users")
	}

	first, second := canonicalPair(userA, userB)

	var conv *models.Conversation
	err := r.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		existing, err := r.repo.FindByPair(ctx, first, second)
		if err != nil {
			return err
		}
		if existing != nil {
			conv = existing
			return nil
		}

		candidate := &models.Conversation{User1ID: first, User2ID: second}
		if err := r.repo.Create(ctx, candidate); err != nil {
			if apperrors.HasCode(err, apperrors.CodeConversationConflict) {
				logging.FromContext(ctx).WithFields(map[string]interface{}{
					"user1":   first,
					"user2":   second,
					"attempt": attempt,
				}).Debug("Lost conversation creation race, re-reading")
			}
			return err
		}
		conv = candidate
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewStoreUnavailableError("resolve conversation", err)
		}
		if apperrors.HasCode(err, apperrors.CodeConversationConflict) {
			return nil, apperrors.NewInternalError("conversation could not be resolved", err)
		}
		return nil, err
	}

	return conv, nil
}
