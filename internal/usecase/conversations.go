package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"messenger/internal/domain"
	"messenger/internal/pagination"
)

const (
	defaultMaxPageSize = 100
)

// ConversationStore is the storage surface the conversation service depends
// on. Both the DynamoDB and badger backends implement it.
type ConversationStore interface {
	ResolveOrCreate(ctx context.Context, userA, userB uuid.UUID) (domain.Conversation, error)
	GetConversation(ctx context.Context, conversationID uuid.UUID) (domain.Conversation, error)
	ScanUserConversations(ctx context.Context, userID uuid.UUID, before time.Time, limit int) ([]domain.ConversationEntry, error)
}

type ConversationService struct {
	store       ConversationStore
	log         *slog.Logger
	maxPageSize int
}

func NewConversationService(store ConversationStore, log *slog.Logger, maxPageSize int) (*ConversationService, error) {
	if store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if maxPageSize <= 0 {
		maxPageSize = defaultMaxPageSize
	}
	return &ConversationService{store: store, log: log, maxPageSize: maxPageSize}, nil
}

type ResolveInput struct {
	UserA string `validate:"required,uuid"`
	UserB string `validate:"required,uuid"`
}

// ResolveOrCreate returns the single conversation between two users,
// creating it if absent. Symmetric in its arguments.
func (s *ConversationService) ResolveOrCreate(ctx context.Context, in ResolveInput) (domain.Conversation, error) {
	if err := validate.Struct(in); err != nil {
		return domain.Conversation{}, newError(ErrorValidation, "malformed_user_id", err)
	}
	userA, verr := parseID("user_a", in.UserA)
	if verr != nil {
		return domain.Conversation{}, verr
	}
	userB, verr := parseID("user_b", in.UserB)
	if verr != nil {
		return domain.Conversation{}, verr
	}
	if userA == userB {
		return domain.Conversation{}, newError(ErrorValidation, "same_participant", nil)
	}

	conv, err := s.store.ResolveOrCreate(ctx, userA, userB)
	if err != nil {
		return domain.Conversation{}, storeError("resolve_error", err)
	}
	return conv, nil
}

// Get reads a conversation by id; absence is a not-found error.
func (s *ConversationService) Get(ctx context.Context, conversationID string) (domain.Conversation, error) {
	id, verr := parseID("conversation_id", conversationID)
	if verr != nil {
		return domain.Conversation{}, verr
	}
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return domain.Conversation{}, storeError("get_conversation_error", err)
	}
	return conv, nil
}

type ListConversationsInput struct {
	UserID string
	Limit  int
	Before *time.Time
}

// List pages through a user's conversations, most recently active first. A
// user with no conversations (or no conversations before the cursor) gets an
// empty page, not an error.
func (s *ConversationService) List(ctx context.Context, in ListConversationsInput) (domain.Page[domain.ConversationEntry], error) {
	userID, verr := parseID("user_id", in.UserID)
	if verr != nil {
		return domain.Page[domain.ConversationEntry]{}, verr
	}
	if verr := checkLimit(in.Limit, s.maxPageSize); verr != nil {
		return domain.Page[domain.ConversationEntry]{}, verr
	}

	page, err := pagination.Scan(ctx, in.Before, in.Limit,
		func(ctx context.Context, before time.Time, limit int) ([]domain.ConversationEntry, error) {
			return s.store.ScanUserConversations(ctx, userID, before, limit)
		},
		func(e domain.ConversationEntry) time.Time { return e.LastMessageTS },
	)
	if err != nil {
		return domain.Page[domain.ConversationEntry]{}, storeError("list_conversations_error", err)
	}
	return page, nil
}
