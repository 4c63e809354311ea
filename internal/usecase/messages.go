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
	defaultMaxContentLength = 4000
)

// MessageStore is the storage surface the message service depends on.
type MessageStore interface {
	AppendMessage(ctx context.Context, conv domain.Conversation, senderID uuid.UUID, content string) (domain.Message, error)
	ScanConversationMessages(ctx context.Context, conversationID uuid.UUID, before time.Time, limit int) ([]domain.Message, error)
	GetMessage(ctx context.Context, messageID uuid.UUID) (domain.Message, error)
}

type MessageService struct {
	conversations    ConversationStore
	messages         MessageStore
	log              *slog.Logger
	maxPageSize      int
	maxContentLength int
}

func NewMessageService(conversations ConversationStore, messages MessageStore, log *slog.Logger, maxPageSize, maxContentLength int) (*MessageService, error) {
	if conversations == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if messages == nil {
		return nil, errors.New("usecase: message store must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if maxPageSize <= 0 {
		maxPageSize = defaultMaxPageSize
	}
	if maxContentLength <= 0 {
		maxContentLength = defaultMaxContentLength
	}
	return &MessageService{
		conversations:    conversations,
		messages:         messages,
		log:              log,
		maxPageSize:      maxPageSize,
		maxContentLength: maxContentLength,
	}, nil
}

type SendInput struct {
	SenderID   string `validate:"required,uuid"`
	ReceiverID string `validate:"required,uuid"`
	Content    string `validate:"required"`
}

// Send resolves the conversation between sender and receiver and appends the
// message to it, bumping both participants' conversation indexes. The server
// assigns the message id and timestamp.
func (s *MessageService) Send(ctx context.Context, in SendInput) (domain.Message, error) {
	if err := validate.Struct(in); err != nil {
		return domain.Message{}, newError(ErrorValidation, "malformed_send_request", err)
	}
	if len(in.Content) > s.maxContentLength {
		return domain.Message{}, newError(ErrorValidation, "content_too_long", nil)
	}
	senderID, verr := parseID("sender_id", in.SenderID)
	if verr != nil {
		return domain.Message{}, verr
	}
	receiverID, verr := parseID("receiver_id", in.ReceiverID)
	if verr != nil {
		return domain.Message{}, verr
	}
	if senderID == receiverID {
		return domain.Message{}, newError(ErrorValidation, "same_participant", nil)
	}

	conv, err := s.conversations.ResolveOrCreate(ctx, senderID, receiverID)
	if err != nil {
		return domain.Message{}, storeError("resolve_error", err)
	}
	msg, err := s.messages.AppendMessage(ctx, conv, senderID, in.Content)
	if err != nil {
		return domain.Message{}, storeError("append_error", err)
	}
	return msg, nil
}

type ListMessagesInput struct {
	ConversationID string
	Limit          int
	Before         *time.Time
}

// List pages through a conversation's messages, most recent first. An
// unknown or empty conversation yields an empty page.
func (s *MessageService) List(ctx context.Context, in ListMessagesInput) (domain.Page[domain.Message], error) {
	conversationID, verr := parseID("conversation_id", in.ConversationID)
	if verr != nil {
		return domain.Page[domain.Message]{}, verr
	}
	if verr := checkLimit(in.Limit, s.maxPageSize); verr != nil {
		return domain.Page[domain.Message]{}, verr
	}

	page, err := pagination.Scan(ctx, in.Before, in.Limit,
		func(ctx context.Context, before time.Time, limit int) ([]domain.Message, error) {
			return s.messages.ScanConversationMessages(ctx, conversationID, before, limit)
		},
		func(m domain.Message) time.Time { return m.TS },
	)
	if err != nil {
		return domain.Page[domain.Message]{}, storeError("list_messages_error", err)
	}
	return page, nil
}

// Get reads a message by id; absence is a not-found error.
func (s *MessageService) Get(ctx context.Context, messageID string) (domain.Message, error) {
	id, verr := parseID("message_id", messageID)
	if verr != nil {
		return domain.Message{}, verr
	}
	msg, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		return domain.Message{}, storeError("get_message_error", err)
	}
	return msg, nil
}
