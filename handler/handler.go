// Package handler adapts API Gateway proxy events to the messenger services.
// It owns request decoding, cursor parsing and the error-to-status mapping;
// everything else is delegated.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"messenger/internal/domain"
	"messenger/internal/usecase"
)

const defaultPageLimit = 20

// ConversationAPI is the conversation service surface the handler consumes.
type ConversationAPI interface {
	ResolveOrCreate(ctx context.Context, in usecase.ResolveInput) (domain.Conversation, error)
	Get(ctx context.Context, conversationID string) (domain.Conversation, error)
	List(ctx context.Context, in usecase.ListConversationsInput) (domain.Page[domain.ConversationEntry], error)
}

// MessageAPI is the message service surface the handler consumes.
type MessageAPI interface {
	Send(ctx context.Context, in usecase.SendInput) (domain.Message, error)
	List(ctx context.Context, in usecase.ListMessagesInput) (domain.Page[domain.Message], error)
	Get(ctx context.Context, messageID string) (domain.Message, error)
}

type Handler struct {
	conversations ConversationAPI
	messages      MessageAPI
	log           *slog.Logger
}

func NewHandler(conversations ConversationAPI, messages MessageAPI, log *slog.Logger) (*Handler, error) {
	if conversations == nil {
		return nil, errors.New("handler: conversation service must not be nil")
	}
	if messages == nil {
		return nil, errors.New("handler: message service must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{conversations: conversations, messages: messages, log: log}, nil
}

type resolveRequest struct {
	UserA string `json:"user_a"`
	UserB string `json:"user_b"`
}

type sendRequest struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

type conversationResponse struct {
	ConversationID string    `json:"conversation_id"`
	UserA          string    `json:"user_a"`
	UserB          string    `json:"user_b"`
	LastMessageTS  time.Time `json:"last_message_ts"`
	CreatedAt      time.Time `json:"created_at"`
}

type conversationEntryResponse struct {
	ConversationID     string    `json:"conversation_id"`
	PeerID             string    `json:"peer_id"`
	LastMessageTS      time.Time `json:"last_message_ts"`
	LastMessageContent string    `json:"last_message_content,omitempty"`
}

type messageResponse struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

type pageResponse[T any] struct {
	Items      []T        `json:"items"`
	Limit      int        `json:"limit"`
	Count      int        `json:"count"`
	NextBefore *time.Time `json:"next_before,omitempty"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Handle routes one API Gateway event.
//
//	POST /api/conversations                       resolve or create
//	GET  /api/conversations/user/{user_id}        list a user's conversations
//	GET  /api/conversations/{conversation_id}     fetch one conversation
//	POST /api/messages                            send a message
//	GET  /api/messages/conversation/{id}          list a conversation's messages
//	GET  /api/messages/{message_id}               fetch one message
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := correlationIDFrom(req.Headers)

	segments := pathSegments(req.Path)
	var (
		status int
		body   any
		err    error
	)
	switch {
	case req.HTTPMethod == http.MethodPost && matches(segments, "api", "conversations"):
		status, body, err = h.resolve(ctx, req.Body)
	case req.HTTPMethod == http.MethodGet && len(segments) == 4 && matches(segments[:3], "api", "conversations", "user"):
		status, body, err = h.listConversations(ctx, segments[3], req.QueryStringParameters)
	case req.HTTPMethod == http.MethodGet && len(segments) == 3 && matches(segments[:2], "api", "conversations"):
		status, body, err = h.getConversation(ctx, segments[2])
	case req.HTTPMethod == http.MethodPost && matches(segments, "api", "messages"):
		status, body, err = h.send(ctx, req.Body)
	case req.HTTPMethod == http.MethodGet && len(segments) == 4 && matches(segments[:3], "api", "messages", "conversation"):
		status, body, err = h.listMessages(ctx, segments[3], req.QueryStringParameters)
	case req.HTTPMethod == http.MethodGet && len(segments) == 3 && matches(segments[:2], "api", "messages"):
		status, body, err = h.getMessage(ctx, segments[2])
	default:
		return respond(http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "unknown_route"}, correlationID), nil
	}

	if err != nil {
		status, body = h.mapError(err)
		h.log.Warn("request failed",
			"method", req.HTTPMethod, "path", req.Path,
			"status", status, "correlation_id", correlationID, "err", err)
	}
	return respond(status, body, correlationID), nil
}

func (h *Handler) resolve(ctx context.Context, rawBody string) (int, any, error) {
	var body resolveRequest
	if err := json.Unmarshal([]byte(rawBody), &body); err != nil {
		return 0, nil, newValidationError("malformed_body", err)
	}
	conv, err := h.conversations.ResolveOrCreate(ctx, usecase.ResolveInput{UserA: body.UserA, UserB: body.UserB})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, toConversationResponse(conv), nil
}

func (h *Handler) getConversation(ctx context.Context, conversationID string) (int, any, error) {
	conv, err := h.conversations.Get(ctx, conversationID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, toConversationResponse(conv), nil
}

func (h *Handler) listConversations(ctx context.Context, userID string, query map[string]string) (int, any, error) {
	limit, before, err := pageParams(query)
	if err != nil {
		return 0, nil, err
	}
	page, err := h.conversations.List(ctx, usecase.ListConversationsInput{UserID: userID, Limit: limit, Before: before})
	if err != nil {
		return 0, nil, err
	}
	items := make([]conversationEntryResponse, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, conversationEntryResponse{
			ConversationID:     entry.ConversationID.String(),
			PeerID:             entry.PeerID.String(),
			LastMessageTS:      entry.LastMessageTS,
			LastMessageContent: entry.LastMessagePreview,
		})
	}
	return http.StatusOK, pageResponse[conversationEntryResponse]{
		Items: items, Limit: page.Limit, Count: page.Count, NextBefore: page.NextBefore,
	}, nil
}

func (h *Handler) send(ctx context.Context, rawBody string) (int, any, error) {
	var body sendRequest
	if err := json.Unmarshal([]byte(rawBody), &body); err != nil {
		return 0, nil, newValidationError("malformed_body", err)
	}
	msg, err := h.messages.Send(ctx, usecase.SendInput{
		SenderID:   body.SenderID,
		ReceiverID: body.ReceiverID,
		Content:    body.Content,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, toMessageResponse(msg), nil
}

func (h *Handler) listMessages(ctx context.Context, conversationID string, query map[string]string) (int, any, error) {
	limit, before, err := pageParams(query)
	if err != nil {
		return 0, nil, err
	}
	page, err := h.messages.List(ctx, usecase.ListMessagesInput{ConversationID: conversationID, Limit: limit, Before: before})
	if err != nil {
		return 0, nil, err
	}
	items := make([]messageResponse, 0, len(page.Items))
	for _, msg := range page.Items {
		items = append(items, toMessageResponse(msg))
	}
	return http.StatusOK, pageResponse[messageResponse]{
		Items: items, Limit: page.Limit, Count: page.Count, NextBefore: page.NextBefore,
	}, nil
}

func (h *Handler) getMessage(ctx context.Context, messageID string) (int, any, error) {
	msg, err := h.messages.Get(ctx, messageID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, toMessageResponse(msg), nil
}

func (h *Handler) mapError(err error) (int, any) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}
	}
	status := http.StatusInternalServerError
	switch ucErr.Code {
	case usecase.ErrorValidation:
		status = http.StatusBadRequest
	case usecase.ErrorNotFound:
		status = http.StatusNotFound
	case usecase.ErrorUnavailable:
		status = http.StatusServiceUnavailable
	}
	return status, errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason}
}

// pageParams reads limit and before from the query string. limit defaults to
// defaultPageLimit; before is an optional RFC3339 timestamp cursor.
func pageParams(query map[string]string) (int, *time.Time, error) {
	limit := defaultPageLimit
	if raw, ok := query["limit"]; ok && raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, nil, newValidationError("malformed_limit", err)
		}
		limit = parsed
	}

	var before *time.Time
	if raw, ok := query["before"]; ok && raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return 0, nil, newValidationError("malformed_before", err)
		}
		utc := parsed.UTC()
		before = &utc
	}
	return limit, before, nil
}

func newValidationError(reason string, err error) *usecase.Error {
	return &usecase.Error{Code: usecase.ErrorValidation, Reason: reason, Err: err}
}

func toConversationResponse(conv domain.Conversation) conversationResponse {
	return conversationResponse{
		ConversationID: conv.ID.String(),
		UserA:          conv.UserA.String(),
		UserB:          conv.UserB.String(),
		LastMessageTS:  conv.LastMessageTS,
		CreatedAt:      conv.CreatedAt,
	}
}

func toMessageResponse(msg domain.Message) messageResponse {
	return messageResponse{
		MessageID:      msg.ID.String(),
		ConversationID: msg.ConversationID.String(),
		SenderID:       msg.SenderID.String(),
		Content:        msg.Content,
		Timestamp:      msg.TS,
	}
}

func pathSegments(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

func matches(segments []string, want ...string) bool {
	if len(segments) != len(want) {
		return false
	}
	for i := range want {
		if segments[i] != want[i] {
			return false
		}
	}
	return true
}

func correlationIDFrom(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "x-correlation-id") && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func respond(status int, body any, correlationID string) events.APIGatewayProxyResponse {
	encoded, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		encoded = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"X-Correlation-Id": correlationID,
		},
		Body: string(encoded),
	}
}
