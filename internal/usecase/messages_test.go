package usecase

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"messenger/internal/domain"
)

type stubMessageStore struct {
	msg  domain.Message
	msgs []domain.Message
	err  error

	appendCalls int
	lastConv    domain.Conversation
	lastSender  uuid.UUID
	lastContent string
	lastBefore  time.Time
	lastLimit   int
}

func (s *stubMessageStore) AppendMessage(_ context.Context, conv domain.Conversation, senderID uuid.UUID, content string) (domain.Message, error) {
	s.appendCalls++
	s.lastConv, s.lastSender, s.lastContent = conv, senderID, content
	return s.msg, s.err
}

func (s *stubMessageStore) ScanConversationMessages(_ context.Context, _ uuid.UUID, before time.Time, limit int) ([]domain.Message, error) {
	s.lastBefore, s.lastLimit = before, limit
	return s.msgs, s.err
}

func (s *stubMessageStore) GetMessage(context.Context, uuid.UUID) (domain.Message, error) {
	return s.msg, s.err
}

func newMessageService(t *testing.T, convs *stubConversationStore, msgs *stubMessageStore) *MessageService {
	t.Helper()
	svc, err := NewMessageService(convs, msgs, slog.Default(), 100, 4000)
	require.NoError(t, err)
	return svc
}

func Test_NewMessageService_RequiresStores(t *testing.T) {
	req := require.New(t)
	_, err := NewMessageService(nil, &stubMessageStore{}, slog.Default(), 100, 4000)
	req.Error(err)
	_, err = NewMessageService(&stubConversationStore{}, nil, slog.Default(), 100, 4000)
	req.Error(err)
}

func Test_Send_Validation(t *testing.T) {
	valid := uuid.NewString()
	cases := []struct {
		name   string
		in     SendInput
		reason string
	}{
		{"missing sender", SendInput{ReceiverID: valid, Content: "hi"}, "malformed_send_request"},
		{"missing content", SendInput{SenderID: valid, ReceiverID: uuid.NewString()}, "malformed_send_request"},
		{"bad receiver", SendInput{SenderID: valid, ReceiverID: "bob", Content: "hi"}, "malformed_send_request"},
		{"same participant", SendInput{SenderID: valid, ReceiverID: valid, Content: "hi"}, "same_participant"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			convs := &stubConversationStore{}
			msgs := &stubMessageStore{}
			svc := newMessageService(t, convs, msgs)

			_, err := svc.Send(context.Background(), tc.in)

			var ucErr *Error
			req.ErrorAs(err, &ucErr)
			req.Equal(ErrorValidation, ucErr.Code)
			req.Equal(tc.reason, ucErr.Reason)
			req.Zero(convs.resolveCalls)
			req.Zero(msgs.appendCalls)
		})
	}
}

func Test_Send_ContentCap(t *testing.T) {
	req := require.New(t)
	msgs := &stubMessageStore{}
	svc := newMessageService(t, &stubConversationStore{}, msgs)

	_, err := svc.Send(context.Background(), SendInput{
		SenderID:   uuid.NewString(),
		ReceiverID: uuid.NewString(),
		Content:    strings.Repeat("a", 4001),
	})

	var ucErr *Error
	req.ErrorAs(err, &ucErr)
	req.Equal(ErrorValidation, ucErr.Code)
	req.Equal("content_too_long", ucErr.Reason)
	req.Zero(msgs.appendCalls)
}

func Test_Send_ResolvesThenAppends(t *testing.T) {
	req := require.New(t)
	sender, receiver := uuid.New(), uuid.New()
	conv := domain.Conversation{ID: uuid.New(), UserA: sender, UserB: receiver}
	want := domain.Message{ID: uuid.New(), ConversationID: conv.ID, SenderID: sender, Content: "hello"}
	convs := &stubConversationStore{conv: conv}
	msgs := &stubMessageStore{msg: want}
	svc := newMessageService(t, convs, msgs)

	got, err := svc.Send(context.Background(), SendInput{
		SenderID:   sender.String(),
		ReceiverID: receiver.String(),
		Content:    "hello",
	})
	req.NoError(err)
	req.Equal(want, got)
	req.Equal(1, convs.resolveCalls)
	req.Equal(1, msgs.appendCalls)
	req.Equal(conv, msgs.lastConv)
	req.Equal(sender, msgs.lastSender)
	req.Equal("hello", msgs.lastContent)
}

func Test_Send_MapsStoreUnavailable(t *testing.T) {
	req := require.New(t)
	convs := &stubConversationStore{conv: domain.Conversation{ID: uuid.New()}}
	msgs := &stubMessageStore{err: domain.ErrUnavailable}
	svc := newMessageService(t, convs, msgs)

	_, err := svc.Send(context.Background(), SendInput{
		SenderID:   uuid.NewString(),
		ReceiverID: uuid.NewString(),
		Content:    "hello",
	})

	var ucErr *Error
	req.ErrorAs(err, &ucErr)
	req.Equal(ErrorUnavailable, ucErr.Code)
}

func Test_ListMessages_EmptyPage(t *testing.T) {
	req := require.New(t)
	msgs := &stubMessageStore{}
	svc := newMessageService(t, &stubConversationStore{}, msgs)

	page, err := svc.List(context.Background(), ListMessagesInput{ConversationID: uuid.NewString(), Limit: 20})
	req.NoError(err)
	req.Zero(page.Count)
	req.Nil(page.NextBefore)
	req.Equal(20, msgs.lastLimit)
}

func Test_ListMessages_CursorIsOldestMessage(t *testing.T) {
	req := require.New(t)
	newer := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Minute)
	msgs := &stubMessageStore{msgs: []domain.Message{
		{ID: uuid.New(), TS: newer},
		{ID: uuid.New(), TS: older},
	}}
	svc := newMessageService(t, &stubConversationStore{}, msgs)

	page, err := svc.List(context.Background(), ListMessagesInput{ConversationID: uuid.NewString(), Limit: 2})
	req.NoError(err)
	req.Equal(2, page.Count)
	req.NotNil(page.NextBefore)
	req.Equal(older, *page.NextBefore)
}

func Test_ListMessages_LimitAboveCap(t *testing.T) {
	req := require.New(t)
	svc := newMessageService(t, &stubConversationStore{}, &stubMessageStore{})

	_, err := svc.List(context.Background(), ListMessagesInput{ConversationID: uuid.NewString(), Limit: 500})

	var ucErr *Error
	req.ErrorAs(err, &ucErr)
	req.Equal(ErrorValidation, ucErr.Code)
	req.Equal("limit_exceeds_cap", ucErr.Reason)
}

func Test_GetMessage_MapsNotFound(t *testing.T) {
	req := require.New(t)
	msgs := &stubMessageStore{err: domain.ErrMessageNotFound}
	svc := newMessageService(t, &stubConversationStore{}, msgs)

	_, err := svc.Get(context.Background(), uuid.NewString())

	var ucErr *Error
	req.ErrorAs(err, &ucErr)
	req.Equal(ErrorNotFound, ucErr.Code)
}

func Test_GetMessage_MalformedID(t *testing.T) {
	req := require.New(t)
	svc := newMessageService(t, &stubConversationStore{}, &stubMessageStore{})

	_, err := svc.Get(context.Background(), "nope")

	var ucErr *Error
	req.ErrorAs(err, &ucErr)
	req.Equal(ErrorValidation, ucErr.Code)
	req.Equal("message_id_malformed", ucErr.Reason)
}
