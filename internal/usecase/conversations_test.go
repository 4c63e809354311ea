package usecase

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"messenger/internal/domain"
)

type stubConversationStore struct {
	conv    domain.Conversation
	entries []domain.ConversationEntry
	err     error

	resolveCalls int
	lastUserA    uuid.UUID
	lastUserB    uuid.UUID
	lastBefore   time.Time
	lastLimit    int
}

func (s *stubConversationStore) ResolveOrCreate(_ context.Context, userA, userB uuid.UUID) (domain.Conversation, error) {
	s.resolveCalls++
	s.lastUserA, s.lastUserB = userA, userB
	return s.conv, s.err
}

func (s *stubConversationStore) GetConversation(context.Context, uuid.UUID) (domain.Conversation, error) {
	return s.conv, s.err
}

func (s *stubConversationStore) ScanUserConversations(_ context.Context, _ uuid.UUID, before time.Time, limit int) ([]domain.ConversationEntry, error) {
	s.lastBefore, s.lastLimit = before, limit
	return s.entries, s.err
}

func newConversationService(t *testing.T, store *stubConversationStore) *ConversationService {
	t.Helper()
	svc, err := NewConversationService(store, slog.Default(), 100)
	require.NoError(t, err)
	return svc
}

func Test_NewConversationService_RequiresStore(t *testing.T) {
	_, err := NewConversationService(nil, slog.Default(), 100)
	require.Error(t, err)
}

func Test_ResolveOrCreate_Validation(t *testing.T) {
	valid := uuid.NewString()
	cases := []struct {
		name   string
		in     ResolveInput
		reason string
	}{
		{"missing user_a", ResolveInput{UserB: valid}, "malformed_user_id"},
		{"missing user_b", ResolveInput{UserA: valid}, "malformed_user_id"},
		{"not a uuid", ResolveInput{UserA: "alice", UserB: valid}, "malformed_user_id"},
		{"same participant", ResolveInput{UserA: valid, UserB: valid}, "same_participant"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			store := &stubConversationStore{}
			svc := newConversationService(t, store)

			_, err := svc.ResolveOrCreate(context.Background(), tc.in)

			var ucErr *Error
			req.ErrorAs(err, &ucErr)
			req.Equal(ErrorValidation, ucErr.Code)
			req.Equal(tc.reason, ucErr.Reason)
			req.Zero(store.resolveCalls, "store must not be reached on invalid input")
		})
	}
}

func Test_ResolveOrCreate_PassesParsedIDs(t *testing.T) {
	req := require.New(t)
	userA, userB := uuid.New(), uuid.New()
	want := domain.Conversation{ID: uuid.New(), UserA: userA, UserB: userB}
	store := &stubConversationStore{conv: want}
	svc := newConversationService(t, store)

	got, err := svc.ResolveOrCreate(context.Background(), ResolveInput{UserA: userA.String(), UserB: userB.String()})
	req.NoError(err)
	req.Equal(want, got)
	req.Equal(1, store.resolveCalls)
	req.Equal(userA, store.lastUserA)
	req.Equal(userB, store.lastUserB)
}

func Test_ResolveOrCreate_MapsUnavailable(t *testing.T) {
	req := require.New(t)
	store := &stubConversationStore{err: domain.ErrUnavailable}
	svc := newConversationService(t, store)

	_, err := svc.ResolveOrCreate(context.Background(), ResolveInput{UserA: uuid.NewString(), UserB: uuid.NewString()})

	var ucErr *Error
	req.ErrorAs(err, &ucErr)
	req.Equal(ErrorUnavailable, ucErr.Code)
}

func Test_GetConversation_MapsNotFound(t *testing.T) {
	req := require.New(t)
	store := &stubConversationStore{err: domain.ErrConversationNotFound}
	svc := newConversationService(t, store)

	_, err := svc.Get(context.Background(), uuid.NewString())

	var ucErr *Error
	req.ErrorAs(err, &ucErr)
	req.Equal(ErrorNotFound, ucErr.Code)
}

func Test_GetConversation_MalformedID(t *testing.T) {
	req := require.New(t)
	svc := newConversationService(t, &stubConversationStore{})

	_, err := svc.Get(context.Background(), "not-a-uuid")

	var ucErr *Error
	req.ErrorAs(err, &ucErr)
	req.Equal(ErrorValidation, ucErr.Code)
	req.Equal("conversation_id_malformed", ucErr.Reason)
}

func Test_ListConversations_LimitContract(t *testing.T) {
	cases := []struct {
		name   string
		limit  int
		reason string
	}{
		{"zero", 0, "limit_not_positive"},
		{"negative", -3, "limit_not_positive"},
		{"above cap", 101, "limit_exceeds_cap"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			svc := newConversationService(t, &stubConversationStore{})

			_, err := svc.List(context.Background(), ListConversationsInput{UserID: uuid.NewString(), Limit: tc.limit})

			var ucErr *Error
			req.ErrorAs(err, &ucErr)
			req.Equal(ErrorValidation, ucErr.Code)
			req.Equal(tc.reason, ucErr.Reason)
		})
	}
}

func Test_ListConversations_EmptyPage(t *testing.T) {
	req := require.New(t)
	store := &stubConversationStore{}
	svc := newConversationService(t, store)

	page, err := svc.List(context.Background(), ListConversationsInput{UserID: uuid.NewString(), Limit: 10})
	req.NoError(err)
	req.Zero(page.Count)
	req.Nil(page.NextBefore)
	req.Equal(10, store.lastLimit)
}

func Test_ListConversations_CursorIsOldestEntry(t *testing.T) {
	req := require.New(t)
	newer := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)
	store := &stubConversationStore{entries: []domain.ConversationEntry{
		{ConversationID: uuid.New(), PeerID: uuid.New(), LastMessageTS: newer},
		{ConversationID: uuid.New(), PeerID: uuid.New(), LastMessageTS: older},
	}}
	svc := newConversationService(t, store)

	page, err := svc.List(context.Background(), ListConversationsInput{UserID: uuid.NewString(), Limit: 2})
	req.NoError(err)
	req.Equal(2, page.Count)
	req.NotNil(page.NextBefore)
	req.Equal(older, *page.NextBefore)
}

func Test_ListConversations_PassesCursorToStore(t *testing.T) {
	req := require.New(t)
	store := &stubConversationStore{}
	svc := newConversationService(t, store)
	cursor := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.List(context.Background(), ListConversationsInput{UserID: uuid.NewString(), Limit: 5, Before: &cursor})
	req.NoError(err)
	req.Equal(cursor, store.lastBefore)
}
