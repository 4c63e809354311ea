package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"messenger/internal/domain"
)

// errNoClaim is an internal marker: no claim row exists for a pair yet.
var errNoClaim = errors.New("no claim for pair")

// ResolveOrCreate finds or creates the single conversation between two users.
// The claim row on the canonicalized pair key is written with a conditional
// put, so at most one conversation id ever exists per unordered pair: of two
// concurrent creators, exactly one transaction lands and the loser re-reads
// the winner's claim.
func (s *Store) ResolveOrCreate(ctx context.Context, userA, userB uuid.UUID) (domain.Conversation, error) {
	pair := pairPK(userA, userB)

	conv, err := s.resolveClaim(ctx, pair)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, errNoClaim) {
		return domain.Conversation{}, err
	}

	now := s.now()
	created := domain.Conversation{
		ID:            uuid.New(),
		UserA:         userA,
		UserB:         userB,
		LastMessageTS: now,
		CreatedAt:     now,
	}

	err = s.withRetry(ctx, "ResolveOrCreate transact", func(ctx context.Context) error {
		_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []types.TransactWriteItem{
				{Put: &types.Put{
					TableName:           aws.String(s.table),
					Item:                s.claimItem(pair, created),
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				}},
				{Put: &types.Put{TableName: aws.String(s.table), Item: s.metaItem(created)}},
				{Put: &types.Put{TableName: aws.String(s.table), Item: s.membershipItem(userA, created.ID, userB, now, "")}},
				{Put: &types.Put{TableName: aws.String(s.table), Item: s.membershipItem(userB, created.ID, userA, now, "")}},
			},
		})
		return err
	})
	if err == nil {
		return created, nil
	}
	if !conditionFailed(err) {
		return domain.Conversation{}, err
	}

	// Lost the creation race; the winner's claim is now readable.
	conv, err = s.resolveClaim(ctx, pair)
	if errors.Is(err, errNoClaim) {
		return domain.Conversation{}, fmt.Errorf("dynamo: ResolveOrCreate: claim vanished after lost race")
	}
	return conv, err
}

// resolveClaim reads the pair claim and the conversation record it points at.
// A claim without its conversation record means a creator crashed between the
// claim and the rest of its writes; the record is rebuilt from the claim so
// the partial creation converges instead of surfacing an error.
func (s *Store) resolveClaim(ctx context.Context, pair string) (domain.Conversation, error) {
	var out *dynamodb.GetItemOutput
	err := s.withRetry(ctx, "resolveClaim get", func(ctx context.Context) error {
		var err error
		out, err = s.api.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(s.table),
			Key:            key(pair, skMeta),
			ConsistentRead: aws.Bool(true),
		})
		return err
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Conversation{}, errNoClaim
	}

	claimed, err := claimToConversation(out.Item)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("dynamo: resolveClaim decode: %w", err)
	}

	conv, err := s.GetConversation(ctx, claimed.ID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, domain.ErrConversationNotFound) {
		return domain.Conversation{}, err
	}

	s.log.Warn("conversation record missing for claim, self-healing",
		"conversation_id", claimed.ID, "pair", pair)
	err = s.withRetry(ctx, "resolveClaim heal", func(ctx context.Context) error {
		_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []types.TransactWriteItem{
				{Put: &types.Put{TableName: aws.String(s.table), Item: s.metaItem(claimed)}},
				{Put: &types.Put{TableName: aws.String(s.table), Item: s.membershipItem(claimed.UserA, claimed.ID, claimed.UserB, claimed.LastMessageTS, "")}},
				{Put: &types.Put{TableName: aws.String(s.table), Item: s.membershipItem(claimed.UserB, claimed.ID, claimed.UserA, claimed.LastMessageTS, "")}},
			},
		})
		return err
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return claimed, nil
}

// GetConversation reads the canonical conversation record.
func (s *Store) GetConversation(ctx context.Context, conversationID uuid.UUID) (domain.Conversation, error) {
	var out *dynamodb.GetItemOutput
	err := s.withRetry(ctx, "GetConversation", func(ctx context.Context) error {
		var err error
		out, err = s.api.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(s.table),
			Key:            key(convPK(conversationID), skMeta),
			ConsistentRead: aws.Bool(true),
		})
		return err
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Conversation{}, fmt.Errorf("dynamo: GetConversation %s: %w", conversationID, domain.ErrConversationNotFound)
	}

	conv, err := itemToConversation(conversationID, out.Item)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("dynamo: GetConversation decode: %w", err)
	}
	return conv, nil
}

// ScanUserConversations returns up to limit membership entries with
// last_message_ts strictly below before, most recent first. User partitions
// hold only membership rows, so a plain upper bound on the sort key is the
// whole condition. Entries are deduplicated by conversation id, keeping the
// most recent, in case a crashed bump left a stale row behind.
func (s *Store) ScanUserConversations(ctx context.Context, userID uuid.UUID, before time.Time, limit int) ([]domain.ConversationEntry, error) {
	var out *dynamodb.QueryOutput
	err := s.withRetry(ctx, "ScanUserConversations", func(ctx context.Context) error {
		var err error
		out, err = s.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("PK = :pk AND SK < :before"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     strVal(userPK(userID)),
				":before": strVal(membershipBound(before)),
			},
			ScanIndexForward: aws.Bool(false),
			Limit:            aws.Int32(int32(limit)),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	entries := make([]domain.ConversationEntry, 0, len(out.Items))
	for _, item := range out.Items {
		entry, err := itemToEntry(item)
		if err != nil {
			return nil, fmt.Errorf("dynamo: ScanUserConversations decode: %w", err)
		}
		entries = append(entries, entry)
	}
	return lo.UniqBy(entries, func(e domain.ConversationEntry) uuid.UUID {
		return e.ConversationID
	}), nil
}

// membershipBump produces the transaction items that move one participant's
// membership row to a new clustering position: put the row at the new
// timestamp and delete the one at the previous timestamp.
func (s *Store) membershipBump(owner, conversationID, peer uuid.UUID, prev, next time.Time, preview string) []types.TransactWriteItem {
	return []types.TransactWriteItem{
		{Put: &types.Put{
			TableName: aws.String(s.table),
			Item:      s.membershipItem(owner, conversationID, peer, next, preview),
		}},
		{Delete: &types.Delete{
			TableName: aws.String(s.table),
			Key:       key(userPK(owner), membershipSK(prev, conversationID)),
		}},
	}
}

func (s *Store) claimItem(pair string, conv domain.Conversation) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":              strVal(pair),
		"SK":              strVal(skMeta),
		"conversation_id": strVal(conv.ID.String()),
		"user_a":          strVal(conv.UserA.String()),
		"user_b":          strVal(conv.UserB.String()),
		"created_at":      tsVal(conv.CreatedAt),
	}
}

func (s *Store) metaItem(conv domain.Conversation) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":              strVal(convPK(conv.ID)),
		"SK":              strVal(skMeta),
		"user_a":          strVal(conv.UserA.String()),
		"user_b":          strVal(conv.UserB.String()),
		"last_message_ts": tsVal(conv.LastMessageTS),
		"created_at":      tsVal(conv.CreatedAt),
	}
}

func (s *Store) membershipItem(owner, conversationID, peer uuid.UUID, ts time.Time, preview string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":              strVal(userPK(owner)),
		"SK":              strVal(membershipSK(ts, conversationID)),
		"conversation_id": strVal(conversationID.String()),
		"peer_id":         strVal(peer.String()),
		"last_message_ts": tsVal(ts),
		"preview":         strVal(preview),
	}
}

func claimToConversation(item map[string]types.AttributeValue) (domain.Conversation, error) {
	id, err := uuidAttr(item, "conversation_id")
	if err != nil {
		return domain.Conversation{}, err
	}
	userA, err := uuidAttr(item, "user_a")
	if err != nil {
		return domain.Conversation{}, err
	}
	userB, err := uuidAttr(item, "user_b")
	if err != nil {
		return domain.Conversation{}, err
	}
	createdAt, err := tsAttr(item, "created_at")
	if err != nil {
		return domain.Conversation{}, err
	}
	return domain.Conversation{
		ID:            id,
		UserA:         userA,
		UserB:         userB,
		LastMessageTS: createdAt,
		CreatedAt:     createdAt,
	}, nil
}

func itemToConversation(id uuid.UUID, item map[string]types.AttributeValue) (domain.Conversation, error) {
	userA, err := uuidAttr(item, "user_a")
	if err != nil {
		return domain.Conversation{}, err
	}
	userB, err := uuidAttr(item, "user_b")
	if err != nil {
		return domain.Conversation{}, err
	}
	lastTS, err := tsAttr(item, "last_message_ts")
	if err != nil {
		return domain.Conversation{}, err
	}
	createdAt, err := tsAttr(item, "created_at")
	if err != nil {
		return domain.Conversation{}, err
	}
	return domain.Conversation{
		ID:            id,
		UserA:         userA,
		UserB:         userB,
		LastMessageTS: lastTS,
		CreatedAt:     createdAt,
	}, nil
}

func itemToEntry(item map[string]types.AttributeValue) (domain.ConversationEntry, error) {
	conversationID, err := uuidAttr(item, "conversation_id")
	if err != nil {
		return domain.ConversationEntry{}, err
	}
	peerID, err := uuidAttr(item, "peer_id")
	if err != nil {
		return domain.ConversationEntry{}, err
	}
	lastTS, err := tsAttr(item, "last_message_ts")
	if err != nil {
		return domain.ConversationEntry{}, err
	}
	return domain.ConversationEntry{
		ConversationID:     conversationID,
		PeerID:             peerID,
		LastMessageTS:      lastTS,
		LastMessagePreview: optStrAttr(item, "preview"),
	}, nil
}
