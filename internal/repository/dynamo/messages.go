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

	"messenger/internal/domain"
)

// AppendMessage writes one message and moves both participants' membership
// rows to the new timestamp in a single transaction, keyed off the current
// conversation record. A concurrent append advances last_message_ts first and
// fails our condition, in which case the record is re-read and the
// transaction rebuilt. Message rows themselves never conflict: the sort key
// carries a nanosecond timestamp plus the message id.
func (s *Store) AppendMessage(ctx context.Context, conv domain.Conversation, senderID uuid.UUID, content string) (domain.Message, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		current, err := s.GetConversation(ctx, conv.ID)
		if errors.Is(err, domain.ErrConversationNotFound) {
			// Partial creation: rebuild the record from the pair claim and
			// try again.
			if _, err := s.resolveClaim(ctx, pairPK(conv.UserA, conv.UserB)); err != nil {
				return domain.Message{}, err
			}
			continue
		}
		if err != nil {
			return domain.Message{}, err
		}

		prev := current.LastMessageTS
		now := s.now()
		if !now.After(prev) {
			// Same-nanosecond burst or clock skew: keep the clustering
			// position strictly advancing.
			now = prev.Add(time.Nanosecond)
		}

		msg := domain.Message{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			SenderID:       senderID,
			Content:        content,
			TS:             now,
		}

		items := []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(s.table),
				Item:                s.messageItem(msg),
				ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
			}},
			{Put: &types.Put{TableName: aws.String(s.table), Item: s.lookupItem(msg)}},
		}
		items = append(items, s.membershipBump(current.UserA, conv.ID, current.UserB, prev, now, content)...)
		items = append(items, s.membershipBump(current.UserB, conv.ID, current.UserA, prev, now, content)...)
		items = append(items, types.TransactWriteItem{Update: &types.Update{
			TableName:           aws.String(s.table),
			Key:                 key(convPK(conv.ID), skMeta),
			UpdateExpression:    aws.String("SET last_message_ts = :next"),
			ConditionExpression: aws.String("last_message_ts = :prev"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":next": tsVal(now),
				":prev": tsVal(prev),
			},
		}})

		err = s.withRetry(ctx, "AppendMessage transact", func(ctx context.Context) error {
			_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
			return err
		})
		if err == nil {
			return msg, nil
		}
		if conditionFailed(err) {
			s.log.Debug("append lost activity race, re-reading conversation",
				"conversation_id", conv.ID, "attempt", attempt)
			continue
		}
		return domain.Message{}, err
	}
	return domain.Message{}, fmt.Errorf("dynamo: AppendMessage contended: %w", domain.ErrUnavailable)
}

// ScanConversationMessages returns up to limit messages with a timestamp
// strictly below before, most recent first. The conversation partition also
// holds the META# record, so the condition brackets the MSG# range; BETWEEN
// is inclusive, but the upper bound carries no id suffix and therefore sorts
// below every real row at that exact timestamp.
func (s *Store) ScanConversationMessages(ctx context.Context, conversationID uuid.UUID, before time.Time, limit int) ([]domain.Message, error) {
	var out *dynamodb.QueryOutput
	err := s.withRetry(ctx, "ScanConversationMessages", func(ctx context.Context) error {
		var err error
		out, err = s.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("PK = :pk AND SK BETWEEN :lo AND :hi"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": strVal(convPK(conversationID)),
				":lo": strVal(skMsgPrefix),
				":hi": strVal(messageBound(before)),
			},
			ScanIndexForward: aws.Bool(false),
			Limit:            aws.Int32(int32(limit)),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	msgs := make([]domain.Message, 0, len(out.Items))
	for _, item := range out.Items {
		msg, err := itemToMessage(conversationID, item)
		if err != nil {
			return nil, fmt.Errorf("dynamo: ScanConversationMessages decode: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// GetMessage resolves a message id through the lookup row, then point-reads
// the message itself. A lookup row whose message is gone is an integrity
// signal; it degrades to not-found rather than failing hard.
func (s *Store) GetMessage(ctx context.Context, messageID uuid.UUID) (domain.Message, error) {
	var lookup *dynamodb.GetItemOutput
	err := s.withRetry(ctx, "GetMessage lookup", func(ctx context.Context) error {
		var err error
		lookup, err = s.api.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(s.table),
			Key:            key(msgPK(messageID), skMeta),
			ConsistentRead: aws.Bool(true),
		})
		return err
	})
	if err != nil {
		return domain.Message{}, err
	}
	if lookup == nil || len(lookup.Item) == 0 {
		return domain.Message{}, fmt.Errorf("dynamo: GetMessage %s: %w", messageID, domain.ErrMessageNotFound)
	}

	conversationID, err := uuidAttr(lookup.Item, "conversation_id")
	if err != nil {
		return domain.Message{}, fmt.Errorf("dynamo: GetMessage decode lookup: %w", err)
	}
	rowSK, err := strAttr(lookup.Item, "message_sk")
	if err != nil {
		return domain.Message{}, fmt.Errorf("dynamo: GetMessage decode lookup: %w", err)
	}

	var out *dynamodb.GetItemOutput
	err = s.withRetry(ctx, "GetMessage row", func(ctx context.Context) error {
		var err error
		out, err = s.api.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(s.table),
			Key:            key(convPK(conversationID), rowSK),
			ConsistentRead: aws.Bool(true),
		})
		return err
	})
	if err != nil {
		return domain.Message{}, err
	}
	if out == nil || len(out.Item) == 0 {
		s.log.Warn("message lookup points at missing row",
			"message_id", messageID, "conversation_id", conversationID)
		return domain.Message{}, fmt.Errorf("dynamo: GetMessage %s: %w", messageID, domain.ErrMessageNotFound)
	}

	msg, err := itemToMessage(conversationID, out.Item)
	if err != nil {
		return domain.Message{}, fmt.Errorf("dynamo: GetMessage decode: %w", err)
	}
	return msg, nil
}

func (s *Store) messageItem(msg domain.Message) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":         strVal(convPK(msg.ConversationID)),
		"SK":         strVal(messageSK(msg.TS, msg.ID)),
		"message_id": strVal(msg.ID.String()),
		"sender_id":  strVal(msg.SenderID.String()),
		"content":    strVal(msg.Content),
		"ts":         tsVal(msg.TS),
	}
}

func (s *Store) lookupItem(msg domain.Message) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":              strVal(msgPK(msg.ID)),
		"SK":              strVal(skMeta),
		"conversation_id": strVal(msg.ConversationID.String()),
		"message_sk":      strVal(messageSK(msg.TS, msg.ID)),
		"ts":              tsVal(msg.TS),
	}
}

func itemToMessage(conversationID uuid.UUID, item map[string]types.AttributeValue) (domain.Message, error) {
	id, err := uuidAttr(item, "message_id")
	if err != nil {
		return domain.Message{}, err
	}
	senderID, err := uuidAttr(item, "sender_id")
	if err != nil {
		return domain.Message{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.Message{}, err
	}
	ts, err := tsAttr(item, "ts")
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		TS:             ts,
	}, nil
}
