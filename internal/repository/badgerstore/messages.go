package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"messenger/internal/domain"
)

// AppendMessage writes one message, the message-id lookup, the conversation
// record advance and both membership moves in a single transaction.
// Concurrent appends to the same conversation conflict on the record read and
// retry; each retry re-reads the advanced timestamp, so no message is lost.
func (s *Store) AppendMessage(ctx context.Context, conv domain.Conversation, senderID uuid.UUID, content string) (domain.Message, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Message{}, fmt.Errorf("badgerstore: AppendMessage: %w", err)
		}

		var msg domain.Message
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(metaKey(conv.ID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrConversationNotFound
			}
			if err != nil {
				return err
			}
			var rec conversationRecord
			if err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &rec)
			}); err != nil {
				return err
			}
			current, err := fromConversationRecord(rec)
			if err != nil {
				return err
			}

			prev := current.LastMessageTS
			now := s.now()
			if !now.After(prev) {
				// Same-nanosecond burst or clock skew: keep the clustering
				// position strictly advancing.
				now = prev.Add(time.Nanosecond)
			}

			msg = domain.Message{
				ID:             uuid.New(),
				ConversationID: conv.ID,
				SenderID:       senderID,
				Content:        content,
				TS:             now,
			}

			msgKey := messageKey(conv.ID, now, msg.ID)
			msgValue, err := encode(messageRecord{
				ID:             msg.ID.String(),
				ConversationID: conv.ID.String(),
				SenderID:       senderID.String(),
				Content:        content,
				TS:             now.UnixNano(),
			})
			if err != nil {
				return err
			}
			if err := txn.Set(msgKey, msgValue); err != nil {
				return err
			}
			if err := txn.Set(lookupKey(msg.ID), msgKey); err != nil {
				return err
			}

			// Move both membership entries to the new clustering position.
			for _, side := range []struct{ owner, peer uuid.UUID }{
				{current.UserA, current.UserB},
				{current.UserB, current.UserA},
			} {
				if err := txn.Delete(membershipKey(side.owner, prev, conv.ID)); err != nil {
					return err
				}
				if err := setMembership(txn, side.owner, side.peer, conv.ID, now, content); err != nil {
					return err
				}
			}

			current.LastMessageTS = now
			metaValue, err := encode(toConversationRecord(current))
			if err != nil {
				return err
			}
			return txn.Set(metaKey(conv.ID), metaValue)
		})
		if errors.Is(err, badger.ErrConflict) {
			s.log.Debug("append conflicted, retrying", "conversation_id", conv.ID, "attempt", attempt)
			continue
		}
		if err != nil {
			return domain.Message{}, fmt.Errorf("badgerstore: AppendMessage: %w", err)
		}
		return msg, nil
	}
	return domain.Message{}, fmt.Errorf("badgerstore: AppendMessage contended: %w", domain.ErrUnavailable)
}

// ScanConversationMessages returns up to limit messages with a timestamp
// strictly below before, most recent first.
func (s *Store) ScanConversationMessages(ctx context.Context, conversationID uuid.UUID, before time.Time, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("badgerstore: ScanConversationMessages: %w", err)
	}

	values, err := s.scanReverse(messagePrefix+conversationID.String()+":", before, limit)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: ScanConversationMessages: %w", err)
	}

	msgs := make([]domain.Message, 0, len(values))
	for _, value := range values {
		var rec messageRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil, fmt.Errorf("badgerstore: ScanConversationMessages decode: %w", err)
		}
		msg, err := fromMessageRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("badgerstore: ScanConversationMessages decode: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// GetMessage resolves a message id through the lookup entry, then reads the
// message row. A dangling lookup degrades to not-found and is logged as an
// integrity signal.
func (s *Store) GetMessage(ctx context.Context, messageID uuid.UUID) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, fmt.Errorf("badgerstore: GetMessage: %w", err)
	}

	var msg domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(lookupKey(messageID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		msgKey, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		row, err := txn.Get(msgKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			s.log.Warn("message lookup points at missing row", "message_id", messageID)
			return domain.ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		return row.Value(func(value []byte) error {
			var rec messageRecord
			if err := json.Unmarshal(value, &rec); err != nil {
				return err
			}
			msg, err = fromMessageRecord(rec)
			return err
		})
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("badgerstore: GetMessage %s: %w", messageID, err)
	}
	return msg, nil
}
