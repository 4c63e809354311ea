package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"messenger/internal/domain"
)

// ResolveOrCreate finds or creates the single conversation between two users.
// The claim on the canonicalized pair key and all derived rows are written in
// one transaction; two concurrent creators conflict on the pair key read and
// the loser retries, finding the winner's claim.
func (s *Store) ResolveOrCreate(ctx context.Context, userA, userB uuid.UUID) (domain.Conversation, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Conversation{}, fmt.Errorf("badgerstore: ResolveOrCreate: %w", err)
		}

		var conv domain.Conversation
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(pairKey(userA, userB))
			switch {
			case err == nil:
				existing, err := readConversationFromClaim(txn, item)
				if err != nil {
					return err
				}
				conv = existing
				return nil
			case errors.Is(err, badger.ErrKeyNotFound):
				now := s.now()
				conv = domain.Conversation{
					ID:            uuid.New(),
					UserA:         userA,
					UserB:         userB,
					LastMessageTS: now,
					CreatedAt:     now,
				}
				return writeConversation(txn, conv)
			default:
				return err
			}
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return domain.Conversation{}, fmt.Errorf("badgerstore: ResolveOrCreate: %w", err)
		}
		return conv, nil
	}
	return domain.Conversation{}, fmt.Errorf("badgerstore: ResolveOrCreate contended: %w", domain.ErrUnavailable)
}

// GetConversation reads the canonical conversation record.
func (s *Store) GetConversation(ctx context.Context, conversationID uuid.UUID) (domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, fmt.Errorf("badgerstore: GetConversation: %w", err)
	}

	var conv domain.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(conversationID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrConversationNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			var rec conversationRecord
			if err := json.Unmarshal(value, &rec); err != nil {
				return err
			}
			conv, err = fromConversationRecord(rec)
			return err
		})
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("badgerstore: GetConversation %s: %w", conversationID, err)
	}
	return conv, nil
}

// ScanUserConversations returns up to limit membership entries with
// last_message_ts strictly below before, most recent first, deduplicated by
// conversation id.
func (s *Store) ScanUserConversations(ctx context.Context, userID uuid.UUID, before time.Time, limit int) ([]domain.ConversationEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("badgerstore: ScanUserConversations: %w", err)
	}

	values, err := s.scanReverse(membershipPrefix+userID.String()+":", before, limit)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: ScanUserConversations: %w", err)
	}

	entries := make([]domain.ConversationEntry, 0, len(values))
	for _, value := range values {
		var rec membershipRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil, fmt.Errorf("badgerstore: ScanUserConversations decode: %w", err)
		}
		entry, err := fromMembershipRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("badgerstore: ScanUserConversations decode: %w", err)
		}
		entries = append(entries, entry)
	}
	return lo.UniqBy(entries, func(e domain.ConversationEntry) uuid.UUID {
		return e.ConversationID
	}), nil
}

// readConversationFromClaim follows a pair claim to the conversation record.
// A missing record means a writer died mid-creation; within this transaction
// it is rebuilt from the claim, healing the partial state.
func readConversationFromClaim(txn *badger.Txn, claim *badger.Item) (domain.Conversation, error) {
	var rec conversationRecord
	if err := claim.Value(func(value []byte) error {
		return json.Unmarshal(value, &rec)
	}); err != nil {
		return domain.Conversation{}, err
	}
	conv, err := fromConversationRecord(rec)
	if err != nil {
		return domain.Conversation{}, err
	}

	if _, err := txn.Get(metaKey(conv.ID)); errors.Is(err, badger.ErrKeyNotFound) {
		if err := writeConversation(txn, conv); err != nil {
			return domain.Conversation{}, err
		}
	} else if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// writeConversation writes the claim, the conversation record and both
// initial membership entries.
func writeConversation(txn *badger.Txn, conv domain.Conversation) error {
	recBytes, err := encode(toConversationRecord(conv))
	if err != nil {
		return err
	}
	if err := txn.Set(pairKey(conv.UserA, conv.UserB), recBytes); err != nil {
		return err
	}
	if err := txn.Set(metaKey(conv.ID), recBytes); err != nil {
		return err
	}
	if err := setMembership(txn, conv.UserA, conv.UserB, conv.ID, conv.LastMessageTS, ""); err != nil {
		return err
	}
	return setMembership(txn, conv.UserB, conv.UserA, conv.ID, conv.LastMessageTS, "")
}

func setMembership(txn *badger.Txn, owner, peer, conversationID uuid.UUID, ts time.Time, preview string) error {
	value, err := encode(membershipRecord{
		ConversationID: conversationID.String(),
		PeerID:         peer.String(),
		LastMessageTS:  ts.UTC().UnixNano(),
		Preview:        preview,
	})
	if err != nil {
		return err
	}
	return txn.Set(membershipKey(owner, ts, conversationID), value)
}
