// Package badgerstore is the embedded storage backend used for local
// development and tests. It mirrors the DynamoDB key scheme on BadgerDB:
// zero-padded UnixNano timestamps inside keys make lexicographic order equal
// timestamp order, and reverse iteration gives most-recent-first scans.
//
//	conv:<user_id>:<ts>:<conversation_id>  membership entries
//	msg:<conversation_id>:<ts>:<message_id>  message log
//	meta:<conversation_id>                 conversation record
//	msgid:<message_id>                     message-id lookup (value: message key)
//	pair:<min_id>:<max_id>                 pair claim
//
// Unlike DynamoDB, every multi-row write here runs in one serializable badger
// transaction, so the dual membership writes are atomic; the conditional
// semantics come from transaction conflict detection instead of conditional
// puts.
package badgerstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"messenger/internal/domain"
)

const (
	maxAttempts = 4

	membershipPrefix = "conv:"
	messagePrefix    = "msg:"
	metaPrefix       = "meta:"
	lookupPrefix     = "msgid:"
	pairPrefix       = "pair:"
)

// Store wraps a badger database holding the messenger tables.
type Store struct {
	db  *badger.DB
	log *slog.Logger

	// now is overridable in tests.
	now func() time.Time
}

// New creates a Store over an opened badger database.
func New(db *badger.DB, log *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("badgerstore: db must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}, nil
}

func padTS(t time.Time) string {
	return fmt.Sprintf("%019d", t.UTC().UnixNano())
}

func membershipKey(owner uuid.UUID, ts time.Time, conversationID uuid.UUID) []byte {
	return []byte(membershipPrefix + owner.String() + ":" + padTS(ts) + ":" + conversationID.String())
}

func messageKey(conversationID uuid.UUID, ts time.Time, messageID uuid.UUID) []byte {
	return []byte(messagePrefix + conversationID.String() + ":" + padTS(ts) + ":" + messageID.String())
}

func metaKey(conversationID uuid.UUID) []byte {
	return []byte(metaPrefix + conversationID.String())
}

func lookupKey(messageID uuid.UUID) []byte {
	return []byte(lookupPrefix + messageID.String())
}

func pairKey(a, b uuid.UUID) []byte {
	lo, hi := a.String(), b.String()
	if strings.Compare(lo, hi) > 0 {
		lo, hi = hi, lo
	}
	return []byte(pairPrefix + lo + ":" + hi)
}

// scanReverse collects up to limit values under prefix whose timestamp
// segment is strictly below before, newest first. The seek key ends at the
// padded bound with no id suffix, so reverse iteration starts at the first
// key strictly below it: rows at exactly the bound timestamp sort above the
// seek key and are excluded.
func (s *Store) scanReverse(prefix string, before time.Time, limit int) ([][]byte, error) {
	var values [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		seek := []byte(prefix + padTS(before))
		for it.Seek(seek); it.ValidForPrefix(p); it.Next() {
			if len(values) == limit {
				break
			}
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			values = append(values, value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Stored record shapes. UUIDs are stored as strings and timestamps as
// UnixNano, matching the attribute layout of the DynamoDB backend.

type conversationRecord struct {
	ID            string `json:"conversation_id"`
	UserA         string `json:"user_a"`
	UserB         string `json:"user_b"`
	LastMessageTS int64  `json:"last_message_ts"`
	CreatedAt     int64  `json:"created_at"`
}

type membershipRecord struct {
	ConversationID string `json:"conversation_id"`
	PeerID         string `json:"peer_id"`
	LastMessageTS  int64  `json:"last_message_ts"`
	Preview        string `json:"preview,omitempty"`
}

type messageRecord struct {
	ID             string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	TS             int64  `json:"ts"`
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func fromConversationRecord(rec conversationRecord) (domain.Conversation, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return domain.Conversation{}, err
	}
	userA, err := uuid.Parse(rec.UserA)
	if err != nil {
		return domain.Conversation{}, err
	}
	userB, err := uuid.Parse(rec.UserB)
	if err != nil {
		return domain.Conversation{}, err
	}
	return domain.Conversation{
		ID:            id,
		UserA:         userA,
		UserB:         userB,
		LastMessageTS: time.Unix(0, rec.LastMessageTS).UTC(),
		CreatedAt:     time.Unix(0, rec.CreatedAt).UTC(),
	}, nil
}

func toConversationRecord(conv domain.Conversation) conversationRecord {
	return conversationRecord{
		ID:            conv.ID.String(),
		UserA:         conv.UserA.String(),
		UserB:         conv.UserB.String(),
		LastMessageTS: conv.LastMessageTS.UTC().UnixNano(),
		CreatedAt:     conv.CreatedAt.UTC().UnixNano(),
	}
}

func fromMembershipRecord(rec membershipRecord) (domain.ConversationEntry, error) {
	conversationID, err := uuid.Parse(rec.ConversationID)
	if err != nil {
		return domain.ConversationEntry{}, err
	}
	peerID, err := uuid.Parse(rec.PeerID)
	if err != nil {
		return domain.ConversationEntry{}, err
	}
	return domain.ConversationEntry{
		ConversationID:     conversationID,
		PeerID:             peerID,
		LastMessageTS:      time.Unix(0, rec.LastMessageTS).UTC(),
		LastMessagePreview: rec.Preview,
	}, nil
}

func fromMessageRecord(rec messageRecord) (domain.Message, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return domain.Message{}, err
	}
	conversationID, err := uuid.Parse(rec.ConversationID)
	if err != nil {
		return domain.Message{}, err
	}
	senderID, err := uuid.Parse(rec.SenderID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        rec.Content,
		TS:             time.Unix(0, rec.TS).UTC(),
	}, nil
}
