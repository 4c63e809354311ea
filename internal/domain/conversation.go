package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the canonical record of a two-party conversation. It is the
// source of truth for the participant pair; membership entries are derived,
// per-user projections of it.
type Conversation struct {
	ID            uuid.UUID
	UserA         uuid.UUID
	UserB         uuid.UUID
	LastMessageTS time.Time
	CreatedAt     time.Time
}

// ConversationEntry is one participant's view of a conversation in their
// recency-ordered index. LastMessagePreview carries the content of the most
// recent message so listings can render without a second read.
type ConversationEntry struct {
	ConversationID     uuid.UUID
	PeerID             uuid.UUID
	LastMessageTS      time.Time
	LastMessagePreview string
}
