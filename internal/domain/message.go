package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single persisted message. Messages are append-only: once
// written they are never edited or deleted.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Content        string
	TS             time.Time
}
