package dynamo

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Single-table key scheme. Each logical table of the data model maps to one
// partition-key prefix:
//
//	USER#<user_id>            / CONV#<ts>#<conversation_id>  membership entries
//	CONV#<conversation_id>    / MSG#<ts>#<message_id>        message log
//	CONV#<conversation_id>    / META#                        conversation record
//	MSG#<message_id>          / META#                        message-id lookup
//	PAIR#<min_id>#<max_id>    / META#                        pair claim
//
// <ts> is the UnixNano timestamp zero-padded to 19 digits, so lexicographic
// sort-key order equals timestamp order and nanosecond precision breaks ties
// between same-millisecond writes. The trailing id segment keeps concurrent
// writes at the same instant from colliding on one key.
const (
	pkUserPrefix = "USER#"
	pkConvPrefix = "CONV#"
	pkMsgPrefix  = "MSG#"
	pkPairPrefix = "PAIR#"

	skMeta       = "META#"
	skConvPrefix = "CONV#"
	skMsgPrefix  = "MSG#"
)

func userPK(id uuid.UUID) string { return pkUserPrefix + id.String() }
func convPK(id uuid.UUID) string { return pkConvPrefix + id.String() }
func msgPK(id uuid.UUID) string  { return pkMsgPrefix + id.String() }

// pairPK canonicalizes the unordered participant pair, so (A,B) and (B,A)
// claim the same key.
func pairPK(a, b uuid.UUID) string {
	lo, hi := canonicalPair(a, b)
	return pkPairPrefix + lo.String() + "#" + hi.String()
}

func canonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if strings.Compare(a.String(), b.String()) > 0 {
		return b, a
	}
	return a, b
}

func padTS(t time.Time) string {
	return fmt.Sprintf("%019d", t.UTC().UnixNano())
}

func membershipSK(ts time.Time, conversationID uuid.UUID) string {
	return skConvPrefix + padTS(ts) + "#" + conversationID.String()
}

func messageSK(ts time.Time, messageID uuid.UUID) string {
	return skMsgPrefix + padTS(ts) + "#" + messageID.String()
}

// membershipBound is the exclusive upper bound for a membership scan. The
// bound has no id suffix, so every row at exactly the bound timestamp sorts
// above it and is excluded, while all rows strictly below are kept.
func membershipBound(before time.Time) string {
	return skConvPrefix + padTS(before)
}

func messageBound(before time.Time) string {
	return skMsgPrefix + padTS(before)
}
