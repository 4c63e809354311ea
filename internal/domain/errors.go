package domain

import "errors"

var (
	// ErrConversationNotFound reports that a conversation id resolves to no
	// stored conversation. Distinct from an empty scan, which is a valid page.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrMessageNotFound reports that a message id resolves to no stored
	// message.
	ErrMessageNotFound = errors.New("message not found")

	// ErrUnavailable reports that the storage layer stayed unreachable after
	// the bounded retry budget. Callers may retry the whole operation.
	ErrUnavailable = errors.New("storage unavailable")
)
