// Package docstore adapts conversation and message entities to the
// remote document store's collection/document model. It provides ordered
// fetch, live subscriptions, create, and field-level merge-patch
// primitives; reconciliation of pending copies is the caller's job.
package docstore

import "context"

// Subscription is a scoped handle on a live listener. Cancel stops
// further callback invocations and releases the underlying resources;
// it is safe to call more than once.
type Subscription interface {
	Cancel()
}

// Patch is a field-level merge update. Only the named fields change;
// unrelated fields are left untouched. AddToSet performs set-union on
// array fields. Unset deletes fields.
type Patch struct {
	Set      map[string]any
	AddToSet map[string]any
	Unset    []string
}

// Store is the full document-store contract consumed by the sync core.
// All operations may fail with ErrUnavailable (transient) or
// ErrPermissionDenied (terminal for the call).
type Store interface {
	// FetchOrdered returns all persisted messages for a conversation in
	// ascending createdAt order, ties broken by arrival order.
	FetchOrdered(ctx context.Context, conversationID string) ([]Message, error)

	// SubscribeOrdered registers a live listener invoked with the full
	// current ordered snapshot every time any message in the
	// conversation changes. The initial snapshot is delivered as well.
	SubscribeOrdered(ctx context.Context, conversationID string, fn func([]Message)) (Subscription, error)

	// WatchConversation delivers the conversation document (typing map,
	// preview fields) on every change, starting with the current state.
	WatchConversation(ctx context.Context, conversationID string, fn func(Conversation)) (Subscription, error)

	// GetConversation returns a conversation by id, or nil if absent.
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)

	// CreateConversation starts a new thread between the participants.
	CreateConversation(ctx context.Context, participants []string, title string) (Conversation, error)

	// ListConversations returns the user's conversations ordered by
	// lastUpdated descending.
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)

	// SubscribeConversations delivers the user's full conversation list
	// on every change, starting with the current state.
	SubscribeConversations(ctx context.Context, userID string, fn func([]Conversation)) (Subscription, error)

	// Create appends a message, assigning id and timestamp, and
	// refreshes the conversation preview. The payload carries ClientID
	// so retries can be recognized downstream; Create itself does not
	// dedupe.
	Create(ctx context.Context, conversationID string, msg Message) (Message, error)

	// PatchMessage applies a merge-patch to one message.
	PatchMessage(ctx context.Context, conversationID, messageID string, patch Patch) error

	// SetConversationField sets a single conversation field (dotted
	// paths address map entries, e.g. "typing.<uid>").
	SetConversationField(ctx context.Context, conversationID, fieldPath string, value any) error

	// DeleteConversationField removes a single conversation field.
	DeleteConversationField(ctx context.Context, conversationID, fieldPath string) error

	// SetPresence mirrors the user's online flag with a lastActive
	// timestamp into the store.
	SetPresence(ctx context.Context, userID string, online bool) error

	// GetPresence returns a user's presence document, or nil if absent.
	GetPresence(ctx context.Context, userID string) (*Presence, error)
}
