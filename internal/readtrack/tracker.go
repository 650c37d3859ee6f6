// Package readtrack marks messages read by the current viewer and
// derives unread counts. The readBy set in the document store is the
// only source of truth; the local cache exists for badge speed and is
// corrected opportunistically.
package readtrack

import (
	"context"
	"sync"
	"time"

	"github.com/caresync/caresync/internal/bus"
	"github.com/caresync/caresync/internal/docstore"
	"github.com/caresync/caresync/internal/store"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Store is the slice of the document store the tracker needs.
type Store interface {
	FetchOrdered(ctx context.Context, conversationID string) ([]docstore.Message, error)
	PatchMessage(ctx context.Context, conversationID, messageID string, patch docstore.Patch) error
}

// UnreadUpdate is the payload for unread.changed events.
type UnreadUpdate struct {
	ConversationID string
	Count          int
}

// Tracker drives read receipts and the unread cache.
type Tracker struct {
	store  Store
	local  *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewTracker creates a read tracker.
func NewTracker(s Store, local *store.DB, b *bus.Bus, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: s, local: local, bus: b, logger: logger}
}

// MarkConversationRead adds userID to the readBy set of every message
// not yet acknowledged by them. Patches are issued concurrently and are
// independent: partial failure is acceptable and self-heals on the next
// call, since re-adding a member to a set is a no-op.
func (t *Tracker) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	msgs, err := t.store.FetchOrdered(ctx, conversationID)
	if err != nil {
		return err
	}

	var unread []docstore.Message
	for _, m := range msgs {
		if !m.ReadByContains(userID) {
			unread = append(unread, m)
		}
	}
	if len(unread) == 0 {
		return nil
	}

	readAt := time.Now().UTC()
	errs := make([]error, len(unread))
	var wg sync.WaitGroup
	for i, m := range unread {
		wg.Add(1)
		go func(i int, m docstore.Message) {
			defer wg.Done()
			errs[i] = t.store.PatchMessage(ctx, conversationID, m.ID, docstore.Patch{
				AddToSet: map[string]any{"readBy": userID},
				Set:      map[string]any{"readAt": readAt},
			})
		}(i, m)
	}
	wg.Wait()

	if err := multierr.Combine(errs...); err != nil {
		t.logger.Warn("read receipts partially failed",
			zap.String("conversation_id", conversationID),
			zap.Int("attempted", len(unread)),
			zap.Error(err))
		return err
	}
	return nil
}

// UnreadCount derives the number of messages userID has not
// acknowledged. Never stored at the message layer, so it cannot drift.
func UnreadCount(msgs []docstore.Message, userID string) int {
	count := 0
	for _, m := range msgs {
		if !m.ReadByContains(userID) {
			count++
		}
	}
	return count
}

// RefreshUnreadCache recomputes the conversation's unread count from a
// fresh snapshot, corrects the cached value and announces the change.
// Best effort: a cache write failure is logged and ignored.
func (t *Tracker) RefreshUnreadCache(conversationID string, msgs []docstore.Message, userID string) {
	count := UnreadCount(msgs, userID)
	if t.local != nil {
		if err := t.local.SetUnreadCache(conversationID, count); err != nil {
			t.logger.Warn("unread cache update failed",
				zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}
	t.bus.Emit(bus.KindUnreadChanged, UnreadUpdate{
		ConversationID: conversationID,
		Count:          count,
	})
}
