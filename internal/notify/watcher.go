package notify

import (
	"context"
	"time"

	"github.com/caresync/caresync/internal/docstore"
	"github.com/caresync/caresync/internal/session"
	"github.com/caresync/caresync/internal/store"
	"go.uber.org/zap"
)

// WatchStore is the slice of the document store the watcher needs.
type WatchStore interface {
	SubscribeConversations(ctx context.Context, userID string, fn func([]docstore.Conversation)) (docstore.Subscription, error)
	FetchOrdered(ctx context.Context, conversationID string) ([]docstore.Message, error)
}

// Watcher is the daemon's background agent: it observes the user's
// conversation list and turns unseen activity into notifications. The
// persisted checkpoint per conversation prevents renotifying old
// messages across restarts.
type Watcher struct {
	store    WatchStore
	notifier *Notifier
	local    *store.DB
	sess     *session.Session
	logger   *zap.Logger

	sub docstore.Subscription
}

// NewWatcher creates a watcher for the session user.
func NewWatcher(s WatchStore, notifier *Notifier, local *store.DB, sess *session.Session, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		store:    s,
		notifier: notifier,
		local:    local,
		sess:     sess,
		logger:   logger,
	}
}

// Start subscribes to the user's conversation list.
func (w *Watcher) Start(ctx context.Context) error {
	sub, err := w.store.SubscribeConversations(ctx, w.sess.UserID, w.handleSnapshot)
	if err != nil {
		return err
	}
	w.sub = sub
	return nil
}

// Stop cancels the subscription. Safe to call without Start.
func (w *Watcher) Stop() {
	if w.sub != nil {
		w.sub.Cancel()
	}
}

func (w *Watcher) handleSnapshot(convs []docstore.Conversation) {
	ctx := context.Background()
	for _, conv := range convs {
		if conv.LastUpdated.IsZero() {
			continue
		}
		// Checkpoints round-trip through the local store at millisecond
		// precision; compare at the same granularity.
		lastUpdated := conv.LastUpdated.Truncate(time.Millisecond)
		checkpoint, err := w.local.NotifyCheckpoint(conv.ID)
		if err != nil {
			w.logger.Warn("checkpoint read failed",
				zap.String("conversation_id", conv.ID), zap.Error(err))
			continue
		}
		if !lastUpdated.After(checkpoint) {
			continue
		}
		// A zero checkpoint means this conversation has never been
		// seen by the watcher; prime it silently so a fresh profile
		// does not replay the whole history as notifications.
		if checkpoint.IsZero() {
			w.setCheckpoint(conv.ID, lastUpdated)
			continue
		}

		msgs, err := w.store.FetchOrdered(ctx, conv.ID)
		if err != nil {
			w.logger.Warn("fetch for notification failed",
				zap.String("conversation_id", conv.ID), zap.Error(err))
			continue
		}
		if len(msgs) == 0 {
			w.setCheckpoint(conv.ID, lastUpdated)
			continue
		}

		last := msgs[len(msgs)-1]
		if err := w.notifier.HandleMessage(ctx, conv, last, w.sess.UserID); err != nil {
			w.logger.Warn("notification delivery failed",
				zap.String("conversation_id", conv.ID), zap.Error(err))
			// Leave the checkpoint so the next snapshot retries.
			continue
		}
		w.setCheckpoint(conv.ID, lastUpdated)
	}
}

func (w *Watcher) setCheckpoint(conversationID string, at time.Time) {
	if err := w.local.SetNotifyCheckpoint(conversationID, at); err != nil {
		w.logger.Warn("checkpoint write failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
}
