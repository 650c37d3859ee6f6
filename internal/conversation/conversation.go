// Package conversation composes the per-screen sync machinery: ordered
// timeline with pending overlay, optimistic sends, typing signals, and
// read tracking for one open conversation.
package conversation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/caresync/caresync/internal/bus"
	"github.com/caresync/caresync/internal/docstore"
	"github.com/caresync/caresync/internal/outbox"
	"github.com/caresync/caresync/internal/presence"
	"github.com/caresync/caresync/internal/readtrack"
	"github.com/caresync/caresync/internal/session"
	"github.com/caresync/caresync/internal/timeline"
)

// Session is one open conversation. It owns the reconciler and send
// pipeline for that conversation and holds the live subscriptions on
// the message set and the conversation document.
type Session struct {
	conversationID string
	store          docstore.Store
	rec            *timeline.Reconciler
	pipeline       *outbox.Pipeline
	typing         *presence.Tracker
	reads          *readtrack.Tracker
	sess           *session.Session
	bus            *bus.Bus
	logger         *zap.Logger

	mu   sync.Mutex
	conv docstore.Conversation
	seen map[string]struct{}

	msgSub  docstore.Subscription
	convSub docstore.Subscription
	once    sync.Once
}

// New wires a session for one conversation. Open must be called before
// the session is live.
func New(conversationID string, s docstore.Store, typing *presence.Tracker, reads *readtrack.Tracker, sess *session.Session, b *bus.Bus, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	rec := timeline.New(conversationID, b, logger)
	return &Session{
		conversationID: conversationID,
		store:          s,
		rec:            rec,
		pipeline:       outbox.NewPipeline(conversationID, s, rec, sess, b, logger),
		typing:         typing,
		reads:          reads,
		sess:           sess,
		bus:            b,
		logger:         logger.With(zap.String("conversation_id", conversationID)),
		seen:           map[string]struct{}{},
	}
}

// Open loads the initial snapshot, marks the backlog read, and attaches
// the live listeners. The initial snapshot never produces receive
// events; only messages that arrive while the session is open do.
func (c *Session) Open(ctx context.Context) error {
	msgs, err := c.store.FetchOrdered(ctx, c.conversationID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	for _, m := range msgs {
		c.seen[m.ID] = struct{}{}
	}
	c.mu.Unlock()
	c.rec.ApplySnapshot(msgs)

	if err := c.reads.MarkConversationRead(ctx, c.conversationID, c.sess.UserID); err != nil {
		c.logger.Warn("initial read mark failed", zap.Error(err))
	}
	c.reads.RefreshUnreadCache(c.conversationID, msgs, c.sess.UserID)

	msgSub, err := c.store.SubscribeOrdered(ctx, c.conversationID, c.onSnapshot)
	if err != nil {
		return err
	}
	convSub, err := c.store.WatchConversation(ctx, c.conversationID, c.onConversation)
	if err != nil {
		msgSub.Cancel()
		return err
	}
	c.msgSub = msgSub
	c.convSub = convSub
	return nil
}

func (c *Session) onSnapshot(msgs []docstore.Message) {
	var arrived []docstore.Message
	c.mu.Lock()
	for _, m := range msgs {
		if _, ok := c.seen[m.ID]; ok {
			continue
		}
		c.seen[m.ID] = struct{}{}
		if m.SenderID != c.sess.UserID {
			arrived = append(arrived, m)
		}
	}
	c.mu.Unlock()

	c.rec.ApplySnapshot(msgs)
	for _, m := range arrived {
		c.bus.Emit(bus.KindMessageReceived, m)
	}
	c.reads.RefreshUnreadCache(c.conversationID, msgs, c.sess.UserID)

	// The conversation is on screen, so anything that just arrived is
	// read immediately. Failures self-heal on the next snapshot.
	if len(arrived) > 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.reads.MarkConversationRead(ctx, c.conversationID, c.sess.UserID); err != nil {
				c.logger.Warn("read mark failed", zap.Error(err))
			}
		}()
	}
}

func (c *Session) onConversation(conv docstore.Conversation) {
	c.mu.Lock()
	c.conv = conv
	c.mu.Unlock()
}

// Send submits a draft through the optimistic pipeline.
func (c *Session) Send(ctx context.Context, draft outbox.Draft) (docstore.Message, error) {
	return c.pipeline.Send(ctx, draft)
}

// Retry re-dispatches a failed pending message under its original
// client id.
func (c *Session) Retry(ctx context.Context, clientID string) (docstore.Message, error) {
	return c.pipeline.Retry(ctx, clientID)
}

// SetTyping forwards the viewer's typing state for this conversation.
func (c *Session) SetTyping(ctx context.Context, isTyping bool) error {
	return c.typing.SetTyping(ctx, c.conversationID, c.sess.UserID, isTyping)
}

// Timeline returns the merged view: confirmed messages followed by the
// pending overlay.
func (c *Session) Timeline() []docstore.Message {
	return c.rec.Timeline()
}

// TypingUsers returns the other participants typing right now.
func (c *Session) TypingUsers(now time.Time) []string {
	c.mu.Lock()
	conv := c.conv
	c.mu.Unlock()
	return c.typing.TypingUsers(&conv, c.sess.UserID, now)
}

// Conversation returns the latest conversation document seen.
func (c *Session) Conversation() docstore.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv
}

// Close detaches the listeners, clears the viewer's typing entry, and
// discards pending copies. Idempotent.
func (c *Session) Close() {
	c.once.Do(func() {
		if c.msgSub != nil {
			c.msgSub.Cancel()
		}
		if c.convSub != nil {
			c.convSub.Cancel()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.typing.SetTyping(ctx, c.conversationID, c.sess.UserID, false); err != nil {
			c.logger.Warn("typing clear on close failed", zap.Error(err))
		}
		c.rec.DiscardPending()
	})
}
