package conversation

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/caresync/caresync/internal/bus"
	"github.com/caresync/caresync/internal/docstore"
	"github.com/caresync/caresync/internal/presence"
	"github.com/caresync/caresync/internal/readtrack"
	"github.com/caresync/caresync/internal/session"
)

// Opened is the notification-side hook invoked when the user enters a
// conversation, lowering the device badge.
type Opened interface {
	HandleConversationOpened(conversationID string) (int, error)
}

// Manager hands out live conversation sessions and tracks which ones
// are open so they can all be torn down on shutdown.
type Manager struct {
	store  docstore.Store
	typing *presence.Tracker
	reads  *readtrack.Tracker
	opened Opened
	sess   *session.Session
	bus    *bus.Bus
	logger *zap.Logger

	mu   sync.Mutex
	open map[string]*Session
}

func NewManager(s docstore.Store, typing *presence.Tracker, reads *readtrack.Tracker, opened Opened, sess *session.Session, b *bus.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  s,
		typing: typing,
		reads:  reads,
		opened: opened,
		sess:   sess,
		bus:    b,
		logger: logger,
		open:   map[string]*Session{},
	}
}

// Open returns the live session for a conversation, creating and
// attaching one if the conversation is not already open. Every open
// counts as the user entering the conversation, so the device badge is
// lowered even when the session already exists.
func (m *Manager) Open(ctx context.Context, conversationID string) (*Session, error) {
	m.mu.Lock()
	if c, ok := m.open[conversationID]; ok {
		m.mu.Unlock()
		m.lowerBadge(conversationID)
		return c, nil
	}
	m.mu.Unlock()

	c := New(conversationID, m.store, m.typing, m.reads, m.sess, m.bus, m.logger)
	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	m.lowerBadge(conversationID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if prior, ok := m.open[conversationID]; ok {
		// Lost the race; keep the first one.
		go c.Close()
		return prior, nil
	}
	m.open[conversationID] = c
	return c, nil
}

func (m *Manager) lowerBadge(conversationID string) {
	if m.opened == nil {
		return
	}
	if _, err := m.opened.HandleConversationOpened(conversationID); err != nil {
		m.logger.Warn("badge update on open failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
}

// Close tears down one open conversation. No-op if it is not open.
func (m *Manager) Close(conversationID string) {
	m.mu.Lock()
	c, ok := m.open[conversationID]
	delete(m.open, conversationID)
	m.mu.Unlock()
	if ok {
		c.Close()
	}
}

// CloseAll tears down every open conversation.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := m.open
	m.open = map[string]*Session{}
	m.mu.Unlock()
	for _, c := range open {
		c.Close()
	}
}
