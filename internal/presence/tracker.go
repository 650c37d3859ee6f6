// Package presence maintains the per-conversation typing map and the
// per-user online flag, both mirrored into the document store. Typing
// entries carry a "typing since" timestamp; writers debounce-clear
// their own entry and readers ignore entries older than a short TTL,
// so a writer crashing mid-typing never leaves a stuck indicator.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/caresync/caresync/internal/bus"
	"github.com/caresync/caresync/internal/docstore"
	"go.uber.org/zap"
)

const (
	// DefaultDebounce is how long after the last keystroke the typing
	// entry auto-clears.
	DefaultDebounce = 1500 * time.Millisecond

	// DefaultTTL is the staleness bound readers apply to typing
	// entries.
	DefaultTTL = 2 * time.Second
)

// ConversationPatcher is the slice of the document store the tracker
// needs. Typing entries are dotted map keys, so concurrent writers of
// different users never clobber each other.
type ConversationPatcher interface {
	SetConversationField(ctx context.Context, conversationID, fieldPath string, value any) error
	DeleteConversationField(ctx context.Context, conversationID, fieldPath string) error
	SetPresence(ctx context.Context, userID string, online bool) error
}

// TypingChange is the payload for typing_changed events.
type TypingChange struct {
	ConversationID string
	UserID         string
	Typing         bool
}

// PresenceChange is the payload for presence changed events.
type PresenceChange struct {
	UserID string
	Online bool
}

// Tracker writes typing and presence signals. Debounce and TTL may be
// overridden before first use; zero values fall back to the defaults.
type Tracker struct {
	Debounce time.Duration
	TTL      time.Duration

	store  ConversationPatcher
	bus    *bus.Bus
	logger *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewTracker creates a tracker with default timings.
func NewTracker(store ConversationPatcher, b *bus.Bus, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		Debounce: DefaultDebounce,
		TTL:      DefaultTTL,
		store:    store,
		bus:      b,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
	}
}

// SetTyping mirrors the user's typing state into the conversation's
// typing map. A true call restarts the debounce timer; when it expires
// without a newer keystroke the entry is cleared automatically.
func (t *Tracker) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	field := "typing." + userID
	key := conversationID + "|" + userID

	if isTyping {
		if err := t.store.SetConversationField(ctx, conversationID, field, time.Now().UTC()); err != nil {
			return err
		}
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return nil
		}
		if timer, ok := t.timers[key]; ok {
			timer.Stop()
		}
		t.timers[key] = time.AfterFunc(t.Debounce, func() {
			if err := t.SetTyping(context.Background(), conversationID, userID, false); err != nil {
				t.logger.Warn("typing auto-clear failed",
					zap.String("conversation_id", conversationID),
					zap.String("user_id", userID),
					zap.Error(err))
			}
		})
		t.mu.Unlock()
	} else {
		t.mu.Lock()
		if timer, ok := t.timers[key]; ok {
			timer.Stop()
			delete(t.timers, key)
		}
		t.mu.Unlock()
		if err := t.store.DeleteConversationField(ctx, conversationID, field); err != nil {
			return err
		}
	}

	t.bus.Emit(bus.KindTypingChanged, TypingChange{
		ConversationID: conversationID,
		UserID:         userID,
		Typing:         isTyping,
	})
	return nil
}

// TypingUsers reads the conversation's typing map, excluding the viewer
// and any entry older than the TTL.
func (t *Tracker) TypingUsers(conv *docstore.Conversation, viewer string, now time.Time) []string {
	if conv == nil || len(conv.Typing) == 0 {
		return nil
	}
	var users []string
	for userID, since := range conv.Typing {
		if userID == viewer {
			continue
		}
		if now.Sub(since) > t.TTL {
			continue
		}
		users = append(users, userID)
	}
	return users
}

// SetOnline mirrors the user's coarse online flag with a lastActive
// timestamp. Called on app foreground/background transitions.
func (t *Tracker) SetOnline(ctx context.Context, userID string, online bool) error {
	if err := t.store.SetPresence(ctx, userID, online); err != nil {
		return err
	}
	t.bus.Emit(bus.KindPresenceChanged, PresenceChange{UserID: userID, Online: online})
	return nil
}

// IsOnline interprets a presence document: absence of recent activity
// means offline regardless of the stored flag.
func IsOnline(p *docstore.Presence, now time.Time, threshold time.Duration) bool {
	if p == nil || !p.Online {
		return false
	}
	return now.Sub(p.LastActive) <= threshold
}

// Close stops all pending auto-clear timers. Safe to call once the
// owning component is torn down; no timer fires afterwards.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}
