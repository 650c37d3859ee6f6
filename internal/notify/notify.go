// Package notify bridges incoming messages to the platform notification
// collaborator, honoring user preferences and maintaining the device
// badge integer.
package notify

import (
	"context"

	"github.com/caresync/caresync/internal/bus"
	"github.com/caresync/caresync/internal/docstore"
	"github.com/caresync/caresync/internal/store"
	"go.uber.org/zap"
)

// Data is the payload attached to a notification; the tap-response
// callback hands it back so the caller can navigate to the conversation
// and mark it read.
type Data struct {
	ConversationID string
	MessageID      string
	Urgent         bool
}

// Notification is the request handed to the platform collaborator.
type Notification struct {
	Title      string
	Body       string
	Sound      bool
	BadgeCount int
	Data       Data
}

// Scheduler is the external notification collaborator.
type Scheduler interface {
	Schedule(ctx context.Context, n Notification) error
}

const previewLimit = 100

// Notifier decides whether an incoming message becomes a notification.
type Notifier struct {
	sched  Scheduler
	local  *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewNotifier creates a notifier backed by the local preference store.
func NewNotifier(sched Scheduler, local *store.DB, b *bus.Bus, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{sched: sched, local: local, bus: b, logger: logger}
}

// HandleMessage schedules a notification for a message from another
// sender, unless notifications are disabled or the conversation is
// muted. The badge is bumped when badge counting is enabled.
func (n *Notifier) HandleMessage(ctx context.Context, conv docstore.Conversation, msg docstore.Message, currentUser string) error {
	if msg.SenderID == currentUser {
		return nil
	}

	prefs, err := n.local.GetPreferences()
	if err != nil {
		return err
	}
	if !prefs.Enabled {
		return nil
	}
	muted, err := n.local.IsMuted(conv.ID)
	if err != nil {
		return err
	}
	if muted {
		return nil
	}

	badge := 0
	if prefs.BadgeEnabled {
		badge, err = n.local.IncrementBadge()
		if err != nil {
			n.logger.Warn("badge increment failed", zap.Error(err))
		}
	}

	title := conv.Title
	if title == "" {
		title = msg.SenderID
	}
	if msg.Urgent {
		title = "Urgent: " + title
	}

	notification := Notification{
		Title:      title,
		Body:       truncate(msg.Preview(), previewLimit),
		Sound:      prefs.SoundEnabled,
		BadgeCount: badge,
		Data: Data{
			ConversationID: conv.ID,
			MessageID:      msg.ID,
			Urgent:         msg.Urgent,
		},
	}
	if err := n.sched.Schedule(ctx, notification); err != nil {
		return err
	}
	n.bus.Emit(bus.KindNotifyScheduled, notification.Data)
	return nil
}

// HandleConversationOpened lowers the device badge when the user enters
// a conversation, returning the new count. Best-effort UX bookkeeping;
// authoritative unread state lives in the readBy sets.
func (n *Notifier) HandleConversationOpened(conversationID string) (int, error) {
	badge, err := n.local.DecrementBadge()
	if err != nil {
		return 0, err
	}
	n.logger.Info("conversation opened",
		zap.String("conversation_id", conversationID),
		zap.Int("badge", badge))
	return badge, nil
}

// Preferences returns the stored notification settings.
func (n *Notifier) Preferences() (store.Preferences, error) {
	return n.local.GetPreferences()
}

// SetPreferences persists new notification settings immediately.
func (n *Notifier) SetPreferences(prefs store.Preferences) error {
	return n.local.SetPreferences(prefs)
}

// Mute suppresses delivery for a conversation and persists immediately.
func (n *Notifier) Mute(conversationID string) error {
	return n.local.MuteConversation(conversationID)
}

// Unmute re-enables delivery for a conversation.
func (n *Notifier) Unmute(conversationID string) error {
	return n.local.UnmuteConversation(conversationID)
}

// truncate limits the preview to maxLen characters, never splitting a
// multibyte sequence.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
