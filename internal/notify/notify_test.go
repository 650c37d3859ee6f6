package notify

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/caresync/caresync/internal/bus"
	"github.com/caresync/caresync/internal/docstore"
	"github.com/caresync/caresync/internal/store"
)

// mockScheduler records scheduled notifications.
type mockScheduler struct {
	mu   sync.Mutex
	sent []Notification
	fail error
}

func (m *mockScheduler) Schedule(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, n)
	return nil
}

func (m *mockScheduler) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func testLocal(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func incoming() (docstore.Conversation, docstore.Message) {
	conv := docstore.Conversation{
		ID:           "c1",
		Participants: []string{"u1", "u2"},
		Title:        "Dr. Alvarez",
	}
	msg := docstore.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "u2",
		Text:           "Your results are ready",
		ReadBy:         []string{"u2"},
	}
	return conv, msg
}

func TestHandleMessageSchedules(t *testing.T) {
	local := testLocal(t)
	sched := &mockScheduler{}
	n := NewNotifier(sched, local, bus.New(), nil)

	conv, msg := incoming()
	if err := n.HandleMessage(context.Background(), conv, msg, "u1"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if sched.count() != 1 {
		t.Fatalf("scheduled = %d, want 1", sched.count())
	}
	got := sched.sent[0]
	if got.Title != "Dr. Alvarez" {
		t.Errorf("title = %q, want conversation title", got.Title)
	}
	if got.Body != "Your results are ready" {
		t.Errorf("body = %q, want message preview", got.Body)
	}
	if got.BadgeCount != 1 {
		t.Errorf("badge = %d, want 1", got.BadgeCount)
	}
	if got.Data.ConversationID != "c1" || got.Data.MessageID != "m1" {
		t.Errorf("data = %+v, want tap payload {c1 m1}", got.Data)
	}

	badge, _ := local.BadgeCount()
	if badge != 1 {
		t.Errorf("persisted badge = %d, want 1", badge)
	}
}

func TestHandleMessageSkipsOwnSends(t *testing.T) {
	sched := &mockScheduler{}
	n := NewNotifier(sched, testLocal(t), bus.New(), nil)

	conv, msg := incoming()
	if err := n.HandleMessage(context.Background(), conv, msg, "u2"); err != nil {
		t.Fatal(err)
	}
	if sched.count() != 0 {
		t.Error("notified the sender about their own message")
	}
}

func TestHandleMessageDisabled(t *testing.T) {
	local := testLocal(t)
	if err := local.SetPreferences(store.Preferences{Enabled: false, SoundEnabled: true, BadgeEnabled: true}); err != nil {
		t.Fatal(err)
	}
	sched := &mockScheduler{}
	n := NewNotifier(sched, local, bus.New(), nil)

	conv, msg := incoming()
	if err := n.HandleMessage(context.Background(), conv, msg, "u1"); err != nil {
		t.Fatal(err)
	}
	if sched.count() != 0 {
		t.Error("notification scheduled while disabled")
	}
}

func TestHandleMessageMuted(t *testing.T) {
	local := testLocal(t)
	if err := local.MuteConversation("c1"); err != nil {
		t.Fatal(err)
	}
	sched := &mockScheduler{}
	n := NewNotifier(sched, local, bus.New(), nil)

	conv, msg := incoming()
	if err := n.HandleMessage(context.Background(), conv, msg, "u1"); err != nil {
		t.Fatal(err)
	}
	if sched.count() != 0 {
		t.Error("notification scheduled for muted conversation")
	}

	badge, _ := local.BadgeCount()
	if badge != 0 {
		t.Errorf("badge bumped for muted conversation: %d", badge)
	}
}

func TestHandleMessageSoundPreference(t *testing.T) {
	local := testLocal(t)
	if err := local.SetPreferences(store.Preferences{Enabled: true, SoundEnabled: false, BadgeEnabled: true}); err != nil {
		t.Fatal(err)
	}
	sched := &mockScheduler{}
	n := NewNotifier(sched, local, bus.New(), nil)

	conv, msg := incoming()
	if err := n.HandleMessage(context.Background(), conv, msg, "u1"); err != nil {
		t.Fatal(err)
	}
	if sched.sent[0].Sound {
		t.Error("sound requested despite preference off")
	}
}

func TestHandleMessageUrgent(t *testing.T) {
	sched := &mockScheduler{}
	n := NewNotifier(sched, testLocal(t), bus.New(), nil)

	conv, msg := incoming()
	msg.Urgent = true
	if err := n.HandleMessage(context.Background(), conv, msg, "u1"); err != nil {
		t.Fatal(err)
	}
	if got := sched.sent[0].Title; got != "Urgent: Dr. Alvarez" {
		t.Errorf("title = %q, want urgent prefix", got)
	}
	if !sched.sent[0].Data.Urgent {
		t.Error("tap payload missing urgent flag")
	}
}

func TestHandleMessageLongPreviewMultibyte(t *testing.T) {
	sched := &mockScheduler{}
	n := NewNotifier(sched, testLocal(t), bus.New(), nil)

	conv, msg := incoming()
	msg.Text = strings.Repeat("é", 150)
	if err := n.HandleMessage(context.Background(), conv, msg, "u1"); err != nil {
		t.Fatal(err)
	}

	body := sched.sent[0].Body
	if !utf8.ValidString(body) {
		t.Error("truncated preview is not valid UTF-8")
	}
	if got := utf8.RuneCountInString(body); got != previewLimit {
		t.Errorf("preview length = %d characters, want %d", got, previewLimit)
	}
}

func TestHandleConversationOpened(t *testing.T) {
	local := testLocal(t)
	if err := local.SetBadgeCount(2); err != nil {
		t.Fatal(err)
	}
	n := NewNotifier(&mockScheduler{}, local, bus.New(), nil)

	badge, err := n.HandleConversationOpened("c1")
	if err != nil {
		t.Fatal(err)
	}
	if badge != 1 {
		t.Errorf("badge after open = %d, want 1", badge)
	}

	// Never below zero.
	if _, err := n.HandleConversationOpened("c1"); err != nil {
		t.Fatal(err)
	}
	badge, err = n.HandleConversationOpened("c1")
	if err != nil {
		t.Fatal(err)
	}
	if badge != 0 {
		t.Errorf("badge = %d, want floor 0", badge)
	}
}

func TestMuteUnmute(t *testing.T) {
	local := testLocal(t)
	n := NewNotifier(&mockScheduler{}, local, bus.New(), nil)

	if err := n.Mute("c1"); err != nil {
		t.Fatal(err)
	}
	muted, _ := local.IsMuted("c1")
	if !muted {
		t.Error("Mute did not persist")
	}
	if err := n.Unmute("c1"); err != nil {
		t.Fatal(err)
	}
	muted, _ = local.IsMuted("c1")
	if muted {
		t.Error("Unmute did not persist")
	}
}
