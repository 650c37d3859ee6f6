package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/caresync/caresync/internal/bus"
	"github.com/caresync/caresync/internal/docstore"
	"github.com/caresync/caresync/internal/session"
)

type mockWatchStore struct {
	mu       sync.Mutex
	messages map[string][]docstore.Message
	deliver  func([]docstore.Conversation)
}

func (m *mockWatchStore) SubscribeConversations(_ context.Context, _ string, fn func([]docstore.Conversation)) (docstore.Subscription, error) {
	m.mu.Lock()
	m.deliver = fn
	m.mu.Unlock()
	return nopSub{}, nil
}

func (m *mockWatchStore) FetchOrdered(_ context.Context, conversationID string) ([]docstore.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[conversationID], nil
}

func (m *mockWatchStore) push(convs []docstore.Conversation) {
	m.mu.Lock()
	fn := m.deliver
	m.mu.Unlock()
	fn(convs)
}

type nopSub struct{}

func (nopSub) Cancel() {}

func testWatcher(t *testing.T, sched *mockScheduler) (*Watcher, *mockWatchStore) {
	t.Helper()
	local := testLocal(t)
	ws := &mockWatchStore{messages: map[string][]docstore.Message{}}
	notifier := NewNotifier(sched, local, bus.New(), nil)
	sess, err := session.New("main", "u1")
	if err != nil {
		t.Fatal(err)
	}
	w := NewWatcher(ws, notifier, local, sess, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w, ws
}

func TestWatcherPrimesNewConversationsSilently(t *testing.T) {
	sched := &mockScheduler{}
	_, ws := testWatcher(t, sched)

	ws.messages["c1"] = []docstore.Message{
		{ID: "m1", ConversationID: "c1", SenderID: "u2", Text: "old history"},
	}
	ws.push([]docstore.Conversation{
		{ID: "c1", Participants: []string{"u1", "u2"}, LastUpdated: time.Now()},
	})

	if sched.count() != 0 {
		t.Error("fresh profile replayed history as notifications")
	}
}

func TestWatcherNotifiesOnNewActivity(t *testing.T) {
	sched := &mockScheduler{}
	_, ws := testWatcher(t, sched)

	first := time.Now().Add(-time.Minute)
	ws.push([]docstore.Conversation{
		{ID: "c1", Participants: []string{"u1", "u2"}, LastUpdated: first},
	})

	ws.messages["c1"] = []docstore.Message{
		{ID: "m1", ConversationID: "c1", SenderID: "u2", Text: "hello"},
		{ID: "m2", ConversationID: "c1", SenderID: "u2", Text: "are you there"},
	}
	ws.push([]docstore.Conversation{
		{ID: "c1", Participants: []string{"u1", "u2"}, Title: "Clinic", LastUpdated: first.Add(time.Minute)},
	})

	if sched.count() != 1 {
		t.Fatalf("scheduled = %d, want 1", sched.count())
	}
	if sched.sent[0].Body != "are you there" {
		t.Errorf("body = %q, want latest message", sched.sent[0].Body)
	}
}

func TestWatcherSkipsUnchangedConversations(t *testing.T) {
	sched := &mockScheduler{}
	_, ws := testWatcher(t, sched)

	stamp := time.Now().Add(-time.Minute)
	convs := []docstore.Conversation{
		{ID: "c1", Participants: []string{"u1", "u2"}, LastUpdated: stamp},
	}
	ws.push(convs)

	ws.messages["c1"] = []docstore.Message{
		{ID: "m1", ConversationID: "c1", SenderID: "u2", Text: "hello"},
	}
	// Same lastUpdated again: nothing new happened.
	ws.push(convs)

	if sched.count() != 0 {
		t.Error("renotified an unchanged conversation")
	}
}

func TestWatcherSkipsOwnActivity(t *testing.T) {
	sched := &mockScheduler{}
	_, ws := testWatcher(t, sched)

	first := time.Now().Add(-time.Minute)
	ws.push([]docstore.Conversation{
		{ID: "c1", Participants: []string{"u1", "u2"}, LastUpdated: first},
	})

	ws.messages["c1"] = []docstore.Message{
		{ID: "m1", ConversationID: "c1", SenderID: "u1", Text: "my own send"},
	}
	ws.push([]docstore.Conversation{
		{ID: "c1", Participants: []string{"u1", "u2"}, LastUpdated: first.Add(time.Minute)},
	})

	if sched.count() != 0 {
		t.Error("notified the user about their own message")
	}
}

func TestWatcherRetriesAfterScheduleFailure(t *testing.T) {
	sched := &mockScheduler{fail: context.DeadlineExceeded}
	_, ws := testWatcher(t, sched)

	first := time.Now().Add(-time.Minute)
	ws.push([]docstore.Conversation{
		{ID: "c1", Participants: []string{"u1", "u2"}, LastUpdated: first},
	})

	ws.messages["c1"] = []docstore.Message{
		{ID: "m1", ConversationID: "c1", SenderID: "u2", Text: "hello"},
	}
	update := []docstore.Conversation{
		{ID: "c1", Participants: []string{"u1", "u2"}, LastUpdated: first.Add(time.Minute)},
	}
	ws.push(update)
	if sched.count() != 0 {
		t.Fatal("schedule should have failed")
	}

	// The checkpoint was not advanced; the next snapshot retries.
	sched.mu.Lock()
	sched.fail = nil
	sched.mu.Unlock()
	ws.push(update)

	if sched.count() != 1 {
		t.Fatalf("scheduled after retry = %d, want 1", sched.count())
	}
}
