package conversation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/caresync/caresync/internal/bus"
	"github.com/caresync/caresync/internal/notify"
	"github.com/caresync/caresync/internal/presence"
	"github.com/caresync/caresync/internal/readtrack"
	"github.com/caresync/caresync/internal/session"
	"github.com/caresync/caresync/internal/store"
)

type nopScheduler struct{}

func (nopScheduler) Schedule(context.Context, notify.Notification) error { return nil }

func testManager(t *testing.T, fs *fakeStore) (*Manager, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	sess, err := session.New("main", "u1")
	if err != nil {
		t.Fatal(err)
	}
	typing := presence.NewTracker(fs, b, nil)
	t.Cleanup(typing.Close)
	reads := readtrack.NewTracker(fs, db, b, nil)
	notifier := notify.NewNotifier(nopScheduler{}, db, b, nil)
	m := NewManager(fs, typing, reads, notifier, sess, b, nil)
	t.Cleanup(m.CloseAll)
	return m, db
}

func TestOpenLowersBadge(t *testing.T) {
	fs := newFakeStore()
	m, db := testManager(t, fs)
	if err := db.SetBadgeCount(3); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	badge, err := db.BadgeCount()
	if err != nil {
		t.Fatal(err)
	}
	if badge != 2 {
		t.Errorf("badge after open = %d, want 2", badge)
	}

	// Re-entering an already-open conversation still counts.
	if _, err := m.Open(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	badge, _ = db.BadgeCount()
	if badge != 1 {
		t.Errorf("badge after reopen = %d, want 1", badge)
	}
}

func TestOpenBadgeFloorsAtZero(t *testing.T) {
	fs := newFakeStore()
	m, db := testManager(t, fs)

	if _, err := m.Open(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}

	badge, err := db.BadgeCount()
	if err != nil {
		t.Fatal(err)
	}
	if badge != 0 {
		t.Errorf("badge = %d, want floor 0", badge)
	}
}

func TestManagerCloseAll(t *testing.T) {
	fs := newFakeStore()
	m, _ := testManager(t, fs)

	if _, err := m.Open(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Open(context.Background(), "c2"); err != nil {
		t.Fatal(err)
	}
	m.CloseAll()

	fs.mu.Lock()
	attached := len(fs.msgSubs) + len(fs.convSubs)
	fs.mu.Unlock()
	if attached != 0 {
		t.Errorf("%d listeners still attached after CloseAll", attached)
	}
}
