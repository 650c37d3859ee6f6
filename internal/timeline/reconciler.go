// Package timeline merges the authoritative ordered snapshot stream
// with locally-pending optimistic messages, so a conversation view never
// shows a duplicate and never drops a pending send while waiting for
// server confirmation.
package timeline

import (
	"fmt"
	"sync"

	"github.com/caresync/caresync/internal/bus"
	"github.com/caresync/caresync/internal/docstore"
	"go.uber.org/zap"
)

// Update is the payload published on timeline.updated events.
type Update struct {
	ConversationID string
	Confirmed      int
	Pending        int
}

// Reconciler holds the rendered state for one conversation. Confirmed
// messages come from subscription snapshots; pending entries are added
// by the send pipeline and retired once a snapshot carries their
// clientId.
type Reconciler struct {
	conversationID string
	bus            *bus.Bus
	logger         *zap.Logger

	mu      sync.Mutex
	server  []docstore.Message
	pending []docstore.Message
}

// New creates a reconciler for a conversation.
func New(conversationID string, b *bus.Bus, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		conversationID: conversationID,
		bus:            b,
		logger:         logger,
	}
}

// AddPending registers an optimistic entry. At most one non-retired
// entry may share a clientId; a second registration is rejected.
func (r *Reconciler) AddPending(msg docstore.Message) error {
	if msg.ClientID == "" {
		return fmt.Errorf("pending message without client id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.pending {
		if p.ClientID == msg.ClientID {
			return fmt.Errorf("pending message %s already registered", msg.ClientID)
		}
	}
	r.pending = append(r.pending, msg)
	r.publishLocked()
	return nil
}

// SetPendingStatus moves a pending entry between sending/sent/failed.
// Returns false if no such entry remains (already retired).
func (r *Reconciler) SetPendingStatus(clientID string, status docstore.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.pending {
		if r.pending[i].ClientID == clientID {
			r.pending[i].Status = status
			r.publishLocked()
			return true
		}
	}
	return false
}

// PendingByClientID returns a copy of the pending entry, if present.
func (r *Reconciler) PendingByClientID(clientID string) (docstore.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.pending {
		if p.ClientID == clientID {
			return p, true
		}
	}
	return docstore.Message{}, false
}

// ApplySnapshot replaces the confirmed half with the store's snapshot
// and retires every pending entry whose clientId the snapshot carries.
// The previous rendered list is replaced wholesale.
func (r *Reconciler) ApplySnapshot(snap []docstore.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	serverIDs := make(map[string]struct{}, len(snap))
	for _, m := range snap {
		if m.ClientID != "" {
			serverIDs[m.ClientID] = struct{}{}
		}
	}

	retained := r.pending[:0]
	for _, p := range r.pending {
		if _, confirmed := serverIDs[p.ClientID]; !confirmed {
			retained = append(retained, p)
		}
	}
	r.pending = retained
	r.server = snap
	r.publishLocked()
}

// Timeline returns the rendered list: confirmed snapshot followed by
// the still-unconfirmed pending entries, each half already ordered.
func (r *Reconciler) Timeline() []docstore.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]docstore.Message, 0, len(r.server)+len(r.pending))
	out = append(out, r.server...)
	out = append(out, r.pending...)
	return out
}

// Pending returns a copy of the unconfirmed entries.
func (r *Reconciler) Pending() []docstore.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]docstore.Message, len(r.pending))
	copy(out, r.pending)
	return out
}

// DiscardPending drops all pending entries. Called on teardown: pending
// state is in-memory only and never crash-durable.
func (r *Reconciler) DiscardPending() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) == 0 {
		return
	}
	r.pending = nil
	r.publishLocked()
}

func (r *Reconciler) publishLocked() {
	if r.bus == nil {
		return
	}
	r.bus.Emit(bus.KindTimelineUpdated, Update{
		ConversationID: r.conversationID,
		Confirmed:      len(r.server),
		Pending:        len(r.pending),
	})
}
