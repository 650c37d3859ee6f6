// Package outbox implements the optimistic send pipeline: an outgoing
// message is rendered immediately with a client-generated correlation
// id, dispatched to the document store, and resolved to sent or failed.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/caresync/caresync/internal/bus"
	"github.com/caresync/caresync/internal/docstore"
	"github.com/caresync/caresync/internal/session"
	"github.com/caresync/caresync/internal/timeline"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrEmptyDraft marks a send attempt with neither text nor
	// attachments. Call sites treat it as a no-op, not a failure.
	ErrEmptyDraft = errors.New("draft has neither text nor attachments")

	// ErrNotRetryable is returned when retrying a message that is not
	// in the failed state.
	ErrNotRetryable = errors.New("message is not in failed state")
)

// Creator is the slice of the document store the pipeline needs.
type Creator interface {
	Create(ctx context.Context, conversationID string, msg docstore.Message) (docstore.Message, error)
}

// Draft is the user's outgoing payload.
type Draft struct {
	Text        string
	Attachments []docstore.Attachment
}

// SendResult is the payload for send_ack and send_failed events.
type SendResult struct {
	ConversationID string
	ClientID       string
	ServerID       string
	Err            string
}

// Pipeline turns drafts into pending timeline entries and resolves
// their delivery state. One pipeline serves one open conversation.
type Pipeline struct {
	conversationID string
	creator        Creator
	rec            *timeline.Reconciler
	sess           *session.Session
	bus            *bus.Bus
	logger         *zap.Logger

	// Guards the failed->sending transition so a double-tapped retry
	// cannot dispatch the same clientId twice concurrently.
	mu sync.Mutex
}

// NewPipeline creates a send pipeline for one conversation.
func NewPipeline(conversationID string, creator Creator, rec *timeline.Reconciler, sess *session.Session, b *bus.Bus, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		conversationID: conversationID,
		creator:        creator,
		rec:            rec,
		sess:           sess,
		bus:            b,
		logger:         logger,
	}
}

// Send registers an optimistic entry for the draft and dispatches the
// create. The entry is visible on the timeline before the store call
// resolves; on failure it stays visible in failed state for retry.
func (p *Pipeline) Send(ctx context.Context, draft Draft) (docstore.Message, error) {
	text := strings.TrimSpace(draft.Text)
	if text == "" && len(draft.Attachments) == 0 {
		return docstore.Message{}, ErrEmptyDraft
	}

	local := docstore.Message{
		ConversationID: p.conversationID,
		SenderID:       p.sess.UserID,
		ClientID:       uuid.NewString(),
		Text:           text,
		Attachments:    draft.Attachments,
		CreatedAt:      time.Now(),
		ReadBy:         []string{p.sess.UserID},
		Status:         docstore.StatusSending,
	}
	if err := p.rec.AddPending(local); err != nil {
		return docstore.Message{}, err
	}
	p.bus.Emit(bus.KindMessageUpserted, SendResult{
		ConversationID: p.conversationID,
		ClientID:       local.ClientID,
	})

	return p.dispatch(ctx, local)
}

// Retry re-dispatches a failed entry with its original clientId and
// content, so the eventual persisted copy still reconciles against the
// same pending entry no matter how many attempts were needed.
func (p *Pipeline) Retry(ctx context.Context, clientID string) (docstore.Message, error) {
	p.mu.Lock()
	local, ok := p.rec.PendingByClientID(clientID)
	if !ok || local.Status != docstore.StatusFailed {
		p.mu.Unlock()
		return docstore.Message{}, fmt.Errorf("retry %s: %w", clientID, ErrNotRetryable)
	}
	p.rec.SetPendingStatus(clientID, docstore.StatusSending)
	p.mu.Unlock()

	local.Status = docstore.StatusSending
	return p.dispatch(ctx, local)
}

func (p *Pipeline) dispatch(ctx context.Context, local docstore.Message) (docstore.Message, error) {
	persisted, err := p.creator.Create(ctx, p.conversationID, local)
	if err != nil {
		p.rec.SetPendingStatus(local.ClientID, docstore.StatusFailed)
		p.logger.Warn("send failed",
			zap.String("conversation_id", p.conversationID),
			zap.String("client_id", local.ClientID),
			zap.Error(err))
		p.bus.Emit(bus.KindMessageSendFailed, SendResult{
			ConversationID: p.conversationID,
			ClientID:       local.ClientID,
			Err:            err.Error(),
		})
		return docstore.Message{}, fmt.Errorf("send message: %w", err)
	}

	// The pending entry may already be retired if the subscription
	// snapshot carrying the persisted copy won the race.
	p.rec.SetPendingStatus(local.ClientID, docstore.StatusSent)
	p.logger.Info("message sent",
		zap.String("conversation_id", p.conversationID),
		zap.String("client_id", local.ClientID),
		zap.String("server_id", persisted.ID))
	p.bus.Emit(bus.KindMessageSendAck, SendResult{
		ConversationID: p.conversationID,
		ClientID:       local.ClientID,
		ServerID:       persisted.ID,
	})
	persisted.Status = docstore.StatusSent
	return persisted, nil
}
