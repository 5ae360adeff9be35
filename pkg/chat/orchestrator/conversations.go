package orchestrator

import (
	"context"

	"kb-assistant-be/pkg/chat/history"

	"github.com/google/uuid"
)

// NewConversation starts a fresh, unsaved conversation. The selection is
// kept; an answer in flight is abandoned and kept in the conversation it
// belonged to.
func (o *Orchestrator) NewConversation() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Busy {
		o.abandonLocked(true)
	}
	o.state.Reset()
	o.conversationEpoch++
	o.lastError = ""
	o.setPhaseLocked(PhaseIdle)
	o.emitSnapshotLocked()
}

// OpenConversation replaces the live session with a saved conversation of the
// current user. Opening does not re-save the conversation.
func (o *Orchestrator) OpenConversation(ctx context.Context, id uuid.UUID) error {
	conv, err := o.syncer.Get(ctx, o.creds.CurrentUserID(), id)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Busy {
		o.abandonLocked(true)
	}
	o.state.Load(conv)
	o.conversationEpoch++
	o.lastError = ""
	o.setPhaseLocked(PhaseIdle)
	o.emitSnapshotLocked()
	return nil
}

// DeleteConversation removes a saved conversation of the current user. When
// it is the live one, the session is reset first. The delete is queued
// behind the saves already pending, so none of them can recreate it.
func (o *Orchestrator) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	done := make(chan error, 1)

	o.mu.Lock()
	if current := o.state.ConversationID; current != nil && *current == id {
		o.abandonLocked(false)
		o.state.Reset()
		o.conversationEpoch++
		o.lastError = ""
		o.emitSnapshotLocked()
	}
	o.enqueueLocked(storeJob{epoch: o.conversationEpoch, deleteID: id, done: done})
	o.mu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// History returns the user's conversations grouped by recency in the
// configured time zone, filtered by query.
func (o *Orchestrator) History(ctx context.Context, query string) ([]history.Group, error) {
	now := o.opts.Now().In(o.opts.Location)
	return o.syncer.History(ctx, o.creds.CurrentUserID(), query, now)
}
