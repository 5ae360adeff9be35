package orchestrator

import (
	"context"
	"sync"

	"kb-assistant-be/internal/entity"
	"kb-assistant-be/pkg/chat/state"

	"github.com/google/uuid"
)

// storeJob is one conversation store round trip: a save of conv, or a
// delete of deleteID when conv is nil.
type storeJob struct {
	epoch    uint64
	conv     *entity.Conversation
	deleteID uuid.UUID
	done     chan error
}

// storeQueue runs the session's store round trips one at a time, in the
// order the session produced them, outside the session lock.
type storeQueue struct {
	mu      sync.Mutex
	jobs    []storeJob
	running bool
	idle    chan struct{}

	// last id minted for a conversation epoch; only the drainer touches these
	mintedEpoch uint64
	mintedID    uuid.UUID
}

// persist is the message-change hook. It runs under mu, inside the mutator
// that changed the messages, and only queues the save. While an answer
// placeholder is open the save is deferred; the completion save carries
// every change made meanwhile.
func (o *Orchestrator) persist(snap state.Snapshot) {
	if o.state.HasPlaceholder() || len(snap.Messages) == 0 {
		return
	}
	o.enqueueLocked(storeJob{
		epoch: o.conversationEpoch,
		conv:  snap.Conversation(o.creds.CurrentUserID()),
	})
}

// enqueueLocked must be called with mu held so jobs keep mutation order.
func (o *Orchestrator) enqueueLocked(job storeJob) {
	q := &o.store
	q.mu.Lock()
	defer q.mu.Unlock()

	q.jobs = append(q.jobs, job)
	if !q.running {
		q.running = true
		q.idle = make(chan struct{})
		go o.drainStore()
	}
}

func (o *Orchestrator) drainStore() {
	q := &o.store
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.running = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		if job.conv == nil {
			job.done <- o.runDelete(job)
			continue
		}
		o.runSave(job)
	}
}

func (o *Orchestrator) runSave(job storeJob) {
	q := &o.store
	conv := job.conv
	// an earlier save of this conversation already created the record
	if conv.Id == uuid.Nil && q.mintedEpoch == job.epoch && q.mintedID != uuid.Nil {
		conv.Id = q.mintedID
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.opts.PersistTimeout)
	defer cancel()

	userID := o.creds.CurrentUserID()
	id, err := o.syncer.Save(ctx, userID, conv)
	if err != nil {
		o.logger.Error(module, "Failed to persist conversation", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return
	}
	q.mintedEpoch, q.mintedID = job.epoch, id

	o.mu.Lock()
	if o.conversationEpoch == job.epoch {
		o.state.AssignConversationID(id)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) runDelete(job storeJob) error {
	q := &o.store
	if q.mintedID == job.deleteID {
		q.mintedID = uuid.Nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.opts.PersistTimeout)
	defer cancel()
	return o.syncer.Delete(ctx, o.creds.CurrentUserID(), job.deleteID)
}

// Flush waits until every store round trip queued so far has finished.
func (o *Orchestrator) Flush(ctx context.Context) error {
	q := &o.store
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
