// Package orchestrator drives one chat session: it validates sends, runs the
// exchange with the answer service, applies the outcome to the session and
// keeps the conversation store in step.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"kb-assistant-be/internal/constant"
	"kb-assistant-be/internal/entity"
	"kb-assistant-be/internal/pkg/logger"
	"kb-assistant-be/pkg/chat/followup"
	"kb-assistant-be/pkg/chat/history"
	"kb-assistant-be/pkg/chat/state"
	"kb-assistant-be/pkg/chat/stream"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const module = "ChatOrchestrator"

var (
	ErrEmptyQuestion       = errors.New("question is empty")
	ErrBusy                = errors.New("an answer is already in progress")
	ErrNoDocumentsSelected = errors.New("select at least one document")
	ErrMissingCredential   = errors.New("not authenticated, please sign in again")
	ErrEmptyMessage        = errors.New("message cannot be empty")

	ErrMessageIndex   = state.ErrMessageIndex
	ErrNotUserMessage = state.ErrNotUserMessage
	ErrNotEditing     = state.ErrNotEditing
)

type Options struct {
	// Streaming selects the incremental delivery mode of the answer service.
	Streaming bool
	// InterruptOnSend lets a send abandon the exchange in flight instead of
	// being rejected with ErrBusy.
	InterruptOnSend bool
	// AnswerTimeout is the ceiling after which a pending exchange fails.
	AnswerTimeout time.Duration
	// PersistTimeout bounds each conversation store round trip.
	PersistTimeout time.Duration
	// Location is the viewer's time zone for history grouping.
	Location *time.Location
	Now      func() time.Time
}

func (o *Options) withDefaults() {
	if o.AnswerTimeout <= 0 {
		o.AnswerTimeout = constant.DefaultAnswerTimeout
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = constant.DefaultPersistTimeout
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Orchestrator owns one SessionState. Every state access happens under mu,
// which makes the orchestrator the single actor the session needs; the
// answer request, stream reads and store round trips run outside it.
type Orchestrator struct {
	creds     CredentialProvider
	answers   AnswerClient
	documents DocumentClient
	syncer    *history.Syncer
	followups followup.Generator
	consumer  *stream.Consumer
	listener  Listener
	logger    logger.ILogger
	tracer    trace.Tracer
	opts      Options

	mu             sync.Mutex
	state          *state.Session
	phase          Phase
	lastError      string
	cancelExchange context.CancelFunc
	// bumped whenever the live conversation is replaced
	conversationEpoch uint64

	store storeQueue
}

func New(
	creds CredentialProvider,
	answers AnswerClient,
	documents DocumentClient,
	syncer *history.Syncer,
	followups followup.Generator,
	opts Options,
	log logger.ILogger,
) *Orchestrator {
	opts.withDefaults()
	if followups == nil {
		followups = followup.None{}
	}

	o := &Orchestrator{
		creds:     creds,
		answers:   answers,
		documents: documents,
		syncer:    syncer,
		followups: followups,
		consumer:  stream.NewConsumer(),
		logger:    log,
		tracer:    otel.Tracer("chat-orchestrator"),
		opts:      opts,
		state:     state.New(),
		phase:     PhaseIdle,
	}
	o.state.OnMessagesChanged = o.persist
	return o
}

// SetListener installs the receiver of outbound events; nil removes it.
func (o *Orchestrator) SetListener(l Listener) {
	o.mu.Lock()
	o.listener = l
	o.mu.Unlock()
}

// Init loads the document list and the user's conversation history.
func (o *Orchestrator) Init(ctx context.Context) error {
	if err := o.RefreshDocuments(ctx); err != nil {
		return err
	}
	if _, err := o.syncer.LoadAll(ctx, o.creds.CurrentUserID()); err != nil {
		o.logger.Warn(module, "Failed to load conversation history", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

func (o *Orchestrator) UserID() uuid.UUID {
	return o.creds.CurrentUserID()
}

func (o *Orchestrator) Snapshot() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.viewLocked()
}

func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) SetDraft(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.SetDraft(text)
}

func (o *Orchestrator) SetHovered(index int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.SetHovered(index)
	o.emitSnapshotLocked()
}

// EditMessage rewrites a user message in place. It applies immediately, even
// while an answer is in flight.
func (o *Orchestrator) EditMessage(index int, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.state.EditMessage(index, content); err != nil {
		return err
	}
	o.emitSnapshotLocked()
	return nil
}

func (o *Orchestrator) DeleteMessage(index int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.state.DeleteMessage(index); err != nil {
		return err
	}
	o.emitSnapshotLocked()
	return nil
}

func (o *Orchestrator) StartEditing(index int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.state.StartEditing(index); err != nil {
		return err
	}
	o.emitSnapshotLocked()
	return nil
}

func (o *Orchestrator) SetEditingText(text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.SetEditingText(text)
}

// SaveEditing commits the edit buffer, optionally replacing it with content.
func (o *Orchestrator) SaveEditing(content *string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if content != nil {
		if err := o.state.SetEditingText(*content); err != nil {
			return err
		}
	}
	if strings.TrimSpace(o.state.EditingText) == "" && o.state.EditingIndex >= 0 {
		return ErrEmptyMessage
	}
	if err := o.state.SaveEditing(); err != nil {
		return err
	}
	o.emitSnapshotLocked()
	return nil
}

func (o *Orchestrator) CancelEditing() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.CancelEditing()
	o.emitSnapshotLocked()
}

func (o *Orchestrator) setPhaseLocked(p Phase) {
	if o.phase == p {
		return
	}
	o.logger.Debug(module, "Phase changed", map[string]interface{}{
		"from": o.phase.String(),
		"to":   p.String(),
	})
	o.phase = p
}

func (o *Orchestrator) viewLocked() View {
	return View{
		Snapshot:  o.state.Snapshot(),
		Phase:     o.phase,
		LastError: o.lastError,
	}
}

func (o *Orchestrator) emitSnapshotLocked() {
	if o.listener != nil {
		o.listener.OnSnapshot(o.viewLocked())
	}
}

// abandonLocked stops the exchange in flight, if any. With keep set the
// placeholder is kept (partial text or a cancellation note) and persisted.
func (o *Orchestrator) abandonLocked(keep bool) {
	if o.cancelExchange != nil {
		o.cancelExchange()
		o.cancelExchange = nil
	}
	if keep {
		o.state.Abandon()
	}
	o.setPhaseLocked(PhaseIdle)
}

func (o *Orchestrator) selectedDocsLocked() []entity.DocumentID {
	return o.state.Selection.Selected()
}
