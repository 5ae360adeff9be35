package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kb-assistant-be/pkg/answer"
	"kb-assistant-be/pkg/chat/stream"
	"kb-assistant-be/pkg/upstream"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type outcome struct {
	text  string
	token *string
	err   error
}

// SendMessage validates text, appends the user turn and an empty assistant
// placeholder, then runs one exchange with the answer service and settles
// the placeholder. It blocks until the exchange is settled or abandoned.
//
// Validation failures are returned and leave the session untouched, including
// an exchange in flight. A failed exchange is not an error of SendMessage:
// the failure is recorded as the assistant turn. SendMessage returns once the
// settled conversation has been handed to the store.
func (o *Orchestrator) SendMessage(ctx context.Context, text string) error {
	question := strings.TrimSpace(text)
	if question == "" {
		return ErrEmptyQuestion
	}

	o.mu.Lock()
	if o.state.Busy && !o.opts.InterruptOnSend {
		o.mu.Unlock()
		return ErrBusy
	}

	docs := o.selectedDocsLocked()
	if len(docs) == 0 {
		o.mu.Unlock()
		return ErrNoDocumentsSelected
	}

	token, err := o.creds.AccessToken()
	if err != nil || token == "" {
		o.mu.Unlock()
		return ErrMissingCredential
	}

	// accepted; only now may the exchange in flight be interrupted
	if o.state.Busy {
		o.abandonLocked(true)
	}

	req := answer.Request{
		Question:    question,
		DocumentIDs: docs,
	}
	if o.state.SessionToken != nil {
		sessionID := *o.state.SessionToken
		req.SessionID = &sessionID
	}

	o.lastError = ""
	o.state.AppendUserMessage(question)
	o.state.SetBusy(true)
	gen := o.state.StartAssistantPlaceholder()
	o.setPhaseLocked(PhaseSending)

	exCtx, cancel := context.WithTimeout(ctx, o.opts.AnswerTimeout)
	o.cancelExchange = cancel
	o.emitSnapshotLocked()
	o.mu.Unlock()
	defer cancel()

	spanCtx, span := o.tracer.Start(exCtx, "chat.send")
	span.SetAttributes(
		attribute.Int("chat.documents", len(docs)),
		attribute.Bool("chat.streaming", o.opts.Streaming),
		attribute.Bool("chat.continuation", req.SessionID != nil),
	)
	defer span.End()

	var res outcome
	if o.opts.Streaming {
		res = o.runStream(spanCtx, token, req, gen)
	} else {
		res = o.runAsk(spanCtx, token, req, gen)
	}

	if res.err != nil && !errors.Is(res.err, stream.ErrAbandoned) {
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
	}

	o.finish(ctx, gen, question, res)

	if err := o.Flush(ctx); err != nil {
		o.logger.Warn(module, "Returned before the conversation was saved", map[string]interface{}{
			"user_id": o.creds.CurrentUserID(),
			"error":   err.Error(),
		})
	}
	return nil
}

func (o *Orchestrator) runAsk(ctx context.Context, token string, req answer.Request, gen uint64) outcome {
	o.mu.Lock()
	if o.state.Generation() == gen {
		o.setPhaseLocked(PhaseAwaitingAnswer)
	}
	o.mu.Unlock()

	resp, err := o.answers.Ask(ctx, token, req)
	if err != nil {
		return outcome{err: err}
	}
	return outcome{text: resp.Answer, token: resp.SessionID}
}

func (o *Orchestrator) runStream(ctx context.Context, token string, req answer.Request, gen uint64) outcome {
	src, err := o.answers.Stream(ctx, token, req)
	if err != nil {
		return outcome{err: err}
	}

	o.mu.Lock()
	if o.state.Generation() == gen {
		o.setPhaseLocked(PhaseStreaming)
	}
	o.mu.Unlock()

	apply := func(chunk string) bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		if !o.state.AppendChunk(gen, chunk) {
			return false
		}
		// earlier deletions may have moved the placeholder
		if o.listener != nil {
			o.listener.OnChunk(o.state.PlaceholderIndex(), chunk)
		}
		return true
	}

	res, err := o.consumer.Consume(ctx, src, apply)
	if err != nil {
		return outcome{text: res.Text, err: err}
	}
	return outcome{text: res.Text, token: src.ContinuationToken()}
}

// finish settles the placeholder of generation gen. Stale generations are
// dropped: whoever superseded the exchange already settled the session.
func (o *Orchestrator) finish(ctx context.Context, gen uint64, question string, res outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Generation() != gen {
		return
	}
	defer o.emitSnapshotLocked()

	o.cancelExchange = nil
	o.state.SetBusy(false)

	if !o.state.HasPlaceholder() {
		// the placeholder was deleted while the answer was in flight
		o.setPhaseLocked(PhaseIdle)
		return
	}

	switch {
	case res.err == nil:
		o.state.CompleteAssistant(gen, res.text, res.token)
		o.state.SetFollowUps(o.followups.Suggest(question, res.text))
		o.setPhaseLocked(PhaseIdle)
		return

	case ctx.Err() != nil && errors.Is(res.err, context.Canceled):
		// the caller went away; keep what arrived so far
		o.state.Abandon()
		o.setPhaseLocked(PhaseIdle)
		return
	}

	reason := o.failureReason(res.err)
	o.logger.Warn(module, "Answer exchange failed", map[string]interface{}{
		"user_id": o.creds.CurrentUserID(),
		"error":   res.err.Error(),
	})
	o.setPhaseLocked(PhaseError)
	o.lastError = reason
	o.state.FailAssistant(gen, reason)
	o.setPhaseLocked(PhaseIdle)
}

func (o *Orchestrator) failureReason(err error) string {
	var upErr *upstream.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("No answer within %s. Please try again.", o.opts.AnswerTimeout)
	case errors.As(err, &upErr) && upErr.Kind == upstream.KindTimeout:
		return fmt.Sprintf("No answer within %s. Please try again.", o.opts.AnswerTimeout)
	case errors.As(err, &upErr) && upErr.Kind == upstream.KindUnauthorized && upErr.Detail == "":
		return "Not authenticated. Please sign in again."
	}
	return err.Error()
}

// Cancel abandons the exchange in flight. Text streamed so far is kept; an
// empty placeholder becomes a cancellation note. It reports whether anything
// was cancelled.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.state.Busy {
		return false
	}
	o.abandonLocked(true)
	o.emitSnapshotLocked()
	return true
}
