package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"

	"kb-assistant-be/internal/entity"
)

// RefreshDocuments reloads the document list and prunes the selection to it.
// The first successful refresh selects every document.
func (o *Orchestrator) RefreshDocuments(ctx context.Context) error {
	token, err := o.creds.AccessToken()
	if err != nil || token == "" {
		return ErrMissingCredential
	}

	docs, err := o.documents.List(ctx, token)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Selection.Refresh(docs)
	o.emitSnapshotLocked()
	return nil
}

func (o *Orchestrator) ToggleDocument(id entity.DocumentID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.state.Selection.Toggle(id); err != nil {
		return err
	}
	o.emitSnapshotLocked()
	return nil
}

func (o *Orchestrator) SelectAllDocuments() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Selection.SelectAll()
	o.emitSnapshotLocked()
}

func (o *Orchestrator) ClearSelection() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Selection.Clear()
	o.emitSnapshotLocked()
}

// UploadDocument stores a new document, refreshes the list and adds the new
// document to the selection. It is refused while an answer is in flight.
func (o *Orchestrator) UploadDocument(ctx context.Context, filename string, content io.Reader) (entity.DocumentRef, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return entity.DocumentRef{}, fmt.Errorf("upload document: filename is empty")
	}

	o.mu.Lock()
	busy := o.state.Busy
	o.mu.Unlock()
	if busy {
		return entity.DocumentRef{}, ErrBusy
	}

	token, err := o.creds.AccessToken()
	if err != nil || token == "" {
		return entity.DocumentRef{}, ErrMissingCredential
	}

	doc, err := o.documents.Upload(ctx, token, filename, content)
	if err != nil {
		return entity.DocumentRef{}, fmt.Errorf("upload document: %w", err)
	}
	if doc.Filename == "" {
		doc.Filename = filename
	}

	docs, listErr := o.documents.List(ctx, token)

	o.mu.Lock()
	defer o.mu.Unlock()
	if listErr != nil {
		o.logger.Warn(module, "Failed to refresh documents after upload", map[string]interface{}{
			"document_id": doc.Id,
			"error":       listErr.Error(),
		})
	} else {
		o.state.Selection.Refresh(docs)
	}
	o.state.Selection.AdoptUploaded(doc)
	o.emitSnapshotLocked()

	o.logger.Info(module, "Document uploaded", map[string]interface{}{
		"user_id":     o.creds.CurrentUserID(),
		"document_id": doc.Id,
		"filename":    doc.Filename,
	})
	return doc, nil
}

// DeleteDocument removes a document from the store and from the selection.
func (o *Orchestrator) DeleteDocument(ctx context.Context, id entity.DocumentID) error {
	token, err := o.creds.AccessToken()
	if err != nil || token == "" {
		return ErrMissingCredential
	}

	if err := o.documents.Delete(ctx, token, id); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return o.RefreshDocuments(ctx)
}
