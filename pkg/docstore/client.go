// Package docstore is the client of the document store service.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"kb-assistant-be/internal/entity"
	"kb-assistant-be/internal/pkg/logger"
	"kb-assistant-be/pkg/upstream"
)

const serviceName = "document service"

const (
	listPath   = "/api/documents"
	uploadPath = "/api/upload"
	deletePath = "/api/documents/"
)

type Client struct {
	BaseURL string
	Client  *http.Client
	logger  logger.ILogger
}

func NewClient(baseURL string, log logger.ILogger) *Client {
	return &Client{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: 5 * time.Minute,
		},
		logger: log,
	}
}

type listResponse struct {
	Documents []entity.DocumentRef `json:"documents"`
}

// uploadResponse accepts both the flat document_id field and the nested
// document object returned by newer servers.
type uploadResponse struct {
	DocumentID entity.DocumentID `json:"document_id"`
	Document   *struct {
		Id       entity.DocumentID `json:"id"`
		Filename string            `json:"filename"`
	} `json:"document"`
}

func (c *Client) List(ctx context.Context, token string) ([]entity.DocumentRef, error) {
	req, err := upstream.NewRequest(ctx, http.MethodGet, upstream.JoinURL(c.BaseURL, listPath), token, nil)
	if err != nil {
		return nil, err
	}

	resp, err := upstream.Do(c.Client, serviceName, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, upstream.Malformed(serviceName, err)
	}
	if out.Documents == nil {
		out.Documents = []entity.DocumentRef{}
	}
	return out.Documents, nil
}

// Upload sends one file as the multipart field "file" and returns the new
// document as far as the response describes it.
func (c *Client) Upload(ctx context.Context, token, filename string, content io.Reader) (entity.DocumentRef, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return entity.DocumentRef{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return entity.DocumentRef{}, fmt.Errorf("read upload: %w", err)
	}
	if err := form.Close(); err != nil {
		return entity.DocumentRef{}, fmt.Errorf("close form: %w", err)
	}

	req, err := upstream.NewRequest(ctx, http.MethodPost, upstream.JoinURL(c.BaseURL, uploadPath), token, &body)
	if err != nil {
		return entity.DocumentRef{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := upstream.Do(c.Client, serviceName, req)
	if err != nil {
		return entity.DocumentRef{}, err
	}
	defer resp.Body.Close()

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return entity.DocumentRef{}, upstream.Malformed(serviceName, err)
	}

	doc := entity.DocumentRef{Id: out.DocumentID, Filename: filename}
	if out.Document != nil {
		if doc.Id == "" {
			doc.Id = out.Document.Id
		}
		if out.Document.Filename != "" {
			doc.Filename = out.Document.Filename
		}
	}
	if doc.Id == "" {
		return entity.DocumentRef{}, upstream.Malformed(serviceName, fmt.Errorf("upload response has no document id"))
	}

	c.logger.Info("DocumentClient", "Document uploaded", map[string]interface{}{"document_id": doc.Id, "filename": doc.Filename})
	return doc, nil
}

func (c *Client) Delete(ctx context.Context, token string, id entity.DocumentID) error {
	endpoint := upstream.JoinURL(c.BaseURL, deletePath+url.PathEscape(id.String()))
	req, err := upstream.NewRequest(ctx, http.MethodDelete, endpoint, token, nil)
	if err != nil {
		return err
	}

	resp, err := upstream.Do(c.Client, serviceName, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
