// Package answer talks to the question-answering service.
package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"kb-assistant-be/internal/entity"
	"kb-assistant-be/internal/pkg/logger"
	"kb-assistant-be/pkg/upstream"
)

const (
	serviceName = "answer service"

	// SessionHeader carries the continuation token of a streamed answer,
	// since the body is plain text.
	SessionHeader = "X-Session-ID"

	streamReadSize = 4 << 10
)

type Request struct {
	Question    string              `json:"question"`
	DocumentIDs []entity.DocumentID `json:"document_ids"`
	SessionID   *string             `json:"session_id,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
}

type Response struct {
	Answer    string   `json:"answer"`
	SessionID *string  `json:"session_id,omitempty"`
	Sources   []string `json:"sources,omitempty"`
}

type Client struct {
	BaseURL  string
	ChatPath string
	Client   *http.Client
	logger   logger.ILogger
}

func NewClient(baseURL, chatPath string, log logger.ILogger) *Client {
	return &Client{
		BaseURL:  baseURL,
		ChatPath: chatPath,
		Client: &http.Client{
			Timeout: 5 * time.Minute,
		},
		logger: log,
	}
}

// Ask sends one question and waits for the whole answer.
func (c *Client) Ask(ctx context.Context, token string, req Request) (*Response, error) {
	req.Stream = false
	httpReq, err := c.newRequest(ctx, token, req, "application/json")
	if err != nil {
		return nil, err
	}

	resp, err := upstream.Do(c.Client, serviceName, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, upstream.Malformed(serviceName, err)
	}

	c.logger.Debug("AnswerClient", "Answer received", map[string]interface{}{
		"documents":   len(req.DocumentIDs),
		"answer_len":  len(out.Answer),
		"has_session": out.SessionID != nil,
	})
	return &out, nil
}

// Stream sends one question and returns the open answer body. The caller
// must Close it.
func (c *Client) Stream(ctx context.Context, token string, req Request) (*Stream, error) {
	req.Stream = true
	httpReq, err := c.newRequest(ctx, token, req, "text/plain")
	if err != nil {
		return nil, err
	}

	resp, err := upstream.Do(c.Client, serviceName, httpReq)
	if err != nil {
		return nil, err
	}

	s := &Stream{body: resp.Body, buf: make([]byte, streamReadSize)}
	if id := resp.Header.Get(SessionHeader); id != "" {
		s.SessionID = &id
	}
	return s, nil
}

func (c *Client) newRequest(ctx context.Context, token string, req Request, accept string) (*http.Request, error) {
	if req.DocumentIDs == nil {
		req.DocumentIDs = []entity.DocumentID{}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := upstream.NewRequest(ctx, http.MethodPost, upstream.JoinURL(c.BaseURL, c.ChatPath), token, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	return httpReq, nil
}

// Stream is an open streamed answer. Chunk boundaries carry no meaning.
type Stream struct {
	SessionID *string

	body io.ReadCloser
	buf  []byte
}

// Next returns the next raw chunk, or io.EOF at the end of the answer.
func (s *Stream) Next() ([]byte, error) {
	n, err := s.body.Read(s.buf)
	var chunk []byte
	if n > 0 {
		chunk = append([]byte(nil), s.buf[:n]...)
	}
	if err != nil && err != io.EOF {
		return chunk, upstream.Network(serviceName, err)
	}
	return chunk, err
}

// ContinuationToken is the session id announced in the response headers.
func (s *Stream) ContinuationToken() *string {
	return s.SessionID
}

func (s *Stream) Close() error {
	return s.body.Close()
}
