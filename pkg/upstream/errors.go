// Package upstream holds what the answer and document clients share: the
// transport error taxonomy and bearer request helpers.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type Kind string

const (
	KindNetwork      Kind = "network"
	KindStatus       Kind = "status"
	KindMalformed    Kind = "malformed"
	KindUnauthorized Kind = "unauthorized"
	KindTimeout      Kind = "timeout"
)

// ErrUnauthorized matches any *Error of KindUnauthorized through errors.Is.
// The caller is expected to re-authenticate; nothing retries automatically.
var ErrUnauthorized = errors.New("upstream rejected the credential")

// maxErrorBody bounds how much of a failed response is read for its detail.
const maxErrorBody = 64 << 10

type Error struct {
	Kind       Kind
	Service    string
	StatusCode int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case e.Kind == KindStatus || e.Kind == KindUnauthorized:
		return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s %s error: %v", e.Service, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s %s error", e.Service, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.Kind == KindUnauthorized
}

// Network classifies a failed round trip. Deadline errors become KindTimeout.
func Network(service string, err error) *Error {
	kind := KindNetwork
	var netErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Service: service, Err: err}
}

func Malformed(service string, err error) *Error {
	return &Error{Kind: KindMalformed, Service: service, Detail: fmt.Sprintf("%s sent an unreadable response", service), Err: err}
}

// FromResponse builds the error for a non-2xx response, pulling the server's
// "detail" out of the body when there is one.
func FromResponse(service string, resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	kind := KindStatus
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		kind = KindUnauthorized
	}
	return &Error{
		Kind:       kind,
		Service:    service,
		StatusCode: resp.StatusCode,
		Detail:     ExtractDetail(body),
	}
}

// ExtractDetail reads an error body the way API clients of the answer service
// do: a JSON "detail" that is a string, a list of {msg} objects, or anything
// else (re-encoded). A body that is not JSON is used verbatim.
func ExtractDetail(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return string(body)
	}
	if len(payload.Detail) == 0 || string(payload.Detail) == "null" {
		return ""
	}

	var text string
	if err := json.Unmarshal(payload.Detail, &text); err == nil {
		return text
	}

	var items []json.RawMessage
	if err := json.Unmarshal(payload.Detail, &items); err == nil {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			var withMsg struct {
				Msg string `json:"msg"`
			}
			if err := json.Unmarshal(item, &withMsg); err == nil && withMsg.Msg != "" {
				parts = append(parts, withMsg.Msg)
				continue
			}
			parts = append(parts, string(item))
		}
		return strings.Join(parts, ", ")
	}

	return string(payload.Detail)
}
