package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
)

// NewRequest builds an authenticated request. An empty token is refused
// before anything touches the network.
func NewRequest(ctx context.Context, method, url, token string, body io.Reader) (*http.Request, error) {
	if strings.TrimSpace(token) == "" {
		return nil, &Error{Kind: KindUnauthorized, Service: "auth", Detail: "Not authenticated. Please sign in again."}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// Do sends req and converts transport failures and non-2xx statuses into
// *Error. On success the caller owns resp.Body.
func Do(client *http.Client, service string, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); errors.Is(ctxErr, context.Canceled) {
			return nil, ctxErr
		}
		return nil, Network(service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, FromResponse(service, resp)
	}
	return resp, nil
}

// JoinURL joins a base URL and a path without doubling slashes.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
