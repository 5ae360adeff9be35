package orchestrator

import (
	"context"
	"errors"
	"io"
	"sync"

	"kb-assistant-be/internal/entity"
	"kb-assistant-be/pkg/answer"
	"kb-assistant-be/pkg/chat/state"

	"github.com/google/uuid"
)

// CredentialProvider is the explicit auth capability of one session.
type CredentialProvider interface {
	CurrentUserID() uuid.UUID
	AccessToken() (string, error)
}

// BearerCredentials is the user and bearer token forwarded by the HTTP layer
// or supplied on the command line. The token is replaced on every request
// since it may have been refreshed.
type BearerCredentials struct {
	UserID uuid.UUID
	Token  string

	mu sync.RWMutex
}

func (c *BearerCredentials) CurrentUserID() uuid.UUID {
	return c.UserID
}

func (c *BearerCredentials) AccessToken() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Token == "" {
		return "", errors.New("no access token")
	}
	return c.Token, nil
}

func (c *BearerCredentials) Rotate(token string) {
	if token == "" {
		return
	}
	c.mu.Lock()
	c.Token = token
	c.mu.Unlock()
}

// AnswerStream is an open streamed answer.
type AnswerStream interface {
	Next() ([]byte, error)
	Close() error
	ContinuationToken() *string
}

type AnswerClient interface {
	Ask(ctx context.Context, token string, req answer.Request) (*answer.Response, error)
	Stream(ctx context.Context, token string, req answer.Request) (AnswerStream, error)
}

type DocumentClient interface {
	List(ctx context.Context, token string) ([]entity.DocumentRef, error)
	Upload(ctx context.Context, token, filename string, content io.Reader) (entity.DocumentRef, error)
	Delete(ctx context.Context, token string, id entity.DocumentID) error
}

// Listener receives outbound session events. Methods run while the session
// is locked, in mutation order; they must not block or call back into the
// orchestrator.
type Listener interface {
	OnChunk(index int, chunk string)
	OnSnapshot(view View)
}

// View is what clients render: the session plus its send phase.
type View struct {
	state.Snapshot
	Phase     Phase
	LastError string
}

// AnswerService adapts *answer.Client to AnswerClient.
func AnswerService(c *answer.Client) AnswerClient {
	return answerService{c}
}

type answerService struct {
	client *answer.Client
}

func (a answerService) Ask(ctx context.Context, token string, req answer.Request) (*answer.Response, error) {
	return a.client.Ask(ctx, token, req)
}

func (a answerService) Stream(ctx context.Context, token string, req answer.Request) (AnswerStream, error) {
	s, err := a.client.Stream(ctx, token, req)
	if err != nil {
		return nil, err
	}
	return s, nil
}
