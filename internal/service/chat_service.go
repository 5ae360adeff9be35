package service

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"kb-assistant-be/internal/constant"
	"kb-assistant-be/internal/dto"
	"kb-assistant-be/internal/entity"
	"kb-assistant-be/internal/mapper"
	"kb-assistant-be/internal/pkg/logger"
	"kb-assistant-be/internal/repository/memory"
	"kb-assistant-be/pkg/chat/followup"
	"kb-assistant-be/pkg/chat/history"
	"kb-assistant-be/pkg/chat/orchestrator"

	"github.com/google/uuid"
)

// SessionEvents pushes session events to the user's open sockets.
type SessionEvents interface {
	SendToUser(userID uuid.UUID, eventType string, data interface{})
}

type IChatService interface {
	GetSession(ctx context.Context, userID uuid.UUID, token string) (*dto.SessionResponse, error)
	SendMessage(ctx context.Context, userID uuid.UUID, token string, req *dto.SendMessageRequest) (*dto.SessionResponse, error)
	EditMessage(ctx context.Context, userID uuid.UUID, token string, index int, req *dto.EditMessageRequest) (*dto.SessionResponse, error)
	DeleteMessage(ctx context.Context, userID uuid.UUID, token string, index int) (*dto.SessionResponse, error)
	UpdateDraft(ctx context.Context, userID uuid.UUID, token string, req *dto.UpdateDraftRequest) (*dto.SessionResponse, error)
	UpdateUIState(ctx context.Context, userID uuid.UUID, token string, req *dto.UpdateUIStateRequest) (*dto.SessionResponse, error)
	SaveEditing(ctx context.Context, userID uuid.UUID, token string, req *dto.SaveEditingRequest) (*dto.SessionResponse, error)
	Cancel(ctx context.Context, userID uuid.UUID, token string) (*dto.SessionResponse, error)
	NewConversation(ctx context.Context, userID uuid.UUID, token string) (*dto.SessionResponse, error)

	ListDocuments(ctx context.Context, userID uuid.UUID, token string) (*dto.DocumentListResponse, error)
	UploadDocument(ctx context.Context, userID uuid.UUID, token, filename string, content io.Reader) (*dto.DocumentResponse, error)
	DeleteDocument(ctx context.Context, userID uuid.UUID, token string, id entity.DocumentID) (*dto.DocumentListResponse, error)
	ToggleDocument(ctx context.Context, userID uuid.UUID, token string, id entity.DocumentID) (*dto.DocumentListResponse, error)
	SelectAllDocuments(ctx context.Context, userID uuid.UUID, token string) (*dto.DocumentListResponse, error)
	ClearSelection(ctx context.Context, userID uuid.UUID, token string) (*dto.DocumentListResponse, error)

	GetHistory(ctx context.Context, userID uuid.UUID, token, query string) ([]*dto.HistoryGroupResponse, error)
	OpenConversation(ctx context.Context, userID uuid.UUID, token string, id uuid.UUID) (*dto.SessionResponse, error)
	DeleteConversation(ctx context.Context, userID uuid.UUID, token string, id uuid.UUID) error

	HandleSocketCommand(userID uuid.UUID, msgType string, data json.RawMessage)
	EndSession(userID uuid.UUID)
}

type ChatServiceConfig struct {
	Streaming       bool
	InterruptOnSend bool
	AnswerTimeout   time.Duration
	PersistTimeout  time.Duration
	SessionIdleTTL  time.Duration
	Location        *time.Location
}

type liveSession struct {
	orch  *orchestrator.Orchestrator
	creds *orchestrator.BearerCredentials
}

type chatService struct {
	answers   orchestrator.AnswerClient
	documents orchestrator.DocumentClient
	syncer    *history.Syncer
	followups followup.Generator
	events    SessionEvents
	sessions  *memory.SessionRepository[*liveSession]
	mapper    *mapper.ChatMapper
	cfg       ChatServiceConfig
	logger    logger.ILogger
}

func NewChatService(
	answers orchestrator.AnswerClient,
	documents orchestrator.DocumentClient,
	syncer *history.Syncer,
	followups followup.Generator,
	events SessionEvents,
	cfg ChatServiceConfig,
	log logger.ILogger,
) IChatService {
	if cfg.SessionIdleTTL <= 0 {
		cfg.SessionIdleTTL = constant.DefaultSessionIdleTTL
	}

	s := &chatService{
		answers:   answers,
		documents: documents,
		syncer:    syncer,
		followups: followups,
		events:    events,
		mapper:    mapper.NewChatMapper(),
		cfg:       cfg,
		logger:    log,
	}
	s.sessions = memory.NewSessionRepository(cfg.SessionIdleTTL, s.onEvicted)
	return s
}

func (s *chatService) GetSession(ctx context.Context, userID uuid.UUID, token string) (*dto.SessionResponse, error) {
	live, err := s.session(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	return s.mapper.SessionToResponse(live.orch.Snapshot()), nil
}

func (s *chatService) SendMessage(ctx context.Context, userID uuid.UUID, token string, req *dto.SendMessageRequest) (*dto.SessionResponse, error) {
	live, err := s.session(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	if err := live.orch.SendMessage(ctx, req.Question); err != nil {
		return nil, err
	}
	return s.mapper.SessionToResponse(live.orch.Snapshot()), nil
}

func (s *chatService) EditMessage(ctx context.Context, userID uuid.UUID, token string, index int, req *dto.EditMessageRequest) (*dto.SessionResponse, error) {
	return s.mutate(ctx, userID, token, func(o *orchestrator.Orchestrator) error {
		return o.EditMessage(index, req.Content)
	})
}

func (s *chatService) DeleteMessage(ctx context.Context, userID uuid.UUID, token string, index int) (*dto.SessionResponse, error) {
	return s.mutate(ctx, userID, token, func(o *orchestrator.Orchestrator) error {
		return o.DeleteMessage(index)
	})
}

func (s *chatService) UpdateDraft(ctx context.Context, userID uuid.UUID, token string, req *dto.UpdateDraftRequest) (*dto.SessionResponse, error) {
	return s.mutate(ctx, userID, token, func(o *orchestrator.Orchestrator) error {
		o.SetDraft(req.Text)
		return nil
	})
}

func (s *chatService) UpdateUIState(ctx context.Context, userID uuid.UUID, token string, req *dto.UpdateUIStateRequest) (*dto.SessionResponse, error) {
	return s.mutate(ctx, userID, token, func(o *orchestrator.Orchestrator) error {
		if req.HoveredIndex != nil {
			o.SetHovered(*req.HoveredIndex)
		}
		if req.EditingIndex != nil {
			if *req.EditingIndex < 0 {
				o.CancelEditing()
			} else if err := o.StartEditing(*req.EditingIndex); err != nil {
				return err
			}
		}
		if req.EditingText != nil {
			return o.SetEditingText(*req.EditingText)
		}
		return nil
	})
}

func (s *chatService) SaveEditing(ctx context.Context, userID uuid.UUID, token string, req *dto.SaveEditingRequest) (*dto.SessionResponse, error) {
	return s.mutate(ctx, userID, token, func(o *orchestrator.Orchestrator) error {
		return o.SaveEditing(req.Content)
	})
}

func (s *chatService) Cancel(ctx context.Context, userID uuid.UUID, token string) (*dto.SessionResponse, error) {
	return s.mutate(ctx, userID, token, func(o *orchestrator.Orchestrator) error {
		o.Cancel()
		return nil
	})
}

func (s *chatService) NewConversation(ctx context.Context, userID uuid.UUID, token string) (*dto.SessionResponse, error) {
	return s.mutate(ctx, userID, token, func(o *orchestrator.Orchestrator) error {
		o.NewConversation()
		return nil
	})
}

func (s *chatService) ListDocuments(ctx context.Context, userID uuid.UUID, token string) (*dto.DocumentListResponse, error) {
	return s.mutateDocuments(ctx, userID, token, func(o *orchestrator.Orchestrator) error {
		return o.RefreshDocuments(ctx)
	})
}

func (s *chatService) UploadDocument(ctx context.Context, userID uuid.UUID, token, filename string, content io.Reader) (*dto.DocumentResponse, error) {
	live, err := s.session(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	doc, err := live.orch.UploadDocument(ctx, filename, content)
	if err != nil {
		return nil, err
	}
	return s.mapper.DocumentToResponse(doc, true), nil
}

func (s *chatService) DeleteDocument(ctx context.Context, userID uuid.UUID, token string, id entity.DocumentID) (*dto.DocumentListResponse, error) {
	return s.mutateDocuments(ctx, userID, token, func(o *orchestrator.Orchestrator) error {
		return o.DeleteDocument(ctx, id)
	})
}

func (s *chatService) ToggleDocument(ctx context.Context, userID uuid.UUID, token string, id entity.DocumentID) (*dto.DocumentListResponse, error) {
	return s.mutateDocuments(ctx, userID, token, func(o *orchestrator.Orchestrator) error {
		return o.ToggleDocument(id)
	})
}

func (s *chatService) SelectAllDocuments(ctx context.Context, userID uuid.UUID, token string) (*dto.DocumentListResponse, error) {
	return s.mutateDocuments(ctx, userID, token, func(o *orchestrator.Orchestrator) error {
		o.SelectAllDocuments()
		return nil
	})
}

func (s *chatService) ClearSelection(ctx context.Context, userID uuid.UUID, token string) (*dto.DocumentListResponse, error) {
	return s.mutateDocuments(ctx, userID, token, func(o *orchestrator.Orchestrator) error {
		o.ClearSelection()
		return nil
	})
}

func (s *chatService) GetHistory(ctx context.Context, userID uuid.UUID, token, query string) ([]*dto.HistoryGroupResponse, error) {
	live, err := s.session(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	groups, err := live.orch.History(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.mapper.HistoryToResponse(groups), nil
}

func (s *chatService) OpenConversation(ctx context.Context, userID uuid.UUID, token string, id uuid.UUID) (*dto.SessionResponse, error) {
	return s.mutate(ctx, userID, token, func(o *orchestrator.Orchestrator) error {
		return o.OpenConversation(ctx, id)
	})
}

func (s *chatService) DeleteConversation(ctx context.Context, userID uuid.UUID, token string, id uuid.UUID) error {
	live, err := s.session(ctx, userID, token)
	if err != nil {
		return err
	}
	return live.orch.DeleteConversation(ctx, id)
}

// HandleSocketCommand applies lightweight UI commands sent over the socket.
// Only an existing session is touched; sockets never create one.
func (s *chatService) HandleSocketCommand(userID uuid.UUID, msgType string, data json.RawMessage) {
	live, ok := s.sessions.Get(userID)
	if !ok {
		return
	}

	var payload struct {
		Text  string `json:"text"`
		Index *int   `json:"index"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			s.logger.Debug("ChatService", "Ignoring malformed socket command", map[string]interface{}{
				"user_id": userID,
				"type":    msgType,
			})
			return
		}
	}

	switch msgType {
	case "draft":
		live.orch.SetDraft(payload.Text)
	case "hover":
		index := -1
		if payload.Index != nil {
			index = *payload.Index
		}
		live.orch.SetHovered(index)
	case "editing_text":
		if err := live.orch.SetEditingText(payload.Text); err != nil {
			s.logger.Debug("ChatService", "Ignoring editing text", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
	case "cancel":
		live.orch.Cancel()
	default:
		s.logger.Debug("ChatService", "Unknown socket command", map[string]interface{}{
			"user_id": userID,
			"type":    msgType,
		})
	}
}

// EndSession drops the user's live session, abandoning any exchange in flight.
func (s *chatService) EndSession(userID uuid.UUID) {
	s.sessions.Delete(userID)
}

func (s *chatService) mutate(ctx context.Context, userID uuid.UUID, token string, fn func(o *orchestrator.Orchestrator) error) (*dto.SessionResponse, error) {
	live, err := s.session(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	if err := fn(live.orch); err != nil {
		return nil, err
	}
	return s.mapper.SessionToResponse(live.orch.Snapshot()), nil
}

func (s *chatService) mutateDocuments(ctx context.Context, userID uuid.UUID, token string, fn func(o *orchestrator.Orchestrator) error) (*dto.DocumentListResponse, error) {
	live, err := s.session(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	if err := fn(live.orch); err != nil {
		return nil, err
	}
	return s.mapper.DocumentListToResponse(live.orch.Snapshot()), nil
}

// session returns the user's live session, creating and initialising it on
// first use. The forwarded token replaces the previous one.
func (s *chatService) session(ctx context.Context, userID uuid.UUID, token string) (*liveSession, error) {
	if token == "" {
		return nil, orchestrator.ErrMissingCredential
	}

	live, created, err := s.sessions.GetOrCreate(userID, func() (*liveSession, error) {
		return s.newSession(userID, token), nil
	})
	if err != nil {
		return nil, err
	}
	if !created {
		live.creds.Rotate(token)
		return live, nil
	}

	s.logger.Info("ChatService", "Session started", map[string]interface{}{"user_id": userID})
	if err := live.orch.Init(ctx); err != nil {
		// the session stays usable; documents are listed again on demand
		s.logger.Warn("ChatService", "Session initialisation incomplete", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
	return live, nil
}

func (s *chatService) newSession(userID uuid.UUID, token string) *liveSession {
	creds := &orchestrator.BearerCredentials{UserID: userID, Token: token}
	orch := orchestrator.New(creds, s.answers, s.documents, s.syncer, s.followups, orchestrator.Options{
		Streaming:       s.cfg.Streaming,
		InterruptOnSend: s.cfg.InterruptOnSend,
		AnswerTimeout:   s.cfg.AnswerTimeout,
		PersistTimeout:  s.cfg.PersistTimeout,
		Location:        s.cfg.Location,
	}, s.logger)
	if s.events != nil {
		orch.SetListener(&sessionListener{userID: userID, events: s.events, mapper: s.mapper})
	}
	return &liveSession{orch: orch, creds: creds}
}

func (s *chatService) onEvicted(key string, live *liveSession) {
	live.orch.Cancel()
	if userID, err := uuid.Parse(key); err == nil {
		s.syncer.Forget(userID)
	}
	s.logger.Info("ChatService", "Session ended", map[string]interface{}{"user_id": key})
}

// sessionListener forwards orchestrator events to the user's sockets.
type sessionListener struct {
	userID uuid.UUID
	events SessionEvents
	mapper *mapper.ChatMapper
}

func (l *sessionListener) OnChunk(index int, chunk string) {
	l.events.SendToUser(l.userID, constant.WsEventChunk, map[string]interface{}{
		"index": index,
		"chunk": chunk,
	})
}

func (l *sessionListener) OnSnapshot(view orchestrator.View) {
	l.events.SendToUser(l.userID, constant.WsEventSnapshot, l.mapper.SessionToResponse(view))
}
