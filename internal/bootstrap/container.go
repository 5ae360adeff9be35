package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"kb-assistant-be/internal/config"
	"kb-assistant-be/internal/controller"
	"kb-assistant-be/internal/handler"
	"kb-assistant-be/internal/pkg/logger"
	"kb-assistant-be/internal/repository/contract"
	"kb-assistant-be/internal/repository/implementation"
	"kb-assistant-be/internal/repository/memory"
	"kb-assistant-be/internal/repository/supabase"
	"kb-assistant-be/internal/service"
	"kb-assistant-be/internal/websocket"
	"kb-assistant-be/pkg/answer"
	"kb-assistant-be/pkg/chat/followup"
	"kb-assistant-be/pkg/chat/history"
	"kb-assistant-be/pkg/chat/orchestrator"
	"kb-assistant-be/pkg/docstore"
	"kb-assistant-be/pkg/events"

	pktNats "kb-assistant-be/pkg/nats"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatController controller.IChatController

	// WebSockets
	SessionEventsHandler *handler.SessionEventsHandler
	WebSocketHub         *websocket.Hub

	Logger *logger.ZapLogger

	localBus *events.LocalBus
	natsPub  *pktNats.Publisher
	rdb      *redis.Client
}

// NewContainer wires the chat stack. db is only used by the postgres store
// driver and may be nil otherwise.
func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	repo, err := newConversationRepository(db, cfg)
	if err != nil {
		return nil, err
	}

	// 2. Event Bus
	localBus := events.NewLocalBus(sysLogger)
	publishers := events.Fanout{localBus}

	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else {
		publishers = append(publishers, natsPub)
	}

	// 3. Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}
	cancel()

	// 4. WebSocket Hub
	wsHub := websocket.NewHub(rdb, sysLogger)

	// 5. Upstream clients
	answerClient := answer.NewClient(cfg.Upstream.AnswerBaseURL, cfg.Upstream.ChatPath, sysLogger)
	documentClient := docstore.NewClient(cfg.Upstream.DocumentBaseURL, sysLogger)

	// 6. Services
	syncer := history.NewSyncer(repo, publishers, sysLogger)
	chatService := service.NewChatService(
		orchestrator.AnswerService(answerClient),
		documentClient,
		syncer,
		followup.NewStatic(),
		wsHub,
		service.ChatServiceConfig{
			Streaming:       cfg.Upstream.Streaming,
			InterruptOnSend: cfg.Upstream.InterruptOnSend,
			AnswerTimeout:   cfg.Upstream.AnswerTimeout,
			PersistTimeout:  cfg.Upstream.PersistTimeout,
			SessionIdleTTL:  cfg.Upstream.SessionIdleTTL,
			Location:        cfg.App.Location(),
		},
		sysLogger,
	)

	// 7. Handlers
	eventsHandler := handler.NewSessionEventsHandler(chatService, wsHub, cfg.App.JwtSecret, sysLogger)
	if err := localBus.Subscribe(context.Background(), eventsHandler.ForwardHistoryEvent); err != nil {
		log.Printf("[WARN] Failed to subscribe to local events: %v", err)
	}

	return &Container{
		ChatController:       controller.NewChatController(chatService, cfg.App.JwtSecret),
		SessionEventsHandler: eventsHandler,
		WebSocketHub:         wsHub,
		Logger:               sysLogger,
		localBus:             localBus,
		natsPub:              natsPub,
		rdb:                  rdb,
	}, nil
}

func newConversationRepository(db *gorm.DB, cfg *config.Config) (contract.ConversationRepository, error) {
	switch cfg.Database.Driver {
	case config.StorePostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres conversation store needs a database connection")
		}
		return implementation.NewConversationRepository(db), nil
	case config.StoreSupabase:
		return supabase.NewConversationRepository(supabase.Config{
			URL:    cfg.Supabase.URL,
			APIKey: cfg.Supabase.APIKey,
		})
	case config.StoreMemory:
		log.Println("[WARN] Conversations are kept in memory and lost on restart")
		return memory.NewConversationRepository(), nil
	default:
		return nil, fmt.Errorf("unknown CONVERSATION_STORE %q", cfg.Database.Driver)
	}
}

// Close releases the event bus and broker connections.
func (c *Container) Close() {
	if err := c.localBus.Close(); err != nil {
		log.Printf("[WARN] Failed to close local bus: %v", err)
	}
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	if err := c.rdb.Close(); err != nil {
		log.Printf("[WARN] Failed to close Redis: %v", err)
	}
	_ = c.Logger.Sync()
}
