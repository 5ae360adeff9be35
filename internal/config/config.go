package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Supabase SupabaseConfig
	Upstream UpstreamConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JwtSecret          string
	TimeZone           string
	OtelEnabled        bool
	OtelEndpoint       string
}

// StoreDriver selects where conversations are persisted.
type StoreDriver string

const (
	StorePostgres StoreDriver = "postgres"
	StoreSupabase StoreDriver = "supabase"
	StoreMemory   StoreDriver = "memory"
)

type DatabaseConfig struct {
	Driver     StoreDriver
	Connection string
}

type SupabaseConfig struct {
	URL    string
	APIKey string
}

type UpstreamConfig struct {
	AnswerBaseURL   string
	DocumentBaseURL string
	ChatPath        string
	Streaming       bool
	InterruptOnSend bool
	AnswerTimeout   time.Duration
	PersistTimeout  time.Duration
	SessionIdleTTL  time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	answerURL := getEnv("ANSWER_SERVICE_URL", "http://localhost:8000")

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
			TimeZone:           getEnv("APP_TIMEZONE", "Local"),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
			OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
		Database: DatabaseConfig{
			Driver:     StoreDriver(strings.ToLower(getEnv("CONVERSATION_STORE", string(StorePostgres)))),
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Supabase: SupabaseConfig{
			URL:    getEnv("SUPABASE_URL", ""),
			APIKey: getEnv("SUPABASE_KEY", ""),
		},
		Upstream: UpstreamConfig{
			AnswerBaseURL:   answerURL,
			DocumentBaseURL: getEnv("DOCUMENT_SERVICE_URL", answerURL),
			ChatPath:        getEnv("ANSWER_CHAT_PATH", "/chat"),
			Streaming:       getEnvAsBool("ANSWER_STREAMING", false),
			InterruptOnSend: getEnvAsBool("CHAT_INTERRUPT_ON_SEND", false),
			AnswerTimeout:   getEnvAsDuration("ANSWER_TIMEOUT", 120*time.Second),
			PersistTimeout:  getEnvAsDuration("PERSIST_TIMEOUT", 10*time.Second),
			SessionIdleTTL:  getEnvAsDuration("SESSION_IDLE_TTL", time.Hour),
		},
	}
}

// Location resolves the configured viewer time zone.
func (c AppConfig) Location() *time.Location {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		log.Printf("[WARN] Unknown APP_TIMEZONE %q, using local time", c.TimeZone)
		return time.Local
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("90s", "2m") or plain seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if d, err := time.ParseDuration(strValue); err == nil {
		return d
	}
	if secs := getEnvAsInt(key, -1); secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
