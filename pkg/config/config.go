package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every tunable for the FieldVision server. Values come from
// FIELDVISION_* environment variables with defaults matching production.
type Config struct {
	Addr string

	// Gemini Live backend.
	GeminiAPIKey string
	GeminiModel  string

	// Per-modality send limits enforced by the live session.
	MaxAudioChunkBytes int
	MaxVideoFrameBytes int
	MaxTextChars       int

	// Turn completion fallback: a model turn with no new fragment for this
	// long is finalized even if the backend never signals turn_complete.
	TurnIdleTimeout time.Duration

	// No-op input cadence keeping the upstream stream from idling out.
	HeartbeatInterval time.Duration

	// Browser WebSocket keepalive/write settings.
	WSPingInterval time.Duration
	WSWriteTimeout time.Duration

	// Bounded outbound queue between the session and the bridge writer.
	OutboundQueueSize int

	// Storage.
	DatabasePath string
	EvidenceDir  string
	UsersPath    string
	ManualPath   string

	// Auth.
	JWTSecret string
	TokenTTL  time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:               envOr("FIELDVISION_ADDR", ":8000"),
		GeminiAPIKey:       strings.TrimSpace(os.Getenv("FIELDVISION_GEMINI_API_KEY")),
		GeminiModel:        envOr("FIELDVISION_GEMINI_MODEL", "gemini-live-2.5-flash-native-audio"),
		MaxAudioChunkBytes: envIntOr("FIELDVISION_MAX_AUDIO_CHUNK_BYTES", 32<<10),
		MaxVideoFrameBytes: envIntOr("FIELDVISION_MAX_VIDEO_FRAME_BYTES", 512<<10),
		MaxTextChars:       envIntOr("FIELDVISION_MAX_TEXT_CHARS", 4000),
		TurnIdleTimeout:    envDurationOr("FIELDVISION_TURN_IDLE_TIMEOUT", 2500*time.Millisecond),
		HeartbeatInterval:  envDurationOr("FIELDVISION_HEARTBEAT_INTERVAL", 10*time.Second),
		WSPingInterval:     envDurationOr("FIELDVISION_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:     envDurationOr("FIELDVISION_WS_WRITE_TIMEOUT", 5*time.Second),
		OutboundQueueSize:  envIntOr("FIELDVISION_OUTBOUND_QUEUE_SIZE", 128),
		DatabasePath:       envOr("FIELDVISION_DB_PATH", "fieldvision.db"),
		EvidenceDir:        envOr("FIELDVISION_EVIDENCE_DIR", "static/evidence"),
		UsersPath:          envOr("FIELDVISION_USERS_PATH", "users.json"),
		ManualPath:         envOr("FIELDVISION_MANUAL_PATH", "manuals/default.md"),
		JWTSecret:          envOr("FIELDVISION_JWT_SECRET", ""),
		TokenTTL:           envDurationOr("FIELDVISION_TOKEN_TTL", 24*time.Hour),
	}

	if strings.TrimSpace(cfg.Addr) == "" {
		return Config{}, fmt.Errorf("FIELDVISION_ADDR must not be empty")
	}
	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("FIELDVISION_GEMINI_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.GeminiModel) == "" {
		return Config{}, fmt.Errorf("FIELDVISION_GEMINI_MODEL must not be empty")
	}
	if cfg.MaxAudioChunkBytes <= 0 {
		return Config{}, fmt.Errorf("FIELDVISION_MAX_AUDIO_CHUNK_BYTES must be > 0")
	}
	if cfg.MaxVideoFrameBytes <= 0 {
		return Config{}, fmt.Errorf("FIELDVISION_MAX_VIDEO_FRAME_BYTES must be > 0")
	}
	if cfg.MaxTextChars <= 0 {
		return Config{}, fmt.Errorf("FIELDVISION_MAX_TEXT_CHARS must be > 0")
	}
	if cfg.TurnIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("FIELDVISION_TURN_IDLE_TIMEOUT must be > 0")
	}
	if cfg.HeartbeatInterval <= 0 {
		return Config{}, fmt.Errorf("FIELDVISION_HEARTBEAT_INTERVAL must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("FIELDVISION_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("FIELDVISION_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.OutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("FIELDVISION_OUTBOUND_QUEUE_SIZE must be > 0")
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return Config{}, fmt.Errorf("FIELDVISION_DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return Config{}, fmt.Errorf("FIELDVISION_JWT_SECRET must be set")
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("FIELDVISION_TOKEN_TTL must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
