// Package config loads go-borp configuration from yaml files and BORP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Backend   BackendConfig   `mapstructure:"backend"`
	LLM       LLMConfig       `mapstructure:"llm"`
	TTS       TTSConfig       `mapstructure:"tts"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Comments  CommentsConfig  `mapstructure:"comments"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Server    ServerConfig    `mapstructure:"server"`
	Viewer    ViewerConfig    `mapstructure:"viewer"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AgentConfig identifies the agent and carries its persona.
type AgentConfig struct {
	ID          string   `mapstructure:"id"`
	Name        string   `mapstructure:"name"`
	Bio         []string `mapstructure:"bio"`
	Lore        []string `mapstructure:"lore"`
	Adjectives  []string `mapstructure:"adjectives"`
	Topics      []string `mapstructure:"topics"`
	Title       string   `mapstructure:"title"`
	Description string   `mapstructure:"description"`
	ModelName   string   `mapstructure:"model_name"` // avatar model shown to viewers
}

// BackendConfig configures the collaborator HTTP API client.
type BackendConfig struct {
	URL            string        `mapstructure:"url"`
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"` // requests per second
	Burst          int           `mapstructure:"burst"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
}

// LLMConfig configures the OpenAI-compatible inference endpoint.
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	SmallModel  string        `mapstructure:"small_model"`
	MediumModel string        `mapstructure:"medium_model"`
	LargeModel  string        `mapstructure:"large_model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`

	// Optional secondary endpoint tried when the primary fails.
	FallbackBaseURL string `mapstructure:"fallback_base_url"`
	FallbackAPIKey  string `mapstructure:"fallback_api_key"`
	FallbackModel   string `mapstructure:"fallback_model"`
}

// TTSConfig configures speech synthesis.
type TTSConfig struct {
	Provider         string        `mapstructure:"provider"` // openai, elevenlabs, none
	FallbackProvider string        `mapstructure:"fallback_provider"`
	OpenAIKey        string        `mapstructure:"openai_api_key"`
	OpenAIVoice      string        `mapstructure:"openai_voice"`
	OpenAIModel      string        `mapstructure:"openai_model"`
	ElevenLabsKey    string        `mapstructure:"elevenlabs_api_key"`
	ElevenLabsVoice  string        `mapstructure:"elevenlabs_voice"`
	ElevenLabsModel  string        `mapstructure:"elevenlabs_model"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// SchedulerConfig configures the agent task scheduler.
type SchedulerConfig struct {
	Tick              time.Duration `mapstructure:"tick"`
	ReadChatInterval  time.Duration `mapstructure:"read_chat_interval"`
	ThoughtInterval   time.Duration `mapstructure:"thought_interval"`
	AnimationInterval time.Duration `mapstructure:"animation_interval"`
	PriorityTieBreak  bool          `mapstructure:"priority_tie_break"`
	Heartbeat         string        `mapstructure:"heartbeat"` // cron spec for the streaming status update
}

// CommentsConfig configures comment fetching.
type CommentsConfig struct {
	FetchLimit int `mapstructure:"fetch_limit"`
}

// MemoryConfig configures the context record store.
type MemoryConfig struct {
	Backend       string `mapstructure:"backend"` // memory, file, redis
	Path          string `mapstructure:"path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RecentLimit   int    `mapstructure:"recent_limit"`
	MaxRecords    int    `mapstructure:"max_records"`
}

// ServerConfig configures the reference collaborator server.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	APIKey       string        `mapstructure:"api_key"`
	UploadDir    string        `mapstructure:"upload_dir"`
	PublicURL    string        `mapstructure:"public_url"`
	UnreadWindow time.Duration `mapstructure:"unread_window"`
	AllowOrigins string        `mapstructure:"allow_origins"`
}

// ViewerConfig configures the headless viewer.
type ViewerConfig struct {
	ServerURL     string        `mapstructure:"server_url"`
	AgentIDs      []string      `mapstructure:"agent_ids"`
	Scene         string        `mapstructure:"scene"`
	ReconnectMin  time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax  time.Duration `mapstructure:"reconnect_max"`
	ShortTimeout  time.Duration `mapstructure:"short_timeout"`
	MediumTimeout time.Duration `mapstructure:"medium_timeout"`
	LongTimeout   time.Duration `mapstructure:"long_timeout"`
	Smoothing     float64       `mapstructure:"smoothing"`
	Crossfade     time.Duration `mapstructure:"crossfade"`
	RevertAfter   time.Duration `mapstructure:"revert_after"`
	IdleClip      string        `mapstructure:"idle_clip"`
	DecoderPath   string        `mapstructure:"decoder_path"` // ffmpeg binary
	SinkCommand   string        `mapstructure:"sink_command"` // optional PCM player, e.g. "aplay -f S16_LE -r 24000"
	SampleRate    int           `mapstructure:"sample_rate"`
	FrameRate     int           `mapstructure:"frame_rate"`
	DedupeWindow  int           `mapstructure:"dedupe_window"`
}

// MetricsConfig configures the prometheus endpoint of the agent.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Agent: AgentConfig{
			Name:        "borp",
			Title:       "Live with borp",
			Description: "An AI streamer reacting to chat",
		},
		Backend: BackendConfig{
			URL:            "http://localhost:3000",
			Timeout:        30 * time.Second,
			RateLimit:      5,
			Burst:          5,
			MaxRetries:     3,
			RetryBaseDelay: 500 * time.Millisecond,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			SmallModel:  "gpt-4o-mini",
			MediumModel: "gpt-4o",
			LargeModel:  "gpt-4o",
			Temperature: 0.7,
			MaxTokens:   512,
			Timeout:     60 * time.Second,
		},
		TTS: TTSConfig{
			Provider:        "openai",
			OpenAIVoice:     "nova",
			OpenAIModel:     "tts-1",
			ElevenLabsModel: "eleven_turbo_v2_5",
			Timeout:         30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Tick:              time.Second,
			ReadChatInterval:  20 * time.Second,
			ThoughtInterval:   60 * time.Second,
			AnimationInterval: 20 * time.Second,
			Heartbeat:         "@every 30s",
		},
		Comments: CommentsConfig{FetchLimit: 15},
		Memory: MemoryConfig{
			Backend:     "memory",
			Path:        "borp-memory.json",
			RedisAddr:   "localhost:6379",
			RecentLimit: 10,
			MaxRecords:  1000,
		},
		Server: ServerConfig{
			Addr:         ":3000",
			UploadDir:    "uploads",
			PublicURL:    "http://localhost:3000",
			UnreadWindow: 15 * time.Minute,
			AllowOrigins: "*",
		},
		Viewer: ViewerConfig{
			ServerURL:     "ws://localhost:3000/ws",
			Scene:         "main",
			ReconnectMin:  time.Second,
			ReconnectMax:  30 * time.Second,
			ShortTimeout:  3 * time.Second,
			MediumTimeout: 8 * time.Second,
			LongTimeout:   12 * time.Second,
			Smoothing:     0.5,
			Crossfade:     500 * time.Millisecond,
			RevertAfter:   2 * time.Second,
			IdleClip:      "idle",
			DecoderPath:   "ffmpeg",
			SampleRate:    24000,
			FrameRate:     60,
			DedupeWindow:  256,
		},
		Metrics: MetricsConfig{Addr: ":9091"},
	}
}

// Validate checks invariants shared by every command.
func (c *Config) Validate() error {
	var errs []error
	if c.Scheduler.Tick <= 0 {
		errs = append(errs, errors.New("scheduler.tick must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"scheduler.read_chat_interval": c.Scheduler.ReadChatInterval,
		"scheduler.thought_interval":   c.Scheduler.ThoughtInterval,
		"scheduler.animation_interval": c.Scheduler.AnimationInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Comments.FetchLimit <= 0 {
		errs = append(errs, errors.New("comments.fetch_limit must be positive"))
	}
	if c.Viewer.Smoothing < 0 || c.Viewer.Smoothing >= 1 {
		errs = append(errs, fmt.Errorf("viewer.smoothing must be in [0,1), got %v", c.Viewer.Smoothing))
	}
	switch c.TTS.Provider {
	case "openai", "elevenlabs", "none", "":
	default:
		errs = append(errs, fmt.Errorf("tts.provider: unknown provider %q", c.TTS.Provider))
	}
	switch c.Memory.Backend {
	case "memory", "file", "redis":
	default:
		errs = append(errs, fmt.Errorf("memory.backend: unknown backend %q", c.Memory.Backend))
	}
	return errors.Join(errs...)
}

// ValidateAgent checks the settings the agent command needs on top of Validate.
func (c *Config) ValidateAgent() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Agent.ID == "" {
		return errors.New("agent.id is required")
	}
	if c.Backend.URL == "" {
		return errors.New("backend.url is required")
	}
	return nil
}
