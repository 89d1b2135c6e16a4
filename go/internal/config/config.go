// Package config loads gateway settings from defaults, an optional YAML file
// and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/seandavisproductions/teacher-toolkit/go/internal/dbconfig"
)

// PathEnv names the environment variable holding the YAML config path
const PathEnv = "CLASSROOM_CONFIG"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Timer     TimerConfig     `yaml:"timer"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Database  dbconfig.Config `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	Deepgram  DeepgramConfig  `yaml:"deepgram"`
	Translate TranslateConfig `yaml:"translate"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port              string        `yaml:"port"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `yaml:"ping_interval"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBuffer     int           `yaml:"send_buffer"`
}

type TimerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

type SessionsConfig struct {
	IdleTTL          time.Duration `yaml:"idle_ttl"`
	ReapInterval     time.Duration `yaml:"reap_interval"`
	RequireKnownCode bool          `yaml:"require_known_code"`
}

type NATSConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Stream        string        `yaml:"stream"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	MaxAge        time.Duration `yaml:"max_age"`
}

type DeepgramConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type TranslateConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxInFlight int           `yaml:"max_in_flight"`
}

type AuthConfig struct {
	TokenSecret string        `yaml:"token_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:              "8080",
			AllowedOrigins:    []string{"*"},
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		WebSocket: WebSocketConfig{
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			MaxMessageSize: 64 * 1024,
			SendBuffer:     256,
		},
		Timer: TimerConfig{
			TickInterval: time.Second,
		},
		Sessions: SessionsConfig{
			IdleTTL:      2 * time.Hour,
			ReapInterval: 5 * time.Minute,
		},
		Database: dbconfig.Defaults(),
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			Stream:        "CLASSROOM_ACTIVITY",
			SubjectPrefix: "classroom.activity",
			MaxAge:        7 * 24 * time.Hour,
		},
		Deepgram: DeepgramConfig{
			Model: "nova-2",
		},
		Translate: TranslateConfig{
			Timeout:     10 * time.Second,
			MaxInFlight: 2,
		},
		Auth: AuthConfig{
			TokenTTL: 12 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration. The YAML file named by CLASSROOM_CONFIG is
// optional; environment variables win over it.
func Load() (*Config, error) {
	config := Default()

	if path := os.Getenv(PathEnv); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.AllowedOrigins = getEnvAsList("ALLOWED_ORIGINS", c.Server.AllowedOrigins)
	c.Server.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.WebSocket.PingInterval = getEnvAsDuration("WS_PING_INTERVAL", c.WebSocket.PingInterval)
	c.WebSocket.ReadTimeout = getEnvAsDuration("WS_READ_TIMEOUT", c.WebSocket.ReadTimeout)
	c.WebSocket.WriteTimeout = getEnvAsDuration("WS_WRITE_TIMEOUT", c.WebSocket.WriteTimeout)
	c.WebSocket.MaxMessageSize = int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", int(c.WebSocket.MaxMessageSize)))
	c.WebSocket.SendBuffer = getEnvAsInt("WS_SEND_BUFFER", c.WebSocket.SendBuffer)

	c.Timer.TickInterval = getEnvAsDuration("TIMER_TICK_INTERVAL", c.Timer.TickInterval)

	c.Sessions.IdleTTL = getEnvAsDuration("SESSION_IDLE_TTL", c.Sessions.IdleTTL)
	c.Sessions.ReapInterval = getEnvAsDuration("SESSION_REAP_INTERVAL", c.Sessions.ReapInterval)
	c.Sessions.RequireKnownCode = getEnvAsBool("REQUIRE_KNOWN_CODE", c.Sessions.RequireKnownCode)

	c.Database.ApplyEnv()

	c.NATS.Enabled = getEnvAsBool("NATS_ENABLED", c.NATS.Enabled)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Stream = getEnv("NATS_STREAM", c.NATS.Stream)
	c.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)

	c.Deepgram.APIKey = getEnv("DEEPGRAM_API_KEY", c.Deepgram.APIKey)
	c.Deepgram.BaseURL = getEnv("DEEPGRAM_URL", c.Deepgram.BaseURL)
	c.Deepgram.Model = getEnv("DEEPGRAM_MODEL", c.Deepgram.Model)

	c.Translate.APIKey = getEnv("GOOGLE_TRANSLATE_API_KEY", c.Translate.APIKey)
	c.Translate.BaseURL = getEnv("GOOGLE_TRANSLATE_URL", c.Translate.BaseURL)
	c.Translate.MaxInFlight = getEnvAsInt("TRANSLATE_MAX_IN_FLIGHT", c.Translate.MaxInFlight)

	c.Auth.TokenSecret = getEnv("TOKEN_SECRET", c.Auth.TokenSecret)
	c.Auth.TokenTTL = getEnvAsDuration("TOKEN_TTL", c.Auth.TokenTTL)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Pretty = getEnvAsBool("LOG_PRETTY", c.Log.Pretty)
}

// Validate rejects settings the gateway cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		errs = append(errs, errors.New("websocket timeouts must be positive"))
	}
	if c.Timer.TickInterval <= 0 {
		errs = append(errs, errors.New("timer.tick_interval must be positive"))
	}
	if c.Sessions.IdleTTL <= 0 || c.Sessions.ReapInterval <= 0 {
		errs = append(errs, errors.New("sessions.idle_ttl and sessions.reap_interval must be positive"))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when nats is enabled"))
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
