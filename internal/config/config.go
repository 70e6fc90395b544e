package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/imagecaptioner/internal/common"
)

// Environment variables recognised on top of the YAML file.
const (
	EnvConfigPath   = "IMAGECAPTIONER_CONFIG"
	EnvOrigin       = "ORIGIN"
	EnvBodyLimit    = "BODY_LIMIT"
	EnvPort         = "PORT"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvGoogleAPIKey = "GOOGLE_API_KEY"
	EnvGeminiModel  = "GEMINI_MODEL"
	EnvLLMProvider  = "LLM_PROVIDER"
	EnvLogLevel     = "LOG_LEVEL"
	EnvStorageDir   = "STORAGE_DIR"
)

// Supported LLM providers.
const (
	ProviderGemini  = "gemini"
	ProviderAIProxy = "aiproxy"
	ProviderMock    = "mock"
)

const defaultConfigFile = "config.yaml"

// Config is the root configuration. It is built once by Load and treated as read-only afterwards.
type Config struct {
	Server ServerConfig `yaml:"server"`
	LLM    LLMConfig    `yaml:"llm"`
}

// ServerConfig holds HTTP server and runtime settings.
type ServerConfig struct {
	Addr             string        `yaml:"address"`
	AllowedOrigin    string        `yaml:"allowedOrigin"` // CORS origin; empty or "*" allows any origin without credentials
	ReadTimeout      time.Duration `yaml:"readTimeout"`
	WriteTimeout     time.Duration `yaml:"writeTimeout"`
	IdleTimeout      time.Duration `yaml:"idleTimeout"`
	BodyLimit        ByteSize      `yaml:"bodyLimit"`
	StorageDir       string        `yaml:"storageDir"`
	RequestLogPath   string        `yaml:"requestLogPath"` // optional sqlite file for request lifecycle records
	ShutdownGrace    time.Duration `yaml:"shutdownGrace"`
	CleanupWorkers   int           `yaml:"cleanupWorkers"`
	CleanupQueueSize int           `yaml:"cleanupQueueSize"`
	LogLevel         string        `yaml:"logLevel"` // debug|info|warn|error
}

// LLMConfig selects provider and provider-specific options.
type LLMConfig struct {
	Provider string          `yaml:"provider"` // gemini|aiproxy|mock
	Gemini   GeminiSettings  `yaml:"gemini"`
	AIProxy  AIProxySettings `yaml:"aiproxy"`
	Mock     MockSettings    `yaml:"mock"`
}

// GeminiSettings config for the Gemini generateContent REST API.
type GeminiSettings struct {
	BaseURL string        `yaml:"baseUrl"` // e.g. https://generativelanguage.googleapis.com
	APIKey  string        `yaml:"apiKey"`
	Model   string        `yaml:"model"` // e.g. gemini-2.5-flash
	Timeout time.Duration `yaml:"timeout"`
}

// AIProxySettings config for an OpenAI-compatible chat completions endpoint.
type AIProxySettings struct {
	BaseURL      string  `yaml:"baseUrl"` // e.g. http://localhost:8900
	APIKey       string  `yaml:"apiKey"`  // optional
	Model        string  `yaml:"model"`
	SystemPrompt string  `yaml:"systemPrompt"` // optional
	Temperature  float32 `yaml:"temperature"`  // optional
	MaxTokens    int     `yaml:"maxTokens"`    // optional
}

// MockSettings config for the offline mock provider.
type MockSettings struct {
	Delay  time.Duration `yaml:"delay"`
	Prefix string        `yaml:"prefix"`
}

// ByteSize represents a size in bytes that unmarshals from strings like "10mb", "10Mi", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
	}
	parsed, err := ParseByteSize(value.Value)
	if err != nil {
		return err
	}
	*b = ByteSize(parsed)
	return nil
}

// String renders the size the way operators write it, e.g. "10 MB".
func (b ByteSize) String() string {
	return humanize.Bytes(uint64(b))
}

// ParseByteSize parses a human size ("10mb", "10Mi", "2 GiB", "1024") into bytes.
func ParseByteSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	v, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return v, nil
}

// ParseLogLevel maps debug|info|warn|error to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

// Load builds the configuration from defaults, an optional YAML file, an optional .env file
// and the process environment, in increasing precedence.
// If path is empty, IMAGECAPTIONER_CONFIG is consulted, then "config.yaml"; a missing default file is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		if env := os.Getenv(EnvConfigPath); env != "" {
			path = env
			explicit = true
		} else {
			path = defaultConfigFile
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - reading sanitized config file path is expected
	switch {
	case err == nil:
		// Expand environment variables in file content.
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// run from environment only
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Server.StorageDir, 0o750); err != nil {
		return nil, fmt.Errorf("ensure storageDir: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := lookupEnv(EnvOrigin); ok {
		cfg.Server.AllowedOrigin = v
	}
	if v, ok := lookupEnv(EnvBodyLimit); ok {
		n, err := ParseByteSize(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBodyLimit, err)
		}
		cfg.Server.BodyLimit = ByteSize(n)
	}
	if v, ok := lookupEnv(EnvPort); ok {
		cfg.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v, ok := lookupEnv(EnvLogLevel); ok {
		cfg.Server.LogLevel = v
	}
	if v, ok := lookupEnv(EnvStorageDir); ok {
		cfg.Server.StorageDir = v
	}
	if v, ok := lookupEnv(EnvLLMProvider); ok {
		cfg.LLM.Provider = v
	}
	if v, ok := lookupEnv(EnvGeminiModel); ok {
		cfg.LLM.Gemini.Model = v
	}
	// GEMINI_API_KEY wins over GOOGLE_API_KEY, mirroring the Google client libraries.
	if v, ok := lookupEnv(EnvGeminiAPIKey); ok {
		cfg.LLM.Gemini.APIKey = v
	} else if v, ok := lookupEnv(EnvGoogleAPIKey); ok {
		cfg.LLM.Gemini.APIKey = v
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":" + common.DefaultPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 2 * time.Minute
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.BodyLimit == 0 {
		n, _ := humanize.ParseBytes(common.DefaultBodyLimit)
		cfg.Server.BodyLimit = ByteSize(n)
	}
	if cfg.Server.StorageDir == "" {
		cfg.Server.StorageDir = filepath.Join(os.TempDir(), common.AppDirName)
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 15 * time.Second
	}
	if cfg.Server.CleanupWorkers <= 0 {
		cfg.Server.CleanupWorkers = common.DefaultCleanupWorkers
	}
	if cfg.Server.CleanupQueueSize <= 0 {
		cfg.Server.CleanupQueueSize = common.DefaultQueueCapacity
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}

	// LLM defaults
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderGemini
	}
	if strings.TrimSpace(cfg.LLM.Gemini.BaseURL) == "" {
		cfg.LLM.Gemini.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if strings.TrimSpace(cfg.LLM.Gemini.Model) == "" {
		cfg.LLM.Gemini.Model = "gemini-2.5-flash"
	}
	if strings.TrimSpace(cfg.LLM.AIProxy.BaseURL) == "" {
		cfg.LLM.AIProxy.BaseURL = "http://localhost:8900"
	}
	if strings.TrimSpace(cfg.LLM.AIProxy.Model) == "" {
		cfg.LLM.AIProxy.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Mock.Prefix == "" {
		cfg.LLM.Mock.Prefix = "Captioned by Mock"
	}
}

func validate(cfg *Config) error {
	if _, err := ParseLogLevel(cfg.Server.LogLevel); err != nil {
		return err
	}
	if o := strings.TrimSpace(cfg.Server.AllowedOrigin); o != "" && o != "*" &&
		!strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
		return fmt.Errorf("server.allowedOrigin must be \"*\" or start with http:// or https://, got %q", o)
	}
	switch cfg.LLM.Provider {
	case ProviderGemini:
		if strings.TrimSpace(cfg.LLM.Gemini.APIKey) == "" {
			return fmt.Errorf("llm.gemini.apiKey is required (set %s)", EnvGeminiAPIKey)
		}
	case ProviderAIProxy, ProviderMock:
	default:
		return fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
	}
	return nil
}
