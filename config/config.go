// Package config loads pagechat's TOML configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultPath is read when no explicit path is given and the file exists.
const DefaultPath = "pagechat.toml"

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Fetch     FetchConfig     `toml:"fetch"`
	Cache     CacheConfig     `toml:"cache"`
	Admission AdmissionConfig `toml:"admission"`
	LLM       LLMConfig       `toml:"llm"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// ServerConfig configures the inbound HTTP listener.
type ServerConfig struct {
	Addr string `toml:"addr"`

	// StrictStatus maps error codes onto HTTP status codes instead of
	// always answering 200 with the error in the response text.
	StrictStatus bool `toml:"strict_status"`

	// RequireLanguage rejects context blocks without a "Language: " line.
	RequireLanguage bool `toml:"require_language"`

	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
}

// FetchConfig configures the content fetcher.
type FetchConfig struct {
	Timeout      time.Duration `toml:"timeout"`
	MaxChars     int           `toml:"max_chars"`
	MaxBodyBytes int64         `toml:"max_body_bytes"`
	UserAgent    string        `toml:"user_agent"`
}

// CacheConfig configures the page cache. Zero values mean unbounded and
// never-expiring.
type CacheConfig struct {
	MaxEntries int           `toml:"max_entries"`
	TTL        time.Duration `toml:"ttl"`
}

// AdmissionConfig configures the LLM call gate.
type AdmissionConfig struct {
	Capacity int `toml:"capacity"`

	// WaitTimeout bounds how long a request queues for a slot (0 = forever).
	WaitTimeout time.Duration `toml:"wait_timeout"`
}

// LLMConfig configures the generation backend.
type LLMConfig struct {
	Provider  string        `toml:"provider"` // gemini, gemini-sdk, openai, anthropic
	Model     string        `toml:"model"`
	BaseURL   string        `toml:"base_url"`
	Timeout   time.Duration `toml:"timeout"`
	MaxTokens int           `toml:"max_tokens"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // console, json
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	Endpoint    string `toml:"endpoint"`
	Protocol    string `toml:"protocol"` // grpc, http
	Insecure    bool   `toml:"insecure"`
	ServiceName string `toml:"service_name"`
	Debug       bool   `toml:"debug"`

	// SampleRatio is the fraction of new traces kept; 0 keeps all.
	SampleRatio float64 `toml:"sample_ratio"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8000",
			RequireLanguage: true,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
		},
		Fetch: FetchConfig{
			Timeout:      10 * time.Second,
			MaxChars:     12000,
			MaxBodyBytes: 10 * 1024 * 1024,
			UserAgent:    "Mozilla/5.0 (compatible; pagechat/1.0)",
		},
		Admission: AdmissionConfig{
			Capacity: 3,
		},
		LLM: LLMConfig{
			Provider:  "gemini",
			Model:     "gemini-2.0-flash",
			Timeout:   60 * time.Second,
			MaxTokens: 4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "pagechat",
		},
	}
}

// Load reads path (or DefaultPath when path is empty and the file exists)
// over the defaults, then applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from PAGECHAT_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("PAGECHAT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("PAGECHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PAGECHAT_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("PAGECHAT_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("PAGECHAT_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("PAGECHAT_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("PAGECHAT_ADMISSION_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PAGECHAT_ADMISSION_CAPACITY: %w", err)
		}
		c.Admission.Capacity = n
	}
	return nil
}

// ApplyDefaults fills zero values that have no meaningful zero setting.
func (c *Config) ApplyDefaults() {
	d := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = d.Fetch.Timeout
	}
	if c.Fetch.MaxChars == 0 {
		c.Fetch.MaxChars = d.Fetch.MaxChars
	}
	if c.Fetch.MaxBodyBytes == 0 {
		c.Fetch.MaxBodyBytes = d.Fetch.MaxBodyBytes
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = d.LLM.Provider
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = d.LLM.Timeout
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = d.LLM.MaxTokens
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Fetch.MaxChars < 0 {
		return fmt.Errorf("fetch.max_chars must be positive")
	}
	if c.Admission.Capacity <= 0 {
		return fmt.Errorf("admission.capacity must be at least 1")
	}
	if c.Admission.WaitTimeout < 0 || c.Cache.TTL < 0 || c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache and admission limits must not be negative")
	}
	switch c.LLM.Provider {
	case "gemini", "gemini-sdk", "openai", "anthropic":
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}
	if c.Telemetry.Enabled {
		switch c.Telemetry.Protocol {
		case "grpc", "http":
		default:
			return fmt.Errorf("unknown telemetry.protocol %q", c.Telemetry.Protocol)
		}
		if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
			return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1, got %v", c.Telemetry.SampleRatio)
		}
	}
	return nil
}
