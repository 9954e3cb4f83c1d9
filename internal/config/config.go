// Package config loads webcloner configuration from a YAML file, a .env file
// and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Renderer names.
const (
	RendererBrowserbase = "browserbase"
	RendererCDP         = "cdp"
	RendererLocal       = "local"
	RendererHTTP        = "http"
)

// Provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config is the top-level configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Security SecurityConfig `yaml:"security"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Extract  ExtractConfig  `yaml:"extract"`
	Palette  PaletteConfig  `yaml:"palette"`
	Synth    SynthConfig    `yaml:"synth"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// MaxConcurrent bounds in-flight clone runs. 0 means unbounded.
	MaxConcurrent     int           `yaml:"max_concurrent"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MCP               *bool         `yaml:"mcp"`
}

// SecurityConfig controls target acceptance and API access.
type SecurityConfig struct {
	AllowPrivateTargets bool `yaml:"allow_private_targets"`
	// TokenHash is the bcrypt hash of the API bearer token. Empty disables
	// the guard.
	TokenHash string `yaml:"token_hash"`
}

// FetchConfig controls page rendering.
type FetchConfig struct {
	Renderer          string            `yaml:"renderer"` // browserbase | cdp | local | http
	Budget            time.Duration     `yaml:"budget"`
	RetryBackoff      time.Duration     `yaml:"retry_backoff"`
	NavigationTimeout time.Duration     `yaml:"navigation_timeout"`
	IdleWindow        time.Duration     `yaml:"idle_window"`
	SettleDelay       time.Duration     `yaml:"settle_delay"`
	Stealth           *bool             `yaml:"stealth"`
	BlockResources    []string          `yaml:"block_resources"`
	IgnoreCertErrors  bool              `yaml:"ignore_cert_errors"`
	FallbackHTTP      bool              `yaml:"fallback_http"`
	UserAgent         string            `yaml:"user_agent"`
	CDPURL            string            `yaml:"cdp_url"`
	ChromeBin         string            `yaml:"chrome_bin"`
	NoSandbox         bool              `yaml:"no_sandbox"`
	Browserbase       BrowserbaseConfig `yaml:"browserbase"`
	Breaker           BreakerConfig     `yaml:"breaker"`
}

// BrowserbaseConfig holds the remote browser service credentials.
type BrowserbaseConfig struct {
	APIKey         string        `yaml:"api_key"`
	ProjectID      string        `yaml:"project_id"`
	BaseURL        string        `yaml:"base_url"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

// BreakerConfig configures a circuit breaker. Threshold 0 disables it.
type BreakerConfig struct {
	Threshold int           `yaml:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

// ExtractConfig controls summary extraction.
type ExtractConfig struct {
	// MarkdownLimit caps the markdown excerpt in bytes. Negative disables it.
	MarkdownLimit int `yaml:"markdown_limit"`
}

// PaletteConfig controls palette derivation.
type PaletteConfig struct {
	MaxSize int `yaml:"max_size"`
	// MergeDistance merges colors closer than this RGB distance. 0 means
	// exact-match deduplication only.
	MergeDistance float64 `yaml:"merge_distance"`
}

// SynthConfig controls document generation.
type SynthConfig struct {
	Provider        string        `yaml:"provider"` // anthropic | gemini
	Model           string        `yaml:"model"`
	Temperature     *float64      `yaml:"temperature"`
	MaxTokens       int           `yaml:"max_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	GeminiAPIKey    string        `yaml:"gemini_api_key"`
	BaseURL         string        `yaml:"base_url"`
	Limits          LimitsConfig  `yaml:"limits"`
	Breaker         BreakerConfig `yaml:"breaker"`
}

// LimitsConfig bounds the prompt payload. Zero values take the defaults.
type LimitsConfig struct {
	Navigation int `yaml:"navigation"`
	Buttons    int `yaml:"buttons"`
	Components int `yaml:"components"`
	Images     int `yaml:"images"`
	TextBlocks int `yaml:"text_blocks"`
	MaxBytes   int `yaml:"max_bytes"`
}

// LedgerConfig controls the SQLite run ledger.
type LedgerConfig struct {
	// Path of the database file. Empty disables the ledger.
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// Load reads the YAML file at path (optional when empty), loads .env from
// the working directory if present, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		c.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.MCP == nil {
		c.Server.MCP = ptr(true)
	}

	if c.Fetch.Renderer == "" {
		c.Fetch.Renderer = RendererBrowserbase
	}
	if c.Fetch.Budget <= 0 {
		c.Fetch.Budget = 60 * time.Second
	}
	if c.Fetch.RetryBackoff <= 0 {
		c.Fetch.RetryBackoff = time.Second
	}
	if c.Fetch.NavigationTimeout <= 0 {
		c.Fetch.NavigationTimeout = 30 * time.Second
	}
	if c.Fetch.IdleWindow <= 0 {
		c.Fetch.IdleWindow = 500 * time.Millisecond
	}
	if c.Fetch.SettleDelay <= 0 {
		c.Fetch.SettleDelay = 2 * time.Second
	}
	if c.Fetch.Stealth == nil {
		c.Fetch.Stealth = ptr(true)
	}
	if c.Fetch.Browserbase.SessionTimeout <= 0 {
		c.Fetch.Browserbase.SessionTimeout = 5 * time.Minute
	}
	if c.Fetch.Breaker.Cooldown <= 0 {
		c.Fetch.Breaker.Cooldown = 30 * time.Second
	}

	if c.Palette.MaxSize <= 0 {
		c.Palette.MaxSize = 12
	}

	if c.Synth.Provider == "" {
		c.Synth.Provider = ProviderAnthropic
	}
	if c.Synth.Temperature == nil {
		c.Synth.Temperature = ptr(0.05)
	}
	if c.Synth.MaxTokens <= 0 {
		c.Synth.MaxTokens = 8192
	}
	if c.Synth.Timeout <= 0 {
		c.Synth.Timeout = 120 * time.Second
	}
	if c.Synth.RetryBackoff <= 0 {
		c.Synth.RetryBackoff = 2 * time.Second
	}
	if c.Synth.RateLimitBurst <= 0 {
		c.Synth.RateLimitBurst = 1
	}
	if c.Synth.Breaker.Cooldown <= 0 {
		c.Synth.Breaker.Cooldown = 30 * time.Second
	}

	if c.Ledger.RetentionDays <= 0 {
		c.Ledger.RetentionDays = 30
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	// Needs the fetch and synth defaults above.
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = c.RunBound() + writeMargin
	}
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("WEBCLONER_ADDR", &c.Server.Addr)
	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(strings.TrimSpace(v), ":")
	}
	str("WEBCLONER_TOKEN_HASH", &c.Security.TokenHash)
	str("WEBCLONER_RENDERER", &c.Fetch.Renderer)
	str("WEBCLONER_CDP_URL", &c.Fetch.CDPURL)
	str("WEBCLONER_CHROME_BIN", &c.Fetch.ChromeBin)
	str("BROWSERBASE_API_KEY", &c.Fetch.Browserbase.APIKey)
	str("BROWSERBASE_PROJECT_ID", &c.Fetch.Browserbase.ProjectID)
	str("WEBCLONER_PROVIDER", &c.Synth.Provider)
	str("WEBCLONER_MODEL", &c.Synth.Model)
	str("ANTHROPIC_API_KEY", &c.Synth.AnthropicAPIKey)
	str("GEMINI_API_KEY", &c.Synth.GeminiAPIKey)
	str("WEBCLONER_LEDGER_PATH", &c.Ledger.Path)
	str("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("WEBCLONER_MAX_CONCURRENT"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: WEBCLONER_MAX_CONCURRENT: %w", err)
		}
		c.Server.MaxConcurrent = n
	}
	if v, ok := lookup("WEBCLONER_ALLOW_PRIVATE_TARGETS"); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: WEBCLONER_ALLOW_PRIVATE_TARGETS: %w", err)
		}
		c.Security.AllowPrivateTargets = b
	}
	return nil
}

// writeMargin covers validation, extraction and response encoding on top of
// RunBound.
const writeMargin = 30 * time.Second

// RunBound is the longest a clone run can take: the whole fetch budget, two
// synth attempts and the backoff between them. Rate limiter waits happen
// inside an attempt's timeout.
func (c *Config) RunBound() time.Duration {
	return c.Fetch.Budget + 2*c.Synth.Timeout + c.Synth.RetryBackoff
}

// Validate checks provider selection, required credentials and timeouts.
func (c *Config) Validate() error {
	var errs []error
	switch c.Fetch.Renderer {
	case RendererBrowserbase:
		if c.Fetch.Browserbase.APIKey == "" || c.Fetch.Browserbase.ProjectID == "" {
			errs = append(errs, errors.New("fetch: browserbase renderer needs BROWSERBASE_API_KEY and BROWSERBASE_PROJECT_ID"))
		}
	case RendererCDP:
		if c.Fetch.CDPURL == "" {
			errs = append(errs, errors.New("fetch: cdp renderer needs cdp_url"))
		}
	case RendererLocal, RendererHTTP:
	default:
		errs = append(errs, fmt.Errorf("fetch: unknown renderer %q", c.Fetch.Renderer))
	}

	switch c.Synth.Provider {
	case ProviderAnthropic:
		if c.Synth.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("synth: anthropic provider needs ANTHROPIC_API_KEY"))
		}
	case ProviderGemini:
		if c.Synth.GeminiAPIKey == "" {
			errs = append(errs, errors.New("synth: gemini provider needs GEMINI_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("synth: unknown provider %q", c.Synth.Provider))
	}
	if t := *c.Synth.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("synth: temperature %v out of range [0, 2]", t))
	}

	if c.Server.MaxConcurrent < 0 {
		errs = append(errs, errors.New("server: max_concurrent must be >= 0"))
	}
	if bound := c.RunBound(); c.Server.WriteTimeout < bound {
		errs = append(errs, fmt.Errorf("server: write_timeout %s is shorter than the longest run (%s); responses would be cut off", c.Server.WriteTimeout, bound))
	}
	if c.Palette.MergeDistance < 0 {
		errs = append(errs, errors.New("palette: merge_distance must be >= 0"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log: unknown level %q", c.Log.Level))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
