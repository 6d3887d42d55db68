package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "30s" or "2m"
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the merged settings tree every command runs with.
type Config struct {
	Network       NetworkConfig      `yaml:"network" json:"network"`
	RateLimit     RateLimitConfig    `yaml:"rate_limit" json:"rate_limit"`
	Output        OutputConfig       `yaml:"output" json:"output"`
	Download      DownloadConfig     `yaml:"download" json:"download"`
	Retry         RetryConfig        `yaml:"retry" json:"retry"`
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`
	Logging       LoggingConfig      `yaml:"logging" json:"logging"`
}

// NetworkConfig holds HTTP transport configuration
type NetworkConfig struct {
	// Session is the site session cookie value; anonymous access works
	// for public creators, a session unlocks subscriber-only posts.
	Session       string `yaml:"session" json:"session"`
	UserAgent     string `yaml:"user_agent" json:"user_agent"`
	ProxyURL      string `yaml:"proxy_url" json:"proxy_url"`
	ProxyUser     string `yaml:"proxy_user" json:"proxy_user"`
	ProxyPassword string `yaml:"proxy_password" json:"proxy_password"`
	VerifyTLS     bool   `yaml:"verify_tls" json:"verify_tls"`
}

// RateLimitConfig caps how fast listing and file requests go out.
type RateLimitConfig struct {
	RequestsPerMinute int  `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int  `yaml:"burst_size" json:"burst_size"`
	BurstEnabled      bool `yaml:"burst_enabled" json:"burst_enabled"`
}

// OutputConfig holds output directory and side-file configuration
type OutputConfig struct {
	BaseDirectory   string `yaml:"base_directory" json:"base_directory"`
	SavePostInfo    bool   `yaml:"save_post_info" json:"save_post_info"`
	PostInfoFormat  string `yaml:"post_info_format" json:"post_info_format"`
	SaveProfileInfo bool   `yaml:"save_profile_info" json:"save_profile_info"`
}

// DownloadConfig holds concurrency and transfer configuration
type DownloadConfig struct {
	ConcurrentDownloads int      `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	PerHostLimit        int      `yaml:"per_host_limit" json:"per_host_limit"`
	DownloadTimeout     Duration `yaml:"download_timeout" json:"download_timeout"`
	IncludeEmptyPosts   bool     `yaml:"include_empty_posts" json:"include_empty_posts"`
	OldestFirst         bool     `yaml:"oldest_first" json:"oldest_first"`
	VerifyExisting      bool     `yaml:"verify_existing" json:"verify_existing"`
}

// RetryConfig holds retry/backoff configuration
type RetryConfig struct {
	MaxAttempts  int      `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay    Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay     Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64  `yaml:"multiplier" json:"multiplier"`
	JitterFactor float64  `yaml:"jitter_factor" json:"jitter_factor"`
}

// NotificationConfig selects which desktop notifications fire.
type NotificationConfig struct {
	Enabled     bool `yaml:"enabled" json:"enabled"`
	OnComplete  bool `yaml:"on_complete" json:"on_complete"`
	OnError     bool `yaml:"on_error" json:"on_error"`
	OnRateLimit bool `yaml:"on_rate_limit" json:"on_rate_limit"`
}

// LoggingConfig controls log level, encoding, and the optional file sink.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// DefaultConfig is the baseline every other configuration source
// overlays.
func DefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			VerifyTLS: true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         10,
			BurstEnabled:      true,
		},
		Output: OutputConfig{
			BaseDirectory:   "./downloads",
			SavePostInfo:    false,
			PostInfoFormat:  "md",
			SaveProfileInfo: false,
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 3,
			PerHostLimit:        0, // 0 disables the per-host cap
			DownloadTimeout:     Duration(5 * time.Minute),
			IncludeEmptyPosts:   false,
			OldestFirst:         false,
			VerifyExisting:      false,
		},
		Retry: RetryConfig{
			MaxAttempts:  5,
			BaseDelay:    Duration(1 * time.Second),
			MaxDelay:     Duration(60 * time.Second),
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		Notifications: NotificationConfig{
			Enabled:     true,
			OnComplete:  true,
			OnError:     true,
			OnRateLimit: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// LoadFromEnv overlays settings from KEMONOGRAB_* environment
// variables. Unset variables leave the current value alone, and numeric
// variables that fail to parse are ignored rather than zeroing a field.
func (c *Config) LoadFromEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setPositiveInt := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}

	setString("KEMONOGRAB_SESSION", &c.Network.Session)
	setString("KEMONOGRAB_USER_AGENT", &c.Network.UserAgent)
	setString("KEMONOGRAB_PROXY_URL", &c.Network.ProxyURL)
	setString("KEMONOGRAB_OUTPUT_DIR", &c.Output.BaseDirectory)
	setString("KEMONOGRAB_LOG_LEVEL", &c.Logging.Level)
	setPositiveInt("KEMONOGRAB_REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute)
	setPositiveInt("KEMONOGRAB_CONCURRENT_DOWNLOADS", &c.Download.ConcurrentDownloads)

	if v := os.Getenv("KEMONOGRAB_NOTIFICATIONS_ENABLED"); v != "" {
		c.Notifications.Enabled = strings.EqualFold(v, "true")
	}

	return nil
}

// LoadFromFile overlays settings from the YAML file at path. An empty
// path means search the usual locations instead.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil // running without a config file is fine
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	return nil
}

// FindConfigFile returns the first config file present among the
// working directory and per-user locations, or "" when none exists.
func FindConfigFile() string {
	candidates := []string{
		".kemonograb.yaml",
		".kemonograb.yml",
		"kemonograb.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "kemonograb", "config.yaml"),
			filepath.Join(home, ".config", "kemonograb", "config.yml"),
			filepath.Join(home, ".kemonograb.yaml"),
			filepath.Join(home, ".kemonograb.yml"),
		)
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Validate reports every setting that would break a run. Messages name
// the offending YAML key so the fix is obvious, and all of them come
// back joined rather than just the first.
func (c *Config) Validate() error {
	var errs []error
	bad := func(cond bool, msg string) {
		if cond {
			errs = append(errs, errors.New(msg))
		}
	}

	bad(c.RateLimit.RequestsPerMinute <= 0, "rate_limit.requests_per_minute must be positive")
	bad(c.RateLimit.BurstSize <= 0, "rate_limit.burst_size must be positive")

	bad(c.Download.ConcurrentDownloads <= 0, "download.concurrent_downloads must be positive")
	bad(c.Download.ConcurrentDownloads > 10, "download.concurrent_downloads must not exceed 10")
	bad(c.Download.PerHostLimit < 0, "download.per_host_limit cannot be negative")
	bad(c.Download.PerHostLimit > c.Download.ConcurrentDownloads && c.Download.PerHostLimit > 0,
		"download.per_host_limit cannot exceed download.concurrent_downloads")
	bad(c.Download.DownloadTimeout <= 0, "download.download_timeout must be positive")

	bad(c.Retry.MaxAttempts < 1, "retry.max_attempts must be at least 1")
	bad(c.Retry.BaseDelay <= 0, "retry.base_delay must be positive")
	bad(c.Retry.MaxDelay < c.Retry.BaseDelay, "retry.max_delay must not be below retry.base_delay")
	bad(c.Retry.Multiplier < 1.0, "retry.multiplier must be at least 1.0")

	bad(c.Output.BaseDirectory == "", "output.base_directory must not be empty")
	switch strings.ToLower(c.Output.PostInfoFormat) {
	case "md", "txt":
	default:
		errs = append(errs, errors.New(`output.post_info_format must be "md" or "txt"`))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, errors.New("logging.level must be one of debug, info, warn, error"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, errors.New(`logging.format must be "text" or "json"`))
	}

	return errors.Join(errs...)
}

// Save writes the configuration to path as YAML, creating parent
// directories as needed. The file is mode 0600 since it may carry a
// session cookie.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}

	return nil
}

// MergeCommandLineFlags applies flag values on top of everything else.
// The map holds only flags the user actually set, keyed by flag name.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	setString := func(key string, dst *string) {
		if v, ok := flags[key].(string); ok && v != "" {
			*dst = v
		}
	}
	setPositiveInt := func(key string, dst *int) {
		if v, ok := flags[key].(int); ok && v > 0 {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := flags[key].(bool); ok {
			*dst = v
		}
	}

	setString("session", &c.Network.Session)
	setString("output", &c.Output.BaseDirectory)
	setString("log-level", &c.Logging.Level)
	setPositiveInt("concurrent-downloads", &c.Download.ConcurrentDownloads)
	setPositiveInt("requests-per-minute", &c.RateLimit.RequestsPerMinute)
	setPositiveInt("max-attempts", &c.Retry.MaxAttempts)
	setBool("notifications-enabled", &c.Notifications.Enabled)
	setBool("include-empty-posts", &c.Download.IncludeEmptyPosts)
	setBool("oldest-first", &c.Download.OldestFirst)
	setBool("verify-existing", &c.Download.VerifyExisting)

	// per-host-limit admits zero, which turns the cap off.
	if v, ok := flags["per-host-limit"].(int); ok && v >= 0 {
		c.Download.PerHostLimit = v
	}
	if v, ok := flags["download-timeout"].(int); ok && v > 0 {
		c.Download.DownloadTimeout = Duration(time.Duration(v) * time.Second)
	}
}

// Load assembles the effective configuration for a run. Sources apply
// in order, each overriding the last: built-in defaults, the config
// file, environment variables (with .env files folded in first), and
// finally command line flags.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Seed the environment from .env files when present; missing files
	// are not an error.
	_ = godotenv.Load(".env")
	if home, err := os.UserHomeDir(); err == nil {
		_ = godotenv.Load(filepath.Join(home, ".env"))
		_ = godotenv.Load(filepath.Join(home, ".kemonograb.env"))
	}

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, err
	}

	// Environment beats the file; godotenv has already folded .env
	// values into the environment by this point.
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("load environment overrides: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}
