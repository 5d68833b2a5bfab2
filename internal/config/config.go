// Package config handles loading and managing glider configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the glider configuration.
type Config struct {
	Data     DataConfig      `toml:"data"`
	OAuth    OAuthConfig     `toml:"oauth"`
	Gmail    GmailConfig     `toml:"gmail"`
	Analysis AnalysisConfig  `toml:"analysis"`
	Server   ServerConfig    `toml:"server"`
	Owners   []OwnerSchedule `toml:"owners"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// OAuthConfig holds OAuth client configuration. Either ClientSecrets or the
// ClientID/ClientSecret pair identifies the application.
type OAuthConfig struct {
	ClientSecrets string        `toml:"client_secrets"`
	ClientID      string        `toml:"client_id"`
	ClientSecret  string        `toml:"client_secret"`
	SafetyMargin  time.Duration `toml:"safety_margin"`
}

// GmailConfig holds mailbox ingestion settings.
type GmailConfig struct {
	MaxResults     int           `toml:"max_results"`
	DaysBack       int           `toml:"days_back"`
	FetchChunkSize int           `toml:"fetch_chunk_size"`
	MaxConcurrent  int           `toml:"max_concurrent"`
	TasksPerWindow int           `toml:"tasks_per_window"`
	Window         time.Duration `toml:"window"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

// AnalysisConfig holds model and batching settings.
type AnalysisConfig struct {
	APIKey          string        `toml:"api_key"`
	BaseURL         string        `toml:"base_url"`
	Model           string        `toml:"model"`
	BatchSize       int           `toml:"batch_size"`
	Concurrency     int           `toml:"concurrency"`
	Temperature     float64       `toml:"temperature"`
	MaxTokens       int           `toml:"max_tokens"`
	SingleMaxTokens int           `toml:"single_max_tokens"`
	BodyWordLimit   int           `toml:"body_word_limit"`
	PromptCharLimit int           `toml:"prompt_char_limit"`
	TaskTimeout     time.Duration `toml:"task_timeout"`
	UnanalyzedLimit int           `toml:"unanalyzed_limit"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort      int      `toml:"api_port"`
	BindAddr     string   `toml:"bind_addr"`
	APIKey       string   `toml:"api_key"`
	CORSOrigins  []string `toml:"cors_origins"`
	RateLimitRPS float64  `toml:"rate_limit_rps"`
}

// OwnerSchedule defines the periodic sync schedule for one mailbox owner.
type OwnerSchedule struct {
	ID       string `toml:"id"`
	Schedule string `toml:"schedule"` // cron expression, e.g. "*/15 * * * *"
	Enabled  bool   `toml:"enabled"`
}

// DefaultHome returns the default glider home directory.
// Respects the GLIDER_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("GLIDER_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".glider"
	}
	return filepath.Join(home, ".glider")
}

// NewDefaultConfig returns a configuration with every default applied and
// the given home directory.
func NewDefaultConfig(homeDir string) *Config {
	return &Config{
		HomeDir: homeDir,
		Data: DataConfig{
			DataDir: homeDir,
		},
		OAuth: OAuthConfig{
			SafetyMargin: 5 * time.Minute,
		},
		Gmail: GmailConfig{
			MaxResults:     50,
			DaysBack:       7,
			FetchChunkSize: 10,
			MaxConcurrent:  10,
			TasksPerWindow: 10,
			Window:         time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Analysis: AnalysisConfig{
			BaseURL:         "https://api.anthropic.com",
			Model:           "claude-3-5-sonnet-20241022",
			BatchSize:       10,
			Concurrency:     3,
			Temperature:     0.3,
			MaxTokens:       8192,
			SingleMaxTokens: 4096,
			BodyWordLimit:   500,
			PromptCharLimit: 1500,
			TaskTimeout:     2 * time.Minute,
			UnanalyzedLimit: 50,
		},
		Server: ServerConfig{
			APIPort:      8080,
			BindAddr:     "127.0.0.1",
			RateLimitRPS: 10,
		},
		Owners: []OwnerSchedule{},
	}
}

// Load reads the configuration. homeDir overrides the default home
// directory when non-empty; path overrides <home>/config.toml. A missing
// file at the default location yields the defaults, while an explicit path
// must exist.
func Load(path, homeDir string) (*Config, error) {
	if homeDir == "" {
		homeDir = DefaultHome()
	} else {
		homeDir = expandPath(homeDir)
	}

	explicit := path != ""
	if !explicit {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := NewDefaultConfig(homeDir)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if explicit {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		cfg.applyEnv()
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if strings.Contains(err.Error(), "escape") {
			return nil, fmt.Errorf("decode config: %w (use single quotes or forward slashes for Windows paths)", err)
		}
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	cfg.OAuth.ClientSecrets = expandPath(cfg.OAuth.ClientSecrets)
	cfg.applyEnv()

	return cfg, nil
}

// applyEnv fills secrets that were left empty from the environment.
func (c *Config) applyEnv() {
	if c.Analysis.APIKey == "" {
		c.Analysis.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.Server.APIKey == "" {
		c.Server.APIKey = os.Getenv("GLIDER_API_KEY")
	}
}

// ConfigFilePath returns the path of the config file under HomeDir.
func (c *Config) ConfigFilePath() string {
	return filepath.Join(c.HomeDir, "config.toml")
}

// DatabasePath returns the path to the SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.DataDir, "glider.db")
}

// ScheduledOwners returns owners with scheduling enabled.
func (c *Config) ScheduledOwners() []OwnerSchedule {
	var scheduled []OwnerSchedule
	for _, o := range c.Owners {
		if o.Enabled && o.Schedule != "" {
			scheduled = append(scheduled, o)
		}
	}
	return scheduled
}

// ScheduleFor returns a copy of the schedule for owner, or nil when the
// owner is not configured.
func (c *Config) ScheduleFor(owner string) *OwnerSchedule {
	for _, o := range c.Owners {
		if o.ID == owner {
			cp := o
			return &cp
		}
	}
	return nil
}

// HasOAuthClient reports whether enough OAuth client configuration is
// present to refresh credentials.
func (c *Config) HasOAuthClient() bool {
	return c.OAuth.ClientSecrets != "" || (c.OAuth.ClientID != "" && c.OAuth.ClientSecret != "")
}

// Purpose selects which parts of the configuration Validate checks.
type Purpose int

const (
	// ForIngest requires an OAuth client.
	ForIngest Purpose = 1 << iota
	// ForAnalysis requires a model API key.
	ForAnalysis
	// ForServe requires a safe server binding.
	ForServe
)

// Validate reports configuration that cannot work for the given purposes.
func (c *Config) Validate(p Purpose) error {
	var errs []error

	if p&ForIngest != 0 && !c.HasOAuthClient() {
		errs = append(errs, errors.New("oauth: client_secrets or client_id/client_secret is required"))
	}
	if p&ForAnalysis != 0 && c.Analysis.APIKey == "" {
		errs = append(errs, errors.New("analysis: api_key is required (or set ANTHROPIC_API_KEY)"))
	}
	if p&ForServe != 0 {
		if c.Server.APIPort <= 0 || c.Server.APIPort > 65535 {
			errs = append(errs, fmt.Errorf("server: invalid api_port %d", c.Server.APIPort))
		}
		if !IsLoopback(c.Server.BindAddr) && c.Server.APIKey == "" {
			errs = append(errs, fmt.Errorf("server: api_key is required when binding to non-loopback address %q", c.Server.BindAddr))
		}
	}

	if c.Gmail.FetchChunkSize > 100 {
		errs = append(errs, fmt.Errorf("gmail: fetch_chunk_size %d exceeds 100", c.Gmail.FetchChunkSize))
	}
	if c.Analysis.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("analysis: batch_size must be positive, got %d", c.Analysis.BatchSize))
	}
	for _, o := range c.Owners {
		if o.ID == "" {
			errs = append(errs, errors.New("owners: id is required"))
		}
	}

	return errors.Join(errs...)
}

// IsLoopback reports whether addr is a loopback host. An empty address
// means the 127.0.0.1 default.
func IsLoopback(addr string) bool {
	if addr == "" || addr == "localhost" {
		return true
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
