// Package config provides configuration management for pagemind.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentVersion is the config file format version.
const CurrentVersion = 1

// Storage drivers.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverCGO     = "sqlite3" // github.com/mattn/go-sqlite3
)

// Cache backends for question embeddings.
const (
	CacheLRU   = "lru"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// Watch source kinds.
const (
	SourceTabs     = "tabs"
	SourceChrome   = "chrome"
	SourceNetscape = "netscape"
)

// Config is the complete pagemind configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	DataDir  string         `yaml:"data_dir" json:"data_dir"`
	Azure    Settings       `yaml:"azure" json:"azure"`
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Cache    CacheConfig    `yaml:"cache" json:"cache"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// PipelineConfig tunes page fetching.
type PipelineConfig struct {
	FetchTimeoutMS    int     `yaml:"fetch_timeout_ms" json:"fetch_timeout_ms"`
	UserAgent         string  `yaml:"user_agent" json:"user_agent"`
	MaxBodyBytes      int64   `yaml:"max_body_bytes" json:"max_body_bytes"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
	LinkLimit         int     `yaml:"link_limit" json:"link_limit"`
	CrossProcessLock  bool    `yaml:"cross_process_lock" json:"cross_process_lock"`
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	// Path is the database file; empty resolves to <data_dir>/pagemind.db.
	Path string `yaml:"path" json:"path"`
}

// CacheConfig configures the question-embedding cache.
type CacheConfig struct {
	Backend       string `yaml:"backend" json:"backend"`
	Size          int    `yaml:"size" json:"size"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"-"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	TTL           string `yaml:"ttl" json:"ttl"`
}

// WatchSource is a tab snapshot or bookmark file the daemon rescans on change.
type WatchSource struct {
	Kind    string   `yaml:"kind" json:"kind"`
	Path    string   `yaml:"path" json:"path"`
	Folders []string `yaml:"folders,omitempty" json:"folders,omitempty"`
}

// ServerConfig configures the daemon surfaces.
type ServerConfig struct {
	SocketPath string        `yaml:"socket_path" json:"socket_path"`
	PIDPath    string        `yaml:"pid_path" json:"pid_path"`
	HTTPAddr   string        `yaml:"http_addr" json:"http_addr"`
	DebounceMS int           `yaml:"debounce_ms" json:"debounce_ms"`
	Watch      []WatchSource `yaml:"watch,omitempty" json:"watch,omitempty"`
}

// LoggingConfig configures file logging and the in-memory debug ring.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
	RingSize  int    `yaml:"ring_size" json:"ring_size"`
}

// NewConfig returns a Config with defaults applied.
func NewConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		DataDir: DefaultDataDir(),
		Azure:   DefaultSettings(),
		Pipeline: PipelineConfig{
			FetchTimeoutMS:    15000,
			UserAgent:         "pagemind/1.0 (+https://github.com/Aman-CERP/pagemind)",
			MaxBodyBytes:      5 << 20,
			RequestsPerSecond: 4,
			Burst:             4,
			LinkLimit:         200,
			CrossProcessLock:  true,
		},
		Storage: StorageConfig{
			Driver: DriverModernc,
		},
		Cache: CacheConfig{
			Backend: CacheLRU,
			Size:    256,
			TTL:     "24h",
		},
		Server: ServerConfig{
			HTTPAddr:   "127.0.0.1:7433",
			DebounceMS: 500,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
			RingSize:  300,
		},
	}
}

// DefaultDataDir returns ~/.pagemind, or a temp directory fallback.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".pagemind")
	}
	return filepath.Join(home, ".pagemind")
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG base directory layout:
//   - $XDG_CONFIG_HOME/pagemind/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/pagemind/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pagemind", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "pagemind", "config.yaml")
	}
	return filepath.Join(home, ".config", "pagemind", "config.yaml")
}

// Load builds the configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/pagemind/config.yaml)
//  3. The explicit file at path, when non-empty
//  4. Environment variables (PAGEMIND_*)
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	userPath := GetUserConfigPath()
	if fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes path over the current values, so keys absent from the
// file keep their previous value. Unknown keys are rejected.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	str := map[string]*string{
		"PAGEMIND_DATA_DIR":             &c.DataDir,
		"PAGEMIND_AZURE_ENDPOINT":       &c.Azure.Endpoint,
		"PAGEMIND_AZURE_API_KEY":        &c.Azure.APIKey,
		"PAGEMIND_CHAT_DEPLOYMENT":      &c.Azure.ChatDeployment,
		"PAGEMIND_EMBEDDING_DEPLOYMENT": &c.Azure.EmbeddingDeployment,
		"PAGEMIND_API_VERSION":          &c.Azure.APIVersion,
		"PAGEMIND_DB_DRIVER":            &c.Storage.Driver,
		"PAGEMIND_DB_PATH":              &c.Storage.Path,
		"PAGEMIND_CACHE_BACKEND":        &c.Cache.Backend,
		"PAGEMIND_REDIS_ADDR":           &c.Cache.RedisAddr,
		"PAGEMIND_REDIS_PASSWORD":       &c.Cache.RedisPassword,
		"PAGEMIND_HTTP_ADDR":            &c.Server.HTTPAddr,
		"PAGEMIND_SOCKET_PATH":          &c.Server.SocketPath,
		"PAGEMIND_LOG_LEVEL":            &c.Logging.Level,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PAGEMIND_MAX_CHARS":        &c.Azure.MaxCharsPerPage,
		"PAGEMIND_MAX_CONCURRENCY":  &c.Azure.MaxConcurrency,
		"PAGEMIND_FETCH_TIMEOUT_MS": &c.Pipeline.FetchTimeoutMS,
		"PAGEMIND_CACHE_SIZE":       &c.Cache.Size,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}

	if v := os.Getenv("PAGEMIND_CROSS_PROCESS_LOCK"); v != "" {
		c.Pipeline.CrossProcessLock = strings.EqualFold(v, "true") || v == "1"
	}
}

// Validate checks the configuration for values that cannot work.
// Incomplete Azure settings are not an error here; runs report them as
// waiting for configuration instead.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if c.Pipeline.FetchTimeoutMS <= 0 {
		return fmt.Errorf("pipeline.fetch_timeout_ms must be positive, got %d", c.Pipeline.FetchTimeoutMS)
	}
	if c.Pipeline.RequestsPerSecond < 0 {
		return fmt.Errorf("pipeline.requests_per_second must be non-negative, got %f", c.Pipeline.RequestsPerSecond)
	}
	if c.Pipeline.LinkLimit < 0 {
		return fmt.Errorf("pipeline.link_limit must be non-negative, got %d", c.Pipeline.LinkLimit)
	}

	switch c.Storage.Driver {
	case DriverModernc, DriverCGO:
	default:
		return fmt.Errorf("storage.driver must be 'sqlite' or 'sqlite3', got %s", c.Storage.Driver)
	}

	switch strings.ToLower(c.Cache.Backend) {
	case CacheLRU, CacheNone:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New("cache.redis_addr is required when cache.backend is 'redis'")
		}
	default:
		return fmt.Errorf("cache.backend must be 'lru', 'redis', or 'none', got %s", c.Cache.Backend)
	}
	if c.Cache.TTL != "" {
		if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
			return fmt.Errorf("cache.ttl: %w", err)
		}
	}

	for i, w := range c.Server.Watch {
		switch w.Kind {
		case SourceTabs, SourceChrome, SourceNetscape:
		default:
			return fmt.Errorf("server.watch[%d].kind must be 'tabs', 'chrome', or 'netscape', got %s", i, w.Kind)
		}
		if w.Path == "" {
			return fmt.Errorf("server.watch[%d].path must not be empty", i)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// FetchTimeout returns the per-page fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Pipeline.FetchTimeoutMS) * time.Millisecond
}

// CacheTTL returns the parsed cache TTL, zero meaning no expiry.
func (c *Config) CacheTTL() time.Duration {
	d, _ := time.ParseDuration(c.Cache.TTL)
	return d
}

// DatabasePath resolves the record store path.
func (c *Config) DatabasePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(c.DataDir, "pagemind.db")
}

// SettingsPath is where saved Azure settings live.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.yaml")
}

// LockPath is the cross-process analysis lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "analysis.lock")
}

// SocketPath resolves the daemon socket path.
func (c *Config) SocketPath() string {
	if c.Server.SocketPath != "" {
		return c.Server.SocketPath
	}
	return filepath.Join(c.DataDir, "daemon.sock")
}

// PIDPath resolves the daemon PID file path.
func (c *Config) PIDPath() string {
	if c.Server.PIDPath != "" {
		return c.Server.PIDPath
	}
	return filepath.Join(c.DataDir, "daemon.pid")
}

// LogPath resolves the log file path.
func (c *Config) LogPath() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(c.DataDir, "logs", "pagemind.log")
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
