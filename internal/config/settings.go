package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Bounds applied to Settings at use time.
const (
	MinCharsPerPage = 1000
	MinConcurrency  = 1
	MaxConcurrency  = 10
)

// Settings holds the Azure OpenAI connection used by analysis runs and asks.
// JSON field names match the wire protocol.
type Settings struct {
	Endpoint            string `yaml:"endpoint" json:"endpoint"`
	APIKey              string `yaml:"api_key" json:"apiKey"`
	ChatDeployment      string `yaml:"chat_deployment" json:"chatDeployment"`
	EmbeddingDeployment string `yaml:"embedding_deployment" json:"embeddingDeployment"`
	APIVersion          string `yaml:"api_version" json:"apiVersion"`
	MaxCharsPerPage     int    `yaml:"max_chars_per_page" json:"maxCharsPerPage"`
	MaxConcurrency      int    `yaml:"max_concurrency" json:"maxConcurrency"`
}

// DefaultSettings returns settings with no credentials and default limits.
func DefaultSettings() Settings {
	return Settings{
		APIVersion:      "2024-10-21",
		MaxCharsPerPage: 12000,
		MaxConcurrency:  2,
	}
}

// Missing lists the required fields that are empty, by wire name.
func (s Settings) Missing() []string {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"endpoint", s.Endpoint},
		{"apiKey", s.APIKey},
		{"chatDeployment", s.ChatDeployment},
		{"embeddingDeployment", s.EmbeddingDeployment},
		{"apiVersion", s.APIVersion},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Complete reports whether every required field is set.
func (s Settings) Complete() bool {
	return len(s.Missing()) == 0
}

// EffectiveMaxChars is MaxCharsPerPage floored at MinCharsPerPage.
func (s Settings) EffectiveMaxChars() int {
	return max(MinCharsPerPage, s.MaxCharsPerPage)
}

// EffectiveConcurrency is MaxConcurrency clamped to [1, 10].
func (s Settings) EffectiveConcurrency() int {
	return min(MaxConcurrency, max(MinConcurrency, s.MaxConcurrency))
}

// Redacted returns a copy safe for logs and status output.
func (s Settings) Redacted() Settings {
	if s.APIKey != "" {
		s.APIKey = "****"
	}
	return s
}

// SettingsProvider yields the current settings. Implementations re-read
// their source on every call.
type SettingsProvider interface {
	Settings(ctx context.Context) (Settings, error)
}

// StaticSettings is a fixed SettingsProvider.
type StaticSettings Settings

// Settings implements SettingsProvider.
func (s StaticSettings) Settings(context.Context) (Settings, error) {
	return Settings(s), nil
}

// SettingsFile persists settings as YAML. Fields left empty in the file
// fall back to the configured defaults (config file and environment).
type SettingsFile struct {
	path     string
	fallback Settings

	mu sync.Mutex
}

// NewSettingsFile creates a SettingsFile at path.
func NewSettingsFile(path string, fallback Settings) *SettingsFile {
	return &SettingsFile{path: path, fallback: fallback}
}

// Path returns the settings file location.
func (f *SettingsFile) Path() string {
	return f.path
}

// Settings implements SettingsProvider.
func (f *SettingsFile) Settings(_ context.Context) (Settings, error) {
	saved, _, err := f.Load()
	if err != nil {
		return Settings{}, err
	}
	return mergeSettings(f.fallback, saved), nil
}

// Load returns the saved settings and whether the file exists.
func (f *SettingsFile) Load() (Settings, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Settings{}, false, nil
	}
	if err != nil {
		return Settings{}, false, fmt.Errorf("failed to read settings %s: %w", f.path, err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, false, fmt.Errorf("failed to parse settings %s: %w", f.path, err)
	}
	return s, true, nil
}

// Save replaces the settings file atomically.
func (f *SettingsFile) Save(s Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}

func mergeSettings(base, over Settings) Settings {
	pick := func(a, b string) string {
		if strings.TrimSpace(b) != "" {
			return b
		}
		return a
	}
	out := Settings{
		Endpoint:            pick(base.Endpoint, over.Endpoint),
		APIKey:              pick(base.APIKey, over.APIKey),
		ChatDeployment:      pick(base.ChatDeployment, over.ChatDeployment),
		EmbeddingDeployment: pick(base.EmbeddingDeployment, over.EmbeddingDeployment),
		APIVersion:          pick(base.APIVersion, over.APIVersion),
		MaxCharsPerPage:     base.MaxCharsPerPage,
		MaxConcurrency:      base.MaxConcurrency,
	}
	if over.MaxCharsPerPage != 0 {
		out.MaxCharsPerPage = over.MaxCharsPerPage
	}
	if over.MaxConcurrency != 0 {
		out.MaxConcurrency = over.MaxConcurrency
	}
	return out
}
