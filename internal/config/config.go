package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	// BaseURL is the REST base of the answer backend, e.g. "https://example.org/api".
	BaseURL string `json:"base_url"`

	// StreamURL is the websocket endpoint of the suggestion service.
	StreamURL string `json:"stream_url"`

	// StreamTimeoutMS bounds how long the stream branch may take before the HTTP fallback runs.
	StreamTimeoutMS int `json:"stream_timeout_ms"`

	// RefreshDelayMS is the settle delay before the authoritative history re-fetch.
	RefreshDelayMS int `json:"refresh_delay_ms"`

	// MaxSuggestions caps the number of suggested follow-up questions.
	MaxSuggestions int `json:"max_suggestions"`

	// MaxAnswerChars truncates the bot answer sent with a suggestion request (runes).
	MaxAnswerChars int `json:"max_answer_chars"`

	// ExtraBullets are additional glyphs recognized as unordered list markers (e.g. "•").
	ExtraBullets []string `json:"extra_bullets,omitempty"`

	// AllowRawHTML lets a chunk made of a single HTML element pass through unescaped.
	AllowRawHTML bool `json:"allow_raw_html,omitempty"`

	// UserID, Role and Specialization seed the CLI session profile.
	UserID         string `json:"user_id,omitempty"`
	Role           string `json:"role,omitempty"`
	Specialization string `json:"specialization,omitempty"`

	// RedisURL enables the redis-backed library cache in the dev server.
	// Empty means an in-memory cache.
	RedisURL string `json:"redis_url,omitempty"`

	// RateLimitRPS and RateLimitBurst bound the dev server's /ask routes per user.
	RateLimitRPS   float64 `json:"rate_limit_rps,omitempty"`
	RateLimitBurst int     `json:"rate_limit_burst,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections (dev server).
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections (dev server).
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes excludes every MCP tool of a type ("answer", "suggest", "history").
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "http://127.0.0.1:8080/api",
		StreamURL:       "ws://127.0.0.1:8080/ws",
		StreamTimeoutMS: 5000,
		RefreshDelayMS:  500,
		MaxSuggestions:  3,
		MaxAnswerChars:  2000,
		RateLimitRPS:    5,
		RateLimitBurst:  10,
	}
}

// StreamTimeout returns StreamTimeoutMS as a duration.
func (c *Config) StreamTimeout() time.Duration {
	return time.Duration(c.StreamTimeoutMS) * time.Millisecond
}

// RefreshDelay returns RefreshDelayMS as a duration.
func (c *Config) RefreshDelay() time.Duration {
	return time.Duration(c.RefreshDelayMS) * time.Millisecond
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.answerflow.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.answerflow) and project
// (.answerflow) directories. The project config is found by walking upward from
// startDir. Project config takes precedence for scalar values; arrays are merged.
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo
	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .answerflow/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".answerflow", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.BaseURL = pickString(overlay.BaseURL, base.BaseURL)
	result.StreamURL = pickString(overlay.StreamURL, base.StreamURL)
	result.UserID = pickString(overlay.UserID, base.UserID)
	result.Role = pickString(overlay.Role, base.Role)
	result.Specialization = pickString(overlay.Specialization, base.Specialization)
	result.RedisURL = pickString(overlay.RedisURL, base.RedisURL)

	result.StreamTimeoutMS = pickInt(overlay.StreamTimeoutMS, base.StreamTimeoutMS)
	result.RefreshDelayMS = pickInt(overlay.RefreshDelayMS, base.RefreshDelayMS)
	result.MaxSuggestions = pickInt(overlay.MaxSuggestions, base.MaxSuggestions)
	result.MaxAnswerChars = pickInt(overlay.MaxAnswerChars, base.MaxAnswerChars)
	result.RateLimitBurst = pickInt(overlay.RateLimitBurst, base.RateLimitBurst)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.RateLimitRPS = pickFloat(overlay.RateLimitRPS, base.RateLimitRPS)

	// Booleans: overlay wins if true, else base
	result.AllowRawHTML = base.AllowRawHTML || overlay.AllowRawHTML

	// Arrays: merge and deduplicate
	result.ExtraBullets = mergeStringSlice(base.ExtraBullets, overlay.ExtraBullets)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickFloat(overlay, base float64) float64 {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
