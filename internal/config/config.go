package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables that override file configuration.
const (
	EnvAPIBaseURL = "MEMOMIND_API_BASE_URL"
	EnvLogLevel   = "MEMOMIND_LOG_LEVEL"
	EnvViewerPort = "MEMOMIND_VIEWER_PORT"
)

// Config holds application configuration.
type Config struct {
	// APIBaseURL is the backend base URL every request path is resolved against.
	APIBaseURL string `json:"api_base_url"`

	// RequestTimeoutSeconds bounds ordinary API calls.
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`

	// GenerateTimeoutSeconds bounds generate, export, follow-up and upload calls,
	// which trigger slow backend work.
	GenerateTimeoutSeconds int `json:"generate_timeout_seconds"`

	// SaveTimeoutSeconds bounds save calls.
	SaveTimeoutSeconds int `json:"save_timeout_seconds"`

	// DedupeTTLSeconds is how long a completed initial generation keeps
	// suppressing repeat triggers for the same item.
	DedupeTTLSeconds int `json:"dedupe_ttl_seconds"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// LogFile overrides the rotated log file location (default: <base>/logs/memomind.log).
	LogFile string `json:"log_file,omitempty"`

	// ViewerBind and ViewerPort address the local artifact viewer.
	ViewerBind string `json:"viewer_bind,omitempty"`
	ViewerPort int    `json:"viewer_port,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "notes", "mcqs", "flashcards", "content", "file".
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:             "http://localhost:5000/api",
		RequestTimeoutSeconds:  30,
		GenerateTimeoutSeconds: 300,
		SaveTimeoutSeconds:     60,
		DedupeTTLSeconds:       600,
		LogLevel:               "info",
		ViewerBind:             "127.0.0.1",
		ViewerPort:             8765,
	}
}

// RequestTimeout returns the default per-call timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// GenerateTimeout returns the extended timeout for generation work.
func (c *Config) GenerateTimeout() time.Duration {
	return time.Duration(c.GenerateTimeoutSeconds) * time.Second
}

// SaveTimeout returns the timeout used for save calls.
func (c *Config) SaveTimeout() time.Duration {
	return time.Duration(c.SaveTimeoutSeconds) * time.Second
}

// DedupeTTL returns how long completed initial generations stay deduplicated.
func (c *Config) DedupeTTL() time.Duration {
	return time.Duration(c.DedupeTTLSeconds) * time.Second
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.memomind.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.memomind) and repo (.memomind) directories.
// Repo config is found by walking upward from startDir to find the nearest .memomind/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
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

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .memomind/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".memomind", "config.json")
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

// ApplyEnv overlays environment overrides onto cfg. A .env file at envFile is
// loaded first when present; variables already set in the process win.
func ApplyEnv(cfg *Config, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	overlay := &Config{}
	if v := strings.TrimSpace(os.Getenv(EnvAPIBaseURL)); v != "" {
		overlay.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		overlay.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvViewerPort)); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.New(EnvViewerPort + " must be an integer")
		}
		overlay.ViewerPort = port
	}
	return Merge(cfg, overlay), nil
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

	result.APIBaseURL = pickString(overlay.APIBaseURL, base.APIBaseURL)
	result.LogLevel = pickString(overlay.LogLevel, base.LogLevel)
	result.LogFile = pickString(overlay.LogFile, base.LogFile)
	result.ViewerBind = pickString(overlay.ViewerBind, base.ViewerBind)

	result.RequestTimeoutSeconds = pickInt(overlay.RequestTimeoutSeconds, base.RequestTimeoutSeconds)
	result.GenerateTimeoutSeconds = pickInt(overlay.GenerateTimeoutSeconds, base.GenerateTimeoutSeconds)
	result.SaveTimeoutSeconds = pickInt(overlay.SaveTimeoutSeconds, base.SaveTimeoutSeconds)
	result.DedupeTTLSeconds = pickInt(overlay.DedupeTTLSeconds, base.DedupeTTLSeconds)
	result.ViewerPort = pickInt(overlay.ViewerPort, base.ViewerPort)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

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

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
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
