// Package config provides configuration loading for chatindexd.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// tomlParser adapts BurntSushi/toml to koanf's Parser interface so operators
// who prefer a chatindexd.toml over config.yaml get it without any extra
// wiring; selection is by file extension.
type tomlParser struct{}

func (tomlParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := toml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (tomlParser) Marshal(v map[string]interface{}) ([]byte, error) {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(v); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// LoadWithFile loads configuration from a YAML or TOML file (selected by
// extension), then overrides with environment variables, then applies
// defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (INGEST_PERSIST_DIRECTORY, HTTP_ADDR, etc.)
//  2. Config file (~/.config/chatindexd/config.yaml or config.toml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the file to load. If empty, uses the
// default path ~/.config/chatindexd/config.yaml.
//
// # Security considerations
//
// Configuration file MUST have 0600 or 0400 permissions. Only files inside
// ~/.config/chatindexd/ or /etc/chatindexd/ may be loaded, and files larger
// than 1MB are rejected.
//
// # Environment variable mapping
//
// Environment variables use underscore separation and are uppercased. The
// transformer splits on the first underscore only (section.field pattern):
//
//	INGEST_PERSIST_DIRECTORY -> ingest.persist_directory
//	HTTP_ADDR                -> http.addr
//	WATCH_ENABLED             -> watch.enabled
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "chatindexd", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		parser := parserFor(configPath)
		if err := k.Load(rawbytes.Provider(content), parser); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// parserFor picks the koanf parser by file extension; unknown extensions
// fall back to YAML, matching the default config file name.
func parserFor(path string) koanf.Parser {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return tomlParser{}
	}
	return yaml.Parser()
}

// EnsureConfigDir creates the chatindexd config directory if it doesn't
// exist, with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	configDir := filepath.Join(home, ".config", "chatindexd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// validateConfigPath checks if path is in an allowed directory. Runs even
// if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "chatindexd"),
		"/etc/chatindexd",
	}

	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/chatindexd/ or /etc/chatindexd/")
}

// validateConfigFileProperties checks file permissions and size. Only runs
// if the file exists.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10_000_000_000) // 10s
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:8099"
	}

	if cfg.Ingest.LexicalFanout == 0 {
		cfg.Ingest.LexicalFanout = 5
	}

	if cfg.VectorStore.CallConcurrency == 0 {
		cfg.VectorStore.CallConcurrency = 1
	}
	if cfg.VectorStore.WorkerPath == "" {
		if exe, err := os.Executable(); err == nil {
			cfg.VectorStore.WorkerPath = filepath.Join(filepath.Dir(exe), "vectorworker")
		}
	}

	if cfg.Embeddings.ModelName == "" {
		cfg.Embeddings.ModelName = "BAAI/bge-small-en-v1.5"
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = Duration(2_000_000_000) // 2s
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
