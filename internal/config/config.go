// Package config provides configuration loading for chatindexd.
//
// Configuration is loaded from a YAML file, then overridden by environment
// variables, then defaulted; see loader.go for the merge order. This file
// holds the Config struct itself and its validation.
package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strings"
)

// Config holds the complete chatindexd configuration.
type Config struct {
	Production  ProductionConfig
	Server      ServerConfig
	HTTP        HTTPConfig
	Ingest      IngestConfig
	VectorStore VectorStoreConfig `koanf:"vector_store"`
	Embeddings  EmbeddingsConfig
	Watch       WatchConfig
	Enrichment  EnrichmentConfig
	Logging     LoggingRef
}

// LoggingRef names the logging level/format at the top-level config
// surface; the detailed logging.Config lives in the sibling logging
// package and is built from these two fields plus its own defaults.
type LoggingRef struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ServerConfig holds process-lifecycle configuration.
type ServerConfig struct {
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// HTTPConfig holds the thin query/stats HTTP adapter's bind address.
type HTTPConfig struct {
	Addr string `koanf:"addr"` // default 127.0.0.1:8099
}

// IngestConfig names the on-disk roots chatindexd reads and writes.
type IngestConfig struct {
	// PersistDirectory is the root for all on-disk state: the lexical index
	// database, the vector worker's private subdirectory, and the
	// manifest/journal files.
	PersistDirectory string `koanf:"persist_directory"`

	// ProjectsDir is the root of agent session-log files (source: alpha).
	ProjectsDir string `koanf:"projects_dir"`

	// ExportsDir holds web-export ZIP archives (source: beta).
	ExportsDir string `koanf:"exports_dir"`

	// MemoryDir, if set, holds markdown memory files (source: beta).
	MemoryDir string `koanf:"memory_dir"`

	// ProjectFilter is a project label accepted from configuration. Ingest
	// does not read it and indexes every project; queries filter by project
	// only through the request's own project_filter.
	ProjectFilter string `koanf:"project_filter"`

	// LexicalFanout is the over-fetch multiplier applied to n_results before
	// lexical/vector fusion and truncation.
	LexicalFanout int `koanf:"lexical_fanout"`
}

// VectorStoreConfig configures the supervised vector-worker subprocess.
type VectorStoreConfig struct {
	// WorkerPath is the path to the cmd/vectorworker binary. Empty means
	// "look next to the daemon binary."
	WorkerPath string `koanf:"vector_worker_path"`

	// CallConcurrency sizes the planner's rate limiter for vector dispatch.
	CallConcurrency int `koanf:"call_concurrency"`
}

// EmbeddingsConfig configures the query/document embedder.
type EmbeddingsConfig struct {
	ModelName string `koanf:"embedding_model_name"`
	CacheDir  string `koanf:"cache_dir"`
}

// WatchConfig controls the fsnotify + embedded-NATS incremental-ingest
// trigger. Enabled is a pointer so applyDefaults can tell "unset" (defaults
// to true) apart from an explicit "enabled: false" in the config file or
// WATCH_ENABLED=false in the environment.
type WatchConfig struct {
	Enabled  *bool    `koanf:"enabled"`
	Debounce Duration `koanf:"debounce"`
}

// IsEnabled reports whether watch mode is active, treating an unset Enabled
// as true.
func (w WatchConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// EnrichmentConfig controls the optional LLM summary-enrichment step.
type EnrichmentConfig struct {
	Enabled bool   `koanf:"enable_enrichment"`
	Model   string `koanf:"model"`
	// Provider selects the langchaingo backend: "anthropic" or "openai".
	// Empty defaults to "anthropic".
	Provider string `koanf:"provider"`
	APIKey   Secret `koanf:"api_key"`
	BaseURL  string `koanf:"base_url"`
}

// Validate checks the configuration for internal consistency and returns a
// descriptive error for the first problem found.
func (c *Config) Validate() error {
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}

	if err := validateAddr(c.HTTP.Addr); err != nil {
		return fmt.Errorf("invalid http.addr: %w", err)
	}

	if c.Ingest.PersistDirectory == "" {
		return errors.New("ingest.persist_directory must be set")
	}
	if err := validatePath(c.Ingest.PersistDirectory); err != nil {
		return fmt.Errorf("invalid ingest.persist_directory: %w", err)
	}
	if c.Ingest.ProjectsDir != "" {
		if err := validatePath(c.Ingest.ProjectsDir); err != nil {
			return fmt.Errorf("invalid ingest.projects_dir: %w", err)
		}
	}
	if c.Ingest.ExportsDir != "" {
		if err := validatePath(c.Ingest.ExportsDir); err != nil {
			return fmt.Errorf("invalid ingest.exports_dir: %w", err)
		}
	}
	if c.Ingest.LexicalFanout <= 0 {
		return fmt.Errorf("ingest.lexical_fanout must be positive, got %d", c.Ingest.LexicalFanout)
	}

	if c.VectorStore.CallConcurrency <= 0 {
		return fmt.Errorf("vector_store.call_concurrency must be positive, got %d", c.VectorStore.CallConcurrency)
	}

	if c.Watch.IsEnabled() && c.Watch.Debounce.Duration() <= 0 {
		return errors.New("watch.debounce must be positive when watch.enabled is true")
	}

	if c.Enrichment.Enabled && c.Enrichment.Model == "" {
		return errors.New("enrichment.model required when enable_enrichment is true")
	}
	if c.Enrichment.Enabled && !c.Enrichment.APIKey.IsSet() {
		return errors.New("enrichment.api_key required when enable_enrichment is true")
	}

	if err := c.Production.Validate(); err != nil {
		return fmt.Errorf("production config validation failed: %w", err)
	}
	if c.Production.Enabled && c.Production.RequireLoopbackHTTP {
		if err := requireLoopback(c.HTTP.Addr); err != nil {
			return fmt.Errorf("production.require_loopback_http: %w", err)
		}
	}

	return nil
}

// requireLoopback checks that addr's host resolves to a loopback address.
func requireLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("must be host:port: %w", err)
	}
	if host == "" {
		return errors.New("must bind to loopback explicitly (e.g. 127.0.0.1), not all interfaces")
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("host %q is not a loopback address", host)
	}
	return nil
}

// ProductionConfig gates deployment-safety checks that only matter once
// chatindexd is running somewhere other than a developer's own machine.
type ProductionConfig struct {
	// Enabled indicates whether production mode is active.
	Enabled bool `koanf:"enabled"`

	// LocalModeAcknowledged is accepted from configuration; Validate and the
	// rest of chatindexd do not read it.
	LocalModeAcknowledged bool `koanf:"local_mode_acknowledged"`

	// RequireLoopbackHTTP enforces that http.addr binds only to loopback in
	// production, since the query adapter carries no auth of its own.
	RequireLoopbackHTTP bool `koanf:"require_loopback_http"`
}

// IsProduction returns true if running in production mode.
func (c *ProductionConfig) IsProduction() bool { return c.Enabled }

// Validate checks production configuration for safety issues.
func (c *ProductionConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return nil
}

// validateAddr checks that addr is a well-formed host:port pair.
func validateAddr(addr string) error {
	if addr == "" {
		return errors.New("must be set")
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("must be host:port: %w", err)
	}
	if host == "" {
		return nil // ":8099" binds all interfaces, which is valid syntax
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid host %q", host)
	}
	return nil
}

// validatePath checks that path contains no traversal sequences.
func validatePath(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal sequence: %s", path)
	}
	if filepath.IsAbs(path) {
		clean := filepath.Clean(path)
		origDepth := strings.Count(path, string(filepath.Separator))
		cleanDepth := strings.Count(clean, string(filepath.Separator))
		if cleanDepth < origDepth-1 {
			return fmt.Errorf("path traversal detected: %s (resolves to %s)", path, clean)
		}
	}
	return nil
}
