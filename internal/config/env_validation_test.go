package config

import "testing"

func TestValidatePathRejectsTraversal(t *testing.T) {
	invalidPaths := []string{
		"../../../etc/passwd",
		"/data/../../../etc/passwd",
	}
	for _, path := range invalidPaths {
		t.Run(path, func(t *testing.T) {
			if err := validatePath(path); err == nil {
				t.Errorf("expected validation error for path traversal: %s", path)
			}
		})
	}
}

func TestValidatePathAllowsCleanPaths(t *testing.T) {
	validPaths := []string{
		"/var/lib/chatindexd",
		"relative/data/dir",
		"/data/chatindexd/index.db",
	}
	for _, path := range validPaths {
		t.Run(path, func(t *testing.T) {
			if err := validatePath(path); err != nil {
				t.Errorf("valid path rejected: %s, error: %v", path, err)
			}
		})
	}
}

func TestValidateAddrRejectsMalformedHostPort(t *testing.T) {
	invalidAddrs := []string{
		"not-a-host-port",
		"",
		"localhost;rm -rf /:8099",
	}
	for _, addr := range invalidAddrs {
		t.Run(addr, func(t *testing.T) {
			if err := validateAddr(addr); err == nil {
				t.Errorf("expected validation error for addr: %q", addr)
			}
		})
	}
}

func TestValidateAddrAllowsLoopbackAndWildcard(t *testing.T) {
	validAddrs := []string{
		"127.0.0.1:8099",
		":8099",
		"localhost:8099",
	}
	for _, addr := range validAddrs {
		t.Run(addr, func(t *testing.T) {
			if err := validateAddr(addr); err != nil {
				t.Errorf("valid addr rejected: %q, error: %v", addr, err)
			}
		})
	}
}

func TestConfigValidateRejectsMissingPersistDirectory(t *testing.T) {
	cfg := validTestConfig()
	cfg.Ingest.PersistDirectory = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for empty persist_directory")
	}
}

func TestConfigValidateRejectsNonPositiveLexicalFanout(t *testing.T) {
	cfg := validTestConfig()
	cfg.Ingest.LexicalFanout = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero lexical_fanout")
	}
}

func TestConfigValidateRejectsEnrichmentWithoutModel(t *testing.T) {
	cfg := validTestConfig()
	cfg.Enrichment.Enabled = true
	cfg.Enrichment.Model = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for enrichment enabled without a model")
	}
}

func TestWatchConfigIsEnabledDefaultsTrueWhenUnset(t *testing.T) {
	var w WatchConfig
	if !w.IsEnabled() {
		t.Fatal("expected unset WatchConfig.Enabled to default to true")
	}
}

func TestWatchConfigIsEnabledHonorsExplicitFalse(t *testing.T) {
	disabled := false
	w := WatchConfig{Enabled: &disabled}
	if w.IsEnabled() {
		t.Fatal("expected explicit enabled=false to stay disabled")
	}
}

func validTestConfig() *Config {
	return &Config{
		Server:      ServerConfig{ShutdownTimeout: Duration(10_000_000_000)},
		HTTP:        HTTPConfig{Addr: "127.0.0.1:8099"},
		Ingest:      IngestConfig{PersistDirectory: "/data/chatindexd", LexicalFanout: 5},
		VectorStore: VectorStoreConfig{CallConcurrency: 1},
		Watch:       WatchConfig{Debounce: Duration(2_000_000_000)},
	}
}
