package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// setupTestHome creates a temporary home directory for testing.
// Returns the home dir path and a cleanup function.
func setupTestHome(t *testing.T) (string, func()) {
	t.Helper()

	tmpHome := t.TempDir()
	originalHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpHome)

	cleanup := func() {
		if originalHome != "" {
			os.Setenv("HOME", originalHome)
		} else {
			os.Unsetenv("HOME")
		}
	}

	return tmpHome, cleanup
}

func writeTestConfig(t *testing.T, home, yamlContent string, perm os.FileMode) string {
	t.Helper()
	configDir := filepath.Join(home, ".config", "chatindexd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), perm); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// TestLoadWithFile_ValidYAML tests loading configuration from a valid YAML file.
func TestLoadWithFile_ValidYAML(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	yamlContent := `ingest:
  persist_directory: ` + home + `/data
http:
  addr: "127.0.0.1:9090"
logging:
  level: debug
  format: console
`
	configPath := writeTestConfig(t, home, yamlContent, 0600)

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.HTTP.Addr != "127.0.0.1:9090" {
		t.Errorf("HTTP.Addr = %q, want 127.0.0.1:9090", cfg.HTTP.Addr)
	}
	if cfg.Ingest.PersistDirectory != home+"/data" {
		t.Errorf("Ingest.PersistDirectory = %q, want %q", cfg.Ingest.PersistDirectory, home+"/data")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %q, want console", cfg.Logging.Format)
	}
}

// TestLoadWithFile_EnvironmentOverride tests that environment variables override YAML.
func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	yamlContent := `ingest:
  persist_directory: ` + home + `/data
http:
  addr: "127.0.0.1:9090"
logging:
  level: info
`
	configPath := writeTestConfig(t, home, yamlContent, 0600)

	os.Setenv("HTTP_ADDR", "127.0.0.1:7777")
	os.Setenv("LOGGING_LEVEL", "warn")
	defer os.Unsetenv("HTTP_ADDR")
	defer os.Unsetenv("LOGGING_LEVEL")

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.HTTP.Addr != "127.0.0.1:7777" {
		t.Errorf("HTTP.Addr = %q, want 127.0.0.1:7777 (from env override)", cfg.HTTP.Addr)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn (from env override)", cfg.Logging.Level)
	}
}

// TestLoadWithFile_MissingFile tests handling of missing config file.
func TestLoadWithFile_MissingFile(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	os.Setenv("INGEST_PERSIST_DIRECTORY", home+"/data")
	defer os.Unsetenv("INGEST_PERSIST_DIRECTORY")

	configPath := filepath.Join(home, ".config", "chatindexd", "config.yaml")

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() should not error on missing file, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("LoadWithFile() returned nil config for missing file")
	}
	if cfg.HTTP.Addr != "127.0.0.1:8099" {
		t.Errorf("HTTP.Addr = %q, want default 127.0.0.1:8099", cfg.HTTP.Addr)
	}
}

// TestLoadWithFile_InvalidYAML tests handling of malformed YAML.
func TestLoadWithFile_InvalidYAML(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	invalidYAML := `ingest:
  persist_directory: not: valid: yaml: here
`
	configPath := writeTestConfig(t, home, invalidYAML, 0600)

	if _, err := LoadWithFile(configPath); err == nil {
		t.Error("LoadWithFile() should error on invalid YAML, got nil")
	}
}

// TestLoadWithFile_Validation tests configuration validation.
func TestLoadWithFile_Validation(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	// http.addr with an invalid hostname should fail Validate().
	yamlContent := `ingest:
  persist_directory: ` + home + `/data
http:
  addr: "not a host:port"
`
	configPath := writeTestConfig(t, home, yamlContent, 0600)

	if _, err := LoadWithFile(configPath); err == nil {
		t.Error("LoadWithFile() should error on invalid http.addr, got nil")
	}
}

// TestLoadWithFile_PathTraversal tests path traversal attack prevention.
func TestLoadWithFile_PathTraversal(t *testing.T) {
	_, cleanup := setupTestHome(t)
	defer cleanup()

	_, err := LoadWithFile("../../../../etc/passwd")
	if err == nil {
		t.Fatal("expected error for path traversal, got nil")
	}
	if !strings.Contains(err.Error(), "must be in ~/.config/chatindexd/ or /etc/chatindexd/") {
		t.Errorf("expected path validation error, got: %v", err)
	}
}

// TestLoadWithFile_InsecurePermissions tests file permission enforcement.
func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping permission test on Windows")
	}

	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := writeTestConfig(t, home, "http:\n  addr: \"127.0.0.1:8099\"\n", 0644)

	_, err := LoadWithFile(configPath)
	if err == nil {
		t.Fatal("expected error for insecure permissions, got nil")
	}
	if !strings.Contains(err.Error(), "insecure") && !strings.Contains(err.Error(), "permissions") {
		t.Errorf("expected 'insecure permissions' error, got: %v", err)
	}
}

// TestLoadWithFile_SecurePermissions tests that 0600 permissions are accepted.
func TestLoadWithFile_SecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping permission test on Windows")
	}

	home, cleanup := setupTestHome(t)
	defer cleanup()

	yamlContent := `ingest:
  persist_directory: ` + home + `/data
http:
  addr: "127.0.0.1:9090"
`
	configPath := writeTestConfig(t, home, yamlContent, 0600)

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() should succeed with 0600 permissions, got error: %v", err)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9090" {
		t.Errorf("HTTP.Addr = %q, want 127.0.0.1:9090", cfg.HTTP.Addr)
	}
}

// TestLoadWithFile_FileTooLarge tests file size limit enforcement.
func TestLoadWithFile_FileTooLarge(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	largeContent := bytes.Repeat([]byte("# comment line\n"), 150000)
	configPath := writeTestConfig(t, home, string(largeContent), 0600)

	_, err := LoadWithFile(configPath)
	if err == nil {
		t.Fatal("expected error for large file, got nil")
	}
	if !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected 'too large' error, got: %v", err)
	}
}

// TestLoadWithFile_TOMLFile tests that a .toml extension is parsed via the
// BurntSushi/toml adapter instead of YAML.
func TestLoadWithFile_TOMLFile(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	configDir := filepath.Join(home, ".config", "chatindexd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "config.toml")

	tomlContent := "[ingest]\npersist_directory = \"" + home + "/data\"\n\n[http]\naddr = \"127.0.0.1:8199\"\n"
	if err := os.WriteFile(configPath, []byte(tomlContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}
	if cfg.HTTP.Addr != "127.0.0.1:8199" {
		t.Errorf("HTTP.Addr = %q, want 127.0.0.1:8199", cfg.HTTP.Addr)
	}
}
