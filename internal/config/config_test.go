package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatty.conf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `# chatty test configuration
UnixPath = /tmp/chatty_socket

MaxConnections = 32
ThreadsInPool = 8
MaxMsgSize = 512
MaxFileSize = 1024
MaxHistMsgs = 16
DirName = /tmp/chatty_files
StatFileName = /tmp/chatty_stats.txt
`

func TestLoadValidConfig(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.UnixPath != "/tmp/chatty_socket" {
		t.Fatalf("UnixPath = %q", cfg.UnixPath)
	}
	if cfg.MaxConnections != 32 || cfg.ThreadsInPool != 8 {
		t.Fatalf("pool sizing: %+v", cfg)
	}
	if cfg.MaxMsgSize != 512 || cfg.MaxFileSize != 1024 || cfg.MaxHistMsgs != 16 {
		t.Fatalf("limits: %+v", cfg)
	}
	if cfg.DirName != "/tmp/chatty_files" || cfg.StatFileName != "/tmp/chatty_stats.txt" {
		t.Fatalf("paths: %+v", cfg)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AdminAddr != "" {
		t.Fatalf("AdminAddr should default to disabled, got %q", cfg.AdminAddr)
	}
	if want := filepath.Join("/tmp/chatty_files", "attachments.db"); cfg.DBFile != want {
		t.Fatalf("DBFile = %q, want %q", cfg.DBFile, want)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadOptionalKeys(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, validConfig+`
AdminAddr = 127.0.0.1:9090
DBFile = /tmp/other.db
LogLevel = debug
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AdminAddr != "127.0.0.1:9090" || cfg.DBFile != "/tmp/other.db" || cfg.LogLevel != "debug" {
		t.Fatalf("optional keys: %+v", cfg)
	}
}

func TestMissingRequiredKeyFails(t *testing.T) {
	t.Parallel()

	stripped := strings.Replace(validConfig, "StatFileName = /tmp/chatty_stats.txt\n", "", 1)
	_, err := Load(writeConfig(t, stripped))
	if err == nil {
		t.Fatalf("expected error for missing StatFileName")
	}
	if !strings.Contains(err.Error(), "StatFileName") {
		t.Fatalf("error does not name the missing key: %v", err)
	}
}

func TestInvalidValueFails(t *testing.T) {
	t.Parallel()

	bad := strings.Replace(validConfig, "MaxConnections = 32", "MaxConnections = 0", 1)
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatalf("expected error for MaxConnections = 0")
	}
}

func TestMissingFileFails(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.conf")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
