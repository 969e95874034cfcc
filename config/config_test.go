package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "harbor: 3\n")
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Thread != 8 {
		t.Fatalf("Thread = %d, want default 8", cfg.Thread)
	}
	if cfg.Harbor != 3 {
		t.Fatalf("Harbor = %d, want 3", cfg.Harbor)
	}
	if cfg.LogService != "logger" {
		t.Fatalf("LogService = %q, want default %q", cfg.LogService, "logger")
	}
}

func TestLoadRejectsNonPositiveThread(t *testing.T) {
	path := writeTempConfig(t, "thread: 0\n")
	if _, err := Load(path, nil); err == nil {
		t.Fatal("expected error for thread: 0")
	}
}

func TestLoadCLIOverrideWinsOverFile(t *testing.T) {
	path := writeTempConfig(t, "bootstrap: file-service\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	if err := flags.Set("bootstrap", "cli-service"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bootstrap != "cli-service" {
		t.Fatalf("Bootstrap = %q, want CLI override %q", cfg.Bootstrap, "cli-service")
	}
}

func TestLoggerArgAndProfileEnabledReflectLoad(t *testing.T) {
	path := writeTempConfig(t, "logger: /var/log/node.log\nprofile: true\n")
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.LoggerArg(); got != "/var/log/node.log" {
		t.Fatalf("LoggerArg() = %q, want %q", got, "/var/log/node.log")
	}
	if !cfg.ProfileEnabled() {
		t.Fatal("ProfileEnabled() = false, want true")
	}
}
