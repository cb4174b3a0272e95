package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("explicit missing file must error")
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Role != "observable" {
		t.Fatalf("default role mismatch: %q", cfg.Role)
	}
	if cfg.Protocol.MaxConnectionTry != 5 {
		t.Fatalf("default max_connection_try mismatch: %d", cfg.Protocol.MaxConnectionTry)
	}
	if cfg.Protocol.AcknowledgementDuration() != time.Second {
		t.Fatalf("default acknowledgement budget mismatch: %v", cfg.Protocol.AcknowledgementDuration())
	}
	if cfg.Protocol.AutoValidation != "none" {
		t.Fatalf("default auto_validation mismatch: %q", cfg.Protocol.AutoValidation)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opwear.yaml")
	data := `
node_id: watch-1
node_name: Watch
role: observer
transport:
  listen: ":9000"
  peers:
    - id: phone-1
      name: Phone
      addr: "127.0.0.1:9001"
protocol:
  max_connection_try: 3
  acknowledgement_ms: 600
  auto_validation: acknowledge
  auto_validation_ms: 2000
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NodeID != "watch-1" || cfg.Role != "observer" {
		t.Fatalf("unexpected node settings: %+v", cfg)
	}
	if len(cfg.Transport.Peers) != 1 || cfg.Transport.Peers[0].ID != "phone-1" {
		t.Fatalf("unexpected peers: %+v", cfg.Transport.Peers)
	}
	if cfg.Protocol.MaxConnectionTry != 3 || cfg.Protocol.AcknowledgementMS != 600 {
		t.Fatalf("unexpected protocol tuning: %+v", cfg.Protocol)
	}
	if cfg.Protocol.AutoValidationDuration() != 2*time.Second {
		t.Fatalf("unexpected validation interval: %v", cfg.Protocol.AutoValidationDuration())
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("unexpected log level: %q", cfg.Log.Level)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("OPWEAR_LOG_LEVEL", "warn")
	t.Setenv("OPWEAR_ROLE", "observer")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("env must override log level, got %q", cfg.Log.Level)
	}
	if cfg.Role != "observer" {
		t.Fatalf("env must override role, got %q", cfg.Role)
	}
}

func TestValidation(t *testing.T) {
	write := func(data string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "opwear.yaml")
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		return path
	}

	if _, err := Load(write("role: spectator\n")); err == nil {
		t.Fatalf("invalid role must be rejected")
	}
	if _, err := Load(write("protocol:\n  auto_validation: telepathy\n")); err == nil {
		t.Fatalf("invalid strategy must be rejected")
	}
	if _, err := Load(write("protocol:\n  max_connection_try: 0\n")); err == nil {
		t.Fatalf("non-positive retry count must be rejected")
	}
	if _, err := Load(write("log:\n  level: loud\n")); err == nil {
		t.Fatalf("invalid log level must be rejected")
	}
	if _, err := Load(write("transport:\n  peers:\n    - name: NoID\n")); err == nil {
		t.Fatalf("peer without id must be rejected")
	}
}
